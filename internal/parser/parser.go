
package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Namespaces used by the Visio 2012+ package parts.
const (
	NSVisio         = "http://schemas.microsoft.com/office/visio/2012/main"
	NSRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

var ErrEmptyDocument = errors.New("document has no root element")

// Parser turns an XML part into a goquery document.
//
// Element and attribute names are kept exactly as written, with their
// namespace URI on Node.Namespace and Attribute.Namespace. cascadia folds
// selector names to lower case, so lookups go through Elements, Children and
// AttrNS rather than tag selectors.
type Parser struct{}

func New() *Parser { return &Parser{} }

func (p *Parser) Parse(r io.Reader) (*goquery.Document, error) {
	dec := xml.NewDecoder(r)
	// parts declaring e.g. encoding="windows-1252"
	dec.CharsetReader = charset.NewReaderLabel

	root := &html.Node{Type: html.DocumentNode}
	cur := root
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &html.Node{
				Type:      html.ElementNode,
				Data:      t.Name.Local,
				Namespace: t.Name.Space,
				Attr:      convertAttrs(t.Attr),
			}
			cur.AppendChild(n)
			cur = n
		case xml.EndElement:
			if cur.Parent == nil {
				return nil, fmt.Errorf("unexpected end element %q", t.Name.Local)
			}
			cur = cur.Parent
		case xml.CharData:
			if cur == root || len(strings.TrimSpace(string(t))) == 0 {
				continue
			}
			cur.AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
		}
	}
	if root.FirstChild == nil {
		return nil, ErrEmptyDocument
	}
	return goquery.NewDocumentFromNode(root), nil
}

func convertAttrs(in []xml.Attr) []html.Attribute {
	if len(in) == 0 {
		return nil
	}
	out := make([]html.Attribute, 0, len(in))
	for _, a := range in {
		// namespace declarations are already resolved into Name.Space
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, html.Attribute{
			Namespace: a.Name.Space,
			Key:       a.Name.Local,
			Val:       a.Value,
		})
	}
	return out
}

// Elements returns the descendants of sel named space:local, in document
// order. Names are case-sensitive.
func Elements(sel *goquery.Selection, space, local string) *goquery.Selection {
	return sel.Find("*").FilterFunction(named(space, local))
}

// Children returns the direct children of sel named space:local.
func Children(sel *goquery.Selection, space, local string) *goquery.Selection {
	return sel.Children().FilterFunction(named(space, local))
}

func named(space, local string) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		n := s.Get(0)
		return n.Type == html.ElementNode && n.Namespace == space && n.Data == local
	}
}

// Attr returns the unqualified attribute name of the first node in sel.
func Attr(sel *goquery.Selection, name string) (string, bool) {
	return AttrNS(sel, "", name)
}

// AttrNS returns the attribute space:name of the first node in sel. An empty
// space only matches attributes without a namespace.
func AttrNS(sel *goquery.Selection, space, name string) (string, bool) {
	if sel == nil || len(sel.Nodes) == 0 {
		return "", false
	}
	for _, a := range sel.Nodes[0].Attr {
		if a.Key == name && a.Namespace == space {
			return a.Val, true
		}
	}
	return "", false
}

func documentElement(doc *goquery.Document) *html.Node {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil
	}
	for n := doc.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// RootName returns the local name of the document element.
func RootName(doc *goquery.Document) string {
	if n := documentElement(doc); n != nil {
		return n.Data
	}
	return ""
}

// RequireRoot fails unless the document element is space:local.
func RequireRoot(doc *goquery.Document, space, local string) error {
	n := documentElement(doc)
	if n == nil {
		return ErrEmptyDocument
	}
	if n.Namespace != space || n.Data != local {
		return fmt.Errorf("root element is {%s}%s, expected {%s}%s", n.Namespace, n.Data, space, local)
	}
	return nil
}
