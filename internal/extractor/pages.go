package extractor

import (
	"fmt"
	"regexp"

	"scd-extractor/internal/archive"
	"scd-extractor/internal/models"
	"scd-extractor/internal/parser"
)

var digitsRe = regexp.MustCompile(`\d+`)

// PageLayout describes where page parts live and how a relationship id maps
// to a content part: Dir + Prefix + <digits of r:id> + Suffix.
type PageLayout struct {
	Catalog string
	Dir     string
	Prefix  string
	Suffix  string
}

// ContentPart derives the content part path from a relationship id such as
// "rId3". It fails when relID holds no digits.
func (l PageLayout) ContentPart(relID string) (string, error) {
	n := digitsRe.FindString(relID)
	if n == "" {
		return "", fmt.Errorf("relationship id %q has no page number", relID)
	}
	return l.Dir + l.Prefix + n + l.Suffix, nil
}

// LocatePages maps each page content part to the page's display name.
func LocatePages(arc *archive.Archive, layout PageLayout) (models.PageIndex, error) {
	doc, err := arc.Document(layout.Catalog)
	if err != nil {
		return nil, err
	}
	if err := parser.RequireRoot(doc, parser.NSVisio, "Pages"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArchive, layout.Catalog, err)
	}

	pages := parser.Elements(doc.Selection, parser.NSVisio, "Page")
	index := make(models.PageIndex, pages.Length())
	for i := range pages.Nodes {
		page := pages.Eq(i)
		name, ok := parser.Attr(page, "Name")
		if !ok {
			continue
		}

		rel := parser.Children(page, parser.NSVisio, "Rel").First()
		relID, ok := parser.AttrNS(rel, parser.NSRelationships, "id")
		if !ok {
			return nil, fmt.Errorf("%w: %s: page %q has no relationship reference", ErrMalformedArchive, layout.Catalog, name)
		}
		content, err := layout.ContentPart(relID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: page %q: %v", ErrMalformedArchive, layout.Catalog, name, err)
		}
		index[content] = name
	}
	return index, nil
}
