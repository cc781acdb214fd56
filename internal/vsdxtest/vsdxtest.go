// Package vsdxtest builds small .vsdx packages for tests.
package vsdxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

const (
	nsVisio = "http://schemas.microsoft.com/office/visio/2012/main"
	nsRel   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	MastersPart = "visio/masters/masters.xml"
	PagesPart   = "visio/pages/pages.xml"
	PageDir     = "visio/pages/"
)

type Master struct {
	ID   string
	Name string
}

// Page is an entry in pages.xml. RelID is written as r:id on its Rel child;
// an empty RelID omits the Rel element.
type Page struct {
	Name  string
	RelID string
}

type Row struct {
	N      string
	V      string
	NoCell bool
}

type Section struct {
	Name string // defaults to "Property"
	Rows []Row
}

type Shape struct {
	Master   string
	Sections []Section
	Children []Shape
}

type part struct {
	name string
	body string
}

// Builder assembles a package. The zero value is not usable; call New.
type Builder struct {
	masters []Master
	pages   []Page
	parts   []part
	omit    map[string]bool
}

func New() *Builder {
	return &Builder{omit: map[string]bool{}}
}

func (b *Builder) Master(id, name string) *Builder {
	b.masters = append(b.masters, Master{ID: id, Name: name})
	return b
}

func (b *Builder) Page(name, relID string) *Builder {
	b.pages = append(b.pages, Page{Name: name, RelID: relID})
	return b
}

// Content adds visio/pages/<file> holding shapes.
func (b *Builder) Content(file string, shapes ...Shape) *Builder {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&sb, `<PageContents xmlns="%s" xmlns:r="%s"><Shapes>`, nsVisio, nsRel)
	id := 1
	for _, s := range shapes {
		writeShape(&sb, s, &id)
	}
	sb.WriteString(`</Shapes></PageContents>`)
	return b.Raw(PageDir+file, sb.String())
}

// Raw adds an arbitrary part, replacing a generated one with the same name.
func (b *Builder) Raw(name, body string) *Builder {
	for i := range b.parts {
		if b.parts[i].name == name {
			b.parts[i].body = body
			return b
		}
	}
	b.parts = append(b.parts, part{name: name, body: body})
	return b
}

// Without drops a generated part (masters.xml or pages.xml).
func (b *Builder) Without(name string) *Builder {
	b.omit[name] = true
	return b
}

func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entries := []part{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="utf-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"visio/document.xml", fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?><VisioDocument xmlns="%s"/>`, nsVisio)},
		{MastersPart, b.mastersXML()},
		{PagesPart, b.pagesXML()},
		{"visio/pages/_rels/pages.xml.rels", b.pagesRels()},
	}
	for _, p := range b.parts {
		replaced := false
		for i := range entries {
			if entries[i].name == p.name {
				entries[i].body = p.body
				replaced = true
			}
		}
		if !replaced {
			entries = append(entries, p)
		}
	}
	for _, e := range entries {
		if b.omit[e.name] {
			continue
		}
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Builder) WriteFile(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (b *Builder) mastersXML() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&sb, `<Masters xmlns="%s" xmlns:r="%s">`, nsVisio, nsRel)
	for i, m := range b.masters {
		fmt.Fprintf(&sb, `<Master ID="%s" NameU="%s" Name="%s"><PageSheet/><Rel r:id="rId%d"/></Master>`,
			esc(m.ID), esc(m.Name), esc(m.Name), i+1)
	}
	sb.WriteString(`</Masters>`)
	return sb.String()
}

func (b *Builder) pagesXML() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	fmt.Fprintf(&sb, `<Pages xmlns="%s" xmlns:r="%s">`, nsVisio, nsRel)
	for i, p := range b.pages {
		fmt.Fprintf(&sb, `<Page ID="%d" NameU="%s" Name="%s"><PageSheet><Cell N="PageWidth" V="16.5"/></PageSheet>`,
			i, esc(p.Name), esc(p.Name))
		if p.RelID != "" {
			fmt.Fprintf(&sb, `<Rel r:id="%s"/>`, esc(p.RelID))
		}
		sb.WriteString(`</Page>`)
	}
	sb.WriteString(`</Pages>`)
	return sb.String()
}

func (b *Builder) pagesRels() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for _, p := range b.pages {
		if p.RelID == "" {
			continue
		}
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="http://schemas.microsoft.com/visio/2010/relationships/page" Target="page.xml"/>`, esc(p.RelID))
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

func writeShape(sb *strings.Builder, s Shape, id *int) {
	fmt.Fprintf(sb, `<Shape ID="%d" Type="Group"`, *id)
	*id++
	if s.Master != "" {
		fmt.Fprintf(sb, ` Master="%s"`, esc(s.Master))
	}
	sb.WriteString(`><Cell N="PinX" V="1.5"/>`)
	for _, sec := range s.Sections {
		name := sec.Name
		if name == "" {
			name = "Property"
		}
		fmt.Fprintf(sb, `<Section N="%s">`, esc(name))
		for _, r := range sec.Rows {
			fmt.Fprintf(sb, `<Row N="%s">`, esc(r.N))
			if !r.NoCell {
				fmt.Fprintf(sb, `<Cell N="Value" V="%s" U="STR"/><Cell N="Prompt" V=""/>`, esc(r.V))
			}
			sb.WriteString(`</Row>`)
		}
		sb.WriteString(`</Section>`)
	}
	if len(s.Children) > 0 {
		sb.WriteString(`<Shapes>`)
		for _, c := range s.Children {
			writeShape(sb, c, id)
		}
		sb.WriteString(`</Shapes>`)
	}
	sb.WriteString(`</Shape>`)
}

func esc(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// FB returns a Property section with the three standard rows.
func FB(typ, tag, info string) Section {
	return Section{Rows: []Row{{N: "FB", V: typ}, {N: "Tag", V: tag}, {N: "Info", V: info}}}
}
