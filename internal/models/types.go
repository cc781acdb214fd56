
package models

// Field names one of the value slots of a Record that property rows feed.
type Field int

const (
	FieldType Field = iota
	FieldTag
	FieldDescription
)

func (f Field) String() string {
	switch f {
	case FieldType:
		return "type"
	case FieldTag:
		return "tag"
	case FieldDescription:
		return "description"
	}
	return "unknown"
}

// ParseField maps a config name back to its Field.
func ParseField(s string) (Field, bool) {
	switch s {
	case "type":
		return FieldType, true
	case "tag":
		return FieldTag, true
	case "description":
		return FieldDescription, true
	}
	return 0, false
}

// Header is the fixed column order of the table output.
var Header = []string{"Sheet", "Function-block", "Tag", "Description"}

type Record struct {
	Sheet       string `json:"sheet"`
	Type        string `json:"functionBlock"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

func (r *Record) Set(f Field, v string) {
	switch f {
	case FieldType:
		r.Type = v
	case FieldTag:
		r.Tag = v
	case FieldDescription:
		r.Description = v
	}
}

// Columns returns the record in Header order.
func (r Record) Columns() []string {
	return []string{r.Sheet, r.Type, r.Tag, r.Description}
}

// TemplateSet holds the master IDs that identify function block shapes.
type TemplateSet map[string]struct{}

func NewTemplateSet(ids ...string) TemplateSet {
	s := make(TemplateSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s TemplateSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s TemplateSet) Len() int { return len(s) }

// PageIndex maps a page content part (e.g. "visio/pages/page1.xml") to the
// page's display name.
type PageIndex map[string]string

func (p PageIndex) Lookup(part string) (string, bool) {
	name, ok := p[part]
	return name, ok
}

type Result struct {
	Source  string   `json:"source"`
	Records []Record `json:"records"`
}
