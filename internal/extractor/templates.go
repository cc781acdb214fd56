package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scd-extractor/internal/archive"
	"scd-extractor/internal/models"
	"scd-extractor/internal/parser"
	"scd-extractor/pkg/logger"
)

// ResolveTemplates collects the IDs of every master whose Name contains
// marker. No match yields an empty set, not an error.
func ResolveTemplates(arc *archive.Archive, part, marker string, log *logger.Logger) (models.TemplateSet, error) {
	doc, err := arc.Document(part)
	if err != nil {
		return nil, err
	}
	if err := parser.RequireRoot(doc, parser.NSVisio, "Masters"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArchive, part, err)
	}

	set := models.NewTemplateSet()
	parser.Elements(doc.Selection, parser.NSVisio, "Master").Each(func(_ int, m *goquery.Selection) {
		name, ok := parser.Attr(m, "Name")
		if !ok || !strings.Contains(name, marker) {
			return
		}
		id, ok := parser.Attr(m, "ID")
		if !ok || id == "" {
			log.Debugf("master %q matches %q but has no ID, skipped", name, marker)
			return
		}
		set[id] = struct{}{}
	})
	return set, nil
}
