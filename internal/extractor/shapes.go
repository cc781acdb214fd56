package extractor

import (
	"context"
	"fmt"
	"iter"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"scd-extractor/internal/archive"
	"scd-extractor/internal/classifier"
	"scd-extractor/internal/models"
	"scd-extractor/internal/parser"
	"scd-extractor/pkg/logger"
)

// Extractor walks the page content parts of an archive and turns every
// function block shape into a Record. It holds no mutable state, so Records
// can be iterated any number of times.
type Extractor struct {
	arc       *archive.Archive
	templates models.TemplateSet
	pages     models.PageIndex
	cl        *classifier.Classifier
	marker    string
	workers   int
	log       *logger.Logger
}

type Option func(*Extractor)

// WithClassifier replaces the default FB/Tag/Info rule table.
func WithClassifier(cl *classifier.Classifier) Option {
	return func(e *Extractor) { e.cl = cl }
}

// WithPageMarker sets the substring that selects candidate content parts.
func WithPageMarker(marker string) Option {
	return func(e *Extractor) { e.marker = marker }
}

// WithWorkers parses up to n parts concurrently in Collect.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// New builds an extractor. templates and pages are treated as read-only.
func New(arc *archive.Archive, templates models.TemplateSet, pages models.PageIndex, opts ...Option) *Extractor {
	e := &Extractor{
		arc:       arc,
		templates: templates,
		pages:     pages,
		cl:        classifier.New(),
		marker:    "visio/pages/",
		workers:   1,
		log:       logger.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Records yields one record per Property section of every matching shape,
// in archive order then document order. Every candidate part is parsed, even
// when no template can match. Iteration stops at the first error.
func (e *Extractor) Records() iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		for _, part := range e.arc.Parts(e.marker) {
			recs, err := e.extractPart(part)
			if err != nil {
				yield(models.Record{}, err)
				return
			}
			for _, r := range recs {
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}

// Collect materialises every record or none. With more than one worker the
// parts are parsed concurrently and reassembled in archive order.
func (e *Extractor) Collect(ctx context.Context) ([]models.Record, error) {
	if e.workers <= 1 {
		var out []models.Record
		for r, err := range e.Records() {
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	parts := e.arc.Parts(e.marker)
	results := make([][]models.Record, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := e.extractPart(part)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.Record
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

func (e *Extractor) extractPart(part string) ([]models.Record, error) {
	doc, err := e.arc.Document(part)
	if err != nil {
		return nil, err
	}

	var (
		out      []models.Record
		sheet    string
		resolved bool
	)
	shapes := parser.Elements(doc.Selection, parser.NSVisio, "Shape")
	for i := range shapes.Nodes {
		shape := shapes.Eq(i)
		master, ok := parser.Attr(shape, "Master")
		if !ok || !e.templates.Has(master) {
			continue
		}
		if !resolved {
			name, ok := e.pages.Lookup(part)
			if !ok {
				return nil, fmt.Errorf("%w: no page mapping for part %q", ErrInconsistentArchive, part)
			}
			sheet, resolved = name, true
		}
		parser.Children(shape, parser.NSVisio, "Section").Each(func(_ int, sec *goquery.Selection) {
			if n, _ := parser.Attr(sec, "N"); n == "Property" {
				out = append(out, e.decodeSection(sheet, sec))
			}
		})
	}
	e.log.Debugf("part %s: %d records", part, len(out))
	return out, nil
}

func (e *Extractor) decodeSection(sheet string, sec *goquery.Selection) models.Record {
	rec := models.Record{Sheet: sheet}
	parser.Children(sec, parser.NSVisio, "Row").Each(func(_ int, row *goquery.Selection) {
		name, _ := parser.Attr(row, "N")
		fields := e.cl.Classify(name)
		if len(fields) == 0 {
			return
		}
		v := cellValue(row)
		for _, f := range fields {
			rec.Set(f, v)
		}
	})
	return rec
}

// cellValue reads V from the row's first Cell. A missing cell or attribute is
// an empty value.
func cellValue(row *goquery.Selection) string {
	v, _ := parser.Attr(parser.Children(row, parser.NSVisio, "Cell").First(), "V")
	return v
}
