package extractor

import (
	"context"
	"fmt"
	"io"

	"scd-extractor/internal/archive"
	"scd-extractor/internal/config"
	"scd-extractor/internal/models"
	"scd-extractor/pkg/logger"
)

// Pipeline runs template resolution, page location and shape extraction over
// one archive at a time. It keeps no state between runs.
type Pipeline struct {
	cfg    config.Config
	layout PageLayout
	opts   []Option
	log    *logger.Logger
}

func NewPipeline(cfg config.Config, log *logger.Logger) (*Pipeline, error) {
	if log == nil {
		log = logger.Nop()
	}
	cl, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		layout: PageLayout{
			Catalog: cfg.PagesPart,
			Dir:     cfg.PageDir,
			Prefix:  cfg.PagePrefix,
			Suffix:  cfg.PageSuffix,
		},
		opts: []Option{
			WithClassifier(cl),
			WithPageMarker(cfg.PageDir),
			WithWorkers(cfg.Workers),
		},
		log: log,
	}, nil
}

// Run extracts every function block record from the archive at path.
func (p *Pipeline) Run(ctx context.Context, path string) (models.Result, error) {
	arc, err := archive.Open(path, p.cfg.PartSizeCap)
	if err != nil {
		return models.Result{}, err
	}
	defer arc.Close()
	return p.extract(ctx, arc)
}

// RunReader is Run for an archive that is not on disk, e.g. an upload.
func (p *Pipeline) RunReader(ctx context.Context, r io.ReaderAt, size int64, name string) (models.Result, error) {
	arc, err := archive.NewReader(r, size, name, p.cfg.PartSizeCap)
	if err != nil {
		return models.Result{}, err
	}
	return p.extract(ctx, arc)
}

func (p *Pipeline) extract(ctx context.Context, arc *archive.Archive) (models.Result, error) {
	log := p.log.With("archive", arc.Name())
	res := models.Result{Source: arc.Name(), Records: []models.Record{}}

	templates, err := ResolveTemplates(arc, p.cfg.MastersPart, p.cfg.TemplateMarker, log)
	if err != nil {
		return models.Result{}, fmt.Errorf("resolve templates: %w", err)
	}
	if templates.Len() == 0 {
		log.Debugf("no master contains %q", p.cfg.TemplateMarker)
	}

	pages, err := LocatePages(arc, p.layout)
	if err != nil {
		return models.Result{}, fmt.Errorf("locate pages: %w", err)
	}
	log.Debugf("%d function block masters, %d pages", templates.Len(), len(pages))

	opts := append([]Option{WithLogger(log)}, p.opts...)
	recs, err := New(arc, templates, pages, opts...).Collect(ctx)
	if err != nil {
		return models.Result{}, fmt.Errorf("extract shapes: %w", err)
	}
	res.Records = append(res.Records, recs...)
	return res, nil
}
