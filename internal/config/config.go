// Package config holds the knobs of the extractor: where the Visio parts live,
// which masters count as function blocks, and how the table is written.
package config

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"scd-extractor/internal/classifier"
	"scd-extractor/internal/models"
)

// EnvPath names a config file used when no --config flag is given.
const EnvPath = "SCD_CONFIG"

type Config struct {
	TemplateMarker string `yaml:"template_marker"`

	MastersPart string `yaml:"masters_part"`
	PagesPart   string `yaml:"pages_part"`
	PageDir     string `yaml:"page_dir"`
	PagePrefix  string `yaml:"page_prefix"`
	PageSuffix  string `yaml:"page_suffix"`

	InputExt  string `yaml:"input_ext"`
	OutputExt string `yaml:"output_ext"`
	Delimiter string `yaml:"delimiter"`

	Workers     int   `yaml:"workers"`
	PartSizeCap int64 `yaml:"part_size_cap"`

	Fields []FieldRule `yaml:"fields"`

	Server ServerConfig `yaml:"server"`
}

// FieldRule is the YAML form of classifier.Rule.
type FieldRule struct {
	Marker string `yaml:"marker"`
	Field  string `yaml:"field"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		TemplateMarker: "Function block",
		MastersPart:    "visio/masters/masters.xml",
		PagesPart:      "visio/pages/pages.xml",
		PageDir:        "visio/pages/",
		PagePrefix:     "page",
		PageSuffix:     ".xml",
		InputExt:       ".vsdx",
		OutputExt:      ".csv",
		Delimiter:      ",",
		Workers:        1,
		PartSizeCap:    64 << 20,
		Fields: []FieldRule{
			{Marker: "FB", Field: "type"},
			{Marker: "Tag", Field: "tag"},
			{Marker: "Info", Field: "description"},
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty path
// falls back to $SCD_CONFIG, and to the plain defaults when that is unset too.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	required := []struct{ key, val string }{
		{"template_marker", c.TemplateMarker},
		{"masters_part", c.MastersPart},
		{"pages_part", c.PagesPart},
		{"page_dir", c.PageDir},
		{"input_ext", c.InputExt},
		{"output_ext", c.OutputExt},
	}
	for _, r := range required {
		if r.val == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", r.key))
		}
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 || c.Delimiter == "\n" {
		errs = append(errs, fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.PartSizeCap <= 0 {
		errs = append(errs, fmt.Errorf("part_size_cap must be positive"))
	}
	if _, err := c.Rules(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Rules converts the configured field table for the classifier.
func (c Config) Rules() ([]classifier.Rule, error) {
	if len(c.Fields) == 0 {
		return nil, errors.New("fields must list at least one rule")
	}
	rules := make([]classifier.Rule, 0, len(c.Fields))
	for i, f := range c.Fields {
		field, ok := models.ParseField(f.Field)
		if !ok {
			return nil, fmt.Errorf("fields[%d]: unknown field %q", i, f.Field)
		}
		if f.Marker == "" {
			return nil, fmt.Errorf("fields[%d]: empty marker", i)
		}
		rules = append(rules, classifier.Rule{Marker: f.Marker, Field: field})
	}
	return rules, nil
}

// Classifier builds the row classifier for this config.
func (c Config) Classifier() (*classifier.Classifier, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	return classifier.NewWithRules(rules)
}
