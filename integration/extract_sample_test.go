//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"scd-extractor/internal/config"
	"scd-extractor/internal/extractor"
	"scd-extractor/pkg/logger"
)

// Runs the pipeline over a real drawing, e.g.
// SCD_SAMPLE=~/drawings/plant.vsdx go test -tags integration ./integration
func TestSampleDrawing(t *testing.T) {
	path := os.Getenv("SCD_SAMPLE")
	if path == "" {
		t.Skip("skipping: SCD_SAMPLE not set")
	}

	pipe, err := extractor.NewPipeline(config.Default(), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := pipe.Run(ctx, path)
	if err != nil {
		t.Fatalf("extract %s: %v", path, err)
	}
	if len(res.Records) == 0 {
		t.Errorf("expected function blocks in %s", path)
	}
	for i, r := range res.Records {
		if r.Sheet == "" {
			t.Errorf("record %d has no sheet", i)
		}
	}

	again, err := pipe.Run(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Records) != len(res.Records) {
		t.Errorf("second run returned %d records, first %d", len(again.Records), len(res.Records))
	}
}
