package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/config"
	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/detector/contour"
	"github.com/MeKo-Tech/cardrectify/internal/detector/heatmap"
	"github.com/MeKo-Tech/cardrectify/internal/models"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/store"
)

// newDetector creates the backend named in spec.
func newDetector(spec config.DetectorSpec) (detector.Detector, error) {
	switch spec.Backend {
	case config.BackendContour:
		return contour.New(spec.Contour)
	case config.BackendHeatmap:
		if err := models.ValidateModelExists(spec.Heatmap.ModelPath); err != nil {
			return nil, err
		}
		return heatmap.New(spec.Heatmap)
	}
	return nil, fmt.Errorf("unknown detector backend %q", spec.Backend)
}

type processorOptions struct {
	// detector overrides the configured backend, e.g. a Static detector
	// for --corners.
	detector detector.Detector
	// noDetector builds a processor that only accepts client corners.
	noDetector bool
	withStore  bool
}

// newProcessor assembles a pipeline.Processor from cfg. The caller owns the
// result and must Close it.
func newProcessor(cfg *config.Config, opts processorOptions) (*pipeline.Processor, error) {
	rc, err := cfg.ToRectifyConfig()
	if err != nil {
		return nil, err
	}
	b := pipeline.NewBuilder().WithRectifyConfig(rc)

	det := opts.detector
	if det == nil && !opts.noDetector {
		if det, err = newDetector(cfg.ToDetectorConfig()); err != nil {
			return nil, fmt.Errorf("failed to create detector: %w", err)
		}
		slog.Debug("Detector initialized", "backend", cfg.Detector.Backend)
	}
	if det != nil {
		b = b.WithDetector(det)
	}

	bo, err := cfg.ToBarcodeOptions()
	if err != nil {
		return nil, err
	}
	b = b.WithBarcodes(barcode.NewDecoder(bo))

	if opts.withStore {
		st, err := store.New(cfg.ToStoreConfig())
		if err != nil {
			_ = detector.Close(det)
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		b = b.WithStore(st)
	}

	proc, err := b.Build()
	if err != nil {
		_ = detector.Close(det)
		return nil, err
	}
	return proc, nil
}
