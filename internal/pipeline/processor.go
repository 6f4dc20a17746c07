// Package pipeline wires a corner detector, the rectification pipeline and the
// optional post-steps (barcode decoding, result storage) into one call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/common"
	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/store"
)

// Request is one image to rectify.
type Request struct {
	Image image.Image
	// Corners bypasses the detector when set.
	Corners    *[4]geometry.Point
	Confidence *float64 // used with Corners; nil means 1
	Barcodes   bool
	Save       bool
}

// Timings records the duration of each step.
type Timings struct {
	Detect  time.Duration `json:"detect"`
	Rectify time.Duration `json:"rectify"`
	Barcode time.Duration `json:"barcode"`
	Save    time.Duration `json:"save"`
	Total   time.Duration `json:"total"`
}

// Outcome is a successful request.
type Outcome struct {
	Detection detector.Result
	Rectified *rectify.Result
	Barcodes  []barcode.Result
	Saved     *store.Entry
	Timings   Timings
}

// Processor runs requests. It is safe for concurrent use when its detector is.
type Processor struct {
	det      detector.Detector
	rect     *rectify.Pipeline
	barcodes *barcode.Decoder
	store    *store.Store
}

// Builder constructs a Processor with fluent configuration.
type Builder struct {
	det      detector.Detector
	rectCfg  rectify.Config
	stages   *rectify.Stages
	barcodes *barcode.Decoder
	store    *store.Store
}

// NewBuilder starts from the default rectify configuration.
func NewBuilder() *Builder { return &Builder{rectCfg: rectify.DefaultConfig()} }

// WithDetector sets the corner detector.
func (b *Builder) WithDetector(d detector.Detector) *Builder {
	b.det = d
	return b
}

// WithRectifyConfig replaces the rectify configuration.
func (b *Builder) WithRectifyConfig(cfg rectify.Config) *Builder {
	b.rectCfg = cfg
	return b
}

// WithStages swaps individual rectify stages.
func (b *Builder) WithStages(s rectify.Stages) *Builder {
	b.stages = &s
	return b
}

// WithBarcodes enables barcode decoding for requests that ask for it.
func (b *Builder) WithBarcodes(d *barcode.Decoder) *Builder {
	b.barcodes = d
	return b
}

// WithStore enables saving results.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// Build validates the configuration and returns a Processor.
func (b *Builder) Build() (*Processor, error) {
	rect, err := rectify.NewPipeline(b.rectCfg)
	if err != nil {
		return nil, err
	}
	if b.stages != nil {
		rect = rect.WithStages(*b.stages)
	}
	slog.Debug("Processor initialized",
		"detector", b.det != nil, "barcodes", b.barcodes != nil, "store", b.store != nil)
	return &Processor{det: b.det, rect: rect, barcodes: b.barcodes, store: b.store}, nil
}

// Detector returns the configured detector, which may be nil.
func (p *Processor) Detector() detector.Detector { return p.det }

// Store returns the configured store, which may be nil.
func (p *Processor) Store() *store.Store { return p.store }

// RectifyConfig returns the rectify configuration in use.
func (p *Processor) RectifyConfig() rectify.Config { return p.rect.Config() }

// Close releases the detector.
func (p *Processor) Close() error {
	if p.det == nil {
		return nil
	}
	return detector.Close(p.det)
}

// Process detects (unless corners are given), rectifies and runs the
// requested post-steps. Failures before the post-steps are *rectify.Error.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	if req.Image == nil {
		return nil, errors.New("pipeline: nil image")
	}
	total := common.NewTimer()
	out := &Outcome{}

	t := common.NewTimer()
	det, err := p.detect(ctx, req)
	if err != nil {
		return nil, rectify.WrapDetect(err)
	}
	out.Detection = det
	out.Timings.Detect = t.Stop()

	t = common.NewTimer()
	res, err := p.rect.Rectify(ctx, req.Image, det)
	if err != nil {
		return nil, err
	}
	out.Rectified = res
	out.Timings.Rectify = t.Stop()

	if req.Barcodes && p.barcodes != nil {
		t = common.NewTimer()
		codes, err := p.barcodes.Decode(ctx, res.Image)
		if err != nil {
			return nil, fmt.Errorf("decode barcodes: %w", err)
		}
		out.Barcodes = codes
		out.Timings.Barcode = t.Stop()
	}

	if req.Save && p.store != nil {
		t = common.NewTimer()
		entry, err := p.store.Save(res.Image)
		if err != nil {
			return nil, fmt.Errorf("store result: %w", err)
		}
		out.Saved = &entry
		out.Timings.Save = t.Stop()
	}

	out.Timings.Total = total.Stop()
	slog.Debug("Card processed",
		"backend", det.Backend,
		"confidence", det.Confidence,
		"size", res.Size.String(),
		"total", out.Timings.Total)
	return out, nil
}

func (p *Processor) detect(ctx context.Context, req Request) (detector.Result, error) {
	if req.Corners != nil {
		conf := 1.0
		if req.Confidence != nil {
			conf = *req.Confidence
		}
		return detector.Result{Corners: *req.Corners, Confidence: conf, Backend: "client"}, nil
	}
	if p.det == nil {
		return detector.Result{}, errors.New("no detector configured and no corners supplied")
	}
	return p.det.Detect(ctx, req.Image)
}
