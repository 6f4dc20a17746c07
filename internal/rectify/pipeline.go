package rectify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/common"
	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// Stages are the replaceable steps of the pipeline. A nil field falls back to
// the default implementation bound to the pipeline's Config.
type Stages struct {
	Order      func(pts [4]geometry.Point) (geometry.Quad, error)
	Estimate   func(q geometry.Quad) (TargetSize, error)
	Homography func(q geometry.Quad, size TargetSize) (geometry.Matrix3, error)
	Warp       func(src image.Image, h geometry.Matrix3, size TargetSize) (*image.NRGBA, error)
}

// DefaultStages binds the package's stage functions to cfg.
func DefaultStages(cfg Config) Stages {
	opts := WarpOptions{Interpolation: cfg.Interpolation, Background: cfg.Background}
	return Stages{
		Order:      func(pts [4]geometry.Point) (geometry.Quad, error) { return OrderCorners(pts, cfg) },
		Estimate:   func(q geometry.Quad) (TargetSize, error) { return EstimateSize(q, cfg) },
		Homography: EstimateHomography,
		Warp: func(src image.Image, h geometry.Matrix3, size TargetSize) (*image.NRGBA, error) {
			return Warp(src, h, size, opts)
		},
	}
}

// Timings records how long each stage took.
type Timings struct {
	Order      time.Duration `json:"order"`
	Estimate   time.Duration `json:"estimate"`
	Homography time.Duration `json:"homography"`
	Warp       time.Duration `json:"warp"`
	Total      time.Duration `json:"total"`
}

// Result is a successful rectification.
type Result struct {
	Image      *image.NRGBA
	Quad       geometry.Quad
	Size       TargetSize
	Transform  geometry.Matrix3
	Confidence float64
	Timings    Timings
}

// Pipeline turns one detection into a rectified image. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	stages Stages
}

// NewPipeline validates cfg and returns a pipeline using the default stages.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Interpolation == "" {
		cfg.Interpolation = InterpolationBilinear
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rectify config: %w", err)
	}
	return &Pipeline{cfg: cfg, stages: DefaultStages(cfg)}, nil
}

// WithStages returns a copy of p with the non-nil stages of s swapped in.
func (p *Pipeline) WithStages(s Stages) *Pipeline {
	c := *p
	if s.Order != nil {
		c.stages.Order = s.Order
	}
	if s.Estimate != nil {
		c.stages.Estimate = s.Estimate
	}
	if s.Homography != nil {
		c.stages.Homography = s.Homography
	}
	if s.Warp != nil {
		c.stages.Warp = s.Warp
	}
	return &c
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Rectify validates the detection, orders its corners, sizes the output,
// estimates the homography and warps src. Each step short-circuits; errors
// are *Error values carrying the failing Stage and kind.
func (p *Pipeline) Rectify(ctx context.Context, src image.Image, det detector.Result) (*Result, error) {
	if src == nil {
		return nil, errors.New("rectify: nil source image")
	}
	total := common.NewTimer()

	if err := p.checkConfidence(det.Confidence); err != nil {
		return nil, wrap(StageConfidence, err)
	}

	res := &Result{Confidence: det.Confidence}
	var err error

	t := common.NewTimer()
	if res.Quad, err = p.stages.Order(det.Corners); err != nil {
		return nil, wrap(StageOrder, err)
	}
	res.Timings.Order = t.Stop()
	if err := ctx.Err(); err != nil {
		return nil, wrap(StageOrder, err)
	}

	t = common.NewTimer()
	if res.Size, err = p.stages.Estimate(res.Quad); err != nil {
		return nil, wrap(StageDimensions, err)
	}
	res.Timings.Estimate = t.Stop()

	t = common.NewTimer()
	if res.Transform, err = p.stages.Homography(res.Quad, res.Size); err != nil {
		return nil, wrap(StageHomography, err)
	}
	res.Timings.Homography = t.Stop()
	if err := ctx.Err(); err != nil {
		return nil, wrap(StageHomography, err)
	}

	t = common.NewTimer()
	if res.Image, err = p.stages.Warp(src, res.Transform, res.Size); err != nil {
		return nil, wrap(StageWarp, err)
	}
	res.Timings.Warp = t.Stop()
	res.Timings.Total = total.Stop()

	if p.cfg.DebugDir != "" {
		if err := dumpDebug(p.cfg.DebugDir, src, res); err != nil {
			slog.Debug("rectify debug dump failed", "dir", p.cfg.DebugDir, "error", err)
		}
	}
	return res, nil
}

// checkConfidence rejects c unless it lies in [threshold, 1]. NaN fails
// every comparison and is rejected with it.
func (p *Pipeline) checkConfidence(c float64) error {
	if !(c >= 0 && c <= 1) {
		return fmt.Errorf("%w: %v outside [0,1]", ErrLowConfidence, c)
	}
	if !(c >= p.cfg.ConfidenceThreshold) {
		return fmt.Errorf("%w: %.3f < %.3f", ErrLowConfidence, c, p.cfg.ConfidenceThreshold)
	}
	return nil
}
