package rectify

import (
	"errors"
	"fmt"
	"image/color"
)

// Interpolation selects how the warper samples the source raster.
type Interpolation string

const (
	InterpolationBilinear Interpolation = "bilinear"
	InterpolationNearest  Interpolation = "nearest"
)

// ID-1 card output (85.60 x 53.98 mm) at roughly 255 dpi.
const (
	CardWidth  = 860
	CardHeight = 540
)

// Config holds the thresholds used by every stage of the pipeline.
type Config struct {
	ConfidenceThreshold float64       // detections below this are rejected (inclusive bound)
	MinDimension        int           // smallest accepted output side in pixels
	MaxDimension        int           // largest accepted output side in pixels
	MinCornerSeparation float64       // minimum distance between adjacent corners in pixels
	MinQuadArea         float64       // minimum signed area of the ordered quad in pixels^2
	Interpolation       Interpolation // bilinear or nearest
	Background          color.NRGBA   // fill for samples outside the source raster
	OutputWidth         int           // fixed output width, 0 = estimate from corners
	OutputHeight        int           // fixed output height, 0 = estimate from corners
	// Debug dumping
	DebugDir string // if non-empty, writes overlay and output PNGs here
}

// DefaultConfig returns sensible defaults for rectification.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		MinDimension:        16,
		MaxDimension:        8192,
		MinCornerSeparation: 8,
		MinQuadArea:         256,
		Interpolation:       InterpolationBilinear,
		Background:          color.NRGBA{A: 255},
	}
}

// FixedSize reports whether the output size is pinned by configuration.
func (c Config) FixedSize() (TargetSize, bool) {
	if c.OutputWidth > 0 && c.OutputHeight > 0 {
		return TargetSize{Width: c.OutputWidth, Height: c.OutputHeight}, true
	}
	return TargetSize{}, false
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if !(c.ConfidenceThreshold >= 0 && c.ConfidenceThreshold <= 1) {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	// A homography needs at least a 2x2 target.
	if c.MinDimension < 2 {
		return fmt.Errorf("min dimension must be at least 2, got %d", c.MinDimension)
	}
	if c.MaxDimension < c.MinDimension {
		return fmt.Errorf("max dimension %d below min dimension %d", c.MaxDimension, c.MinDimension)
	}
	if c.MinCornerSeparation < 0 || c.MinQuadArea < 0 {
		return errors.New("corner separation and quad area thresholds must be non-negative")
	}
	switch c.Interpolation {
	case InterpolationBilinear, InterpolationNearest, "":
	default:
		return fmt.Errorf("unknown interpolation %q", c.Interpolation)
	}
	if (c.OutputWidth > 0) != (c.OutputHeight > 0) {
		return errors.New("output width and height must be set together")
	}
	if size, ok := c.FixedSize(); ok {
		if err := checkBounds(size, c); err != nil {
			return fmt.Errorf("fixed output size: %w", err)
		}
	}
	return nil
}
