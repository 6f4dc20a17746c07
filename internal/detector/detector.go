// Package detector defines the corner-detection capability consumed by the
// rectification pipeline. Concrete backends live in sub-packages.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// ErrNoCard is returned when a backend cannot find four card corners.
var ErrNoCard = errors.New("no card detected")

// Result holds the four unordered corners of a card plus a confidence in [0,1].
type Result struct {
	Corners    [4]geometry.Point `json:"corners"`
	Confidence float64           `json:"confidence"`
	Backend    string            `json:"backend,omitempty"`
}

// Detector finds the four corners of a card in an image. Implementations
// must be safe for concurrent use or document otherwise.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Result, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, img image.Image) (Result, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, img image.Image) (Result, error) { return f(ctx, img) }

// CornerCountError reports a backend that found the wrong number of corners.
type CornerCountError struct {
	Found int
}

func (e *CornerCountError) Error() string {
	return fmt.Sprintf("%v: found %d corners, want 4", ErrNoCard, e.Found)
}

// Is makes errors.Is(err, ErrNoCard) hold.
func (e *CornerCountError) Is(target error) bool { return target == ErrNoCard }

// FromPoints builds a Result from a polygon, failing unless it has exactly four points.
func FromPoints(pts []geometry.Point, confidence float64, backend string) (Result, error) {
	if len(pts) != 4 {
		return Result{}, &CornerCountError{Found: len(pts)}
	}
	return Result{
		Corners:    [4]geometry.Point{pts[0], pts[1], pts[2], pts[3]},
		Confidence: confidence,
		Backend:    backend,
	}, nil
}

// Close releases the detector's resources if it holds any.
func Close(d Detector) error {
	if c, ok := d.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ParseCorners parses "x1,y1,x2,y2,x3,y3,x4,y4" into four points.
func ParseCorners(s string) ([4]geometry.Point, error) {
	var pts [4]geometry.Point
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) != 8 {
		return pts, fmt.Errorf("corners: want 8 numbers, got %d", len(fields))
	}
	vals := make([]float64, 8)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return pts, fmt.Errorf("corners: value %d: %w", i+1, err)
		}
		vals[i] = v
	}
	for i := range 4 {
		pts[i] = geometry.Pt(vals[2*i], vals[2*i+1])
	}
	return pts, nil
}
