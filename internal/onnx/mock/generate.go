// Package mock builds synthetic model outputs for exercising heatmap decoding
// without a model file.
package mock

import (
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// Heatmaps is a synthetic [1, C, H, W] output tensor.
type Heatmaps struct {
	Data  []float32
	Shape []int64
}

// Channels returns C.
func (m Heatmaps) Channels() int {
	if len(m.Shape) != 4 {
		return 0
	}
	return int(m.Shape[1])
}

// NewUniform returns c channels of size w x h filled with value.
func NewUniform(c, w, h int, value float32) Heatmaps {
	if c <= 0 || w <= 0 || h <= 0 {
		return Heatmaps{}
	}
	data := make([]float32, c*w*h)
	v := clamp01(value)
	for i := range data {
		data[i] = v
	}
	return Heatmaps{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}
}

// NewCornerHeatmaps returns one Gaussian blob per corner, channel i peaking
// at corners[i] with the given height. Coordinates are in heatmap pixels.
func NewCornerHeatmaps(w, h int, corners [4]geometry.Point, peaks [4]float32, sigma float64) Heatmaps {
	if w <= 0 || h <= 0 || sigma <= 0 {
		return Heatmaps{}
	}
	plane := w * h
	data := make([]float32, 4*plane)
	inv2s2 := 1 / (2 * sigma * sigma)
	for c, p := range corners {
		off := c * plane
		for y := range h {
			for x := range w {
				dx, dy := float64(x)-p.X, float64(y)-p.Y
				data[off+y*w+x] = clamp01(peaks[c] * float32(math.Exp(-(dx*dx+dy*dy)*inv2s2)))
			}
		}
	}
	return Heatmaps{Data: data, Shape: []int64{1, 4, int64(h), int64(w)}}
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
