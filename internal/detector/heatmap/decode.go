package heatmap

import (
	"fmt"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// Decode turns [1, 4, h, w] heatmaps into corners in a srcW x srcH image.
// Each corner is the channel's peak refined by the value-weighted centroid of
// its 3x3 neighbourhood. Confidence is the mean peak value. Channels whose
// peak is below threshold are not corners; fewer than four is ErrNoCard.
func Decode(data []float32, shape []int64, srcW, srcH int, threshold float32) (detector.Result, error) {
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 4 {
		return detector.Result{}, fmt.Errorf("expected heatmaps of shape [1,4,h,w], got %v", shape)
	}
	h, w := int(shape[2]), int(shape[3])
	if h <= 0 || w <= 0 || len(data) != 4*h*w {
		return detector.Result{}, fmt.Errorf("heatmap data length %d does not match shape %v", len(data), shape)
	}
	if srcW <= 0 || srcH <= 0 {
		return detector.Result{}, fmt.Errorf("invalid source size %dx%d", srcW, srcH)
	}

	sx := float64(srcW) / float64(w)
	sy := float64(srcH) / float64(h)
	plane := h * w

	var res detector.Result
	res.Backend = Backend
	found := 0
	var peakSum float64
	for c := range 4 {
		m := data[c*plane : (c+1)*plane]
		px, py, peak := argmax(m, w)
		if peak < threshold {
			continue
		}
		found++
		peakSum += float64(peak)
		cx, cy := refine(m, w, h, px, py)
		res.Corners[c] = geometry.Point{X: (cx+0.5)*sx - 0.5, Y: (cy+0.5)*sy - 0.5}
	}
	if found < 4 {
		return detector.Result{}, &detector.CornerCountError{Found: found}
	}
	res.Confidence = min(max(peakSum/4, 0), 1)
	return res, nil
}

func argmax(m []float32, w int) (int, int, float32) {
	best := 0
	for i, v := range m {
		if v > m[best] {
			best = i
		}
	}
	return best % w, best / w, m[best]
}

// refine returns the weighted centroid of the 3x3 window around (px, py).
func refine(m []float32, w, h, px, py int) (float64, float64) {
	var sw, sx, sy float64
	for y := max(py-1, 0); y <= min(py+1, h-1); y++ {
		for x := max(px-1, 0); x <= min(px+1, w-1); x++ {
			v := float64(m[y*w+x])
			if v <= 0 {
				continue
			}
			sw += v
			sx += v * float64(x)
			sy += v * float64(y)
		}
	}
	if sw == 0 {
		return float64(px), float64(py)
	}
	return sx / sw, sy / sw
}
