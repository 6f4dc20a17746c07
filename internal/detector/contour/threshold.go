package contour

import "image"

// otsuLevel returns the threshold level for segment.Threshold: values at or
// above it are foreground.
func otsuLevel(pix []uint8) uint8 {
	if len(pix) == 0 {
		return 128
	}
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}

	total := len(pix)
	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var sumB, best float64
	wB, threshold := 0, 0
	for t := range 256 {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		meanB := sumB / float64(wB)
		meanF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = t
		}
	}
	if threshold >= 255 {
		return 255
	}
	return uint8(threshold + 1)
}

// borderWhiteRatio is the fraction of white pixels on the image frame.
func borderWhiteRatio(m *image.Gray) float64 {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	white, n := 0, 0
	count := func(x, y int) {
		n++
		if m.Pix[y*m.Stride+x] >= 128 {
			white++
		}
	}
	for x := range w {
		count(x, 0)
		if h > 1 {
			count(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		count(0, y)
		if w > 1 {
			count(w-1, y)
		}
	}
	return float64(white) / float64(n)
}
