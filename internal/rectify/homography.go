package rectify

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// pivotEpsilon bounds the pivots of the normalised 8x8 system.
const pivotEpsilon = 1e-10

// TargetCorners returns the output rectangle corners in TL, TR, BR, BL order.
func TargetCorners(size TargetSize) geometry.Quad {
	w := float64(size.Width - 1)
	h := float64(size.Height - 1)
	return geometry.Quad{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}

// EstimateHomography returns the transform mapping the ordered source quad
// onto the target rectangle.
func EstimateHomography(src geometry.Quad, size TargetSize) (geometry.Matrix3, error) {
	if size.Width < 2 || size.Height < 2 {
		return geometry.Matrix3{}, fmt.Errorf("%w: target %s has no area", ErrSingular, size)
	}
	return ComputeHomography(src, TargetCorners(size))
}

// ComputeHomography computes H with H(p[i]) = q[i] for the four
// correspondences. Both point sets are translated to their centroid and
// scaled to mean distance sqrt(2) before the direct linear transform is
// solved with h22 fixed to 1.
func ComputeHomography(p, q geometry.Quad) (geometry.Matrix3, error) {
	tp, pn, err := normalizePoints(p)
	if err != nil {
		return geometry.Matrix3{}, err
	}
	tq, qn, err := normalizePoints(q)
	if err != nil {
		return geometry.Matrix3{}, err
	}

	// Build 8x8 system A*h = b for the 8 unknowns (h00..h21), h22=1.
	var a [8][8]float64
	var b [8]float64
	for i := range 4 {
		X, Y := pn[i].X, pn[i].Y
		x, y := qn[i].X, qn[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		a[r] = [8]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x}
		b[r] = x
		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		a[r+1] = [8]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y}
		b[r+1] = y
	}

	h, ok := solve8x8(a, b)
	if !ok {
		return geometry.Matrix3{}, fmt.Errorf("%w: linear system has a pivot below %g", ErrSingular, pivotEpsilon)
	}
	hn := geometry.Matrix3{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}
	if !hn.IsFinite() {
		return geometry.Matrix3{}, fmt.Errorf("%w: non-finite coefficient", ErrSingular)
	}
	if det := hn.Det(); math.Abs(det) < 1e-9 {
		return geometry.Matrix3{}, fmt.Errorf("%w: determinant %g", ErrSingular, det)
	}

	tqInv, err := tq.Inverse()
	if err != nil {
		return geometry.Matrix3{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	m := tqInv.Mul(hn).Mul(tp)
	if math.Abs(m[8]) < geometry.DetEpsilon {
		return geometry.Matrix3{}, fmt.Errorf("%w: vanishing scale", ErrSingular)
	}
	m = m.Scale(1 / m[8])
	if !m.IsFinite() {
		return geometry.Matrix3{}, fmt.Errorf("%w: non-finite coefficient", ErrSingular)
	}
	return m, nil
}

// normalizePoints returns the similarity T and the transformed points.
func normalizePoints(q geometry.Quad) (geometry.Matrix3, geometry.Quad, error) {
	var cx, cy float64
	for _, p := range q {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4

	var md float64
	for _, p := range q {
		md += math.Hypot(p.X-cx, p.Y-cy)
	}
	md /= 4
	if md < geometry.DetEpsilon || math.IsNaN(md) || math.IsInf(md, 0) {
		return geometry.Matrix3{}, geometry.Quad{}, fmt.Errorf("%w: points coincide", ErrSingular)
	}

	s := math.Sqrt2 / md
	t := geometry.Matrix3{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}
	var out geometry.Quad
	for i, p := range q {
		out[i] = geometry.Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return t, out, nil
}

// solve8x8 runs Gauss-Jordan elimination with partial pivoting.
func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := range 8 {
		pivotRow := findPivotRow(a, col)
		if pivotRow == -1 {
			return [8]float64{}, false
		}
		if pivotRow != col {
			a[col], a[pivotRow] = a[pivotRow], a[col]
			b[col], b[pivotRow] = b[pivotRow], b[col]
		}
		normalizeRow(&a, &b, col)
		eliminateColumn(&a, &b, col)
	}
	return b, true
}

func findPivotRow(a [8][8]float64, col int) int {
	maxAbs := math.Abs(a[col][col])
	pivotRow := col
	for r := col + 1; r < 8; r++ {
		if v := math.Abs(a[r][col]); v > maxAbs {
			maxAbs = v
			pivotRow = r
		}
	}
	if maxAbs < pivotEpsilon {
		return -1
	}
	return pivotRow
}

func normalizeRow(a *[8][8]float64, b *[8]float64, row int) {
	div := a[row][row]
	for c := row; c < 8; c++ {
		a[row][c] /= div
	}
	b[row] /= div
}

func eliminateColumn(a *[8][8]float64, b *[8]float64, col int) {
	for r := range 8 {
		if r == col {
			continue
		}
		factor := a[r][col]
		if factor == 0 {
			continue
		}
		for c := col; c < 8; c++ {
			a[r][c] -= factor * a[col][c]
		}
		b[r] -= factor * b[col]
	}
}
