package geometry

import (
	"errors"
	"math"
)

// ErrSingularMatrix is returned when a matrix has no usable inverse.
var ErrSingularMatrix = errors.New("geometry: singular matrix")

// DetEpsilon is the smallest determinant magnitude treated as invertible.
const DetEpsilon = 1e-12

// Matrix3 is a row-major 3x3 matrix acting on homogeneous 2D points.
//
//	| m[0] m[1] m[2] |
//	| m[3] m[4] m[5] |
//	| m[6] m[7] m[8] |
type Matrix3 [9]float64

// Identity returns the identity transform.
func Identity() Matrix3 { return Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// Translate returns a pure translation.
func Translate(tx, ty float64) Matrix3 { return Matrix3{1, 0, tx, 0, 1, ty, 0, 0, 1} }

// ScaleMatrix returns a scaling about the origin.
func ScaleMatrix(sx, sy float64) Matrix3 { return Matrix3{sx, 0, 0, 0, sy, 0, 0, 0, 1} }

// Mul returns m * n, so the result applies n first.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var r Matrix3
	for i := range 3 {
		for j := range 3 {
			r[i*3+j] = m[i*3]*n[j] + m[i*3+1]*n[3+j] + m[i*3+2]*n[6+j]
		}
	}
	return r
}

// Det returns the determinant.
func (m Matrix3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse returns the inverse via the adjugate, normalised so the bottom-right
// entry is 1 when it is not near zero.
func (m Matrix3) Inverse() (Matrix3, error) {
	det := m.Det()
	if math.Abs(det) < DetEpsilon || math.IsNaN(det) || math.IsInf(det, 0) {
		return Matrix3{}, ErrSingularMatrix
	}
	adj := Matrix3{
		m[4]*m[8] - m[5]*m[7], m[2]*m[7] - m[1]*m[8], m[1]*m[5] - m[2]*m[4],
		m[5]*m[6] - m[3]*m[8], m[0]*m[8] - m[2]*m[6], m[2]*m[3] - m[0]*m[5],
		m[3]*m[7] - m[4]*m[6], m[1]*m[6] - m[0]*m[7], m[0]*m[4] - m[1]*m[3],
	}
	inv := adj.Scale(1 / det)
	if math.Abs(inv[8]) > DetEpsilon {
		inv = inv.Scale(1 / inv[8])
	}
	if !inv.IsFinite() {
		return Matrix3{}, ErrSingularMatrix
	}
	return inv, nil
}

// Scale multiplies every entry by f.
func (m Matrix3) Scale(f float64) Matrix3 {
	for i := range m {
		m[i] *= f
	}
	return m
}

// Apply maps (x, y) through the projective transform. ok is false when the
// point lands on the line at infinity.
func (m Matrix3) Apply(x, y float64) (float64, float64, bool) {
	w := m[6]*x + m[7]*y + m[8]
	if math.Abs(w) < DetEpsilon {
		return 0, 0, false
	}
	return (m[0]*x + m[1]*y + m[2]) / w, (m[3]*x + m[4]*y + m[5]) / w, true
}

// ApplyPoint is Apply for a Point.
func (m Matrix3) ApplyPoint(p Point) (Point, bool) {
	x, y, ok := m.Apply(p.X, p.Y)
	return Point{X: x, Y: y}, ok
}

// IsFinite reports whether every coefficient is a finite number.
func (m Matrix3) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
