package geometry

import "math"

// Corner indexes into a Quad.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomRight:
		return "bottom-right"
	case BottomLeft:
		return "bottom-left"
	default:
		return "unknown"
	}
}

// Quad is an ordered quadrilateral: top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

// Edge lengths of the quadrilateral.
func (q Quad) Top() float64    { return q[TopLeft].Dist(q[TopRight]) }
func (q Quad) Bottom() float64 { return q[BottomLeft].Dist(q[BottomRight]) }
func (q Quad) Left() float64   { return q[TopLeft].Dist(q[BottomLeft]) }
func (q Quad) Right() float64  { return q[TopRight].Dist(q[BottomRight]) }

// SignedArea is the shoelace area of the corners taken in order. With image
// coordinates a TL,TR,BR,BL walk gives a positive value.
func (q Quad) SignedArea() float64 {
	var sum float64
	for i := range 4 {
		a, b := q[i], q[(i+1)%4]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// MinEdge returns the shortest of the four sides.
func (q Quad) MinEdge() float64 {
	return math.Min(math.Min(q.Top(), q.Bottom()), math.Min(q.Left(), q.Right()))
}

// IsConvex reports whether all turns have the same orientation.
func (q Quad) IsConvex() bool {
	var pos, neg bool
	for i := range 4 {
		c := Cross(q[i], q[(i+1)%4], q[(i+2)%4])
		if c > 0 {
			pos = true
		} else if c < 0 {
			neg = true
		}
	}
	return !(pos && neg)
}

// Scale multiplies every corner by (sx, sy).
func (q Quad) Scale(sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// Bounds returns the axis-aligned bounding box as min and max corners.
func (q Quad) Bounds() (Point, Point) {
	minP, maxP := q[0], q[0]
	for _, p := range q[1:] {
		minP.X = math.Min(minP.X, p.X)
		minP.Y = math.Min(minP.Y, p.Y)
		maxP.X = math.Max(maxP.X, p.X)
		maxP.Y = math.Max(maxP.Y, p.Y)
	}
	return minP, maxP
}
