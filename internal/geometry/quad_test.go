package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuad_EdgesAndArea(t *testing.T) {
	q := Quad{Pt(0, 0), Pt(40, 0), Pt(40, 30), Pt(0, 30)}

	assert.InDelta(t, 40.0, q.Top(), 1e-12)
	assert.InDelta(t, 40.0, q.Bottom(), 1e-12)
	assert.InDelta(t, 30.0, q.Left(), 1e-12)
	assert.InDelta(t, 30.0, q.Right(), 1e-12)
	assert.InDelta(t, 30.0, q.MinEdge(), 1e-12)
	assert.InDelta(t, 1200.0, q.SignedArea(), 1e-9)
	assert.True(t, q.IsConvex())
}

func TestQuad_SignedAreaFlipsWithWinding(t *testing.T) {
	q := Quad{Pt(0, 0), Pt(0, 30), Pt(40, 30), Pt(40, 0)}
	assert.InDelta(t, -1200.0, q.SignedArea(), 1e-9)
}

func TestQuad_CollinearHasZeroArea(t *testing.T) {
	q := Quad{Pt(0, 0), Pt(10, 10), Pt(20, 20), Pt(30, 30)}
	assert.InDelta(t, 0.0, q.SignedArea(), 1e-9)
}

func TestQuad_SelfIntersectingIsNotConvex(t *testing.T) {
	// Bow-tie: TR and BR swapped.
	q := Quad{Pt(0, 0), Pt(40, 30), Pt(40, 0), Pt(0, 30)}
	assert.False(t, q.IsConvex())
}

func TestQuad_ScaleAndBounds(t *testing.T) {
	q := Quad{Pt(10, 20), Pt(50, 22), Pt(48, 60), Pt(12, 58)}
	s := q.Scale(2, 0.5)
	assert.Equal(t, Pt(20, 10), s[TopLeft])
	assert.Equal(t, Pt(100, 11), s[TopRight])

	minP, maxP := q.Bounds()
	assert.Equal(t, Pt(10, 20), minP)
	assert.Equal(t, Pt(50, 60), maxP)
}

func TestCorner_String(t *testing.T) {
	assert.Equal(t, "top-left", TopLeft.String())
	assert.Equal(t, "bottom-left", BottomLeft.String())
	assert.Equal(t, "unknown", Corner(9).String())
}
