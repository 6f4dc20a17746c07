package mock

import (
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

func TestNewUniform(t *testing.T) {
	m := NewUniform(4, 10, 5, 1.7)
	if m.Channels() != 4 || len(m.Data) != 200 {
		t.Fatalf("unexpected shape %v len %d", m.Shape, len(m.Data))
	}
	for _, v := range m.Data {
		if v != 1 {
			t.Fatalf("value not clamped: %f", v)
		}
	}
	if NewUniform(0, 1, 1, 0).Data != nil {
		t.Fatal("expected empty heatmaps")
	}
}

func TestNewCornerHeatmaps_PeaksAtCorners(t *testing.T) {
	corners := [4]geometry.Point{{X: 2, Y: 3}, {X: 17, Y: 2}, {X: 16, Y: 12}, {X: 3, Y: 13}}
	m := NewCornerHeatmaps(20, 16, corners, [4]float32{1, 0.9, 0.8, 0.7}, 1.5)
	if m.Channels() != 4 {
		t.Fatalf("channels = %d", m.Channels())
	}
	plane := 20 * 16
	for c, p := range corners {
		best, bx, by := float32(-1), 0, 0
		for y := range 16 {
			for x := range 20 {
				if v := m.Data[c*plane+y*20+x]; v > best {
					best, bx, by = v, x, y
				}
			}
		}
		if bx != int(p.X) || by != int(p.Y) {
			t.Fatalf("channel %d peaks at (%d,%d), want %v", c, bx, by, p)
		}
	}
}
