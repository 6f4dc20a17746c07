package rectify

import (
	"fmt"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
)

// OrderCorners assigns the four unordered points to TL, TR, BR, BL.
//
// With s = x + y and d = y - x: TL has the smallest s, BR the largest s,
// TR the smallest d and BL the largest d. Ties are broken on the point
// coordinates so the result does not depend on input order.
func OrderCorners(pts [4]geometry.Point, cfg Config) (geometry.Quad, error) {
	for i, p := range pts {
		if !p.IsFinite() {
			return geometry.Quad{}, fmt.Errorf("%w: corner %d is not finite", ErrDegenerate, i)
		}
	}

	sum := func(p geometry.Point) float64 { return p.X + p.Y }
	diff := func(p geometry.Point) float64 { return p.Y - p.X }

	q := geometry.Quad{
		geometry.TopLeft:     pick(pts, sum, false),
		geometry.TopRight:    pick(pts, diff, false),
		geometry.BottomRight: pick(pts, sum, true),
		geometry.BottomLeft:  pick(pts, diff, true),
	}

	for i := range 4 {
		for j := i + 1; j < 4; j++ {
			if q[i] == q[j] {
				return geometry.Quad{}, fmt.Errorf("%w: %s and %s resolve to the same point %v",
					ErrDegenerate, geometry.Corner(i), geometry.Corner(j), q[i])
			}
		}
	}

	if area := q.SignedArea(); area < cfg.MinQuadArea {
		return geometry.Quad{}, fmt.Errorf("%w: quad area %.1f below %.1f", ErrDegenerate, area, cfg.MinQuadArea)
	}

	for i := range 4 {
		a, b := q[i], q[(i+1)%4]
		if d := a.Dist(b); d < cfg.MinCornerSeparation {
			return geometry.Quad{}, fmt.Errorf("%w: %s and %s only %.1f px apart",
				ErrDegenerate, geometry.Corner(i), geometry.Corner((i+1)%4), d)
		}
	}

	return q, nil
}

// pick returns the point with the smallest key, or the largest key when largest is set.
func pick(pts [4]geometry.Point, key func(geometry.Point) float64, largest bool) geometry.Point {
	best := pts[0]
	for _, p := range pts[1:] {
		if better(key(p), key(best), p, best, largest) {
			best = p
		}
	}
	return best
}

func better(kp, kb float64, p, b geometry.Point, largest bool) bool {
	if kp != kb {
		return (kp > kb) == largest
	}
	// Equal keys: order on the coordinates so ties are input-order independent.
	if p.X != b.X {
		return (p.X > b.X) == largest
	}
	return (p.Y > b.Y) == largest
}
