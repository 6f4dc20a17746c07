package rectify

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/disintegration/imaging"
)

// boundsSlack absorbs floating-point error for samples that land exactly on
// the source border.
const boundsSlack = 1e-6

// WarpOptions controls sampling in Warp.
type WarpOptions struct {
	Interpolation Interpolation
	Background    color.NRGBA
}

// Warp resamples src into a new size.Width x size.Height raster. h maps source
// coordinates to output coordinates; every output pixel is pulled from the
// source through h's inverse. Samples that fall outside the source get
// opts.Background. src is never modified.
func Warp(src image.Image, h geometry.Matrix3, size TargetSize, opts WarpOptions) (*image.NRGBA, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %s", size)
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInverseSingular, err)
	}

	s := toNRGBA(src)
	out := image.NewNRGBA(image.Rect(0, 0, size.Width, size.Height))
	sample := sampleBilinear
	if opts.Interpolation == InterpolationNearest {
		sample = sampleNearest
	}
	bg := [4]uint8{opts.Background.R, opts.Background.G, opts.Background.B, opts.Background.A}

	for v := range size.Height {
		row := out.Pix[v*out.Stride : v*out.Stride+size.Width*4]
		for u := range size.Width {
			px := row[u*4 : u*4+4 : u*4+4]
			sx, sy, ok := inv.Apply(float64(u), float64(v))
			if !ok || !sample(s, sx, sy, px) {
				copy(px, bg[:])
			}
		}
	}
	return out, nil
}

// toNRGBA returns src itself when it is already a zero-origin NRGBA raster,
// otherwise a converted copy.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(src)
}

// inside clamps coordinates that sit within boundsSlack of the raster and
// reports whether the result lies on the raster.
func inside(s *image.NRGBA, x, y float64) (float64, float64, bool) {
	maxX := float64(s.Rect.Dx() - 1)
	maxY := float64(s.Rect.Dy() - 1)
	if x < -boundsSlack || y < -boundsSlack || x > maxX+boundsSlack || y > maxY+boundsSlack {
		return 0, 0, false
	}
	return math.Min(math.Max(x, 0), maxX), math.Min(math.Max(y, 0), maxY), true
}

func sampleNearest(s *image.NRGBA, x, y float64, dst []uint8) bool {
	x, y, ok := inside(s, x, y)
	if !ok {
		return false
	}
	i := int(math.Round(y))*s.Stride + int(math.Round(x))*4
	copy(dst, s.Pix[i:i+4])
	return true
}

func sampleBilinear(s *image.NRGBA, x, y float64, dst []uint8) bool {
	x, y, ok := inside(s, x, y)
	if !ok {
		return false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= s.Rect.Dx() {
		x1 = x0
	}
	if y1 >= s.Rect.Dy() {
		y1 = y0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	i00 := y0*s.Stride + x0*4
	i10 := y0*s.Stride + x1*4
	i01 := y1*s.Stride + x0*4
	i11 := y1*s.Stride + x1*4
	for c := range 4 {
		top := lerp(float64(s.Pix[i00+c]), float64(s.Pix[i10+c]), fx)
		bottom := lerp(float64(s.Pix[i01+c]), float64(s.Pix[i11+c]), fx)
		dst[c] = uint8(lerp(top, bottom, fy) + 0.5)
	}
	return true
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
