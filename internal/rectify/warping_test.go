package rectify

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var black = color.NRGBA{A: 255}

func gradient(w, h int) *image.NRGBA {
	return testutil.GenerateCard(testutil.CardConfig{Width: w, Height: h})
}

func TestWarp_IdentityCopiesSource(t *testing.T) {
	src := gradient(40, 30)
	for _, interp := range []Interpolation{InterpolationBilinear, InterpolationNearest} {
		t.Run(string(interp), func(t *testing.T) {
			out, err := Warp(src, geometry.Identity(), TargetSize{Width: 40, Height: 30},
				WarpOptions{Interpolation: interp, Background: black})
			require.NoError(t, err)
			assert.Equal(t, src.Pix, out.Pix)
		})
	}
}

func TestWarp_OutOfBoundsGetsBackground(t *testing.T) {
	src := gradient(40, 30)
	bg := color.NRGBA{R: 1, G: 2, B: 3, A: 255}
	out, err := Warp(src, geometry.Translate(10, 0), TargetSize{Width: 40, Height: 30},
		WarpOptions{Interpolation: InterpolationBilinear, Background: bg})
	require.NoError(t, err)

	assert.Equal(t, bg, out.NRGBAAt(5, 5))
	assert.Equal(t, src.NRGBAAt(5, 5), out.NRGBAAt(15, 5))
}

func TestWarp_NearestUpscale(t *testing.T) {
	src := gradient(4, 4)
	out, err := Warp(src, geometry.ScaleMatrix(2, 2), TargetSize{Width: 8, Height: 8},
		WarpOptions{Interpolation: InterpolationNearest, Background: black})
	require.NoError(t, err)

	assert.Equal(t, src.NRGBAAt(1, 1), out.NRGBAAt(2, 2))
	assert.Equal(t, src.NRGBAAt(3, 0), out.NRGBAAt(6, 0))
	// (7,7) maps to (3.5,3.5), just past the last pixel centre.
	assert.Equal(t, black, out.NRGBAAt(7, 7))
}

func TestWarp_BilinearMidpoint(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 10, B: 200, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 100, G: 30, B: 100, A: 255})

	out, err := Warp(src, geometry.ScaleMatrix(2, 1), TargetSize{Width: 3, Height: 1},
		WarpOptions{Interpolation: InterpolationBilinear, Background: black})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 50, G: 20, B: 150, A: 255}, out.NRGBAAt(1, 0))
	assert.Equal(t, src.NRGBAAt(1, 0), out.NRGBAAt(2, 0))
}

func TestWarp_InverseSingular(t *testing.T) {
	_, err := Warp(gradient(4, 4), geometry.Matrix3{}, TargetSize{Width: 4, Height: 4}, WarpOptions{})
	assert.ErrorIs(t, err, ErrInverseSingular)
}

func TestWarp_InvalidSize(t *testing.T) {
	_, err := Warp(gradient(4, 4), geometry.Identity(), TargetSize{}, WarpOptions{})
	assert.Error(t, err)
}

func TestWarp_SourceUnchanged(t *testing.T) {
	src := gradient(50, 40)
	before := bytes.Clone(src.Pix)

	q := geometry.Quad{{X: 5, Y: 3}, {X: 45, Y: 8}, {X: 40, Y: 38}, {X: 2, Y: 30}}
	h, err := EstimateHomography(q, TargetSize{Width: 30, Height: 20})
	require.NoError(t, err)
	_, err = Warp(src, h, TargetSize{Width: 30, Height: 20}, WarpOptions{Background: black})
	require.NoError(t, err)

	assert.Equal(t, before, src.Pix)
}

func TestWarp_NonZeroOriginSource(t *testing.T) {
	full := gradient(40, 30)
	sub := full.SubImage(image.Rect(10, 10, 20, 20))

	out, err := Warp(sub, geometry.Identity(), TargetSize{Width: 10, Height: 10}, WarpOptions{Background: black})
	require.NoError(t, err)
	assert.Equal(t, full.NRGBAAt(10, 10), out.NRGBAAt(0, 0))
	assert.Equal(t, full.NRGBAAt(19, 19), out.NRGBAAt(9, 9))
}

func TestWarp_ConvertsOtherImageTypes(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	src.Pix[5] = 200 // (1,1)

	out, err := Warp(src, geometry.Identity(), TargetSize{Width: 4, Height: 4}, WarpOptions{Background: black})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 200, B: 200, A: 255}, out.NRGBAAt(1, 1))
}
