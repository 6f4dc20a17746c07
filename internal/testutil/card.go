package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CardConfig describes a synthetic card face.
type CardConfig struct {
	Width  int
	Height int
	Label  string // drawn near the top-left when non-empty
	Blocks bool   // adds a dark photo block and a stripe
}

// DefaultCardConfig returns an ID-1 shaped card small enough for fast tests.
func DefaultCardConfig() CardConfig {
	return CardConfig{Width: 240, Height: 150, Label: "ID CARD 0042", Blocks: true}
}

// GenerateCard draws a card whose colour encodes position: red grows with x,
// green grows with y. Smooth content keeps interpolation error small.
func GenerateCard(cfg CardConfig) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	wx := math.Max(float64(cfg.Width-1), 1)
	wy := math.Max(float64(cfg.Height-1), 1)
	for y := range cfg.Height {
		for x := range cfg.Width {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(math.Round(55 + 200*float64(x)/wx)),
				G: uint8(math.Round(55 + 200*float64(y)/wy)),
				B: 180,
				A: 255,
			})
		}
	}

	if cfg.Blocks {
		photo := image.Rect(cfg.Width*6/10, cfg.Height*3/10, cfg.Width*9/10, cfg.Height*8/10)
		draw.Draw(img, photo, image.NewUniform(color.NRGBA{R: 40, G: 40, B: 60, A: 255}), image.Point{}, draw.Src)
		stripe := image.Rect(cfg.Width/10, cfg.Height*7/10, cfg.Width/2, cfg.Height*7/10+4)
		draw.Draw(img, stripe, image.NewUniform(color.NRGBA{R: 20, G: 20, B: 20, A: 255}), image.Point{}, draw.Src)
	}

	if cfg.Label != "" {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.Black),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(cfg.Width/10, cfg.Height/5),
		}
		d.DrawString(cfg.Label)
	}
	return img
}

const squareSlack = 1e-9

// ProjectCard renders card into a canvasW x canvasH scene so that the card's
// corners land on quad (TL, TR, BR, BL). Pixels outside the card get bg.
//
// The mapping is built from the closed-form unit-square-to-quadrilateral
// transform, independent of the DLT solver under test.
func ProjectCard(card image.Image, quad geometry.Quad, canvasW, canvasH int, bg color.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	toQuad := SquareToQuad(quad)
	toSquare, err := toQuad.Inverse()
	if err != nil {
		return out
	}

	cb := card.Bounds()
	sw := float64(cb.Dx() - 1)
	sh := float64(cb.Dy() - 1)
	for y := range canvasH {
		for x := range canvasW {
			u, v, ok := toSquare.Apply(float64(x), float64(y))
			if !ok || u < -squareSlack || v < -squareSlack || u > 1+squareSlack || v > 1+squareSlack {
				continue
			}
			out.SetNRGBA(x, y, SampleBilinear(card, u*sw, v*sh))
		}
	}
	return out
}

// SquareToQuad maps the unit square (0,0),(1,0),(1,1),(0,1) onto q.
func SquareToQuad(q geometry.Quad) geometry.Matrix3 {
	x0, y0 := q[0].X, q[0].Y
	x1, y1 := q[1].X, q[1].Y
	x2, y2 := q[2].X, q[2].Y
	x3, y3 := q[3].X, q[3].Y

	dx3 := x0 - x1 + x2 - x3
	dy3 := y0 - y1 + y2 - y3
	if dx3 == 0 && dy3 == 0 {
		return geometry.Matrix3{
			x1 - x0, x2 - x1, x0,
			y1 - y0, y2 - y1, y0,
			0, 0, 1,
		}
	}
	dx1 := x1 - x2
	dx2 := x3 - x2
	dy1 := y1 - y2
	dy2 := y3 - y2
	den := dx1*dy2 - dx2*dy1
	a13 := (dx3*dy2 - dx2*dy3) / den
	a23 := (dx1*dy3 - dx3*dy1) / den
	return geometry.Matrix3{
		x1 - x0 + a13*x1, x3 - x0 + a23*x3, x0,
		y1 - y0 + a13*y1, y3 - y0 + a23*y3, y0,
		a13, a23, 1,
	}
}

// SampleBilinear reads img at a fractional position, clamping to the border.
func SampleBilinear(img image.Image, x, y float64) color.NRGBA {
	b := img.Bounds()
	x = math.Min(math.Max(x, 0), float64(b.Dx()-1))
	y = math.Min(math.Max(y, 0), float64(b.Dy()-1))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, b.Dx()-1), min(y0+1, b.Dy()-1)
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) [4]float64 {
		c := color.NRGBAModel.Convert(img.At(b.Min.X+px, b.Min.Y+py)).(color.NRGBA)
		return [4]float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
	}
	c00, c10, c01, c11 := at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1)
	var out [4]uint8
	for i := range 4 {
		top := c00[i] + (c10[i]-c00[i])*fx
		bot := c01[i] + (c11[i]-c01[i])*fx
		out[i] = uint8(math.Round(top + (bot-top)*fy))
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// MeanAbsDiffScaled compares got against want resampled to got's size, as if
// got were want stretched so that corner pixels coincide. The result is the
// mean absolute difference per RGB channel in [0,255].
func MeanAbsDiffScaled(got, want image.Image) float64 {
	gb, wb := got.Bounds(), want.Bounds()
	if gb.Dx() < 2 || gb.Dy() < 2 {
		return math.Inf(1)
	}
	sx := float64(wb.Dx()-1) / float64(gb.Dx()-1)
	sy := float64(wb.Dy()-1) / float64(gb.Dy()-1)

	var sum float64
	for y := range gb.Dy() {
		for x := range gb.Dx() {
			g := color.NRGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y)).(color.NRGBA)
			w := SampleBilinear(want, float64(x)*sx, float64(y)*sy)
			sum += math.Abs(float64(g.R)-float64(w.R)) +
				math.Abs(float64(g.G)-float64(w.G)) +
				math.Abs(float64(g.B)-float64(w.B))
		}
	}
	return sum / float64(3*gb.Dx()*gb.Dy())
}

// KeystoneQuad is a card-sized trapezoid used by several tests: its top edge
// is 239 px and its sides are about 149 px, so a 240x150 card rectifies back
// to 239x149.
func KeystoneQuad() geometry.Quad {
	return geometry.Quad{
		{X: 40, Y: 30},
		{X: 279, Y: 30},
		{X: 259, Y: 178},
		{X: 60, Y: 178},
	}
}

// PlainCard is a uniformly filled 240x150 card with a darker photo block.
// Unlike GenerateCard it thresholds cleanly, which the contour detector needs.
func PlainCard(fill color.NRGBA) *image.NRGBA {
	card := image.NewNRGBA(image.Rect(0, 0, 240, 150))
	draw.Draw(card, card.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	draw.Draw(card, image.Rect(150, 40, 215, 120), image.NewUniform(color.NRGBA{R: 60, G: 60, B: 80, A: 255}),
		image.Point{}, draw.Src)
	return card
}

// KeystonePhoto is a light PlainCard projected into KeystoneQuad on a dark
// 320x220 background: a stand-in for a phone photo of a card on a desk.
func KeystonePhoto() *image.NRGBA {
	return ProjectCard(PlainCard(color.NRGBA{R: 215, G: 210, B: 200, A: 255}), KeystoneQuad(), 320, 220,
		color.NRGBA{R: 25, G: 25, B: 30, A: 255})
}
