package testutil

import (
	"image/color"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquareToQuad_MapsUnitCorners(t *testing.T) {
	for _, q := range []geometry.Quad{
		KeystoneQuad(),
		{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 0, Y: 5}}, // affine branch
	} {
		m := SquareToQuad(q)
		unit := geometry.Quad{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
		for i, u := range unit {
			p, ok := m.ApplyPoint(u)
			require.True(t, ok)
			assert.InDelta(t, q[i].X, p.X, 1e-9)
			assert.InDelta(t, q[i].Y, p.Y, 1e-9)
		}
	}
}

func TestGenerateCard(t *testing.T) {
	card := GenerateCard(CardConfig{Width: 50, Height: 30})
	assert.Equal(t, 50, card.Bounds().Dx())
	assert.Equal(t, 30, card.Bounds().Dy())
	assert.Equal(t, color.NRGBA{R: 55, G: 55, B: 180, A: 255}, card.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 180, A: 255}, card.NRGBAAt(49, 29))
}

func TestProjectCard_CornersLandOnQuad(t *testing.T) {
	card := GenerateCard(CardConfig{Width: 240, Height: 150})
	bg := color.NRGBA{R: 10, G: 10, B: 10, A: 255}
	scene := ProjectCard(card, KeystoneQuad(), 320, 220, bg)

	assert.Equal(t, card.NRGBAAt(0, 0), scene.NRGBAAt(40, 30))
	assert.Equal(t, bg, scene.NRGBAAt(5, 5))
	assert.Equal(t, bg, scene.NRGBAAt(315, 215))
}

func TestMeanAbsDiffScaled(t *testing.T) {
	card := GenerateCard(CardConfig{Width: 60, Height: 40})
	assert.InDelta(t, 0.0, MeanAbsDiffScaled(card, card), 1e-9)

	other := GenerateCard(CardConfig{Width: 60, Height: 40, Blocks: true})
	assert.Greater(t, MeanAbsDiffScaled(other, card), 1.0)
}

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(root+"/go.mod"))
}
