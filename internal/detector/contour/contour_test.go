package contour

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNearQuad(t *testing.T, want geometry.Quad, got [4]geometry.Point, tol float64) {
	t.Helper()
	for i := range want {
		assert.LessOrEqual(t, want[i].Dist(got[i]), tol, "corner %s: want %v got %v", geometry.Corner(i), want[i], got[i])
	}
}

func TestDetect_LightCardOnDarkBackground(t *testing.T) {
	quad := testutil.KeystoneQuad()
	scene := testutil.KeystonePhoto()

	d, err := New(DefaultConfig())
	require.NoError(t, err)
	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)

	assert.Equal(t, Backend, res.Backend)
	assertNearQuad(t, quad, res.Corners, 5)
	assert.Greater(t, res.Confidence, 0.6)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestDetect_DarkCardOnLightBackground(t *testing.T) {
	quad := testutil.KeystoneQuad()
	scene := testutil.ProjectCard(testutil.PlainCard(color.NRGBA{R: 30, G: 35, B: 60, A: 255}), quad, 320, 220,
		color.NRGBA{R: 235, G: 235, B: 230, A: 255})

	d, err := New(DefaultConfig())
	require.NoError(t, err)
	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)
	assertNearQuad(t, quad, res.Corners, 5)
}

func TestDetect_DownscalesLargeInputs(t *testing.T) {
	quad := testutil.KeystoneQuad().Scale(4, 4)
	card := image.NewNRGBA(image.Rect(0, 0, 960, 600))
	draw.Draw(card, card.Bounds(), image.NewUniform(color.NRGBA{R: 220, G: 220, B: 220, A: 255}), image.Point{}, draw.Src)
	scene := testutil.ProjectCard(card, quad, 1280, 880, color.NRGBA{R: 20, G: 20, B: 20, A: 255})

	d, err := New(DefaultConfig())
	require.NoError(t, err)
	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)
	// One working pixel is 2.5 source pixels.
	assertNearQuad(t, quad, res.Corners, 15)
}

func TestDetect_NoCard(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)

	for name, img := range map[string]image.Image{
		"uniform dark":  image.NewUniform(color.Black),
		"uniform light": image.NewUniform(color.White),
	} {
		t.Run(name, func(t *testing.T) {
			rgba := image.NewNRGBA(image.Rect(0, 0, 100, 80))
			draw.Draw(rgba, rgba.Bounds(), img, image.Point{}, draw.Src)
			_, err := d.Detect(context.Background(), rgba)
			assert.ErrorIs(t, err, detector.ErrNoCard)
		})
	}

	// A speck is below the minimum area.
	speck := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(speck, speck.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(speck, image.Rect(100, 100, 104, 104), image.NewUniform(color.White), image.Point{}, draw.Src)
	_, err = d.Detect(context.Background(), speck)
	assert.ErrorIs(t, err, detector.ErrNoCard)
}

func TestDetect_ContextAndNil(t *testing.T) {
	d, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	bad := []func(*Config){
		func(c *Config) { c.MaxSide = 10 },
		func(c *Config) { c.BlurRadius = -1 },
		func(c *Config) { c.MinAreaRatio = 0 },
		func(c *Config) { c.FullCoverage = 1.5 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
		_, err := New(cfg)
		assert.Error(t, err, "case %d", i)
	}
}

func TestOtsuLevel(t *testing.T) {
	pix := make([]uint8, 0, 200)
	for range 100 {
		pix = append(pix, 20)
	}
	for range 100 {
		pix = append(pix, 200)
	}
	level := otsuLevel(pix)
	assert.Greater(t, level, uint8(20))
	assert.LessOrEqual(t, level, uint8(200))

	assert.Equal(t, uint8(128), otsuLevel(nil))
}

func TestBorderWhiteRatio(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 3))
	assert.InDelta(t, 0.0, borderWhiteRatio(g), 1e-12)
	for i := range g.Pix {
		g.Pix[i] = 255
	}
	assert.InDelta(t, 1.0, borderWhiteRatio(g), 1e-12)
}

func TestLargestComponent(t *testing.T) {
	// Two blobs: a 3x3 square and a single pixel.
	w, h := 8, 6
	mask := make([]bool, w*h)
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			mask[y*w+x] = true
		}
	}
	mask[5*w+7] = true

	b, ok := largestComponent(mask, w, h)
	require.True(t, ok)
	assert.Equal(t, 9, b.count)
	assert.Equal(t, geometry.Quad{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}}, b.quad())

	_, ok = largestComponent(make([]bool, w*h), w, h)
	assert.False(t, ok)
}

func TestFillRatio(t *testing.T) {
	assert.InDelta(t, 1.0, fillRatio(100, 100), 1e-12)
	assert.InDelta(t, 0.5, fillRatio(50, 100), 1e-12)
	assert.InDelta(t, 0.5, fillRatio(100, 50), 1e-12)
	assert.Zero(t, fillRatio(0, 10))
}
