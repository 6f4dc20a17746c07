// Package contour is a model-free corner detector for cards photographed
// against a contrasting background. It segments the image with an Otsu
// threshold, keeps the largest blob and takes its four extreme points.
package contour

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/mempool"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// Backend is the name reported in detector.Result.
const Backend = "contour"

// Config tunes the segmentation.
type Config struct {
	MaxSide      int     // working resolution; larger inputs are downscaled
	BlurRadius   float64 // Gaussian blur radius before thresholding, 0 disables
	CloseRadius  float64 // morphological close radius, 0 disables
	MinAreaRatio float64 // smallest blob, as a fraction of the image, accepted as a card
	FullCoverage float64 // blob coverage at which confidence is no longer penalised
}

// DefaultConfig returns settings tuned for phone photos of ID-1 cards.
func DefaultConfig() Config {
	return Config{
		MaxSide:      512,
		BlurRadius:   1.5,
		CloseRadius:  2,
		MinAreaRatio: 0.02,
		FullCoverage: 0.15,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSide < 32 {
		return fmt.Errorf("max side must be at least 32, got %d", c.MaxSide)
	}
	if c.BlurRadius < 0 || c.CloseRadius < 0 {
		return errors.New("blur and close radii must be non-negative")
	}
	if c.MinAreaRatio <= 0 || c.MinAreaRatio >= 1 {
		return fmt.Errorf("min area ratio must be in (0,1), got %v", c.MinAreaRatio)
	}
	if c.FullCoverage <= 0 || c.FullCoverage > 1 {
		return fmt.Errorf("full coverage must be in (0,1], got %v", c.FullCoverage)
	}
	return nil
}

// Detector is stateless and safe for concurrent use.
type Detector struct {
	cfg Config
}

// New returns a contour detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Detect segments img and returns the corners of the largest blob.
func (d *Detector) Detect(ctx context.Context, img image.Image) (detector.Result, error) {
	if img == nil {
		return detector.Result{}, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return detector.Result{}, err
	}
	origin := img.Bounds().Min

	small, scale := utils.FitWithin(img, d.cfg.MaxSide)
	if small.Bounds().Min != (image.Point{}) {
		small = imaging.Clone(small)
	}
	w, h := small.Bounds().Dx(), small.Bounds().Dy()

	var work image.Image = small
	if d.cfg.BlurRadius > 0 {
		work = blur.Gaussian(work, d.cfg.BlurRadius)
	}
	gray := effect.Grayscale(work)
	level := otsuLevel(gray.Pix)
	binary := segment.Threshold(gray, level)
	var mask image.Image = binary
	if borderWhiteRatio(binary) > 0.5 {
		// Light background: the card is the dark side of the threshold.
		mask = effect.Invert(mask)
	}
	if d.cfg.CloseRadius > 0 {
		mask = effect.Erode(effect.Dilate(mask, d.cfg.CloseRadius), d.cfg.CloseRadius)
	}
	if err := ctx.Err(); err != nil {
		return detector.Result{}, err
	}

	fg := mempool.GetBool(w * h)
	defer mempool.PutBool(fg)
	foreground(mask, fg)

	blob, ok := largestComponent(fg, w, h)
	coverage := float64(blob.count) / float64(w*h)
	if !ok || coverage < d.cfg.MinAreaRatio {
		slog.Debug("contour detector found no card", "coverage", coverage, "otsu_level", level)
		return detector.Result{}, fmt.Errorf("%w: largest region covers %.1f%% of the image",
			detector.ErrNoCard, coverage*100)
	}

	quad := blob.quad()
	fill := fillRatio(float64(blob.count), math.Abs(quad.SignedArea()))
	conf := fill * math.Min(1, coverage/d.cfg.FullCoverage)

	var res detector.Result
	res.Backend = Backend
	res.Confidence = conf
	for i, p := range quad {
		res.Corners[i] = geometry.Point{
			X: (p.X+0.5)*scale - 0.5 + float64(origin.X),
			Y: (p.Y+0.5)*scale - 0.5 + float64(origin.Y),
		}
	}
	slog.Debug("contour detection finished",
		"confidence", conf, "coverage", coverage, "fill", fill, "otsu_level", level, "scale", scale)
	return res, nil
}

// fillRatio compares the blob's pixel count with the area of its quad; 1 means
// the quad explains the blob exactly.
func fillRatio(count, quadArea float64) float64 {
	if count <= 0 || quadArea <= 0 {
		return 0
	}
	return math.Min(count, quadArea) / math.Max(count, quadArea)
}

// foreground marks mask pixels brighter than mid-grey.
func foreground(mask image.Image, out []bool) {
	b := mask.Bounds()
	w := b.Dx()
	switch m := mask.(type) {
	case *image.Gray:
		for y := range b.Dy() {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				out[y*w+x] = v >= 128
			}
		}
	case *image.RGBA:
		for y := range b.Dy() {
			row := m.Pix[y*m.Stride : y*m.Stride+w*4]
			for x := range w {
				out[y*w+x] = row[x*4] >= 128
			}
		}
	default:
		for y := range b.Dy() {
			for x := range w {
				r, _, _, _ := mask.At(b.Min.X+x, b.Min.Y+y).RGBA()
				out[y*w+x] = r >= 0x8000
			}
		}
	}
}
