// Package heatmap detects card corners with a four-channel heatmap network
// run through ONNX Runtime.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/onnx"
)

// Backend is the name reported in detector.Result.
const Backend = "heatmap"

// Config configures the heatmap detector.
type Config struct {
	ModelPath     string
	InputSize     int     // square network input side, e.g. 384
	PeakThreshold float32 // heatmap peaks below this do not count as corners
	NumThreads    int
	GPU           onnx.GPUConfig
}

// DefaultConfig returns defaults matching the bundled corner model.
func DefaultConfig() Config {
	return Config{
		InputSize:     384,
		PeakThreshold: 0.3,
		GPU:           onnx.DefaultGPUConfig(),
	}
}

func (c Config) validate() error {
	if c.InputSize < 32 {
		return fmt.Errorf("input size must be at least 32, got %d", c.InputSize)
	}
	if c.PeakThreshold < 0 || c.PeakThreshold > 1 {
		return fmt.Errorf("peak threshold must be in [0,1], got %v", c.PeakThreshold)
	}
	return nil
}

// runner is the slice of onnx.Session the detector needs.
type runner interface {
	Run(in onnx.Tensor) (onnx.Tensor, error)
	Close() error
}

// Detector is safe for concurrent use.
type Detector struct {
	cfg Config

	mu     sync.RWMutex
	runner runner
}

// New loads the model and returns a ready detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	slog.Debug("Initializing heatmap detector",
		"model_path", cfg.ModelPath,
		"input_size", cfg.InputSize,
		"gpu_enabled", cfg.GPU.UseGPU)

	sess, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:  cfg.ModelPath,
		NumThreads: cfg.NumThreads,
		GPU:        cfg.GPU,
	})
	if err != nil {
		return nil, err
	}
	return newWithRunner(cfg, sess), nil
}

func newWithRunner(cfg Config, r runner) *Detector {
	return &Detector{cfg: cfg, runner: r}
}

// Detect runs the network on img and decodes the four corner heatmaps.
func (d *Detector) Detect(ctx context.Context, img image.Image) (detector.Result, error) {
	if img == nil {
		return detector.Result{}, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return detector.Result{}, err
	}
	start := time.Now()

	in, err := onnx.ImageToTensor(img, d.cfg.InputSize, d.cfg.InputSize, onnx.ImageNet)
	if err != nil {
		return detector.Result{}, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer in.Release()

	d.mu.RLock()
	r := d.runner
	var out onnx.Tensor
	if r == nil {
		err = onnx.ErrClosed
	} else {
		out, err = r.Run(in)
	}
	d.mu.RUnlock()
	if err != nil {
		return detector.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return detector.Result{}, err
	}

	b := img.Bounds()
	res, err := Decode(out.Data, out.Shape, b.Dx(), b.Dy(), d.cfg.PeakThreshold)
	if err != nil {
		return detector.Result{}, err
	}
	for i := range res.Corners {
		res.Corners[i].X += float64(b.Min.X)
		res.Corners[i].Y += float64(b.Min.Y)
	}
	slog.Debug("heatmap detection finished",
		"confidence", res.Confidence, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Close releases the session. Detect returns an error afterwards.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runner == nil {
		return nil
	}
	err := d.runner.Close()
	d.runner = nil
	return err
}
