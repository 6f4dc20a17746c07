package config

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/models"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/server"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, models.DefaultModelsDir, cfg.ModelsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, BackendContour, cfg.Detector.Backend)
	assert.InDelta(t, 0.5, cfg.Rectify.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "bilinear", cfg.Rectify.Interpolation)
	assert.Equal(t, server.DefaultPort, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Store.MaxImages)
	assert.Equal(t, 98, cfg.Store.Quality)
	assert.False(t, cfg.GPU.UseGPU)

	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"backend", func(c *Config) { c.Detector.Backend = "magic" }, "invalid detector backend"},
		{"contour", func(c *Config) { c.Detector.Contour.MaxSide = 4 }, "detector.contour"},
		{"peak threshold", func(c *Config) {
			c.Detector.Backend = BackendHeatmap
			c.Detector.PeakThreshold = 1.5
		}, "detector.peak_threshold"},
		{"input size", func(c *Config) {
			c.Detector.Backend = BackendHeatmap
			c.Detector.InputSize = 8
		}, "detector.input_size"},
		{"confidence", func(c *Config) { c.Rectify.ConfidenceThreshold = 2 }, "rectify"},
		{"interpolation", func(c *Config) { c.Rectify.Interpolation = "cubic" }, "rectify"},
		{"background", func(c *Config) { c.Rectify.Background = "#zzzzzz" }, "rectify.background"},
		{"half size", func(c *Config) { c.Rectify.OutputWidth = 100 }, "rectify"},
		{"barcode format", func(c *Config) { c.Barcode.Formats = []string{"ean99"} }, "barcode.formats"},
		{"store quality", func(c *Config) { c.Store.Quality = 0 }, "store"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server"},
		{"batch format", func(c *Config) { c.Batch.Format = "xml" }, "batch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestToRectifyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rectify.Background = "#ff8000"
	cfg.Rectify.Interpolation = "Nearest"
	cfg.Rectify.CardSize = true

	rc, err := cfg.ToRectifyConfig()
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 128, B: 0, A: 255}, rc.Background)
	assert.Equal(t, rectify.InterpolationNearest, rc.Interpolation)
	assert.Equal(t, rectify.CardWidth, rc.OutputWidth)
	assert.Equal(t, rectify.CardHeight, rc.OutputHeight)

	// An explicit size wins over card_size.
	cfg.Rectify.OutputWidth, cfg.Rectify.OutputHeight = 400, 250
	rc, err = cfg.ToRectifyConfig()
	require.NoError(t, err)
	assert.Equal(t, 400, rc.OutputWidth)
	assert.Equal(t, 250, rc.OutputHeight)
}

func TestToHeatmapConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = t.TempDir()
	cfg.Detector.PeakThreshold = 0.4
	cfg.Detector.NumThreads = 2
	cfg.GPU.UseGPU = true

	hc := cfg.ToHeatmapConfig()
	assert.Equal(t, filepath.Join(cfg.ModelsDir, models.CornerHeatmap), hc.ModelPath)
	assert.InDelta(t, 0.4, float64(hc.PeakThreshold), 1e-6)
	assert.Equal(t, 2, hc.NumThreads)
	assert.True(t, hc.GPU.UseGPU)

	cfg.Detector.Lite = true
	assert.Equal(t, filepath.Join(cfg.ModelsDir, models.CornerHeatmapLite), cfg.ToHeatmapConfig().ModelPath)

	cfg.Detector.ModelPath = "/opt/corners.onnx"
	assert.Equal(t, "/opt/corners.onnx", cfg.ToHeatmapConfig().ModelPath)
}

func TestToContourConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Contour.MaxSide = 256
	cc := cfg.ToContourConfig()
	assert.Equal(t, 256, cc.MaxSide)
	require.NoError(t, cc.Validate())
}

func TestToBarcodeOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Barcode.Formats = []string{"QR_CODE", "code128"}
	cfg.Barcode.TryHarder = true

	opts, err := cfg.ToBarcodeOptions()
	require.NoError(t, err)
	assert.Equal(t, []barcode.Format{barcode.FormatQR, barcode.FormatCode128}, opts.Formats)
	assert.True(t, opts.TryHarder)
}

func TestBarcodeSwitchPropagates(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.ToServerConfig().Barcodes)
	assert.False(t, cfg.ToBatchConfig().Barcodes)

	cfg.Barcode.Enabled = true
	assert.True(t, cfg.ToServerConfig().Barcodes)
	assert.True(t, cfg.ToBatchConfig().Barcodes)
}

func TestToDetectorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Backend = BackendHeatmap
	cfg.Detector.InputSize = 256

	spec := cfg.ToDetectorConfig()
	assert.Equal(t, BackendHeatmap, spec.Backend)
	assert.Equal(t, 256, spec.Heatmap.InputSize)
	assert.Equal(t, cfg.Detector.Contour.MaxSide, spec.Contour.MaxSide)
	assert.Equal(t, cfg.Store, cfg.ToStoreConfig())
}
