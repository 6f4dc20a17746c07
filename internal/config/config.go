package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/batch"
	"github.com/MeKo-Tech/cardrectify/internal/detector/contour"
	"github.com/MeKo-Tech/cardrectify/internal/detector/heatmap"
	"github.com/MeKo-Tech/cardrectify/internal/models"
	"github.com/MeKo-Tech/cardrectify/internal/onnx"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/server"
	"github.com/MeKo-Tech/cardrectify/internal/store"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

// Detector backends selectable from configuration.
const (
	BackendContour = contour.Backend
	BackendHeatmap = heatmap.Backend
)

// Config represents the complete configuration for cardrectify.
// It is shared by all commands (rectify, batch, serve) and can be loaded from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	Rectify  RectifyConfig  `mapstructure:"rectify" yaml:"rectify" json:"rectify"`
	Barcode  BarcodeConfig  `mapstructure:"barcode" yaml:"barcode" json:"barcode"`

	Store  store.Config  `mapstructure:"store" yaml:"store" json:"store"`
	Server server.Config `mapstructure:"server" yaml:"server" json:"server"`
	Batch  batch.Config  `mapstructure:"batch" yaml:"batch" json:"batch"`

	GPU onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DetectorConfig selects and tunes the corner detector.
type DetectorConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	ModelPath     string        `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Lite          bool          `mapstructure:"lite" yaml:"lite" json:"lite"`
	InputSize     int           `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	PeakThreshold float64       `mapstructure:"peak_threshold" yaml:"peak_threshold" json:"peak_threshold"`
	NumThreads    int           `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Contour       ContourConfig `mapstructure:"contour" yaml:"contour" json:"contour"`
}

// ContourConfig tunes the classical segmentation backend.
type ContourConfig struct {
	MaxSide      int     `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
	BlurRadius   float64 `mapstructure:"blur_radius" yaml:"blur_radius" json:"blur_radius"`
	CloseRadius  float64 `mapstructure:"close_radius" yaml:"close_radius" json:"close_radius"`
	MinAreaRatio float64 `mapstructure:"min_area_ratio" yaml:"min_area_ratio" json:"min_area_ratio"`
	FullCoverage float64 `mapstructure:"full_coverage" yaml:"full_coverage" json:"full_coverage"`
}

// RectifyConfig holds the geometric thresholds and warp options.
type RectifyConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	MinDimension        int     `mapstructure:"min_dimension" yaml:"min_dimension" json:"min_dimension"`
	MaxDimension        int     `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
	MinCornerSeparation float64 `mapstructure:"min_corner_separation" yaml:"min_corner_separation" json:"min_corner_separation"`
	MinQuadArea         float64 `mapstructure:"min_quad_area" yaml:"min_quad_area" json:"min_quad_area"`
	Interpolation       string  `mapstructure:"interpolation" yaml:"interpolation" json:"interpolation"`
	Background          string  `mapstructure:"background" yaml:"background" json:"background"`
	OutputWidth         int     `mapstructure:"output_width" yaml:"output_width" json:"output_width"`
	OutputHeight        int     `mapstructure:"output_height" yaml:"output_height" json:"output_height"`
	// CardSize pins the output to ID-1 proportions when no explicit size is set.
	CardSize bool   `mapstructure:"card_size" yaml:"card_size" json:"card_size"`
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// BarcodeConfig controls decoding of codes on the rectified card.
type BarcodeConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Formats   []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	rc := rectify.DefaultConfig()
	cc := contour.DefaultConfig()
	hc := heatmap.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Detector: DetectorConfig{
			Backend:       BackendContour,
			InputSize:     hc.InputSize,
			PeakThreshold: float64(hc.PeakThreshold),
			Contour: ContourConfig{
				MaxSide:      cc.MaxSide,
				BlurRadius:   cc.BlurRadius,
				CloseRadius:  cc.CloseRadius,
				MinAreaRatio: cc.MinAreaRatio,
				FullCoverage: cc.FullCoverage,
			},
		},
		Rectify: RectifyConfig{
			ConfidenceThreshold: rc.ConfidenceThreshold,
			MinDimension:        rc.MinDimension,
			MaxDimension:        rc.MaxDimension,
			MinCornerSeparation: rc.MinCornerSeparation,
			MinQuadArea:         rc.MinQuadArea,
			Interpolation:       string(rc.Interpolation),
			Background:          "black",
		},
		Barcode: BarcodeConfig{
			Formats: []string{string(barcode.FormatQR), string(barcode.FormatDataMatrix)},
		},
		Store:  store.DefaultConfig(),
		Server: server.DefaultConfig(),
		Batch:  batch.DefaultConfig(),
		GPU:    onnx.DefaultGPUConfig(),
	}
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Detector.Backend {
	case BackendContour:
		if err := c.ToContourConfig().Validate(); err != nil {
			return fmt.Errorf("detector.contour: %w", err)
		}
	case BackendHeatmap:
		if err := validateThreshold(c.Detector.PeakThreshold, "detector.peak_threshold"); err != nil {
			return err
		}
		if c.Detector.InputSize < 32 {
			return fmt.Errorf("invalid detector.input_size: %d (must be at least 32)", c.Detector.InputSize)
		}
	default:
		return fmt.Errorf("invalid detector backend: %s (must be one of: %s, %s)",
			c.Detector.Backend, BackendContour, BackendHeatmap)
	}

	if _, err := c.ToRectifyConfig(); err != nil {
		return err
	}
	if _, err := c.ToBarcodeOptions(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err := c.GPU.Validate(); err != nil {
		return fmt.Errorf("gpu: %w", err)
	}
	return nil
}

// ToRectifyConfig converts to rectify.Config and validates the result.
func (c *Config) ToRectifyConfig() (rectify.Config, error) {
	r := c.Rectify
	bg, err := utils.ParseColor(r.Background)
	if err != nil {
		return rectify.Config{}, fmt.Errorf("rectify.background: %w", err)
	}
	cfg := rectify.Config{
		ConfidenceThreshold: r.ConfidenceThreshold,
		MinDimension:        r.MinDimension,
		MaxDimension:        r.MaxDimension,
		MinCornerSeparation: r.MinCornerSeparation,
		MinQuadArea:         r.MinQuadArea,
		Interpolation:       rectify.Interpolation(strings.ToLower(r.Interpolation)),
		Background:          bg,
		OutputWidth:         r.OutputWidth,
		OutputHeight:        r.OutputHeight,
		DebugDir:            r.DebugDir,
	}
	if r.CardSize && cfg.OutputWidth == 0 && cfg.OutputHeight == 0 {
		cfg.OutputWidth, cfg.OutputHeight = rectify.CardWidth, rectify.CardHeight
	}
	if err := cfg.Validate(); err != nil {
		return rectify.Config{}, fmt.Errorf("rectify: %w", err)
	}
	return cfg, nil
}

// DetectorSpec is the resolved detector selection. Only the config matching
// Backend is meaningful.
type DetectorSpec struct {
	Backend string
	Heatmap heatmap.Config
	Contour contour.Config
}

// ToDetectorConfig resolves the detector section.
func (c *Config) ToDetectorConfig() DetectorSpec {
	return DetectorSpec{
		Backend: c.Detector.Backend,
		Heatmap: c.ToHeatmapConfig(),
		Contour: c.ToContourConfig(),
	}
}

// ToContourConfig converts to contour.Config.
func (c *Config) ToContourConfig() contour.Config {
	cc := c.Detector.Contour
	return contour.Config{
		MaxSide:      cc.MaxSide,
		BlurRadius:   cc.BlurRadius,
		CloseRadius:  cc.CloseRadius,
		MinAreaRatio: cc.MinAreaRatio,
		FullCoverage: cc.FullCoverage,
	}
}

// ToHeatmapConfig converts to heatmap.Config, resolving the model path
// against the models directory.
func (c *Config) ToHeatmapConfig() heatmap.Config {
	cfg := heatmap.DefaultConfig()
	cfg.ModelPath = models.GetCornerModelPath(c.ModelsDir, c.Detector.ModelPath, c.Detector.Lite)
	cfg.InputSize = c.Detector.InputSize
	cfg.PeakThreshold = float32(c.Detector.PeakThreshold)
	cfg.NumThreads = c.Detector.NumThreads
	cfg.GPU = c.GPU
	return cfg
}

// ToBarcodeOptions converts to barcode.Options.
func (c *Config) ToBarcodeOptions() (barcode.Options, error) {
	formats, err := barcode.ParseFormats(c.Barcode.Formats)
	if err != nil {
		return barcode.Options{}, fmt.Errorf("barcode.formats: %w", err)
	}
	return barcode.Options{Formats: formats, TryHarder: c.Barcode.TryHarder}, nil
}

// ToStoreConfig returns the store section.
func (c *Config) ToStoreConfig() store.Config {
	return c.Store
}

// ToServerConfig returns the server section with the barcode switch applied.
func (c *Config) ToServerConfig() server.Config {
	cfg := c.Server
	cfg.Barcodes = cfg.Barcodes || c.Barcode.Enabled
	return cfg
}

// ToBatchConfig returns the batch section with the barcode switch applied.
func (c *Config) ToBatchConfig() batch.Config {
	cfg := c.Batch
	cfg.Barcodes = cfg.Barcodes || c.Barcode.Enabled
	return cfg
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
