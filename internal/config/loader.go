package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "cardrectify"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "CARDRECTIFY"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags bound
// by the root command take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the final validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations instead.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path
// without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; defaults and env still apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// detector.backend -> CARDRECTIFY_DETECTOR_BACKEND
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key. AutomaticEnv only resolves keys viper
// already knows about, so a key missing here cannot be set from the environment.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("detector.backend", d.Detector.Backend)
	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.lite", d.Detector.Lite)
	l.v.SetDefault("detector.input_size", d.Detector.InputSize)
	l.v.SetDefault("detector.peak_threshold", d.Detector.PeakThreshold)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.contour.max_side", d.Detector.Contour.MaxSide)
	l.v.SetDefault("detector.contour.blur_radius", d.Detector.Contour.BlurRadius)
	l.v.SetDefault("detector.contour.close_radius", d.Detector.Contour.CloseRadius)
	l.v.SetDefault("detector.contour.min_area_ratio", d.Detector.Contour.MinAreaRatio)
	l.v.SetDefault("detector.contour.full_coverage", d.Detector.Contour.FullCoverage)

	l.v.SetDefault("rectify.confidence_threshold", d.Rectify.ConfidenceThreshold)
	l.v.SetDefault("rectify.min_dimension", d.Rectify.MinDimension)
	l.v.SetDefault("rectify.max_dimension", d.Rectify.MaxDimension)
	l.v.SetDefault("rectify.min_corner_separation", d.Rectify.MinCornerSeparation)
	l.v.SetDefault("rectify.min_quad_area", d.Rectify.MinQuadArea)
	l.v.SetDefault("rectify.interpolation", d.Rectify.Interpolation)
	l.v.SetDefault("rectify.background", d.Rectify.Background)
	l.v.SetDefault("rectify.output_width", d.Rectify.OutputWidth)
	l.v.SetDefault("rectify.output_height", d.Rectify.OutputHeight)
	l.v.SetDefault("rectify.card_size", d.Rectify.CardSize)
	l.v.SetDefault("rectify.debug_dir", d.Rectify.DebugDir)

	l.v.SetDefault("barcode.enabled", d.Barcode.Enabled)
	l.v.SetDefault("barcode.formats", d.Barcode.Formats)
	l.v.SetDefault("barcode.try_harder", d.Barcode.TryHarder)

	l.v.SetDefault("store.dir", d.Store.Dir)
	l.v.SetDefault("store.max_images", d.Store.MaxImages)
	l.v.SetDefault("store.quality", d.Store.Quality)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	l.v.SetDefault("server.inline_quality", d.Server.InlineQuality)
	l.v.SetDefault("server.barcodes", d.Server.Barcodes)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", d.Server.RateLimit.MaxDataPerDay)

	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.include", d.Batch.IncludePatterns)
	l.v.SetDefault("batch.exclude", d.Batch.ExcludePatterns)
	l.v.SetDefault("batch.pdf_pages", d.Batch.PDFPages)
	l.v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	l.v.SetDefault("batch.image_format", d.Batch.ImageFormat)
	l.v.SetDefault("batch.quality", d.Batch.Quality)
	l.v.SetDefault("batch.format", d.Batch.Format)
	l.v.SetDefault("batch.output_file", d.Batch.OutputFile)
	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.barcodes", d.Batch.Barcodes)
	l.v.SetDefault("batch.progress", d.Batch.ShowProgress)
	l.v.SetDefault("batch.quiet", d.Batch.Quiet)

	l.v.SetDefault("gpu.use_gpu", d.GPU.UseGPU)
	l.v.SetDefault("gpu.device_id", d.GPU.DeviceID)
	l.v.SetDefault("gpu.mem_limit", d.GPU.GPUMemLimit)
}

// GetResolvedConfig returns the current resolved settings for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename, cardrectify.yaml
// when empty.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// WriteYAML renders cfg as YAML.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cardrectify"))
	}

	paths = append(paths, "/etc/cardrectify")

	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "cardrectify"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cardrectify"))
	}

	return paths
}

// PrintConfigInfo prints information about configuration loading.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
