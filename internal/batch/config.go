package batch

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

// Output report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for batch processing.
type Config struct {
	// File discovery
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	IncludePatterns []string `mapstructure:"include" yaml:"include" json:"include"`
	ExcludePatterns []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	PDFPages        string   `mapstructure:"pdf_pages" yaml:"pdf_pages" json:"pdf_pages"`

	// Outputs
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	ImageFormat string `mapstructure:"image_format" yaml:"image_format" json:"image_format"`
	Quality     int    `mapstructure:"quality" yaml:"quality" json:"quality"`
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	OutputFile  string `mapstructure:"output_file" yaml:"output_file" json:"output_file"`

	// Processing
	Workers  int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	Barcodes bool `mapstructure:"barcodes" yaml:"barcodes" json:"barcodes"`

	// Progress
	ShowProgress bool `mapstructure:"progress" yaml:"progress" json:"progress"`
	Quiet        bool `mapstructure:"quiet" yaml:"quiet" json:"quiet"`
}

// DefaultConfig returns defaults for batch runs.
func DefaultConfig() Config {
	return Config{
		OutputDir:   "rectified",
		ImageFormat: string(utils.FormatJPEG),
		Quality:     utils.StoreQuality,
		Format:      FormatText,
		Workers:     runtime.NumCPU(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Format {
	case FormatText, FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("unsupported report format %q", c.Format)
	}
	if _, err := utils.ParseFormat(c.ImageFormat); err != nil {
		return err
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", c.Quality)
	}
	if c.Workers < 0 {
		return errors.New("workers must be non-negative")
	}
	return nil
}
