// Package cmd implements the cardrectify command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/cardrectify/internal/config"
	"github.com/MeKo-Tech/cardrectify/internal/models"
	"github.com/MeKo-Tech/cardrectify/internal/version"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitRejected means the command ran but at least one image was
	// rejected (low confidence, degenerate corners, no card).
	ExitRejected = 2
)

// app carries state shared by the subcommands of one root command. A fresh
// app per NewRootCommand keeps in-process invocations independent.
type app struct {
	v       *viper.Viper
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
}

// rejectedError marks a run that completed with rejected inputs.
type rejectedError struct {
	failed, total int
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("%d of %d image(s) could not be rectified", e.failed, e.total)
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	a.loader = config.NewLoaderWithViper(a.v)

	root := &cobra.Command{
		Use:   "cardrectify",
		Short: "Perspective correction for photographed ID cards",
		Long: `cardrectify finds the four corners of a card in a photo and warps it into
an upright, fronto-parallel image.

It provides:
- Corner detection with an ONNX heatmap model or a model-free contour detector
- Rectification from detected or user-supplied corners
- Batch processing of image folders and PDFs
- An HTTP and WebSocket server for webcam capture

Examples:
  cardrectify rectify photo.jpg
  cardrectify rectify photo.jpg --corners 40,30,279,30,259,178,60,178 --out card.png
  cardrectify batch ./scans --recursive --format json
  cardrectify serve --port 25331`,
		Version:       version.Info().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), a.cfg)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is cardrectify.yaml in ., $HOME/.cardrectify, /etc/cardrectify, $XDG_CONFIG_HOME/cardrectify)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", "", "directory containing ONNX models (also "+models.EnvModelsDir+")")
	a.bind(root, "verbose", "verbose")
	a.bind(root, "log_level", "log-level")
	a.bind(root, "models_dir", "models-dir")

	root.AddCommand(
		a.newRectifyCommand(),
		a.newBatchCommand(),
		a.newServeCommand(),
		a.newConfigCommand(),
		a.newVersionCommand(),
		a.newBenchmarkCommand(),
		a.newTestCommand(),
	)
	return root
}

// Execute runs the command line against os.Args and returns the exit code.
func Execute() int {
	root := NewRootCommand()
	err := root.Execute()
	if err == nil {
		return ExitOK
	}
	_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	return ExitCode(err)
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return ExitRejected
	}
	return ExitFailure
}

// bind ties a flag to a configuration key. Unchanged flags fall through to
// the config file, the environment and then the defaults.
func (a *app) bind(cmd *cobra.Command, key, name string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind --%s to %s: %v", name, key, err))
	}
}

func (a *app) load() error {
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

func setupLogging(w io.Writer, cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
