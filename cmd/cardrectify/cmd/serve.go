package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/cardrectify/internal/server"
)

func (a *app) newServeCommand() *cobra.Command {
	var noDetector bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket rectification server",
		Long: `Start an HTTP server for webcam capture front-ends.

Endpoints:
  POST /rectify        - rectify an uploaded image (multipart or JSON data URL)
  GET  /results        - list stored results, newest first
  GET  /results/{name} - download a stored result
  GET  /ws/frames      - WebSocket stream of frames, one reply per frame
  GET  /health         - health check
  GET  /metrics        - Prometheus metrics

Examples:
  cardrectify serve
  cardrectify serve --port 8080 --store-dir /var/lib/cardrectify
  cardrectify serve --client-corners-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, noDetector)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "", "server host")
	f.IntP("port", "p", 0, "server port")
	f.String("cors-origin", "", "CORS allowed origin")
	f.Int64("max-upload-mb", 0, "maximum upload size in MB")
	f.Int("timeout", 0, "request timeout in seconds")
	f.Int("max-concurrent", 0, "maximum rectifications in flight (0 = CPU count)")
	f.Bool("barcodes", false, "decode barcodes on rectified cards")
	f.String("store-dir", "", "directory for stored results")
	f.Int("max-images", 0, "number of stored results to keep")
	f.Int("requests-per-minute", 0, "per-client request limit per minute (0 = off)")
	f.Int("requests-per-hour", 0, "per-client request limit per hour (0 = off)")
	f.Int("max-requests-per-day", 0, "per-client request quota per day (0 = off)")
	f.Int64("max-data-per-day", 0, "per-client upload quota per day in bytes (0 = off)")
	f.String("backend", "", "detector backend: contour or heatmap")
	f.BoolVar(&noDetector, "client-corners-only", false, "do not load a detector; requests must carry corners")

	a.bind(cmd, "server.host", "host")
	a.bind(cmd, "server.port", "port")
	a.bind(cmd, "server.cors_origin", "cors-origin")
	a.bind(cmd, "server.max_upload_mb", "max-upload-mb")
	a.bind(cmd, "server.timeout_sec", "timeout")
	a.bind(cmd, "server.max_concurrent", "max-concurrent")
	a.bind(cmd, "server.barcodes", "barcodes")
	a.bind(cmd, "store.dir", "store-dir")
	a.bind(cmd, "store.max_images", "max-images")
	a.bind(cmd, "server.rate_limit.requests_per_minute", "requests-per-minute")
	a.bind(cmd, "server.rate_limit.requests_per_hour", "requests-per-hour")
	a.bind(cmd, "server.rate_limit.max_requests_per_day", "max-requests-per-day")
	a.bind(cmd, "server.rate_limit.max_data_per_day", "max-data-per-day")
	a.bind(cmd, "detector.backend", "backend")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, noDetector bool) error {
	proc, err := newProcessor(a.cfg, processorOptions{noDetector: noDetector, withStore: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := proc.Close(); err != nil {
			slog.Error("Processor cleanup error", "error", err)
		}
	}()

	scfg := a.cfg.ToServerConfig()
	srv, err := server.NewServer(scfg, proc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server",
		"addr", scfg.Addr(),
		"detector", !noDetector,
		"store", a.cfg.Store.Dir)
	return srv.ListenAndServe(ctx)
}
