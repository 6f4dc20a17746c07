// Package server exposes card rectification over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/store"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the port the webcam capture page talks to.
const DefaultPort = 25331

// processor is what the server needs from pipeline.Processor.
type processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
	Store() *store.Store
}

// Config holds server configuration.
type Config struct {
	Host          string          `mapstructure:"host" yaml:"host" json:"host"`
	Port          int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin    string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB   int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec    int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxConcurrent int             `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
	InlineQuality int             `mapstructure:"inline_quality" yaml:"inline_quality" json:"inline_quality"`
	Barcodes      bool            `mapstructure:"barcodes" yaml:"barcodes" json:"barcodes"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// DefaultConfig listens on all interfaces at DefaultPort.
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          DefaultPort,
		CORSOrigin:    "*",
		MaxUploadMB:   16,
		TimeoutSec:    30,
		InlineQuality: utils.InlineQuality,
	}
}

// Validate checks cfg.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("max upload size must be positive")
	}
	if c.TimeoutSec <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.InlineQuality < 1 || c.InlineQuality > 100 {
		return fmt.Errorf("inline quality must be in [1,100], got %d", c.InlineQuality)
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Server holds the HTTP server state and dependencies.
type Server struct {
	proc        processor
	cfg         Config
	limiter     *pipeline.Limiter
	rateLimiter *RateLimiter
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string                `json:"status"`
	Version string                `json:"version,omitempty"`
	Time    string                `json:"time"`
	Limiter pipeline.LimiterStats `json:"limiter"`
}

// RectifyResult describes one rectified card.
type RectifyResult struct {
	Name       string           `json:"name,omitempty"`
	URL        string           `json:"url,omitempty"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Quad       geometry.Quad    `json:"quad"`
	Confidence float64          `json:"confidence"`
	Backend    string           `json:"backend,omitempty"`
	Barcodes   []barcode.Result `json:"barcodes,omitempty"`
	DataURL    string           `json:"data_url,omitempty"`
	TimingsMs  map[string]int64 `json:"timings_ms"`
}

// RectifyResponse is the body of /rectify replies and WebSocket results.
type RectifyResponse struct {
	Success bool           `json:"success"`
	Result  *RectifyResult `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ResultsResponse lists stored results.
type ResultsResponse struct {
	Results []ResultInfo `json:"results"`
	Count   int          `json:"count"`
}

// ResultInfo is one stored result.
type ResultInfo struct {
	store.Entry
	URL string `json:"url"`
}

// NewServer wraps proc. The processor's store, if any, backs /results.
func NewServer(cfg Config, proc processor) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, errors.New("server: nil processor")
	}
	s := &Server{proc: proc, cfg: cfg, limiter: pipeline.NewLimiter(cfg.MaxConcurrent)}
	if cfg.RateLimit.Enabled() {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/rectify", s.corsMiddleware(s.rateLimitMiddleware(s.rectifyHandler)))
	mux.HandleFunc("/results", s.corsMiddleware(s.listResultsHandler))
	mux.HandleFunc("/results/{name}", s.corsMiddleware(s.getResultHandler))
	mux.HandleFunc("/ws/frames", s.rateLimitMiddleware(s.framesWebSocketHandler))
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	timeout := time.Duration(s.cfg.TimeoutSec) * time.Second
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
