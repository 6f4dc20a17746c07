package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardrectify_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardrectify_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Rectification metrics
	rectifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardrectify_rectify_requests_total",
			Help: "Total number of rectification requests by source and outcome kind",
		},
		[]string{"source", "kind"}, // source: http, websocket
	)

	rectifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardrectify_rectify_duration_seconds",
			Help:    "Duration of each processing step in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"step"}, // step: detect, rectify, barcode, save, total
	)

	detectionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardrectify_detection_confidence",
			Help:    "Confidence of accepted detections",
			Buckets: []float64{.5, .6, .7, .8, .85, .9, .95, .99, 1},
		},
	)

	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardrectify_rectify_in_flight",
			Help: "Number of rectifications currently running",
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardrectify_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // minute, hour, requests, data
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardrectify_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 4 * 1024 * 1024, 16 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardrectify_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardrectify_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // sent, received
	)
)
