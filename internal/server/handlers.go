package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/store"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
	"github.com/MeKo-Tech/cardrectify/internal/version"
)

// rectifyJSONRequest is the JSON form of POST /rectify.
type rectifyJSONRequest struct {
	Image      string    `json:"image"`
	Corners    []float64 `json:"corners,omitempty"` // x1,y1,...,x4,y4
	Confidence *float64  `json:"confidence,omitempty"`
	Inline     bool      `json:"inline,omitempty"`
	Barcodes   *bool     `json:"barcodes,omitempty"`
	Save       *bool     `json:"save,omitempty"`
}

// requestError is a client mistake reported with status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Limiter: s.limiter.Stats(),
	})
}

// rectifyHandler accepts a multipart upload (field "image") or a JSON body
// carrying a data URL.
func (s *Server) rectifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadMB*1024*1024)

	req, inline, err := s.parseRectifyRequest(r)
	if err != nil {
		s.writeError(w, "http", err)
		return
	}

	resp, status := s.run(r.Context(), req, inline, "http")
	writeJSON(w, status, resp)
}

func (s *Server) parseRectifyRequest(r *http.Request) (pipeline.Request, bool, error) {
	req := pipeline.Request{Barcodes: s.cfg.Barcodes, Save: true}
	inline := queryBool(r, "inline")

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body rectifyJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, false, uploadError(err, "invalid JSON body")
		}
		uploadSizeBytes.Observe(float64(len(body.Image)))
		img, err := utils.DecodeDataURLImage(body.Image)
		if err != nil {
			return req, false, badRequest("invalid image: %v", err)
		}
		req.Image = img
		if len(body.Corners) > 0 {
			corners, err := cornersFromFloats(body.Corners)
			if err != nil {
				return req, false, err
			}
			req.Corners = &corners
			if err := checkClientConfidence(body.Confidence); err != nil {
				return req, false, err
			}
			req.Confidence = body.Confidence
		}
		if body.Barcodes != nil {
			req.Barcodes = *body.Barcodes
		}
		if body.Save != nil {
			req.Save = *body.Save
		}
		return req, inline || body.Inline, nil
	}

	if err := r.ParseMultipartForm(s.cfg.MaxUploadMB * 1024 * 1024); err != nil {
		return req, false, uploadError(err, "failed to parse form data")
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return req, false, badRequest("no image file provided")
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		return req, false, uploadError(err, "failed to read image data")
	}
	img, err := utils.DecodeImage(data)
	if err != nil {
		return req, false, badRequest("invalid image format")
	}
	req.Image = img

	if c := r.FormValue("corners"); c != "" {
		corners, err := detector.ParseCorners(c)
		if err != nil {
			return req, false, badRequest("%v", err)
		}
		req.Corners = &corners
		if v := r.FormValue("confidence"); v != "" {
			conf, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return req, false, badRequest("invalid confidence %q", v)
			}
			if err := checkClientConfidence(&conf); err != nil {
				return req, false, err
			}
			req.Confidence = &conf
		}
	}
	if v := r.FormValue("barcodes"); v != "" {
		req.Barcodes = parseBool(v)
	}
	if v := r.FormValue("save"); v != "" {
		req.Save = parseBool(v)
	}
	return req, inline || parseBool(r.FormValue("inline")), nil
}

func uploadError(err error, msg string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &requestError{status: http.StatusRequestEntityTooLarge, msg: "file too large"}
	}
	return badRequest("%s", msg)
}

// checkClientConfidence rejects a supplied confidence outside [0,1], NaN
// included. A missing value is accepted.
func checkClientConfidence(c *float64) error {
	if c != nil && !(*c >= 0 && *c <= 1) {
		return badRequest("confidence must be in [0,1], got %v", *c)
	}
	return nil
}

func cornersFromFloats(v []float64) ([4]geometry.Point, error) {
	var pts [4]geometry.Point
	if len(v) != 8 {
		return pts, badRequest("corners: want 8 numbers, got %d", len(v))
	}
	for i := range 4 {
		pts[i] = geometry.Pt(v[2*i], v[2*i+1])
	}
	return pts, nil
}

// run processes req under the concurrency limit and request timeout.
func (s *Server) run(ctx context.Context, req pipeline.Request, inline bool, source string) (RectifyResponse, int) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSec)*time.Second)
	defer cancel()

	if err := s.limiter.Acquire(ctx); err != nil {
		rectifyRequestsTotal.WithLabelValues(source, "busy").Inc()
		return RectifyResponse{Success: false, Error: "server busy", Kind: "busy"}, http.StatusServiceUnavailable
	}
	inFlight.Inc()
	out, err := s.proc.Process(ctx, req)
	inFlight.Dec()
	s.limiter.Release()

	if err != nil {
		resp, status := errorResponse(err)
		rectifyRequestsTotal.WithLabelValues(source, resp.Kind).Inc()
		if status >= http.StatusInternalServerError {
			slog.Error("Rectification failed", "source", source, "error", err)
		} else {
			slog.Info("Rectification rejected", "source", source, "kind", resp.Kind, "error", err)
		}
		return resp, status
	}

	rectifyRequestsTotal.WithLabelValues(source, "ok").Inc()
	observeTimings(out)
	result, err := s.buildResult(out, inline)
	if err != nil {
		slog.Error("Failed to encode inline result", "error", err)
		return RectifyResponse{Success: false, Error: err.Error(), Kind: "internal"}, http.StatusInternalServerError
	}
	return RectifyResponse{Success: true, Result: result}, http.StatusOK
}

func observeTimings(out *pipeline.Outcome) {
	rectifyDuration.WithLabelValues("detect").Observe(out.Timings.Detect.Seconds())
	rectifyDuration.WithLabelValues("rectify").Observe(out.Timings.Rectify.Seconds())
	rectifyDuration.WithLabelValues("total").Observe(out.Timings.Total.Seconds())
	if out.Timings.Barcode > 0 {
		rectifyDuration.WithLabelValues("barcode").Observe(out.Timings.Barcode.Seconds())
	}
	if out.Timings.Save > 0 {
		rectifyDuration.WithLabelValues("save").Observe(out.Timings.Save.Seconds())
	}
	detectionConfidence.Observe(out.Detection.Confidence)
}

func (s *Server) buildResult(out *pipeline.Outcome, inline bool) (*RectifyResult, error) {
	rr := out.Rectified
	res := &RectifyResult{
		Width:      rr.Size.Width,
		Height:     rr.Size.Height,
		Quad:       rr.Quad,
		Confidence: out.Detection.Confidence,
		Backend:    out.Detection.Backend,
		Barcodes:   out.Barcodes,
		TimingsMs: map[string]int64{
			"detect":  out.Timings.Detect.Milliseconds(),
			"rectify": out.Timings.Rectify.Milliseconds(),
			"total":   out.Timings.Total.Milliseconds(),
		},
	}
	if out.Saved != nil {
		res.Name = out.Saved.Name
		res.URL = resultURL(out.Saved.Name)
	}
	if inline {
		d, err := utils.EncodeDataURL(rr.Image, utils.FormatJPEG, s.cfg.InlineQuality)
		if err != nil {
			return nil, err
		}
		res.DataURL = d
	}
	return res, nil
}

func resultURL(name string) string { return "/results/" + name }

// errorResponse maps err to a response body and HTTP status.
func errorResponse(err error) (RectifyResponse, int) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return RectifyResponse{Error: reqErr.msg, Kind: "bad_request"}, reqErr.status
	}

	resp := RectifyResponse{Error: err.Error(), Kind: rectify.KindName(err), Message: rectify.UserMessage(err)}
	var rerr *rectify.Error
	if errors.As(err, &rerr) {
		resp.Stage = string(rerr.Stage)
	}
	switch resp.Kind {
	case "low_confidence", "degenerate", "too_small", "too_large", "singular", "no_card":
		return resp, http.StatusUnprocessableEntity
	case "canceled":
		return resp, http.StatusGatewayTimeout
	}
	return resp, http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, source string, err error) {
	resp, status := errorResponse(err)
	rectifyRequestsTotal.WithLabelValues(source, resp.Kind).Inc()
	writeJSON(w, status, resp)
}

func (s *Server) listResultsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.proc.Store()
	if st == nil {
		writeJSON(w, http.StatusOK, ResultsResponse{Results: []ResultInfo{}})
		return
	}
	entries, err := st.List()
	if err != nil {
		http.Error(w, "failed to list results", http.StatusInternalServerError)
		return
	}
	resp := ResultsResponse{Results: make([]ResultInfo, 0, len(entries)), Count: len(entries)}
	for _, e := range entries {
		resp.Results = append(resp.Results, ResultInfo{Entry: e, URL: resultURL(e.Name)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getResultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.proc.Store()
	if st == nil {
		http.NotFound(w, r)
		return
	}
	f, entry, err := st.Open(r.PathValue("name"))
	switch {
	case errors.Is(err, store.ErrInvalidName):
		http.Error(w, "invalid result name", http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		http.Error(w, "failed to open result", http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, entry.Name, entry.ModTime, f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func queryBool(r *http.Request, key string) bool { return parseBool(r.URL.Query().Get(key)) }

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// decodeFrame turns a WebSocket payload into an image.
func decodeFrame(data []byte, binary bool) (image.Image, error) {
	if binary {
		return utils.DecodeImage(data)
	}
	return utils.DecodeDataURLImage(string(data))
}
