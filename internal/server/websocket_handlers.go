package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// FrameRequest is a JSON frame message. Clients may also send a bare data
// URL as a text message or encoded image bytes as a binary message.
type FrameRequest struct {
	Type       string    `json:"type"` // "frame"
	ID         string    `json:"id,omitempty"`
	Image      string    `json:"image"`
	Corners    []float64 `json:"corners,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Inline     bool      `json:"inline,omitempty"`
	Save       *bool     `json:"save,omitempty"`
}

// FrameResponse answers one frame.
type FrameResponse struct {
	Type string `json:"type"` // "result" or "error"
	ID   string `json:"id,omitempty"`
	Seq  int    `json:"seq"`
	RectifyResponse
}

// WebSocketConnWriter is the subset of *websocket.Conn used for replies.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// framesWebSocketHandler rectifies webcam frames streamed over a WebSocket.
func (s *Server) framesWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	seq := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()
		seq++
		s.handleFrame(r, conn, msgType, data, seq)
	}
}

func (s *Server) handleFrame(r *http.Request, conn WebSocketConnWriter, msgType int, data []byte, seq int) {
	req := pipeline.Request{Barcodes: s.cfg.Barcodes, Save: true}
	var frame FrameRequest
	binary := msgType == websocket.BinaryMessage
	payload := data

	if !binary && !strings.HasPrefix(strings.TrimSpace(string(data)), "data:") {
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendFrame(conn, FrameResponse{Type: "error", Seq: seq,
				RectifyResponse: RectifyResponse{Error: "invalid message: " + err.Error(), Kind: "bad_request"}})
			return
		}
		payload = []byte(frame.Image)
		if len(frame.Corners) > 0 {
			corners, err := cornersFromFloats(frame.Corners)
			if err != nil {
				s.sendFrame(conn, FrameResponse{Type: "error", ID: frame.ID, Seq: seq,
					RectifyResponse: RectifyResponse{Error: err.Error(), Kind: "bad_request"}})
				return
			}
			if err := checkClientConfidence(frame.Confidence); err != nil {
				s.sendFrame(conn, FrameResponse{Type: "error", ID: frame.ID, Seq: seq,
					RectifyResponse: RectifyResponse{Error: err.Error(), Kind: "bad_request"}})
				return
			}
			req.Corners = &corners
			req.Confidence = frame.Confidence
		}
		if frame.Save != nil {
			req.Save = *frame.Save
		}
	}

	img, err := decodeFrame(payload, binary)
	if err != nil {
		s.sendFrame(conn, FrameResponse{Type: "error", ID: frame.ID, Seq: seq,
			RectifyResponse: RectifyResponse{Error: "invalid image: " + err.Error(), Kind: "bad_request"}})
		return
	}
	req.Image = img

	resp, _ := s.run(r.Context(), req, frame.Inline, "websocket")
	s.sendFrame(conn, FrameResponse{Type: "result", ID: frame.ID, Seq: seq, RectifyResponse: resp})
}

func (s *Server) sendFrame(conn WebSocketConnWriter, resp FrameResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
