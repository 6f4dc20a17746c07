package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/detector/mock"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFrames(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/frames"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) FrameResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp FrameResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestFrames_DataURLText(t *testing.T) {
	s := newTestServer(t, mock.Returning(keystone(0.9)))
	conn := dialFrames(t, s)

	frame, err := utils.EncodeDataURL(scene(), utils.FormatPNG, 0)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	resp := readFrame(t, conn)
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, 1, resp.Seq)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 239, resp.Result.Width)
	assert.NotEmpty(t, resp.Result.Name)
}

func TestFrames_JSONAndBinary(t *testing.T) {
	s := newTestServer(t, mock.Returning(keystone(0.9)))
	conn := dialFrames(t, s)

	frame, err := utils.EncodeDataURL(scene(), utils.FormatJPEG, 90)
	require.NoError(t, err)
	msg, err := json.Marshal(FrameRequest{Type: "frame", ID: "f-1", Image: frame, Inline: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	resp := readFrame(t, conn)
	assert.Equal(t, "f-1", resp.ID)
	require.True(t, resp.Success, resp.Error)
	assert.NotEmpty(t, resp.Result.DataURL)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pngBytes(t, scene())))
	resp = readFrame(t, conn)
	assert.Equal(t, 2, resp.Seq)
	assert.True(t, resp.Success)
}

func TestFrames_Errors(t *testing.T) {
	s := newTestServer(t, mock.Returning(keystone(0.1)))
	conn := dialFrames(t, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp := readFrame(t, conn)
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "bad_request", resp.Kind)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	resp = readFrame(t, conn)
	assert.Equal(t, "bad_request", resp.Kind)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pngBytes(t, scene())))
	resp = readFrame(t, conn)
	assert.Equal(t, "result", resp.Type)
	assert.False(t, resp.Success)
	assert.Equal(t, "low_confidence", resp.Kind)
	assert.NotEmpty(t, resp.Message)
}

func TestFrames_ClientConfidence(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialFrames(t, s)

	frame, err := utils.EncodeDataURL(scene(), utils.FormatPNG, 0)
	require.NoError(t, err)
	corners := []float64{40, 30, 279, 30, 259, 178, 60, 178}
	send := func(conf float64) FrameResponse {
		msg, err := json.Marshal(FrameRequest{Type: "frame", Image: frame, Corners: corners, Confidence: &conf})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
		return readFrame(t, conn)
	}

	resp := send(1.5)
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "bad_request", resp.Kind)

	resp = send(0)
	assert.False(t, resp.Success)
	assert.Equal(t, "low_confidence", resp.Kind)

	resp = send(0.8)
	require.True(t, resp.Success, resp.Error)
	assert.InDelta(t, 0.8, resp.Result.Confidence, 1e-12)
}
