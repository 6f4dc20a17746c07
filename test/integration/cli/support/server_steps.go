package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/cardrectify/internal/detector/contour"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/server"
	"github.com/MeKo-Tech/cardrectify/internal/store"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

// HTTPTestServerWrapper runs a rectification server on httptest.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
	Processor  *pipeline.Processor
}

// Close shuts the server down and releases the processor.
func (w *HTTPTestServerWrapper) Close() {
	w.Server.Close()
	_ = w.Processor.Close()
}

// URL returns the absolute URL for path.
func (w *HTTPTestServerWrapper) URL(path string) string { return w.Server.URL + path }

// RegisterServerSteps registers HTTP and WebSocket steps.
func (tc *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, func() error { return tc.startServer(true, nil) })
	sc.Step(`^the server is running with client corners only$`, func() error { return tc.startServer(false, nil) })
	sc.Step(`^the server is running with CORS origin "([^"]*)"$`, func(origin string) error {
		return tc.startServer(true, func(c *server.Config) { c.CORSOrigin = origin })
	})
	sc.Step(`^the server is running with a limit of (\d+) requests? per minute$`, func(n int) error {
		return tc.startServer(true, func(c *server.Config) { c.RateLimit.RequestsPerMinute = n })
	})

	sc.Step(`^I send a GET request to "([^"]*)"$`, tc.iSendAGETRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, func(name, path string) error {
		return tc.iUpload(name, path, nil)
	})
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with corners "([^"]*)"$`, func(name, path, corners string) error {
		return tc.iUpload(name, path, map[string]string{"corners": corners})
	})
	sc.Step(`^I post "([^"]*)" as a data URL to "([^"]*)" with corners "([^"]*)"$`, tc.iPostDataURL)
	sc.Step(`^I stream "([^"]*)" as (\d+) frames?$`, tc.iStreamFrames)

	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be "([^"]*)"$`, tc.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, tc.theResponseHeaderShouldBe)
	sc.Step(`^the store should hold (\d+) results?$`, tc.theStoreShouldHoldResults)
}

// startServer wires a contour detector (or none) and a result store under
// WorkDir/corrected.
func (tc *TestContext) startServer(withDetector bool, mutate func(*server.Config)) error {
	scfg := store.DefaultConfig()
	scfg.Dir = tc.Path("corrected")
	st, err := store.New(scfg)
	if err != nil {
		return err
	}
	b := pipeline.NewBuilder().WithStore(st)
	if withDetector {
		det, err := contour.New(contour.DefaultConfig())
		if err != nil {
			return err
		}
		b = b.WithDetector(det)
	}
	proc, err := b.Build()
	if err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := server.NewServer(cfg, proc)
	if err != nil {
		_ = proc.Close()
		return err
	}
	tc.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(srv.Handler()),
		TestServer: srv,
		Processor:  proc,
	}
	return nil
}

func (tc *TestContext) requireServer() error {
	if tc.HTTPTestServer == nil {
		return fmt.Errorf("server is not running")
	}
	return nil
}

func (tc *TestContext) record(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.LastHTTPStatusCode = resp.StatusCode
	tc.LastHTTPResponse = string(body)
	tc.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		tc.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (tc *TestContext) iSendAGETRequestTo(path string) error {
	if err := tc.requireServer(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, tc.HTTPTestServer.URL(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Origin", "http://example.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

func (tc *TestContext) iUpload(name, path string, fields map[string]string) error {
	if err := tc.requireServer(); err != nil {
		return err
	}
	data, err := os.ReadFile(tc.Path(name))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := http.Post(tc.HTTPTestServer.URL(path), mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

func (tc *TestContext) iPostDataURL(name, path, corners string) error {
	if err := tc.requireServer(); err != nil {
		return err
	}
	img, _, err := utils.LoadImage(tc.Path(name))
	if err != nil {
		return err
	}
	dataURL, err := utils.EncodeDataURL(img, utils.FormatPNG, 0)
	if err != nil {
		return err
	}
	var pts []float64
	if err := json.Unmarshal([]byte("["+corners+"]"), &pts); err != nil {
		return fmt.Errorf("invalid corners %q: %w", corners, err)
	}
	payload, err := json.Marshal(map[string]any{"image": dataURL, "corners": pts, "confidence": 1, "inline": true})
	if err != nil {
		return err
	}
	resp, err := http.Post(tc.HTTPTestServer.URL(path), "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return tc.record(resp)
}

// iStreamFrames sends the image n times over /ws/frames and keeps the last
// reply as the response.
func (tc *TestContext) iStreamFrames(name string, n int) error {
	if err := tc.requireServer(); err != nil {
		return err
	}
	data, err := os.ReadFile(tc.Path(name))
	if err != nil {
		return err
	}
	u := "ws" + strings.TrimPrefix(tc.HTTPTestServer.URL("/ws/frames"), "http")
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	for i := range n {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		tc.LastHTTPResponse = string(msg)
	}
	tc.LastHTTPStatusCode = http.StatusOK
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(code int) error {
	if tc.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, tc.LastHTTPStatusCode, tc.LastHTTPResponse)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContain(s string) error {
	if !strings.Contains(tc.LastHTTPResponse, s) {
		return fmt.Errorf("response does not contain %q: %s", s, tc.LastHTTPResponse)
	}
	return nil
}

func (tc *TestContext) theResponseJSONFieldShouldBe(path, want string) error {
	got, err := jsonField(tc.LastHTTPResponse, path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("response field %s: expected %q, got %q", path, want, got)
	}
	return nil
}

func (tc *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := tc.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != want {
		return fmt.Errorf("header %s: expected %q, got %q", name, want, got)
	}
	return nil
}

func (tc *TestContext) theStoreShouldHoldResults(n int) error {
	return tc.theDirectoryShouldContainFiles("corrected", n)
}
