package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/testutil"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scene() image.Image {
	card := testutil.GenerateCard(testutil.CardConfig{Width: 240, Height: 150})
	return testutil.ProjectCard(card, testutil.KeystoneQuad(), 320, 220, color.NRGBA{A: 255})
}

// keystoneDetector finds the keystone card in 320 px wide scenes only.
var keystoneDetector = detector.Func(func(_ context.Context, img image.Image) (detector.Result, error) {
	if img.Bounds().Dx() != 320 {
		return detector.Result{}, detector.ErrNoCard
	}
	return detector.Result{Corners: [4]geometry.Point(testutil.KeystoneQuad()), Confidence: 0.8, Backend: "test"}, nil
})

func newProcessor(t *testing.T) *pipeline.Processor {
	t.Helper()
	p, err := pipeline.NewBuilder().WithDetector(keystoneDetector).Build()
	require.NoError(t, err)
	return p
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Workers = 2
	return cfg
}

func TestRun_ImagesAndFailures(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteImage(t, dir, "a.png", scene())
	testutil.WriteImage(t, dir, "b.jpg", image.NewNRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.png"), []byte("not an image"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))

	cfg := testConfig(t)
	res, err := Run(context.Background(), newProcessor(t), []string{dir}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)

	byName := map[string]Entry{}
	for _, e := range res.Entries {
		byName[filepath.Base(e.Source)] = e
	}
	ok := byName["a.png"]
	assert.True(t, ok.OK())
	assert.Equal(t, 239, ok.Width)
	assert.Equal(t, 149, ok.Height)
	assert.FileExists(t, ok.Output)
	assert.Equal(t, "a_rectified.jpg", filepath.Base(ok.Output))

	assert.Equal(t, "no_card", byName["b.jpg"].Kind)
	assert.Equal(t, "load", byName["c.png"].Kind)

	s := res.Summarize()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
}

func TestRun_PDF(t *testing.T) {
	dir := t.TempDir()
	img := testutil.WriteImage(t, dir, "scan.png", scene())
	pdfPath := filepath.Join(dir, "scan.pdf")
	require.NoError(t, api.ImportImagesFile([]string{img}, pdfPath, nil, nil))

	cfg := testConfig(t)
	cfg.ImageFormat = "png"
	res, err := Run(context.Background(), newProcessor(t), []string{pdfPath}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	require.True(t, e.OK(), e.Error)
	assert.Equal(t, 1, e.Index)
	assert.True(t, strings.HasSuffix(e.Output, "_rectified.png"))
}

func TestRun_Errors(t *testing.T) {
	p := newProcessor(t)
	_, err := Run(context.Background(), p, []string{t.TempDir()}, testConfig(t))
	assert.ErrorIs(t, err, ErrNoInputs)

	_, err = Run(context.Background(), p, []string{"/does/not/exist"}, testConfig(t))
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Format = "xml"
	_, err = Run(context.Background(), p, []string{t.TempDir()}, cfg)
	assert.Error(t, err)
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.png", "c.pdf", "skip.txt", "sub/d.jpg", "sub/e_thumb.jpg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}

	files, err := discoverFiles([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = discoverFiles([]string{dir}, true, nil, []string{"*_thumb.*"})
	require.NoError(t, err)
	assert.Len(t, files, 4)

	files, err = discoverFiles([]string{dir}, true, []string{"*.jpg"}, nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = discoverFiles([]string{filepath.Join(dir, "skip.txt")}, false, nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func sampleResult() *Result {
	return &Result{Entries: []Entry{
		{Source: "a.jpg", Output: "out/a_rectified.jpg", Width: 860, Height: 540, Confidence: 0.9, Backend: "contour"},
		{Source: "b.jpg", Error: "no card detected", Kind: "internal"},
	}}
}

func TestFormatResults(t *testing.T) {
	r := sampleResult()

	text, err := r.FormatResults(FormatText)
	require.NoError(t, err)
	assert.Contains(t, text, "OK   a.jpg -> out/a_rectified.jpg (860x540")
	assert.Contains(t, text, "FAIL b.jpg: [internal]")
	assert.Contains(t, text, "2 processed, 1 succeeded, 1 failed")

	js, err := r.FormatResults(FormatJSON)
	require.NoError(t, err)
	var decoded struct {
		Entries []Entry `json:"entries"`
		Summary Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Len(t, decoded.Entries, 2)
	assert.Equal(t, 1, decoded.Summary.ByKind["internal"])

	cs, err := r.FormatResults(FormatCSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(cs)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "source", rows[0][0])

	_, err = r.FormatResults("yaml")
	assert.Error(t, err)

	out := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, r.SaveResults(FormatCSV, out))
	assert.FileExists(t, out)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.ImageFormat = "gif"
	assert.Error(t, cfg.Validate())
	cfg = DefaultConfig()
	cfg.Quality = 0
	assert.Error(t, cfg.Validate())
	cfg = DefaultConfig()
	cfg.Workers = -1
	assert.Error(t, cfg.Validate())
}
