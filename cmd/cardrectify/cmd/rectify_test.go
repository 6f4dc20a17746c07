package cmd

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cardrectify/internal/testutil"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

const keystoneCorners = "40,30,279,30,259,178,60,178"

// photo writes the keystone test photo into a fresh isolated directory.
func photo(t *testing.T) string {
	t.Helper()
	return testutil.WriteImage(t, t.TempDir(), "photo.png", testutil.KeystonePhoto())
}

func TestRectifyWithCorners(t *testing.T) {
	in := photo(t)
	target := filepath.Join(filepath.Dir(in), "card.png")

	out, _, err := run(t, "rectify", in, "--corners", keystoneCorners, "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "-> "+target+" (239x149, confidence 1.00, static)")

	img, _, err := utils.LoadImage(target)
	require.NoError(t, err)
	assert.Equal(t, 239, img.Bounds().Dx())
	assert.Equal(t, 149, img.Bounds().Dy())
}

func TestRectifyCornerOrderDoesNotMatter(t *testing.T) {
	in := photo(t)
	out, _, err := run(t, "rectify", in, "--corners", "259,178,40,30,60,178,279,30", "--json")
	require.NoError(t, err)

	var r rectifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 239, r.Width)
	assert.Equal(t, 149, r.Height)
	require.NotNil(t, r.Quad)
	assert.InDelta(t, 40, r.Quad[0].X, 1e-9)
	assert.InDelta(t, 30, r.Quad[0].Y, 1e-9)
	assert.Equal(t, filepath.Join(filepath.Dir(in), "photo_rectified.jpg"), r.Output)
	assert.FileExists(t, r.Output)
}

func TestRectifyCardSize(t *testing.T) {
	in := photo(t)
	out, _, err := run(t, "rectify", in, "--corners", keystoneCorners, "--card-size", "--image-format", "png")
	require.NoError(t, err)
	assert.Contains(t, out, "(860x540")
	assert.FileExists(t, filepath.Join(filepath.Dir(in), "photo_rectified.png"))
}

func TestRectifyContourDetector(t *testing.T) {
	in := photo(t)
	out, _, err := run(t, "rectify", in, "--json")
	require.NoError(t, err)

	var r rectifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "contour", r.Backend)
	assert.Greater(t, r.Confidence, 0.5)
	assert.InDelta(t, 239, r.Width, 8)
	assert.InDelta(t, 149, r.Height, 8)
}

func TestRectifyLowConfidenceIsRejected(t *testing.T) {
	in := photo(t)
	out, _, err := run(t, "rectify", in, "--corners", keystoneCorners, "--confidence", "0.2")
	require.Error(t, err)

	var rejected *rejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, 1, rejected.failed)
	assert.Contains(t, out, "rejected (low_confidence)")
}

func TestRectifyDegenerateCornersJSON(t *testing.T) {
	in := photo(t)
	out, _, err := run(t, "rectify", in, "--corners", "0,0,10,0,20,0,30,0", "--json")
	require.Error(t, err)

	var r rectifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "degenerate", r.Kind)
	assert.NotEmpty(t, r.Message)
	assert.Empty(t, r.Output)
}

func TestRectifyMissingInput(t *testing.T) {
	out, _, err := run(t, "rectify", "nope.jpg", "--corners", keystoneCorners)
	require.Error(t, err)
	assert.Contains(t, out, "nope.jpg: rejected (load)")
}

func TestRectifyFlagValidation(t *testing.T) {
	in := photo(t)

	_, _, err := run(t, "rectify", in, "--corners", "1,2,3")
	require.Error(t, err)

	_, _, err = run(t, "rectify", in, "--quality", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quality")

	_, _, err = run(t, "rectify", in, "--interpolation", "cubic")
	require.Error(t, err)

	_, _, err = run(t, "rectify")
	require.Error(t, err)
}

func TestRectifySeveralInputsIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteImage(t, dir, "a.png", testutil.KeystonePhoto())
	b := testutil.WriteImage(t, dir, "b.png", testutil.KeystonePhoto())
	outDir := filepath.Join(dir, "out")

	out, _, err := run(t, "rectify", a, b, "--corners", keystoneCorners, "--out", outDir, "--image-format", "webp")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "->"))
	assert.FileExists(t, filepath.Join(outDir, "a_rectified.webp"))
	assert.FileExists(t, filepath.Join(outDir, "b_rectified.webp"))
}

func TestRectifySaveKeepsResultInStore(t *testing.T) {
	in := photo(t)
	storeDir := filepath.Join(filepath.Dir(in), "store")
	t.Setenv("CARDRECTIFY_STORE_DIR", storeDir)

	out, _, err := run(t, "rectify", in, "--corners", keystoneCorners, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "saved as ")

	entries, err := filepath.Glob(filepath.Join(storeDir, "*"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "x.png", outputPath("in/photo.jpg", "x.png", true, utils.FormatPNG))
	assert.Equal(t, filepath.Join("dst", "photo_rectified.png"), outputPath("in/photo.jpg", "dst", false, utils.FormatPNG))
	assert.Equal(t, filepath.Join("in", "photo_rectified.jpg"), outputPath("in/photo.jpg", "", false, utils.FormatJPEG))
}
