package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/testutil"
)

// scene is one synthetic photo with its ground-truth corners.
type scene struct {
	Name    string        `json:"name"`
	File    string        `json:"file"`
	Corners geometry.Quad `json:"corners"`
	Width   int           `json:"canvas_width"`
	Height  int           `json:"canvas_height"`
	Note    string        `json:"note,omitempty"`
}

var (
	lightCard = color.NRGBA{R: 215, G: 210, B: 200, A: 255}
	darkCard  = color.NRGBA{R: 30, G: 35, B: 60, A: 255}
	darkDesk  = color.NRGBA{R: 25, G: 25, B: 30, A: 255}
	lightDesk = color.NRGBA{R: 235, G: 235, B: 230, A: 255}
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	var (
		outDir  = flag.String("out", "testdata/cards", "output directory, relative to the project root")
		verbose = flag.Bool("v", false, "verbose output")
		help    = flag.Bool("h", false, "show help")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic card photos with ground-truth corners.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	dir := filepath.Join(root, *outDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		slog.Error("Failed to create output directory", "error", err)
		os.Exit(1)
	}

	scenes, err := generate(dir, *verbose)
	if err != nil {
		slog.Error("Failed to generate card photos", "error", err)
		os.Exit(1)
	}
	if err := writeFixtures(filepath.Join(dir, "corners.json"), scenes); err != nil {
		slog.Error("Failed to write fixtures", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed", "dir", dir, "photos", len(scenes))
}

func generate(dir string, verbose bool) ([]scene, error) {
	rotated := geometry.Quad{{X: 70, Y: 20}, {X: 290, Y: 60}, {X: 260, Y: 200}, {X: 40, Y: 160}}
	wide := geometry.Quad{{X: 20, Y: 40}, {X: 300, Y: 25}, {X: 310, Y: 190}, {X: 15, Y: 200}}

	photos := []struct {
		name string
		card image.Image
		quad geometry.Quad
		bg   color.NRGBA
		note string
	}{
		{"keystone_light", testutil.PlainCard(lightCard), testutil.KeystoneQuad(), darkDesk, "light card on a dark desk"},
		{"keystone_dark", testutil.PlainCard(darkCard), testutil.KeystoneQuad(), lightDesk, "dark card on a light desk"},
		{"rotated", testutil.PlainCard(lightCard), rotated, darkDesk, "card turned about 10 degrees"},
		{"wide", testutil.PlainCard(lightCard), wide, darkDesk, "card filling most of the frame"},
		{"gradient", testutil.GenerateCard(testutil.DefaultCardConfig()), testutil.KeystoneQuad(), darkDesk,
			"textured card, for model-based detection"},
	}

	const w, h = 320, 220
	var out []scene
	for _, s := range photos {
		img := testutil.ProjectCard(s.card, s.quad, w, h, s.bg)
		file := s.name + ".png"
		if err := imaging.Save(img, filepath.Join(dir, file)); err != nil {
			return nil, fmt.Errorf("save %s: %w", file, err)
		}
		if verbose {
			slog.Info("Generated card photo", "file", file, "corners", s.quad)
		}
		out = append(out, scene{Name: s.name, File: file, Corners: s.quad, Width: w, Height: h, Note: s.note})
	}
	return out, nil
}

func writeFixtures(path string, scenes []scene) error {
	data, err := json.MarshalIndent(scenes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
