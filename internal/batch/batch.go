// Package batch rectifies every card photo found under a set of paths.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/barcode"
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/pdf"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
	"github.com/MeKo-Tech/cardrectify/internal/utils"
)

// ErrNoInputs is returned when discovery finds nothing to process.
var ErrNoInputs = errors.New("no image or PDF files found")

// Entry is the outcome for one input image. PDF inputs yield one entry per
// embedded image.
type Entry struct {
	Source     string           `json:"source"`
	Page       int              `json:"page,omitempty"`
	Index      int              `json:"index,omitempty"`
	Output     string           `json:"output,omitempty"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Backend    string           `json:"backend,omitempty"`
	Quad       *geometry.Quad   `json:"quad,omitempty"`
	Barcodes   []barcode.Result `json:"barcodes,omitempty"`
	Error      string           `json:"error,omitempty"`
	Kind       string           `json:"kind,omitempty"`
}

// OK reports whether the entry was rectified.
func (e Entry) OK() bool { return e.Error == "" }

// Result holds the result of a batch run.
type Result struct {
	Entries  []Entry                `json:"entries"`
	Duration time.Duration          `json:"duration_ns"`
	Stats    pipeline.ParallelStats `json:"stats"`
}

// input is one decoded image waiting to be processed.
type input struct {
	source string
	page   int
	index  int
	img    image.Image
	err    error
}

// Run discovers inputs under paths, rectifies them with proc and writes the
// outputs to cfg.OutputDir. Per-file failures are reported in the entries;
// the returned error covers setup problems only.
func Run(ctx context.Context, proc *pipeline.Processor, paths []string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := discoverFiles(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoInputs
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	inputs := loadInputs(files, cfg.PDFPages)
	slog.Debug("Batch inputs loaded", "files", len(files), "images", len(inputs))

	var reqs []pipeline.Request
	var pending []int
	entries := make([]Entry, len(inputs))
	for i, in := range inputs {
		entries[i] = Entry{Source: in.source, Page: in.page, Index: in.index}
		if in.err != nil {
			entries[i].Error = in.err.Error()
			entries[i].Kind = "load"
			continue
		}
		reqs = append(reqs, pipeline.Request{Image: in.img, Barcodes: cfg.Barcodes})
		pending = append(pending, i)
	}

	pcfg := pipeline.ParallelConfig{MaxWorkers: cfg.Workers}
	switch {
	case cfg.Quiet:
	case cfg.ShowProgress:
		pcfg.ProgressCallback = pipeline.NewConsoleProgressCallback(os.Stderr, "Rectifying: ")
	default:
		pcfg.ProgressCallback = pipeline.NewLogProgressCallback(nil, slog.LevelDebug, 10)
	}

	start := time.Now()
	items := proc.ProcessAll(ctx, reqs, pcfg)
	format, _ := utils.ParseFormat(cfg.ImageFormat)
	for j, it := range items {
		e := &entries[pending[j]]
		if it.Err != nil {
			e.Error = it.Err.Error()
			e.Kind = rectify.KindName(it.Err)
			continue
		}
		fillEntry(e, it.Outcome)
		out := filepath.Join(cfg.OutputDir, outputName(inputs[pending[j]], format))
		if err := utils.SaveImage(it.Outcome.Rectified.Image, out, cfg.Quality); err != nil {
			e.Error = err.Error()
			e.Kind = "save"
			continue
		}
		e.Output = out
	}
	duration := time.Since(start)

	return &Result{
		Entries:  entries,
		Duration: duration,
		Stats:    pipeline.CalculateParallelStats(items, duration, cfg.Workers),
	}, nil
}

func fillEntry(e *Entry, o *pipeline.Outcome) {
	q := o.Rectified.Quad
	e.Quad = &q
	e.Width = o.Rectified.Size.Width
	e.Height = o.Rectified.Size.Height
	e.Confidence = o.Detection.Confidence
	e.Backend = o.Detection.Backend
	e.Barcodes = o.Barcodes
}

func loadInputs(files []string, pages string) []input {
	var out []input
	for _, f := range files {
		if !isPDF(f) {
			img, _, err := utils.LoadImage(f)
			out = append(out, input{source: f, img: img, err: err})
			continue
		}
		doc, err := pdf.ExtractImages(f, pdf.Options{Pages: pages})
		if err != nil {
			out = append(out, input{source: f, err: err})
			continue
		}
		n := len(out)
		for _, p := range doc {
			for i, img := range p.Images {
				out = append(out, input{source: f, page: p.Number, index: i + 1, img: img})
			}
		}
		if len(out) == n {
			out = append(out, input{source: f, err: errors.New("no embedded images")})
		}
	}
	return out
}

func outputName(in input, f utils.Format) string {
	base := strings.TrimSuffix(filepath.Base(in.source), filepath.Ext(in.source))
	if in.page > 0 || in.index > 0 {
		base = fmt.Sprintf("%s_p%d_%d", base, in.page, in.index)
	}
	return base + "_rectified" + f.Ext()
}
