// Package benchmark times the rectification stages on real images.
package benchmark

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/common"
	"github.com/MeKo-Tech/cardrectify/internal/pipeline"
	"github.com/MeKo-Tech/cardrectify/internal/rectify"
)

// Benchmark is one named unit of work.
type Benchmark struct {
	Name string
	Func func(ctx context.Context) error
}

// Suite runs benchmarks in registration order.
type Suite struct {
	benchmarks []Benchmark
	results    []common.BenchmarkResult
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers a benchmark.
func (s *Suite) Add(name string, fn func(ctx context.Context) error) {
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Names lists the registered benchmarks.
func (s *Suite) Names() []string {
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.Name
	}
	return names
}

// Run runs a single benchmark.
func (s *Suite) Run(ctx context.Context, name string, iterations int) common.BenchmarkResult {
	for _, b := range s.benchmarks {
		if b.Name == name {
			return runBenchmark(ctx, b, iterations)
		}
	}
	return common.BenchmarkResult{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
}

// RunAll runs every benchmark and keeps the results.
func (s *Suite) RunAll(ctx context.Context, iterations int) []common.BenchmarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]common.BenchmarkResult, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		s.results = append(s.results, runBenchmark(ctx, b, iterations))
	}
	return s.results
}

// Results returns the last RunAll results.
func (s *Suite) Results() []common.BenchmarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func runBenchmark(ctx context.Context, b Benchmark, iterations int) common.BenchmarkResult {
	if iterations < 1 {
		iterations = 1
	}
	runtime.GC()
	memBefore := common.GetMemoryStats()

	timer := common.NewNamedTimer(b.Name)
	var err error
	for range iterations {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = b.Func(ctx); err != nil {
			break
		}
	}
	duration := timer.Stop()

	return common.BenchmarkResult{
		Name:         b.Name,
		Duration:     duration,
		MemoryBefore: memBefore,
		MemoryAfter:  common.GetMemoryStats(),
		Iterations:   iterations,
		Error:        err,
	}
}

// WriteText prints one line per result.
func WriteText(w io.Writer, results []common.BenchmarkResult) error {
	for _, r := range results {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes name, iterations, total and average milliseconds and error.
func WriteCSV(w io.Writer, results []common.BenchmarkResult) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"name", "iterations", "total_ms", "avg_ms", "error"})
	for _, r := range results {
		errText := ""
		if r.Error != nil {
			errText = r.Error.Error()
		}
		_ = cw.Write([]string{
			r.Name,
			strconv.Itoa(r.Iterations),
			strconv.FormatFloat(ms(r.Duration), 'f', 3, 64),
			strconv.FormatFloat(ms(r.Average()), 'f', 3, 64),
			errText,
		})
	}
	cw.Flush()
	return cw.Error()
}

func ms(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e6 }

// NewPipelineSuite registers one benchmark per stage plus the full request,
// all on img. The detector runs once up front to supply the stage inputs.
func NewPipelineSuite(ctx context.Context, proc *pipeline.Processor, img image.Image) (*Suite, error) {
	if proc == nil || img == nil {
		return nil, errors.New("benchmark needs a processor and an image")
	}
	base, err := proc.Process(ctx, pipeline.Request{Image: img})
	if err != nil {
		return nil, fmt.Errorf("initial run failed: %w", err)
	}
	cfg := proc.RectifyConfig()
	corners := base.Detection.Corners
	quad := base.Rectified.Quad
	size := base.Rectified.Size
	h := base.Rectified.Transform
	opts := rectify.WarpOptions{Interpolation: cfg.Interpolation, Background: cfg.Background}

	s := NewSuite()
	if det := proc.Detector(); det != nil {
		s.Add("detect", func(ctx context.Context) error {
			_, err := det.Detect(ctx, img)
			return err
		})
	}
	s.Add("order", func(context.Context) error {
		_, err := rectify.OrderCorners(corners, cfg)
		return err
	})
	s.Add("estimate", func(context.Context) error {
		_, err := rectify.EstimateSize(quad, cfg)
		return err
	})
	s.Add("homography", func(context.Context) error {
		_, err := rectify.EstimateHomography(quad, size)
		return err
	})
	s.Add("warp", func(context.Context) error {
		_, err := rectify.Warp(img, h, size, opts)
		return err
	})
	s.Add("process", func(ctx context.Context) error {
		_, err := proc.Process(ctx, pipeline.Request{Image: img})
		return err
	})
	return s, nil
}
