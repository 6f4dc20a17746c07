package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // 0 = runtime.NumCPU()
	ProgressCallback ProgressCallback // optional
}

// DefaultParallelConfig uses one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// Item is the outcome of one request in a ProcessAll call.
type Item struct {
	Index   int
	Outcome *Outcome
	Err     error
}

type job struct {
	index int
	req   Request
}

// ProcessAll runs reqs on a worker pool. The returned slice has one Item
// per request in input order; requests not started before ctx ends carry
// ctx.Err().
func (p *Processor) ProcessAll(ctx context.Context, reqs []Request, cfg ParallelConfig) []Item {
	items := make([]Item, len(reqs))
	for i := range items {
		items[i].Index = i
	}
	if len(reqs) == 0 {
		return items
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(reqs))

	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback.OnStart(len(reqs))
		defer cfg.ProgressCallback.OnComplete()
	}

	jobs := make(chan job)
	results := make(chan Item, len(reqs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out, err := p.Process(ctx, j.req)
				results <- Item{Index: j.index, Outcome: out, Err: err}
			}
		}()
	}

	finished := 0
	go func() {
		defer close(jobs)
		for i, r := range reqs {
			select {
			case jobs <- job{index: i, req: r}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([]bool, len(reqs))
	for it := range results {
		items[it.Index] = it
		done[it.Index] = true
		finished++
		if cfg.ProgressCallback != nil {
			if it.Err != nil {
				cfg.ProgressCallback.OnError(it.Index, it.Err)
			}
			cfg.ProgressCallback.OnProgress(finished, len(reqs))
		}
	}

	for i := range items {
		if !done[i] {
			items[i].Err = ctx.Err()
		}
	}
	return items
}

// ParallelStats summarises a ProcessAll run.
type ParallelStats struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Workers          int           `json:"workers"`
	Duration         time.Duration `json:"duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats computes statistics for items processed in duration.
func CalculateParallelStats(items []Item, duration time.Duration, workers int) ParallelStats {
	s := ParallelStats{Total: len(items), Workers: workers, Duration: duration}
	for _, it := range items {
		if it.Err == nil && it.Outcome != nil {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.AveragePerImage = duration / time.Duration(s.Total)
	}
	if duration > 0 {
		s.ThroughputPerSec = float64(s.Total) / duration.Seconds()
	}
	return s
}
