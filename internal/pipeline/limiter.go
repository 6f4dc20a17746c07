package pipeline

import (
	"context"
	"runtime"
	"sync"
)

// LimiterStats is a snapshot of limiter usage.
type LimiterStats struct {
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Peak     int   `json:"peak"`
	Acquired int64 `json:"acquired"`
	Rejected int64 `json:"rejected"`
}

// Limiter bounds the number of concurrent rectifications.
type Limiter struct {
	sem   chan struct{}
	mu    sync.Mutex
	stats LimiterStats
}

// NewLimiter allows n concurrent holders; n <= 0 means runtime.NumCPU().
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Limiter{sem: make(chan struct{}, n), stats: LimiterStats{Capacity: n}}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		l.update(1)
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.stats.Rejected++
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.update(-1)
	default:
	}
}

func (l *Limiter) update(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.InUse += delta
	if delta > 0 {
		l.stats.Acquired++
	}
	if l.stats.InUse > l.stats.Peak {
		l.stats.Peak = l.stats.InUse
	}
}

// Stats returns a copy of the current statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
