package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	progress []int
	errors   int
	done     bool
}

func (r *recordingProgress) OnStart(total int) { r.started = total }
func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	r.progress = append(r.progress, current)
	r.mu.Unlock()
}
func (r *recordingProgress) OnComplete() { r.done = true }
func (r *recordingProgress) OnError(int, error) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

// widthDetector succeeds on keystone scenes and fails on anything else.
var widthDetector = detector.Func(func(_ context.Context, img image.Image) (detector.Result, error) {
	if img.Bounds().Dx() != 320 {
		return detector.Result{}, detector.ErrNoCard
	}
	return keystoneResult(0.9), nil
})

func TestProcessAll_PreservesOrder(t *testing.T) {
	p := newProcessor(t, widthDetector)
	reqs := []Request{
		{Image: keystoneScene()},
		{Image: image.NewNRGBA(image.Rect(0, 0, 50, 50))},
		{Image: keystoneScene()},
		{Image: image.NewUniform(color.Black)},
		{Image: keystoneScene()},
	}
	prog := &recordingProgress{}

	items := p.ProcessAll(context.Background(), reqs, ParallelConfig{MaxWorkers: 3, ProgressCallback: prog})
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, i, it.Index)
	}
	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, detector.ErrNoCard)
	assert.NoError(t, items[2].Err)
	assert.Error(t, items[3].Err)
	assert.NoError(t, items[4].Err)

	assert.Equal(t, 5, prog.started)
	assert.Len(t, prog.progress, 5)
	assert.Equal(t, 2, prog.errors)
	assert.True(t, prog.done)

	stats := CalculateParallelStats(items, time.Second, 3)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.InDelta(t, 5.0, stats.ThroughputPerSec, 1e-9)
}

func TestProcessAll_Cancelled(t *testing.T) {
	p := newProcessor(t, widthDetector)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := p.ProcessAll(ctx, []Request{{Image: keystoneScene()}, {Image: keystoneScene()}}, DefaultParallelConfig())
	for _, it := range items {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
}

func TestProcessAll_Empty(t *testing.T) {
	assert.Empty(t, newProcessor(t, widthDetector).ProcessAll(context.Background(), nil, ParallelConfig{}))
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()

	s := l.Stats()
	assert.Equal(t, 1, s.Capacity)
	assert.Equal(t, 0, s.InUse)
	assert.Equal(t, 1, s.Peak)
	assert.Equal(t, int64(2), s.Acquired)
	assert.Equal(t, int64(1), s.Rejected)

	assert.Positive(t, NewLimiter(0).Stats().Capacity)
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleProgressCallback(&buf, "cards ")
	c.OnStart(2)
	c.OnProgress(2, 2)
	c.OnError(1, detector.ErrNoCard)
	c.OnComplete()
	out := buf.String()
	assert.Contains(t, out, "cards 0/2")
	assert.Contains(t, out, "2/2 (100.0%)")
	assert.Contains(t, out, "Error at item 1")
	assert.Contains(t, out, "Completed in")
}
