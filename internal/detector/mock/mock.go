// Package mock provides a scripted detector for tests.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/MeKo-Tech/cardrectify/internal/detector"
)

// Backend is the name reported in detector.Result.
const Backend = "mock"

// Step is one scripted response.
type Step struct {
	Result detector.Result
	Err    error
}

// Detector replays Steps in order and repeats the last one once the script
// runs out. It counts calls and is safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	steps  []Step
	calls  int
	closed bool
}

// New returns a detector that replays steps.
func New(steps ...Step) *Detector {
	return &Detector{steps: steps}
}

// Returning always reports the given corners and confidence.
func Returning(res detector.Result) *Detector {
	if res.Backend == "" {
		res.Backend = Backend
	}
	return New(Step{Result: res})
}

// Failing always returns err.
func Failing(err error) *Detector {
	return New(Step{Err: err})
}

// Detect returns the next scripted step.
func (d *Detector) Detect(ctx context.Context, _ image.Image) (detector.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return detector.Result{}, err
	}
	if len(d.steps) == 0 {
		return detector.Result{}, detector.ErrNoCard
	}
	i := min(d.calls-1, len(d.steps)-1)
	s := d.steps[i]
	return s.Result, s.Err
}

// Calls reports how many times Detect ran.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Close marks the detector closed.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
