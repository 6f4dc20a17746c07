// Package common holds small helpers shared by the pipeline, the rectifier
// and the benchmark command.
package common

import (
	"fmt"
	"time"
)

// Timer measures one step. The zero value is not usable; call NewTimer.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts an unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer starts a timer labelled name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop records and returns the time since the timer started. Calling it
// again extends the measurement.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Elapsed reports the running time without stopping.
func (t *Timer) Elapsed() time.Duration { return time.Since(t.start) }

// Duration is the value recorded by the last Stop.
func (t *Timer) Duration() time.Duration { return t.duration }

// Name returns the label, empty for NewTimer.
func (t *Timer) Name() string { return t.name }

func (t *Timer) String() string {
	if t.name == "" {
		return t.duration.String()
	}
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}
