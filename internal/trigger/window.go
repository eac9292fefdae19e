// Package trigger implements windowed trigger evaluation: each trigger holds a
// time-evicted sliding window of metric samples and produces an edge-triggered
// fire decision per evaluation tick.
package trigger

import (
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Window is a bounded, time-ordered sequence of samples for one trigger.
// Eviction is time-based, not count-based. Single-writer: the owning
// evaluator is the only mutator.
type Window struct {
	duration time.Duration
	samples  []types.MetricSample
}

// NewWindow creates a window retaining samples for the given duration.
func NewWindow(duration time.Duration) *Window {
	return &Window{duration: duration}
}

// Add appends samples, keeping the window time-ordered. Samples older than the
// newest existing sample are inserted in place; duplicates by timestamp are
// dropped.
func (w *Window) Add(samples ...types.MetricSample) {
	for _, s := range samples {
		w.insert(s)
	}
}

func (w *Window) insert(s types.MetricSample) {
	// Common case: appending newer samples.
	n := len(w.samples)
	if n == 0 || !s.Timestamp.Before(w.samples[n-1].Timestamp) {
		if n > 0 && s.Timestamp.Equal(w.samples[n-1].Timestamp) {
			return
		}
		w.samples = append(w.samples, s)
		return
	}
	for i, existing := range w.samples {
		if s.Timestamp.Equal(existing.Timestamp) {
			return
		}
		if s.Timestamp.Before(existing.Timestamp) {
			w.samples = append(w.samples[:i], append([]types.MetricSample{s}, w.samples[i:]...)...)
			return
		}
	}
}

// EvictBefore discards samples older than now minus the window duration.
func (w *Window) EvictBefore(now time.Time) {
	cutoff := now.Add(-w.duration)
	idx := 0
	for idx < len(w.samples) && w.samples[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.samples = append(w.samples[:0], w.samples[idx:]...)
	}
}

// Len returns the current sample count.
func (w *Window) Len() int { return len(w.samples) }

// Latest returns the newest sample value; ok is false on an empty window.
func (w *Window) Latest() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	return w.samples[len(w.samples)-1].Value, true
}

// Mean returns the arithmetic mean of the window; ok is false on an empty window.
func (w *Window) Mean() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range w.samples {
		sum += s.Value
	}
	return sum / float64(len(w.samples)), true
}

// Span returns the time covered by the window's samples.
func (w *Window) Span() time.Duration {
	if len(w.samples) < 2 {
		return 0
	}
	return w.samples[len(w.samples)-1].Timestamp.Sub(w.samples[0].Timestamp)
}
