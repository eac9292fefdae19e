package trigger

import (
	"fmt"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Decision is the outcome of one trigger evaluation tick.
type Decision struct {
	Fire     bool
	Cleared  bool    // fired state re-armed this tick
	Observed float64 // window aggregate at decision time
	Reason   string
}

// Evaluator holds the mutable evaluation state for one trigger: its sliding
// window and its fired latch. Not safe for concurrent use; each trigger owns
// exactly one evaluator (single-writer discipline).
type Evaluator struct {
	def    types.TriggerDefinition
	window *Window

	fired      bool
	clearSince time.Time // first tick the condition was observed clear while fired
}

// NewEvaluator creates an evaluator for one trigger definition.
func NewEvaluator(def types.TriggerDefinition) *Evaluator {
	return &Evaluator{
		def:    def,
		window: NewWindow(def.WindowDuration()),
	}
}

// Definition returns the immutable trigger definition.
func (e *Evaluator) Definition() types.TriggerDefinition { return e.def }

// Fired reports whether the trigger is latched in the fired state.
func (e *Evaluator) Fired() bool { return e.fired }

// Observe adds fresh samples to the trigger's window.
func (e *Evaluator) Observe(samples ...types.MetricSample) {
	e.window.Add(samples...)
}

// Evaluate runs one tick: evict stale samples, aggregate the window, compare
// against the threshold.
//
// Semantics are edge-triggered: a trigger fires once when the condition first
// becomes breached, then latches. The latch re-arms only after the condition
// has stayed clear for one full window, preventing repeated automated
// rollbacks for the same sustained condition.
func (e *Evaluator) Evaluate(now time.Time) Decision {
	e.window.EvictBefore(now)

	// Insufficient data never fires and never clears: absence of evidence is
	// not evidence the condition resolved.
	if e.window.Len() < e.def.MinimumSamples() {
		return Decision{Reason: fmt.Sprintf("insufficient samples (%d < %d)", e.window.Len(), e.def.MinimumSamples())}
	}

	observed, ok := e.aggregate()
	if !ok {
		return Decision{Reason: "empty window"}
	}

	breached := e.compare(observed)

	if !e.fired {
		if breached {
			e.fired = true
			e.clearSince = time.Time{}
			return Decision{
				Fire:     true,
				Observed: observed,
				Reason: fmt.Sprintf("%s %s %g observed %g over %s of samples",
					e.def.Metric, e.def.Comparison, e.def.Threshold, observed, e.window.Span()),
			}
		}
		return Decision{Observed: observed, Reason: "within threshold"}
	}

	// Latched: condition still breached keeps the latch held.
	if breached {
		e.clearSince = time.Time{}
		return Decision{Observed: observed, Reason: "still breached, fire suppressed"}
	}

	// Condition clear: start (or continue) the re-arm clock.
	if e.clearSince.IsZero() {
		e.clearSince = now
	}
	if now.Sub(e.clearSince) >= e.def.WindowDuration() {
		e.fired = false
		e.clearSince = time.Time{}
		return Decision{Cleared: true, Observed: observed, Reason: "condition clear for full window, re-armed"}
	}
	return Decision{Observed: observed, Reason: "clearing, awaiting full clear window"}
}

func (e *Evaluator) aggregate() (float64, bool) {
	if e.def.Aggregation == types.AggregateLatest {
		return e.window.Latest()
	}
	return e.window.Mean()
}

func (e *Evaluator) compare(observed float64) bool {
	if e.def.Comparison == types.GreaterThan {
		return observed > e.def.Threshold
	}
	return observed < e.def.Threshold
}
