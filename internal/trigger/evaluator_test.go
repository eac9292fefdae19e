package trigger

import (
	"testing"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
	"github.com/stretchr/testify/assert"
)

func successRateTrigger() types.TriggerDefinition {
	return types.TriggerDefinition{
		Name:       "embedding_success_rate",
		Metric:     "embedding_success_rate",
		Threshold:  85,
		Comparison: types.LessThan,
		Window:     "600s",
		MinSamples: 3,
		Action: types.AutomatedAction{
			Type:   types.RollbackApplication,
			Target: types.RollbackTarget{Kind: types.TargetPrevious},
		},
	}
}

func fillWindow(e *Evaluator, now time.Time, value float64, count int) {
	for i := count; i > 0; i-- {
		e.Observe(types.MetricSample{
			Metric:    "embedding_success_rate",
			Value:     value,
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		})
	}
}

func TestEvaluate_SustainedBreachFires(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	fillWindow(e, now, 70, 8)

	d := e.Evaluate(now)
	assert.True(t, d.Fire)
	assert.InDelta(t, 70, d.Observed, 0.001)
	// The reason reports the span of data actually observed, 8m..1m ago.
	assert.Contains(t, d.Reason, "7m0s of samples")
	assert.True(t, e.Fired())
}

func TestEvaluate_InsufficientSamplesNeverFires(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	// Two deeply breached samples, below the three-sample minimum.
	fillWindow(e, now, 0, 2)

	d := e.Evaluate(now)
	assert.False(t, d.Fire)
	assert.False(t, e.Fired())
	assert.Contains(t, d.Reason, "insufficient samples")
}

func TestEvaluate_WithinThresholdNoFire(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	fillWindow(e, now, 95, 8)

	d := e.Evaluate(now)
	assert.False(t, d.Fire)
	assert.False(t, e.Fired())
}

// A fired trigger stays latched while the condition holds and does not fire
// again until the condition has been clear for one full window.
func TestEvaluate_NoRepeatFireWhileBreached(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	fillWindow(e, now, 70, 8)
	assert.True(t, e.Evaluate(now).Fire)

	// Still breached on subsequent ticks: suppressed.
	for i := 1; i <= 5; i++ {
		tick := now.Add(time.Duration(i) * 30 * time.Second)
		e.Observe(types.MetricSample{Metric: "embedding_success_rate", Value: 70, Timestamp: tick})
		d := e.Evaluate(tick)
		assert.False(t, d.Fire, "tick %d", i)
		assert.True(t, e.Fired())
	}
}

func TestEvaluate_ReArmsAfterFullClearWindow(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	fillWindow(e, now, 70, 8)
	assert.True(t, e.Evaluate(now).Fire)

	// Condition clears; keep feeding healthy samples each tick.
	var cleared bool
	var tick time.Time
	for i := 1; i <= 25; i++ {
		tick = now.Add(time.Duration(i) * time.Minute)
		e.Observe(types.MetricSample{Metric: "embedding_success_rate", Value: 96, Timestamp: tick})
		d := e.Evaluate(tick)
		assert.False(t, d.Fire)
		if d.Cleared {
			cleared = true
			break
		}
	}
	assert.True(t, cleared, "expected trigger to re-arm after a full clear window")
	assert.False(t, e.Fired())
	// Re-arm must take at least the full window duration.
	assert.GreaterOrEqual(t, tick.Sub(now), 10*time.Minute)

	// Once re-armed, a fresh breach fires again.
	for i := 0; i < 12; i++ {
		e.Observe(types.MetricSample{
			Metric:    "embedding_success_rate",
			Value:     60,
			Timestamp: tick.Add(time.Duration(i) * time.Minute),
		})
	}
	d := e.Evaluate(tick.Add(12 * time.Minute))
	assert.True(t, d.Fire)
}

// A brief recovery must not re-arm the latch.
func TestEvaluate_PartialClearDoesNotReArm(t *testing.T) {
	e := NewEvaluator(successRateTrigger())
	now := time.Now()

	fillWindow(e, now, 70, 8)
	assert.True(t, e.Evaluate(now).Fire)

	// Healthy for a few minutes, far less than the 10m window. The mean over
	// the mixed window stays breached, so the latch holds.
	tick := now
	for i := 1; i <= 4; i++ {
		tick = now.Add(time.Duration(i) * time.Minute)
		e.Observe(types.MetricSample{Metric: "embedding_success_rate", Value: 99, Timestamp: tick})
		e.Evaluate(tick)
	}
	assert.True(t, e.Fired(), "latch must hold through a short-lived recovery")

	// Breach resumes: still no second fire.
	tick = tick.Add(time.Minute)
	e.Observe(types.MetricSample{Metric: "embedding_success_rate", Value: 50, Timestamp: tick})
	d := e.Evaluate(tick)
	assert.False(t, d.Fire)
	assert.True(t, e.Fired())
}

func TestEvaluate_GreaterThanComparison(t *testing.T) {
	def := types.TriggerDefinition{
		Name:        "health_check_failures",
		Metric:      "health_check_failures",
		Threshold:   5,
		Comparison:  types.GreaterThan,
		Aggregation: types.AggregateLatest,
		Window:      "300s",
		MinSamples:  3,
	}
	e := NewEvaluator(def)
	now := time.Now()

	// Older samples breached, latest healthy: latest-aggregation must win.
	e.Observe(
		types.MetricSample{Metric: def.Metric, Value: 9, Timestamp: now.Add(-3 * time.Minute)},
		types.MetricSample{Metric: def.Metric, Value: 8, Timestamp: now.Add(-2 * time.Minute)},
		types.MetricSample{Metric: def.Metric, Value: 2, Timestamp: now.Add(-time.Minute)},
	)
	d := e.Evaluate(now)
	assert.False(t, d.Fire)
	assert.InDelta(t, 2, d.Observed, 0.001)

	// Latest breaches: fire.
	e.Observe(types.MetricSample{Metric: def.Metric, Value: 7, Timestamp: now})
	d = e.Evaluate(now.Add(time.Second))
	assert.True(t, d.Fire)
}

func TestWindow_TimeBasedEviction(t *testing.T) {
	w := NewWindow(10 * time.Minute)
	now := time.Now()

	for i := 0; i < 20; i++ {
		w.Add(types.MetricSample{Value: float64(i), Timestamp: now.Add(-time.Duration(20-i) * time.Minute)})
	}
	assert.Equal(t, 20, w.Len())

	w.EvictBefore(now)
	// Samples older than now-10m are gone.
	assert.Equal(t, 10, w.Len())

	latest, ok := w.Latest()
	assert.True(t, ok)
	assert.Equal(t, float64(19), latest)
}

func TestWindow_Span(t *testing.T) {
	w := NewWindow(time.Hour)
	now := time.Now()

	assert.Equal(t, time.Duration(0), w.Span())
	w.Add(types.MetricSample{Value: 1, Timestamp: now.Add(-5 * time.Minute)})
	assert.Equal(t, time.Duration(0), w.Span())
	w.Add(types.MetricSample{Value: 2, Timestamp: now})
	assert.Equal(t, 5*time.Minute, w.Span())
}

func TestWindow_OutOfOrderAndDuplicateSamples(t *testing.T) {
	w := NewWindow(time.Hour)
	now := time.Now()

	w.Add(types.MetricSample{Value: 2, Timestamp: now})
	w.Add(types.MetricSample{Value: 1, Timestamp: now.Add(-time.Minute)})
	w.Add(types.MetricSample{Value: 2, Timestamp: now}) // duplicate timestamp dropped

	assert.Equal(t, 2, w.Len())
	latest, _ := w.Latest()
	assert.Equal(t, float64(2), latest)
	mean, _ := w.Mean()
	assert.InDelta(t, 1.5, mean, 0.001)
}
