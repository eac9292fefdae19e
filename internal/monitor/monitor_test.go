package monitor_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rollward-systems/rollward/internal/monitor"
	"github.com/rollward-systems/rollward/internal/testutil"
	"github.com/rollward-systems/rollward/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSubmitter records the rollback requests fired triggers submit.
type fakeSubmitter struct {
	mu       sync.Mutex
	requests []types.RollbackRequest
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, req types.RollbackRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("exec-%d", len(f.requests)), nil
}

func (f *fakeSubmitter) Requests() []types.RollbackRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.RollbackRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func successRateTrigger() types.TriggerDefinition {
	return types.TriggerDefinition{
		Name:        "success-rate-low",
		Metric:      "deploy_success_rate",
		Threshold:   85,
		Comparison:  types.LessThan,
		Aggregation: types.AggregateMean,
		Window:      "600s",
		MinSamples:  3,
		Action: types.AutomatedAction{
			Type:   types.RollbackApplication,
			Target: types.RollbackTarget{Kind: types.TargetPrevious},
		},
	}
}

// breachedSamples fills the window with values well below the threshold.
func breachedSamples(now time.Time) []types.MetricSample {
	samples := make([]types.MetricSample, 6)
	for i := range samples {
		samples[i] = types.MetricSample{
			Metric:    "deploy_success_rate",
			Value:     70,
			Timestamp: now.Add(-time.Duration(6-i) * time.Minute),
		}
	}
	return samples
}

func TestSustainedBreachSubmitsOneRollback(t *testing.T) {
	querier := testutil.NewFakeQuerier()
	querier.SetSamples("deploy_success_rate", breachedSamples(time.Now()))
	sub := &fakeSubmitter{}
	st := testutil.NewMockStore()

	var alerts []types.Alert
	mon := monitor.New(querier, sub, st, func(a types.Alert) { alerts = append(alerts, a) },
		slog.Default(), types.MonitorConfig{Enabled: true, TickInterval: "20ms"},
		[]types.TriggerDefinition{successRateTrigger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	// Several ticks elapse while the breach is sustained; the trigger latches
	// after the first fire and must not resubmit.
	require.Eventually(t, func() bool {
		return len(sub.Requests()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	mon.Stop(context.Background())

	requests := sub.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, types.RollbackApplication, requests[0].Type)
	assert.Equal(t, "automated:success-rate-low", requests[0].Reason)
	assert.Equal(t, "trigger-monitor", requests[0].RequestedBy)
	assert.True(t, requests[0].Automated)

	fired := st.EventsOfKind(types.EventTriggerFired)
	require.Len(t, fired, 1)
	assert.Equal(t, "success-rate-low", fired[0].Trigger)

	require.NotEmpty(t, alerts)
	assert.Equal(t, types.AlertLevelWarning, alerts[0].Level)
}

func TestQueryFailureIsFailSafe(t *testing.T) {
	querier := testutil.NewFakeQuerier()
	querier.Err = fmt.Errorf("backend unreachable")
	sub := &fakeSubmitter{}
	st := testutil.NewMockStore()

	mon := monitor.New(querier, sub, st, nil, slog.Default(),
		types.MonitorConfig{Enabled: true, TickInterval: "20ms"},
		[]types.TriggerDefinition{successRateTrigger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	// Absence of evidence must not fire a destructive action.
	time.Sleep(150 * time.Millisecond)
	mon.Stop(context.Background())

	assert.Empty(t, sub.Requests())
	assert.Empty(t, st.EventsOfKind(types.EventTriggerFired))
	assert.NotEmpty(t, st.EventsOfKind(types.EventMonitorTick))
}

func TestInsufficientSamplesDoNotFire(t *testing.T) {
	querier := testutil.NewFakeQuerier()
	now := time.Now()
	querier.SetSamples("deploy_success_rate", []types.MetricSample{
		{Metric: "deploy_success_rate", Value: 10, Timestamp: now.Add(-time.Minute)},
		{Metric: "deploy_success_rate", Value: 10, Timestamp: now},
	})
	sub := &fakeSubmitter{}
	st := testutil.NewMockStore()

	mon := monitor.New(querier, sub, st, nil, slog.Default(),
		types.MonitorConfig{Enabled: true, TickInterval: "20ms"},
		[]types.TriggerDefinition{successRateTrigger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	mon.Stop(context.Background())

	assert.Empty(t, sub.Requests())
}

// A trigger with its own evaluation interval must not be re-evaluated on
// every monitor tick; one without an interval is evaluated every tick.
func TestPerTriggerEvaluationInterval(t *testing.T) {
	querier := testutil.NewFakeQuerier()
	sub := &fakeSubmitter{}
	st := testutil.NewMockStore()

	slow := successRateTrigger()
	slow.Name = "error-budget-burn"
	slow.Metric = "error_budget_burn"
	slow.EvaluationInterval = "1h"

	mon := monitor.New(querier, sub, st, nil, slog.Default(),
		types.MonitorConfig{Enabled: true, TickInterval: "20ms"},
		[]types.TriggerDefinition{successRateTrigger(), slow})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	require.Eventually(t, func() bool {
		return querier.QueryCount("deploy_success_rate") >= 3
	}, 2*time.Second, 10*time.Millisecond)
	mon.Stop(context.Background())

	assert.Equal(t, 1, querier.QueryCount("error_budget_burn"))
	assert.GreaterOrEqual(t, querier.QueryCount("deploy_success_rate"), 3)
}

func TestSubmitFailureRaisesAlert(t *testing.T) {
	querier := testutil.NewFakeQuerier()
	querier.SetSamples("deploy_success_rate", breachedSamples(time.Now()))
	sub := &fakeSubmitter{err: fmt.Errorf("queue full")}
	st := testutil.NewMockStore()

	var mu sync.Mutex
	var alerts []types.Alert
	mon := monitor.New(querier, sub, st, func(a types.Alert) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, a)
	}, slog.Default(), types.MonitorConfig{Enabled: true, TickInterval: "20ms"},
		[]types.TriggerDefinition{successRateTrigger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	mon.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, types.AlertLevelError, alerts[0].Level)
	assert.Equal(t, "trigger_submit_failed", alerts[0].Category)
}
