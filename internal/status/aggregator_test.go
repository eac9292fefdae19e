package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollward-systems/rollward/internal/status"
	"github.com/rollward-systems/rollward/internal/testutil"
	"github.com/rollward-systems/rollward/pkg/types"
)

func sampleEvents(base time.Time) []types.Event {
	at := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }
	return []types.Event{
		{Kind: types.EventMonitorTick, Detail: "1 triggers evaluated, 0 fired", Timestamp: at(0)},
		{Kind: types.EventMonitorTick, Detail: "1 triggers evaluated, 1 fired", Timestamp: at(1)},
		{Kind: types.EventTriggerFired, Trigger: "success-rate-low", Timestamp: at(1)},
		{Kind: types.EventRollbackRequested, ExecutionID: "exec-1", Phase: types.PhaseIdle, Timestamp: at(2)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseValidatingPrerequisites, Status: string(types.PhaseInProgress), Timestamp: at(3)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseValidatingPrerequisites, Status: string(types.PhaseDone), Timestamp: at(4)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseValidatingTarget, Status: string(types.PhaseInProgress), Timestamp: at(5)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseValidatingTarget, Status: string(types.PhaseDone), Timestamp: at(6)},
		{Kind: types.EventBackupCreated, ExecutionID: "exec-1", Timestamp: at(7)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseCreatingBackup, Status: string(types.PhaseDone), Timestamp: at(7)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseAwaitingConfirmation, Status: string(types.PhaseSkipped), Timestamp: at(8)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseExecuting, Status: string(types.PhaseInProgress), Timestamp: at(9)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseExecuting, Status: string(types.PhaseDone), Timestamp: at(10)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseVerifying, Status: string(types.PhaseInProgress), Timestamp: at(11)},
		{Kind: types.EventPhaseTransition, ExecutionID: "exec-1", Phase: types.PhaseVerifying, Status: string(types.PhaseDone), Timestamp: at(12)},
		{Kind: types.EventRollbackCompleted, ExecutionID: "exec-1", Phase: types.PhaseCompleted, Timestamp: at(13)},
	}
}

func TestAggregateCountersAndExecutionView(t *testing.T) {
	agg := status.NewAggregator()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for _, event := range sampleEvents(base) {
		agg.Ingest(event)
	}

	snap := agg.Snapshot()
	assert.Equal(t, int64(2), snap.Ticks)
	assert.Equal(t, int64(1), snap.TriggersFired)
	assert.Equal(t, int64(1), snap.BackupsCreated)

	require.Len(t, snap.Executions, 1)
	exec := snap.Executions[0]
	assert.Equal(t, "exec-1", exec.ExecutionID)
	assert.Equal(t, types.OutcomeSucceeded, exec.Outcome)
	assert.Equal(t, types.PhaseDone, exec.Phases[types.PhaseExecuting].Status)
	assert.Equal(t, types.PhaseSkipped, exec.Phases[types.PhaseAwaitingConfirmation].Status)
	assert.Equal(t, 5, exec.CompletedPhases)
	assert.Equal(t, 0, exec.FailedPhases)
	assert.Equal(t, "11s", exec.Elapsed)
}

func TestPushAndPullConverge(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	st := testutil.NewMockStore()
	ctx := context.Background()

	// Push path: events flow through the tap as they are appended.
	pushed := status.NewAggregator()
	tap := status.NewEventTap(st, pushed)
	for _, event := range sampleEvents(base) {
		require.NoError(t, tap.AppendEvent(ctx, event))
	}

	// Pull path: a fresh aggregator replays the same log from the store.
	pulled := status.NewAggregator()
	require.NoError(t, pulled.Rebuild(ctx, st))

	assert.Equal(t, pushed.Snapshot(), pulled.Snapshot())
}

// A log longer than any store paging default must replay in full: the pull
// path has to converge with the push path no matter how much history exists.
func TestPushAndPullConvergeOnLongLog(t *testing.T) {
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	st := testutil.NewMockStore()
	ctx := context.Background()

	pushed := status.NewAggregator()
	tap := status.NewEventTap(st, pushed)
	for i := 0; i < 1200; i++ {
		require.NoError(t, tap.AppendEvent(ctx, types.Event{
			Kind:      types.EventMonitorTick,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	pulled := status.NewAggregator()
	require.NoError(t, pulled.Rebuild(ctx, st))

	assert.Equal(t, int64(1200), pulled.Snapshot().Ticks)
	assert.Equal(t, pushed.Snapshot(), pulled.Snapshot())
}

func TestPhaseRecordReIngestIsIdempotent(t *testing.T) {
	agg := status.NewAggregator()
	event := types.Event{
		Kind:        types.EventPhaseTransition,
		ExecutionID: "exec-1",
		Phase:       types.PhaseExecuting,
		Status:      string(types.PhaseInProgress),
		Timestamp:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	agg.Ingest(event)
	before := agg.Snapshot()
	agg.Ingest(event)
	assert.Equal(t, before, agg.Snapshot())
}

func TestFailureEventsCarryTheTaxonomy(t *testing.T) {
	agg := status.NewAggregator()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	agg.Ingest(types.Event{Kind: types.EventRollbackRequested, ExecutionID: "exec-2", Timestamp: now})
	agg.Ingest(types.Event{
		Kind:        types.EventPhaseTransition,
		ExecutionID: "exec-2",
		Phase:       types.PhaseVerifying,
		Status:      string(types.PhaseErrored),
		Timestamp:   now.Add(time.Minute),
	})
	agg.Ingest(types.Event{
		Kind:        types.EventRollbackFailed,
		ExecutionID: "exec-2",
		Phase:       types.PhaseFailed,
		Status:      string(types.FailureVerification),
		Detail:      "component application verification failed",
		Timestamp:   now.Add(time.Minute),
	})

	snap := agg.Snapshot()
	require.Len(t, snap.Executions, 1)
	exec := snap.Executions[0]
	assert.Equal(t, types.OutcomeFailed, exec.Outcome)
	assert.Equal(t, types.FailureVerification, exec.FailureKind)
	assert.Equal(t, types.PhaseFailed, exec.Phase)
	assert.Equal(t, 1, exec.FailedPhases)
	assert.Equal(t, "1m0s", exec.Elapsed)
}
