// Package status derives operator-facing status snapshots from the
// append-only event log. The same reducer serves both delivery modes: events
// pushed as they happen and events replayed from the store, so a snapshot is
// a deterministic function of the ordered event history.
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rollward-systems/rollward/internal/lifecycle"
	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

// PhaseRecord is the progress marker for one phase of an execution.
type PhaseRecord struct {
	Status    types.PhaseStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

// ExecutionStatus is the per-execution view: current phase plus the progress
// of every phase in order. CompletedPhases, FailedPhases, and Elapsed are
// derived from the phase records at snapshot time.
type ExecutionStatus struct {
	ExecutionID     string                           `json:"executionId"`
	Phase           types.PhaseState                 `json:"phase"`
	Phases          map[types.PhaseState]PhaseRecord `json:"phases"`
	CompletedPhases int                              `json:"completedPhases"`
	FailedPhases    int                              `json:"failedPhases"`
	Elapsed         string                           `json:"elapsed,omitempty"`
	Outcome         types.Outcome                    `json:"outcome,omitempty"`
	FailureKind     types.FailureKind                `json:"failureKind,omitempty"`
	FailureDetail   string                           `json:"failureDetail,omitempty"`
	StartedAt       time.Time                        `json:"startedAt"`
	UpdatedAt       time.Time                        `json:"updatedAt"`
}

// Snapshot is the full aggregated view: monitor counters plus recent
// executions, most recent first.
type Snapshot struct {
	Ticks           int64             `json:"ticks"`
	TriggersFired   int64             `json:"triggersFired"`
	TriggersCleared int64             `json:"triggersCleared"`
	BackupsCreated  int64             `json:"backupsCreated"`
	BackupsPruned   int64             `json:"backupsPruned"`
	Executions      []ExecutionStatus `json:"executions,omitempty"`
	LastEventAt     time.Time         `json:"lastEventAt,omitempty"`
}

// Aggregator reduces events into a status snapshot. Safe for concurrent
// Ingest and Snapshot.
type Aggregator struct {
	mu         sync.RWMutex
	ticks      int64
	fired      int64
	cleared    int64
	backups    int64
	pruned     int64
	executions map[string]*ExecutionStatus
	lastEvent  time.Time
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{executions: make(map[string]*ExecutionStatus)}
}

// Reset clears all aggregated state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ticks, a.fired, a.cleared, a.backups, a.pruned = 0, 0, 0, 0, 0
	a.executions = make(map[string]*ExecutionStatus)
	a.lastEvent = time.Time{}
}

// Ingest folds one event into the aggregate. Events must arrive in log order;
// re-delivering the latest phase event is harmless because phase records are
// assignments, not increments.
func (a *Aggregator) Ingest(event types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.After(a.lastEvent) {
		a.lastEvent = event.Timestamp
	}

	switch event.Kind {
	case types.EventMonitorTick:
		a.ticks++
	case types.EventTriggerFired:
		a.fired++
	case types.EventTriggerCleared:
		a.cleared++
	case types.EventBackupCreated:
		a.backups++
	case types.EventBackupPruned:
		a.pruned++
	case types.EventRollbackRequested:
		exec := a.execution(event.ExecutionID)
		exec.Phase = types.PhaseIdle
		exec.StartedAt = event.Timestamp
		exec.UpdatedAt = event.Timestamp
	case types.EventPhaseTransition:
		exec := a.execution(event.ExecutionID)
		exec.Phase = event.Phase
		exec.Phases[event.Phase] = PhaseRecord{
			Status:    types.PhaseStatus(event.Status),
			Timestamp: event.Timestamp,
			Detail:    event.Detail,
		}
		exec.UpdatedAt = event.Timestamp
	case types.EventRollbackCompleted:
		exec := a.execution(event.ExecutionID)
		exec.Phase = types.PhaseCompleted
		exec.Outcome = types.OutcomeSucceeded
		exec.UpdatedAt = event.Timestamp
	case types.EventRollbackFailed:
		exec := a.execution(event.ExecutionID)
		exec.Phase = types.PhaseFailed
		exec.Outcome = types.OutcomeFailed
		exec.FailureKind = types.FailureKind(event.Status)
		exec.FailureDetail = event.Detail
		exec.UpdatedAt = event.Timestamp
	case types.EventRollbackCancelled:
		exec := a.execution(event.ExecutionID)
		exec.Phase = types.PhaseFailed
		exec.Outcome = types.OutcomeCancelled
		exec.FailureDetail = event.Detail
		exec.UpdatedAt = event.Timestamp
	}
}

// execution fetches or seeds the per-execution record. New records start with
// every phase pending so renderers always see the full progression.
func (a *Aggregator) execution(id string) *ExecutionStatus {
	if id == "" {
		id = "unknown"
	}
	exec, ok := a.executions[id]
	if !ok {
		exec = &ExecutionStatus{
			ExecutionID: id,
			Phase:       types.PhaseIdle,
			Phases:      make(map[types.PhaseState]PhaseRecord, len(lifecycle.Order)),
		}
		for _, phase := range lifecycle.Order {
			exec.Phases[phase] = PhaseRecord{Status: types.PhasePending}
		}
		a.executions[id] = exec
	}
	return exec
}

// Snapshot returns the current aggregate, executions most recent first.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		Ticks:           a.ticks,
		TriggersFired:   a.fired,
		TriggersCleared: a.cleared,
		BackupsCreated:  a.backups,
		BackupsPruned:   a.pruned,
		LastEventAt:     a.lastEvent,
	}
	for _, exec := range a.executions {
		copied := *exec
		copied.Phases = make(map[types.PhaseState]PhaseRecord, len(exec.Phases))
		for phase, record := range exec.Phases {
			copied.Phases[phase] = record
			switch record.Status {
			case types.PhaseDone:
				copied.CompletedPhases++
			case types.PhaseErrored:
				copied.FailedPhases++
			}
		}
		if !copied.StartedAt.IsZero() && copied.UpdatedAt.After(copied.StartedAt) {
			copied.Elapsed = copied.UpdatedAt.Sub(copied.StartedAt).Round(time.Second).String()
		}
		snap.Executions = append(snap.Executions, copied)
	}
	sort.Slice(snap.Executions, func(i, j int) bool {
		if snap.Executions[i].StartedAt.Equal(snap.Executions[j].StartedAt) {
			return snap.Executions[i].ExecutionID > snap.Executions[j].ExecutionID
		}
		return snap.Executions[i].StartedAt.After(snap.Executions[j].StartedAt)
	})
	return snap
}

// Rebuild resets the aggregate and replays the stored event log. This is the
// pull path: a fresh process arrives at the same snapshot a long-running one
// built incrementally.
func (a *Aggregator) Rebuild(ctx context.Context, st store.Store) error {
	events, err := st.ListEvents(ctx, "", 0)
	if err != nil {
		return err
	}
	a.Reset()
	for _, event := range events {
		a.Ingest(event)
	}
	return nil
}
