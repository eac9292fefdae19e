package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rollward-systems/rollward/internal/metrics"
	"github.com/rollward-systems/rollward/internal/metricsource"
	"github.com/rollward-systems/rollward/internal/trigger"
	"github.com/rollward-systems/rollward/pkg/types"
)

// fireDecision pairs a trigger with its fire decision for serialized handling.
type fireDecision struct {
	def      types.TriggerDefinition
	decision trigger.Decision
}

// tick processes a single evaluation cycle. Triggers whose evaluation interval
// has not elapsed since their last evaluation are skipped. Evaluation of due
// triggers runs concurrently (each evaluator owns its own window); fire
// decisions are collected and forwarded serially to preserve request ordering.
func (m *Monitor) tick(ctx context.Context, now time.Time) {
	metrics.MonitorTicks.Add(1)

	var (
		mu    sync.Mutex
		fired []fireDecision
	)

	evaluated := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, ts := range m.evaluators {
		if !ts.next.IsZero() && now.Before(ts.next) {
			continue
		}
		if iv := ts.ev.Definition().Interval(); iv > 0 {
			ts.next = now.Add(iv)
		}
		evaluated++
		ev := ts.ev
		g.Go(func() error {
			decision, ok := m.evaluateOne(gctx, ev, now)
			if !ok {
				return nil
			}
			if decision.Fire {
				mu.Lock()
				fired = append(fired, fireDecision{def: ev.Definition(), decision: decision})
				mu.Unlock()
			}
			return nil
		})
	}
	// Evaluation failures are handled per-trigger; the group never errors.
	_ = g.Wait()

	m.appendEvent(ctx, types.Event{
		Kind:      types.EventMonitorTick,
		Detail:    fmt.Sprintf("%d triggers evaluated, %d fired", evaluated, len(fired)),
		Timestamp: now,
	})

	for _, f := range fired {
		m.handleFire(ctx, f, now)
	}
}

// evaluateOne pulls fresh samples for one trigger and evaluates it. A failure
// to reach the metric source is logged and treated as no data for this tick:
// absence of evidence must not trigger a destructive action. It does not stop
// the loop or affect other triggers.
func (m *Monitor) evaluateOne(ctx context.Context, ev *trigger.Evaluator, now time.Time) (trigger.Decision, bool) {
	def := ev.Definition()

	samples, err := m.querier.Query(ctx, def.Metric, metricsource.TimeRange{
		Start: now.Add(-def.WindowDuration()),
		End:   now,
	})
	if err != nil {
		metrics.MetricQueryErrors.Add(1)
		m.logger.Error("metric query failed, treating as no-fire",
			"trigger", def.Name, "metric", def.Metric, "error", err)
	} else {
		ev.Observe(samples...)
	}

	decision := ev.Evaluate(now)
	if decision.Cleared {
		metrics.TriggersCleared.Add(1)
		m.appendEvent(ctx, types.Event{
			Kind:      types.EventTriggerCleared,
			Trigger:   def.Name,
			Detail:    decision.Reason,
			Timestamp: now,
		})
		m.logger.Info("trigger cleared", "trigger", def.Name, "observed", decision.Observed)
	}
	return decision, true
}

// handleFire converts a fire decision into an automated rollback request and
// submits it to the controller.
func (m *Monitor) handleFire(ctx context.Context, f fireDecision, now time.Time) {
	metrics.TriggersFired.Add(1)

	reason := "automated:" + f.def.Name
	m.appendEvent(ctx, types.Event{
		Kind:    types.EventTriggerFired,
		Trigger: f.def.Name,
		Detail:  f.decision.Reason,
		Details: map[string]interface{}{
			"observed":  f.decision.Observed,
			"threshold": f.def.Threshold,
		},
		Timestamp: now,
	})

	req := types.RollbackRequest{
		Type:        f.def.Action.Type,
		Target:      f.def.Action.Target,
		Reason:      reason,
		RequestedBy: "trigger-monitor",
		Automated:   true,
		RequestedAt: now,
	}

	execID, err := m.submitter.Submit(ctx, req)
	if err != nil {
		m.logger.Error("failed to submit automated rollback",
			"trigger", f.def.Name, "type", string(req.Type), "error", err)
		m.fireAlert(types.Alert{
			Level:    types.AlertLevelError,
			Category: "trigger_submit_failed",
			Trigger:  f.def.Name,
			Message: fmt.Sprintf("Trigger %s fired (observed %g) but rollback submission failed: %v",
				f.def.Name, f.decision.Observed, err),
			Timestamp: now,
		})
		return
	}

	m.fireAlert(types.Alert{
		Level:       types.AlertLevelWarning,
		Category:    "trigger_fired",
		Trigger:     f.def.Name,
		ExecutionID: execID,
		Message: fmt.Sprintf("Trigger %s fired: %s; automated %s rollback %s submitted",
			f.def.Name, f.decision.Reason, f.def.Action.Type, execID),
		Details: map[string]interface{}{
			"observed":  f.decision.Observed,
			"threshold": f.def.Threshold,
			"target":    f.def.Action.Target.String(),
		},
		Timestamp: now,
	})

	m.logger.Warn("trigger fired, automated rollback submitted",
		"trigger", f.def.Name, "execution", execID,
		"observed", f.decision.Observed, "threshold", f.def.Threshold)
}
