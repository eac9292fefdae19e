// Package monitor implements the trigger monitor loop: periodic metric
// sampling, trigger evaluation, and automated rollback request submission.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rollward-systems/rollward/internal/metricsource"
	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/internal/trigger"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Submitter accepts rollback requests produced by fired triggers. The rollback
// controller implements it; fire decisions are forwarded serially to preserve
// request ordering.
type Submitter interface {
	Submit(ctx context.Context, req types.RollbackRequest) (string, error)
}

// Monitor periodically evaluates all registered triggers and submits a
// rollback request when one fires.
type Monitor struct {
	querier   metricsource.Querier
	submitter Submitter
	store     store.Store
	alertFn   func(types.Alert)
	logger    *slog.Logger
	interval  time.Duration

	evaluators []*triggerState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// triggerState pairs an evaluator with its own cadence clock. A trigger with
// an evaluation interval longer than the monitor tick is only evaluated once
// that interval has elapsed; next is touched only by the tick loop.
type triggerState struct {
	ev   *trigger.Evaluator
	next time.Time
}

// New creates a Monitor over the given trigger definitions.
func New(q metricsource.Querier, sub Submitter, st store.Store, alertFn func(types.Alert), logger *slog.Logger, cfg types.MonitorConfig, triggers []types.TriggerDefinition) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	evaluators := make([]*triggerState, 0, len(triggers))
	for _, def := range triggers {
		evaluators = append(evaluators, &triggerState{ev: trigger.NewEvaluator(def)})
	}
	return &Monitor{
		querier:    q,
		submitter:  sub,
		store:      st,
		alertFn:    alertFn,
		logger:     logger,
		interval:   cfg.Interval(),
		evaluators: evaluators,
	}
}

// Start begins the monitor polling loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info("trigger monitor started", "interval", m.interval, "triggers", len(m.evaluators))

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Run immediately on start
		m.tick(ctx, time.Now())

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("trigger monitor stopping")
				return
			case <-ticker.C:
				m.tick(ctx, time.Now())
			}
		}
	}()
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("trigger monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("trigger monitor stop timed out")
	}
}

func (m *Monitor) fireAlert(alert types.Alert) {
	if m.alertFn != nil {
		m.alertFn(alert)
	}
}

func (m *Monitor) appendEvent(ctx context.Context, event types.Event) {
	if err := m.store.AppendEvent(ctx, event); err != nil {
		m.logger.Error("failed to append event", "trigger", event.Trigger, "event", string(event.Kind), "error", err)
	}
}
