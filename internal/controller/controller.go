// Package controller owns rollback executions: it validates requests, walks
// each one through the phase state machine, runs the strategy executors, and
// archives the outcome.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/database"
	"github.com/rollward-systems/rollward/internal/lifecycle"
	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

const (
	defaultQueueSize = 16
	stopTimeout      = 30 * time.Second
)

// ConfirmFunc prompts the operator and returns the typed acknowledgment.
type ConfirmFunc func(prompt string) (string, error)

// Config carries the environment-level settings the controller needs.
type Config struct {
	Environment string
	Class       types.EnvironmentClass
	Workloads   types.WorkloadsConfig
	CoreTables  []string
	QueueSize   int
}

type queuedExecution struct {
	executionID string
}

// Controller runs rollback executions. Automated requests are queued and
// processed FIFO by a single worker so at most one rollback executes per
// environment; operator-initiated rollbacks run synchronously through Run.
type Controller struct {
	store     store.Store
	backups   *backup.Manager
	cluster   cluster.API
	db        database.Adapter // nil when no database is configured
	alertFn   func(types.Alert)
	confirmFn ConfirmFunc
	logger    *slog.Logger
	cfg       Config

	queue  chan queuedExecution
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	now            func() time.Time
	verifyInterval time.Duration
	verifyTimeout  time.Duration
}

// New creates a Controller. db may be nil when no database is configured;
// alertFn may be nil to disable notifications.
func New(st store.Store, backups *backup.Manager, api cluster.API, db database.Adapter, alertFn func(types.Alert), logger *slog.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Controller{
		store:          st,
		backups:        backups,
		cluster:        api,
		db:             db,
		alertFn:        alertFn,
		logger:         logger,
		cfg:            cfg,
		queue:          make(chan queuedExecution, size),
		now:            time.Now,
		verifyInterval: 5 * time.Second,
		verifyTimeout:  2 * time.Minute,
	}
}

// WithConfirm sets the interactive confirmation prompt. Without one, every
// execution that reaches AwaitingConfirmation is cancelled.
func (c *Controller) WithConfirm(fn ConfirmFunc) *Controller {
	c.confirmFn = fn
	return c
}

// WithClock overrides the controller's clock; used by tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// WithVerifyPolling overrides the workload convergence polling bounds; used by
// tests.
func (c *Controller) WithVerifyPolling(interval, timeout time.Duration) *Controller {
	c.verifyInterval = interval
	c.verifyTimeout = timeout
	return c
}

// Submit validates a rollback request, records a new execution in Idle, and
// enqueues it for the worker. Returns the execution id immediately; progress
// is observable through the store. This is the entry point the trigger
// monitor uses.
func (c *Controller) Submit(ctx context.Context, req types.RollbackRequest) (string, error) {
	exec, err := c.newExecution(ctx, req)
	if err != nil {
		return "", err
	}

	select {
	case c.queue <- queuedExecution{executionID: exec.ID}:
	default:
		ferr := failure(types.FailureValidation, "execution queue is full")
		c.finishExecution(ctx, exec, ferr)
		return "", ferr
	}

	c.logger.Info("rollback queued",
		"execution", exec.ID, "type", string(req.Type),
		"target", req.Target.String(), "requested_by", req.RequestedBy)
	return exec.ID, nil
}

// Run executes a rollback request synchronously and returns the archived
// execution. This is the CLI path; the returned execution is always terminal.
func (c *Controller) Run(ctx context.Context, req types.RollbackRequest) (*types.RollbackExecution, error) {
	exec, err := c.newExecution(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.runExecution(ctx, exec), nil
}

// newExecution validates the request and persists a fresh execution record.
func (c *Controller) newExecution(ctx context.Context, req types.RollbackRequest) (*types.RollbackExecution, error) {
	if _, err := types.ParseRollbackType(string(req.Type)); err != nil {
		return nil, failure(types.FailureConfiguration, "invalid request: %v", err)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, failure(types.FailureConfiguration, "rollback requests require a reason")
	}
	if req.Target.Kind == "" {
		req.Target.Kind = types.TargetPrevious
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = c.now().UTC()
	}

	exec := &types.RollbackExecution{
		ID:          ulid.Make().String(),
		Environment: c.cfg.Environment,
		Request:     req,
		Phase:       types.PhaseIdle,
		StartedAt:   c.now().UTC(),
	}
	if err := c.store.PutExecution(ctx, *exec); err != nil {
		return nil, fmt.Errorf("recording execution: %w", err)
	}
	c.appendEvent(ctx, types.Event{
		Kind:        types.EventRollbackRequested,
		ExecutionID: exec.ID,
		Phase:       types.PhaseIdle,
		Detail:      fmt.Sprintf("%s rollback to %s requested by %s: %s", req.Type, req.Target.String(), req.RequestedBy, req.Reason),
		Timestamp:   c.now().UTC(),
	})
	return exec, nil
}

// Start launches the queue worker. Idempotent start is an error, matching the
// rest of the process lifecycle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("controller already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.work(runCtx)

	c.logger.Info("rollback controller started", "environment", c.cfg.Environment, "queue_size", cap(c.queue))
	return nil
}

// Stop shuts down the worker, waiting up to stopTimeout for the in-flight
// execution to finish. A rollback past its cancellable phases runs to
// completion.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		c.logger.Warn("controller stop timed out waiting for in-flight rollback")
	case <-ctx.Done():
		return ctx.Err()
	}

	c.running = false
	c.logger.Info("rollback controller stopped")
	return nil
}

// work drains the queue FIFO. One execution at a time; the per-environment
// store lock guards against other processes.
func (c *Controller) work(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.queue:
			exec, err := c.store.GetExecution(ctx, item.executionID)
			if err != nil || exec == nil {
				c.logger.Error("queued execution not found", "execution", item.executionID, "error", err)
				continue
			}
			if exec.Terminal() {
				continue
			}
			c.runExecution(ctx, exec)
		}
	}
}

// persist writes the current execution record, logging rather than failing the
// rollback when the store write itself errors.
func (c *Controller) persist(ctx context.Context, exec *types.RollbackExecution) {
	if err := c.store.PutExecution(ctx, *exec); err != nil {
		c.logger.Error("failed to persist execution", "execution", exec.ID, "phase", string(exec.Phase), "error", err)
	}
}

func (c *Controller) appendEvent(ctx context.Context, event types.Event) {
	if err := c.store.AppendEvent(ctx, event); err != nil {
		c.logger.Error("failed to append event", "kind", string(event.Kind), "execution", event.ExecutionID, "error", err)
	}
}

func (c *Controller) fireAlert(alert types.Alert) {
	if c.alertFn == nil {
		return
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = c.now().UTC()
	}
	c.alertFn(alert)
}

// phaseEvent records one phase progress entry in the event log.
func (c *Controller) phaseEvent(ctx context.Context, exec *types.RollbackExecution, phase types.PhaseState, status types.PhaseStatus, detail string) {
	c.appendEvent(ctx, types.Event{
		Kind:        types.EventPhaseTransition,
		ExecutionID: exec.ID,
		Phase:       phase,
		Status:      string(status),
		Detail:      detail,
		Timestamp:   c.now().UTC(),
	})
}

// enterPhase advances the execution to the next phase through the state
// machine and records it as in progress.
func (c *Controller) enterPhase(ctx context.Context, exec *types.RollbackExecution, next types.PhaseState) error {
	if err := lifecycle.Transition(exec.Phase, next); err != nil {
		return failure(types.FailureValidation, "%v", err)
	}
	exec.Phase = next
	c.persist(ctx, exec)
	c.phaseEvent(ctx, exec, next, types.PhaseInProgress, "")
	c.logger.Info("phase started", "execution", exec.ID, "phase", string(next))
	return nil
}

// phaseDone marks the current phase completed.
func (c *Controller) phaseDone(ctx context.Context, exec *types.RollbackExecution) {
	c.phaseEvent(ctx, exec, exec.Phase, types.PhaseDone, "")
}

// skipPhase transitions through a phase without doing its work, recording it
// as skipped.
func (c *Controller) skipPhase(ctx context.Context, exec *types.RollbackExecution, next types.PhaseState, reason string) error {
	if err := lifecycle.Transition(exec.Phase, next); err != nil {
		return failure(types.FailureValidation, "%v", err)
	}
	exec.Phase = next
	c.persist(ctx, exec)
	c.phaseEvent(ctx, exec, next, types.PhaseSkipped, reason)
	c.logger.Info("phase skipped", "execution", exec.ID, "phase", string(next), "reason", reason)
	return nil
}
