package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rollward-systems/rollward/internal/lifecycle"
	"github.com/rollward-systems/rollward/internal/metrics"
	"github.com/rollward-systems/rollward/pkg/types"
)

const lockGrace = 5 * time.Minute

// runExecution walks one execution through the full phase progression and
// returns it in a terminal phase. Destructive work never starts before the
// safety gates pass: prerequisite validation, target validation, backup, and
// confirmation, in that order.
func (c *Controller) runExecution(ctx context.Context, exec *types.RollbackExecution) *types.RollbackExecution {
	req := exec.Request

	lockKey := "rollback:" + c.cfg.Environment
	acquired, err := c.store.AcquireLock(ctx, lockKey, types.ExecutionTimeout(req.Type)+lockGrace)
	if err != nil {
		return c.finishExecution(ctx, exec, failure(types.FailureConnectivity, "acquiring execution lock: %v", err))
	}
	if !acquired {
		return c.finishExecution(ctx, exec, failure(types.FailureValidation,
			"a rollback is already in flight for environment %s; wait for it to finish and check its outcome with the status command", c.cfg.Environment))
	}
	defer func() {
		if err := c.store.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
			c.logger.Error("failed to release execution lock", "execution", exec.ID, "error", err)
		}
	}()

	metrics.RollbacksStarted.Add(1)
	c.logger.Info("rollback started",
		"execution", exec.ID, "type", string(req.Type),
		"target", req.Target.String(), "automated", req.Automated)

	// ValidatingPrerequisites
	if cancelled := c.checkCancelled(ctx, exec); cancelled != nil {
		return cancelled
	}
	if err := c.enterPhase(ctx, exec, types.PhaseValidatingPrerequisites); err != nil {
		return c.finishExecution(ctx, exec, err)
	}
	if err := c.validatePrerequisites(ctx, exec); err != nil {
		c.phaseEvent(ctx, exec, exec.Phase, types.PhaseErrored, err.Error())
		return c.finishExecution(ctx, exec, err)
	}
	c.phaseDone(ctx, exec)

	// ValidatingTarget
	if cancelled := c.checkCancelled(ctx, exec); cancelled != nil {
		return cancelled
	}
	if err := c.enterPhase(ctx, exec, types.PhaseValidatingTarget); err != nil {
		return c.finishExecution(ctx, exec, err)
	}
	resolved, err := c.resolveTarget(ctx, exec)
	if err != nil {
		c.phaseEvent(ctx, exec, exec.Phase, types.PhaseErrored, err.Error())
		return c.finishExecution(ctx, exec, err)
	}
	c.phaseDone(ctx, exec)

	// CreatingBackup
	if cancelled := c.checkCancelled(ctx, exec); cancelled != nil {
		return cancelled
	}
	if req.SkipBackup {
		if err := c.skipPhase(ctx, exec, types.PhaseCreatingBackup, "backup skipped by request"); err != nil {
			return c.finishExecution(ctx, exec, err)
		}
	} else {
		if err := c.enterPhase(ctx, exec, types.PhaseCreatingBackup); err != nil {
			return c.finishExecution(ctx, exec, err)
		}
		record, err := c.backups.Create(ctx, types.BackupPreRollback, exec.ID)
		if err != nil {
			ferr := failure(types.FailureConnectivity, "creating pre-rollback backup: %v", err)
			c.phaseEvent(ctx, exec, exec.Phase, types.PhaseErrored, ferr.Error())
			return c.finishExecution(ctx, exec, ferr)
		}
		exec.BackupID = record.ID
		c.persist(ctx, exec)
		c.phaseEvent(ctx, exec, exec.Phase, types.PhaseDone, "backup "+record.ID)
	}

	// AwaitingConfirmation
	if cancelled := c.checkCancelled(ctx, exec); cancelled != nil {
		return cancelled
	}
	if req.AutoApprove || req.Automated {
		reason := "auto-approved"
		if req.Automated {
			reason = "automated request"
		}
		if err := c.skipPhase(ctx, exec, types.PhaseAwaitingConfirmation, reason); err != nil {
			return c.finishExecution(ctx, exec, err)
		}
	} else {
		if err := c.enterPhase(ctx, exec, types.PhaseAwaitingConfirmation); err != nil {
			return c.finishExecution(ctx, exec, err)
		}
		if !c.confirmed() {
			c.phaseEvent(ctx, exec, exec.Phase, types.PhaseErrored, "confirmation declined")
			return c.cancelExecution(ctx, exec, "confirmation declined")
		}
		c.phaseDone(ctx, exec)
	}

	// Before anything destructive: the backup invariant must hold.
	if !req.SkipBackup && exec.BackupID == "" {
		return c.finishExecution(ctx, exec, failure(types.FailureValidation, "no backup recorded before execution"))
	}

	// Executing. Cancellation is no longer honored: partial destructive work
	// has no undo, so the phase runs to its own deadline regardless of the
	// caller's context.
	if err := c.enterPhase(ctx, exec, types.PhaseExecuting); err != nil {
		return c.finishExecution(ctx, exec, err)
	}
	execCtx, cancelExec := context.WithTimeout(context.WithoutCancel(ctx), types.ExecutionTimeout(req.Type))
	defer cancelExec()
	execErr := c.executeComponents(execCtx, exec, resolved)
	if execErr != nil {
		c.phaseEvent(execCtx, exec, exec.Phase, types.PhaseErrored, execErr.Error())
		// A forced full rollback pushes through to verification so the
		// operator's report covers the state every component ended in.
		if !(req.Type == types.RollbackFull && req.Force) {
			return c.finishExecution(execCtx, exec, execErr)
		}
	} else {
		c.phaseDone(execCtx, exec)
	}

	// Verifying
	if err := c.enterPhase(execCtx, exec, types.PhaseVerifying); err != nil {
		return c.finishExecution(execCtx, exec, err)
	}
	if err := c.verify(execCtx, exec, resolved); err != nil {
		metrics.VerificationFailures.Add(1)
		c.phaseEvent(execCtx, exec, exec.Phase, types.PhaseErrored, err.Error())
		if execErr != nil {
			// The execution failure is the root cause and wins the report.
			return c.finishExecution(execCtx, exec, execErr)
		}
		return c.finishExecution(execCtx, exec, err)
	}
	c.phaseDone(execCtx, exec)

	if execErr != nil {
		return c.finishExecution(execCtx, exec, execErr)
	}

	return c.completeExecution(execCtx, exec)
}

// checkCancelled returns the terminally-cancelled execution when the caller's
// context is done while the execution is still in a cancellable phase, nil
// otherwise.
func (c *Controller) checkCancelled(ctx context.Context, exec *types.RollbackExecution) *types.RollbackExecution {
	if ctx.Err() != nil && lifecycle.Cancellable(exec.Phase) {
		return c.cancelExecution(ctx, exec, "cancelled: "+ctx.Err().Error())
	}
	return nil
}

// validatePrerequisites runs the first safety gate. The production guard is
// enforced unconditionally; connectivity checks honor skipValidation.
func (c *Controller) validatePrerequisites(ctx context.Context, exec *types.RollbackExecution) error {
	req := exec.Request

	if c.cfg.Class == types.ClassProduction &&
		(req.Type == types.RollbackFull || req.Type == types.RollbackDatabase) {
		if !req.Force {
			return failure(types.FailureConfiguration,
				"%s rollback in production environment %s requires force", req.Type, c.cfg.Environment)
		}
		if strings.TrimSpace(req.Reason) == "" {
			return failure(types.FailureConfiguration,
				"%s rollback in production environment %s requires a reason", req.Type, c.cfg.Environment)
		}
	}

	if req.SkipValidation {
		c.logger.Warn("prerequisite connectivity checks skipped by request", "execution", exec.ID)
		return nil
	}

	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"state store", c.store.Ping},
		{"cluster api", c.cluster.Ping},
	}
	if c.db != nil && touchesDatabase(req) {
		checks = append(checks, struct {
			name string
			ping func(context.Context) error
		}{"database", c.db.Ping})
	}
	for _, check := range checks {
		if err := c.pingWithRetry(ctx, check.name, check.ping); err != nil {
			return err
		}
	}
	return nil
}

// pingWithRetry probes one dependency with bounded exponential backoff before
// declaring it unreachable.
func (c *Controller) pingWithRetry(ctx context.Context, name string, ping func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, ping(ctx)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return failure(types.FailureConnectivity, "%s unreachable: %v", name, err)
	}
	return nil
}

func touchesDatabase(req types.RollbackRequest) bool {
	switch req.Type {
	case types.RollbackDatabase, types.RollbackFull:
		return true
	case types.RollbackPartial:
		for _, comp := range req.Target.Components {
			if comp == types.ComponentDatabase {
				return true
			}
		}
	}
	return false
}

// finishExecution moves the execution to Failed, classifies the failure, and
// archives the record.
func (c *Controller) finishExecution(ctx context.Context, exec *types.RollbackExecution, err error) *types.RollbackExecution {
	ctx = context.WithoutCancel(ctx)
	now := c.now().UTC()

	exec.Phase = types.PhaseFailed
	exec.Outcome = types.OutcomeFailed
	exec.FailureKind = KindOf(err)
	exec.FailureDetail = err.Error()
	exec.CompletedAt = &now
	c.persist(ctx, exec)

	c.appendEvent(ctx, types.Event{
		Kind:        types.EventRollbackFailed,
		ExecutionID: exec.ID,
		Phase:       types.PhaseFailed,
		Status:      string(exec.FailureKind),
		Detail:      exec.FailureDetail,
		Timestamp:   now,
	})
	metrics.RollbacksFailed.Add(1)
	c.logger.Error("rollback failed",
		"execution", exec.ID, "kind", string(exec.FailureKind), "error", err)

	if exec.Request.Automated {
		c.fireAlert(types.Alert{
			Level:       types.AlertLevelError,
			Category:    "rollback_failed",
			ExecutionID: exec.ID,
			Message: fmt.Sprintf("Automated %s rollback %s failed (%s): %s",
				exec.Request.Type, exec.ID, exec.FailureKind, exec.FailureDetail),
			Timestamp: now,
		})
	}
	return exec
}

// cancelExecution terminates the execution as cancelled. Only reachable from
// cancellable phases.
func (c *Controller) cancelExecution(ctx context.Context, exec *types.RollbackExecution, reason string) *types.RollbackExecution {
	ctx = context.WithoutCancel(ctx)
	now := c.now().UTC()

	exec.Phase = types.PhaseFailed
	exec.Outcome = types.OutcomeCancelled
	exec.FailureKind = types.FailureValidation
	exec.FailureDetail = reason
	exec.CompletedAt = &now
	c.persist(ctx, exec)

	c.appendEvent(ctx, types.Event{
		Kind:        types.EventRollbackCancelled,
		ExecutionID: exec.ID,
		Phase:       types.PhaseFailed,
		Detail:      reason,
		Timestamp:   now,
	})
	metrics.RollbacksCancelled.Add(1)
	c.logger.Warn("rollback cancelled", "execution", exec.ID, "reason", reason)
	return exec
}

// completeExecution archives a successful execution.
func (c *Controller) completeExecution(ctx context.Context, exec *types.RollbackExecution) *types.RollbackExecution {
	now := c.now().UTC()

	exec.Phase = types.PhaseCompleted
	exec.Outcome = types.OutcomeSucceeded
	exec.CompletedAt = &now
	c.persist(ctx, exec)

	c.appendEvent(ctx, types.Event{
		Kind:        types.EventRollbackCompleted,
		ExecutionID: exec.ID,
		Phase:       types.PhaseCompleted,
		Detail:      fmt.Sprintf("%s rollback completed in %s", exec.Request.Type, now.Sub(exec.StartedAt).Round(time.Second)),
		Timestamp:   now,
	})
	metrics.RollbacksSucceeded.Add(1)
	c.logger.Info("rollback completed",
		"execution", exec.ID, "type", string(exec.Request.Type),
		"duration", now.Sub(exec.StartedAt).String())

	if exec.Request.Automated {
		c.fireAlert(types.Alert{
			Level:       types.AlertLevelInfo,
			Category:    "rollback_completed",
			ExecutionID: exec.ID,
			Message: fmt.Sprintf("Automated %s rollback %s completed successfully",
				exec.Request.Type, exec.ID),
			Timestamp: now,
		})
	}
	return exec
}

// confirmed prompts the operator and accepts only the exact phrase for this
// environment.
func (c *Controller) confirmed() bool {
	phrase := types.ConfirmationPhrase(c.cfg.Environment)
	if c.confirmFn == nil {
		c.logger.Warn("no confirmation prompt available, treating as declined")
		return false
	}
	answer, err := c.confirmFn(fmt.Sprintf("Type %q to proceed: ", phrase))
	if err != nil {
		c.logger.Error("confirmation prompt failed", "error", err)
		return false
	}
	return strings.TrimSpace(answer) == phrase
}
