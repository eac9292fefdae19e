package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// verify confirms the post-rollback state of every component the execution
// touched. Failures here are verification failures, reported distinctly from
// execution failures: the destructive step already ran, and the system may be
// in a degraded state the operator must inspect.
func (c *Controller) verify(ctx context.Context, exec *types.RollbackExecution, resolved *resolvedTarget) error {
	for _, comp := range resolved.components {
		var err error
		switch comp {
		case types.ComponentApplication:
			err = c.awaitHealthy(ctx, c.cfg.Workloads.Application)
		case types.ComponentMonitoring:
			err = c.awaitHealthy(ctx, c.cfg.Workloads.Monitoring)
		case types.ComponentDatabase:
			err = c.db.VerifyTables(ctx, c.cfg.CoreTables)
		case types.ComponentInfrastructure:
			err = c.cluster.Ping(ctx)
		}
		if err != nil {
			return failure(types.FailureVerification, "component %s verification failed: %v", comp, err)
		}
		c.logger.Info("component verified", "execution", exec.ID, "component", string(comp))
	}
	return nil
}

// awaitHealthy polls the named workloads until all report converged replicas
// or the verification deadline passes.
func (c *Controller) awaitHealthy(ctx context.Context, names []string) error {
	deadline := time.NewTimer(c.verifyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.verifyInterval)
	defer tick.Stop()

	var lastErr error
	for {
		lastErr = c.checkHealthy(ctx, names)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last status: %v)", ctx.Err(), lastErr)
		case <-deadline.C:
			return fmt.Errorf("workloads did not converge within %s: %w", c.verifyTimeout, lastErr)
		case <-tick.C:
		}
	}
}

func (c *Controller) checkHealthy(ctx context.Context, names []string) error {
	for _, name := range names {
		status, err := c.cluster.GetWorkloadStatus(ctx, name)
		if err != nil {
			return fmt.Errorf("reading status of %s: %w", name, err)
		}
		if !status.Healthy() {
			return fmt.Errorf("workload %s not converged: %d/%d ready", name, status.Ready, status.Desired)
		}
	}
	return nil
}
