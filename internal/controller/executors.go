package controller

import (
	"context"
	"fmt"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/pkg/types"
)

// executeComponents runs the strategy executors in plan order. A component
// failure aborts the remaining components, except in a forced full rollback
// where every component is attempted and failures are collected.
func (c *Controller) executeComponents(ctx context.Context, exec *types.RollbackExecution, resolved *resolvedTarget) error {
	forceThrough := exec.Request.Type == types.RollbackFull && exec.Request.Force

	var firstFailed *types.ComponentResult
	for _, comp := range resolved.components {
		result := c.executeComponent(ctx, exec, comp, resolved)
		exec.Components = append(exec.Components, result)
		c.persist(ctx, exec)

		if result.Succeeded {
			continue
		}
		if forceThrough {
			if firstFailed == nil {
				failed := result
				firstFailed = &failed
			}
			c.logger.Warn("component failed, continuing under force",
				"execution", exec.ID, "component", string(comp), "error", result.Error)
			continue
		}
		return failure(types.FailureExecution, "component %s failed: %s", comp, result.Error)
	}

	if firstFailed != nil {
		return failure(types.FailureExecution,
			"component %s failed: %s", firstFailed.Component, firstFailed.Error)
	}
	return nil
}

// executeComponent runs one strategy executor and records its result.
func (c *Controller) executeComponent(ctx context.Context, exec *types.RollbackExecution, comp types.Component, resolved *resolvedTarget) types.ComponentResult {
	result := types.ComponentResult{
		Component: comp,
		StartedAt: c.now().UTC(),
	}
	c.logger.Info("component rollback started", "execution", exec.ID, "component", string(comp))

	var err error
	switch comp {
	case types.ComponentApplication:
		err = c.revertWorkloads(ctx, c.cfg.Workloads.Application, resolved)
	case types.ComponentMonitoring:
		err = c.revertWorkloads(ctx, c.cfg.Workloads.Monitoring, resolved)
	case types.ComponentDatabase:
		err = c.restoreDatabase(ctx, resolved)
	case types.ComponentInfrastructure:
		err = c.applyManifests(ctx, resolved)
	default:
		err = fmt.Errorf("unknown component %q", comp)
	}

	completed := c.now().UTC()
	result.CompletedAt = &completed
	if err != nil {
		result.Error = err.Error()
		c.logger.Error("component rollback failed",
			"execution", exec.ID, "component", string(comp), "error", err)
		return result
	}
	result.Succeeded = true
	c.logger.Info("component rollback completed",
		"execution", exec.ID, "component", string(comp),
		"duration", completed.Sub(result.StartedAt).String())
	return result
}

// revertWorkloads rolls each named workload back to its resolved revision.
func (c *Controller) revertWorkloads(ctx context.Context, names []string, resolved *resolvedTarget) error {
	if len(names) == 0 {
		return fmt.Errorf("no workloads configured")
	}
	for _, name := range names {
		ref, ok := resolved.revisions[name]
		if !ok {
			return fmt.Errorf("no resolved revision for workload %s", name)
		}
		if err := c.cluster.RevertWorkload(ctx, name, ref); err != nil {
			return fmt.Errorf("reverting %s to %s: %w", name, ref, err)
		}
		c.logger.Info("workload reverted", "workload", name, "revision", ref)
	}
	return nil
}

// restoreDatabase replays the backup's schema snapshot.
func (c *Controller) restoreDatabase(ctx context.Context, resolved *resolvedTarget) error {
	dump, err := c.backups.ReadArtifact(ctx, resolved.backup, backup.ArtifactSchema)
	if err != nil {
		return fmt.Errorf("reading schema artifact: %w", err)
	}
	if err := c.db.Restore(ctx, dump); err != nil {
		return fmt.Errorf("restoring schema from backup %s: %w", resolved.backup.ID, err)
	}
	return nil
}

// applyManifests re-applies the backup's manifest snapshot to the cluster.
func (c *Controller) applyManifests(ctx context.Context, resolved *resolvedTarget) error {
	blob, err := c.backups.ReadArtifact(ctx, resolved.backup, backup.ArtifactManifests)
	if err != nil {
		return fmt.Errorf("reading manifest artifact: %w", err)
	}
	if err := c.cluster.ApplyManifest(ctx, blob); err != nil {
		return fmt.Errorf("applying manifests from backup %s: %w", resolved.backup.ID, err)
	}
	return nil
}
