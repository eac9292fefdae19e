package controller

import (
	"context"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/pkg/types"
)

// resolvedTarget is the concrete rollback plan produced by the
// ValidatingTarget phase: which components run, and the exact revision ref or
// backup record each one restores to. Resolution happens once, up front, so
// execution never discovers an unresolvable target after destructive work has
// begun.
type resolvedTarget struct {
	components []types.Component
	revisions  map[string]string   // workload name -> revision ref
	backup     *types.BackupRecord // set when database or infrastructure restores are planned
}

func (r *resolvedTarget) has(comp types.Component) bool {
	for _, c := range r.components {
		if c == comp {
			return true
		}
	}
	return false
}

// resolveTarget validates the symbolic target and resolves it into a concrete
// plan. All failures here are validation failures: nothing has been changed
// yet.
func (c *Controller) resolveTarget(ctx context.Context, exec *types.RollbackExecution) (*resolvedTarget, error) {
	req := exec.Request

	components, err := c.componentsFor(req)
	if err != nil {
		return nil, err
	}
	resolved := &resolvedTarget{
		components: components,
		revisions:  make(map[string]string),
	}

	if resolved.has(types.ComponentApplication) || resolved.has(types.ComponentMonitoring) {
		if req.Target.Kind == types.TargetBackup {
			return nil, failure(types.FailureValidation,
				"backup targets cannot restore workload revisions; use a revision target")
		}
		var workloads []string
		if resolved.has(types.ComponentApplication) {
			workloads = append(workloads, c.cfg.Workloads.Application...)
		}
		if resolved.has(types.ComponentMonitoring) {
			workloads = append(workloads, c.cfg.Workloads.Monitoring...)
		}
		if len(workloads) == 0 {
			return nil, failure(types.FailureConfiguration, "no workloads configured for %s rollback", req.Type)
		}
		for _, name := range workloads {
			ref, err := c.resolveRevision(ctx, name, req.Target)
			if err != nil {
				return nil, err
			}
			resolved.revisions[name] = ref
		}
	}

	if resolved.has(types.ComponentDatabase) || resolved.has(types.ComponentInfrastructure) {
		record, err := c.resolveBackup(ctx, req.Target)
		if err != nil {
			return nil, err
		}
		if resolved.has(types.ComponentDatabase) && !hasArtifact(record, backup.ArtifactSchema) {
			return nil, failure(types.FailureValidation,
				"backup %s has no schema artifact; cannot restore database", record.ID)
		}
		if resolved.has(types.ComponentInfrastructure) && !hasArtifact(record, backup.ArtifactManifests) {
			return nil, failure(types.FailureValidation,
				"backup %s has no manifest artifact; cannot restore infrastructure", record.ID)
		}
		resolved.backup = record
	}

	return resolved, nil
}

// componentsFor maps a request to the ordered component list its strategy
// executes. Full rollbacks always run in the declared dependency order.
func (c *Controller) componentsFor(req types.RollbackRequest) ([]types.Component, error) {
	switch req.Type {
	case types.RollbackApplication:
		return []types.Component{types.ComponentApplication}, nil
	case types.RollbackDatabase:
		if c.db == nil {
			return nil, failure(types.FailureConfiguration, "no database configured")
		}
		return []types.Component{types.ComponentDatabase}, nil
	case types.RollbackInfrastructure:
		return []types.Component{types.ComponentInfrastructure}, nil
	case types.RollbackMonitoring:
		return []types.Component{types.ComponentMonitoring}, nil
	case types.RollbackPartial:
		if req.Target.Kind != types.TargetComponents || len(req.Target.Components) == 0 {
			return nil, failure(types.FailureValidation, "partial rollback requires a components target")
		}
		for _, comp := range req.Target.Components {
			if comp == types.ComponentDatabase && c.db == nil {
				return nil, failure(types.FailureConfiguration, "no database configured")
			}
		}
		return req.Target.Components, nil
	case types.RollbackFull:
		components := make([]types.Component, 0, len(types.FullRollbackOrder))
		for _, comp := range types.FullRollbackOrder {
			if comp == types.ComponentDatabase && c.db == nil {
				c.logger.Info("full rollback skipping database component: none configured")
				continue
			}
			if comp == types.ComponentMonitoring && len(c.cfg.Workloads.Monitoring) == 0 {
				continue
			}
			components = append(components, comp)
		}
		return components, nil
	}
	return nil, failure(types.FailureConfiguration, "unknown rollback type %q", req.Type)
}

// resolveRevision picks the concrete revision ref for one workload from its
// rollout history.
func (c *Controller) resolveRevision(ctx context.Context, workload string, target types.RollbackTarget) (string, error) {
	revisions, err := c.cluster.Revisions(ctx, workload)
	if err != nil {
		return "", failure(types.FailureConnectivity, "listing revisions for %s: %v", workload, err)
	}
	if len(revisions) == 0 {
		return "", failure(types.FailureValidation, "workload %s has no rollout history", workload)
	}

	switch target.Kind {
	case types.TargetRevision:
		for _, rev := range revisions {
			if rev.Number == target.Revision {
				return rev.Ref, nil
			}
		}
		return "", failure(types.FailureValidation,
			"workload %s has no revision %d", workload, target.Revision)
	case types.TargetLatest:
		return revisions[len(revisions)-1].Ref, nil
	default:
		// Previous, and the implicit previous of a components target.
		if len(revisions) < 2 {
			return "", failure(types.FailureValidation,
				"workload %s has no previous revision to roll back to", workload)
		}
		return revisions[len(revisions)-2].Ref, nil
	}
}

// resolveBackup picks and validates the backup record a restore will read
// from. An explicit backup target must exist; any other target kind means the
// most recent backup.
func (c *Controller) resolveBackup(ctx context.Context, target types.RollbackTarget) (*types.BackupRecord, error) {
	var record *types.BackupRecord
	if target.Kind == types.TargetBackup {
		rec, err := c.backups.Get(ctx, target.Backup)
		if err != nil {
			return nil, failure(types.FailureConnectivity, "fetching backup %s: %v", target.Backup, err)
		}
		if rec == nil {
			return nil, failure(types.FailureValidation, "backup %q not found", target.Backup)
		}
		record = rec
	} else {
		records, err := c.backups.List(ctx, 1)
		if err != nil {
			return nil, failure(types.FailureConnectivity, "listing backups: %v", err)
		}
		if len(records) == 0 {
			return nil, failure(types.FailureValidation, "no backups available to restore from")
		}
		record = &records[0]
	}

	if err := c.backups.Validate(ctx, record); err != nil {
		return nil, failure(types.FailureValidation, "backup %s failed validation: %v", record.ID, err)
	}
	return record, nil
}

func hasArtifact(record *types.BackupRecord, name string) bool {
	for _, artifact := range record.Artifacts {
		if artifact.Name == name {
			return true
		}
	}
	return false
}
