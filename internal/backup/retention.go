package backup

import (
	"context"
	"fmt"

	"github.com/rollward-systems/rollward/internal/metrics"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Prune enforces the retention policy: backups older than the age limit or
// beyond the count limit are deleted, metadata and artifacts both. Runs
// outside the hot rollback path. Returns the pruned ids.
func (m *Manager) Prune(ctx context.Context) ([]string, error) {
	records, err := m.store.ListBackups(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing backups for retention: %w", err)
	}

	ageLimit := m.retention.AgeLimit()
	now := m.now().UTC()

	var pruned []string
	for i, record := range records {
		expired := ageLimit > 0 && now.Sub(record.CreatedAt) > ageLimit
		excess := m.retention.MaxCount > 0 && i >= m.retention.MaxCount
		if !expired && !excess {
			continue
		}

		for _, artifact := range record.Artifacts {
			if err := m.blobs.Delete(ctx, artifact.Locator); err != nil {
				m.logger.Error("failed to delete backup artifact",
					"backup", record.ID, "artifact", artifact.Name, "error", err)
			}
		}
		if err := m.store.DeleteBackup(ctx, record.ID); err != nil {
			return pruned, fmt.Errorf("deleting backup record %s: %w", record.ID, err)
		}

		reason := "age limit"
		if excess {
			reason = "count limit"
		}
		if err := m.store.AppendEvent(ctx, types.Event{
			Kind:      types.EventBackupPruned,
			Detail:    fmt.Sprintf("backup %s pruned (%s)", record.ID, reason),
			Timestamp: now,
		}); err != nil {
			m.logger.Error("failed to append prune event", "backup", record.ID, "error", err)
		}

		metrics.BackupsPruned.Add(1)
		m.logger.Info("backup pruned", "backup", record.ID, "reason", reason)
		pruned = append(pruned, record.ID)
	}
	return pruned, nil
}
