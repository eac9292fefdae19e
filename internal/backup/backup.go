// Package backup creates, validates, and enumerates point-in-time state
// snapshots used before rollbacks and as rollback targets.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rollward-systems/rollward/internal/cluster"
	"github.com/rollward-systems/rollward/internal/database"
	"github.com/rollward-systems/rollward/internal/metrics"
	"github.com/rollward-systems/rollward/internal/storage"
	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Artifact names inside a backup.
const (
	ArtifactSchema    = "schema.sql"
	ArtifactManifests = "manifests.json"
)

// Manager creates and validates backups. Artifacts go to the blob store,
// metadata records to the state store.
type Manager struct {
	store       store.Store
	blobs       storage.BlobStore
	db          database.Adapter // nil when no database is configured
	clusterAPI  cluster.API
	logger      *slog.Logger
	environment string
	retention   types.RetentionConfig

	now func() time.Time // injectable for testing
}

// New creates a backup Manager.
func New(st store.Store, blobs storage.BlobStore, db database.Adapter, api cluster.API, logger *slog.Logger, environment string, retention types.RetentionConfig) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       st,
		blobs:       blobs,
		db:          db,
		clusterAPI:  api,
		logger:      logger,
		environment: environment,
		retention:   retention,
		now:         time.Now,
	}
}

// WithClock overrides the manager's clock; used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create takes a new snapshot: a database schema dump (when a database is
// configured) and a manifest export, both written to the blob store, plus an
// append-only metadata record. executionID ties pre-rollback backups to their
// execution and is empty for manual backups.
func (m *Manager) Create(ctx context.Context, kind types.BackupKind, executionID string) (*types.BackupRecord, error) {
	now := m.now().UTC()
	record := types.BackupRecord{
		ID:          now.Format("20060102-150405"),
		Kind:        kind,
		Environment: m.environment,
		ExecutionID: executionID,
		CreatedAt:   now,
	}

	if m.db != nil {
		dump, err := m.db.DumpSchema(ctx)
		if err != nil {
			return nil, fmt.Errorf("dumping schema: %w", err)
		}
		if err := database.ValidateDump(dump); err != nil {
			return nil, fmt.Errorf("schema dump invalid: %w", err)
		}
		locator, err := m.blobs.Write(ctx, "backups/"+record.ID+"/"+ArtifactSchema, dump)
		if err != nil {
			return nil, fmt.Errorf("writing schema artifact: %w", err)
		}
		record.Artifacts = append(record.Artifacts, types.BackupArtifact{
			Name:      ArtifactSchema,
			Locator:   locator,
			SizeBytes: int64(len(dump)),
		})
	}

	manifests, err := m.clusterAPI.ExportManifests(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting manifests: %w", err)
	}
	if len(manifests) == 0 || !json.Valid(manifests) {
		return nil, fmt.Errorf("manifest export is empty or malformed")
	}
	locator, err := m.blobs.Write(ctx, "backups/"+record.ID+"/"+ArtifactManifests, manifests)
	if err != nil {
		return nil, fmt.Errorf("writing manifest artifact: %w", err)
	}
	record.Artifacts = append(record.Artifacts, types.BackupArtifact{
		Name:      ArtifactManifests,
		Locator:   locator,
		SizeBytes: int64(len(manifests)),
	})

	if err := m.store.PutBackup(ctx, record); err != nil {
		return nil, fmt.Errorf("recording backup metadata: %w", err)
	}
	if err := m.store.AppendEvent(ctx, types.Event{
		Kind:        types.EventBackupCreated,
		ExecutionID: executionID,
		Detail:      fmt.Sprintf("backup %s (%s) with %d artifacts", record.ID, kind, len(record.Artifacts)),
		Timestamp:   now,
	}); err != nil {
		m.logger.Error("failed to append backup event", "backup", record.ID, "error", err)
	}

	metrics.BackupsCreated.Add(1)
	m.logger.Info("backup created", "backup", record.ID, "kind", string(kind), "artifacts", len(record.Artifacts))
	return &record, nil
}

// Validate checks that all declared artifacts are present, non-empty, and
// internally well-formed.
func (m *Manager) Validate(ctx context.Context, record *types.BackupRecord) error {
	if record == nil {
		return fmt.Errorf("nil backup record")
	}
	if len(record.Artifacts) == 0 {
		return fmt.Errorf("backup %s declares no artifacts", record.ID)
	}
	for _, artifact := range record.Artifacts {
		blob, err := m.blobs.Read(ctx, artifact.Locator)
		if err != nil {
			return fmt.Errorf("backup %s artifact %s unreadable: %w", record.ID, artifact.Name, err)
		}
		if len(blob) == 0 {
			return fmt.Errorf("backup %s artifact %s is empty", record.ID, artifact.Name)
		}
		switch artifact.Name {
		case ArtifactSchema:
			if err := database.ValidateDump(blob); err != nil {
				return fmt.Errorf("backup %s schema artifact: %w", record.ID, err)
			}
		case ArtifactManifests:
			if !json.Valid(blob) {
				return fmt.Errorf("backup %s manifest artifact is not valid JSON", record.ID)
			}
		}
	}
	return nil
}

// Get fetches one backup record by id; (nil, nil) when absent.
func (m *Manager) Get(ctx context.Context, id string) (*types.BackupRecord, error) {
	return m.store.GetBackup(ctx, id)
}

// List returns backup records, most recent first.
func (m *Manager) List(ctx context.Context, limit int) ([]types.BackupRecord, error) {
	return m.store.ListBackups(ctx, limit)
}

// ReadArtifact fetches one named artifact's blob for a backup.
func (m *Manager) ReadArtifact(ctx context.Context, record *types.BackupRecord, name string) ([]byte, error) {
	for _, artifact := range record.Artifacts {
		if artifact.Name == name {
			return m.blobs.Read(ctx, artifact.Locator)
		}
	}
	return nil, fmt.Errorf("backup %s has no %s artifact", record.ID, name)
}
