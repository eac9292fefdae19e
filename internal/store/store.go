// Package store defines the state store interface for Rollward: execution
// records, the append-only event log, backup metadata, and coordination locks.
package store

import (
	"context"
	"time"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Store is the durable state backend. The shipped implementation is
// Redis/Valkey; tests use the in-memory mock in internal/testutil.
type Store interface {
	// Execution records
	PutExecution(ctx context.Context, exec types.RollbackExecution) error
	GetExecution(ctx context.Context, id string) (*types.RollbackExecution, error)
	ListExecutions(ctx context.Context, limit int) ([]types.RollbackExecution, error)

	// Event log: append-only, returned in append order. A limit <= 0 returns
	// the full log; otherwise the newest limit entries.
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, executionID string, limit int) ([]types.Event, error)

	// Backup metadata — append-only records, listed most recent first
	PutBackup(ctx context.Context, record types.BackupRecord) error
	GetBackup(ctx context.Context, id string) (*types.BackupRecord, error)
	ListBackups(ctx context.Context, limit int) ([]types.BackupRecord, error)
	DeleteBackup(ctx context.Context, id string) error

	// Coordination locks for single-writer execution per environment
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
