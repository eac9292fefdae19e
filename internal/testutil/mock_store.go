// Package testutil provides shared test utilities for Rollward.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.Mutex
	executions map[string]types.RollbackExecution
	events     []types.Event
	backups    map[string]types.BackupRecord
	locks      map[string]bool

	// Injectable failures.
	PingErr error
	PutErr  error
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		executions: make(map[string]types.RollbackExecution),
		backups:    make(map[string]types.BackupRecord),
		locks:      make(map[string]bool),
	}
}

func (m *MockStore) PutExecution(_ context.Context, exec types.RollbackExecution) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[exec.ID] = exec
	return nil
}

func (m *MockStore) GetExecution(_ context.Context, id string) (*types.RollbackExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, nil
	}
	return &exec, nil
}

func (m *MockStore) ListExecutions(_ context.Context, limit int) ([]types.RollbackExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.RollbackExecution
	for _, exec := range m.executions {
		result = append(result, exec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockStore) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockStore) ListEvents(_ context.Context, executionID string, limit int) ([]types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.Event
	for _, event := range m.events {
		if executionID != "" && event.ExecutionID != executionID {
			continue
		}
		result = append(result, event)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *MockStore) PutBackup(_ context.Context, record types.BackupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[record.ID] = record
	return nil
}

func (m *MockStore) GetBackup(_ context.Context, id string) (*types.BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.backups[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *MockStore) ListBackups(_ context.Context, limit int) ([]types.BackupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.BackupRecord
	for _, record := range m.backups {
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockStore) DeleteBackup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, id)
	return nil
}

func (m *MockStore) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MockStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MockStore) Start(_ context.Context) error { return nil }
func (m *MockStore) Stop(_ context.Context) error  { return nil }

func (m *MockStore) Ping(_ context.Context) error { return m.PingErr }

// Events returns a copy of the recorded event log.
func (m *MockStore) Events() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfKind filters the recorded event log by kind.
func (m *MockStore) EventsOfKind(kind types.EventKind) []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Event
	for _, event := range m.events {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}
