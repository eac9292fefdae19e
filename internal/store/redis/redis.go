// Package redis implements the Store interface using Redis/Valkey.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rollward-systems/rollward/pkg/types"
)

// RedisStore implements store.Store backed by Redis/Valkey.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// New creates a new RedisStore.
func New(cfg types.RedisConfig) *RedisStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rollward:"
	}

	return &RedisStore{client: client, prefix: prefix}
}

// NewFromClient creates a RedisStore from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rollward:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Start initializes the store connection.
func (s *RedisStore) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the store connection.
func (s *RedisStore) Stop(_ context.Context) error {
	return s.client.Close()
}

// Ping checks connectivity to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// PutExecution stores an execution record and indexes it by start time.
func (s *RedisStore) PutExecution(ctx context.Context, exec types.RollbackExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("exec", exec.ID), data, 0)
	pipe.ZAdd(ctx, s.key("exec-index"), goredis.Z{
		Score:  float64(exec.StartedAt.UnixNano()),
		Member: exec.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetExecution fetches an execution record by id. Returns (nil, nil) when absent.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*types.RollbackExecution, error) {
	data, err := s.client.Get(ctx, s.key("exec", id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching execution %s: %w", id, err)
	}
	var exec types.RollbackExecution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshaling execution %s: %w", id, err)
	}
	return &exec, nil
}

// ListExecutions returns execution records, most recent first.
func (s *RedisStore) ListExecutions(ctx context.Context, limit int) ([]types.RollbackExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, s.key("exec-index"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	result := make([]types.RollbackExecution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		if exec != nil {
			result = append(result, *exec)
		}
	}
	return result, nil
}

// AppendEvent appends an event to the global log and, when the event belongs
// to an execution, to that execution's log.
func (s *RedisStore) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key("events"), data)
	if event.ExecutionID != "" {
		pipe.RPush(ctx, s.key("events", event.ExecutionID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// ListEvents returns events in append order. An empty executionID selects the
// global log. A limit <= 0 returns the full log; otherwise the newest limit
// entries, still in append order.
func (s *RedisStore) ListEvents(ctx context.Context, executionID string, limit int) ([]types.Event, error) {
	key := s.key("events")
	if executionID != "" {
		key = s.key("events", executionID)
	}
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	events := make([]types.Event, 0, len(raw))
	for _, r := range raw {
		var e types.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// PutBackup stores a backup metadata record and indexes it by creation time.
func (s *RedisStore) PutBackup(ctx context.Context, record types.BackupRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling backup record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("backup", record.ID), data, 0)
	pipe.ZAdd(ctx, s.key("backup-index"), goredis.Z{
		Score:  float64(record.CreatedAt.UnixNano()),
		Member: record.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing backup %s: %w", record.ID, err)
	}
	return nil
}

// GetBackup fetches a backup metadata record by id. Returns (nil, nil) when absent.
func (s *RedisStore) GetBackup(ctx context.Context, id string) (*types.BackupRecord, error) {
	data, err := s.client.Get(ctx, s.key("backup", id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching backup %s: %w", id, err)
	}
	var record types.BackupRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling backup %s: %w", id, err)
	}
	return &record, nil
}

// ListBackups returns backup records, most recent first.
func (s *RedisStore) ListBackups(ctx context.Context, limit int) ([]types.BackupRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.ZRevRange(ctx, s.key("backup-index"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	result := make([]types.BackupRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetBackup(ctx, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			result = append(result, *record)
		}
	}
	return result, nil
}

// DeleteBackup removes a backup metadata record and its index entry.
func (s *RedisStore) DeleteBackup(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key("backup", id))
	pipe.ZRem(ctx, s.key("backup-index"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting backup %s: %w", id, err)
	}
	return nil
}

// AcquireLock attempts to take a lock with the given TTL. Returns false if the
// lock is already held.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key("lock", key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock releases a previously acquired lock.
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key("lock", key)).Err(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return nil
}
