package backup_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/testutil"
	"github.com/rollward-systems/rollward/pkg/types"
)

func newManager(t *testing.T) (*backup.Manager, *testutil.MockStore, *testutil.FakeBlobStore) {
	t.Helper()
	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web")
	db := testutil.NewFakeDB()
	mgr := backup.New(st, blobs, db, fc, slog.Default(), "staging", types.RetentionConfig{})
	return mgr, st, blobs
}

func TestCreateValidateRoundTrip(t *testing.T) {
	mgr, st, _ := newManager(t)
	ctx := context.Background()

	record, err := mgr.Create(ctx, types.BackupPreRollback, "exec-1")
	require.NoError(t, err)

	assert.Equal(t, types.BackupPreRollback, record.Kind)
	assert.Equal(t, "staging", record.Environment)
	assert.Equal(t, "exec-1", record.ExecutionID)
	require.Len(t, record.Artifacts, 2)
	for _, artifact := range record.Artifacts {
		assert.Positive(t, artifact.SizeBytes)
	}

	require.NoError(t, mgr.Validate(ctx, record))

	dump, err := mgr.ReadArtifact(ctx, record, backup.ArtifactSchema)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "CREATE TABLE")

	events := st.EventsOfKind(types.EventBackupCreated)
	require.Len(t, events, 1)
	assert.Equal(t, "exec-1", events[0].ExecutionID)
}

func TestCreateWithoutDatabaseSkipsSchemaArtifact(t *testing.T) {
	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web")
	mgr := backup.New(st, blobs, nil, fc, slog.Default(), "staging", types.RetentionConfig{})

	record, err := mgr.Create(context.Background(), types.BackupManual, "")
	require.NoError(t, err)
	require.Len(t, record.Artifacts, 1)
	assert.Equal(t, backup.ArtifactManifests, record.Artifacts[0].Name)
}

func TestCreateFailsWhenStorageUnreachable(t *testing.T) {
	mgr, _, blobs := newManager(t)
	blobs.WriteErr = fmt.Errorf("storage unreachable")

	_, err := mgr.Create(context.Background(), types.BackupPreRollback, "exec-1")
	require.Error(t, err)
}

func TestValidateDetectsMissingArtifact(t *testing.T) {
	mgr, _, blobs := newManager(t)
	ctx := context.Background()

	record, err := mgr.Create(ctx, types.BackupManual, "")
	require.NoError(t, err)

	require.NoError(t, blobs.Delete(ctx, record.Artifacts[0].Locator))
	assert.Error(t, mgr.Validate(ctx, record))
}

func TestListIsMostRecentFirst(t *testing.T) {
	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web")
	db := testutil.NewFakeDB()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	mgr := backup.New(st, blobs, db, fc, slog.Default(), "staging", types.RetentionConfig{}).
		WithClock(func() time.Time { return clock })

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		record, err := mgr.Create(ctx, types.BackupManual, "")
		require.NoError(t, err)
		ids = append(ids, record.ID)
		clock = clock.Add(time.Hour)
	}

	records, err := mgr.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[0], records[2].ID)
}

func TestPruneEnforcesCountAndAge(t *testing.T) {
	st := testutil.NewMockStore()
	blobs := testutil.NewFakeBlobStore()
	fc := testutil.NewFakeCluster("web")
	db := testutil.NewFakeDB()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	mgr := backup.New(st, blobs, db, fc, slog.Default(), "staging",
		types.RetentionConfig{MaxAge: "48h", MaxCount: 2}).
		WithClock(func() time.Time { return clock })

	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		record, err := mgr.Create(ctx, types.BackupManual, "")
		require.NoError(t, err)
		ids = append(ids, record.ID)
		clock = clock.Add(24 * time.Hour)
	}

	// At this point the oldest backup is 96h old and four exist.
	pruned, err := mgr.Prune(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ids[0], ids[1]}, pruned)

	remaining, err := mgr.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, ids[3], remaining[0].ID)

	// Artifacts of pruned backups are gone from the blob store.
	keys, err := blobs.List(ctx, "backups/"+ids[0])
	require.NoError(t, err)
	assert.Empty(t, keys)

	events := st.EventsOfKind(types.EventBackupPruned)
	assert.Len(t, events, 2)
}
