package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	locator, err := fs.Write(ctx, "backups/b1/schema.sql", []byte("CREATE TABLE deployments (id serial);"))
	require.NoError(t, err)

	data, err := fs.Read(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE deployments (id serial);", string(data))
}

func TestFileStore_List(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "backups/b1/schema.sql", []byte("a"))
	require.NoError(t, err)
	_, err = fs.Write(ctx, "backups/b1/manifests.json", []byte("b"))
	require.NoError(t, err)
	_, err = fs.Write(ctx, "backups/b2/schema.sql", []byte("c"))
	require.NoError(t, err)

	locators, err := fs.List(ctx, "backups/b1/")
	require.NoError(t, err)
	assert.Len(t, locators, 2)

	all, err := fs.List(ctx, "backups/")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileStore_Delete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	locator, err := fs.Write(ctx, "backups/b1/schema.sql", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, fs.Delete(ctx, locator))

	_, err = fs.Read(ctx, locator)
	assert.Error(t, err)

	// Deleting a missing blob is not an error.
	assert.NoError(t, fs.Delete(ctx, locator))
}

func TestFileStore_RejectsEscapingLocators(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fs.Write(ctx, "../outside", []byte("x"))
	assert.Error(t, err)
	_, err = fs.Read(ctx, "/etc/passwd")
	assert.Error(t, err)
}
