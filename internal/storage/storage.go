// Package storage defines the backup blob store interface and its file and S3
// implementations.
package storage

import "context"

// BlobStore writes and reads opaque backup artifacts. Implementations must be
// safe for concurrent use.
type BlobStore interface {
	// Write stores a blob under the given key and returns its locator.
	Write(ctx context.Context, key string, blob []byte) (string, error)
	// Read fetches a blob by locator.
	Read(ctx context.Context, locator string) ([]byte, error)
	// List returns the locators under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob by locator.
	Delete(ctx context.Context, locator string) error
}
