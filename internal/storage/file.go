package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements BlobStore on the local filesystem. Locators are paths
// relative to the root directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(locator string) (string, error) {
	clean := filepath.Clean(locator)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob locator %q", locator)
	}
	return filepath.Join(f.dir, clean), nil
}

// Write stores a blob; the key becomes the locator.
func (f *FileStore) Write(_ context.Context, key string, blob []byte) (string, error) {
	path, err := f.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating blob subdirectory: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("writing blob %s: %w", key, err)
	}
	return key, nil
}

// Read fetches a blob by locator.
func (f *FileStore) Read(_ context.Context, locator string) ([]byte, error) {
	path, err := f.path(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", locator, err)
	}
	return data, nil
}

// List returns locators under the prefix, in lexical order.
func (f *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var locators []string
	err := filepath.WalkDir(f.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			locators = append(locators, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs under %q: %w", prefix, err)
	}
	return locators, nil
}

// Delete removes a blob by locator.
func (f *FileStore) Delete(_ context.Context, locator string) error {
	path, err := f.path(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob %s: %w", locator, err)
	}
	return nil
}
