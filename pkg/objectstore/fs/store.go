// Package fs implements [objectstore.Store] on the local filesystem.
//
// No object-storage SDK (S3, GCS, etc.) is used: none appears anywhere in
// the broader dependency corpus this server was built from, so this layer
// falls back to the standard library rather than introduce an unrelated
// client.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/speechgraph/core/pkg/objectstore"
)

// Store persists objects as files under root, one file per key.
type Store struct {
	root string
}

// New returns a [Store] rooted at dir. dir is created if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore/fs: mkdir %q: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

var _ objectstore.Store = (*Store)(nil)

// Put writes data to a file named after key and returns a file:// URI.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("objectstore/fs: mkdir for %q: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("objectstore/fs: write %q: %w", key, err)
	}
	return "file://" + path, nil
}

// Get reads back the file stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		return nil, fmt.Errorf("objectstore/fs: read %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
