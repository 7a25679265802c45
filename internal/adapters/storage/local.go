// Package storage persists uploaded invoice documents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalScheme prefixes references returned by LocalStore.
const LocalScheme = "local:"

// LocalStore writes documents under a directory on disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes data under key and returns a "local:invoices/<key>" reference.
// Writing the same key twice is a no-op.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	rel := "invoices/" + clean
	path := filepath.Join(s.dir, filepath.FromSlash(rel))

	if _, err := os.Stat(path); err == nil {
		return LocalScheme + rel, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}

	return LocalScheme + rel, nil
}

// Owns reports whether ref names a stored document under keyPrefix.
// Non-canonical references are never owned.
func (s *LocalStore) Owns(_ context.Context, ref, keyPrefix string) (bool, error) {
	key, ok := strings.CutPrefix(ref, LocalScheme+"invoices/")
	if !ok || key == "" || path.Clean("/" + key)[1:] != key || !strings.HasPrefix(key, keyPrefix) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.dir, "invoices", filepath.FromSlash(key)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat document: %w", err)
	}
}

// Open returns the bytes behind a reference returned by Put.
func (s *LocalStore) Open(ref string) ([]byte, error) {
	rel, ok := strings.CutPrefix(ref, LocalScheme)
	if !ok {
		return nil, fmt.Errorf("not a local reference: %q", ref)
	}
	clean := filepath.ToSlash(filepath.Clean("/" + rel))[1:]
	return os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(clean)))
}
