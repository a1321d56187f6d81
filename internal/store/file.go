// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

const stateFile = "state.json"

// FileStore keeps the state as indented JSON at Path. Writes go to a
// temporary file in the same directory which is then renamed over Path.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads and validates the saved state.
func (s *FileStore) Load(_ context.Context) (*types.RunState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: s.Path, Err: err}
	}
	return decode(data, s.Path)
}

// Save writes the state atomically.
func (s *FileStore) Save(ctx context.Context, state *types.RunState) error {
	if err := ctx.Err(); err != nil {
		return &types.PersistenceError{Op: "save", Location: s.Path, Err: err}
	}
	data, err := encode(state)
	if err != nil {
		return &types.PersistenceError{Op: "save", Location: s.Path, Err: err}
	}
	if err := writeAtomic(s.Path, data); err != nil {
		return &types.PersistenceError{Op: "save", Location: s.Path, Err: err}
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
