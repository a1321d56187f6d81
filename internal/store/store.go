// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store checkpoints RunState after every verdict so that an
// interrupted run can resume without re-screening. Three backends share
// one contract: a JSON file, a SQLite database and Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// ErrNotFound is returned by Load when no state was saved for the run.
var ErrNotFound = errors.New("no saved run state")

// Store persists the RunState of one run. Save replaces the previous
// checkpoint atomically; a reader never sees a partial write.
type Store interface {
	Load(ctx context.Context) (*types.RunState, error)
	Save(ctx context.Context, state *types.RunState) error
	Close() error
}

// RunDir is the directory that holds per-run artifacts (file-backend
// state, audit log, exports).
func RunDir(cfg types.StoreConfig) string {
	return filepath.Join(cfg.Dir, cfg.RunID)
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg types.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case types.StoreFile, "":
		return NewFileStore(filepath.Join(RunDir(cfg), stateFile)), nil
	case types.StoreSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Dir, dbFile), cfg.RunID)
	case types.StoreRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RunID)
	}
	return nil, &types.ValidationError{Field: "store.backend", Msg: fmt.Sprintf("unsupported backend %q", cfg.Backend)}
}

func encode(state *types.RunState) ([]byte, error) {
	return json.MarshalIndent(state, "", "  ")
}

// decode parses a checkpoint and validates it before handing it out.
func decode(data []byte, location string) (*types.RunState, error) {
	var state types.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: location, Err: fmt.Errorf("decoding: %w", err)}
	}
	if err := state.Validate(); err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: location, Err: err}
	}
	return &state, nil
}
