// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// RedisStore keeps the state as a JSON string under
// openreviewscope:<run id>:state, with the stage and update time in a
// companion hash for cheap status reads.
type RedisStore struct {
	client *redis.Client
	runID  string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, runID string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &types.PersistenceError{Op: "connect", Location: addr, Err: err}
	}
	return &RedisStore{client: client, runID: runID}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, runID string) *RedisStore {
	return &RedisStore{client: client, runID: runID}
}

func (s *RedisStore) stateKey() string { return fmt.Sprintf("openreviewscope:%s:state", s.runID) }
func (s *RedisStore) metaKey() string  { return fmt.Sprintf("openreviewscope:%s:meta", s.runID) }

// Load reads and validates the run's state.
func (s *RedisStore) Load(ctx context.Context) (*types.RunState, error) {
	data, err := s.client.Get(ctx, s.stateKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: s.stateKey(), Err: err}
	}
	return decode(data, s.stateKey())
}

// Save writes the state and its metadata in one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return &types.PersistenceError{Op: "save", Location: s.stateKey(), Err: err}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.stateKey(), data, 0)
		pipe.HSet(ctx, s.metaKey(), map[string]any{
			"stage":      state.Stage.String(),
			"verdicts":   len(state.Verdicts),
			"updated_at": state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		return &types.PersistenceError{Op: "save", Location: s.stateKey(), Err: err}
	}
	return nil
}

// Meta returns the stage and verdict count without decoding the state.
func (s *RedisStore) Meta(ctx context.Context) (map[string]string, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: s.metaKey(), Err: err}
	}
	if len(meta) == 0 {
		return nil, ErrNotFound
	}
	return meta, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
