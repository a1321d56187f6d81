// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// runBatches processes records batchSize at a time. work runs concurrently
// within a batch and must not touch RunState; fold runs on the calling
// goroutine, one result at a time, in completion order. The first error
// from either side cancels the batch and is returned after every worker
// has exited. delay is slept between batches.
func runBatches[T any](ctx context.Context, records []types.Record, batchSize int, delay time.Duration,
	work func(context.Context, types.Record) (T, error), fold func(T) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(records); start += batchSize {
		if start > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		end := min(start+batchSize, len(records))
		if err := runBatch(ctx, records[start:end], work, fold); err != nil {
			return err
		}
	}
	return nil
}

func runBatch[T any](ctx context.Context, batch []types.Record,
	work func(context.Context, types.Record) (T, error), fold func(T) error) error {
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(bctx)
	results := make(chan T)
	for _, rec := range batch {
		g.Go(func() error {
			out, err := work(gctx, rec)
			if err != nil {
				return err
			}
			select {
			case results <- out:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	var foldErr error
	for out := range results {
		if foldErr != nil {
			continue
		}
		if err := fold(out); err != nil {
			foldErr = err
			cancel()
		}
	}
	err := <-waitErr
	if foldErr != nil {
		return foldErr
	}
	return err
}
