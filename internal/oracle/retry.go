// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"fmt"
	"math"
	"time"
)

// backoffBase controls the base duration for exponential backoff between
// oracle attempts. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry runs call up to maxRetries+1 times with exponential
// backoff. Malformed answers are retried like transport failures.
func callWithRetry[T any](ctx context.Context, maxRetries int, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := call(ctx)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
