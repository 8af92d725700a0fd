// Package workerpool runs work items with bounded parallelism.
package workerpool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most parallelism calls in flight and
// returns one result per item in input order, regardless of completion order.
//
// parallelism is clamped to [1, len(items)]. Map does not recover failures:
// the first error cancels the context handed to the remaining calls and is
// returned. Callers that want per-item recovery handle it inside fn.
func Map[T, R any](ctx context.Context, items []T, parallelism int, fn func(ctx context.Context, index int, item T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(items) {
		parallelism = len(items)
	}

	results := make([]R, len(items))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)

	for i, item := range items {
		if egCtx.Err() != nil {
			break
		}
		// Go blocks until one of the parallelism slots frees up.
		eg.Go(func() error {
			result, err := fn(egCtx, i, item)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
