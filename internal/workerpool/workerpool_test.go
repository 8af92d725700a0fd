package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesInputOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5}

	// Earlier items sleep longer, so they finish last.
	results, err := Map(context.Background(), items, 3, func(_ context.Context, i int, item int) (int, error) {
		time.Sleep(time.Duration(len(items)-i) * 5 * time.Millisecond)
		return item * 10, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50}, results)
}

func TestMap_BoundsParallelism(t *testing.T) {
	testCases := []struct {
		name        string
		items       int
		parallelism int
		wantMax     int32
	}{
		{name: "limit below item count", items: 10, parallelism: 2, wantMax: 2},
		{name: "limit above item count is clamped", items: 3, parallelism: 8, wantMax: 3},
		{name: "non-positive limit runs serially", items: 4, parallelism: 0, wantMax: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var inFlight, maxInFlight atomic.Int32
			items := make([]int, tc.items)

			_, err := Map(context.Background(), items, tc.parallelism, func(_ context.Context, _ int, _ int) (struct{}, error) {
				current := inFlight.Add(1)
				for {
					seen := maxInFlight.Load()
					if current <= seen || maxInFlight.CompareAndSwap(seen, current) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return struct{}{}, nil
			})

			require.NoError(t, err)
			assert.LessOrEqual(t, maxInFlight.Load(), tc.wantMax)
			assert.Positive(t, maxInFlight.Load())
		})
	}
}

func TestMap_EmptyInput(t *testing.T) {
	called := false
	results, err := Map(context.Background(), []string{}, 4, func(_ context.Context, _ int, _ string) (int, error) {
		called = true
		return 0, nil
	})

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.False(t, called)
}

func TestMap_PropagatesWorkerError(t *testing.T) {
	boom := errors.New("boom")

	results, err := Map(context.Background(), []int{1, 2, 3}, 1, func(_ context.Context, _ int, item int) (int, error) {
		if item == 2 {
			return 0, boom
		}
		return item, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestSleep(t *testing.T) {
	t.Run("returns after the duration", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	})

	t.Run("returns early when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	})
}
