package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	current := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New[string, int](time.Minute, WithClock[string, int](func() time.Time { return current }))

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	got, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.EqualValues(t, 1, calls.Load())

	got, err = c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.EqualValues(t, 1, calls.Load(), "a fresh entry answers without recomputing")

	current = current.Add(2 * time.Minute)

	got, err = c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.EqualValues(t, 2, calls.Load(), "an expired entry is recomputed")
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	c := New[string, int](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const waiters = 8
	results := make([]int, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = c.GetOrCompute(context.Background(), "k", compute)
		}(i)
	}
	close(start)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load(), "concurrent callers share one computation")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, 42, results[i])
	}
}

func TestComputeErrorsReachEveryWaiterAndAreNotCached(t *testing.T) {
	c := New[string, int](time.Minute)

	boom := errors.New("boom")
	var calls atomic.Int32
	release := make(chan struct{})
	failing := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(context.Background(), "k", failing)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	require.ErrorIs(t, errs[0], boom)
	require.ErrorIs(t, errs[1], boom)

	// the failure left nothing behind, so the next caller recomputes
	_, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestWaiterHonoursOwnDeadline(t *testing.T) {
	c := New[string, int](time.Minute)

	release := make(chan struct{})
	stuck := func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.GetOrCompute(context.Background(), "k", stuck)
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, "k", stuck)
	require.ErrorIs(t, err, context.DeadlineExceeded, "a stuck computation cannot hold a waiter past its deadline")

	close(release)
	wg.Wait()
}

func TestDisabledCachePassesThrough(t *testing.T) {
	c := New[string, int](0)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}

	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute(context.Background(), "k", compute)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, 0, c.Len())
}

// lookupKey mirrors how callers key multi-field questions.
type lookupKey struct {
	question string
	zone     string
}

func TestStructKeysStayDistinct(t *testing.T) {
	c := New[lookupKey, int](time.Minute)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}

	// field contents never merge: {"a", "b|c"} and {"a|b", "c"} are
	// different keys even though their concatenations agree
	_, err := c.GetOrCompute(context.Background(), lookupKey{"a", "b|c"}, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), lookupKey{"a|b", "c"}, compute)
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 2, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New[lookupKey, string](time.Minute)

	var calls atomic.Int32
	computeFor := func(v string) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			calls.Add(1)
			return v, nil
		}
	}

	_, err := c.GetOrCompute(context.Background(), lookupKey{"current", "indoor"}, computeFor("a"))
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), lookupKey{"current", "outdoor"}, computeFor("b"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	removed := c.Invalidate(func(key lookupKey) bool {
		return key.zone == "indoor"
	})
	require.Equal(t, 1, removed)
	require.Equal(t, 1, c.Len())

	_, err = c.GetOrCompute(context.Background(), lookupKey{"current", "indoor"}, computeFor("a2"))
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load(), "an invalidated key is recomputed")

	_, err = c.GetOrCompute(context.Background(), lookupKey{"current", "outdoor"}, computeFor("b2"))
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load(), "untouched keys stay cached")
}

func TestNilCacheIsInert(t *testing.T) {
	var c *Cache[string, int]

	_, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) { return 1, nil })
	require.Error(t, err)
	require.Equal(t, 0, c.Invalidate(func(string) bool { return true }))
	require.Equal(t, 0, c.Len())
}
