package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antonvlk/meteohub/pkg/metrics"
)

// entry is a materialized result with its expiry instant.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// flight is a computation in progress. Waiters block on done; value and
// err are settled before done is closed.
type flight[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache is a TTL cache that coalesces concurrent lookups for the same key
// into a single computation. The key is any comparable type; callers with
// multi-field lookups use a key struct so field values can never blur into
// one another. A non-positive ttl disables the cache entirely and every
// call passes straight through to the compute function.
type Cache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[K]entry[V]
	flights map[K]*flight[V]
}

// Option customises a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock overrides the time source. Used by tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Cache whose entries live for ttl after they are stored.
func New[K comparable, V any](ttl time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]entry[V]),
		flights: make(map[K]*flight[V]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetOrCompute returns the cached value for key, or invokes compute to
// produce it. Concurrent callers for the same key share one invocation;
// each waiter blocks no longer than its own context allows. A failed
// computation is reported to every waiter and nothing is cached for it.
func (c *Cache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	if c == nil {
		return zero, errors.New("cache: not initialised")
	}
	if compute == nil {
		return zero, errors.New("cache: compute function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.ttl <= 0 {
		return compute(ctx)
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			metrics.CacheEvents.WithLabelValues("hit").Inc()
			return e.value, nil
		}
		delete(c.entries, key)
	}
	if fl, ok := c.flights[key]; ok {
		c.mu.Unlock()
		metrics.CacheEvents.WithLabelValues("coalesced").Inc()
		select {
		case <-fl.done:
			return fl.value, fl.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	fl := &flight[V]{done: make(chan struct{})}
	c.flights[key] = fl
	c.mu.Unlock()

	metrics.CacheEvents.WithLabelValues("miss").Inc()

	var (
		value    V
		err      error
		finished bool
	)
	defer func() {
		if !finished {
			// compute panicked; report failure to waiters rather than
			// leaving them parked on a flight that never lands
			err = errors.New("cache: computation aborted")
		}
		c.mu.Lock()
		delete(c.flights, key)
		if finished && err == nil {
			c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		fl.value = value
		fl.err = err
		close(fl.done)
	}()

	value, err = compute(ctx)
	finished = true
	return value, err
}

// Invalidate removes every stored entry whose key satisfies match and
// reports how many were dropped. In-flight computations are left alone;
// their results land with a fresh ttl.
func (c *Cache[K, V]) Invalidate(match func(key K) bool) int {
	if c == nil || match == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
