// Package memo provides a generic keyed cache with in-flight request
// coalescing: concurrent callers for the same unseen key share one fetch, and
// only successful results are memoized for the lifetime of the process.
package memo

import (
	"context"
	"sync"
)

// FetchFunc produces the value for a key. ok=false reports absence (for
// example a page with no preview metadata); absence and errors are delivered
// to every waiter but never stored.
type FetchFunc[V any] func(ctx context.Context) (V, bool, error)

type result[V any] struct {
	value V
	ok    bool
	err   error
}

// flight is one in-progress fetch. done is closed exactly once, after res is
// set, so readers never observe a partial result.
type flight[V any] struct {
	done chan struct{}
	res  result[V]
}

// Cache memoizes successful fetches by key. The zero value is not usable;
// construct with New.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	values   map[K]V
	inflight map[K]*flight[V]
}

// New creates an empty Cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		values:   make(map[K]V),
		inflight: make(map[K]*flight[V]),
	}
}

// Get returns the cached value for key, or runs fetch to produce it. If a
// fetch for key is already in flight the caller waits for its result instead
// of issuing a duplicate; at most one fetch per key is ever outstanding.
//
// The fetch runs detached from the initiating caller's context, so a caller
// that gives up (ctx done) stops waiting without aborting the work other
// waiters still depend on. fetch implementations bound their own work with
// timeouts.
func (c *Cache[K, V]) Get(ctx context.Context, key K, fetch FetchFunc[V]) (V, bool, error) {
	c.mu.Lock()
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return v, true, nil
	}
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, f)
	}

	f := &flight[V]{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	go func() {
		v, ok, err := fetch(context.WithoutCancel(ctx))
		f.res = result[V]{value: v, ok: ok, err: err}

		c.mu.Lock()
		if ok && err == nil {
			c.values[key] = v
		}
		delete(c.inflight, key)
		c.mu.Unlock()

		close(f.done)
	}()

	return c.wait(ctx, f)
}

func (c *Cache[K, V]) wait(ctx context.Context, f *flight[V]) (V, bool, error) {
	select {
	case <-f.done:
		return f.res.value, f.res.ok, f.res.err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Peek reports the cached value for key without triggering a fetch.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Len reports the number of memoized values.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
