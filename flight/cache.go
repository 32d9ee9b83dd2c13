// Package flight provides a keyed memoizing cache whose loads are
// single-flight: concurrent requests for the same uncached key share one
// in-progress computation and receive the same value.
package flight

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc computes the value for key on a cache miss.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Cache memoizes successful loads per key. Failed loads are not cached, so
// the next request retries.
//
// A key is in one of three states: absent, pending (a load is in flight and
// later requests attach to it), or cached. Clear drops cached values and
// detaches pending loads so their results are returned to the callers that
// were already waiting but never stored.
type Cache[V any] struct {
	mu     sync.Mutex
	values map[string]V
	// pending maps a key to the token of its in-flight load; a load only
	// stores its result if its token is still registered when it finishes
	pending   map[string]uint64
	nextToken uint64
	group     singleflight.Group
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		values:  make(map[string]V),
		pending: make(map[string]uint64),
	}
}

// Get returns the cached value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// GetOrLoad returns the cached value for key or runs load exactly once for
// all concurrent callers. The load runs detached from the first caller's
// cancellation so a caller giving up does not fail the others; ctx still
// bounds how long this caller waits.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.Lock()
		// a previous flight may have stored the value between our miss and now
		if v, ok := c.values[key]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.nextToken++
		token := c.nextToken
		c.pending[key] = token
		c.mu.Unlock()

		v, err := load(loadCtx, key)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pending[key] != token {
			// detached by Delete or Clear while loading
			return v, err
		}
		delete(c.pending, key)
		if err != nil {
			return v, err
		}
		c.values[key] = v
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Pending reports whether a load for key is in flight.
func (c *Cache[V]) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Len returns the number of cached values.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Delete drops one key. A load in flight for it is detached.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	if _, ok := c.pending[key]; ok {
		delete(c.pending, key)
		c.group.Forget(key)
	}
}

// Clear drops every cached value and detaches pending loads. The next
// GetOrLoad for any key starts a fresh load.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]V)
	for key := range c.pending {
		c.group.Forget(key)
	}
	c.pending = make(map[string]uint64)
}
