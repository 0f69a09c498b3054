// Package credcache is the per-account credential cache: acquire once, reuse
// until expiry, discard. It is the only mutable shared resource in the core.
package credcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	val    T
	expiry time.Time
}

// Cache maps an account identifier to a live credential handle. At most one
// entry per key; an entry past its expiry is treated as absent. Concurrent
// misses on one key collapse into a single factory invocation.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	group   singleflight.Group

	now func() time.Time // test hook
}

func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]entry[T]), now: time.Now}
}

// GetOrCreate returns the cached handle when its expiry is strictly in the
// future, and otherwise invokes factory once, stores the result, and returns
// it. A failed factory leaves no entry behind; every caller waiting on the
// key receives the factory's error unchanged.
func (c *Cache[T]) GetOrCreate(ctx context.Context, key string, factory func(ctx context.Context) (T, time.Time, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have populated the entry while we waited.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, expiry, err := factory(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		c.mu.Lock()
		c.entries[key] = entry[T]{val: v, expiry: expiry}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (c *Cache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiry) {
		return e.val, true
	}
	var zero T
	return zero, false
}

// Len counts live entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if c.now().Before(e.expiry) {
			n++
		}
	}
	return n
}

// Sweep drops expired entries and reports how many were removed. Correctness
// does not depend on it; it only bounds memory.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !c.now().Before(e.expiry) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
