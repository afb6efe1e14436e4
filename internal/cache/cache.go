// Package cache implements the master-data/terminal cache (C5): a
// process-wide, read-mostly read-through cache over item, price, tax,
// payment, and terminal metadata. Grounded on AKJUS-bsc-erigon's direct
// dependency on github.com/hashicorp/golang-lru/v2, the only LRU library
// present in the corpus. The library itself carries no TTL notion, so a
// thin wrapper adds expiry and explicit invalidate-on-update hooks on top
// (§5 "TTL-based plus explicit invalidate-on-update hooks").
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a read-through, TTL-bounded LRU cache for a single master-data
// kind (items, tax codes, payment methods, terminals, ...).
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[K, entry[V]]
	ttl   time.Duration
	load  func(K) (V, error)
}

// New builds a Cache with the given max size, TTL, and read-through loader.
func New[K comparable, V any](size int, ttl time.Duration, load func(K) (V, error)) (*Cache[K, V], error) {
	l, err := lru.New[K, entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{lru: l, ttl: ttl, load: load}, nil
}

// Get returns the cached value for key, loading it through the configured
// loader on a miss or expiry.
func (c *Cache[K, V]) Get(key K) (V, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err := c.load(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.lru.Add(key, entry[V]{value: v, expiresAt: time.Now().Add(c.ttl)})
	c.mu.Unlock()
	return v, nil
}

// Invalidate removes key from the cache immediately, used by master-data
// update hooks so stale entries never wait out the TTL.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Put seeds or overwrites a cache entry directly, bypassing the loader
// (used when a write path already has the fresh value in hand).
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)})
}
