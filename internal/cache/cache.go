// Package cache provides the two content-addressed caches procmon relies
// on for at-most-one enrichment per distinct file (spec.md §4.7): a hash
// cache keyed by (device, inode, mtime, ctime, btime), and a code-signature
// cache keyed by the resulting hash tuple. The core only needs get/put;
// eviction policy is this package's concern, backed by a generic LRU.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a generic get/put cache over a bounded LRU. K must be
// comparable so it can back the underlying map.
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
}

// New builds a Cache holding at most size entries. size <= 0 falls back
// to a sensible default rather than panicking, since operators configure
// this indirectly through procmon.Config.
func New[K comparable, V any](size int) *Cache[K, V] {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		// Only returns an error for size <= 0, which is excluded above.
		panic(err)
	}
	return &Cache[K, V]{lru: c}
}

// Get reports whether key is present and, if so, its value.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Put inserts or updates key's value.
func (c *Cache[K, V]) Put(key K, val V) {
	c.lru.Add(key, val)
}

// Len reports the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
