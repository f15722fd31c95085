// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

// EvictingMapEntry is the value wrapper stored per key in an
// EvictingMap.
type evictingMapEntry[K comparable, V any] struct {
	key K
	val V
}

// EvictingMap is a non-thread-safe least-recently-used map that does
// *not* enforce a maximum size itself; the caller decides when to call
// EvictOldest. Package diskio's buffered block file uses this shape
// (rather than a capacity-bounded cache) because it needs to
// distinguish a block buffer that is clean (just drop it) from one
// that is dirty (must flush it) before it can be evicted, which the
// OnEvict/OnRemove split below exists to support.
type EvictingMap[K comparable, V any] struct {
	// OnRemove is (if non-nil) called *after* removal whenever an
	// entry is removed, for any reason: evicted by EvictOldest,
	// replaced by Store, or deleted by Delete.
	OnRemove func(K, V)
	// OnEvict is (if non-nil) called *after* removal whenever an
	// entry is evicted by EvictOldest. If both OnEvict and OnRemove
	// are set, OnRemove runs first.
	OnEvict func(K, V)

	byAge  LinkedList[evictingMapEntry[K, V]]
	byName map[K]*LinkedListEntry[evictingMapEntry[K, V]]
}

var _ Map[int, string] = (*EvictingMap[int, string])(nil)

func (c *EvictingMap[K, V]) rem(entry *LinkedListEntry[evictingMapEntry[K, V]]) {
	k, v := entry.Value.key, entry.Value.val
	delete(c.byName, entry.Value.key)
	c.byAge.Delete(entry)
	if c.OnRemove != nil {
		c.OnRemove(k, v)
	}
}

func (c *EvictingMap[K, V]) evict(entry *LinkedListEntry[evictingMapEntry[K, V]]) {
	k, v := entry.Value.key, entry.Value.val
	c.rem(entry)
	if c.OnEvict != nil {
		c.OnEvict(k, v)
	}
}

// EvictOldest deletes the oldest entry in the cache.
//
// It is a panic to call EvictOldest if the cache is empty.
func (c *EvictingMap[K, V]) EvictOldest() {
	c.evict(c.byAge.Oldest)
}

// Store a key/value pair in to the cache.
func (c *EvictingMap[K, V]) Store(k K, v V) {
	if c.byName == nil {
		c.byName = make(map[K]*LinkedListEntry[evictingMapEntry[K, V]])
	} else if old, ok := c.byName[k]; ok {
		c.rem(old)
	}
	entry := &LinkedListEntry[evictingMapEntry[K, V]]{Value: evictingMapEntry[K, V]{key: k, val: v}}
	c.byAge.Store(entry)
	c.byName[k] = entry
}

// Load an entry from the cache, recording a "use" for
// least-recently-used eviction.
func (c *EvictingMap[K, V]) Load(k K) (v V, ok bool) {
	entry, ok := c.byName[k]
	if !ok {
		var zero V
		return zero, false
	}
	c.byAge.MoveToNewest(entry)
	return entry.Value.val, true
}

// Peek is like Load, but doesn't count as a "use".
func (c *EvictingMap[K, V]) Peek(k K) (v V, ok bool) {
	entry, ok := c.byName[k]
	if !ok {
		var zero V
		return zero, false
	}
	return entry.Value.val, true
}

// Has returns whether an entry is present in the cache. It does not
// count as a "use".
func (c *EvictingMap[K, V]) Has(k K) bool {
	_, ok := c.byName[k]
	return ok
}

// Delete an entry from the cache.
func (c *EvictingMap[K, V]) Delete(k K) {
	if entry, ok := c.byName[k]; ok {
		c.rem(entry)
	}
}

// Len returns the number of entries in the cache.
func (c *EvictingMap[K, V]) Len() int {
	return len(c.byName)
}

// Keys returns every key currently cached, oldest first. Used by
// callers (package diskio's flush path) that need to visit every
// entry without evicting it.
func (c *EvictingMap[K, V]) Keys() []K {
	ret := make([]K, 0, c.byAge.Len)
	for entry := c.byAge.Oldest; entry != nil; entry = entry.Newer {
		ret = append(ret, entry.Value.key)
	}
	return ret
}
