// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a least-recently-used(ish) cache with no write-back:
// entries are pure values that can be recomputed, so there's nothing
// to flush on eviction. A zero LRUCache is usable with a default
// capacity of 128; use NewLRUCache for a different size.
//
// Package vector uses this for its pairwise-cosine cache: a cosine
// between two item vectors is a pure function of its inputs, so a
// dropped entry just gets recomputed on next use.
type LRUCache[K comparable, V any] struct {
	inner *lru.ARCCache
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	c := new(LRUCache[K, V])
	c.inner, _ = lru.NewARC(size)
	return c
}

func (c *LRUCache[K, V]) init() {
	if c.inner == nil {
		c.inner, _ = lru.NewARC(128)
	}
}

func (c *LRUCache[K, V]) Add(key K, value V) {
	c.init()
	c.inner.Add(key, value)
}

func (c *LRUCache[K, V]) Contains(key K) bool {
	c.init()
	return c.inner.Contains(key)
}

func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.init()
	raw, ok := c.inner.Get(key)
	if ok {
		value = raw.(V)
	}
	return value, ok
}

func (c *LRUCache[K, V]) Len() int {
	c.init()
	return c.inner.Len()
}

func (c *LRUCache[K, V]) Peek(key K) (value V, ok bool) {
	c.init()
	raw, ok := c.inner.Peek(key)
	if ok {
		value = raw.(V)
	}
	return value, ok
}

func (c *LRUCache[K, V]) Purge() {
	c.init()
	c.inner.Purge()
}

func (c *LRUCache[K, V]) Remove(key K) {
	c.init()
	c.inner.Remove(key)
}

// GetOrElse returns the cached value for key, computing and storing it
// via fn on a miss.
func (c *LRUCache[K, V]) GetOrElse(key K, fn func() V) V {
	if value, ok := c.Get(key); ok {
		return value
	}
	value := fn()
	c.Add(key, value)
	return value
}
