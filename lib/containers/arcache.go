// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"context"
	"fmt"
	"sync"
)

// NewARCache returns a new thread-safe Adaptive Replacement Cache
// (ARC): a cache policy that combines recency and frequency
// information, adapting the balance between the two to the current
// workload.
//
// The item-vector and node-vector caches in package vector use this
// instead of a plain LRU because build-time augmentation repeatedly
// revisits the same handful of ancestor node vectors (frequency-heavy)
// while a query's candidate scan is mostly recency-heavy; ARC adapts
// to whichever pattern is in play instead of requiring a fixed policy.
//
// This implementation differs from textbook ARC in two ways:
//
//   - entries can be explicitly deleted/invalidated, not only evicted
//     to make room for a new entry;
//   - entries can be pinned so they cannot be evicted while a caller
//     holds them (Acquire/Release), which a vector cache needs so a
//     vector doesn't vanish mid upper-bound computation.
//
// It is invalid (runtime-panic) to call NewARCache with a
// non-positive capacity or a nil source.
//
//nolint:predeclared // 'cap' is the best name for it.
func NewARCache[K comparable, V any](cap int, src Source[K, V]) Cache[K, V] {
	if cap <= 0 {
		panic(fmt.Errorf("containers.NewARCache: invalid capacity: %v", cap))
	}
	if src == nil {
		panic(fmt.Errorf("containers.NewARCache: nil source"))
	}
	ret := &arCache[K, V]{
		cap:         cap,
		src:         src,
		liveByName:  make(map[K]*LinkedListEntry[arcLiveEntry[K, V]], cap),
		ghostByName: make(map[K]*LinkedListEntry[arcGhostEntry[K]], cap),
	}
	for i := 0; i < cap; i++ {
		ret.unusedLive.Store(new(LinkedListEntry[arcLiveEntry[K, V]]))
		ret.unusedGhost.Store(new(LinkedListEntry[arcGhostEntry[K]]))
	}
	return ret
}

// Terminology follows "ARC: A Self-Tuning, Low Overhead Replacement
// Cache" (Megiddo & Modha, FAST 2003): an imaginary DBL(2c) cache
// keeps 2c entries split into L1 ("recent", used once) and L2
// ("frequent", used twice or more), each recency-ordered. ARC(c)
// splits each of L1/L2 into a live top part (T1/T2, the actual cache)
// and a ghost bottom part (B1/B2, a record of recent evictions); the
// "directory" is all four lists together.
//
// To support pinning, each of L1/L2's live part is further split into
// a pinned segment and a live-but-unpinned segment; order within the
// pinned segment doesn't matter (all pinned entries are "in use") but
// it's convenient to keep them as ordered lists like everything else.

type arcLiveEntry[K comparable, V any] struct {
	key K
	val V

	refs int           // pin count
	del  chan struct{} // non-nil if a delete is waiting on refs to drop to zero
}

type arcGhostEntry[K comparable] struct {
	key K
}

type arCache[K comparable, V any] struct {
	cap int // "c"
	src Source[K, V]

	mu sync.RWMutex

	// L1 / recently-but-not-frequently used entries
	recentPinned LinkedList[arcLiveEntry[K, V]] // top of L1
	recentLive   LinkedList[arcLiveEntry[K, V]] // "T1" (middle, unpinned-live)
	recentGhost  LinkedList[arcGhostEntry[K]]   // "B1"

	// L2 / frequently used entries
	frequentPinned LinkedList[arcLiveEntry[K, V]] // top of L2
	frequentLive   LinkedList[arcLiveEntry[K, V]] // "T2" (middle, unpinned-live)
	frequentGhost  LinkedList[arcGhostEntry[K]]   // "B2"

	// recentLiveTarget ("p") is the target length of
	// recentPinned+recentLive; it decides which list to evict
	// from, not whether an eviction is needed. Always in [0, cap].
	recentLiveTarget int

	// O(1) lookups; the ordered lists above are for eviction order
	// only.
	liveByName  map[K]*LinkedListEntry[arcLiveEntry[K, V]]
	ghostByName map[K]*LinkedListEntry[arcGhostEntry[K]]

	// Free lists (order doesn't matter, reusing LinkedList for
	// convenience).
	unusedLive  LinkedList[arcLiveEntry[K, V]]
	unusedGhost LinkedList[arcGhostEntry[K]]

	// Blocked Acquire() callers waiting for a live slot to free up.
	waiters LinkedList[chan struct{}]
}

// waitForAvail blocks until an arcLiveEntry is available to use or
// evict (only possible when the cache is full and every live entry is
// pinned).
func (c *arCache[K, V]) waitForAvail() {
	if !(c.recentLive.IsEmpty() && c.frequentLive.IsEmpty() && c.unusedLive.IsEmpty()) {
		return
	}
	ch := make(chan struct{})
	c.waiters.Store(&LinkedListEntry[chan struct{}]{Value: ch})
	c.mu.Unlock()
	<-ch // receive the lock from .Release()
	if c.recentLive.IsEmpty() && c.frequentLive.IsEmpty() && c.unusedLive.IsEmpty() {
		panic(fmt.Errorf("should not happen: waitForAvail is returning, but nothing is available"))
	}
}

// unlockAndNotifyAvail wakes the oldest waitForAvail() waiter (if
// any), transferring the lock to it; otherwise just unlocks.
func (c *arCache[K, V]) unlockAndNotifyAvail() {
	waiter := c.waiters.Oldest
	if waiter == nil {
		c.mu.Unlock()
		return
	}
	c.waiters.Delete(waiter)
	close(waiter.Value)
}

// Delete on a pinned entry blocks until the pin count drops to zero.
func (c *arCache[K, V]) unlockAndWaitForDel(entry *LinkedListEntry[arcLiveEntry[K, V]]) {
	if entry.Value.del == nil {
		entry.Value.del = make(chan struct{})
	}
	ch := entry.Value.del
	c.mu.Unlock()
	<-ch
}

func (*arCache[K, V]) notifyOfDel(entry *LinkedListEntry[arcLiveEntry[K, V]]) {
	if entry.Value.del != nil {
		close(entry.Value.del)
		entry.Value.del = nil
	}
}

// Invariants this implementation must hold (see the paper for
// justification of the non-deletion ones):
//
//   - 0 <= |L1|+|L2| <= 2c; 0 <= |L1| <= c; 0 <= |L2| <= 2c
//   - T1, B1, T2, B2 are mutually disjoint
//   - Either T1 or B1 is empty, or the LRU page in T1 is more recent
//     than the MRU page in B1 (symmetrically for T2/B2)
//   - 0 <= p <= c
//
// Supporting deletion invalidates the textbook invariants "if
// |L1|+|L2| < c then B1,B2 are empty" and "if |L1|+|L2| >= c then
// |T1|+|T2| = c"; the replacement policies below are adjusted
// accordingly.

// dblReplace is the DBL(2c) replacement policy: replace the LRU page
// in L1 if L1 has exactly c pages, otherwise replace the LRU page in
// L2. Returns an entry detached from every list, ready to be stored.
func (c *arCache[K, V]) dblReplace() *LinkedListEntry[arcLiveEntry[K, V]] {
	c.waitForAvail()

	recentLen := c.recentPinned.Len + c.recentLive.Len + c.recentGhost.Len // |L1|
	switch {
	case recentLen == c.cap:
		switch {
		case !c.recentGhost.IsEmpty():
			return c.arcReplace(c.recentGhost.Oldest, true, false)
		case !c.recentLive.IsEmpty():
			entry := c.recentLive.Oldest
			c.recentLive.Delete(entry)
			delete(c.liveByName, entry.Value.key)
			return entry
		default:
			panic(fmt.Errorf("should not happen: lengths don't match up"))
		}
	case recentLen < c.cap:
		switch {
		case !c.unusedLive.IsEmpty():
			entry := c.unusedLive.Oldest
			c.unusedLive.Delete(entry)
			return entry
		case !c.unusedGhost.IsEmpty():
			return c.arcReplace(c.unusedGhost.Oldest, false, false)
		case !c.frequentGhost.IsEmpty():
			return c.arcReplace(c.frequentGhost.Oldest, false, false)
		default:
			panic(fmt.Errorf("should not happen: lengths don't match up"))
		}
	default:
		panic(fmt.Errorf("should not happen: recentLen:%v > cap:%v", recentLen, c.cap))
	}
}

// arcReplace is the ARC(c) replacement policy: decide which of
// recentLive/frequentLive to shrink (moving its LRU entry to the
// matching ghost list) in order to free up `entry`.
//
// ghostEntry records the eviction if one is performed; it must still
// be present in its old list when passed in. arbitrary breaks a tie
// the paper calls "somewhat arbitrary".
func (c *arCache[K, V]) arcReplace(ghostEntry *LinkedListEntry[arcGhostEntry[K]], forceEviction, arbitrary bool) *LinkedListEntry[arcLiveEntry[K, V]] {
	c.waitForAvail()

	if !c.unusedLive.IsEmpty() && !forceEviction {
		entry := c.unusedLive.Oldest
		c.unusedLive.Delete(entry)
		return entry
	}

	if ghostEntry.List != &c.unusedGhost {
		delete(c.ghostByName, ghostEntry.Value.key)
	}
	ghostEntry.List.Delete(ghostEntry)

	var evictFrom *LinkedList[arcLiveEntry[K, V]]
	var evictTo *LinkedList[arcGhostEntry[K]]

	recentLive := c.recentPinned.Len + c.recentLive.Len
	switch { // also check IsEmpty() to support pinning
	case recentLive > c.recentLiveTarget && !c.recentLive.IsEmpty():
		evictFrom, evictTo = &c.recentLive, &c.recentGhost
	case recentLive < c.recentLiveTarget && !c.frequentLive.IsEmpty():
		evictFrom, evictTo = &c.frequentLive, &c.frequentGhost
	default:
		if arbitrary && !c.recentLive.IsEmpty() {
			evictFrom, evictTo = &c.recentLive, &c.recentGhost
		} else {
			evictFrom, evictTo = &c.frequentLive, &c.frequentGhost
		}
	}

	entry := evictFrom.Oldest
	delete(c.liveByName, entry.Value.key)
	evictFrom.Delete(entry)
	ghostEntry.Value.key = entry.Value.key
	evictTo.Store(ghostEntry)
	c.ghostByName[ghostEntry.Value.key] = ghostEntry

	return entry
}

// Acquire implements the Cache interface.
func (c *arCache[K, V]) Acquire(ctx context.Context, k K) *V {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry *LinkedListEntry[arcLiveEntry[K, V]]
	switch {
	case c.liveByName[k] != nil: // cache-hit
		entry = c.liveByName[k]
		// Promote to frequentPinned, unless it's already pinned
		// (don't count nested Acquire()s as a new "use").
		if entry.List != &c.frequentPinned && entry.List != &c.recentPinned {
			entry.List.Delete(entry)
			c.frequentPinned.Store(entry)
		}
		entry.Value.refs++
	case c.ghostByName[k] != nil: // cache-miss, but would have hit in DBL(2c)
		ghostEntry := c.ghostByName[k]
		switch ghostEntry.List {
		case &c.recentGhost:
			c.recentLiveTarget = min(c.recentLiveTarget+max(1, c.frequentGhost.Len/c.recentGhost.Len), c.cap)
		case &c.frequentGhost:
			c.recentLiveTarget = max(c.recentLiveTarget-max(1, c.recentGhost.Len/c.frequentGhost.Len), 0)
		}
		ghostEntry.List.Delete(ghostEntry)
		delete(c.ghostByName, k)
		c.unusedGhost.Store(ghostEntry)
		entry = c.arcReplace(ghostEntry, false, ghostEntry.List == &c.frequentGhost)
		entry.Value.key = k
		c.src.Load(ctx, k, &entry.Value.val)
		entry.Value.refs = 1
		c.frequentPinned.Store(entry)
		c.liveByName[k] = entry
	default: // cache-miss, and would have missed in DBL(2c) too
		entry = c.dblReplace()
		entry.Value.key = k
		c.src.Load(ctx, k, &entry.Value.val)
		entry.Value.refs = 1
		c.recentPinned.Store(entry)
		c.liveByName[k] = entry
	}
	return &entry.Value.val
}

// Delete implements the Cache interface.
func (c *arCache[K, V]) Delete(k K) {
	c.mu.Lock()

	if entry := c.liveByName[k]; entry != nil {
		if entry.Value.refs > 0 {
			c.unlockAndWaitForDel(entry)
			return
		}
		delete(c.liveByName, entry.Value.key)
		entry.List.Delete(entry)
		c.unusedLive.Store(entry)
	} else if entry := c.ghostByName[k]; entry != nil {
		delete(c.ghostByName, k)
		entry.List.Delete(entry)
		c.unusedGhost.Store(entry)
	}

	c.mu.Unlock()
}

// Release implements the Cache interface.
func (c *arCache[K, V]) Release(k K) {
	c.mu.Lock()

	entry := c.liveByName[k]
	if entry == nil || entry.Value.refs <= 0 {
		panic(fmt.Errorf("containers.arCache.Release called on key that is not held: %v", k))
	}

	entry.Value.refs--
	if entry.Value.refs == 0 {
		switch {
		case entry.Value.del != nil:
			delete(c.liveByName, entry.Value.key)
			entry.List.Delete(entry)
			c.unusedLive.Store(entry)
			c.notifyOfDel(entry)
		case entry.List == &c.recentPinned:
			c.recentPinned.Delete(entry)
			c.recentLive.Store(entry)
		case entry.List == &c.frequentPinned:
			c.frequentPinned.Delete(entry)
			c.frequentLive.Store(entry)
		default:
			panic(fmt.Errorf("should not happen: entry is not pending deletion, and is not in a pinned list"))
		}
		c.unlockAndNotifyAvail()
	} else {
		c.mu.Unlock()
	}
}

// Flush implements the Cache interface.
func (c *arCache[K, V]) Flush(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, list := range []*LinkedList[arcLiveEntry[K, V]]{
		&c.recentPinned,
		&c.recentLive,
		&c.frequentPinned,
		&c.frequentLive,
		&c.unusedLive,
	} {
		for entry := list.Oldest; entry != nil; entry = entry.Newer {
			c.src.Flush(ctx, &entry.Value.val)
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
