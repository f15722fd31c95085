// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package topk

import (
	"container/heap"
	"math"
	"sort"

	"github.com/spatialidx/irtree/internal/irtree/rtree"
)

// frontierItem is one pending entry: either an unresolved item (a leaf
// entry, isItem true) or an unresolved node (an internal entry), along
// with the upper bound its parent computed for it and enough context
// (mbr, payload, level) to expand it without re-reading its parent.
type frontierItem struct {
	ub      float64
	isItem  bool
	id      uint32
	level   int
	mbr     rtree.Rectangle
	payload rtree.Payload
}

// frontier is a max-heap ordered by descending upper bound, ties
// broken by ascending id for deterministic best-first order (§5's
// "tie-breakers ... are deterministic (compare by id when numeric ties
// occur)").
type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].ub != f[j].ub {
		return f[i].ub > f[j].ub
	}
	return f[i].id < f[j].id
}
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	*f = old[:n-1]
	return x
}

func (f *frontier) push(it frontierItem) { heap.Push(f, it) }
func (f *frontier) pop() frontierItem    { return heap.Pop(f).(frontierItem) }

// peek returns the current best (highest-ub) entry without removing
// it. container/heap maintains f[0] as the Less-minimum, which by this
// type's Less is the highest-ub (tie: lowest id) entry.
func (f frontier) peek() (frontierItem, bool) {
	if len(f) == 0 {
		return frontierItem{}, false
	}
	return f[0], true
}

// resultHeap is a min-heap of size <= k ordered by ascending score
// (the root is always the current worst admitted result), ties broken
// by descending item id so the heap's natural eviction order matches
// §5's "ties broken by ascending item_id" final output rule (the
// *worse* of two score-tied items, by that rule, is the one with the
// larger id, and that is the one the heap should be willing to evict
// first).
type resultHeap []Result

func (r resultHeap) Len() int { return len(r) }
func (r resultHeap) Less(i, j int) bool {
	if r[i].Score != r[j].Score {
		return r[i].Score < r[j].Score
	}
	return r[i].Item > r[j].Item
}
func (r resultHeap) Swap(i, j int) { r[i], r[j] = r[j], r[i] }
func (r *resultHeap) Push(x any)   { *r = append(*r, x.(Result)) }
func (r *resultHeap) Pop() any {
	old := *r
	n := len(old)
	x := old[n-1]
	*r = old[:n-1]
	return x
}

// resultSet is a bounded top-k accumulator over a resultHeap.
type resultSet struct {
	k int
	h resultHeap
}

func newResultSet(k int) *resultSet { return &resultSet{k: k} }

// kth returns the current admission threshold: the worst score in a
// full result set, or -inf while there is still room.
func (s *resultSet) kth() float64 {
	if len(s.h) < s.k {
		return math.Inf(-1)
	}
	return s.h[0].Score
}

// offer admits r if the set has room or r beats the current worst.
func (s *resultSet) offer(r Result) {
	if len(s.h) < s.k {
		heap.Push(&s.h, r)
		return
	}
	if r.Score > s.h[0].Score || (r.Score == s.h[0].Score && r.Item < s.h[0].Item) {
		heap.Pop(&s.h)
		heap.Push(&s.h, r)
	}
}

// sorted drains the set into descending-score order, ties ascending by
// item id, per §5's final result ordering guarantee.
func (s *resultSet) sorted() []Result {
	out := make([]Result, len(s.h))
	copy(out, s.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item < out[j].Item
	})
	return out
}
