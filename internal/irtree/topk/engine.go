// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package topk

import (
	"context"
	"fmt"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/invertedfile"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
	"github.com/spatialidx/irtree/internal/irtree/stats"
	"github.com/spatialidx/irtree/internal/irtree/vector"
)

// Engine is C9: the best-first top-k search over one C7 tree, using
// C8's per-entry aggregates (and, when an entry's aggregate is only a
// handle, C6's per-node postings) to prune without dereferencing every
// item.
type Engine struct {
	tree     *rtree.Tree
	vectors  *vector.Manager
	postings *invertedfile.Store
	stats    *stats.Center
}

// NewEngine wires an Engine to C7/C5/C6 and an optional C10 counters
// center (nil is accepted: every stats.Center method is a no-op on
// nil).
func NewEngine(tree *rtree.Tree, vectors *vector.Manager, postings *invertedfile.Store, st *stats.Center) *Engine {
	return &Engine{tree: tree, vectors: vectors, postings: postings, stats: st}
}

// Budget bounds a query's work: Steps caps the number of frontier pops
// (0 means unbounded), and ctx's deadline (if any) is checked at the
// same points, per §9's C9a and §5's "Cancellation / timeout".
type Budget struct {
	Steps int
}

// Outcome is a top-k query's result: the ranked hits and whether the
// search stopped early due to the budget or context deadline rather
// than genuine convergence.
type Outcome struct {
	Results []Result
	Partial bool
}

// Search runs the best-first loop of §4.9 starting from the tree's
// current root.
func (e *Engine) Search(ctx context.Context, q Query, budget Budget) (Outcome, error) {
	root, err := e.tree.ReadNode(e.tree.RootID())
	if err != nil {
		return Outcome{}, fmt.Errorf("topk: reading root: %w", err)
	}

	results := newResultSet(q.K)
	if q.K <= 0 {
		return Outcome{}, nil
	}

	var fr frontier
	// The root's own entries may mix inline and external payloads
	// (augment.Build picks per entry), so there is no single resolved
	// Payload to hand upperBound here; passing nil makes it fall back to
	// maxImpactUpperBound(root.ID, ...), which augmentation also wrote
	// postings for and is exactly the bound an ExternalTextVector handle
	// would have produced anyway.
	rootUB := e.upperBound(root.MBR(), nil, root.ID, q)
	fr.push(frontierItem{ub: rootUB, isItem: false, id: root.ID, level: root.Level, mbr: root.MBR(), payload: nil})

	steps := 0
	for {
		top, ok := fr.peek()
		if !ok || top.ub <= results.kth() {
			break
		}
		if budget.Steps > 0 && steps >= budget.Steps {
			return Outcome{Results: results.sorted(), Partial: true}, nil
		}
		select {
		case <-ctx.Done():
			return Outcome{Results: results.sorted(), Partial: true}, nil
		default:
		}

		cur := fr.pop()
		steps++
		e.stats.AddHeapPop()

		if cur.isItem {
			score, err := e.exactScore(ctx, ids.ItemID(cur.id), cur.mbr, q)
			if err != nil {
				return Outcome{}, err
			}
			results.offer(Result{Item: ids.ItemID(cur.id), Score: score})
			continue
		}

		node, err := e.tree.ReadNode(cur.id)
		if err != nil {
			return Outcome{}, fmt.Errorf("topk: reading node %d: %w", cur.id, err)
		}
		for _, child := range node.Entries {
			ub := e.upperBound(child.MBR, child.Payload, child.Target, q)
			if ub <= results.kth() {
				continue
			}
			fr.push(frontierItem{
				ub:      ub,
				isItem:  node.IsLeaf,
				id:      child.Target,
				level:   node.Level - 1,
				mbr:     child.MBR,
				payload: child.Payload,
			})
		}
	}

	return Outcome{Results: results.sorted(), Partial: false}, nil
}

// upperBound computes §4.9's UB(e) for an entry whose own MBR/Payload
// the caller already has in hand (read from its parent's entry, not
// from descending into it).
func (e *Engine) upperBound(mbr rtree.Rectangle, payload rtree.Payload, nodeOrItemID uint32, q Query) float64 {
	spatialUB := spatialScore(rtree.MinDist(q.Point, mbr))

	var textUB float64
	switch p := payload.(type) {
	case nil:
		textUB = e.maxImpactUpperBound(nodeOrItemID, q)
	case rtree.TextVector:
		textUB = dotProduct(p.Terms, q.Terms) / normOrOne(q.queryNorm())
	case rtree.ExternalTextVector:
		textUB = e.maxImpactUpperBound(p.Handle, q)
	default:
		textUB = e.maxImpactUpperBound(nodeOrItemID, q)
	}

	return q.Alpha*spatialUB + (1-q.Alpha)*textUB
}

// maxImpactUpperBound implements §4.9's fallback: "the sum over query
// terms of max_impact(t, subtree(e)) taken from per-node inverted-file
// statistics". Missing postings for a term contribute zero, per §4.9's
// "Failure semantics" (treated as zero, not error).
func (e *Engine) maxImpactUpperBound(nodeID uint32, q Query) float64 {
	sum := 0.0
	scanned := 0
	for term := range q.Terms {
		it, err := e.postings.TermIterator(ids.NodeID(nodeID), term)
		if err != nil {
			continue
		}
		best := 0.0
		for {
			ok, err := it.Next()
			if err != nil || !ok {
				break
			}
			scanned++
			if v := it.Posting().ImpactValue(); v > best {
				best = v
			}
		}
		sum += best
	}
	e.stats.AddPostingsScanned(scanned)
	return sum
}

func dotProduct(a map[uint32]float64, b map[ids.TermID]float64) float64 {
	sum := 0.0
	for t, w := range b {
		sum += a[uint32(t)] * w
	}
	return sum
}

func normOrOne(n float64) float64 {
	if n == 0 {
		return 1
	}
	return n
}

// exactScore computes S(item) = alpha*spatial(dist) + (1-alpha)*cosine
// exactly, once an item is actually popped off the frontier (§4.9 step
// 2b).
func (e *Engine) exactScore(ctx context.Context, item ids.ItemID, point rtree.Rectangle, q Query) (float64, error) {
	v := e.vectors.GetItemVector(ctx, item)
	defer e.vectors.ReleaseItemVector(item)

	qNorm := q.queryNorm()
	var textScore float64
	if qNorm > 0 && v.Norm > 0 {
		dot := 0.0
		for term, w := range q.Terms {
			if vw, ok := v.Terms.Load(term); ok {
				dot += vw * w
			}
		}
		textScore = dot / (v.Norm * qNorm)
	}

	spatial := spatialScore(rtree.MinDist(q.Point, point))
	return q.Alpha*spatial + (1-q.Alpha)*textScore, nil
}
