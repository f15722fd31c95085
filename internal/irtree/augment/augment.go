// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package augment implements C8: the post-order build pass that turns a
// bare geometric tree (C7, inserted with nil payloads) into an
// augmented one, per spec.md §4.8. For every node, bottom-up: aggregate
// the node's children (items for a leaf, child nodes for an internal
// node) by element-wise maximum term weight into a node vector, persist
// that vector via C5, build the node's own per-node inverted file via
// C6, and decide whether the next level up should see that aggregate
// inlined in its entry's payload or only a handle to fetch it on
// demand.
//
// Grounded on package rtree's already-established Payload variants
// (TextVector/ExternalTextVector) rather than redefining new ones: C8
// is the algorithm that produces them, not a second type definition of
// what a payload is. No teacher component builds anything resembling
// this pass, so the shape here follows this module's own established
// post-order tree-walk idiom (rtree.Tree's own ancestor-stack descent)
// rather than any specific teacher file.
package augment

import (
	"context"
	"fmt"
	"math"

	"github.com/datawire/dlib/dlog"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/invertedfile"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/internal/irtree/vocab"
)

// Config controls the aggregation pass's inline-vs-external decision.
type Config struct {
	// InlineThreshold is the maximum aggregated term count a node's
	// entry payload may carry inline; above it, the aggregate is
	// stored externally via C5 and the entry carries only a handle.
	// Must be <= rtree.InlineTermCap.
	InlineThreshold int
	// TotalItems is the total item count N used to derive idf(t) =
	// log(N / df(t)) for leaf postings' impact weights (§4.8's
	// "impact_t = weight(t, item) * idf(t)").
	TotalItems int
}

// Builder runs the post-order augmentation pass over one tree.
type Builder struct {
	tree     *rtree.Tree
	vectors  *vector.Manager
	postings *invertedfile.Store
	terms    *vocab.Vocabulary
	cfg      Config
}

// NewBuilder constructs a Builder wired to the given tree (C7), vector
// manager (C5), inverted file store (C6), and term vocabulary (C4).
func NewBuilder(tree *rtree.Tree, vectors *vector.Manager, postings *invertedfile.Store, terms *vocab.Vocabulary, cfg Config) *Builder {
	return &Builder{tree: tree, vectors: vectors, postings: postings, terms: terms, cfg: cfg}
}

// Build runs the full post-order pass starting at the tree's current
// root, per §4.8: "During the post-order build pass after all items
// are inserted". It must run once, after every item has been inserted
// and before any top-k query (package topk) depends on node payloads
// or per-node postings.
func (b *Builder) Build(ctx context.Context) error {
	root, err := b.tree.ReadNode(b.tree.RootID())
	if err != nil {
		return fmt.Errorf("augment: reading root: %w", err)
	}
	dlog.Debugf(ctx, "augment: building aggregates from root %d (level %d)", root.ID, root.Level)
	_, err = b.buildNode(ctx, root)
	return err
}

// idf returns log(N / df(t)), per §4.8's impact formula. A term with no
// recorded document frequency (shouldn't occur for a term actually
// present in some item's vector) contributes zero impact rather than
// dividing by zero.
func (b *Builder) idf(term ids.TermID) float64 {
	st, ok := b.terms.GetStats(uint32(term))
	if !ok || st.DF == 0 || b.cfg.TotalItems == 0 {
		return 0
	}
	return math.Log(float64(b.cfg.TotalItems) / float64(st.DF))
}

// buildNode aggregates n's children (post-order: children first), then
// n itself, and returns (n's aggregate vector, the payload the parent's
// entry for n should carry). n is mutated in place (its Entries'
// Payload fields are set from the children's returned payloads) and
// written back via Tree.WriteNode before returning.
func (b *Builder) buildNode(ctx context.Context, n *rtree.Node) (vector.Vector, rtree.Payload, error) {
	var agg vector.Vector
	agg.ID = n.ID

	var postings []invertedfile.Posting

	if n.IsLeaf {
		for i := range n.Entries {
			itemID := ids.ItemID(n.Entries[i].Target)
			v := b.vectors.GetItemVector(ctx, itemID)
			v.Terms.Range(func(term ids.TermID, w float64) bool {
				if cur, ok := agg.Terms.Load(term); !ok || w > cur {
					agg.Terms.Store(term, w)
				}
				impact := w * b.idf(term)
				postings = append(postings, invertedfile.NewPosting(term, n.Entries[i].Target, impact))
				return true
			})
			// An item's own entry carries its own vector as payload
			// (inline or external by the same threshold rule the node
			// aggregates below use), so search's payload-domination
			// filter works the same way at leaf and internal level
			// without treating the item's vector as a special case.
			n.Entries[i].Payload = b.entryPayload(n.Entries[i].Target, v)
			b.vectors.ReleaseItemVector(itemID)
		}
	} else {
		for i := range n.Entries {
			childID := n.Entries[i].Target
			child, err := b.tree.ReadNode(childID)
			if err != nil {
				return vector.Vector{}, nil, fmt.Errorf("augment: reading child %d of node %d: %w", childID, n.ID, err)
			}
			childVec, childPayload, err := b.buildNode(ctx, child)
			if err != nil {
				return vector.Vector{}, nil, err
			}
			n.Entries[i].Payload = childPayload

			childVec.Terms.Range(func(term ids.TermID, w float64) bool {
				if cur, ok := agg.Terms.Load(term); !ok || w > cur {
					agg.Terms.Store(term, w)
				}
				return true
			})

			maxImpacts, err := b.maxImpactsByTerm(childID)
			if err != nil {
				return vector.Vector{}, nil, err
			}
			for term, impact := range maxImpacts {
				postings = append(postings, invertedfile.NewPosting(term, childID, impact))
			}
		}
	}
	agg.ComputeNorm()

	if err := b.vectors.PutNodeVector(ids.NodeID(n.ID), agg); err != nil {
		return vector.Vector{}, nil, fmt.Errorf("augment: writing node %d's vector: %w", n.ID, err)
	}
	if err := b.postings.WritePostings(ids.NodeID(n.ID), postings); err != nil {
		return vector.Vector{}, nil, fmt.Errorf("augment: writing node %d's postings: %w", n.ID, err)
	}
	if err := b.tree.WriteNode(n); err != nil {
		return vector.Vector{}, nil, fmt.Errorf("augment: writing node %d: %w", n.ID, err)
	}

	payload := b.entryPayload(n.ID, &agg)
	return agg, payload, nil
}

// maxImpactsByTerm scans nodeID's own already-written posting list and
// returns, for every term present, the maximum impact across all of
// that node's postings for the term: the "max_impact(t, subtree(child))"
// an internal node's own posting for that child needs, computed
// recursively one level at a time from the child's already-final
// posting list rather than re-descending the whole subtree.
func (b *Builder) maxImpactsByTerm(nodeID uint32) (map[ids.TermID]float64, error) {
	it, err := b.postings.Iterator(ids.NodeID(nodeID))
	if err != nil {
		return nil, fmt.Errorf("augment: scanning node %d's postings: %w", nodeID, err)
	}
	out := make(map[ids.TermID]float64)
	for {
		ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("augment: scanning node %d's postings: %w", nodeID, err)
		}
		if !ok {
			break
		}
		rec, err := it.Record()
		if err != nil {
			return nil, fmt.Errorf("augment: scanning node %d's postings: %w", nodeID, err)
		}
		term := rec.Term()
		if impact := rec.ImpactValue(); impact > out[term] {
			out[term] = impact
		}
	}
	return out, nil
}

// entryPayload decides, per §4.8, whether handle's vector (an item's
// own vector for a leaf entry, or a child node's aggregate for an
// internal entry) should be inlined into the entry's payload (if it
// fits InlineThreshold, and rtree's own hard InlineTermCap) or only
// referenced by handle.
func (b *Builder) entryPayload(handle uint32, agg *vector.Vector) rtree.Payload {
	count := 0
	agg.Terms.Range(func(ids.TermID, float64) bool { count++; return true })
	if count == 0 {
		return nil
	}
	threshold := b.cfg.InlineThreshold
	if threshold > rtree.InlineTermCap {
		threshold = rtree.InlineTermCap
	}
	if count <= threshold {
		terms := make(map[uint32]float64, count)
		agg.Terms.Range(func(t ids.TermID, w float64) bool { terms[uint32(t)] = w; return true })
		return rtree.TextVector{Terms: terms}
	}
	return rtree.ExternalTextVector{Handle: handle}
}
