// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package topk implements C9: best-first top-k retrieval over C7's
// tree, pruned by upper bounds derived from C8's aggregates and C6's
// per-node postings, per spec.md §4.9. Grounded on the teacher's
// general "plain iterators and plain callables" redesign note (§9) —
// heaps of small comparable records via container/heap, no object
// hierarchy — since no teacher component runs anything resembling a
// spatial-textual top-k search.
package topk

import (
	"math"

	"github.com/spatialidx/irtree/internal/irtree/ids"
)

// Query is one top-k request: a point, a set of query term weights,
// the spatial/text blend factor alpha, and the result size k.
type Query struct {
	Point [2]float64
	Terms map[ids.TermID]float64
	Alpha float64
	K     int
}

// queryNorm returns the L2 norm of q.Terms, used to normalize the text
// score's inner product into a cosine (§4.9: "text is the normalized
// inner product (cosine) over query term weights").
func (q Query) queryNorm() float64 {
	sum := 0.0
	for _, w := range q.Terms {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// spatialScore is the monotonically-decreasing distance-to-score
// mapping spec.md §4.9 names as an example: 1/(1+d).
func spatialScore(d float64) float64 {
	return 1 / (1 + d)
}

// Result is one ranked hit: the item and its combined score.
type Result struct {
	Item  ids.ItemID
	Score float64
}
