// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package rtree implements C7, the R-Tree core: quadratic-split
// insertion, reinsertion-based deletion, and MBR/payload-aware search
// over nodes persisted one-per-block via C2. Grounded on the teacher's
// general descend-with-a-path-stack shape for tree operations (see
// lib/btrfs/btrfstree's Tree/path idiom, not copied: that package's
// items are typed byte blobs keyed by (objectid, type, offset), while
// an R-Tree entry is a rectangle) and on this module's own liststore/
// vocab packages for the block-local binstruct record conventions.
package rtree

import "math"

// Dims is the spatial dimensionality, fixed at compile time rather
// than left as a runtime parameter (Open Question resolution, see
// DESIGN.md): it lets Rectangle store [Dims]float64 arrays instead of
// slices, avoiding a per-rectangle allocation and letting entry
// records have one fixed on-disk size.
const Dims = 2

// Rectangle is an axis-aligned minimum bounding rectangle in Dims
// dimensions.
type Rectangle struct {
	Min [Dims]float64
	Max [Dims]float64
}

// RectangleFromPoint returns the degenerate rectangle containing only
// p (an item's point, before any union with siblings).
func RectangleFromPoint(p [Dims]float64) Rectangle {
	return Rectangle{Min: p, Max: p}
}

// Area is the rectangle's Dims-dimensional volume.
func (r Rectangle) Area() float64 {
	area := 1.0
	for i := 0; i < Dims; i++ {
		area *= (r.Max[i] - r.Min[i])
	}
	return area
}

// Union returns the smallest rectangle containing both r and o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	var out Rectangle
	for i := 0; i < Dims; i++ {
		out.Min[i] = math.Min(r.Min[i], o.Min[i])
		out.Max[i] = math.Max(r.Max[i], o.Max[i])
	}
	return out
}

// Enlargement is the area added to r by unioning it with o, per the
// insertion path's "least area enlargement" subtree choice (§4.7).
func (r Rectangle) Enlargement(o Rectangle) float64 {
	return r.Union(o).Area() - r.Area()
}

// Overlaps reports whether r and o share any point, for search's
// descent-pruning test (§4.7's "children whose MBR overlaps the query
// MBR").
func (r Rectangle) Overlaps(o Rectangle) bool {
	for i := 0; i < Dims; i++ {
		if r.Max[i] < o.Min[i] || o.Max[i] < r.Min[i] {
			return false
		}
	}
	return true
}

// Contains reports whether r fully contains o.
func (r Rectangle) Contains(o Rectangle) bool {
	for i := 0; i < Dims; i++ {
		if o.Min[i] < r.Min[i] || o.Max[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// MinDist is the minimum Euclidean distance from p to any point in r,
// zero if p is inside r. Used for an entry's exact spatial upper
// bound (§4.9).
func MinDist(p [Dims]float64, r Rectangle) float64 {
	sum := 0.0
	for i := 0; i < Dims; i++ {
		d := 0.0
		switch {
		case p[i] < r.Min[i]:
			d = r.Min[i] - p[i]
		case p[i] > r.Max[i]:
			d = p[i] - r.Max[i]
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}
