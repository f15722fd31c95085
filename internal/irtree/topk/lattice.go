// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package topk

import (
	"fmt"
	"sort"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/invertedfile"
	"github.com/spatialidx/irtree/lib/containers"
)

// source is one query term's posting stream, sorted by descending
// impact so a "head" read is always an upper bound on anything not
// yet consumed from this stream (§4.9's "current_head_impact(t)").
type source struct {
	term  ids.TermID
	posts []invertedfile.Posting
	pos   int
}

func newSource(term ids.TermID, posts []invertedfile.Posting) *source {
	sort.Slice(posts, func(i, j int) bool { return posts[i].ImpactValue() > posts[j].ImpactValue() })
	return &source{term: term, posts: posts}
}

// headImpact is an upper bound for any item not yet observed on this
// source: the largest remaining impact, or 0 once exhausted.
func (s *source) headImpact() float64 {
	if s.pos >= len(s.posts) {
		return 0
	}
	return s.posts[s.pos].ImpactValue()
}

func (s *source) exhausted() bool { return s.pos >= len(s.posts) }

// advance consumes and returns this source's next posting.
func (s *source) advance() (invertedfile.Posting, bool) {
	if s.exhausted() {
		return invertedfile.Posting{}, false
	}
	p := s.posts[s.pos]
	s.pos++
	return p, true
}

// candidate is one item's running state in the lattice: which sources
// (bits) have been observed directly, and their observed impacts.
type candidate struct {
	item     uint32
	seenMask uint32
	observed []float64 // indexed by source position; valid only where seenMask bit is set
}

func newCandidate(item uint32, n int) *candidate {
	return &candidate{item: item, observed: make([]float64, n)}
}

// ub sums, per source, the observed impact if seen, else that source's
// current head impact — §4.9's candidate upper bound definition.
func (c *candidate) ub(sources []*source) float64 {
	sum := 0.0
	for i, s := range sources {
		if c.seenMask&(1<<uint(i)) != 0 {
			sum += c.observed[i]
		} else {
			sum += s.headImpact()
		}
	}
	return sum
}

func (c *candidate) finalized(n int) bool {
	return c.seenMask == (uint32(1)<<uint(n))-1
}

// Lattice implements §4.9's NRA-style alternative retrieval mode: drive
// a top-k search by parallel per-term posting-list scans instead of a
// tree descent, useful when the query has few terms and the posting
// lists are short relative to the tree. It only covers the text half
// of the score (spatial contributes nothing to a source), so it is
// meant for alpha == 0 (pure textual top-k) queries; a caller blending
// spatial relevance should use Engine.Search's tree descent instead.
type Lattice struct {
	sources    []*source
	candidates map[uint32]*candidate
	leaders    map[uint32]*candidate // bitmap -> highest-UB candidate with that exact bitmap
	dried      containers.Set[int] // source index -> exhausted and no longer relevant
	results    *resultSet
}

// NewLattice builds a Lattice over one posting stream per query term,
// collected from every leaf node's C6 postings (§4.9 operates over
// term posting streams; a node-scoped C6 inverted file has no single
// global per-term stream, so this reads every leaf once up front to
// assemble one).
func NewLattice(postings *invertedfile.Store, leafIDs []uint32, terms []ids.TermID, k int) (*Lattice, error) {
	sources := make([]*source, len(terms))
	for i, term := range terms {
		var all []invertedfile.Posting
		for _, leaf := range leafIDs {
			it, err := postings.TermIterator(ids.NodeID(leaf), term)
			if err != nil {
				return nil, fmt.Errorf("topk: lattice source for term %d, leaf %d: %w", term, leaf, err)
			}
			for {
				ok, err := it.Next()
				if err != nil {
					return nil, fmt.Errorf("topk: lattice source for term %d, leaf %d: %w", term, leaf, err)
				}
				if !ok {
					break
				}
				all = append(all, it.Posting())
			}
		}
		sources[i] = newSource(term, all)
	}
	return &Lattice{
		sources:    sources,
		candidates: make(map[uint32]*candidate),
		leaders:    make(map[uint32]*candidate),
		dried:      make(containers.Set[int]),
		results:    newResultSet(k),
	}, nil
}

func (l *Lattice) kth() float64 { return l.results.kth() }

// observe folds one source's posting into its candidate, creating the
// candidate on first sight.
func (l *Lattice) observe(sourceIdx int, p invertedfile.Posting) *candidate {
	c, ok := l.candidates[p.Obj()]
	if !ok {
		c = newCandidate(p.Obj(), len(l.sources))
		l.candidates[p.Obj()] = c
	}
	c.seenMask |= 1 << uint(sourceIdx)
	c.observed[sourceIdx] = p.ImpactValue()
	return c
}

// refreshLeaders recomputes, for every candidate, its current UB, and
// rebuilds the per-bitmap leader table (§4.9's "Full update").
func (l *Lattice) refreshLeaders() {
	l.leaders = make(map[uint32]*candidate)
	for _, c := range l.candidates {
		ub := c.ub(l.sources)
		if ub <= l.kth() {
			continue
		}
		if cur, ok := l.leaders[c.seenMask]; !ok || ub > cur.ub(l.sources) {
			l.leaders[c.seenMask] = c
		}
	}
}

// topKBitmap is the bitwise-OR of every admitted result's fully-seen
// mask; §4.9's source-relevance rule checks coverage against it.
func (l *Lattice) topKBitmap() uint32 {
	var b uint32
	for _, c := range l.candidates {
		if r, ok := l.isAdmitted(c.item); ok && r {
			b |= c.seenMask
		}
	}
	return b
}

func (l *Lattice) isAdmitted(item uint32) (bool, bool) {
	for _, r := range l.results.sorted() {
		if uint32(r.Item) == item {
			return true, true
		}
	}
	return false, false
}

// sourceRelevant reports whether source idx can still matter: a source
// that has not dried out (been exhausted) always can; a dried-out source
// is irrelevant once some admitted result's seen mask covers it. The
// dried-out state of the other sources' bitmaps is not consulted.
func (l *Lattice) sourceRelevant(idx int) bool {
	if !l.dried.Has(idx) {
		return true
	}
	covered := uint32(1)<<uint(idx) & l.topKBitmap()
	return covered == 0
}

// Run drives the lattice to completion: at each step, advance the
// source with the highest current head impact (the one whose next
// posting can most improve some candidate's UB), fold the posting into
// its candidate, admit any now-finalized candidate whose exact score
// (the sum of all per-term observed impacts, once every source has
// been seen) beats kth, and refresh leaders/dried sources. Terminates
// when every source is exhausted or irrelevant.
//
// Simplification: refreshLeaders runs a full update (§4.9's "Full
// update") after every single posting rather than only after the
// lighter incremental "Pruning rule" trigger condition — correct by
// the same monotone-UB argument since a full update is just a more
// frequent application of the same rule, at the cost of doing more
// work per step than strictly necessary.
func (l *Lattice) Run() []Result {
	if len(l.sources) == 0 {
		return nil
	}
	for {
		activeIdx := -1
		activeHead := -1.0
		for i, s := range l.sources {
			if l.dried.Has(i) || !l.sourceRelevant(i) {
				continue
			}
			if s.exhausted() {
				l.dried.Insert(i)
				continue
			}
			if h := s.headImpact(); h > activeHead {
				activeHead = h
				activeIdx = i
			}
		}
		if activeIdx == -1 {
			break
		}
		p, ok := l.sources[activeIdx].advance()
		if !ok {
			l.dried.Insert(activeIdx)
			continue
		}
		c := l.observe(activeIdx, p)
		if c.finalized(len(l.sources)) {
			score := 0.0
			for _, w := range c.observed {
				score += w
			}
			l.results.offer(Result{Item: ids.ItemID(c.item), Score: score})
		}
		l.refreshLeaders()
	}
	return l.results.sorted()
}
