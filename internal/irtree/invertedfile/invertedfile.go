// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package invertedfile implements C6: a per-node inverted file mapping
// term id -> posting list<(doc_or_child_id, impact)>, built once per
// node in the post-order augmentation pass (package augment). Grounded
// on package liststore's record-list shape; spec.md §4.6 offers two
// equivalent framings ("a synthetic key combining node_id and term",
// or "a small C3 list store... whose directory is keyed by node id")
// and this package takes the second, simpler one literally: one shared
// liststore.Store[Posting], its directory keyed by plain node id, each
// node's list holding every (term, obj, impact) triple for that node
// in one place. A term-scoped query filters that one list client-side,
// which is cheap since a node's own vocabulary is bounded by its
// fan-out (<= M entries' worth of terms).
package invertedfile

import (
	"errors"
	"fmt"
	"math"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/diskio"
)

// Posting is one (term_id, obj_id, impact) record: obj_id is an
// item_id for a leaf node's postings, or a child node_id for an
// internal node's aggregated postings.
type Posting struct {
	TermID        binstruct.U32be `bin:"off=0x0,siz=0x4"`
	ObjID         binstruct.U32be `bin:"off=0x4,siz=0x4"`
	Impact        binstruct.U64be `bin:"off=0x8,siz=0x8"`
	binstruct.End `bin:"off=0x10"`
}

// RecordSize is Posting's fixed on-disk size, for passing to
// liststore.Open.
var RecordSize = binstruct.StaticSize(Posting{})

// NewPosting builds a Posting record from plain values.
func NewPosting(term ids.TermID, obj uint32, impact float64) Posting {
	return Posting{
		TermID: binstruct.U32be(term),
		ObjID:  binstruct.U32be(obj),
		Impact: binstruct.U64be(math.Float64bits(impact)),
	}
}

// Term, Obj, and ImpactValue decode a Posting's fields back to plain
// Go values.
func (p Posting) Term() ids.TermID    { return ids.TermID(p.TermID) }
func (p Posting) Obj() uint32         { return uint32(p.ObjID) }
func (p Posting) ImpactValue() float64 { return math.Float64frombits(uint64(p.Impact)) }

// Store is C6: the shared per-node inverted file.
type Store struct {
	inner *liststore.Store[Posting]
}

// Open loads (or initializes) the inverted file store backed by
// blocks, with its directory persisted at dirPath.
func Open(blocks *diskio.BufferedBlockFile, dirPath string) (*Store, error) {
	inner, err := liststore.Open[Posting](blocks, RecordSize, dirPath)
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner}, nil
}

// WritePostings (re)builds node id's full posting list, replacing
// whatever was previously stored for it. Called once per node by
// package augment's post-order build pass.
func (s *Store) WritePostings(node ids.NodeID, postings []Posting) error {
	key := uint32(node)
	if _, err := s.inner.Iterator(key); err == nil {
		if err := s.inner.Remove(key); err != nil {
			return fmt.Errorf("invertedfile.WritePostings(%d): %w", node, err)
		}
	}
	if len(postings) == 0 {
		return nil
	}
	_, err := s.inner.AppendList(key, postings)
	return err
}

// Iterator returns a restartable iterator over every posting stored
// for node, across all terms.
func (s *Store) Iterator(node ids.NodeID) (*liststore.Iterator[Posting], error) {
	it, err := s.inner.Iterator(uint32(node))
	if err != nil {
		return nil, fmt.Errorf("invertedfile.Iterator(%d): %w", node, err)
	}
	return it, nil
}

// TermIterator is a restartable iterator over node's postings for one
// specific term, satisfying spec §4.6's "query-time lookup for a term
// yields a restartable posting iterator".
type TermIterator struct {
	inner *liststore.Iterator[Posting]
	term  ids.TermID
	cur   Posting
}

// TermIterator opens a TermIterator over node's postings for term. A
// node with no stored postings at all (errs.NotFound) is treated the
// same as a node with none for this particular term: the iterator is
// valid and simply yields nothing, matching spec §5's "missing
// postings are treated as zero contribution (not error)".
func (s *Store) TermIterator(node ids.NodeID, term ids.TermID) (*TermIterator, error) {
	inner, err := s.inner.Iterator(uint32(node))
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return &TermIterator{term: term}, nil
		}
		return nil, fmt.Errorf("invertedfile.TermIterator(%d,%d): %w", node, term, err)
	}
	return &TermIterator{inner: inner, term: term}, nil
}

// Next advances to the next posting for this iterator's term, skipping
// postings for other terms stored in the same node list.
func (it *TermIterator) Next() (bool, error) {
	if it.inner == nil {
		return false, nil
	}
	for {
		ok, err := it.inner.Next()
		if err != nil || !ok {
			return false, err
		}
		rec, err := it.inner.Record()
		if err != nil {
			return false, err
		}
		if rec.Term() == it.term {
			it.cur = rec
			return true, nil
		}
	}
}

// Posting returns the posting at the iterator's current position. Call
// only after Next returned true.
func (it *TermIterator) Posting() Posting { return it.cur }
