// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package vector implements C5, the vector cache manager: ARC-backed
// item/node vector caches over C3 list stores, plus an LRU of pairwise
// cosines. Grounded on the teacher's pattern of pairing a
// containers.Cache with a containers.Source (see
// lib/containers/arcache.go's doc comment, written with this package
// in mind) rather than any specific teacher file, since no teacher
// component manages sparse term-weight vectors.
package vector

import (
	"context"
	"fmt"
	"math"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/containers"
)

// TermWeight is one (term_id, weight) record of a stored sparse
// vector's term list, per spec.md §3 ("stored as a length-prefixed
// list of (term_id, weight) records via C3").
type TermWeight struct {
	TermID        binstruct.U32be `bin:"off=0x0,siz=0x4"`
	Weight        binstruct.U64be `bin:"off=0x4,siz=0x8"`
	binstruct.End `bin:"off=0xc"`
}

// RecordSize is the fixed on-disk size of a TermWeight record, for
// passing to liststore.Open.
var RecordSize = binstruct.StaticSize(TermWeight{})

// Vector is a sparse term-weight vector, identified by an item or node
// id, with its precomputed L2 norm.
type Vector struct {
	ID    uint32
	Terms containers.SortedMap[ids.TermID, float64]
	Norm  float64
}

// ComputeNorm derives and stores the L2 norm from the current term
// weights. Callers that build a Vector by hand (package augment's
// post-order aggregation, tests) must call this before the vector is
// used anywhere norm-dependent, such as Cosine.
func (v *Vector) ComputeNorm() {
	sum := 0.0
	v.Terms.Range(func(_ ids.TermID, w float64) bool {
		sum += w * w
		return true
	})
	v.Norm = math.Sqrt(sum)
}

// listSource adapts a liststore.Store[TermWeight] into a
// containers.Source[uint32, Vector]: on a cache miss, materialize a
// Vector by reading that key's term records; on a cache write-back,
// this is a no-op (see Manager's write-through rationale below).
type listSource struct {
	store *liststore.Store[TermWeight]
}

func (s listSource) Load(_ context.Context, key uint32, dst *Vector) {
	it, err := s.store.Iterator(key)
	if err != nil {
		// Per containers.Source's contract: leave dst zero-valued on
		// a miss; callers distinguish "no vector" by dst.ID == 0 or
		// by checking the store directly first.
		*dst = Vector{}
		return
	}
	v := Vector{ID: key}
	for {
		ok, err := it.Next()
		if err != nil || !ok {
			break
		}
		rec, err := it.Record()
		if err != nil {
			break
		}
		v.Terms.Store(ids.TermID(rec.TermID), math.Float64frombits(uint64(rec.Weight)))
	}
	v.ComputeNorm()
	*dst = v
}

// Flush is a no-op: Manager persists a vector synchronously in
// PutItemVector/PutNodeVector (write-through), since spec.md §3 states
// item and node vectors are "created during insertion, never mutated
// textually after the single post-order build pass" — there is never
// a dirty in-memory vector for the ARC cache's internal eviction to
// lose, only ever a freshly-read one.
func (s listSource) Flush(_ context.Context, _ *Vector) {}

func cosineKey(a, b uint32) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Manager is C5: two ARC-backed vector caches (item, node) plus an LRU
// of pairwise cosines.
type Manager struct {
	itemStore *liststore.Store[TermWeight]
	nodeStore *liststore.Store[TermWeight]

	items  containers.Cache[uint32, Vector]
	nodes  containers.Cache[uint32, Vector]
	cosine *containers.LRUCache[string, float64]
}

// NewManager builds a vector cache manager over the given item/node
// list stores, with itemCap/nodeCap live ARC entries and cosineCap
// cached pairwise cosines.
func NewManager(itemStore, nodeStore *liststore.Store[TermWeight], itemCap, nodeCap, cosineCap int) *Manager {
	return &Manager{
		itemStore: itemStore,
		nodeStore: nodeStore,
		items:     containers.NewARCache[uint32, Vector](itemCap, listSource{store: itemStore}),
		nodes:     containers.NewARCache[uint32, Vector](nodeCap, listSource{store: nodeStore}),
		cosine:    containers.NewLRUCache[string, float64](cosineCap),
	}
}

// GetItemVector acquires item id's vector; the caller must call
// ReleaseItemVector when done with the returned pointer.
func (m *Manager) GetItemVector(ctx context.Context, id ids.ItemID) *Vector {
	return m.items.Acquire(ctx, uint32(id))
}

// ReleaseItemVector releases a pin taken by GetItemVector.
func (m *Manager) ReleaseItemVector(id ids.ItemID) { m.items.Release(uint32(id)) }

// GetNodeVector acquires node id's vector; the caller must call
// ReleaseNodeVector when done with the returned pointer.
func (m *Manager) GetNodeVector(ctx context.Context, id ids.NodeID) *Vector {
	return m.nodes.Acquire(ctx, uint32(id))
}

// ReleaseNodeVector releases a pin taken by GetNodeVector.
func (m *Manager) ReleaseNodeVector(id ids.NodeID) { m.nodes.Release(uint32(id)) }

// PutItemVector persists v as item id's vector (replacing any prior
// records for that id) and invalidates any cached copy so the next
// GetItemVector re-reads the fresh data.
func (m *Manager) PutItemVector(id ids.ItemID, v Vector) error {
	key := uint32(id)
	if err := putVector(m.itemStore, key, v); err != nil {
		return err
	}
	m.items.Delete(key)
	return nil
}

// PutNodeVector is PutItemVector's node-id counterpart.
func (m *Manager) PutNodeVector(id ids.NodeID, v Vector) error {
	key := uint32(id)
	if err := putVector(m.nodeStore, key, v); err != nil {
		return err
	}
	m.nodes.Delete(key)
	return nil
}

func putVector(store *liststore.Store[TermWeight], key uint32, v Vector) error {
	if _, err := store.Iterator(key); err == nil {
		if err := store.Remove(key); err != nil {
			return fmt.Errorf("vector: replacing vector %d: %w", key, err)
		}
	}
	var records []TermWeight
	v.Terms.Range(func(term ids.TermID, weight float64) bool {
		records = append(records, TermWeight{
			TermID: binstruct.U32be(term),
			Weight: binstruct.U64be(math.Float64bits(weight)),
		})
		return true
	})
	if len(records) == 0 {
		return nil
	}
	_, err := store.AppendList(key, records)
	return err
}

// CachedCosine returns the cached cosine similarity between items a
// and b, if present.
func (m *Manager) CachedCosine(a, b ids.ItemID) (float64, bool) {
	return m.cosine.Get(cosineKey(uint32(a), uint32(b)))
}

// StoreCosine caches the cosine similarity between items a and b.
func (m *Manager) StoreCosine(a, b ids.ItemID, x float64) {
	m.cosine.Add(cosineKey(uint32(a), uint32(b)), x)
}

// Flush flushes both vector caches (a no-op beyond bookkeeping, given
// the write-through design above) and exists so callers can treat C5
// symmetrically with C1-C4's Close/Flush methods.
func (m *Manager) Flush(ctx context.Context) {
	m.items.Flush(ctx)
	m.nodes.Flush(ctx)
}

// Cosine computes the cosine similarity between two vectors directly
// (used when at least one side isn't cacheable, e.g. a transient query
// vector), ranging over a's terms in ascending term id order and
// looking each one up in b.
func Cosine(a, b *Vector) float64 {
	if a.Norm == 0 || b.Norm == 0 {
		return 0
	}
	dot := 0.0
	a.Terms.Range(func(term ids.TermID, wa float64) bool {
		if wb, ok := b.Terms.Load(term); ok {
			dot += wa * wb
		}
		return true
	})
	return dot / (a.Norm * b.Norm)
}
