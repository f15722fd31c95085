// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package rtree

// Payload is the per-entry augmented aggregate carried alongside an
// MBR's geometric extent (§9's "polymorphic MBR payload" redesign
// note): a single rectangle type parameterized over a payload
// capability set {union, contains} instead of the source's three
// near-duplicate rectangle classes.
type Payload interface {
	// Union returns the aggregate of this payload and another of the
	// same concrete type, per the node's entries' aggregator (OR / MAX
	// / element-wise-MAX, MBR-closure invariant in §8).
	Union(other Payload) Payload
	// Dominates reports whether this payload's aggregate dominates
	// other's, i.e. whether a subtree tagged with this payload could
	// possibly contain something matching other (§4.7's "payload
	// domination" search requirement).
	Dominates(other Payload) bool
	Tag() PayloadTag
}

// PayloadTag discriminates the concrete Payload variant, and doubles
// as the on-disk entryRecord.PayloadTag byte (see node.go).
type PayloadTag uint8

const (
	// TagNone marks an entry with no augmented payload (a tree that
	// predates C8's build pass, or built geometry-only for tests).
	TagNone PayloadTag = iota
	TagBoolean
	TagMaxScore
	TagTextVectorInline
	TagTextVectorExternal
)

// Boolean is a yes/no payload (e.g. "subtree contains an item with
// property X"); union is OR.
type Boolean bool

func (b Boolean) Union(other Payload) Payload { return Boolean(bool(b) || bool(other.(Boolean))) }
func (b Boolean) Dominates(other Payload) bool {
	return bool(b) || !bool(other.(Boolean))
}
func (b Boolean) Tag() PayloadTag { return TagBoolean }

// MaxScore is a scalar payload (e.g. "best score achievable in this
// subtree"); union is element-wise maximum.
type MaxScore float64

func (m MaxScore) Union(other Payload) Payload {
	o := other.(MaxScore)
	if o > m {
		return o
	}
	return m
}
func (m MaxScore) Dominates(other Payload) bool { return m >= other.(MaxScore) }
func (m MaxScore) Tag() PayloadTag               { return TagMaxScore }

// TextVector is a sparse term-weight aggregate payload (§4.8's node
// vector n_v); union is element-wise maximum per term, matching the
// augmentation pass's "aggregate ... by element-wise maximum weight
// per term".
type TextVector struct {
	Terms map[uint32]float64
}

func (v TextVector) Union(other Payload) Payload {
	o := other.(TextVector)
	out := make(map[uint32]float64, len(v.Terms)+len(o.Terms))
	for t, w := range v.Terms {
		out[t] = w
	}
	for t, w := range o.Terms {
		if w > out[t] {
			out[t] = w
		}
	}
	return TextVector{Terms: out}
}

// Dominates reports whether every term weight in other is also present
// in v at >= the same weight: a subtree aggregated as v can only
// contain items matching a query bound by other if v dominates it.
func (v TextVector) Dominates(other Payload) bool {
	o := other.(TextVector)
	for t, w := range o.Terms {
		if v.Terms[t] < w {
			return false
		}
	}
	return true
}

// Tag returns TagTextVectorInline; callers serializing a TextVector
// decide inline-vs-external (§4.8) based on len(Terms) against the
// configured threshold, not from the value itself.
func (v TextVector) Tag() PayloadTag { return TagTextVectorInline }

// ExternalTextVector is a handle payload: the full aggregate lives in
// C5 keyed by Handle (the same id as the owning entry's Target),
// per §4.8's "otherwise store it externally (C5) and put a handle
// (node_id) in the payload; queries fetch on demand". Union and
// Dominates are undefined on an unresolved handle; callers must
// resolve it to a TextVector first via Tree.ResolvePayload.
type ExternalTextVector struct {
	Handle uint32
}

func (e ExternalTextVector) Union(Payload) Payload {
	panic("rtree: ExternalTextVector must be resolved via Tree.ResolvePayload before Union")
}
func (e ExternalTextVector) Dominates(Payload) bool {
	panic("rtree: ExternalTextVector must be resolved via Tree.ResolvePayload before Dominates")
}
func (e ExternalTextVector) Tag() PayloadTag { return TagTextVectorExternal }
