// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package rtree

import (
	"fmt"
	"math"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/lib/binstruct"
)

// MaxEntries and InlineTermCap are compile-time hard caps on the
// per-node entry array and per-entry inline term count, since a node
// must fit in one fixed-size block (§4.7's "each node fits in one
// block; entries serialize as {child_id, mbr}"). The runtime-configured
// M ("max_entries") and inline_vector_threshold (§6) must each be <=
// their respective cap; Open validates this (see tree.go).
const (
	MaxEntries    = 32
	InlineTermCap = 4
)

// coordRecord is one rectangle dimension pair, stored as the raw
// float64 bits (binstruct has no native float field type, the same
// approach vector.TermWeight and invertedfile.Posting use for impact
// weights).
type coordRecord struct {
	Min           [Dims]binstruct.U64be `bin:"off=0x0,siz=0x10"`
	Max           [Dims]binstruct.U64be `bin:"off=0x10,siz=0x10"`
	binstruct.End `bin:"off=0x20"`
}

func marshalRectangle(r Rectangle) coordRecord {
	var out coordRecord
	for i := 0; i < Dims; i++ {
		out.Min[i] = binstruct.U64be(math.Float64bits(r.Min[i]))
		out.Max[i] = binstruct.U64be(math.Float64bits(r.Max[i]))
	}
	return out
}

func (c coordRecord) rectangle() Rectangle {
	var r Rectangle
	for i := 0; i < Dims; i++ {
		r.Min[i] = math.Float64frombits(uint64(c.Min[i]))
		r.Max[i] = math.Float64frombits(uint64(c.Max[i]))
	}
	return r
}

// entryRecord is one on-disk node entry: target id, MBR, and a tagged
// payload. The external-vector case (TagTextVectorExternal) needs no
// extra field beyond the tag: the handle to fetch is the entry's own
// TargetID, looked up in the vector manager's item or node cache
// depending on the owning node's level.
type entryRecord struct {
	TargetID      binstruct.U32be                  `bin:"off=0x0,siz=0x4"`
	MBR           coordRecord                       `bin:"off=0x4,siz=0x20"`
	PayloadTag    binstruct.U8                      `bin:"off=0x24,siz=0x1"`
	BoolVal       binstruct.U8                      `bin:"off=0x25,siz=0x1"`
	ScoreBits     binstruct.U64be                   `bin:"off=0x26,siz=0x8"`
	InlineCount   binstruct.U8                      `bin:"off=0x2e,siz=0x1"`
	InlineTerms   [InlineTermCap]vector.TermWeight  `bin:"off=0x2f,siz=0x30"`
	binstruct.End `bin:"off=0x5f"`
}

var entryRecordSize = binstruct.StaticSize(entryRecord{})

// nodeHeader is the fixed-shape block layout for one tree node: a
// small header followed by up to MaxEntries entryRecords. Unused
// trailing entry slots are zeroed and ignored past Count.
type nodeHeader struct {
	Level         binstruct.U16be              `bin:"off=0x0,siz=0x2"`
	IsLeaf        binstruct.U8                 `bin:"off=0x2,siz=0x1"`
	Count         binstruct.U8                 `bin:"off=0x3,siz=0x1"`
	Entries       [MaxEntries]entryRecord      `bin:"off=0x4,siz=0xbe0"`
	binstruct.End `bin:"off=0xbe4"`
}

// NodeHeaderSize is the fixed serialized size of one tree node block;
// Open requires the node block file's block size to equal this.
var NodeHeaderSize = binstruct.StaticSize(nodeHeader{})

func init() {
	if entryRecordSize*MaxEntries+4 != NodeHeaderSize {
		panic(fmt.Sprintf("rtree: entryRecordSize(%d)*MaxEntries(%d)+4 != NodeHeaderSize(%d)",
			entryRecordSize, MaxEntries, NodeHeaderSize))
	}
}

// Entry is one in-memory node entry: Target is a child node id
// (internal node) or item id (leaf node), MBR its geometric extent,
// and Payload its augmented aggregate (nil until C8's build pass has
// run, or for a bare geometric-only tree).
type Entry struct {
	Target  uint32
	MBR     Rectangle
	Payload Payload
}

// Node is one in-memory tree node: a leaf (Entries point at items) or
// internal (Entries point at child nodes) node at the given level
// (0 = leaf).
type Node struct {
	ID      uint32
	Level   int
	IsLeaf  bool
	Entries []Entry
}

// MBR returns the union of every entry's MBR, the node's own bounding
// rectangle per the §8 "MBR closure" invariant.
func (n *Node) MBR() Rectangle {
	if len(n.Entries) == 0 {
		return Rectangle{}
	}
	out := n.Entries[0].MBR
	for _, e := range n.Entries[1:] {
		out = out.Union(e.MBR)
	}
	return out
}

func marshalPayload(p Payload) (tag byte, boolVal byte, scoreBits uint64, inline []vector.TermWeight) {
	if p == nil {
		return byte(TagNone), 0, 0, nil
	}
	switch v := p.(type) {
	case Boolean:
		b := byte(0)
		if v {
			b = 1
		}
		return byte(TagBoolean), b, 0, nil
	case MaxScore:
		return byte(TagMaxScore), 0, math.Float64bits(float64(v)), nil
	case TextVector:
		if len(v.Terms) <= InlineTermCap {
			recs := make([]vector.TermWeight, 0, len(v.Terms))
			for t, w := range v.Terms {
				recs = append(recs, vector.TermWeight{
					TermID: binstruct.U32be(t),
					Weight: binstruct.U64be(math.Float64bits(w)),
				})
			}
			return byte(TagTextVectorInline), 0, 0, recs
		}
		return byte(TagTextVectorExternal), 0, 0, nil
	case ExternalTextVector:
		return byte(TagTextVectorExternal), 0, 0, nil
	default:
		panic(fmt.Sprintf("rtree: unknown payload type %T", p))
	}
}

func unmarshalPayload(rec entryRecord) Payload {
	switch PayloadTag(rec.PayloadTag) {
	case TagNone:
		return nil
	case TagBoolean:
		return Boolean(rec.BoolVal != 0)
	case TagMaxScore:
		return MaxScore(math.Float64frombits(uint64(rec.ScoreBits)))
	case TagTextVectorInline:
		terms := make(map[uint32]float64, rec.InlineCount)
		for i := 0; i < int(rec.InlineCount); i++ {
			tw := rec.InlineTerms[i]
			terms[uint32(tw.TermID)] = math.Float64frombits(uint64(tw.Weight))
		}
		return TextVector{Terms: terms}
	case TagTextVectorExternal:
		return ExternalTextVector{Handle: uint32(rec.TargetID)}
	default:
		return nil
	}
}

func entryToRecord(e Entry) (entryRecord, error) {
	tag, boolVal, scoreBits, inline := marshalPayload(e.Payload)
	if len(inline) > InlineTermCap {
		return entryRecord{}, fmt.Errorf("rtree: entry has %d inline terms, cap is %d: %w", len(inline), InlineTermCap, errs.Full)
	}
	rec := entryRecord{
		TargetID:    binstruct.U32be(e.Target),
		MBR:         marshalRectangle(e.MBR),
		PayloadTag:  binstruct.U8(tag),
		BoolVal:     binstruct.U8(boolVal),
		ScoreBits:   binstruct.U64be(scoreBits),
		InlineCount: binstruct.U8(len(inline)),
	}
	copy(rec.InlineTerms[:], inline)
	return rec, nil
}

func recordToEntry(rec entryRecord) Entry {
	return Entry{
		Target:  uint32(rec.TargetID),
		MBR:     rec.MBR.rectangle(),
		Payload: unmarshalPayload(rec),
	}
}

func marshalNode(n *Node) ([]byte, error) {
	if len(n.Entries) > MaxEntries {
		return nil, fmt.Errorf("rtree: node has %d entries, cap is %d: %w", len(n.Entries), MaxEntries, errs.Full)
	}
	var hdr nodeHeader
	hdr.Level = binstruct.U16be(n.Level)
	if n.IsLeaf {
		hdr.IsLeaf = 1
	}
	hdr.Count = binstruct.U8(len(n.Entries))
	for i, e := range n.Entries {
		rec, err := entryToRecord(e)
		if err != nil {
			return nil, err
		}
		hdr.Entries[i] = rec
	}
	return binstruct.Marshal(hdr)
}

func unmarshalNode(id uint32, buf []byte) (*Node, error) {
	var hdr nodeHeader
	n, err := binstruct.Unmarshal(buf, &hdr)
	if err != nil {
		return nil, fmt.Errorf("rtree: unmarshal node %d: %w: %w", id, errs.Corrupt, err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("rtree: unmarshal node %d: %w: consumed %d of %d bytes", id, errs.Corrupt, n, len(buf))
	}
	count := int(hdr.Count)
	if count > MaxEntries {
		return nil, fmt.Errorf("rtree: unmarshal node %d: %w: count %d exceeds cap %d", id, errs.Corrupt, count, MaxEntries)
	}
	node := &Node{
		ID:      id,
		Level:   int(hdr.Level),
		IsLeaf:  hdr.IsLeaf != 0,
		Entries: make([]Entry, count),
	}
	for i := 0; i < count; i++ {
		node.Entries[i] = recordToEntry(hdr.Entries[i])
	}
	return node, nil
}
