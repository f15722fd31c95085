// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ids defines the dense integer identifier newtypes shared
// across the index's layers: items and tree nodes are addressed by
// ItemID/NodeID, vocabulary terms by TermID, and on-disk blocks by
// BlockID. Keeping them as distinct types (rather than passing around
// bare uint32s) is grounded on the teacher repo's id-newtype pattern in
// lib/btrfs/btrfsprim (e.g. ObjID, Generation) — it stops an item id
// from being passed where a node id is expected at compile time.
package ids

import "github.com/spatialidx/irtree/lib/containers"

// ItemID identifies an externally-inserted spatial-textual item. Dense
// and assigned by the vocabulary (C4) at insertion time.
type ItemID uint32

func (a ItemID) Cmp(b ItemID) int { return containers.CmpUint(a, b) }

// NodeID identifies an R-tree node (leaf or internal), and doubles as
// the key C6 uses for a node's per-node inverted file and C5 uses for
// a node's aggregated vector.
type NodeID uint32

func (a NodeID) Cmp(b NodeID) int { return containers.CmpUint(a, b) }

// TermID identifies an interned vocabulary term. Dense and assigned by
// C4 the first time a term string is seen.
type TermID uint32

func (a TermID) Cmp(b TermID) int { return containers.CmpUint(a, b) }

// BlockID identifies a fixed-size block within a C1 block file. Defined
// here (rather than only in package diskio) so higher layers can name
// "the block holding node 7" without importing diskio for the type
// alone; diskio.BlockID is the identical underlying type used at the
// storage boundary.
type BlockID uint32

func (a BlockID) Cmp(b BlockID) int { return containers.CmpUint(a, b) }

// NilItemID, NilNodeID, and NilBlockID are reserved sentinel values
// meaning "no item"/"no node"/"no block" — e.g. a leaf entry's child
// field, or an as-yet-unallocated root.
const (
	NilItemID  ItemID  = 0
	NilNodeID  NodeID  = 0
	NilBlockID BlockID = 0
)
