// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package rtree

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/diskio"
)

// metaRecord is rtree.meta's sidecar content: the root block id and
// level, per §4.7's "rootEntry stored in sidecar metadata". M and m
// are not persisted here: they are supplied fresh by the caller on
// every Open (§6's Configuration table), same as C1/C2's block_size
// and buffered_blocks.
type metaRecord struct {
	RootID        binstruct.U32be `bin:"off=0x0,siz=0x4"`
	RootLevel     binstruct.U16be `bin:"off=0x4,siz=0x2"`
	HasRoot       binstruct.U8    `bin:"off=0x6,siz=0x1"`
	binstruct.End `bin:"off=0x7"`
}

// Tree is C7: the R-Tree core, built over one BufferedBlockFile whose
// block size is exactly NodeHeaderSize and one *vector.Manager for
// resolving externally-stored aggregate payloads (§4.8).
type Tree struct {
	blocks     *diskio.BufferedBlockFile
	metaFile   *diskio.OSFile[int64]
	meta       diskio.Ref[int64, metaRecord]
	maxEntries int
	minEntries int
	vectors    *vector.Manager

	rootID    uint32
	rootLevel int
}

// Open loads (or initializes) the tree rooted at metaPath, backed by
// blocks. maxEntries/minEntries are M/m (§6: 1 <= m <= M/2, M <=
// MaxEntries). vectors may be nil for a tree never queried
// payload-aware (geometry only); Search/ResolvePayload return
// errs.InvalidArgument if an external handle is encountered with no
// vectors configured.
func Open(blocks *diskio.BufferedBlockFile, metaPath string, maxEntries, minEntries int, vectors *vector.Manager) (*Tree, error) {
	if maxEntries <= 0 || maxEntries > MaxEntries {
		return nil, fmt.Errorf("rtree.Open: max_entries %d out of range (1..%d): %w", maxEntries, MaxEntries, errs.InvalidArgument)
	}
	if minEntries < 1 || minEntries > maxEntries/2 {
		return nil, fmt.Errorf("rtree.Open: min_entries %d out of range (1..%d): %w", minEntries, maxEntries/2, errs.InvalidArgument)
	}
	if blocks.BlockSize() != NodeHeaderSize {
		return nil, fmt.Errorf("rtree.Open: block size %d, want %d: %w", blocks.BlockSize(), NodeHeaderSize, errs.InvalidArgument)
	}

	f, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rtree.Open: %w", err)
	}
	osFile := &diskio.OSFile[int64]{File: f}

	t := &Tree{
		blocks:     blocks,
		metaFile:   osFile,
		maxEntries: maxEntries,
		minEntries: minEntries,
		vectors:    vectors,
	}
	t.meta = diskio.Ref[int64, metaRecord]{File: osFile, Addr: 0}

	if osFile.Size() == 0 {
		id, err := blocks.Allocate()
		if err != nil {
			return nil, fmt.Errorf("rtree.Open: %w", err)
		}
		root := &Node{ID: uint32(id), Level: 0, IsLeaf: true}
		if err := t.writeNode(root); err != nil {
			return nil, fmt.Errorf("rtree.Open: %w", err)
		}
		t.rootID = root.ID
		t.rootLevel = root.Level
		if err := t.writeMeta(); err != nil {
			return nil, fmt.Errorf("rtree.Open: %w", err)
		}
		return t, nil
	}

	if err := t.meta.Read(); err != nil {
		return nil, fmt.Errorf("rtree.Open: %w", err)
	}
	if t.meta.Data.HasRoot == 0 {
		return nil, fmt.Errorf("rtree.Open: meta file present but no root recorded: %w", errs.Corrupt)
	}
	t.rootID = uint32(t.meta.Data.RootID)
	t.rootLevel = int(t.meta.Data.RootLevel)
	return t, nil
}

func (t *Tree) writeMeta() error {
	t.meta.Data = metaRecord{
		RootID:    binstruct.U32be(t.rootID),
		RootLevel: binstruct.U16be(t.rootLevel),
		HasRoot:   1,
	}
	return t.meta.Write()
}

// Close flushes the node block file and closes the sidecar meta file.
func (t *Tree) Close(ctx context.Context) error {
	if err := t.blocks.Close(ctx); err != nil {
		return err
	}
	return t.metaFile.Close()
}

// Flush writes back every dirty cached node.
func (t *Tree) Flush(ctx context.Context) error { return t.blocks.Flush(ctx) }

func (t *Tree) readNode(id uint32) (*Node, error) {
	buf := make([]byte, t.blocks.BlockSize())
	if err := t.blocks.Read(diskio.BlockID(id), buf); err != nil {
		return nil, fmt.Errorf("rtree: reading node %d: %w", id, err)
	}
	return unmarshalNode(id, buf)
}

func (t *Tree) writeNode(n *Node) error {
	buf, err := marshalNode(n)
	if err != nil {
		return fmt.Errorf("rtree: marshaling node %d: %w", n.ID, err)
	}
	if err := t.blocks.Write(diskio.BlockID(n.ID), buf); err != nil {
		return fmt.Errorf("rtree: writing node %d: %w", n.ID, err)
	}
	return nil
}

// RootID and RootLevel expose the current root for callers (e.g.
// package topk) that need to seed their own traversal.
func (t *Tree) RootID() uint32  { return t.rootID }
func (t *Tree) RootLevel() int  { return t.rootLevel }
func (t *Tree) MaxEntries() int { return t.maxEntries }
func (t *Tree) MinEntries() int { return t.minEntries }

// ReadNode exposes node lookup for read-only callers outside the
// package (topk's best-first descent, augment's post-order walk).
func (t *Tree) ReadNode(id uint32) (*Node, error) { return t.readNode(id) }

// WriteNode persists n (identified by n.ID) as-is, for package augment's
// post-order pass: it mutates a node's entries' Payload fields in place
// (the geometry and target ids are unchanged) and writes the result
// back without going through the insert/split machinery.
func (t *Tree) WriteNode(n *Node) error { return t.writeNode(n) }

var dumpConfig = func() *spew.ConfigState {
	c := spew.NewDefaultConfig()
	c.DisablePointerAddresses = true
	return c
}()

// DumpNode renders a node's header and entries for debugging (a
// corruption report, a failing test, an ad-hoc trace), the same
// spew.ConfigState the teacher uses for its on-disk item dumps.
func (t *Tree) DumpNode(id uint32) (string, error) {
	n, err := t.readNode(id)
	if err != nil {
		return "", err
	}
	return dumpConfig.Sdump(n), nil
}

// ResolvePayload resolves an ExternalTextVector handle into a concrete
// TextVector by fetching it from the tree's vector manager; any other
// payload (including nil) is returned unchanged. isLeaf indicates
// whether the handle names an item (leaf entry) or a node (internal
// entry).
func (t *Tree) ResolvePayload(ctx context.Context, isLeaf bool, p Payload) (Payload, error) {
	ext, ok := p.(ExternalTextVector)
	if !ok {
		return p, nil
	}
	if t.vectors == nil {
		return nil, fmt.Errorf("rtree: external payload handle %d with no vector manager configured: %w", ext.Handle, errs.InvalidArgument)
	}
	var v *vector.Vector
	if isLeaf {
		v = t.vectors.GetItemVector(ctx, ids.ItemID(ext.Handle))
		defer t.vectors.ReleaseItemVector(ids.ItemID(ext.Handle))
	} else {
		v = t.vectors.GetNodeVector(ctx, ids.NodeID(ext.Handle))
		defer t.vectors.ReleaseNodeVector(ids.NodeID(ext.Handle))
	}
	terms := make(map[uint32]float64)
	v.Terms.Range(func(term ids.TermID, w float64) bool {
		terms[uint32(term)] = w
		return true
	})
	return TextVector{Terms: terms}, nil
}

// chooseSubtreeIndex picks the entry in n requiring least area
// enlargement to include mbr, breaking ties by smaller post-
// enlargement area, then smaller target id (§4.7's insertion rule).
func chooseSubtreeIndex(n *Node, mbr Rectangle) int {
	best := 0
	bestEnl := math.Inf(1)
	bestArea := math.Inf(1)
	for i, e := range n.Entries {
		enl := e.MBR.Enlargement(mbr)
		area := e.MBR.Union(mbr).Area()
		switch {
		case enl < bestEnl,
			enl == bestEnl && area < bestArea,
			enl == bestEnl && area == bestArea && e.Target < n.Entries[best].Target:
			best, bestEnl, bestArea = i, enl, area
		}
	}
	return best
}

// aggregatePayload unions n's entries' payloads, resolving any
// ExternalTextVector handle through the tree's vector manager first:
// augmentation picks inline-vs-external per entry independently
// (augment.Build's entryPayload), so a single node routinely mixes
// TextVector and ExternalTextVector payloads across its entries, and
// Union on the raw unresolved pair would panic.
func (t *Tree) aggregatePayload(ctx context.Context, n *Node) (Payload, error) {
	var out Payload
	for _, e := range n.Entries {
		p, err := t.ResolvePayload(ctx, n.IsLeaf, e.Payload)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if out == nil {
			out = p
		} else {
			out = out.Union(p)
		}
	}
	return out, nil
}

func (t *Tree) entryForNode(ctx context.Context, n *Node) (Entry, error) {
	p, err := t.aggregatePayload(ctx, n)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Target: n.ID, MBR: n.MBR(), Payload: p}, nil
}

// Insert adds item at point with the given leaf-entry payload (nil if
// the tree predates C8 augmentation). §4.7.
func (t *Tree) Insert(ctx context.Context, item ids.ItemID, point [Dims]float64, payload Payload) error {
	entry := Entry{Target: uint32(item), MBR: RectangleFromPoint(point), Payload: payload}
	return t.insertAtLevel(ctx, 0, entry)
}

// InsertEntry adds a pre-built entry at an explicit tree level (0 is
// the leaf level). Delete's own reinsertion goes through insertAtLevel
// directly, not through this method.
func (t *Tree) InsertEntry(ctx context.Context, level int, entry Entry) error {
	return t.insertAtLevel(ctx, level, entry)
}

func (t *Tree) insertAtLevel(ctx context.Context, level int, newEntry Entry) error {
	root, err := t.readNode(t.rootID)
	if err != nil {
		return err
	}

	var ancestors []*Node
	var chosenIdx []int
	cur := root
	for cur.Level > level {
		idx := chooseSubtreeIndex(cur, newEntry.MBR)
		ancestors = append(ancestors, cur)
		chosenIdx = append(chosenIdx, idx)
		child, err := t.readNode(cur.Entries[idx].Target)
		if err != nil {
			return err
		}
		cur = child
	}
	if cur.Level != level {
		return fmt.Errorf("rtree: insertAtLevel(%d): descent stopped at level %d: %w", level, cur.Level, errs.InvalidArgument)
	}

	cur.Entries = append(cur.Entries, newEntry)

	var promoted *Entry
	if len(cur.Entries) > t.maxEntries {
		sibling, err := t.splitNode(cur)
		if err != nil {
			return err
		}
		if err := t.writeNode(cur); err != nil {
			return err
		}
		if err := t.writeNode(sibling); err != nil {
			return err
		}
		e, err := t.entryForNode(ctx, sibling)
		if err != nil {
			return err
		}
		promoted = &e
	} else if err := t.writeNode(cur); err != nil {
		return err
	}

	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		idx := chosenIdx[i]
		anc.Entries[idx].MBR = cur.MBR()
		p, err := t.aggregatePayload(ctx, cur)
		if err != nil {
			return err
		}
		anc.Entries[idx].Payload = p
		if promoted != nil {
			anc.Entries = append(anc.Entries, *promoted)
			promoted = nil
			if len(anc.Entries) > t.maxEntries {
				sibling, err := t.splitNode(anc)
				if err != nil {
					return err
				}
				if err := t.writeNode(sibling); err != nil {
					return err
				}
				e, err := t.entryForNode(ctx, sibling)
				if err != nil {
					return err
				}
				promoted = &e
			}
		}
		if err := t.writeNode(anc); err != nil {
			return err
		}
		cur = anc
	}

	if promoted != nil {
		id, err := t.blocks.Allocate()
		if err != nil {
			return err
		}
		newRoot := &Node{ID: uint32(id), Level: cur.Level + 1, IsLeaf: false}
		rootEntry, err := t.entryForNode(ctx, cur)
		if err != nil {
			return err
		}
		newRoot.Entries = []Entry{rootEntry, *promoted}
		if err := t.writeNode(newRoot); err != nil {
			return err
		}
		t.rootID = newRoot.ID
		t.rootLevel = newRoot.Level
		return t.writeMeta()
	}
	// No new root: rootID/rootLevel are unchanged, and the (possibly
	// modified) root node itself was already persisted above, so
	// there's nothing left for the sidecar meta file to record.
	return nil
}

// splitNode performs a quadratic-cost split of n (which must currently
// hold exactly t.maxEntries+1 entries): n is mutated in place to hold
// one group (keeping n.ID), and the other group is returned as a new
// sibling node at the same level. §4.7 steps 1-2.
func (t *Tree) splitNode(n *Node) (*Node, error) {
	entries := n.Entries
	total := len(entries)

	bestI, bestJ := 0, 1
	bestD := math.Inf(-1)
	for i := 0; i < total; i++ {
		for j := i + 1; j < total; j++ {
			u := entries[i].MBR.Union(entries[j].MBR)
			d := u.Area() - entries[i].MBR.Area() - entries[j].MBR.Area()
			if d > bestD {
				bestD, bestI, bestJ = d, i, j
			}
		}
	}

	groupA := []Entry{entries[bestI]}
	groupB := []Entry{entries[bestJ]}
	mbrA := entries[bestI].MBR
	mbrB := entries[bestJ].MBR

	var remaining []Entry
	for k, e := range entries {
		if k == bestI || k == bestJ {
			continue
		}
		remaining = append(remaining, e)
	}

	forceLimit := total - t.minEntries
	for len(remaining) > 0 {
		if len(groupA) == forceLimit {
			groupB = append(groupB, remaining...)
			break
		}
		if len(groupB) == forceLimit {
			groupA = append(groupA, remaining...)
			break
		}
		e := remaining[0]
		remaining = remaining[1:]
		enlA := mbrA.Enlargement(e.MBR)
		enlB := mbrB.Enlargement(e.MBR)
		areaA := mbrA.Union(e.MBR).Area()
		areaB := mbrB.Union(e.MBR).Area()
		toA := false
		switch {
		case enlA < enlB:
			toA = true
		case enlB < enlA:
			toA = false
		case areaA < areaB:
			toA = true
		case areaB < areaA:
			toA = false
		default:
			toA = len(groupA) <= len(groupB)
		}
		if toA {
			groupA = append(groupA, e)
			mbrA = mbrA.Union(e.MBR)
		} else {
			groupB = append(groupB, e)
			mbrB = mbrB.Union(e.MBR)
		}
	}

	n.Entries = groupA
	id, err := t.blocks.Allocate()
	if err != nil {
		return nil, err
	}
	sibling := &Node{ID: uint32(id), Level: n.Level, IsLeaf: n.IsLeaf, Entries: groupB}
	return sibling, nil
}

// locatePath records the root-to-leaf path found while searching for a
// specific item id, for Delete's MBR-recompute walk back up.
type locatePath struct {
	nodes   []*Node
	idxs    []int
	leafIdx int
}

func (t *Tree) locate(itemID uint32, point [Dims]float64) (*locatePath, error) {
	root, err := t.readNode(t.rootID)
	if err != nil {
		return nil, err
	}
	p := &locatePath{nodes: []*Node{root}}
	ok, err := t.locateRec(p, itemID, point)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rtree: item %d: %w", itemID, errs.NotFound)
	}
	return p, nil
}

func (t *Tree) locateRec(p *locatePath, itemID uint32, point [Dims]float64) (bool, error) {
	n := p.nodes[len(p.nodes)-1]
	if n.IsLeaf {
		for i, e := range n.Entries {
			if e.Target == itemID {
				p.leafIdx = i
				return true, nil
			}
		}
		return false, nil
	}
	for i, e := range n.Entries {
		if !e.MBR.Contains(RectangleFromPoint(point)) {
			continue
		}
		child, err := t.readNode(e.Target)
		if err != nil {
			return false, err
		}
		p.nodes = append(p.nodes, child)
		p.idxs = append(p.idxs, i)
		ok, err := t.locateRec(p, itemID, point)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		p.nodes = p.nodes[:len(p.nodes)-1]
		p.idxs = p.idxs[:len(p.idxs)-1]
	}
	return false, nil
}

// Delete removes item (located at point) from the tree, reinserting
// any surviving siblings of underflowed nodes along the path at their
// original levels. §4.7.
func (t *Tree) Delete(ctx context.Context, item ids.ItemID, point [Dims]float64) error {
	p, err := t.locate(uint32(item), point)
	if err != nil {
		return err
	}
	leaf := p.nodes[len(p.nodes)-1]
	leaf.Entries = append(leaf.Entries[:p.leafIdx], leaf.Entries[p.leafIdx+1:]...)

	type bufferedEntry struct {
		level int
		entry Entry
	}
	var reinsertBuf []bufferedEntry

	for i := len(p.nodes) - 1; i >= 0; i-- {
		node := p.nodes[i]
		discarded := node.ID != t.rootID && len(node.Entries) < t.minEntries
		if discarded {
			for _, e := range node.Entries {
				reinsertBuf = append(reinsertBuf, bufferedEntry{level: node.Level, entry: e})
			}
		}
		if i == 0 {
			if !discarded {
				if err := t.writeNode(node); err != nil {
					return err
				}
			}
			break
		}
		parent := p.nodes[i-1]
		idx := p.idxs[i-1]
		if discarded {
			parent.Entries = append(parent.Entries[:idx], parent.Entries[idx+1:]...)
		} else {
			parent.Entries[idx].MBR = node.MBR()
			agg, err := t.aggregatePayload(ctx, node)
			if err != nil {
				return err
			}
			parent.Entries[idx].Payload = agg
			if err := t.writeNode(node); err != nil {
				return err
			}
		}
	}

	for _, be := range reinsertBuf {
		if err := t.insertAtLevel(ctx, be.level, be.entry); err != nil {
			return err
		}
	}
	return nil
}

// Search visits every leaf entry whose MBR overlaps query and (if
// filter is non-nil) whose resolved payload dominates filter, calling
// visit for each; visit returning false stops the traversal early.
// §4.7's "recursive descent ... for payload-aware search, also
// require payload domination".
func (t *Tree) Search(ctx context.Context, query Rectangle, filter Payload, visit func(Entry) bool) error {
	root, err := t.readNode(t.rootID)
	if err != nil {
		return err
	}
	_, err = t.searchRec(ctx, root, query, filter, visit)
	return err
}

func (t *Tree) searchRec(ctx context.Context, n *Node, query Rectangle, filter Payload, visit func(Entry) bool) (bool, error) {
	for _, e := range n.Entries {
		if !e.MBR.Overlaps(query) {
			continue
		}
		if filter != nil {
			p, err := t.ResolvePayload(ctx, n.IsLeaf, e.Payload)
			if err != nil {
				return false, err
			}
			if p == nil || !p.Dominates(filter) {
				continue
			}
		}
		if n.IsLeaf {
			if !visit(e) {
				return false, nil
			}
			continue
		}
		child, err := t.readNode(e.Target)
		if err != nil {
			return false, err
		}
		cont, err := t.searchRec(ctx, child, query, filter, visit)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}
