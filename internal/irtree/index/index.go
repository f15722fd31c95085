// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package index

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/datawire/dlib/dlog"

	"github.com/spatialidx/irtree/internal/irtree/augment"
	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/invertedfile"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
	"github.com/spatialidx/irtree/internal/irtree/stats"
	"github.com/spatialidx/irtree/internal/irtree/topk"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/internal/irtree/vocab"
	"github.com/spatialidx/irtree/lib/diskio"
)

// Index is the top-level handle wiring C1 through C10, one per on-disk
// directory per §6's "Persisted state layout".
type Index struct {
	cfg Config

	nodesBF   *diskio.BufferedBlockFile
	itemVecBF *diskio.BufferedBlockFile
	nodeVecBF *diskio.BufferedBlockFile
	postBF    *diskio.BufferedBlockFile

	tree     *rtree.Tree
	vectors  *vector.Manager
	postings *invertedfile.Store
	termVoc  *vocab.Vocabulary
	docVoc   *vocab.Vocabulary
	Stats    *stats.Center

	itemCount int
}

// Open creates or loads an index directory under dir per cfg. dir must
// already exist.
func Open(ctx context.Context, dir string, cfg Config) (*Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	nodesBlocks, err := diskio.OpenBlockFile(ctx, dir, "nodes", cfg.BlockSize, cfg.BlocksPerFile)
	if err != nil {
		return nil, fmt.Errorf("index: opening node blocks: %w", err)
	}
	nodesBF := diskio.NewBufferedBlockFile(nodesBlocks, cfg.BufferedBlocks)

	itemVecBlocks, err := diskio.OpenBlockFile(ctx, dir, "lists.items", cfg.BlockSize, cfg.BlocksPerFile)
	if err != nil {
		return nil, fmt.Errorf("index: opening item vector blocks: %w", err)
	}
	itemVecBF := diskio.NewBufferedBlockFile(itemVecBlocks, cfg.BufferedBlocks)

	nodeVecBlocks, err := diskio.OpenBlockFile(ctx, dir, "lists.nodes", cfg.BlockSize, cfg.BlocksPerFile)
	if err != nil {
		return nil, fmt.Errorf("index: opening node vector blocks: %w", err)
	}
	nodeVecBF := diskio.NewBufferedBlockFile(nodeVecBlocks, cfg.BufferedBlocks)

	postBlocks, err := diskio.OpenBlockFile(ctx, dir, "lists.postings", cfg.BlockSize, cfg.BlocksPerFile)
	if err != nil {
		return nil, fmt.Errorf("index: opening posting blocks: %w", err)
	}
	postBF := diskio.NewBufferedBlockFile(postBlocks, cfg.BufferedBlocks)

	itemStore, err := liststore.Open[vector.TermWeight](itemVecBF, vector.RecordSize, filepath.Join(dir, "lists.items.dir"))
	if err != nil {
		return nil, fmt.Errorf("index: opening item vector store: %w", err)
	}
	nodeStore, err := liststore.Open[vector.TermWeight](nodeVecBF, vector.RecordSize, filepath.Join(dir, "lists.nodes.dir"))
	if err != nil {
		return nil, fmt.Errorf("index: opening node vector store: %w", err)
	}
	vectors := vector.NewManager(itemStore, nodeStore, cfg.VectorCacheSize, cfg.VectorCacheSize, cfg.VectorCacheSize)

	postings, err := invertedfile.Open(postBF, filepath.Join(dir, "lists.postings.dir"))
	if err != nil {
		return nil, fmt.Errorf("index: opening inverted file: %w", err)
	}

	termVoc, err := vocab.Open(filepath.Join(dir, "vocab.term"))
	if err != nil {
		return nil, fmt.Errorf("index: opening term vocabulary: %w", err)
	}
	docVoc, err := vocab.Open(filepath.Join(dir, "vocab.doc"))
	if err != nil {
		return nil, fmt.Errorf("index: opening doc vocabulary: %w", err)
	}

	tree, err := rtree.Open(nodesBF, filepath.Join(dir, "rtree.meta"), cfg.MaxEntries, cfg.MinEntries, vectors)
	if err != nil {
		return nil, fmt.Errorf("index: opening tree: %w", err)
	}

	return &Index{
		cfg:       cfg,
		nodesBF:   nodesBF,
		itemVecBF: itemVecBF,
		nodeVecBF: nodeVecBF,
		postBF:    postBF,
		tree:      tree,
		vectors:   vectors,
		postings:  postings,
		termVoc:   termVoc,
		docVoc:    docVoc,
		Stats:     stats.New(),
		itemCount: docVoc.Len(),
	}, nil
}

// Insert interns key (an external item identifier) and every term in
// terms, stores the item's vector via C5, and inserts its geometry
// into C7 with a nil payload — augmentation happens later, in one pass,
// via BuildAugmentation. §4.8's "after all items are inserted" phrasing
// is why insertion and augmentation are two distinct operations rather
// than incrementally maintained per insert.
func (idx *Index) Insert(ctx context.Context, key string, point [rtree.Dims]float64, terms map[string]float64) (ids.ItemID, error) {
	itemID, isNew := idx.docVoc.Intern(key)
	if isNew {
		idx.itemCount++
	}

	var v vector.Vector
	for term, weight := range terms {
		if weight < 0 {
			return 0, fmt.Errorf("index: term %q has negative weight %f: %w", term, weight, errs.InvalidArgument)
		}
		termID, _ := idx.termVoc.Intern(term)
		v.Terms.Store(ids.TermID(termID), weight)
		idx.termVoc.AddWeight(termID, weight)
	}
	v.ComputeNorm()
	if err := idx.vectors.PutItemVector(ids.ItemID(itemID), v); err != nil {
		return 0, fmt.Errorf("index: storing item %q's vector: %w", key, err)
	}

	if err := idx.tree.Insert(ctx, ids.ItemID(itemID), point, nil); err != nil {
		return 0, fmt.Errorf("index: inserting item %q into tree: %w", key, err)
	}
	return ids.ItemID(itemID), nil
}

// BuildAugmentation runs C8's post-order pass over the current tree.
// Must be called after every pending Insert and before the first
// Query that should see textual pruning/ranking.
func (idx *Index) BuildAugmentation(ctx context.Context) error {
	dlog.Debugf(ctx, "index: building augmentation over %d items", idx.itemCount)
	b := augment.NewBuilder(idx.tree, idx.vectors, idx.postings, idx.termVoc, augment.Config{
		InlineThreshold: idx.cfg.InlineVectorThreshold,
		TotalItems:      idx.itemCount,
	})
	return b.Build(ctx)
}

// QueryRequest is the logical top-k query interface of §6.
type QueryRequest struct {
	Point [rtree.Dims]float64
	Terms map[string]float64
	K     int     // 0 means use the configured default.
	Alpha float64 // negative means use the configured default.
	Budget int    // max frontier pops; 0 means unbounded.
}

// QueryResult is one ranked hit, with the item's external key resolved
// back out of C4's doc vocabulary.
type QueryResult struct {
	Key   string
	Score float64
}

// Query runs a top-k search per §4.9/§6, translating external term
// keys to internal ids via C4 (an unknown term contributes nothing,
// per §7's NotFound-as-zero-contribution rule). Results carry internal
// item ids; Resolve maps one back to its external key.
func (idx *Index) Query(ctx context.Context, req QueryRequest) (topk.Outcome, error) {
	k := req.K
	if k == 0 {
		k = idx.cfg.K
	}
	alpha := req.Alpha
	if alpha < 0 {
		alpha = idx.cfg.Alpha
	}
	if alpha < 0 || alpha > 1 {
		return topk.Outcome{}, fmt.Errorf("index: alpha %f outside [0,1]: %w", alpha, errs.InvalidArgument)
	}
	if k < 1 {
		return topk.Outcome{}, fmt.Errorf("index: k %d must be positive: %w", k, errs.InvalidArgument)
	}

	terms := make(map[ids.TermID]float64, len(req.Terms))
	for term, weight := range req.Terms {
		if id, ok := idx.termVoc.LookupExternal(term); ok {
			terms[ids.TermID(id)] = weight
		}
	}

	engine := topk.NewEngine(idx.tree, idx.vectors, idx.postings, idx.Stats)
	out, err := engine.Search(ctx, topk.Query{Point: req.Point, Terms: terms, Alpha: alpha, K: k}, topk.Budget{Steps: req.Budget})
	if err != nil {
		return topk.Outcome{}, err
	}
	return out, nil
}

// Resolve maps a result's internal item id back to the external key it
// was inserted with.
func (idx *Index) Resolve(item ids.ItemID) (string, bool) {
	return idx.docVoc.Lookup(uint32(item))
}

// Flush writes back every dirty cache and persisted structure without
// closing the handle, per §6's "flush()". Idempotent per §8's
// "Idempotent flush" property: flushing an already-flushed handle
// produces the same on-disk bytes.
func (idx *Index) Flush(ctx context.Context) error {
	if err := idx.tree.Flush(ctx); err != nil {
		return fmt.Errorf("index: flushing tree: %w", err)
	}
	if err := idx.itemVecBF.Flush(ctx); err != nil {
		return fmt.Errorf("index: flushing item vector blocks: %w", err)
	}
	if err := idx.nodeVecBF.Flush(ctx); err != nil {
		return fmt.Errorf("index: flushing node vector blocks: %w", err)
	}
	if err := idx.postBF.Flush(ctx); err != nil {
		return fmt.Errorf("index: flushing posting blocks: %w", err)
	}
	idx.vectors.Flush(ctx)
	if err := idx.termVoc.Flush(); err != nil {
		return fmt.Errorf("index: flushing term vocabulary: %w", err)
	}
	if err := idx.docVoc.Flush(); err != nil {
		return fmt.Errorf("index: flushing doc vocabulary: %w", err)
	}
	return nil
}

// Close flushes and releases every underlying file handle, per §6's
// "close()".
func (idx *Index) Close(ctx context.Context) error {
	if err := idx.Flush(ctx); err != nil {
		return err
	}
	if err := idx.tree.Close(ctx); err != nil {
		return fmt.Errorf("index: closing tree: %w", err)
	}
	// tree.Close already closed idx.nodesBF (the block file it was
	// opened with); only the other three block files are ours to
	// close here.
	if err := idx.itemVecBF.Close(ctx); err != nil {
		return fmt.Errorf("index: closing item vector blocks: %w", err)
	}
	if err := idx.nodeVecBF.Close(ctx); err != nil {
		return fmt.Errorf("index: closing node vector blocks: %w", err)
	}
	if err := idx.postBF.Close(ctx); err != nil {
		return fmt.Errorf("index: closing posting blocks: %w", err)
	}
	if err := idx.termVoc.Close(); err != nil {
		return fmt.Errorf("index: closing term vocabulary: %w", err)
	}
	if err := idx.docVoc.Close(); err != nil {
		return fmt.Errorf("index: closing doc vocabulary: %w", err)
	}
	return nil
}

// WriteStats dumps the current C10 counters to stats.log under dir,
// per §6's optional counters dump.
func (idx *Index) WriteStats(dir string) error {
	return idx.Stats.WriteTo(filepath.Join(dir, "stats.log"))
}
