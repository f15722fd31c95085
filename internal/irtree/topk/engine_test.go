// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package topk_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/augment"
	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/invertedfile"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
	"github.com/spatialidx/irtree/internal/irtree/topk"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/internal/irtree/vocab"
	"github.com/spatialidx/irtree/lib/diskio"
)

type fixture struct {
	tree     *rtree.Tree
	vectors  *vector.Manager
	postings *invertedfile.Store
	terms    *vocab.Vocabulary
}

func newFixture(t *testing.T, maxEntries, minEntries int) *fixture {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()

	nodesBF, err := diskio.OpenBlockFile(ctx, dir, "nodes", rtree.NodeHeaderSize, 64)
	require.NoError(t, err)
	nodesBBF := diskio.NewBufferedBlockFile(nodesBF, 16)

	itemVecBF, err := diskio.OpenBlockFile(ctx, dir, "itemvec", 64, 64)
	require.NoError(t, err)
	nodeVecBF, err := diskio.OpenBlockFile(ctx, dir, "nodevec", 64, 64)
	require.NoError(t, err)
	itemStore, err := liststore.Open[vector.TermWeight](diskio.NewBufferedBlockFile(itemVecBF, 8), vector.RecordSize, filepath.Join(dir, "itemvec.dir"))
	require.NoError(t, err)
	nodeStore, err := liststore.Open[vector.TermWeight](diskio.NewBufferedBlockFile(nodeVecBF, 8), vector.RecordSize, filepath.Join(dir, "nodevec.dir"))
	require.NoError(t, err)
	vectors := vector.NewManager(itemStore, nodeStore, 8, 8, 4)

	postingsBF, err := diskio.OpenBlockFile(ctx, dir, "postings", 64, 64)
	require.NoError(t, err)
	postings, err := invertedfile.Open(diskio.NewBufferedBlockFile(postingsBF, 8), filepath.Join(dir, "postings.dir"))
	require.NoError(t, err)

	terms, err := vocab.Open(filepath.Join(dir, "vocab.terms"))
	require.NoError(t, err)

	tr, err := rtree.Open(nodesBBF, filepath.Join(dir, "rtree.meta"), maxEntries, minEntries, vectors)
	require.NoError(t, err)

	return &fixture{tree: tr, vectors: vectors, postings: postings, terms: terms}
}

func (f *fixture) putItem(t *testing.T, id ids.ItemID, point [2]float64, terms map[ids.TermID]float64) {
	t.Helper()
	var v vector.Vector
	for term, w := range terms {
		v.Terms.Store(term, w)
		f.terms.Intern(termKey(term))
		f.terms.AddWeight(uint32(term), w)
	}
	v.ComputeNorm()
	require.NoError(t, f.vectors.PutItemVector(id, v))
	require.NoError(t, f.tree.Insert(context.Background(), id, point, nil))
}

func termKey(t ids.TermID) string {
	return string(rune('a' + int(t)))
}

func (f *fixture) build(t *testing.T, totalItems int) {
	t.Helper()
	b := augment.NewBuilder(f.tree, f.vectors, f.postings, f.terms, augment.Config{InlineThreshold: 4, TotalItems: totalItems})
	require.NoError(t, b.Build(context.Background()))
}

func TestSearchReturnsNearestByPureSpatialQuery(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.putItem(t, 1, [2]float64{0, 0}, map[ids.TermID]float64{10: 1})
	f.putItem(t, 2, [2]float64{5, 5}, map[ids.TermID]float64{10: 1})
	f.putItem(t, 3, [2]float64{100, 100}, map[ids.TermID]float64{10: 1})
	f.build(t, 3)

	e := topk.NewEngine(f.tree, f.vectors, f.postings, nil)
	out, err := e.Search(context.Background(), topk.Query{
		Point: [2]float64{0, 0},
		Terms: map[ids.TermID]float64{10: 1},
		Alpha: 1.0,
		K:     2,
	}, topk.Budget{})
	require.NoError(t, err)
	require.False(t, out.Partial)
	require.Len(t, out.Results, 2)
	require.Equal(t, ids.ItemID(1), out.Results[0].Item)
	require.Equal(t, ids.ItemID(2), out.Results[1].Item)
}

func TestSearchRanksByTextRelevanceWhenColocated(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.putItem(t, 1, [2]float64{0, 0}, map[ids.TermID]float64{10: 1.0})
	f.putItem(t, 2, [2]float64{0, 0}, map[ids.TermID]float64{10: 0.1, 20: 5})
	f.build(t, 2)

	e := topk.NewEngine(f.tree, f.vectors, f.postings, nil)
	out, err := e.Search(context.Background(), topk.Query{
		Point: [2]float64{0, 0},
		Terms: map[ids.TermID]float64{10: 1},
		Alpha: 0,
		K:     2,
	}, topk.Budget{})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	require.Equal(t, ids.ItemID(1), out.Results[0].Item, "item 1's vector is colinear with the query, item 2's is mostly orthogonal")
}

func TestSearchOnEmptyTreeReturnsNoResults(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.build(t, 0)

	e := topk.NewEngine(f.tree, f.vectors, f.postings, nil)
	out, err := e.Search(context.Background(), topk.Query{
		Point: [2]float64{0, 0},
		Terms: map[ids.TermID]float64{10: 1},
		Alpha: 0.5,
		K:     5,
	}, topk.Budget{})
	require.NoError(t, err)
	require.Empty(t, out.Results)
	require.False(t, out.Partial)
}

func TestSearchWithOneStepBudgetReturnsPartial(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.putItem(t, 1, [2]float64{0, 0}, map[ids.TermID]float64{10: 1})
	f.putItem(t, 2, [2]float64{1, 1}, map[ids.TermID]float64{10: 1})
	f.build(t, 2)

	e := topk.NewEngine(f.tree, f.vectors, f.postings, nil)
	out, err := e.Search(context.Background(), topk.Query{
		Point: [2]float64{0, 0},
		Terms: map[ids.TermID]float64{10: 1},
		Alpha: 1.0,
		K:     2,
	}, topk.Budget{Steps: 1})
	require.NoError(t, err)
	require.True(t, out.Partial)
	require.LessOrEqual(t, len(out.Results), 1)
}

func TestSearchRespectsK(t *testing.T) {
	f := newFixture(t, 4, 1)
	for i := uint32(1); i <= 5; i++ {
		f.putItem(t, ids.ItemID(i), [2]float64{float64(i), 0}, map[ids.TermID]float64{10: 1})
	}
	f.build(t, 5)

	e := topk.NewEngine(f.tree, f.vectors, f.postings, nil)
	out, err := e.Search(context.Background(), topk.Query{
		Point: [2]float64{0, 0},
		Terms: map[ids.TermID]float64{10: 1},
		Alpha: 1.0,
		K:     3,
	}, topk.Budget{})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	require.Equal(t, []ids.ItemID{1, 2, 3}, []ids.ItemID{out.Results[0].Item, out.Results[1].Item, out.Results[2].Item})
}
