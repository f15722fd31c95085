// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package topk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
	"github.com/spatialidx/irtree/internal/irtree/topk"
)

func leafIDs(t *testing.T, tr *rtree.Tree) []uint32 {
	t.Helper()
	var out []uint32
	var walk func(id uint32) error
	walk = func(id uint32) error {
		n, err := tr.ReadNode(id)
		if err != nil {
			return err
		}
		if n.IsLeaf {
			out = append(out, n.ID)
			return nil
		}
		for _, e := range n.Entries {
			if err := walk(e.Target); err != nil {
				return err
			}
		}
		return nil
	}
	require.NoError(t, walk(tr.RootID()))
	return out
}

func TestLatticeRanksItemsByTextualImpact(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.putItem(t, 1, [2]float64{0, 0}, map[ids.TermID]float64{10: 1.0})
	f.putItem(t, 2, [2]float64{1, 1}, map[ids.TermID]float64{10: 3.0})
	f.putItem(t, 3, [2]float64{2, 2}, map[ids.TermID]float64{10: 2.0})
	// A 4th item without term 10 keeps df(10)=3 < TotalItems=4, so
	// idf(10) = log(4/3) is nonzero and impact ranking still tracks
	// the raw weight ranking above (impact = weight * idf, same idf
	// for every item carrying this term).
	f.putItem(t, 4, [2]float64{3, 3}, map[ids.TermID]float64{20: 1.0})
	f.build(t, 4)

	leaves := leafIDs(t, f.tree)
	lat, err := topk.NewLattice(f.postings, leaves, []ids.TermID{10}, 2)
	require.NoError(t, err)

	got := lat.Run()
	require.Len(t, got, 2)
	require.Equal(t, ids.ItemID(2), got[0].Item, "highest impact for term 10")
	require.Equal(t, ids.ItemID(3), got[1].Item)
}

func TestLatticeWithNoMatchingPostingsReturnsNothing(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.putItem(t, 1, [2]float64{0, 0}, map[ids.TermID]float64{10: 1.0})
	f.build(t, 1)

	leaves := leafIDs(t, f.tree)
	lat, err := topk.NewLattice(f.postings, leaves, []ids.TermID{99}, 2)
	require.NoError(t, err)

	got := lat.Run()
	require.Empty(t, got)
}

func TestLatticeOnEmptyTreeReturnsNothing(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.build(t, 0)

	leaves := leafIDs(t, f.tree)
	lat, err := topk.NewLattice(f.postings, leaves, []ids.TermID{10}, 2)
	require.NoError(t, err)

	require.Empty(t, lat.Run())
}
