// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package index_test

import (
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/index"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
)

func testConfig() index.Config {
	cfg := index.DefaultConfig()
	cfg.BlocksPerFile = 64
	cfg.BufferedBlocks = 16
	cfg.VectorCacheSize = 16
	cfg.MaxEntries = 4
	cfg.MinEntries = 1
	return cfg
}

func openIndex(t *testing.T, cfg index.Config) *index.Index {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	idx, err := index.Open(ctx, t.TempDir(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close(ctx) })
	return idx
}

func TestQueryOnEmptyIndexReturnsNoResults(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{Point: [rtree.Dims]float64{0, 0}, Terms: map[string]float64{"fish": 1}, K: 5})
	require.NoError(t, err)
	require.Empty(t, out.Results)
	require.False(t, out.Partial)
}

func TestRoundTripSingleItemRanksFirstWithFullScore(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "cafe-1", [rtree.Dims]float64{1, 1}, map[string]float64{"coffee": 2, "wifi": 1})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{
		Point: [rtree.Dims]float64{1, 1},
		Terms: map[string]float64{"coffee": 2, "wifi": 1},
		K:     1,
		Alpha: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	key, ok := idx.Resolve(out.Results[0].Item)
	require.True(t, ok)
	require.Equal(t, "cafe-1", key)
	require.InDelta(t, 1.0, out.Results[0].Score, 1e-9, "colocated item with an identical term vector scores a perfect match")
}

func TestPureSpatialQueryRanksByDistance(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	corners := []struct {
		key   string
		point [rtree.Dims]float64
	}{
		{"near", [rtree.Dims]float64{1, 0}},
		{"far", [rtree.Dims]float64{10, 0}},
		{"farthest", [rtree.Dims]float64{100, 0}},
	}
	for _, c := range corners {
		_, err := idx.Insert(ctx, c.key, c.point, nil)
		require.NoError(t, err)
	}
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{Point: [rtree.Dims]float64{0, 0}, K: 3, Alpha: 1.0})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	key0, _ := idx.Resolve(out.Results[0].Item)
	key1, _ := idx.Resolve(out.Results[1].Item)
	key2, _ := idx.Resolve(out.Results[2].Item)
	require.Equal(t, []string{"near", "far", "farthest"}, []string{key0, key1, key2})
}

func TestPureTextQueryRanksByRelevanceWhenColocated(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "strong", [rtree.Dims]float64{0, 0}, map[string]float64{"tea": 5})
	require.NoError(t, err)
	_, err = idx.Insert(ctx, "weak", [rtree.Dims]float64{0, 0}, map[string]float64{"tea": 0.1, "soda": 5})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{Point: [rtree.Dims]float64{0, 0}, Terms: map[string]float64{"tea": 1}, K: 2, Alpha: 0})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	key0, _ := idx.Resolve(out.Results[0].Item)
	require.Equal(t, "strong", key0)
}

func TestSplitForcingInsertsStillAnswerQueriesCorrectly(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	for i := 0; i < 9; i++ {
		_, err := idx.Insert(ctx, itemKey(i), [rtree.Dims]float64{float64(i), 0}, map[string]float64{"k": 1})
		require.NoError(t, err)
	}
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{Point: [rtree.Dims]float64{0, 0}, Terms: map[string]float64{"k": 1}, K: 3, Alpha: 1.0})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	key0, _ := idx.Resolve(out.Results[0].Item)
	key1, _ := idx.Resolve(out.Results[1].Item)
	key2, _ := idx.Resolve(out.Results[2].Item)
	require.Equal(t, []string{itemKey(0), itemKey(1), itemKey(2)}, []string{key0, key1, key2})
}

func itemKey(i int) string {
	return string(rune('a' + i))
}

func TestQueryWithOneStepBudgetOnNonEmptyIndexReturnsPartial(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "a", [rtree.Dims]float64{0, 0}, map[string]float64{"k": 1})
	require.NoError(t, err)
	_, err = idx.Insert(ctx, "b", [rtree.Dims]float64{1, 1}, map[string]float64{"k": 1})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{
		Point:  [rtree.Dims]float64{0, 0},
		Terms:  map[string]float64{"k": 1},
		K:      2,
		Alpha:  1.0,
		Budget: 1,
	})
	require.NoError(t, err)
	require.True(t, out.Partial)
}

func TestUnknownQueryTermContributesNothing(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "a", [rtree.Dims]float64{0, 0}, map[string]float64{"k": 1})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))

	out, err := idx.Query(ctx, index.QueryRequest{
		Point: [rtree.Dims]float64{0, 0},
		Terms: map[string]float64{"never-inserted": 1},
		K:     1,
		Alpha: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
}

func TestQueryRejectsOutOfRangeAlphaAndK(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Query(ctx, index.QueryRequest{Alpha: 2, K: 1})
	require.ErrorIs(t, err, errs.InvalidArgument)

	_, err = idx.Query(ctx, index.QueryRequest{Alpha: 0.5, K: -1})
	require.ErrorIs(t, err, errs.InvalidArgument)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	cfg := testConfig()
	cfg.Alpha = 5
	_, err := index.Open(ctx, t.TempDir(), cfg)
	require.ErrorIs(t, err, errs.InvalidArgument)
}

func TestFlushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "a", [rtree.Dims]float64{0, 0}, map[string]float64{"k": 1})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))

	require.NoError(t, idx.Flush(ctx))
	require.NoError(t, idx.Flush(ctx))
}

func TestReopenAfterCloseSeesPersistedItems(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	cfg := testConfig()

	idx, err := index.Open(ctx, dir, cfg)
	require.NoError(t, err)
	_, err = idx.Insert(ctx, "durable", [rtree.Dims]float64{2, 2}, map[string]float64{"k": 1})
	require.NoError(t, err)
	require.NoError(t, idx.BuildAugmentation(ctx))
	require.NoError(t, idx.Close(ctx))

	idx2, err := index.Open(ctx, dir, cfg)
	require.NoError(t, err)
	defer func() { _ = idx2.Close(ctx) }()

	out, err := idx2.Query(ctx, index.QueryRequest{Point: [rtree.Dims]float64{2, 2}, Terms: map[string]float64{"k": 1}, K: 1, Alpha: 1})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	key, ok := idx2.Resolve(out.Results[0].Item)
	require.True(t, ok)
	require.Equal(t, "durable", key)
}

func TestInsertRejectsNegativeWeight(t *testing.T) {
	ctx := context.Background()
	idx := openIndex(t, testConfig())

	_, err := idx.Insert(ctx, "bad", [rtree.Dims]float64{0, 0}, map[string]float64{"k": -1})
	require.ErrorIs(t, err, errs.InvalidArgument)
}
