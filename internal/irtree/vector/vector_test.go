// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package vector_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/ids"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/internal/irtree/vector"
	"github.com/spatialidx/irtree/lib/diskio"
)

func newTestManager(t *testing.T) *vector.Manager {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()

	itemsBF, err := diskio.OpenBlockFile(ctx, dir, "items", 64, 64)
	require.NoError(t, err)
	nodesBF, err := diskio.OpenBlockFile(ctx, dir, "nodes", 64, 64)
	require.NoError(t, err)

	itemStore, err := liststore.Open[vector.TermWeight](diskio.NewBufferedBlockFile(itemsBF, 8), vector.RecordSize, filepath.Join(dir, "items.dir"))
	require.NoError(t, err)
	nodeStore, err := liststore.Open[vector.TermWeight](diskio.NewBufferedBlockFile(nodesBF, 8), vector.RecordSize, filepath.Join(dir, "nodes.dir"))
	require.NoError(t, err)

	return vector.NewManager(itemStore, nodeStore, 4, 4, 4)
}

func buildVector(terms map[ids.TermID]float64) vector.Vector {
	var v vector.Vector
	for t, w := range terms {
		v.Terms.Store(t, w)
	}
	v.ComputeNorm()
	return v
}

func TestPutThenGetItemVector(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.PutItemVector(1, buildVector(map[ids.TermID]float64{10: 1, 20: 2})))

	v := m.GetItemVector(ctx, 1)
	defer m.ReleaseItemVector(1)

	w, ok := v.Terms.Load(10)
	require.True(t, ok)
	require.Equal(t, 1.0, w)
	w, ok = v.Terms.Load(20)
	require.True(t, ok)
	require.Equal(t, 2.0, w)
	require.InDelta(t, 2.2360679, v.Norm, 1e-6)
}

func TestGetMissingItemVectorIsZeroValue(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v := m.GetItemVector(ctx, 42)
	defer m.ReleaseItemVector(42)
	require.Equal(t, 0.0, v.Norm)
}

func TestPutNodeVectorReplacesPriorWrite(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.PutNodeVector(1, buildVector(map[ids.TermID]float64{1: 1})))
	require.NoError(t, m.PutNodeVector(1, buildVector(map[ids.TermID]float64{2: 3})))

	v := m.GetNodeVector(ctx, 1)
	defer m.ReleaseNodeVector(1)

	_, hasOld := v.Terms.Load(1)
	require.False(t, hasOld)
	w, hasNew := v.Terms.Load(2)
	require.True(t, hasNew)
	require.Equal(t, 3.0, w)
}

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	a := buildVector(map[ids.TermID]float64{1: 1, 2: 1})
	require.InDelta(t, 1.0, vector.Cosine(&a, &a), 1e-9)
}

func TestCosineOrthogonalVectorsIsZero(t *testing.T) {
	a := buildVector(map[ids.TermID]float64{1: 1})
	b := buildVector(map[ids.TermID]float64{2: 1})
	require.Equal(t, 0.0, vector.Cosine(&a, &b))
}

func TestCosineCacheRoundTrip(t *testing.T) {
	m := newTestManager(t)
	_, ok := m.CachedCosine(1, 2)
	require.False(t, ok)

	m.StoreCosine(1, 2, 0.75)
	got, ok := m.CachedCosine(1, 2)
	require.True(t, ok)
	require.Equal(t, 0.75, got)

	// Order shouldn't matter for the cache key.
	got2, ok := m.CachedCosine(2, 1)
	require.True(t, ok)
	require.Equal(t, got, got2)
}
