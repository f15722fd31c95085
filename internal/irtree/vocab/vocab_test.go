// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package vocab_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/vocab"
)

func TestInternIsStableAndDense(t *testing.T) {
	v, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.term"))
	require.NoError(t, err)

	id1, isNew1 := v.Intern("cat")
	require.True(t, isNew1)
	id2, isNew2 := v.Intern("dog")
	require.True(t, isNew2)
	require.NotEqual(t, id1, id2)

	id1Again, isNew1Again := v.Intern("cat")
	require.False(t, isNew1Again)
	require.Equal(t, id1, id1Again)
}

func TestLookupRoundTrip(t *testing.T) {
	v, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.term"))
	require.NoError(t, err)
	id, _ := v.Intern("cat")

	key, ok := v.Lookup(id)
	require.True(t, ok)
	require.Equal(t, "cat", key)

	gotID, ok := v.LookupExternal("cat")
	require.True(t, ok)
	require.Equal(t, id, gotID)

	_, ok = v.Lookup(9999)
	require.False(t, ok)
}

func TestAddWeightAccumulatesStats(t *testing.T) {
	v, err := vocab.Open(filepath.Join(t.TempDir(), "vocab.term"))
	require.NoError(t, err)
	id, _ := v.Intern("cat")

	v.AddWeight(id, 1.5)
	v.AddWeight(id, 2.5)

	st, ok := v.GetStats(id)
	require.True(t, ok)
	require.Equal(t, uint32(2), st.DF)
	require.InDelta(t, 4.0, st.TotalWeight, 1e-9)
}

func TestFlushAndReopenPreservesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.term")
	v, err := vocab.Open(path)
	require.NoError(t, err)

	catID, _ := v.Intern("cat")
	dogID, _ := v.Intern("dog")
	v.AddWeight(catID, 3.25)
	v.AddWeight(dogID, 1.0)
	v.AddWeight(dogID, 1.0)

	require.NoError(t, v.Close())

	v2, err := vocab.Open(path)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Len())

	gotCatID, ok := v2.LookupExternal("cat")
	require.True(t, ok)
	require.Equal(t, catID, gotCatID)

	st, ok := v2.GetStats(dogID)
	require.True(t, ok)
	require.Equal(t, uint32(2), st.DF)
	require.InDelta(t, 2.0, st.TotalWeight, 1e-9)

	// A third key interned after reopening must not collide with
	// ids recovered from the persisted file.
	thirdID, isNew := v2.Intern("bird")
	require.True(t, isNew)
	require.NotEqual(t, catID, thirdID)
	require.NotEqual(t, dogID, thirdID)
}

func TestEmptyKeyIsNotConfusedWithEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.term")
	v, err := vocab.Open(path)
	require.NoError(t, err)

	emptyID, isNew := v.Intern("")
	require.True(t, isNew)
	otherID, _ := v.Intern("x")
	require.NotEqual(t, emptyID, otherID)

	require.NoError(t, v.Close())

	v2, err := vocab.Open(path)
	require.NoError(t, err)
	gotID, ok := v2.LookupExternal("")
	require.True(t, ok)
	require.Equal(t, emptyID, gotID)
	require.Equal(t, 2, v2.Len())
}
