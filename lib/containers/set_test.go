// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetInsertDeleteHas(t *testing.T) {
	s := NewSet(1, 2, 3)
	require.True(t, s.Has(2))
	s.Delete(2)
	require.False(t, s.Has(2))
	s.Insert(4)
	require.True(t, s.Has(4))
}

func TestSetIntersection(t *testing.T) {
	a := NewSet(1, 2, 3, 4)
	b := NewSet(3, 4, 5)
	got := a.Intersection(b)
	require.Equal(t, NewSet(3, 4), got)
}

func TestSetHasAny(t *testing.T) {
	a := NewSet(1, 2)
	b := NewSet(2, 3)
	c := NewSet(9)
	require.True(t, a.HasAny(b))
	require.False(t, a.HasAny(c))
}

func TestSetDeleteFrom(t *testing.T) {
	a := NewSet(1, 2, 3)
	a.DeleteFrom(NewSet(2, 3))
	require.Equal(t, NewSet(1), a)
}
