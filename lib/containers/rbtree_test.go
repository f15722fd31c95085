// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/constraints"
)

func (t *RBTree[K, V]) asciiArt() string {
	var out strings.Builder
	t.root.asciiArt(&out, "", "", "")
	return out.String()
}

func (node *RBNode[V]) String() string {
	switch {
	case node == nil:
		return "nil"
	case node.Color == Red:
		return fmt.Sprintf("R(%v)", node.Value)
	default:
		return fmt.Sprintf("B(%v)", node.Value)
	}
}

func (node *RBNode[V]) asciiArt(w io.Writer, u, m, l string) {
	if node == nil {
		fmt.Fprintf(w, "%snil\n", m)
		return
	}
	node.Right.asciiArt(w, u+"     ", u+"  ,--", u+"  |  ")
	fmt.Fprintf(w, "%s%v\n", m, node)
	node.Left.asciiArt(w, l+"  |  ", l+"  `--", l+"     ")
}

func checkRBTree[K constraints.Ordered, V any](t *testing.T, expected Set[K], tree *RBTree[NativeOrdered[K], V]) {
	t.Helper()

	require.Equal(t, Black, tree.root.getColor())

	require.NoError(t, tree.Walk(func(node *RBNode[V]) error {
		if node.getColor() == Red {
			require.Equal(t, Black, node.Left.getColor())
			require.Equal(t, Black, node.Right.getColor())
		}
		return nil
	}))

	var walkCnt func(node *RBNode[V], cnt int, leafFn func(int))
	walkCnt = func(node *RBNode[V], cnt int, leafFn func(int)) {
		if node.getColor() == Black {
			cnt++
		}
		if node == nil {
			leafFn(cnt)
			return
		}
		walkCnt(node.Left, cnt, leafFn)
		walkCnt(node.Right, cnt, leafFn)
	}
	require.NoError(t, tree.Walk(func(node *RBNode[V]) error {
		var cnts []int
		walkCnt(node, 0, func(cnt int) {
			cnts = append(cnts, cnt)
		})
		for i := range cnts {
			require.Equalf(t, cnts[0], cnts[i], "node %v: uneven black-height", node.Value)
		}
		return nil
	}))

	expectedOrder := make([]K, 0, len(expected))
	for k := range expected {
		expectedOrder = append(expectedOrder, k)
		node := tree.Lookup(NativeOrdered[K]{Val: k})
		require.NotNil(t, node)
		require.Equal(t, k, tree.KeyFn(node.Value).Val)
	}
	sort.Slice(expectedOrder, func(i, j int) bool { return expectedOrder[i] < expectedOrder[j] })

	var actOrder []K
	require.NoError(t, tree.Walk(func(node *RBNode[V]) error {
		actOrder = append(actOrder, tree.KeyFn(node.Value).Val)
		return nil
	}))
	require.Equal(t, expectedOrder, actOrder)
}

func newNativeTree[T constraints.Ordered]() *RBTree[NativeOrdered[T], T] {
	return &RBTree[NativeOrdered[T], T]{
		KeyFn: func(x T) NativeOrdered[T] { return NativeOrdered[T]{Val: x} },
	}
}

func TestRBTreeInsertDelete(t *testing.T) {
	tree := newNativeTree[uint8]()
	set := make(Set[uint8])
	checkRBTree(t, set, tree)

	for _, val := range []uint8{8, 4, 12, 2, 6, 10, 14, 1} {
		tree.Insert(val)
		set.Insert(val)
		checkRBTree(t, set, tree)
	}
	require.Equal(t, len(set), tree.Len())

	for _, val := range []uint8{4, 8, 1} {
		tree.Delete(NativeOrdered[uint8]{Val: val})
		set.Delete(val)
		checkRBTree(t, set, tree)
		require.Nil(t, tree.Lookup(NativeOrdered[uint8]{Val: val}))
	}
	require.Equal(t, len(set), tree.Len())
}

func FuzzRBTree(f *testing.F) {
	const Ins = uint8(0b0100_0000)
	const Del = uint8(0)

	f.Add([]uint8{})
	f.Add([]uint8{Ins | 5, Del | 5})
	f.Add([]uint8{Ins | 5, Del | 6})
	f.Add([]uint8{Del | 6})
	f.Add([]uint8{
		Ins | 1, Ins | 2, Ins | 5, Ins | 7,
		Ins | 8, Ins | 11, Ins | 14, Ins | 15,
		Ins | 4,
	})

	f.Fuzz(func(t *testing.T, dat []uint8) {
		tree := newNativeTree[uint8]()
		set := make(Set[uint8])
		checkRBTree(t, set, tree)
		t.Logf("\n%s\n", tree.asciiArt())
		for _, b := range dat {
			ins := (b & 0b0100_0000) != 0
			val := b & 0b0011_1111
			if ins {
				tree.Insert(val)
				set.Insert(val)
				require.NotNil(t, tree.Lookup(NativeOrdered[uint8]{Val: val}))
			} else {
				tree.Delete(NativeOrdered[uint8]{Val: val})
				set.Delete(val)
				require.Nil(t, tree.Lookup(NativeOrdered[uint8]{Val: val}))
			}
			checkRBTree(t, set, tree)
		}
	})
}
