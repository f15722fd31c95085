// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ids_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/ids"
)

func TestCmpOrdering(t *testing.T) {
	require.Negative(t, ids.ItemID(1).Cmp(2))
	require.Zero(t, ids.ItemID(2).Cmp(2))
	require.Positive(t, ids.ItemID(3).Cmp(2))

	require.Negative(t, ids.NodeID(1).Cmp(2))
	require.Negative(t, ids.TermID(1).Cmp(2))
	require.Negative(t, ids.BlockID(1).Cmp(2))
}

func TestNilSentinels(t *testing.T) {
	require.Equal(t, ids.ItemID(0), ids.NilItemID)
	require.Equal(t, ids.NodeID(0), ids.NilNodeID)
	require.Equal(t, ids.BlockID(0), ids.NilBlockID)
}
