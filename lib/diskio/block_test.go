// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"bytes"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/lib/diskio"
)

func TestBlockFileAllocateReadWrite(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()

	bf, err := diskio.OpenBlockFile(ctx, dir, "test", 16, 4)
	require.NoError(t, err)

	id, err := bf.Allocate()
	require.NoError(t, err)
	require.Equal(t, diskio.BlockID(0), id)

	buf := bytes.Repeat([]byte{0xAB}, 16)
	require.NoError(t, bf.Write(id, buf))

	got := make([]byte, 16)
	require.NoError(t, bf.Read(id, got))
	require.Equal(t, buf, got)

	require.NoError(t, bf.Close())
}

func TestBlockFileReadUnallocatedIsNotFound(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	bf, err := diskio.OpenBlockFile(ctx, dir, "test", 16, 4)
	require.NoError(t, err)

	buf := make([]byte, 16)
	err = bf.Read(0, buf)
	require.ErrorIs(t, err, errs.NotFound)
}

func TestBlockFileRolloverAcrossFiles(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	bf, err := diskio.OpenBlockFile(ctx, dir, "test", 8, 2) // 2 blocks per file

	require.NoError(t, err)

	ids := make([]diskio.BlockID, 5)
	for i := range ids {
		id, err := bf.Allocate()
		require.NoError(t, err)
		ids[i] = id
		buf := bytes.Repeat([]byte{byte(i)}, 8)
		require.NoError(t, bf.Write(id, buf))
	}

	for i, id := range ids {
		got := make([]byte, 8)
		require.NoError(t, bf.Read(id, got))
		require.Equal(t, bytes.Repeat([]byte{byte(i)}, 8), got)
	}
	require.NoError(t, bf.Close())
}

func TestBlockFilePersistsBlockCountAcrossReopen(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()

	bf, err := diskio.OpenBlockFile(ctx, dir, "test", 8, 4)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := bf.Allocate()
		require.NoError(t, err)
	}
	require.NoError(t, bf.Close())

	bf2, err := diskio.OpenBlockFile(ctx, dir, "test", 8, 4)
	require.NoError(t, err)
	require.Equal(t, diskio.BlockID(3), bf2.NumBlocks())
}
