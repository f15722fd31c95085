// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/lib/diskio"
)

func openTestBlockFile(t *testing.T, blockSize int, blocksPerFile uint32) *diskio.BlockFile {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	bf, err := diskio.OpenBlockFile(ctx, t.TempDir(), "test", blockSize, blocksPerFile)
	require.NoError(t, err)
	return bf
}

func TestBufferedBlockFileReadThrough(t *testing.T) {
	inner := openTestBlockFile(t, 8, 16)
	id, err := inner.Allocate()
	require.NoError(t, err)
	require.NoError(t, inner.Write(id, bytes.Repeat([]byte{0x7}, 8)))

	bbf := diskio.NewBufferedBlockFile(inner, 4)
	got := make([]byte, 8)
	require.NoError(t, bbf.Read(id, got))
	require.Equal(t, bytes.Repeat([]byte{0x7}, 8), got)
	require.Equal(t, 0, bbf.CacheHits())

	require.NoError(t, bbf.Read(id, got))
	require.Equal(t, 1, bbf.CacheHits())
}

func TestBufferedBlockFileWriteBackOnEviction(t *testing.T) {
	inner := openTestBlockFile(t, 8, 16)
	ids := make([]diskio.BlockID, 3)
	for i := range ids {
		id, err := inner.Allocate()
		require.NoError(t, err)
		ids[i] = id
	}

	bbf := diskio.NewBufferedBlockFile(inner, 2) // capacity smaller than ids

	for i, id := range ids {
		require.NoError(t, bbf.Write(id, bytes.Repeat([]byte{byte(i + 1)}, 8)))
	}

	// The first write should have been evicted and pushed to inner
	// without an explicit Flush.
	got := make([]byte, 8)
	require.NoError(t, inner.Read(ids[0], got))
	require.Equal(t, bytes.Repeat([]byte{0x01}, 8), got)
}

func TestBufferedBlockFileFlushWritesDirtyEntries(t *testing.T) {
	inner := openTestBlockFile(t, 8, 16)
	id, err := inner.Allocate()
	require.NoError(t, err)

	bbf := diskio.NewBufferedBlockFile(inner, 4)
	require.NoError(t, bbf.Write(id, bytes.Repeat([]byte{0x9}, 8)))

	// Before Flush, the underlying file hasn't been touched yet.
	before := make([]byte, 8)
	require.NoError(t, inner.Read(id, before))
	require.NotEqual(t, bytes.Repeat([]byte{0x9}, 8), before)

	require.NoError(t, bbf.Flush(context.Background()))

	after := make([]byte, 8)
	require.NoError(t, inner.Read(id, after))
	require.Equal(t, bytes.Repeat([]byte{0x9}, 8), after)
}

func TestBufferedBlockFileCloseFlushes(t *testing.T) {
	inner := openTestBlockFile(t, 8, 16)
	id, err := inner.Allocate()
	require.NoError(t, err)

	bbf := diskio.NewBufferedBlockFile(inner, 4)
	require.NoError(t, bbf.Write(id, bytes.Repeat([]byte{0x3}, 8)))
	require.NoError(t, bbf.Close(context.Background()))
}
