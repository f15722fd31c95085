// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package liststore_test

import (
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/liststore"
	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/diskio"
)

type posting struct {
	DocID         binstruct.U32be  `bin:"off=0x0,siz=0x4"`
	Impact        binstruct.U32be  `bin:"off=0x4,siz=0x4"`
	binstruct.End `bin:"off=0x8"`
}

func newTestStore(t *testing.T, blockSize int) *liststore.Store[posting] {
	t.Helper()
	ctx := dlog.NewTestContext(t, false)
	dir := t.TempDir()
	bf, err := diskio.OpenBlockFile(ctx, dir, "lists", blockSize, 64)
	require.NoError(t, err)
	bbf := diskio.NewBufferedBlockFile(bf, 8)
	s, err := liststore.Open[posting](bbf, binstruct.StaticSize(posting{}), filepath.Join(dir, "lists.dir"))
	require.NoError(t, err)
	return s
}

func TestAppendAndIterateSingleBlock(t *testing.T) {
	s := newTestStore(t, 64) // plenty of room for a handful of 8-byte records
	n, err := s.AppendList(1, []posting{{DocID: 10, Impact: 1}, {DocID: 11, Impact: 2}})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	it, err := s.Iterator(1)
	require.NoError(t, err)
	var got []posting
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rec, err := it.Record()
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Equal(t, []posting{{DocID: 10, Impact: 1}, {DocID: 11, Impact: 2}}, got)
}

func TestAppendSpansMultipleBlocks(t *testing.T) {
	// block holds (16-4)/8 = 1 record per block, forcing a chain.
	s := newTestStore(t, 16)
	n, err := s.AppendList(5, []posting{{DocID: 1}, {DocID: 2}, {DocID: 3}})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	it, err := s.Iterator(5)
	require.NoError(t, err)
	var ids []uint32
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rec, err := it.Record()
		require.NoError(t, err)
		ids = append(ids, uint32(rec.DocID))
	}
	require.Equal(t, []uint32{1, 2, 3}, ids)
}

func TestAppendReusesTailFreeSpace(t *testing.T) {
	s := newTestStore(t, 64)
	_, err := s.AppendList(1, []posting{{DocID: 1}})
	require.NoError(t, err)
	before := s.SizeInBytes()

	_, err = s.AppendList(1, []posting{{DocID: 2}})
	require.NoError(t, err)
	after := s.SizeInBytes()

	require.Equal(t, before, after, "appending into the same list's free tail space should not grow block usage")
}

func TestIteratorUnknownKeyIsNotFound(t *testing.T) {
	s := newTestStore(t, 64)
	_, err := s.Iterator(999)
	require.ErrorIs(t, err, errs.NotFound)
}

func TestRemoveThenIteratorIsNotFound(t *testing.T) {
	s := newTestStore(t, 64)
	_, err := s.AppendList(1, []posting{{DocID: 1}})
	require.NoError(t, err)

	require.NoError(t, s.Remove(1))
	_, err = s.Iterator(1)
	require.ErrorIs(t, err, errs.NotFound)
}

func TestRemoveUnknownKeyIsNotFound(t *testing.T) {
	s := newTestStore(t, 64)
	require.ErrorIs(t, s.Remove(42), errs.NotFound)
}

func TestFreedBlocksAreReusedByNextAppend(t *testing.T) {
	s := newTestStore(t, 16) // 1 record/block
	_, err := s.AppendList(1, []posting{{DocID: 1}, {DocID: 2}})
	require.NoError(t, err)
	sizeBefore := s.SizeInBytes()
	require.NoError(t, s.Remove(1))

	_, err = s.AppendList(2, []posting{{DocID: 3}, {DocID: 4}})
	require.NoError(t, err)
	require.Equal(t, sizeBefore, s.SizeInBytes(), "reusing freed blocks should not grow total size")
}
