// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/diskio"
)

type refTestRecord struct {
	A             binstruct.U32be `bin:"off=0x0,siz=0x4"`
	B             binstruct.U32be `bin:"off=0x4,siz=0x4"`
	binstruct.End `bin:"off=0x8"`
}

func TestRefWriteThenRead(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	bf, err := diskio.OpenBlockFile(ctx, t.TempDir(), "test", 8, 4)
	require.NoError(t, err)
	id, err := bf.Allocate()
	require.NoError(t, err)

	w := &diskio.Ref[int64, refTestRecord]{
		File: blockAsFile{bf: bf, id: id},
		Addr: 0,
		Data: refTestRecord{A: 1, B: 2},
	}
	require.NoError(t, w.Write())

	r := &diskio.Ref[int64, refTestRecord]{
		File: blockAsFile{bf: bf, id: id},
		Addr: 0,
	}
	require.NoError(t, r.Read())
	require.Equal(t, refTestRecord{A: 1, B: 2}, r.Data)
}

// blockAsFile adapts a single block of a diskio.BlockFile to
// diskio.File[int64], so Ref can be exercised without a standalone
// in-memory File stub.
type blockAsFile struct {
	bf *diskio.BlockFile
	id diskio.BlockID
}

func (f blockAsFile) Name() string { return "block" }
func (f blockAsFile) Size() int64  { return int64(f.bf.BlockSize()) }
func (f blockAsFile) Close() error { return nil }

func (f blockAsFile) ReadAt(p []byte, off int64) (int, error) {
	buf := make([]byte, f.bf.BlockSize())
	if err := f.bf.Read(f.id, buf); err != nil {
		return 0, err
	}
	n := copy(p, buf[off:])
	return n, nil
}

func (f blockAsFile) WriteAt(p []byte, off int64) (int, error) {
	buf := make([]byte, f.bf.BlockSize())
	if err := f.bf.Read(f.id, buf); err != nil {
		return 0, err
	}
	copy(buf[off:], p)
	if err := f.bf.Write(f.id, buf); err != nil {
		return 0, err
	}
	return len(p), nil
}
