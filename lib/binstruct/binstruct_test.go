// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialidx/irtree/lib/binstruct"
)

type header struct {
	Magic   binstruct.U32be `bin:"off=0x0,siz=0x4"`
	Version binstruct.U16be `bin:"off=0x4,siz=0x2"`
	Count   binstruct.U16be `bin:"off=0x6,siz=0x2"`
	binstruct.End `bin:"off=0x8"`
}

func TestStaticSize(t *testing.T) {
	require.Equal(t, 8, binstruct.StaticSize(header{}))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := header{Magic: 0xCAFEBABE, Version: 1, Count: 42}

	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 8)

	var out header
	n, err := binstruct.Unmarshal(dat, &out)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, in, out)
}

func TestUnmarshalShortBufferIsError(t *testing.T) {
	var out header
	_, err := binstruct.Unmarshal([]byte{1, 2, 3}, &out)
	require.Error(t, err)
}

func TestMarshalArrayOfInts(t *testing.T) {
	in := [4]binstruct.U32le{1, 2, 3, 4}
	dat, err := binstruct.Marshal(in)
	require.NoError(t, err)
	require.Len(t, dat, 16)

	var out [4]binstruct.U32le
	n, err := binstruct.Unmarshal(dat, &out)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, in, out)
}

func TestBadStructTagOffsetPanics(t *testing.T) {
	type badHeader struct {
		A binstruct.U32be `bin:"off=0x0,siz=0x4"`
		B binstruct.U32be `bin:"off=0x8,siz=0x4"` // gap at 0x4, wrong
		binstruct.End `bin:"off=0xc"`
	}
	require.Panics(t, func() {
		binstruct.StaticSize(badHeader{})
	})
}
