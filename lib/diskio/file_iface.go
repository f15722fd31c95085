// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"io"
)

// File is the minimal random-access file abstraction that BlockFile
// builds on: an addressable byte range with a name, independent of
// whether the address type A is the file's own byte offset or (as
// with BlockFile) something the caller derives from a block id.
type File[A ~int64] interface {
	Name() string
	Size() A
	Close() error
	ReadAt(p []byte, off A) (n int, err error)
	WriteAt(p []byte, off A) (n int, err error)
}

type assertAddr int64

var (
	_ io.WriterAt = File[int64](nil)
	_ io.ReaderAt = File[int64](nil)
)
