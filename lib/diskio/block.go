// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dlog"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/lib/containers"
)

// BlockID identifies a fixed-size block within a BlockFile. Ids are
// assigned monotonically starting at 0 and are never reused, even
// after the block's contents are logically freed by a higher layer
// (list store free-slot reuse, see package liststore).
type BlockID uint32

func (a BlockID) Cmp(b BlockID) int { return containers.CmpUint(a, b) }

// BlockFile is paged storage: fixed-size blocks backed by a set of OS
// files of blocksPerFile blocks each, so that a single file never
// grows past a configured size. block_id maps to (file index, offset)
// as file_index = block_id / blocksPerFile, offset = (block_id %
// blocksPerFile) * blockSize.
//
// Grounded on lib/diskio/file_os.go's File[A] abstraction, generalized
// from "one *os.File" to "a growable set of same-shaped files" because
// the original tool only ever opened one pre-existing btrfs device.
type BlockFile struct {
	dir       string
	prefix    string
	blockSize int
	perFile   BlockID

	files      []File[int64]
	totalCount BlockID
}

// OpenBlockFile opens (creating if necessary) the block file rooted at
// dir/prefix.*, with the given block size and blocks-per-backing-file.
// The total-block count is recovered from a sidecar ".meta" file; if
// absent, the store is treated as freshly created.
func OpenBlockFile(ctx context.Context, dir, prefix string, blockSize int, blocksPerFile uint32) (*BlockFile, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("diskio.OpenBlockFile: invalid block size: %d", blockSize)
	}
	bf := &BlockFile{
		dir:       dir,
		prefix:    prefix,
		blockSize: blockSize,
		perFile:   BlockID(blocksPerFile),
	}
	total, err := bf.readMeta()
	if err != nil {
		return nil, err
	}
	bf.totalCount = total
	numFiles := 0
	if total > 0 {
		numFiles = int((total-1)/bf.perFile) + 1
	}
	for i := 0; i < numFiles; i++ {
		f, err := bf.openFile(i)
		if err != nil {
			return nil, fmt.Errorf("diskio.OpenBlockFile: %w", err)
		}
		bf.files = append(bf.files, f)
	}
	dlog.Debugf(ctx, "diskio: opened block file %q (%d blocks across %d files)", prefix, total, len(bf.files))
	return bf, nil
}

func (bf *BlockFile) filePath(index int) string {
	return filepath.Join(bf.dir, fmt.Sprintf("%s.%04d", bf.prefix, index))
}

func (bf *BlockFile) openFile(index int) (File[int64], error) {
	f, err := os.OpenFile(bf.filePath(index), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &OSFile[int64]{File: f}, nil
}

func (bf *BlockFile) metaPath() string {
	return filepath.Join(bf.dir, bf.prefix+".meta")
}

func (bf *BlockFile) readMeta() (BlockID, error) {
	dat, err := os.ReadFile(bf.metaPath())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("diskio.BlockFile: reading meta: %w", err)
	}
	if len(dat) != 4 {
		return 0, fmt.Errorf("diskio.BlockFile: %w: meta file is %d bytes, want 4", errs.Corrupt, len(dat))
	}
	return BlockID(be32(dat)), nil
}

func (bf *BlockFile) writeMeta() error {
	dat := make([]byte, 4)
	putBE32(dat, uint32(bf.totalCount))
	return os.WriteFile(bf.metaPath(), dat, 0o644)
}

func (bf *BlockFile) locate(id BlockID) (fileIndex int, offset int64) {
	return int(id / bf.perFile), int64(id%bf.perFile) * int64(bf.blockSize)
}

// Allocate returns the next unused block id, growing the current
// backing file or opening a new one if it is at capacity.
func (bf *BlockFile) Allocate() (BlockID, error) {
	id := bf.totalCount
	fileIndex, offset := bf.locate(id)
	if fileIndex >= len(bf.files) {
		f, err := bf.openFile(fileIndex)
		if err != nil {
			return 0, fmt.Errorf("diskio.BlockFile.Allocate: %w", err)
		}
		bf.files = append(bf.files, f)
	}
	if _, err := bf.files[fileIndex].WriteAt(make([]byte, bf.blockSize), offset); err != nil {
		return 0, fmt.Errorf("diskio.BlockFile.Allocate(%d): %w: %w", id, errs.IO, err)
	}
	bf.totalCount++
	if err := bf.writeMeta(); err != nil {
		return 0, err
	}
	return id, nil
}

// Read fills buf (which must be exactly BlockSize() bytes) with the
// contents of block id.
func (bf *BlockFile) Read(id BlockID, buf []byte) error {
	if id >= bf.totalCount {
		return fmt.Errorf("diskio.BlockFile.Read(%d): %w", id, errs.NotFound)
	}
	if len(buf) != bf.blockSize {
		return fmt.Errorf("diskio.BlockFile.Read(%d): buffer is %d bytes, want %d", id, len(buf), bf.blockSize)
	}
	fileIndex, offset := bf.locate(id)
	n, err := bf.files[fileIndex].ReadAt(buf, offset)
	if err != nil && n < len(buf) {
		return fmt.Errorf("diskio.BlockFile.Read(%d): %w: %w", id, errs.IO, err)
	}
	return nil
}

// Write overwrites block id with buf (which must be exactly
// BlockSize() bytes).
func (bf *BlockFile) Write(id BlockID, buf []byte) error {
	if id >= bf.totalCount {
		return fmt.Errorf("diskio.BlockFile.Write(%d): %w", id, errs.NotFound)
	}
	if len(buf) != bf.blockSize {
		return fmt.Errorf("diskio.BlockFile.Write(%d): buffer is %d bytes, want %d", id, len(buf), bf.blockSize)
	}
	fileIndex, offset := bf.locate(id)
	if _, err := bf.files[fileIndex].WriteAt(buf, offset); err != nil {
		return fmt.Errorf("diskio.BlockFile.Write(%d): %w: %w", id, errs.IO, err)
	}
	return nil
}

// BlockSize returns the fixed per-block size in bytes.
func (bf *BlockFile) BlockSize() int { return bf.blockSize }

// SizeInBytes returns the total allocated size across all backing
// files.
func (bf *BlockFile) SizeInBytes() int64 {
	return int64(bf.totalCount) * int64(bf.blockSize)
}

// NumBlocks returns the count of allocated blocks.
func (bf *BlockFile) NumBlocks() BlockID { return bf.totalCount }

// Close persists the block count and closes every backing file.
func (bf *BlockFile) Close() error {
	if err := bf.writeMeta(); err != nil {
		return err
	}
	for _, f := range bf.files {
		if err := f.Close(); err != nil {
			return fmt.Errorf("diskio.BlockFile.Close: %w", err)
		}
	}
	return nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
