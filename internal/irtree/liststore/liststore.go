// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package liststore implements C3, the variable-length list store:
// append-and-read lists of fixed-size records, keyed by a dense
// integer, laid out across C2 (package diskio's BufferedBlockFile)
// blocks. Grounded on lib/diskio/file_os.go's "one struct per on-disk
// record, read/written via binstruct" idiom, generalized from a single
// fixed btrfs structure to a generic, per-store record type.
package liststore

import (
	"fmt"
	"os"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/lib/binstruct"
	"github.com/spatialidx/irtree/lib/diskio"
)

// trailer is the 4-byte per-block footer spec.md §4.3 describes as
// "(used_records, next_block_id)". Next is int16 so -1 terminates a
// chain; the next block's id is stored in these 16 bits and read back
// as unsigned, so only blocks with ids up to 65534 can be linked, a
// scale limit inherited directly from the spec's 4-byte trailer
// budget rather than one this package introduces on its own.
type trailer struct {
	Used          binstruct.U16be `bin:"off=0x0,siz=0x2"`
	Next          binstruct.I16be `bin:"off=0x2,siz=0x2"`
	binstruct.End `bin:"off=0x4"`
}

var trailerSize = binstruct.StaticSize(trailer{})

// dirEntry is one persisted (key -> head/tail block) mapping, written
// with the same binstruct struct-tag marshaling C1's sidecar uses
// conceptually, generalized to a proper record instead of one raw
// uint32.
type dirEntry struct {
	Key           binstruct.U32be `bin:"off=0x0,siz=0x4"`
	Head          binstruct.U32be `bin:"off=0x4,siz=0x4"`
	Tail          binstruct.U32be `bin:"off=0x8,siz=0x4"`
	Blocks        binstruct.U32be `bin:"off=0xc,siz=0x4"`
	binstruct.End `bin:"off=0x10"`
}

var dirEntrySize = binstruct.StaticSize(dirEntry{})

type listMeta struct {
	head   diskio.BlockID
	tail   diskio.BlockID
	blocks int
}

// Store is a C3 list store of fixed-size records of type T, keyed by a
// plain uint32 (callers pass ids.TermID/ids.ItemID/ids.NodeID cast to
// uint32 as convenient). T must be binstruct-marshalable with a static
// size equal to recordSize.
type Store[T any] struct {
	blocks       *diskio.BufferedBlockFile
	recordSize   int
	recsPerBlock int
	dirPath      string

	dir      map[uint32]listMeta
	freeList []diskio.BlockID
}

// Open loads (or initializes) a list store over blocks, persisting its
// directory (key -> head/tail block, plus the free-block list) at
// dirPath. Callers supply the record type explicitly, e.g.
// liststore.Open[vector.TermWeight](blocks, recordSize, path).
func Open[T any](blocks *diskio.BufferedBlockFile, recordSize int, dirPath string) (*Store[T], error) {
	recsPerBlock := (blocks.BlockSize() - trailerSize) / recordSize
	if recsPerBlock <= 0 {
		return nil, fmt.Errorf("liststore.Open: record size %d does not fit in block size %d", recordSize, blocks.BlockSize())
	}
	s := &Store[T]{
		blocks:       blocks,
		recordSize:   recordSize,
		recsPerBlock: recsPerBlock,
		dirPath:      dirPath,
		dir:          make(map[uint32]listMeta),
	}
	if err := s.loadDirectory(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) loadDirectory() error {
	dat, err := os.ReadFile(s.dirPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("liststore: reading directory: %w", err)
	}
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(dat) {
			return 0, fmt.Errorf("liststore: %w: directory truncated", errs.Corrupt)
		}
		v := uint32(dat[off])<<24 | uint32(dat[off+1])<<16 | uint32(dat[off+2])<<8 | uint32(dat[off+3])
		off += 4
		return v, nil
	}
	count, err := readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if off+dirEntrySize > len(dat) {
			return fmt.Errorf("liststore: %w: directory truncated", errs.Corrupt)
		}
		var e dirEntry
		n, err := binstruct.Unmarshal(dat[off:off+dirEntrySize], &e)
		if err != nil {
			return fmt.Errorf("liststore: decoding directory entry: %w", err)
		}
		off += n
		s.dir[uint32(e.Key)] = listMeta{head: diskio.BlockID(e.Head), tail: diskio.BlockID(e.Tail), blocks: int(e.Blocks)}
	}
	freeCount, err := readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < freeCount; i++ {
		v, err := readU32()
		if err != nil {
			return err
		}
		s.freeList = append(s.freeList, diskio.BlockID(v))
	}
	return nil
}

func (s *Store[T]) saveDirectory() error {
	buf := make([]byte, 0, 4+len(s.dir)*dirEntrySize+4+len(s.freeList)*4)
	appendU32 := func(v uint32) {
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	appendU32(uint32(len(s.dir)))
	for k, m := range s.dir {
		e := dirEntry{Key: binstruct.U32be(k), Head: binstruct.U32be(m.head), Tail: binstruct.U32be(m.tail), Blocks: binstruct.U32be(m.blocks)}
		b, err := binstruct.Marshal(e)
		if err != nil {
			return fmt.Errorf("liststore: encoding directory entry: %w", err)
		}
		buf = append(buf, b...)
	}
	appendU32(uint32(len(s.freeList)))
	for _, id := range s.freeList {
		appendU32(uint32(id))
	}
	return os.WriteFile(s.dirPath, buf, 0o644)
}

func (s *Store[T]) readTrailer(buf []byte) trailer {
	var t trailer
	_, _ = binstruct.Unmarshal(buf[len(buf)-trailerSize:], &t)
	return t
}

func (s *Store[T]) writeTrailer(buf []byte, t trailer) {
	b, _ := binstruct.Marshal(t)
	copy(buf[len(buf)-trailerSize:], b)
}

func (s *Store[T]) allocBlock() (diskio.BlockID, []byte, error) {
	if n := len(s.freeList); n > 0 {
		id := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		buf := make([]byte, s.blocks.BlockSize())
		s.writeTrailer(buf, trailer{Used: 0, Next: -1})
		return id, buf, s.blocks.Write(id, buf)
	}
	id, err := s.blocks.Allocate()
	if err != nil {
		return 0, nil, fmt.Errorf("liststore: allocating block: %w", err)
	}
	buf := make([]byte, s.blocks.BlockSize())
	s.writeTrailer(buf, trailer{Used: 0, Next: -1})
	return id, buf, s.blocks.Write(id, buf)
}

// AppendList extends (or creates) the list at key with records,
// reusing the free suffix of the list's tail block before allocating
// new ones. Returns the number of records written.
func (s *Store[T]) AppendList(key uint32, records []T) (int, error) {
	meta, exists := s.dir[key]
	var tailBuf []byte
	if !exists {
		id, buf, err := s.allocBlock()
		if err != nil {
			return 0, err
		}
		meta = listMeta{head: id, tail: id, blocks: 1}
		tailBuf = buf
	} else {
		buf := make([]byte, s.blocks.BlockSize())
		if err := s.blocks.Read(meta.tail, buf); err != nil {
			return 0, fmt.Errorf("liststore.AppendList(%d): %w", key, err)
		}
		tailBuf = buf
	}

	written := 0
	for written < len(records) {
		t := s.readTrailer(tailBuf)
		free := s.recsPerBlock - int(t.Used)
		if free == 0 {
			nextID, nextBuf, err := s.allocBlock()
			if err != nil {
				return written, err
			}
			t.Next = binstruct.I16be(int16(nextID))
			s.writeTrailer(tailBuf, t)
			if err := s.blocks.Write(meta.tail, tailBuf); err != nil {
				return written, err
			}
			meta.tail = nextID
			meta.blocks++
			tailBuf = nextBuf
			t = s.readTrailer(tailBuf)
			free = s.recsPerBlock
		}
		n := free
		if remaining := len(records) - written; remaining < n {
			n = remaining
		}
		for i := 0; i < n; i++ {
			recBuf, err := binstruct.Marshal(records[written+i])
			if err != nil {
				return written, fmt.Errorf("liststore.AppendList(%d): %w", key, err)
			}
			off := (int(t.Used) + i) * s.recordSize
			copy(tailBuf[off:off+s.recordSize], recBuf)
		}
		t.Used += binstruct.U16be(n)
		s.writeTrailer(tailBuf, t)
		written += n
	}
	if err := s.blocks.Write(meta.tail, tailBuf); err != nil {
		return written, err
	}
	s.dir[key] = meta
	if err := s.saveDirectory(); err != nil {
		return written, err
	}
	return written, nil
}

// Iterator lazily walks the linked blocks of a list, one record at a
// time, and is restartable by calling Store.Iterator again.
type Iterator[T any] struct {
	s       *Store[T]
	cur     diskio.BlockID
	hasMore bool
	buf     []byte
	t       trailer
	pos     int
}

// Iterator returns a fresh, restartable iterator over key's records.
func (s *Store[T]) Iterator(key uint32) (*Iterator[T], error) {
	meta, ok := s.dir[key]
	if !ok {
		return nil, fmt.Errorf("liststore.Iterator(%d): %w", key, errs.NotFound)
	}
	it := &Iterator[T]{s: s, cur: meta.head, hasMore: true}
	if err := it.loadBlock(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator[T]) loadBlock() error {
	buf := make([]byte, it.s.blocks.BlockSize())
	if err := it.s.blocks.Read(it.cur, buf); err != nil {
		return fmt.Errorf("liststore.Iterator: %w", err)
	}
	it.buf = buf
	it.t = it.s.readTrailer(buf)
	it.pos = 0
	return nil
}

// Next advances to the next record, returning false at end of list.
func (it *Iterator[T]) Next() (bool, error) {
	for {
		if it.pos < int(it.t.Used) {
			return true, nil
		}
		if it.t.Next < 0 {
			it.hasMore = false
			return false, nil
		}
		it.cur = diskio.BlockID(uint16(it.t.Next))
		if err := it.loadBlock(); err != nil {
			return false, err
		}
	}
}

// Record decodes the record at the iterator's current position. Call
// only after Next returned true.
func (it *Iterator[T]) Record() (T, error) {
	var rec T
	off := it.pos * it.s.recordSize
	_, err := binstruct.Unmarshal(it.buf[off:off+it.s.recordSize], &rec)
	it.pos++
	return rec, err
}

// Remove unlinks every block of key's list onto the store's free list
// (reused by future AppendList calls, not reclaimed by the OS) and
// drops the directory entry.
func (s *Store[T]) Remove(key uint32) error {
	meta, ok := s.dir[key]
	if !ok {
		return fmt.Errorf("liststore.Remove(%d): %w", key, errs.NotFound)
	}
	buf := make([]byte, s.blocks.BlockSize())
	cur := meta.head
	for {
		if err := s.blocks.Read(cur, buf); err != nil {
			return fmt.Errorf("liststore.Remove(%d): %w", key, err)
		}
		t := s.readTrailer(buf)
		s.freeList = append(s.freeList, cur)
		if t.Next < 0 {
			break
		}
		cur = diskio.BlockID(uint16(t.Next))
	}
	delete(s.dir, key)
	return s.saveDirectory()
}

// SizeInBytes returns the space occupied by every block currently
// backing this store, including freed-but-unreclaimed ones.
func (s *Store[T]) SizeInBytes() int64 {
	total := int64(len(s.freeList))
	for _, m := range s.dir {
		total += int64(m.blocks)
	}
	return total * int64(s.blocks.BlockSize())
}
