// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package vocab implements C4, the vocabulary: a persistent bijection
// between an external string key and a dense, monotonically-assigned
// internal id, plus per-id statistics (document frequency and total
// collection weight). Package index opens one Vocabulary instance for
// each of vocab.term and vocab.doc.
//
// Persistence resolves spec.md §9's "PersistentHashMap reads until
// null" defect report: rather than scanning until a sentinel/null
// record, the file is a length-prefixed record count followed by
// exactly that many fixed-shape records, so a zero-length key can
// never be confused with end-of-file. See C4a in SPEC_FULL.md.
package vocab

import (
	"fmt"
	"math"
	"os"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/lib/binstruct"
)

// Stats holds the per-id aggregates that AddWeight accumulates as item
// vectors are written.
type Stats struct {
	DF          uint32
	TotalWeight float64
}

type fixedRecord struct {
	InternalID    binstruct.U32be `bin:"off=0x0,siz=0x4"`
	DF            binstruct.U32be `bin:"off=0x4,siz=0x4"`
	TotalWeight   binstruct.U64be `bin:"off=0x8,siz=0x8"`
	binstruct.End `bin:"off=0x10"`
}

var fixedRecordSize = binstruct.StaticSize(fixedRecord{})

// Vocabulary is a persistent external-key <-> dense-internal-id
// bijection with per-id Stats, following the "dense and monotonic"
// assignment spec.md §4.4 requires.
type Vocabulary struct {
	path string

	byExternal map[string]uint32
	byInternal map[uint32]string
	stats      map[uint32]Stats
	next       uint32
}

// Open loads the vocabulary persisted at path, or starts a fresh one if
// the file does not yet exist.
func Open(path string) (*Vocabulary, error) {
	v := &Vocabulary{
		path:       path,
		byExternal: make(map[string]uint32),
		byInternal: make(map[uint32]string),
		stats:      make(map[uint32]Stats),
		next:       1, // 0 is reserved as the nil id across internal/irtree/ids
	}
	if err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocabulary) load() error {
	dat, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vocab: reading %s: %w", v.path, err)
	}
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(dat) {
			return 0, fmt.Errorf("vocab: %w: %s truncated", errs.Corrupt, v.path)
		}
		x := uint32(dat[off])<<24 | uint32(dat[off+1])<<16 | uint32(dat[off+2])<<8 | uint32(dat[off+3])
		off += 4
		return x, nil
	}
	readU16 := func() (uint16, error) {
		if off+2 > len(dat) {
			return 0, fmt.Errorf("vocab: %w: %s truncated", errs.Corrupt, v.path)
		}
		x := uint16(dat[off])<<8 | uint16(dat[off+1])
		off += 2
		return x, nil
	}
	count, err := readU32()
	if err != nil {
		return err
	}
	maxID := uint32(0)
	for i := uint32(0); i < count; i++ {
		keyLen, err := readU16()
		if err != nil {
			return err
		}
		if off+int(keyLen) > len(dat) {
			return fmt.Errorf("vocab: %w: %s truncated key", errs.Corrupt, v.path)
		}
		key := string(dat[off : off+int(keyLen)])
		off += int(keyLen)
		if off+fixedRecordSize > len(dat) {
			return fmt.Errorf("vocab: %w: %s truncated record", errs.Corrupt, v.path)
		}
		var rec fixedRecord
		n, err := binstruct.Unmarshal(dat[off:off+fixedRecordSize], &rec)
		if err != nil {
			return fmt.Errorf("vocab: decoding record: %w", err)
		}
		off += n
		id := uint32(rec.InternalID)
		v.byExternal[key] = id
		v.byInternal[id] = key
		v.stats[id] = Stats{DF: uint32(rec.DF), TotalWeight: math.Float64frombits(uint64(rec.TotalWeight))}
		if id > maxID {
			maxID = id
		}
	}
	v.next = maxID + 1
	return nil
}

// Flush persists the vocabulary to its backing path.
func (v *Vocabulary) Flush() error {
	buf := make([]byte, 0, 1024)
	appendU32 := func(x uint32) {
		buf = append(buf, byte(x>>24), byte(x>>16), byte(x>>8), byte(x))
	}
	appendU16 := func(x uint16) {
		buf = append(buf, byte(x>>8), byte(x))
	}
	appendU32(uint32(len(v.byInternal)))
	for id, key := range v.byInternal {
		appendU16(uint16(len(key)))
		buf = append(buf, key...)
		st := v.stats[id]
		rec := fixedRecord{
			InternalID:  binstruct.U32be(id),
			DF:          binstruct.U32be(st.DF),
			TotalWeight: binstruct.U64be(math.Float64bits(st.TotalWeight)),
		}
		b, err := binstruct.Marshal(rec)
		if err != nil {
			return fmt.Errorf("vocab: encoding record: %w", err)
		}
		buf = append(buf, b...)
	}
	return os.WriteFile(v.path, buf, 0o644)
}

// Close flushes and releases the vocabulary. The Vocabulary value
// itself holds no OS handles; Close exists so callers can treat it
// symmetrically with C1-C3's Close methods.
func (v *Vocabulary) Close() error { return v.Flush() }

// Intern returns key's internal id, assigning a new dense one (and
// reporting isNew) if key has not been seen before.
func (v *Vocabulary) Intern(key string) (id uint32, isNew bool) {
	if id, ok := v.byExternal[key]; ok {
		return id, false
	}
	id = v.next
	v.next++
	v.byExternal[key] = id
	v.byInternal[id] = key
	v.stats[id] = Stats{}
	return id, true
}

// Lookup returns the external key for id, if interned.
func (v *Vocabulary) Lookup(id uint32) (string, bool) {
	key, ok := v.byInternal[id]
	return key, ok
}

// LookupExternal returns the internal id for key, if interned, without
// assigning a new one.
func (v *Vocabulary) LookupExternal(key string) (uint32, bool) {
	id, ok := v.byExternal[key]
	return id, ok
}

// GetStats returns id's current Stats.
func (v *Vocabulary) GetStats(id uint32) (Stats, bool) {
	st, ok := v.stats[id]
	return st, ok
}

// AddWeight folds a vector-write's contribution into id's Stats: one
// more document/node carries this term (DF increments), and its weight
// adds to the running total (used to derive an average or idf
// denominator at query time). Called by package index's Insert once per
// term of each inserted item.
func (v *Vocabulary) AddWeight(id uint32, weight float64) {
	st := v.stats[id]
	st.DF++
	st.TotalWeight += weight
	v.stats[id] = st
}

// Len returns the number of interned keys.
func (v *Vocabulary) Len() int { return len(v.byInternal) }
