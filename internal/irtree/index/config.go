// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package index wires C1 through C10 into the top-level handle spec.md
// §6 describes: one directory holding a tree (C7), its augmentation
// (C8), a shared inverted file (C6), term/doc vocabularies (C4), and
// vector caches (C5), built and queried through the four-operation
// "Build interface (logical)": insert, build_augmentation, flush,
// close.
package index

import (
	"fmt"

	"github.com/spatialidx/irtree/internal/irtree/errs"
	"github.com/spatialidx/irtree/internal/irtree/rtree"
)

// Config mirrors spec.md §6's configuration table exactly; every field
// there has one field here.
type Config struct {
	BlockSize             int
	BlocksPerFile         uint32
	BufferedBlocks        int
	VectorCacheSize       int
	Dims                  int
	MinEntries, MaxEntries int
	InlineVectorThreshold int
	Alpha                 float64
	K                     int
}

// DefaultConfig returns a Config with reasonable defaults for the
// fields §6 lists as query-time-overridable (Alpha, K) or purely
// structural. It also fills in block and entry sizing to match package
// rtree's fixed node layout.
func DefaultConfig() Config {
	return Config{
		BlockSize:             rtree.NodeHeaderSize,
		BlocksPerFile:         1024,
		BufferedBlocks:        256,
		VectorCacheSize:       256,
		Dims:                  rtree.Dims,
		MinEntries:            rtree.MaxEntries / 4,
		MaxEntries:            rtree.MaxEntries,
		InlineVectorThreshold: rtree.InlineTermCap,
		Alpha:                 0.5,
		K:                     10,
	}
}

// validate rejects an unusable Config at entry, per §7's
// "InvalidArgument (bad k, mismatched dimensionality, alpha outside
// [0,1]) — rejected at entry".
func (c Config) validate() error {
	if c.Dims != rtree.Dims {
		return fmt.Errorf("index: config dims %d, tree supports only %d: %w", c.Dims, rtree.Dims, errs.InvalidArgument)
	}
	if c.BlockSize < rtree.NodeHeaderSize {
		return fmt.Errorf("index: block_size %d smaller than one tree node (%d): %w", c.BlockSize, rtree.NodeHeaderSize, errs.InvalidArgument)
	}
	if c.MinEntries < 1 || c.MinEntries > c.MaxEntries/2 {
		return fmt.Errorf("index: min_entries %d must satisfy 1 <= m <= M/2 (M=%d): %w", c.MinEntries, c.MaxEntries, errs.InvalidArgument)
	}
	if c.MaxEntries < 1 || c.MaxEntries > rtree.MaxEntries {
		return fmt.Errorf("index: max_entries %d must be in (0, %d]: %w", c.MaxEntries, rtree.MaxEntries, errs.InvalidArgument)
	}
	if c.InlineVectorThreshold < 0 || c.InlineVectorThreshold > rtree.InlineTermCap {
		return fmt.Errorf("index: inline_vector_threshold %d must be in [0, %d]: %w", c.InlineVectorThreshold, rtree.InlineTermCap, errs.InvalidArgument)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("index: alpha %f outside [0,1]: %w", c.Alpha, errs.InvalidArgument)
	}
	if c.K < 1 {
		return fmt.Errorf("index: k %d must be positive: %w", c.K, errs.InvalidArgument)
	}
	if c.BufferedBlocks < 1 || c.VectorCacheSize < 1 {
		return fmt.Errorf("index: buffered_blocks and vector_cache_size must be positive: %w", errs.InvalidArgument)
	}
	return nil
}
