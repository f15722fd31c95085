// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package stats implements C10: a small counters center (only package
// topk's query path currently records into it), exported as stats.log — a flat
// newline-delimited key=value dump (§6's "stats.log — optional C10
// counters dump"). No ecosystem metrics client from the pack (there is
// none: the teacher and the rest of the corpus carry no
// prometheus/expvar/statsd dependency anywhere) is wired here; see
// DESIGN.md for why this one concern stays on the standard library.
package stats

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
)

// Center accumulates the counters spec.md's §6/§9 reference: cache
// hits/misses, block I/O counts, heap pops, and postings scanned
// during top-k queries. A nil *Center is safe to call every method on
// (all are no-ops), so callers that don't care about statistics can
// pass nil throughout rather than threading an "enabled" flag.
type Center struct {
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	blocksRead      atomic.Int64
	blocksWritten   atomic.Int64
	heapPops        atomic.Int64
	postingsScanned atomic.Int64
}

// New returns a fresh, zeroed Center.
func New() *Center { return &Center{} }

func (c *Center) AddCacheHit()       { if c != nil { c.cacheHits.Add(1) } }
func (c *Center) AddCacheMiss()      { if c != nil { c.cacheMisses.Add(1) } }
func (c *Center) AddBlockRead()      { if c != nil { c.blocksRead.Add(1) } }
func (c *Center) AddBlockWritten()   { if c != nil { c.blocksWritten.Add(1) } }
func (c *Center) AddHeapPop()        { if c != nil { c.heapPops.Add(1) } }
func (c *Center) AddPostingsScanned(n int) {
	if c != nil {
		c.postingsScanned.Add(int64(n))
	}
}

// Snapshot is a point-in-time copy of every counter, suitable for
// exporting or asserting against in tests.
type Snapshot struct {
	CacheHits       int64
	CacheMisses     int64
	BlocksRead      int64
	BlocksWritten   int64
	HeapPops        int64
	PostingsScanned int64
}

// Snapshot reads every counter. Safe on a nil Center (returns the zero
// Snapshot).
func (c *Center) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		CacheHits:       c.cacheHits.Load(),
		CacheMisses:     c.cacheMisses.Load(),
		BlocksRead:      c.blocksRead.Load(),
		BlocksWritten:   c.blocksWritten.Load(),
		HeapPops:        c.heapPops.Load(),
		PostingsScanned: c.postingsScanned.Load(),
	}
}

// asMap renders a Snapshot as a key -> value map; WriteTo sorts its
// keys so the output is deterministic across runs.
func (s Snapshot) asMap() map[string]int64 {
	return map[string]int64{
		"cache_hits":       s.CacheHits,
		"cache_misses":     s.CacheMisses,
		"blocks_read":      s.BlocksRead,
		"blocks_written":   s.BlocksWritten,
		"heap_pops":        s.HeapPops,
		"postings_scanned": s.PostingsScanned,
	}
}

// WriteTo serializes the current counters as newline-delimited
// key=value lines, sorted by key for a stable diff-friendly dump.
func (c *Center) WriteTo(path string) error {
	m := c.Snapshot().asMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []byte
	for _, k := range keys {
		out = append(out, []byte(fmt.Sprintf("%s=%d\n", k, m[k]))...)
	}
	return os.WriteFile(path, out, 0o644)
}
