// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import "context"

// Source is the backing store a Cache pulls from on a miss and
// pushes to on eviction.
type Source[K comparable, V any] interface {
	// Load populates dst with the value for k. If the caller asks
	// for a key that does not exist in the backing store, Load
	// should leave dst as its zero value; it is the caller's
	// problem to distinguish "exists but empty" from "does not
	// exist" at a higher layer.
	Load(ctx context.Context, k K, dst *V)

	// Flush writes v back to the backing store.
	Flush(ctx context.Context, v *V)
}

// SourceFunc adapts a plain load function into a Source whose Flush is
// a no-op, for read-only sources (the ARC cache tests use it).
type SourceFunc[K comparable, V any] func(ctx context.Context, k K, dst *V)

func (f SourceFunc[K, V]) Load(ctx context.Context, k K, dst *V) { f(ctx, k, dst) }
func (f SourceFunc[K, V]) Flush(ctx context.Context, v *V)       {}

// Cache is a pull-through, write-back, reference-counted cache.
//
// Acquire/Release form a pin pair: a value returned by Acquire must
// not be evicted (and the pointer stays valid) until a matching
// Release. This lets a caller hold a vector or a block buffer across
// several operations (e.g. computing an upper bound, then scoring)
// without racing an eviction out from under it.
type Cache[K comparable, V any] interface {
	Acquire(ctx context.Context, k K) *V
	Release(k K)
	Delete(k K)
	Flush(ctx context.Context)
}
