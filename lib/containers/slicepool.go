// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import "sync"

// SlicePool[T] recycles backing arrays for fixed-size slices, used by
// the block file (package diskio) to avoid allocating a fresh buffer
// for every block read.
type SlicePool[T any] struct {
	inner sync.Pool
}

func (p *SlicePool[T]) Get(size int) []T {
	if size == 0 {
		return nil
	}
	if v := p.inner.Get(); v != nil {
		ret := v.([]T)
		if cap(ret) >= size {
			return ret[:size]
		}
	}
	return make([]T, size)
}

func (p *SlicePool[T]) Put(slice []T) {
	if slice == nil {
		return
	}
	p.inner.Put(slice) //nolint:staticcheck // fixed-size-slice pool, not a pointer-to-struct
}
