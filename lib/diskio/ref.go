// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"fmt"

	"github.com/spatialidx/irtree/lib/binstruct"
)

// Ref is a typed reference to a fixed-size record at a known address in
// a File. Package rtree instantiates Ref with its own on-disk metadata
// record struct (tagged `bin:"off=...,siz=..."`) so
// reading or writing a record never requires hand-rolled byte slicing at
// the call site. Grounded on pkg/util.Ref[A,T] from the teacher repo,
// adapted to this module's own File[A] interface (whose Size method
// returns A directly rather than (A, error)).
type Ref[A ~int64, T any] struct {
	File File[A]
	Addr A
	Data T
}

func (r *Ref[A, T]) Read() error {
	size := binstruct.StaticSize(r.Data)
	buf := make([]byte, size)
	if _, err := r.File.ReadAt(buf, r.Addr); err != nil {
		return fmt.Errorf("diskio.Ref[%T].Read: %w", r.Data, err)
	}
	n, err := binstruct.Unmarshal(buf, &r.Data)
	if err != nil {
		return fmt.Errorf("diskio.Ref[%T].Read: %w", r.Data, err)
	}
	if n != size {
		return fmt.Errorf("diskio.Ref[%T].Read: left over data: read %d bytes but only consumed %d",
			r.Data, size, n)
	}
	return nil
}

func (r *Ref[A, T]) Write() error {
	buf, err := binstruct.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("diskio.Ref[%T].Write: %w", r.Data, err)
	}
	if _, err := r.File.WriteAt(buf, r.Addr); err != nil {
		return fmt.Errorf("diskio.Ref[%T].Write: %w", r.Data, err)
	}
	return nil
}
