// Copyright (C) 2026  irtree contributors
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package errs defines the sentinel error kinds shared by every layer
// of the index, from the block file up through the top-level Index.
// Callers distinguish a kind with errors.Is(err, errs.NotFound), not by
// inspecting a concrete type.
package errs

import iofs "io/fs"

// NotFound means a key was looked up that was never written: an
// unallocated block id, an unknown list-store key, or a term/item id
// absent from the vocabulary.
var NotFound = &kind{"not found"}

// IO means the underlying OS file returned an error (short read,
// permission, disk full at the OS level).
var IO = &kind{"I/O error"}

// Corrupt means on-disk state violates a format invariant the index
// relies on: a list-store block whose terminator disagrees with its
// allocated record count, a vocabulary file with a bad length prefix,
// a node block that fails to unmarshal.
var Corrupt = &kind{"corrupt data"}

// Full means a capacity limit was exceeded: a block id would overflow
// its 32-bit range, or a configured tree/cache size bound was hit.
var Full = &kind{"capacity exceeded"}

// InvalidArgument means a caller-supplied parameter is out of range:
// negative k, mismatched dimensionality, alpha outside [0,1].
var InvalidArgument = &kind{"invalid argument"}

// Cancelled means a query's budget or deadline was hit. Unlike the
// other kinds this is not fatal to the index: callers of top-k search
// get back whatever partial result had been assembled so far (see
// package topk).
var Cancelled = &kind{"cancelled"}

type kind struct {
	msg string
}

func (k *kind) Error() string { return k.msg }

// Is lets errors.Is(err, errs.NotFound) match both the sentinel itself
// and the stdlib's io/fs.ErrNotExist, since several lower layers (OS
// file opens) already return errors.Is-compatible with that.
func (k *kind) Is(target error) bool {
	if target == k {
		return true
	}
	return k == NotFound && target == iofs.ErrNotExist
}
