// Package svo implements a sparse voxel octree engine: a pointer-indexed
// per-chunk octree, a linear SVO buffer with a range allocator, chunk
// serialization to the ESVO/CSVO wire formats, a world-level octree of
// chunk pointers with origin shifting, and a deterministic reference
// raytracer traversal over the serialized buffer.
package svo

import (
	"errors"
	"fmt"
)

// Flags is a bitmask controlling error handling behaviour across the
// engine's Builder-style constructors.
type Flags uint64

const (
	// FlagNoPanic controls panicking behaviour on programming-error
	// conditions (PathOutOfRange, DoubleBorrow, InvariantViolation). If
	// set, these errors do not panic; instead they are accumulated for
	// later inspection with [Builder.Err].
	FlagNoPanic Flags = 1 << iota
)

// Builder accumulates construction-time errors for engine subsystems,
// mirroring the panic-or-accumulate discipline used throughout this
// codebase's lower-level packages.
type Builder struct {
	flags     Flags
	accumErrs []error
}

// SetFlags assigns the flags governing this Builder's error behaviour.
func (b *Builder) SetFlags(f Flags) { b.flags = f }

// Flags returns the currently configured flags.
func (b *Builder) Flags() Flags { return b.flags }

// Err returns errors accumulated so far. The returned error implements
// Unwrap() []error. Returns nil if no errors were accumulated.
func (b *Builder) Err() error {
	if len(b.accumErrs) == 0 {
		return nil
	}
	return errors.Join(b.accumErrs...)
}

// ClearErrors discards accumulated errors such that Err returns nil on
// the next call.
func (b *Builder) ClearErrors() {
	b.accumErrs = b.accumErrs[:0]
}

// InvariantErrorf records or panics on a programming-error condition
// (DoubleBorrow, InvariantViolation, PathOutOfRange) depending on
// FlagNoPanic. Callers outside this package use it the same way internal
// callers do: a recoverable condition never goes through here, it's
// returned as a plain error instead.
func (b *Builder) InvariantErrorf(msg string, args ...any) {
	if b.flags&FlagNoPanic == 0 {
		panic(fmt.Sprintf(msg, args...))
	}
	b.accumErrs = append(b.accumErrs, fmt.Errorf(msg, args...))
}

// Sentinel errors for the recoverable error taxonomy (never panics;
// always returned as a plain error value).
var (
	// ErrOutOfSpace is returned by the SVO buffer allocator when no
	// free range and no tail space satisfies a requested allocation.
	ErrOutOfSpace = errors.New("svo: buffer out of space")
	// ErrCancelledBorrow is returned (informationally; never fatal)
	// when a borrowed chunk's task is cancelled by the worker pool.
	ErrCancelledBorrow = errors.New("svo: borrow cancelled")
)
