// Package octree implements the pointer-indexed, arena-allocated per-chunk
// octree and its Z-order bulk builder.
package octree

import (
	"errors"
	"fmt"
)

var (
	errArenaReleaseUnacquired = errors.New("octree: release of unacquired arena index")
	errArenaIndexOutOfRange   = errors.New("octree: arena index out of range")
)

// Arena is a pool of fixed-arity Octant records addressed by dense
// integer index. allocate prefers reuse of released indices over growing
// the backing slice; release never shrinks the slice, it only marks the
// slot free and pushes it onto the free list.
//
// Modeled on the generic buffer-pool idiom (acquire/release over a
// backing slice with a parallel occupancy bookkeeping slice), adapted
// from variable-length buffer reuse to fixed-size record reuse: instead
// of scanning for a free slot of sufficient length, released indices are
// tracked explicitly in a LIFO free list so allocate is O(1) amortized.
type Arena struct {
	octants  []Octant
	occupied []bool
	free     []int32
}

// NewArena returns an empty arena. capHint is the number of octants to
// preallocate backing storage for; zero is a valid hint.
func NewArena(capHint int) *Arena {
	return &Arena{
		octants:  make([]Octant, 0, capHint),
		occupied: make([]bool, 0, capHint),
	}
}

// Allocate returns the index of a fresh, zero-valued Octant: a reused
// free-list entry if one exists, otherwise a newly appended slot.
func (a *Arena) Allocate() int32 {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.octants[idx] = Octant{}
		a.occupied[idx] = true
		return idx
	}
	idx := int32(len(a.octants))
	a.octants = append(a.octants, Octant{})
	a.occupied = append(a.occupied, true)
	return idx
}

// Release pushes idx onto the free list. The slot's contents become
// unreferenced; using idx again without a matching Allocate is a
// programming error caught by Get/GetMut's bounds and occupancy check.
func (a *Arena) Release(idx int32) error {
	if idx < 0 || int(idx) >= len(a.occupied) {
		return fmt.Errorf("%w: %d", errArenaIndexOutOfRange, idx)
	}
	if !a.occupied[idx] {
		return fmt.Errorf("%w: %d", errArenaReleaseUnacquired, idx)
	}
	a.occupied[idx] = false
	a.octants[idx] = Octant{}
	a.free = append(a.free, idx)
	return nil
}

// Get returns a read-only view of the octant at idx.
func (a *Arena) Get(idx int32) (*Octant, error) {
	if idx < 0 || int(idx) >= len(a.occupied) {
		return nil, fmt.Errorf("%w: %d", errArenaIndexOutOfRange, idx)
	}
	if !a.occupied[idx] {
		return nil, fmt.Errorf("octree: read of released arena index %d", idx)
	}
	return &a.octants[idx], nil
}

// GetMut returns a mutable view of the octant at idx.
func (a *Arena) GetMut(idx int32) (*Octant, error) {
	return a.Get(idx)
}

// IsOccupied reports whether idx is currently allocated.
func (a *Arena) IsOccupied(idx int32) bool {
	return idx >= 0 && int(idx) < len(a.occupied) && a.occupied[idx]
}

// Len returns the number of backing slots (occupied + free).
func (a *Arena) Len() int { return len(a.octants) }

// NumFree returns the number of indices currently on the free list.
func (a *Arena) NumFree() int { return len(a.free) }

// CheckInvariants verifies that the set of reachable indices (as
// reported by the caller) is disjoint from the free list and that their
// union is exactly the occupied set. Mirrors the assertAllReleased-style
// invariant check used for pool bookkeeping in this codebase.
func (a *Arena) CheckInvariants(reachable map[int32]bool) error {
	onFree := make(map[int32]bool, len(a.free))
	for _, idx := range a.free {
		if onFree[idx] {
			return fmt.Errorf("octree: arena index %d appears twice on free list", idx)
		}
		onFree[idx] = true
		if reachable[idx] {
			return fmt.Errorf("octree: arena index %d is both free and reachable", idx)
		}
	}
	for idx, occ := range a.occupied {
		want := reachable[int32(idx)]
		if occ != want {
			return fmt.Errorf("octree: arena index %d occupied=%v reachable=%v mismatch", idx, occ, want)
		}
	}
	return nil
}

// compact keeps only the octants reachable per reachableInOrder
// (a preorder walk, so old indices do not arrive in ascending order),
// remapping each to its new, densely-packed index. The walk order means
// an in-place overwrite could clobber a slot that a later entry still
// needs to read, so the surviving octants are copied into fresh backing
// storage rather than compacted over the old one; free-list/occupancy
// bookkeeping is simply reset.
func (a *Arena) compact(reachableInOrder []int32) (newArena *Arena, oldToNew map[int32]int32) {
	oldToNew = make(map[int32]int32, len(reachableInOrder))
	octants := make([]Octant, len(reachableInOrder))
	occupied := make([]bool, len(reachableInOrder))
	for newIdx, oldIdx := range reachableInOrder {
		oldToNew[oldIdx] = int32(newIdx)
		octants[newIdx] = a.octants[oldIdx]
		occupied[newIdx] = true
	}
	a.octants = octants
	a.occupied = occupied
	a.free = a.free[:0]
	return a, oldToNew
}
