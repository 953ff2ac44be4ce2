package svobuf

import (
	"sort"

	svo "github.com/ashgrove-games/svo"
)

// Range is a half-open [Offset, Offset+Count) word range.
type Range struct {
	Offset int
	Count  int
}

// Allocator allocates and frees word-aligned ranges inside one
// fixed-size buffer, maintaining a coalesced free-range list plus a
// "tail" boundary beyond which no word has ever been handed out.
//
// Grounded on the buffer-pool's linear-scan-first-fit discipline
// (scan candidates for the first one of sufficient size before
// allocating fresh storage), generalized from "whole buffer
// acquired/free" bookkeeping to byte/word sub-ranges of one fixed
// buffer, with adjacency coalescing added on release.
type Allocator struct {
	free     []Range // sorted by Offset, disjoint, coalesced.
	tail     int
	capacity int
}

// NewAllocator returns an allocator over [startOffset, capacity) words;
// words before startOffset (e.g. the buffer header) are never handed
// out.
func NewAllocator(capacity, startOffset int) *Allocator {
	return &Allocator{tail: startOffset, capacity: capacity}
}

// Alloc reserves wordCount contiguous words, first-fit against the
// free-range list, falling back to extending the tail if nothing fits.
// Returns svo.ErrOutOfSpace if neither satisfies the request — the
// buffer is fixed-size for zero-copy GPU mapping, so allocation never
// grows the backing store.
func (a *Allocator) Alloc(wordCount int) (int, error) {
	if wordCount <= 0 {
		return 0, nil
	}
	for i, r := range a.free {
		if r.Count < wordCount {
			continue
		}
		offset := r.Offset
		if r.Count == wordCount {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = Range{Offset: r.Offset + wordCount, Count: r.Count - wordCount}
		}
		return offset, nil
	}
	if a.tail+wordCount <= a.capacity {
		offset := a.tail
		a.tail += wordCount
		return offset, nil
	}
	return 0, svo.ErrOutOfSpace
}

// Free releases [offset, offset+wordCount) back to the free list,
// merging with adjacent free ranges on either side.
func (a *Allocator) Free(offset, wordCount int) {
	if wordCount <= 0 {
		return
	}
	r := Range{Offset: offset, Count: wordCount}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Offset >= r.Offset })
	a.free = append(a.free, Range{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = r
	a.coalesceAround(i)
}

// coalesceAround merges the range at index i with its immediate
// neighbors if they are adjacent.
func (a *Allocator) coalesceAround(i int) {
	if i+1 < len(a.free) {
		cur := a.free[i]
		next := a.free[i+1]
		if cur.Offset+cur.Count == next.Offset {
			a.free[i] = Range{Offset: cur.Offset, Count: cur.Count + next.Count}
			a.free = append(a.free[:i+1], a.free[i+2:]...)
		}
	}
	if i > 0 {
		prev := a.free[i-1]
		cur := a.free[i]
		if prev.Offset+prev.Count == cur.Offset {
			a.free[i-1] = Range{Offset: prev.Offset, Count: prev.Count + cur.Count}
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
	}
}

// FreeRanges returns a copy of the current free-range list, sorted and
// coalesced, for diagnostics and tests.
func (a *Allocator) FreeRanges() []Range {
	out := make([]Range, len(a.free))
	copy(out, a.free)
	return out
}

// Tail returns the current tail boundary: the offset beyond which no
// word has ever been allocated.
func (a *Allocator) Tail() int { return a.tail }
