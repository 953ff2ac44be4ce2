// Package svobuf implements the linear, word-addressable SVO buffer: a
// flat store of 32-bit words with a root header and a coalesced
// free-range allocator, suitable for zero-copy GPU mapping.
package svobuf

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// ScaleWordOffset is the word offset of the octree_scale header field.
	ScaleWordOffset = 0
	// RootPtrWordOffset is the word offset of the root_ptr header field.
	RootPtrWordOffset = 1
	// HeaderWords is the number of words reserved for the buffer header;
	// serialized octants begin at this word offset.
	HeaderWords = 2
)

// Buffer is a flat array of 32-bit words. It is interpretable
// byte-addressably for the CSVO format via WriteBytes/ReadBytes. Offset
// 0 carries octree_scale (f32); offset 1 carries root_ptr (u32, word
// index); word content from HeaderWords onward is serialized octants,
// per §4.5.
//
// Grounded on the flat-slice-of-records style used throughout this
// codebase's buffer-like types, generalized here to a fixed-size word
// array suitable for being memory-mapped as GPU storage (see the
// preview package).
type Buffer struct {
	words     []uint32
	alloc     *Allocator
	byteAlloc *Allocator
}

// New returns a Buffer of the given fixed word capacity, with the root
// header zeroed (scale=0, root_ptr=0) and the remaining capacity free.
// wordCapacity must be at least HeaderWords.
//
// Both a word-granularity allocator (Allocator, for ESVO) and a
// byte-granularity allocator (ByteAllocator, for CSVO) are created over
// the same backing storage; a build chooses one Format and uses only
// the matching allocator, but both coexist on Buffer at no cost to the
// one left idle.
func New(wordCapacity int) (*Buffer, error) {
	if wordCapacity < HeaderWords {
		return nil, fmt.Errorf("svobuf: capacity %d too small for header (need >= %d)", wordCapacity, HeaderWords)
	}
	b := &Buffer{
		words: make([]uint32, wordCapacity),
	}
	b.alloc = NewAllocator(wordCapacity, HeaderWords)
	b.byteAlloc = NewAllocator(wordCapacity*4, HeaderWords*4)
	return b, nil
}

// Cap returns the buffer's fixed word capacity.
func (b *Buffer) Cap() int { return len(b.words) }

// RawWords exposes the buffer's backing word storage directly, for
// callers (the preview package) that bind it as a GPU storage buffer
// rather than go through ReadWords/WriteWords. Mutating the returned
// slice bypasses the allocator's bookkeeping; only a GPU-side
// read-only bind is a sanctioned use.
func (b *Buffer) RawWords() []uint32 { return b.words }

// Scale returns the octree_scale header field.
func (b *Buffer) Scale() float32 {
	return math.Float32frombits(b.words[ScaleWordOffset])
}

// SetScale writes the octree_scale header field, 2^(-octree_depth), the
// leaf size in normalized [0,1] space.
func (b *Buffer) SetScale(scale float32) {
	b.words[ScaleWordOffset] = math.Float32bits(scale)
}

// RootPtr returns the root_ptr header field: the word index of the
// World SVO's root octant.
func (b *Buffer) RootPtr() uint32 {
	return b.words[RootPtrWordOffset]
}

// SetRootPtr writes the root_ptr header field. This is the single
// aligned word swap the concurrency model relies on: readers observing
// either the old or the new value, never a torn one (guaranteed here by
// Go's memory model for aligned machine-word stores). It is a plain
// store with no atomic wrapper; worldsvo calls it directly when it
// re-serializes the World SVO.
func (b *Buffer) SetRootPtr(wordIdx uint32) {
	b.words[RootPtrWordOffset] = wordIdx
}

// Allocator exposes the buffer's word-granularity range allocator (used
// by the ESVO format).
func (b *Buffer) Allocator() *Allocator { return b.alloc }

// ByteAllocator exposes the buffer's byte-granularity range allocator
// (used by the CSVO format).
func (b *Buffer) ByteAllocator() *Allocator { return b.byteAlloc }

// WriteWords writes words into the buffer starting at the given word
// offset. Unchecked beyond a bounds check: the caller is responsible for
// writing only into ranges it has allocated.
func (b *Buffer) WriteWords(offset int, words []uint32) error {
	if offset < 0 || offset+len(words) > len(b.words) {
		return fmt.Errorf("svobuf: WriteWords out of range: offset=%d len=%d cap=%d", offset, len(words), len(b.words))
	}
	copy(b.words[offset:], words)
	return nil
}

// ReadWords returns a copy of count words starting at the given word
// offset.
func (b *Buffer) ReadWords(offset, count int) ([]uint32, error) {
	if offset < 0 || offset+count > len(b.words) {
		return nil, fmt.Errorf("svobuf: ReadWords out of range: offset=%d count=%d cap=%d", offset, count, len(b.words))
	}
	out := make([]uint32, count)
	copy(out, b.words[offset:offset+count])
	return out, nil
}

// WriteBytes writes a little-endian byte slice at the given *byte*
// offset, used by the CSVO format's variable-width, byte-addressed
// nodes. The word(s) touched are read-modify-written so that
// WriteBytes and WriteWords can address the same backing storage.
//
// Grounded on the fixed-offset struct-into-bytes packing idiom used by
// GPU buffer managers in this corpus (binary.LittleEndian.PutUint32 at
// fixed byte offsets), applied here to SVO node bytes instead of
// uniform-buffer structs.
func (b *Buffer) WriteBytes(byteOffset int, data []byte) error {
	byteCap := len(b.words) * 4
	if byteOffset < 0 || byteOffset+len(data) > byteCap {
		return fmt.Errorf("svobuf: WriteBytes out of range: offset=%d len=%d byteCap=%d", byteOffset, len(data), byteCap)
	}
	for i, d := range data {
		bo := byteOffset + i
		wordIdx := bo / 4
		byteInWord := bo % 4
		var wbuf [4]byte
		binary.LittleEndian.PutUint32(wbuf[:], b.words[wordIdx])
		wbuf[byteInWord] = d
		b.words[wordIdx] = binary.LittleEndian.Uint32(wbuf[:])
	}
	return nil
}

// ReadBytes returns a copy of count bytes starting at the given byte
// offset, little-endian.
func (b *Buffer) ReadBytes(byteOffset, count int) ([]byte, error) {
	byteCap := len(b.words) * 4
	if byteOffset < 0 || byteOffset+count > byteCap {
		return nil, fmt.Errorf("svobuf: ReadBytes out of range: offset=%d count=%d byteCap=%d", byteOffset, count, byteCap)
	}
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		bo := byteOffset + i
		wordIdx := bo / 4
		byteInWord := bo % 4
		var wbuf [4]byte
		binary.LittleEndian.PutUint32(wbuf[:], b.words[wordIdx])
		out[i] = wbuf[byteInWord]
	}
	return out, nil
}
