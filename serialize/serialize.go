// Package serialize converts a per-chunk octree.Octree into a
// contiguous SVO block inside an svobuf.Buffer, in either of two
// wire-compatible formats (ESVO, CSVO), and can deserialize a block
// back for round-trip verification.
//
// Grounded on the teacher's shader-tree emission discipline
// (glbuild.Shader3D.ForEachChild always emits a child's source before
// the parent references it): both serializers here walk the octree
// depth-first, post-order, recording each child's buffer offset before
// writing the parent's own header/pointers.
package serialize

import "github.com/ashgrove-games/svo/octree"
import "github.com/ashgrove-games/svo/svobuf"

// Format selects the wire format a Serializer produces.
type Format uint8

const (
	FormatESVO Format = iota
	FormatCSVO
)

// Serializer converts one Octree into a block inside buf, returning the
// absolute word offset (ESVO) or absolute byte offset (CSVO, taken from
// the buffer's byte allocator) of the resulting root
// node — the value a World SVO leaf slot stores to reference this chunk.
type Serializer interface {
	// Serialize writes tr's content into buf, returning the buffer
	// offset of the new root node.
	Serialize(tr *octree.Octree, buf *svobuf.Buffer) (rootOffset uint32, err error)
	// Free releases every range this serializer previously allocated
	// for the node rooted at rootOffset, without touching buf's other
	// content — used when an incremental re-serialization replaces a
	// stale block.
	Free(buf *svobuf.Buffer, rootOffset uint32) error
	// Deserialize reconstructs an Octree equivalent (by Get) to the one
	// that produced the block at rootOffset, to the given depth.
	Deserialize(buf *svobuf.Buffer, rootOffset uint32, depth uint8) (*octree.Octree, error)
}

// signExtend extracts a signed value of the given bit width from the
// low bits of payload and sign-extends it to a full int32. Grounded on
// the IEEE-754 bit-manipulation idiom this codebase already relies on
// (chewxy/math32 exact-bit float access), applied here to integer
// pointer payloads instead of float mantissas.
func signExtend(payload uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(payload<<shift) >> shift
}

func truncateSigned(v int64, bits uint) uint32 {
	mask := uint32(1)<<bits - 1
	return uint32(v) & mask
}
