// Package worldsvo implements the World SVO: a fixed-depth, root-of-roots
// octree whose leaves are absolute pointers to per-chunk SVO blocks, plus
// origin shifting and chunk borrowing.
package worldsvo

import (
	"errors"
	"fmt"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/serialize"
	"github.com/ashgrove-games/svo/svobuf"
	"github.com/ashgrove-games/svo/telemetry"
)

// ChunkCoord identifies a chunk by its integer coordinate in chunk space
// (one unit per chunk, not per voxel).
type ChunkCoord struct {
	X, Y, Z int32
}

// World is the root-of-roots octree described in spec.md §4.6: a
// fixed-depth tree whose leaves are absolute word/byte offsets of
// per-chunk SVO blocks inside a shared Buffer. The World SVO's own root
// is serialized into the same buffer, at the offset recorded by the
// buffer's root_ptr header field, so descending from the buffer header
// through the World SVO into a chunk is a single uniform walk for a
// reader.
//
// World is the sole owner of its Octree and of every non-borrowed chunk
// Octree; see Borrow/Return in borrow.go for the only sanctioned way a
// chunk octree leaves that ownership.
type World struct {
	svo.Builder

	tree *octree.Octree
	// depth is the World SVO's fixed depth; 1<<depth chunks span each
	// axis of the currently addressable window.
	depth      uint8
	chunkDepth uint8
	buf        *svobuf.Buffer
	ser        serialize.Serializer
	sink       telemetry.Sink
	origin     ChunkCoord
	worldRoot  uint32
	haveRoot   bool

	// roots maps every chunk currently linked into the World SVO to the
	// absolute buffer offset of its serialized block.
	roots map[ChunkCoord]uint32
	// rootOffsets is roots' value set, for RayReader's O(1) check of
	// whether a World SVO leaf value names a chunk root rather than a
	// plain material value.
	rootOffsets map[uint32]bool
	// chunks holds the owned, currently un-borrowed in-memory Octree for
	// each tracked chunk.
	chunks map[ChunkCoord]*octree.Octree
	// borrowed marks chunks whose Octree has been handed to a worker.
	borrowed map[ChunkCoord]bool
}

// New returns an empty World. depth is the World SVO's fixed depth (so
// 1<<depth chunks span each axis of the window); chunkDepth is the depth
// every chunk Octree is expected to serialize at. depth must be >= 1.
func New(depth, chunkDepth uint8, buf *svobuf.Buffer, ser serialize.Serializer) (*World, error) {
	if depth == 0 {
		return nil, fmt.Errorf("worldsvo: depth must be >= 1, got 0")
	}
	w := &World{
		depth:      depth,
		chunkDepth: chunkDepth,
		buf:        buf,
		ser:        ser,
		sink:        telemetry.NopSink{},
		roots:       make(map[ChunkCoord]uint32),
		rootOffsets: make(map[uint32]bool),
		chunks:      make(map[ChunkCoord]*octree.Octree),
		borrowed:    make(map[ChunkCoord]bool),
	}
	w.tree = octree.NewOctree()
	w.tree.Expand(depth)
	return w, nil
}

// SetTelemetrySink installs the sink notified of recoverable
// OutOfSpace events raised while serializing chunks or the World SVO
// itself. Defaults to a no-op sink.
func (w *World) SetTelemetrySink(sink telemetry.Sink) { w.sink = sink }

func (w *World) recordIfOutOfSpace(err error) {
	if errors.Is(err, svo.ErrOutOfSpace) {
		w.sink.Record(telemetry.EventOutOfSpace, 1)
	}
}

// Origin returns the world's current logical origin chunk coordinate.
func (w *World) Origin() ChunkCoord { return w.origin }

// Depth returns the World SVO's fixed depth.
func (w *World) Depth() uint8 { return w.depth }

// ChunkDepth returns the depth every linked chunk Octree is expected to
// serialize at.
func (w *World) ChunkDepth() uint8 { return w.chunkDepth }

// WorldRootOffset returns the buffer offset of the World SVO's own
// serialized root, matching Buffer.RootPtr once a chunk has been set.
func (w *World) WorldRootOffset() (uint32, bool) { return w.worldRoot, w.haveRoot }

// halfWindow returns half the chunk window's side length; valid signed
// chunk offsets from origin lie in [-half, half) on every axis.
func (w *World) halfWindow() int32 { return int32(1) << (w.depth - 1) }

// slotFor converts an absolute chunk coordinate, relative to origin,
// into a World SVO tree position. ok is false if coord currently falls
// outside the addressable window.
func (w *World) slotFor(coord ChunkCoord) (octree.Position, bool) {
	half := w.halfWindow()
	rx := coord.X - w.origin.X
	ry := coord.Y - w.origin.Y
	rz := coord.Z - w.origin.Z
	if rx < -half || rx >= half || ry < -half || ry >= half || rz < -half || rz >= half {
		return octree.Position{}, false
	}
	return octree.Position{
		X: uint32(rx + half),
		Y: uint32(ry + half),
		Z: uint32(rz + half),
	}, true
}

// reserializeWorldTree writes the World SVO's own nodes into buf and
// atomically swaps the buffer's root_ptr header field to point at the
// new root, freeing the old root's range only after the swap — readers
// observe either the old or the new world root, never a partially
// written one, matching the single-aligned-word-write contract in §5.
func (w *World) reserializeWorldTree() error {
	newRoot, err := w.ser.Serialize(w.tree, w.buf)
	if err != nil {
		w.recordIfOutOfSpace(err)
		return err
	}
	oldRoot, hadRoot := w.worldRoot, w.haveRoot
	w.buf.SetRootPtr(newRoot)
	w.worldRoot = newRoot
	w.haveRoot = true
	if hadRoot {
		if err := w.ser.Free(w.buf, oldRoot); err != nil {
			return err
		}
	}
	return nil
}

// SetChunk links coord to tr: tr is serialized into the buffer, the
// World SVO's leaf slot for coord is updated to the new block's offset,
// and the World SVO is re-serialized. If coord already had a chunk
// linked, its old serialized block is freed after the new one is
// visible to readers (see reserializeWorldTree).
func (w *World) SetChunk(coord ChunkCoord, tr *octree.Octree) error {
	if w.borrowed[coord] {
		w.InvariantErrorf("worldsvo: SetChunk on borrowed chunk %+v", coord)
		return fmt.Errorf("worldsvo: SetChunk on borrowed chunk %+v", coord)
	}
	slot, ok := w.slotFor(coord)
	if !ok {
		return fmt.Errorf("worldsvo: chunk %+v is outside the current %dx window around origin %+v", coord, int32(1)<<w.depth, w.origin)
	}
	if tr.Depth() != w.chunkDepth {
		return fmt.Errorf("worldsvo: chunk %+v has depth %d, want %d", coord, tr.Depth(), w.chunkDepth)
	}
	newRoot, err := w.ser.Serialize(tr, w.buf)
	if err != nil {
		w.recordIfOutOfSpace(err)
		return err
	}
	oldRoot, had := w.roots[coord]
	if err := w.tree.Set(slot, w.depth, newRoot); err != nil {
		return err
	}
	if err := w.reserializeWorldTree(); err != nil {
		return err
	}
	if had {
		if err := w.ser.Free(w.buf, oldRoot); err != nil {
			return err
		}
	}
	if had {
		delete(w.rootOffsets, oldRoot)
	}
	w.roots[coord] = newRoot
	w.rootOffsets[newRoot] = true
	w.chunks[coord] = tr
	return nil
}

// RemoveChunk unlinks coord: its World SVO slot is cleared, its
// serialized block is freed, and it is dropped from the owned-chunk map.
// A no-op if coord has no linked chunk.
func (w *World) RemoveChunk(coord ChunkCoord) error {
	if w.borrowed[coord] {
		w.InvariantErrorf("worldsvo: RemoveChunk on borrowed chunk %+v", coord)
		return fmt.Errorf("worldsvo: RemoveChunk on borrowed chunk %+v", coord)
	}
	root, had := w.roots[coord]
	if !had {
		return nil
	}
	slot, ok := w.slotFor(coord)
	if ok {
		if err := w.tree.Remove(slot, w.depth); err != nil {
			return err
		}
		if err := w.reserializeWorldTree(); err != nil {
			return err
		}
	}
	if err := w.ser.Free(w.buf, root); err != nil {
		return err
	}
	delete(w.roots, coord)
	delete(w.rootOffsets, root)
	delete(w.chunks, coord)
	return nil
}

// HasChunk reports whether coord currently has a linked (and
// not-currently-borrowed) chunk.
func (w *World) HasChunk(coord ChunkCoord) bool {
	_, ok := w.chunks[coord]
	return ok
}

// Chunk returns the currently owned Octree linked to coord. ok is false
// if coord has no linked chunk, or if it is presently borrowed.
func (w *World) Chunk(coord ChunkCoord) (tr *octree.Octree, ok bool) {
	tr, ok = w.chunks[coord]
	return tr, ok
}

// IsChunkRootOffset reports whether offset currently names the
// serialized root of some linked chunk, as opposed to an ordinary
// node elsewhere in the buffer. Used by RayReader to tell a World SVO
// leaf's chunk-pointer value apart from a plain material value.
func (w *World) IsChunkRootOffset(offset uint32) bool { return w.rootOffsets[offset] }
