package worldsvo

import "github.com/ashgrove-games/svo/octree"

// Shift rotates the World SVO's window by delta chunks, per spec.md
// §4.6: the logical origin moves by delta, every currently-linked
// chunk's leaf pointer moves to its new slot, chunks that fall outside
// the window on the far side are dropped (their serialized block freed,
// not copied anywhere), and the now-vacated near side is simply absent
// pending generation — callers discover it via HasChunk returning
// false, the same as any other ungenerated coordinate.
//
// "Chunk contents are never copied; only one pointer per occupied slot
// is moved": this rebuilds the (lightweight) World SVO tree structure,
// but every leaf value written into it is the existing, already-
// serialized chunk root offset — no chunk's SVO block bytes are
// touched, read, or rewritten.
func (w *World) Shift(delta ChunkCoord) error {
	newOrigin := ChunkCoord{
		X: w.origin.X + delta.X,
		Y: w.origin.Y + delta.Y,
		Z: w.origin.Z + delta.Z,
	}
	half := w.halfWindow()

	type kept struct {
		coord ChunkCoord
		root  uint32
	}
	var survivors []kept
	var dropped []ChunkCoord
	for coord, root := range w.roots {
		if w.borrowed[coord] {
			// A borrowed chunk has no World SVO slot to move right now;
			// its coordinate is re-checked against the window when it is
			// next Returned (SetChunk validates slotFor itself).
			continue
		}
		rx := coord.X - newOrigin.X
		ry := coord.Y - newOrigin.Y
		rz := coord.Z - newOrigin.Z
		if rx < -half || rx >= half || ry < -half || ry >= half || rz < -half || rz >= half {
			dropped = append(dropped, coord)
			continue
		}
		survivors = append(survivors, kept{coord, root})
	}

	newTree := octree.NewOctree()
	newTree.Expand(w.depth)
	for _, s := range survivors {
		rx := s.coord.X - newOrigin.X
		ry := s.coord.Y - newOrigin.Y
		rz := s.coord.Z - newOrigin.Z
		pos := octree.Position{X: uint32(rx + half), Y: uint32(ry + half), Z: uint32(rz + half)}
		if err := newTree.Set(pos, w.depth, s.root); err != nil {
			return err
		}
	}

	oldTree := w.tree
	w.tree = newTree
	w.origin = newOrigin
	if err := w.reserializeWorldTree(); err != nil {
		w.tree = oldTree
		w.origin.X -= delta.X
		w.origin.Y -= delta.Y
		w.origin.Z -= delta.Z
		return err
	}

	for _, coord := range dropped {
		root := w.roots[coord]
		delete(w.roots, coord)
		delete(w.chunks, coord)
		if err := w.ser.Free(w.buf, root); err != nil {
			return err
		}
	}
	return nil
}
