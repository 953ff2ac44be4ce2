package worldsvo

import (
	"github.com/ashgrove-games/svo/raytrace"
	"github.com/ashgrove-games/svo/svobuf"
)

// RayReader wraps a format reader so that a single raytrace.Traverse
// call descends through the World SVO and straight on into whichever
// chunk SVO a leaf names, treating the two trees as one combined tree:
// spec.md §4.6's World SVO invariant requires that "reading the world
// SVO with the raytracer must recursively descend through chunk SVOs
// as if they were one tree." Both trees share the same serialized node
// format, so the only thing distinguishing a World SVO leaf from an
// ordinary material leaf is whether its value happens to be a
// currently-linked chunk's root offset; World.IsChunkRootOffset is the
// authority for that check.
type RayReader struct {
	World *World
	Inner raytrace.NodeReader
}

// Descriptor implements raytrace.NodeReader.
func (r RayReader) Descriptor(buf *svobuf.Buffer, nodeOffset uint32, c int) (isChild, isLeaf bool, childTarget, value uint32, err error) {
	isChild, isLeaf, childTarget, value, err = r.Inner.Descriptor(buf, nodeOffset, c)
	if err != nil || !isLeaf {
		return isChild, isLeaf, childTarget, value, err
	}
	if r.World.IsChunkRootOffset(value) {
		// This "leaf" is really a pointer into a chunk SVO: keep
		// descending instead of terminating the traversal here.
		return true, false, value, 0, nil
	}
	return isChild, isLeaf, childTarget, value, nil
}
