package octree

// SlotKind discriminates the three states a child slot can be in.
type SlotKind uint8

const (
	// SlotEmpty is a child slot with no content.
	SlotEmpty SlotKind = iota
	// SlotChild is a child slot holding a reference to another Octant
	// (its arena index).
	SlotChild
	// SlotLeaf is a child slot holding a voxel value directly.
	SlotLeaf
)

// Slot is one of an Octant's eight child entries.
type Slot struct {
	Kind  SlotKind
	Child int32  // valid when Kind == SlotChild: arena index of the child octant.
	Value uint32 // valid when Kind == SlotLeaf: the voxel value.
}

// Octant holds eight ordered child slots, indexed by a 3-bit octant
// index where bit 0 selects X, bit 1 selects Y, bit 2 selects Z. Every
// octant except a tree's root carries a back-reference to its parent
// arena index and the slot index it occupies there; the back-reference
// is used only for editing (collapsing empty subtrees on the way back
// up), never for traversal.
type Octant struct {
	Slots      [8]Slot
	Parent     int32 // arena index of parent octant; -1 for a root.
	ParentSlot uint8 // index [0,8) this octant occupies in Parent.
}

// NewOctant returns an Octant with no parent and all slots empty.
func NewOctant() Octant {
	return Octant{Parent: -1}
}

// IsEmpty reports whether every slot of o is SlotEmpty.
func (o *Octant) IsEmpty() bool {
	for _, s := range o.Slots {
		if s.Kind != SlotEmpty {
			return false
		}
	}
	return true
}

// OctantIndex computes the 3-bit octant index for one layer of position
// addressing, given the bit (0 or 1) of each axis at that layer.
func OctantIndex(xBit, yBit, zBit uint32) uint8 {
	return uint8(xBit | yBit<<1 | zBit<<2)
}
