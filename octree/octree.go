package octree

import "fmt"

// Position is a voxel position within a chunk. For an operation at
// depth D, bits [D-1:0] of each axis address the chunk; bit k
// (MSB-first, i.e. bit D-1-layer at tree layer "layer") selects the
// octant at that layer, with bit 0 of the octant index meaning X, bit 1
// meaning Y, bit 2 meaning Z (see OctantIndex).
type Position struct {
	X, Y, Z uint32
}

// Octree is a per-chunk, writable tree with arena-allocated octants. It
// supports random voxel reads/writes in O(D) and grows upward as writes
// reach beyond its current depth.
type Octree struct {
	arena *Arena
	root  int32
	depth uint8
}

// NewOctree returns an empty tree (depth 0, no root allocated) backed by
// a fresh Arena.
func NewOctree() *Octree {
	return &Octree{arena: NewArena(0), root: -1, depth: 0}
}

// NewOctreeWithArena returns an empty tree sharing the given Arena with
// other trees (e.g. chunks that lend octants between each other is not
// supported, but sharing an Arena across independently-owned trees
// reduces allocator churn is a caller's prerogative).
func NewOctreeWithArena(a *Arena) *Octree {
	return &Octree{arena: a, root: -1, depth: 0}
}

// Depth reports the height of the tallest branch; a pure-leaf root has
// depth 1; an empty, just-constructed tree has depth 0.
func (t *Octree) Depth() uint8 { return t.depth }

// Arena exposes the backing arena, e.g. for diagnostics or invariant
// checks across multiple structures sharing one pool.
func (t *Octree) Arena() *Arena { return t.arena }

// RootIndex returns the arena index of the root octant, or -1 if the
// tree has no root yet.
func (t *Octree) RootIndex() int32 { return t.root }

func octantIndexAt(pos Position, bit uint8) uint8 {
	return OctantIndex((pos.X>>bit)&1, (pos.Y>>bit)&1, (pos.Z>>bit)&1)
}

// Expand idempotently grows the tree so it supports at least newDepth
// layers. Each new layer introduced wraps the prior root as child slot
//0 of a freshly allocated root, per the upward-growth invariant: a
// position previously addressed with fewer bits is unaffected because
// the new, higher-order bits default to zero.
func (t *Octree) Expand(newDepth uint8) {
	if t.depth == 0 {
		if newDepth == 0 {
			return
		}
		t.root = t.arena.Allocate()
		root, _ := t.arena.GetMut(t.root)
		root.Parent = -1
		t.depth = 1
	}
	for t.depth < newDepth {
		newRootIdx := t.arena.Allocate()
		newRoot, _ := t.arena.GetMut(newRootIdx)
		oldRoot, _ := t.arena.GetMut(t.root)
		oldRoot.Parent = newRootIdx
		oldRoot.ParentSlot = 0
		newRoot.Slots[0] = Slot{Kind: SlotChild, Child: t.root}
		newRoot.Parent = -1
		t.root = newRootIdx
		t.depth++
	}
}

// Get performs a strict lookup at the requested depth. ok is false if
// any ancestor slot is empty, or if a leaf is encountered at a layer
// above the target depth (coarse leaves do not implicitly answer for
// finer-depth queries).
func (t *Octree) Get(pos Position, depth uint8) (value uint32, ok bool) {
	if depth == 0 || t.depth == 0 || depth > t.depth {
		return 0, false
	}
	cur := t.root
	for layer := uint8(0); layer < depth; layer++ {
		bit := depth - 1 - layer
		idx := octantIndexAt(pos, bit)
		oct, err := t.arena.Get(cur)
		if err != nil {
			return 0, false
		}
		slot := oct.Slots[idx]
		if layer == depth-1 {
			if slot.Kind == SlotLeaf {
				return slot.Value, true
			}
			return 0, false
		}
		if slot.Kind != SlotChild {
			return 0, false
		}
		cur = slot.Child
	}
	return 0, false
}

// Set inserts or updates a leaf at pos/depth. If depth exceeds the
// tree's current depth, the tree grows upward first (see Expand).
// Setting value to EmptyVoxel (0) removes the leaf; see Remove.
func (t *Octree) Set(pos Position, depth uint8, value uint32) error {
	if depth == 0 {
		return fmt.Errorf("octree: depth must be >= 1, got 0")
	}
	if value == 0 {
		return t.remove(pos, depth)
	}
	t.Expand(depth)
	cur := t.root
	for layer := uint8(0); layer < depth-1; layer++ {
		bit := depth - 1 - layer
		idx := octantIndexAt(pos, bit)
		oct, err := t.arena.GetMut(cur)
		if err != nil {
			return err
		}
		if oct.Slots[idx].Kind == SlotChild {
			cur = oct.Slots[idx].Child
			continue
		}
		// SlotEmpty or SlotLeaf: materialize a fresh child octant. A
		// coarse leaf found above the target depth is overwritten; it
		// does not seed the new child's slots (see Octree.Get, which
		// treats a leaf above the target depth as empty — writes are
		// consistent with that).
		//
		// Allocate may grow the arena's backing slice, which would
		// invalidate the oct pointer obtained above, so oct is
		// re-fetched afterward rather than written through directly.
		childIdx := t.arena.Allocate()
		oct, err = t.arena.GetMut(cur)
		if err != nil {
			return err
		}
		child, err := t.arena.GetMut(childIdx)
		if err != nil {
			return err
		}
		child.Parent = cur
		child.ParentSlot = idx
		oct.Slots[idx] = Slot{Kind: SlotChild, Child: childIdx}
		cur = childIdx
	}
	oct, err := t.arena.GetMut(cur)
	if err != nil {
		return err
	}
	idx := octantIndexAt(pos, 0)
	if oct.Slots[idx].Kind == SlotChild {
		// A coarser write is replacing an entire subtree with one leaf;
		// release it first so its octants don't end up neither reachable
		// nor on the free list.
		if err := t.releaseSubtree(oct.Slots[idx].Child); err != nil {
			return err
		}
		oct, err = t.arena.GetMut(cur)
		if err != nil {
			return err
		}
	}
	oct.Slots[idx] = Slot{Kind: SlotLeaf, Value: value}
	return nil
}

// releaseSubtree recursively releases root and every octant reachable
// from it back to the arena, depth-first post-order so a parent is
// never released while a child reference into it is still pending.
func (t *Octree) releaseSubtree(root int32) error {
	oct, err := t.arena.Get(root)
	if err != nil {
		return err
	}
	children := oct.Slots
	for _, s := range children {
		if s.Kind == SlotChild {
			if err := t.releaseSubtree(s.Child); err != nil {
				return err
			}
		}
	}
	return t.arena.Release(root)
}

// Remove clears the leaf at pos/depth; equivalent to
// Set(pos, depth, EmptyVoxel). Removing along a path that does not
// exist is a no-op. If clearing a slot leaves its containing octant
// fully empty, that octant is released and its parent's slot cleared,
// recursively up the chain (the root is never released, so an entirely
// empty tree retains one empty root octant).
func (t *Octree) Remove(pos Position, depth uint8) error {
	return t.remove(pos, depth)
}

func (t *Octree) remove(pos Position, depth uint8) error {
	if depth == 0 || t.depth == 0 || depth > t.depth {
		return nil
	}
	path := make([]int32, 0, depth)
	cur := t.root
	for layer := uint8(0); layer < depth-1; layer++ {
		bit := depth - 1 - layer
		idx := octantIndexAt(pos, bit)
		oct, err := t.arena.Get(cur)
		if err != nil {
			return nil
		}
		slot := oct.Slots[idx]
		if slot.Kind != SlotChild {
			return nil
		}
		path = append(path, cur)
		cur = slot.Child
	}
	idx := octantIndexAt(pos, 0)
	oct, err := t.arena.GetMut(cur)
	if err != nil {
		return nil
	}
	if oct.Slots[idx].Kind == SlotEmpty {
		return nil
	}
	if oct.Slots[idx].Kind == SlotChild {
		// A coarser clear is discarding an entire subtree; release it
		// first so its octants don't end up neither reachable nor on the
		// free list.
		if err := t.releaseSubtree(oct.Slots[idx].Child); err != nil {
			return err
		}
		oct, err = t.arena.GetMut(cur)
		if err != nil {
			return err
		}
	}
	oct.Slots[idx] = Slot{}
	path = append(path, cur)

	for i := len(path) - 1; i >= 0; i-- {
		octIdx := path[i]
		o, err := t.arena.Get(octIdx)
		if err != nil {
			return err
		}
		if !o.IsEmpty() || octIdx == t.root {
			break
		}
		parent := o.Parent
		parentSlot := o.ParentSlot
		if err := t.arena.Release(octIdx); err != nil {
			return err
		}
		parentOct, err := t.arena.GetMut(parent)
		if err != nil {
			return err
		}
		parentOct.Slots[parentSlot] = Slot{}
	}
	return nil
}

// Compact releases all unreachable arena entries and renumbers the
// reachable ones densely; the Arena object is kept, but its storage is
// rebuilt into fresh slices (see Arena.compact). Semantically equivalent
// to a rebuild. Safe to call on an empty tree.
func (t *Octree) Compact() error {
	if t.depth == 0 {
		return nil
	}
	order := make([]int32, 0, t.arena.Len())
	var visit func(idx int32) error
	visit = func(idx int32) error {
		order = append(order, idx)
		oct, err := t.arena.Get(idx)
		if err != nil {
			return err
		}
		for _, s := range oct.Slots {
			if s.Kind == SlotChild {
				if err := visit(s.Child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(t.root); err != nil {
		return err
	}
	_, oldToNew := t.arena.compact(order)
	t.root = oldToNew[t.root]
	for _, newIdx := range oldToNew {
		oct, err := t.arena.GetMut(newIdx)
		if err != nil {
			return err
		}
		if oct.Parent != -1 {
			oct.Parent = oldToNew[oct.Parent]
		}
		for i := range oct.Slots {
			if oct.Slots[i].Kind == SlotChild {
				oct.Slots[i].Child = oldToNew[oct.Slots[i].Child]
			}
		}
	}
	return nil
}
