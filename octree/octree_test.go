package octree_test

import (
	"testing"

	"github.com/ashgrove-games/svo/octree"
)

func TestSetGetRoundTrip(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 4, Y: 4, Z: 4}
	if err := tr.Set(pos, 3, 7); err != nil {
		t.Fatal(err)
	}
	got, ok := tr.Get(pos, 3)
	if !ok || got != 7 {
		t.Fatalf("Get after Set: got (%d,%v), want (7,true)", got, ok)
	}
}

func TestGetStrictDepthRejectsCoarseLeaf(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 0, Y: 0, Z: 0}
	if err := tr.Set(pos, 1, 9); err != nil {
		t.Fatal(err)
	}
	// A deeper query through the same path must not inherit the coarse leaf.
	if _, ok := tr.Get(pos, 2); ok {
		t.Fatal("expected Get at deeper depth through a coarse leaf to report empty")
	}
}

func TestEmptyCleanupReleasesSubtree(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 1, Y: 1, Z: 1}
	if err := tr.Set(pos, 2, 3); err != nil {
		t.Fatal(err)
	}
	before := tr.Arena().NumFree()
	if err := tr.Set(pos, 2, 0); err != nil {
		t.Fatal(err)
	}
	after := tr.Arena().NumFree()
	if after <= before {
		t.Fatalf("expected free list to grow after clearing the last leaf of a subtree, before=%d after=%d", before, after)
	}
	if _, ok := tr.Get(pos, 2); ok {
		t.Fatal("expected Get to report empty after removal")
	}
}

// TestMixedDepthOverwriteReleasesSubtree covers a coarser write landing
// on a slot that already holds a deeper subtree: Set at depth 2
// allocates a child octant under root.Slots[1], then Set at depth 1
// against the same position overwrites root.Slots[1] directly with a
// leaf. The child octant must be released back to the arena, not
// merely dropped: otherwise it is neither reachable from root nor on
// the free list.
func TestMixedDepthOverwriteReleasesSubtree(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 3, Y: 0, Z: 0}
	if err := tr.Set(pos, 2, 7); err != nil {
		t.Fatal(err)
	}
	beforeFree := tr.Arena().NumFree()
	beforeLen := tr.Arena().Len()

	if err := tr.Set(pos, 1, 9); err != nil {
		t.Fatal(err)
	}

	afterFree := tr.Arena().NumFree()
	if afterFree <= beforeFree {
		t.Fatalf("expected the overwritten child octant to land on the free list, before=%d after=%d", beforeFree, afterFree)
	}
	if got := tr.Arena().Len() - beforeLen; got != 0 {
		t.Fatalf("expected no new arena growth from this overwrite, arena grew by %d", got)
	}

	got, ok := tr.Get(pos, 1)
	if !ok || got != 9 {
		t.Fatalf("Get(pos, 1) = (%d,%v), want (9,true)", got, ok)
	}
	if _, ok := tr.Get(pos, 2); ok {
		t.Fatal("expected Get at the old, deeper depth to report empty after the overwrite discarded that subtree")
	}
}

func TestRemoveOnAbsentPathIsNoop(t *testing.T) {
	tr := octree.NewOctree()
	if err := tr.Remove(octree.Position{X: 5, Y: 5, Z: 5}, 3); err != nil {
		t.Fatalf("Remove on empty tree must be a no-op, got error: %v", err)
	}
}

func TestExpandGrowsUpwardPreservingContent(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 2, Y: 1, Z: 0}
	if err := tr.Set(pos, 2, 42); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set(octree.Position{X: 7, Y: 7, Z: 7}, 4, 99); err != nil {
		t.Fatal(err)
	}
	if tr.Depth() != 4 {
		t.Fatalf("expected depth to grow to 4, got %d", tr.Depth())
	}
	// Each new root holds the former root in slot 0, so the original
	// voxel keeps its coordinates and is now addressed at the new depth
	// (the added high-order bits are zero).
	got, ok := tr.Get(pos, 4)
	if !ok || got != 42 {
		t.Fatalf("expected original content preserved after upward growth: got (%d,%v)", got, ok)
	}
}

func TestSetZeroValueRemoves(t *testing.T) {
	tr := octree.NewOctree()
	pos := octree.Position{X: 3, Y: 3, Z: 3}
	if err := tr.Set(pos, 2, 5); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set(pos, 2, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Get(pos, 2); ok {
		t.Fatal("expected value to read back empty after setting to EmptyVoxel")
	}
}

func TestCompactReproducesSameContent(t *testing.T) {
	tr := octree.NewOctree()
	type write struct {
		pos   octree.Position
		depth uint8
		val   uint32
	}
	writes := []write{
		{octree.Position{X: 0, Y: 0, Z: 0}, 3, 1},
		{octree.Position{X: 7, Y: 7, Z: 7}, 3, 2},
		{octree.Position{X: 3, Y: 2, Z: 1}, 3, 3},
	}
	for _, w := range writes {
		if err := tr.Set(w.pos, w.depth, w.val); err != nil {
			t.Fatal(err)
		}
	}
	// Create and release some garbage to ensure Compact has something to do.
	if err := tr.Set(octree.Position{X: 4, Y: 4, Z: 4}, 3, 9); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set(octree.Position{X: 4, Y: 4, Z: 4}, 3, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Compact(); err != nil {
		t.Fatal(err)
	}
	if tr.Arena().NumFree() != 0 {
		t.Fatalf("expected no free entries after Compact, got %d", tr.Arena().NumFree())
	}
	for _, w := range writes {
		got, ok := tr.Get(w.pos, w.depth)
		if !ok || got != w.val {
			t.Fatalf("after Compact: Get(%+v,%d) = (%d,%v), want (%d,true)", w.pos, w.depth, got, ok, w.val)
		}
	}
}

func TestPathOutOfRangeIsProgrammingError(t *testing.T) {
	tr := octree.NewOctree()
	defer func() {
		if recover() == nil {
			t.Fatal("expected Set with depth 0 to panic-or-error, got neither")
		}
	}()
	if err := tr.Set(octree.Position{}, 0, 1); err != nil {
		panic(err)
	}
}
