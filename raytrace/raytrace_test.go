package raytrace_test

import (
	"testing"

	"github.com/soypat/geometry/ms3"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/raytrace"
	"github.com/ashgrove-games/svo/serialize"
	"github.com/ashgrove-games/svo/svobuf"
)

// opaqueOracle reports every value as an opaque, flat-colored material.
type opaqueOracle struct{}

func (opaqueOracle) Lookup(value uint32, face svo.Face, uv [2]float32) (color [4]float32, translucent bool) {
	return [4]float32{1, 1, 1, 1}, false
}

// translucentOracle reports every value as translucent.
type translucentOracle struct{}

func (translucentOracle) Lookup(value uint32, face svo.Face, uv [2]float32) (color [4]float32, translucent bool) {
	return [4]float32{1, 1, 1, 0.5}, true
}

func buildAndSerialize(t *testing.T, ser serialize.Serializer, depth uint8, writes map[[3]uint32]uint32) (*svobuf.Buffer, uint32) {
	t.Helper()
	tr := octree.NewOctree()
	for p, v := range writes {
		if err := tr.Set(octree.Position{X: p[0], Y: p[1], Z: p[2]}, depth, v); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := svobuf.New(1 << 14)
	if err != nil {
		t.Fatal(err)
	}
	buf.SetScale(1)
	root, err := ser.Serialize(tr, buf)
	if err != nil {
		t.Fatal(err)
	}
	return buf, root
}

func TestTraverseESVOSingleVoxelHit(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewESVOSerializer(), 3, map[[3]uint32]uint32{
		{4, 4, 4}: 7,
	})
	ray := raytrace.Ray{
		Origin: ms3.Vec{X: -1, Y: 0.5 + 1.0/16, Z: 0.5 + 1.0/16},
		Dir:    ms3.Vec{X: 1, Y: 0, Z: 0},
	}
	hit, err := raytrace.Traverse(buf, raytrace.ESVOReader{}, root, ray, raytrace.Config{}, opaqueOracle{})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T == raytrace.Miss {
		t.Fatal("expected HIT, got MISS")
	}
	if hit.Value != 7 {
		t.Fatalf("Value = %d, want 7", hit.Value)
	}
	if hit.Face != svo.FaceNegX {
		t.Fatalf("Face = %v, want -X (ray travels +X into the voxel)", hit.Face)
	}
}

func TestTraverseCSVOSingleVoxelHit(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewCSVOSerializer(), 3, map[[3]uint32]uint32{
		{4, 4, 4}: 7,
	})
	ray := raytrace.Ray{
		Origin: ms3.Vec{X: -1, Y: 0.5 + 1.0/16, Z: 0.5 + 1.0/16},
		Dir:    ms3.Vec{X: 1, Y: 0, Z: 0},
	}
	hit, err := raytrace.Traverse(buf, raytrace.CSVOReader{}, root, ray, raytrace.Config{}, opaqueOracle{})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T == raytrace.Miss {
		t.Fatal("expected HIT, got MISS")
	}
	if hit.Value != 7 {
		t.Fatalf("Value = %d, want 7", hit.Value)
	}
}

func TestTraverseMissPastMaxDst(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewESVOSerializer(), 5, map[[3]uint32]uint32{
		{31, 31, 31}: 1,
	})
	const s = 0.57735027 // 1/sqrt(3)
	ray := raytrace.Ray{
		Origin: ms3.Vec{X: 0.001, Y: 0.001, Z: 0.001},
		Dir:    ms3.Vec{X: s, Y: s, Z: s},
		MaxDst: 0.1,
	}
	hit, err := raytrace.Traverse(buf, raytrace.ESVOReader{}, root, ray, raytrace.Config{}, opaqueOracle{})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T != raytrace.Miss {
		t.Fatalf("expected MISS within a tiny max_dst, got hit %+v", hit)
	}
}

func TestTraverseMissClearOfOccupiedVoxel(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewESVOSerializer(), 3, map[[3]uint32]uint32{
		{0, 0, 0}: 1,
	})
	ray := raytrace.Ray{
		Origin: ms3.Vec{X: -1, Y: 0.9, Z: 0.9},
		Dir:    ms3.Vec{X: 1, Y: 0, Z: 0},
	}
	hit, err := raytrace.Traverse(buf, raytrace.ESVOReader{}, root, ray, raytrace.Config{}, opaqueOracle{})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T != raytrace.Miss {
		t.Fatalf("expected MISS for a ray clear of the only occupied voxel, got %+v", hit)
	}
}

func TestTraverseTranslucentRunCollapsesToFirstHit(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewESVOSerializer(), 3, map[[3]uint32]uint32{
		{2, 4, 4}: 9,
		{3, 4, 4}: 9,
		{4, 4, 4}: 9,
	})
	ray := raytrace.Ray{
		Origin:          ms3.Vec{X: -1, Y: 0.5 + 1.0/16, Z: 0.5 + 1.0/16},
		Dir:             ms3.Vec{X: 1, Y: 0, Z: 0},
		CastTranslucent: true,
	}
	hit, err := raytrace.Traverse(buf, raytrace.ESVOReader{}, root, ray, raytrace.Config{}, translucentOracle{})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T == raytrace.Miss {
		t.Fatal("expected the translucent run to collapse into a single hit, got MISS")
	}
	if hit.Value != 9 {
		t.Fatalf("Value = %d, want 9", hit.Value)
	}
	// The reported hit must be the first cell of the run (x=2/8), not a
	// later one (x=3/8 or x=4/8): a wrong implementation that returns on
	// whichever cell happens to break the loop would report a larger t.
	const firstCellEntryT = 2.0 / 8
	if hit.T > firstCellEntryT+0.05 {
		t.Fatalf("t = %v, want close to the first cell's entry (%v)", hit.T, firstCellEntryT)
	}
}

func TestTraverseOpaqueStopsBeforeTranslucentNeverReached(t *testing.T) {
	buf, root := buildAndSerialize(t, serialize.NewESVOSerializer(), 3, map[[3]uint32]uint32{
		{3, 4, 4}: 5, // opaque, closer to the ray origin
		{5, 4, 4}: 9, // would be translucent, but unreached
	})
	ray := raytrace.Ray{
		Origin:          ms3.Vec{X: -1, Y: 0.5 + 1.0/16, Z: 0.5 + 1.0/16},
		Dir:             ms3.Vec{X: 1, Y: 0, Z: 0},
		CastTranslucent: true,
	}
	hit, err := raytrace.Traverse(buf, raytrace.ESVOReader{}, root, ray, raytrace.Config{},
		stubOracle{opaqueValues: map[uint32]bool{5: true}})
	if err != nil {
		t.Fatal(err)
	}
	if hit.T == raytrace.Miss {
		t.Fatal("expected a hit on the nearer opaque voxel")
	}
	if hit.Value != 5 {
		t.Fatalf("Value = %d, want 5 (the nearer opaque voxel)", hit.Value)
	}
}

type stubOracle struct {
	opaqueValues map[uint32]bool
}

func (s stubOracle) Lookup(value uint32, face svo.Face, uv [2]float32) (color [4]float32, translucent bool) {
	if s.opaqueValues[value] {
		return [4]float32{1, 1, 1, 1}, false
	}
	return [4]float32{1, 1, 1, 0.5}, true
}
