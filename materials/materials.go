// Package materials implements the flat, index-addressed materials
// table described in spec.md §6: voxel values are opaque indices into
// this table, owned and populated by an external collaborator (asset
// pipeline), never interpreted by the octree/serialize/worldsvo layers
// themselves.
package materials

import (
	"fmt"

	svo "github.com/ashgrove-games/svo"
)

// Record is one entry of the materials table, bit-exact with the §6
// host/device shared layout.
type Record struct {
	SpecularPow      float32
	SpecularStrength float32
	TexTop           int32
	TexSide          int32
	TexBottom        int32
	TexTopNormal     int32
	TexSideNormal    int32
	TexBottomNormal  int32
}

// Table is the materials table: records addressed by index, with index
// 0 reserved. The wire format in §6 has no explicit alpha/translucency
// field, so the table keeps each record's alpha in a separate slice,
// read through Alpha; a record with alpha < 1 is translucent.
type Table struct {
	records []Record
	alpha   []float32
}

// New returns a Table with index 0 reserved as empty/invalid, per §6.
func New() *Table {
	return &Table{
		records: []Record{{}},
		alpha:   []float32{1},
	}
}

// Add appends a new opaque (alpha=1) record and returns its index.
func (t *Table) Add(r Record) uint32 {
	return t.AddTranslucent(r, 1)
}

// AddTranslucent appends a new record with the given alpha (1 = fully
// opaque, 0 = fully transparent) and returns its index.
func (t *Table) AddTranslucent(r Record, alpha float32) uint32 {
	t.records = append(t.records, r)
	t.alpha = append(t.alpha, alpha)
	return uint32(len(t.records) - 1)
}

// Get returns the record at index, or an error if index is out of range
// or is the reserved empty index 0.
func (t *Table) Get(index uint32) (Record, error) {
	if index == 0 || int(index) >= len(t.records) {
		return Record{}, fmt.Errorf("materials: index %d out of range [1,%d)", index, len(t.records))
	}
	return t.records[index], nil
}

// Translucent reports whether index's material has alpha < 1.
func (t *Table) Translucent(index uint32) bool {
	if int(index) >= len(t.alpha) {
		return false
	}
	return t.alpha[index] < 1
}

// Alpha returns index's alpha value, or 1 (opaque) if out of range.
func (t *Table) Alpha(index uint32) float32 {
	if int(index) >= len(t.alpha) {
		return 1
	}
	return t.alpha[index]
}

// Len returns the number of records, including the reserved index 0.
func (t *Table) Len() int { return len(t.records) }

// Lookup implements raytrace.MaterialOracle: a flat, untextured color
// derived from alpha alone. Real asset pipelines are expected to wrap or
// replace this with one that samples tex_top/tex_side/tex_bottom by
// face, but every build needs some oracle wired to the traversal, and
// this is the one grounded directly in the table itself.
func (t *Table) Lookup(value uint32, face svo.Face, uv [2]float32) (color [4]float32, translucent bool) {
	a := t.Alpha(value)
	return [4]float32{1, 1, 1, a}, a < 1
}
