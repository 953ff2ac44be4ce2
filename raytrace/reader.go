package raytrace

import (
	"encoding/binary"

	"github.com/ashgrove-games/svo/serialize"
	"github.com/ashgrove-games/svo/svobuf"
)

// NodeReader abstracts reading one octant's descriptor out of a
// serialized Buffer, in whichever wire format it was written: the
// PUSH/ADVANCE/POP loop in Traverse never touches buffer bytes directly,
// so the same traversal core serves both ESVO and CSVO blocks (spec.md
// §4.5: "both formats are semantically equivalent; the raytracer has two
// implementations").
//
// For a child slot, childTarget is the offset of the next node to
// descend into. For a leaf slot, value is the voxel value itself (ESVO
// and CSVO both ultimately store or reference a plain value; resolving
// CSVO's pre-leaf material-section indirection happens inside
// Descriptor so Traverse never needs format-specific follow-up reads).
type NodeReader interface {
	Descriptor(buf *svobuf.Buffer, nodeOffset uint32, c int) (isChild, isLeaf bool, childTarget, value uint32, err error)
}

// ESVOReader reads the fixed-width ESVO node layout described in §6.
type ESVOReader struct{}

func (ESVOReader) Descriptor(buf *svobuf.Buffer, nodeOffset uint32, c int) (isChild, isLeaf bool, childTarget, value uint32, err error) {
	words, err := buf.ReadWords(int(nodeOffset), serialize.ESVONodeWords)
	if err != nil {
		return false, false, 0, 0, err
	}
	mask := uint16(words[0] & 0xFFFF)
	isLeaf = mask&(1<<uint(c)) != 0
	isChild = mask&(1<<uint(8+c)) != 0
	if !isLeaf && !isChild {
		return false, false, 0, 0, nil
	}
	ptrWord := int(nodeOffset) + 4 + c
	target := uint32(serialize.DecodeESVOPointer(words[4+c], ptrWord))
	if isChild {
		return true, false, target, 0, nil
	}
	leafWords, err := buf.ReadWords(int(target), 1)
	if err != nil {
		return false, false, 0, 0, err
	}
	return false, true, 0, leafWords[0], nil
}

// CSVOReader reads the variable-width, byte-packed CSVO node layout
// described in §6, including the compact pre-leaf + material-section
// shape documented in DESIGN.md.
type CSVOReader struct{}

func csvoWidthForClass(class uint8) int { return [4]int{0, 1, 2, 4}[class&0x3] }

func (CSVOReader) Descriptor(buf *svobuf.Buffer, nodeOffset uint32, c int) (isChild, isLeaf bool, childTarget, value uint32, err error) {
	tagByte, err := buf.ReadBytes(int(nodeOffset), 1)
	if err != nil {
		return false, false, 0, 0, err
	}
	if tagByte[0] == 1 { // pre-leaf
		hdr, err := buf.ReadBytes(int(nodeOffset), 4)
		if err != nil {
			return false, false, 0, 0, err
		}
		occupancy := hdr[1]
		if occupancy&(1<<uint(c)) == 0 {
			return false, false, 0, 0, nil
		}
		matPtr := int(hdr[2]) | int(hdr[3])<<8
		b, err := buf.ReadBytes(matPtr+1+c, 1)
		if err != nil {
			return false, false, 0, 0, err
		}
		return false, true, 0, uint32(b[0]), nil
	}
	hdr, err := buf.ReadBytes(int(nodeOffset), 4)
	if err != nil {
		return false, false, 0, 0, err
	}
	leafBitmap := hdr[1]
	header := binary.LittleEndian.Uint16(hdr[2:4])
	pos := int(nodeOffset) + 4
	for i := 0; i < c; i++ {
		class := uint8(header>>uint(i*2)) & 0x3
		pos += csvoWidthForClass(class)
	}
	class := uint8(header>>uint(c*2)) & 0x3
	w := csvoWidthForClass(class)
	if w == 0 {
		return false, false, 0, 0, nil
	}
	fieldBytes, err := buf.ReadBytes(pos, w)
	if err != nil {
		return false, false, 0, 0, err
	}
	var padded [4]byte
	copy(padded[:], fieldBytes)
	v := binary.LittleEndian.Uint32(padded[:])
	isLeaf = leafBitmap&(1<<uint(c)) != 0
	if isLeaf {
		return false, true, 0, v, nil
	}
	return true, false, v, 0, nil
}
