package serialize

import (
	"fmt"

	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/svobuf"
)

// ESVONodeWords is the fixed size, in words, of one ESVO node: 4 header
// words (8 half-word child descriptors, two per word, low half first)
// followed by 8 pointer words, one per child slot.
const ESVONodeWords = 12

// ptrRelativeBit marks a pointer word as a relative offset (set) versus
// an absolute word index (clear), per the bit-exact §6 contract.
const ptrRelativeBit = uint32(1) << 31

// ESVOSerializer converts an Octree into the fixed-width ESVO wire
// format: a depth-first, post-order, child-first walk writes each
// child's node (or, for a leaf, a single-word value record) before the
// octant that references it, so every intra-chunk pointer is a small
// relative offset and the whole block stays relocatable.
//
// The header's eight half-word descriptors (§6) all carry the same
// 16-bit (leaf-mask, child-mask) value for this octant — the layout
// reserves eight slots (matching the real ESVO format's one-descriptor-
// per-sibling page layout) but, since this octree models one octant per
// node rather than a page of siblings, the single mask value is simply
// replicated across all eight to keep the slot count honest without
// encoding information nowhere.
type ESVOSerializer struct{}

// NewESVOSerializer returns a ready-to-use ESVOSerializer. It carries no
// state between calls.
func NewESVOSerializer() *ESVOSerializer { return &ESVOSerializer{} }

func encodeESVOPointer(ownWord, targetWord int) uint32 {
	offset := int64(targetWord) - int64(ownWord)
	return truncateSigned(offset, 31) | ptrRelativeBit
}

func decodeESVOPointer(ptr uint32, ownWord int) int {
	if ptr&ptrRelativeBit != 0 {
		offset := signExtend(ptr&(ptrRelativeBit-1), 31)
		return ownWord + int(offset)
	}
	return int(ptr & (ptrRelativeBit - 1))
}

// DecodeESVOPointer resolves one of the 8 pointer words of an ESVO node
// (at word ownWord) to the absolute word offset it refers to, per §6's
// relative/absolute high-bit discriminated encoding. Exported so the
// raytracer can walk a serialized ESVO block directly, without going
// through Deserialize.
func DecodeESVOPointer(ptr uint32, ownWord int) int { return decodeESVOPointer(ptr, ownWord) }

// Serialize implements Serializer.
func (ESVOSerializer) Serialize(tr *octree.Octree, buf *svobuf.Buffer) (uint32, error) {
	if tr.Depth() == 0 {
		return 0, fmt.Errorf("serialize: cannot serialize an empty (depth 0) octree")
	}
	var walk func(arenaIdx int32) (int, error)
	walk = func(arenaIdx int32) (int, error) {
		oct, err := tr.Arena().Get(arenaIdx)
		if err != nil {
			return 0, err
		}
		slots := oct.Slots // copy: oct may be invalidated by nested allocations below.
		nodeOffset, err := buf.Allocator().Alloc(ESVONodeWords)
		if err != nil {
			return 0, err
		}
		var mask uint16
		var ptrs [8]uint32
		for c := 0; c < 8; c++ {
			slot := slots[c]
			ptrWord := nodeOffset + 4 + c
			switch slot.Kind {
			case octree.SlotLeaf:
				mask |= 1 << uint(c)
				leafOffset, err := buf.Allocator().Alloc(1)
				if err != nil {
					return 0, err
				}
				if err := buf.WriteWords(leafOffset, []uint32{slot.Value}); err != nil {
					return 0, err
				}
				ptrs[c] = encodeESVOPointer(ptrWord, leafOffset)
			case octree.SlotChild:
				mask |= 1 << uint(8+c)
				childOffset, err := walk(slot.Child)
				if err != nil {
					return 0, err
				}
				ptrs[c] = encodeESVOPointer(ptrWord, childOffset)
			}
		}
		var words [ESVONodeWords]uint32
		headerWord := uint32(mask) | uint32(mask)<<16
		for i := 0; i < 4; i++ {
			words[i] = headerWord
		}
		for c := 0; c < 8; c++ {
			words[4+c] = ptrs[c]
		}
		if err := buf.WriteWords(nodeOffset, words[:]); err != nil {
			return 0, err
		}
		return nodeOffset, nil
	}
	rootOffset, err := walk(tr.RootIndex())
	if err != nil {
		return 0, err
	}
	return uint32(rootOffset), nil
}

// Free implements Serializer: it walks the serialized block itself
// (not an in-memory Octree, which may already be gone) and returns
// every range it allocated to buf's allocator.
func (ESVOSerializer) Free(buf *svobuf.Buffer, rootOffset uint32) error {
	var walk func(nodeOffset int) error
	walk = func(nodeOffset int) error {
		words, err := buf.ReadWords(nodeOffset, ESVONodeWords)
		if err != nil {
			return err
		}
		mask := uint16(words[0] & 0xFFFF)
		for c := 0; c < 8; c++ {
			isLeaf := mask&(1<<uint(c)) != 0
			isChild := mask&(1<<uint(8+c)) != 0
			if !isLeaf && !isChild {
				continue
			}
			ptrWord := nodeOffset + 4 + c
			target := decodeESVOPointer(words[4+c], ptrWord)
			if isLeaf {
				buf.Allocator().Free(target, 1)
			} else {
				if err := walk(target); err != nil {
					return err
				}
			}
		}
		buf.Allocator().Free(nodeOffset, ESVONodeWords)
		return nil
	}
	return walk(int(rootOffset))
}

// Deserialize implements Serializer, reconstructing an Octree whose Get
// results match the one that produced this block, down to depth.
func (ESVOSerializer) Deserialize(buf *svobuf.Buffer, rootOffset uint32, depth uint8) (*octree.Octree, error) {
	if depth == 0 {
		return nil, fmt.Errorf("serialize: Deserialize depth must be >= 1")
	}
	t := octree.NewOctree()
	t.Expand(depth)
	rootIdx := t.RootIndex()

	var walk func(nodeOffset int, arenaIdx int32) error
	walk = func(nodeOffset int, arenaIdx int32) error {
		words, err := buf.ReadWords(nodeOffset, ESVONodeWords)
		if err != nil {
			return err
		}
		mask := uint16(words[0] & 0xFFFF)
		for c := 0; c < 8; c++ {
			isLeaf := mask&(1<<uint(c)) != 0
			isChild := mask&(1<<uint(8+c)) != 0
			if !isLeaf && !isChild {
				continue
			}
			ptrWord := nodeOffset + 4 + c
			target := decodeESVOPointer(words[4+c], ptrWord)
			if isLeaf {
				leafWords, err := buf.ReadWords(target, 1)
				if err != nil {
					return err
				}
				oct, err := t.Arena().GetMut(arenaIdx)
				if err != nil {
					return err
				}
				oct.Slots[c] = octree.Slot{Kind: octree.SlotLeaf, Value: leafWords[0]}
				continue
			}
			// Allocate may grow the arena's backing slice, so the
			// parent octant is re-fetched after it, not held across it.
			childIdx := t.Arena().Allocate()
			childOct, err := t.Arena().GetMut(childIdx)
			if err != nil {
				return err
			}
			childOct.Parent = arenaIdx
			childOct.ParentSlot = uint8(c)
			if err := walk(target, childIdx); err != nil {
				return err
			}
			oct, err := t.Arena().GetMut(arenaIdx)
			if err != nil {
				return err
			}
			oct.Slots[c] = octree.Slot{Kind: octree.SlotChild, Child: childIdx}
		}
		return nil
	}
	if err := walk(int(rootOffset), rootIdx); err != nil {
		return nil, err
	}
	return t, nil
}
