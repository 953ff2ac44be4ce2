package svobuf_test

import (
	"errors"
	"testing"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/svobuf"
)

func TestHeaderRoundTrip(t *testing.T) {
	b, err := svobuf.New(64)
	if err != nil {
		t.Fatal(err)
	}
	b.SetScale(0.0078125) // 2^-7
	b.SetRootPtr(2)
	if got := b.Scale(); got != 0.0078125 {
		t.Fatalf("Scale() = %v, want 0.0078125", got)
	}
	if got := b.RootPtr(); got != 2 {
		t.Fatalf("RootPtr() = %d, want 2", got)
	}
}

func TestAllocFirstFitThenTail(t *testing.T) {
	a := svobuf.NewAllocator(100, svobuf.HeaderWords)
	o1, err := a.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if o1 != svobuf.HeaderWords {
		t.Fatalf("first alloc offset = %d, want %d", o1, svobuf.HeaderWords)
	}
	o2, err := a.Alloc(5)
	if err != nil {
		t.Fatal(err)
	}
	if o2 != svobuf.HeaderWords+10 {
		t.Fatalf("second alloc offset = %d, want %d", o2, svobuf.HeaderWords+10)
	}
	a.Free(o1, 10)
	o3, err := a.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}
	if o3 != o1 {
		t.Fatalf("expected first-fit reuse of freed range at %d, got %d", o1, o3)
	}
}

func TestFreeCoalescesAdjacentRanges(t *testing.T) {
	a := svobuf.NewAllocator(100, 0)
	o1, _ := a.Alloc(4)
	o2, _ := a.Alloc(4)
	o3, _ := a.Alloc(4)
	a.Free(o1, 4)
	a.Free(o3, 4)
	a.Free(o2, 4) // should merge all three into one contiguous range
	ranges := a.FreeRanges()
	if len(ranges) != 1 {
		t.Fatalf("expected free ranges to coalesce into one, got %d: %+v", len(ranges), ranges)
	}
	if ranges[0].Offset != o1 || ranges[0].Count != 12 {
		t.Fatalf("coalesced range = %+v, want {Offset:%d Count:12}", ranges[0], o1)
	}
}

func TestAllocOutOfSpace(t *testing.T) {
	a := svobuf.NewAllocator(8, 0)
	if _, err := a.Alloc(8); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(1); !errors.Is(err, svo.ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
}

func TestWriteBytesReadBytesRoundTrip(t *testing.T) {
	b, err := svobuf.New(16)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	if err := b.WriteBytes(6, data); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadBytes(6, len(data))
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %x, want %x", i, got[i], data[i])
		}
	}
}
