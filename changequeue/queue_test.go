package changequeue_test

import (
	"testing"

	"github.com/ashgrove-games/svo/changequeue"
	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/worldsvo"
)

func TestPushDedupesLastWriteWins(t *testing.T) {
	q := changequeue.New(nil)
	chunk := worldsvo.ChunkCoord{X: 0, Y: 0, Z: 0}
	pos := octree.Position{X: 1, Y: 1, Z: 1}
	q.Push(changequeue.Edit{Chunk: chunk, Pos: pos, Depth: 2, Value: 1})
	q.Push(changequeue.Edit{Chunk: chunk, Pos: pos, Depth: 2, Value: 2})
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (same cell written twice)", q.Len())
	}
	batch := q.Drain()
	if len(batch) != 1 || batch[0].Value != 2 {
		t.Fatalf("batch = %+v, want single edit with Value=2", batch)
	}
}

func TestDrainResetsForNextBatch(t *testing.T) {
	q := changequeue.New(nil)
	chunk := worldsvo.ChunkCoord{X: 0, Y: 0, Z: 0}
	q.Push(changequeue.Edit{Chunk: chunk, Pos: octree.Position{X: 0, Y: 0, Z: 0}, Depth: 1, Value: 5})
	first := q.Drain()
	if len(first) != 1 {
		t.Fatalf("first batch len = %d, want 1", len(first))
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after Drain, got Len()=%d", q.Len())
	}
	q.Push(changequeue.Edit{Chunk: chunk, Pos: octree.Position{X: 0, Y: 0, Z: 0}, Depth: 1, Value: 9})
	second := q.Drain()
	if len(second) != 1 || second[0].Value != 9 {
		t.Fatalf("second batch = %+v, want single edit with Value=9 (dedup state from first batch must not leak)", second)
	}
}

func TestPushDistinctCellsBothKept(t *testing.T) {
	q := changequeue.New(nil)
	chunk := worldsvo.ChunkCoord{X: 0, Y: 0, Z: 0}
	q.Push(changequeue.Edit{Chunk: chunk, Pos: octree.Position{X: 0, Y: 0, Z: 0}, Depth: 1, Value: 1})
	q.Push(changequeue.Edit{Chunk: chunk, Pos: octree.Position{X: 1, Y: 0, Z: 0}, Depth: 1, Value: 2})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 distinct cells", q.Len())
	}
}
