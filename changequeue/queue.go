// Package changequeue implements the per-frame edit batching described
// in spec.md §4.8: workers produce edit records, the main thread drains
// and applies them, deduplicating same-cell writes within a batch.
//
// Grounded on gleval.BlockCachedSDF3's dedup-by-key map pattern (Evaluate
// in gleval.go): a map from cell key to the latest value asserts
// last-write-wins, and only unseen keys turn into real work.
package changequeue

import (
	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/telemetry"
	"github.com/ashgrove-games/svo/worldsvo"
)

// Edit is one voxel write, identified by the chunk it targets.
type Edit struct {
	Chunk worldsvo.ChunkCoord
	Pos   octree.Position
	Depth uint8
	Value uint32
}

// cellKey identifies a unique (chunk, position, depth) write target
// within a batch, for last-write-wins deduplication.
type cellKey struct {
	chunk worldsvo.ChunkCoord
	pos   octree.Position
	depth uint8
}

// Queue holds edits produced by workers until the main thread drains
// them. Workers append to the next pending batch; only the main thread
// calls Drain.
type Queue struct {
	pending []Edit
	// seen maps every (chunk,pos,depth) touched in the pending batch to
	// its index in pending, so a later Push for the same cell overwrites
	// the earlier entry in place instead of appending a duplicate —
	// "last write to each (chunk, position) within a batch wins."
	seen map[cellKey]int
	sink telemetry.Sink
}

// New returns an empty Queue reporting queue-depth telemetry to sink.
// A nil sink disables telemetry.
func New(sink telemetry.Sink) *Queue {
	return &Queue{seen: make(map[cellKey]int), sink: sink}
}

// Push appends an edit to the current batch, overwriting any earlier
// edit to the same cell in this same batch.
func (q *Queue) Push(e Edit) {
	k := cellKey{chunk: e.Chunk, pos: e.Pos, depth: e.Depth}
	if i, ok := q.seen[k]; ok {
		q.pending[i] = e
		return
	}
	q.seen[k] = len(q.pending)
	q.pending = append(q.pending, e)
	if q.sink != nil {
		q.sink.Record(telemetry.EventQueueDepth, uint64(len(q.pending)))
	}
}

// Len returns the number of distinct cells queued in the current batch.
func (q *Queue) Len() int { return len(q.pending) }

// Drain returns the current batch (in FIFO push order, last-write-wins
// already applied) and resets the queue for the next batch. Batches
// themselves are FIFO: calling Drain once per frame and applying the
// returned edits before accepting the next Push satisfies the
// across-batches ordering guarantee.
func (q *Queue) Drain() []Edit {
	batch := q.pending
	q.pending = nil
	clear(q.seen)
	return batch
}
