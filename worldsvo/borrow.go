package worldsvo

import (
	"errors"
	"fmt"
	"sync"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/octree"
)

// ErrChunkAbsent is returned when borrowing a coordinate with no linked
// chunk.
var ErrChunkAbsent = errors.New("worldsvo: no chunk at coordinate")

// Borrow transfers sole ownership of coord's Octree to the caller: the
// world removes it from its own bookkeeping (the chunk becomes invisible
// to SetChunk/RemoveChunk and to the serializer) until Return or Cancel
// hands it back. Borrowing an already-borrowed coordinate is a
// DoubleBorrow programming error (spec.md §7): it panics unless
// FlagNoPanic is set, in which case it also returns an error.
func (w *World) Borrow(coord ChunkCoord) (*octree.Octree, error) {
	if w.borrowed[coord] {
		w.InvariantErrorf("worldsvo: double borrow of chunk %+v", coord)
		return nil, fmt.Errorf("worldsvo: double borrow of chunk %+v", coord)
	}
	tr, ok := w.chunks[coord]
	if !ok {
		return nil, fmt.Errorf("%w: %+v", ErrChunkAbsent, coord)
	}
	delete(w.chunks, coord)
	w.borrowed[coord] = true
	return tr, nil
}

// Return rejoins a previously borrowed Octree, re-serializing it and
// updating the World SVO's slot for coord. Returning a coordinate that
// was not borrowed is a programming error.
func (w *World) Return(coord ChunkCoord, tr *octree.Octree) error {
	if !w.borrowed[coord] {
		w.InvariantErrorf("worldsvo: return of chunk %+v that was never borrowed", coord)
		return fmt.Errorf("worldsvo: return of chunk %+v that was never borrowed", coord)
	}
	delete(w.borrowed, coord)
	return w.SetChunk(coord, tr)
}

// Cancel returns a borrowed Octree whose task was cancelled by the
// worker pool, untouched: per spec.md §5, cancellation is a transparent
// no-op from the core's perspective, reported back only via
// svo.ErrCancelledBorrow so a caller can distinguish it from a normal
// completion if it wants to.
func (w *World) Cancel(coord ChunkCoord, tr *octree.Octree) error {
	if !w.borrowed[coord] {
		w.InvariantErrorf("worldsvo: cancel of chunk %+v that was never borrowed", coord)
		return fmt.Errorf("worldsvo: cancel of chunk %+v that was never borrowed", coord)
	}
	delete(w.borrowed, coord)
	w.chunks[coord] = tr
	return svo.ErrCancelledBorrow
}

// BorrowRequest is a unit of work dispatched to a Dispatcher: Task
// mutates Tree (already borrowed by the caller) and the result is
// delivered on Done.
type BorrowRequest struct {
	Coord ChunkCoord
	Tree  *octree.Octree
	Task  func(tr *octree.Octree) error
	Done  chan<- BorrowResult
}

// BorrowResult is the outcome of a dispatched BorrowRequest.
type BorrowResult struct {
	Coord ChunkCoord
	Tree  *octree.Octree
	Err   error
}

// Dispatcher runs a fixed pool of chunk-mutation workers, grounded on
// octatron.BuildTree's one-goroutine-per-worker-draining-a-job-channel
// idiom: the World itself (and therefore every Borrow/Return call) stays
// single-threaded on the caller's goroutine; workers here only ever
// touch the Octree instance handed to them in a BorrowRequest, never the
// World's bookkeeping maps.
type Dispatcher struct {
	jobs chan BorrowRequest
	wg   sync.WaitGroup
}

// NewDispatcher starts numWorkers worker goroutines, each pulling
// requests off an internal job channel until Close is called.
func NewDispatcher(numWorkers int) *Dispatcher {
	d := &Dispatcher{jobs: make(chan BorrowRequest, numWorkers)}
	d.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer d.wg.Done()
			for req := range d.jobs {
				err := req.Task(req.Tree)
				req.Done <- BorrowResult{Coord: req.Coord, Tree: req.Tree, Err: err}
			}
		}()
	}
	return d
}

// Submit enqueues req for a worker. Blocks if the job channel is full.
func (d *Dispatcher) Submit(req BorrowRequest) { d.jobs <- req }

// Close stops accepting new work and waits for all in-flight requests to
// finish.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}

// Dispatch borrows coord and submits a BorrowRequest running task
// against it, returning a channel that receives exactly one
// BorrowResult. The caller is responsible for calling Return or Cancel
// with the result's Tree once it arrives.
func (w *World) Dispatch(d *Dispatcher, coord ChunkCoord, task func(*octree.Octree) error) (<-chan BorrowResult, error) {
	tr, err := w.Borrow(coord)
	if err != nil {
		return nil, err
	}
	done := make(chan BorrowResult, 1)
	d.Submit(BorrowRequest{Coord: coord, Tree: tr, Task: task, Done: done})
	return done, nil
}
