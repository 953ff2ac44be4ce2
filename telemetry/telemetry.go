// Package telemetry implements the pluggable counters/sink contract from
// spec.md §7: out-of-space events, steps-per-ray, and queue depth are
// never fatal, only observable.
//
// Grounded on the cache-hit/eval counter pairs kept by gleval's cached
// SDF wrappers (CacheHits/Evaluations in gleval.go) and on
// glrender.Octree's TotalPruned-style running totals: plain atomic
// counters, read on demand, no buffering or batching.
package telemetry

import "sync/atomic"

// Event identifies one telemetry occurrence.
type Event int

const (
	EventOutOfSpace Event = iota
	EventRaySteps
	EventQueueDepth
)

// Sink receives telemetry events as they occur. Record must be safe to
// call concurrently; implementations that aren't should serialize
// internally.
type Sink interface {
	Record(ev Event, value uint64)
}

// Counters is the default Sink: one atomic running total and one atomic
// occurrence count per event kind, plus a running max for gauge-like
// events (RaySteps, QueueDepth).
type Counters struct {
	outOfSpace   atomic.Uint64
	raySteps     atomic.Uint64
	raySamples   atomic.Uint64
	maxRaySteps  atomic.Uint64
	queueDepth   atomic.Uint64
	queueSamples atomic.Uint64
	maxQueue     atomic.Uint64
}

// NewCounters returns a ready-to-use Counters sink.
func NewCounters() *Counters { return &Counters{} }

// Record implements Sink.
func (c *Counters) Record(ev Event, value uint64) {
	switch ev {
	case EventOutOfSpace:
		c.outOfSpace.Add(1)
	case EventRaySteps:
		c.raySteps.Add(value)
		c.raySamples.Add(1)
		bumpMax(&c.maxRaySteps, value)
	case EventQueueDepth:
		c.queueDepth.Add(value)
		c.queueSamples.Add(1)
		bumpMax(&c.maxQueue, value)
	}
}

func bumpMax(m *atomic.Uint64, v uint64) {
	for {
		cur := m.Load()
		if v <= cur {
			return
		}
		if m.CompareAndSwap(cur, v) {
			return
		}
	}
}

// OutOfSpaceCount returns the total number of out-of-space events seen.
func (c *Counters) OutOfSpaceCount() uint64 { return c.outOfSpace.Load() }

// MeanRaySteps returns the running mean of EventRaySteps values, or 0 if
// none have been recorded.
func (c *Counters) MeanRaySteps() float64 {
	n := c.raySamples.Load()
	if n == 0 {
		return 0
	}
	return float64(c.raySteps.Load()) / float64(n)
}

// MaxRaySteps returns the largest single EventRaySteps value recorded.
func (c *Counters) MaxRaySteps() uint64 { return c.maxRaySteps.Load() }

// MeanQueueDepth returns the running mean of EventQueueDepth values.
func (c *Counters) MeanQueueDepth() float64 {
	n := c.queueSamples.Load()
	if n == 0 {
		return 0
	}
	return float64(c.queueDepth.Load()) / float64(n)
}

// MaxQueueDepth returns the largest single EventQueueDepth value
// recorded.
func (c *Counters) MaxQueueDepth() uint64 { return c.maxQueue.Load() }

// NopSink discards every event; the zero-configuration default.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Event, uint64) {}
