// Package engine wires the rest of this module's packages into one
// facade, the way an application actually needs to touch them: a
// buffer, a wire format, a World SVO, an edit queue, a materials table,
// and telemetry counters, constructed together and kept consistent.
//
// Grounded on gsdf.go's Builder: a single exported type embedding the
// lower-level construction primitive (svo.Builder here, in place of
// gsdf's own flag/error-accumulation fields) and exposing one
// domain-specific entry point (Trace here, in place of gsdf's shape
// evaluation tree) over everything else it owns.
package engine

import (
	"fmt"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/changequeue"
	"github.com/ashgrove-games/svo/materials"
	"github.com/ashgrove-games/svo/octree"
	"github.com/ashgrove-games/svo/raytrace"
	"github.com/ashgrove-games/svo/serialize"
	"github.com/ashgrove-games/svo/svobuf"
	"github.com/ashgrove-games/svo/telemetry"
	"github.com/ashgrove-games/svo/worldsvo"
)

// Config controls construction of an Engine.
type Config struct {
	// Format selects the wire format chunks and the World SVO itself
	// are serialized in.
	Format serialize.Format
	// WordCapacity sizes the backing Buffer.
	WordCapacity int
	// WorldDepth is the World SVO's fixed depth (spec.md §4.6).
	WorldDepth uint8
	// ChunkDepth is the depth every linked chunk Octree must serialize
	// at.
	ChunkDepth uint8
	// Scale sets the buffer's root-to-world scale factor (svobuf
	// header field); zero defaults to 1.
	Scale float32
}

// Engine owns every subsystem a caller needs to build, edit, and
// raytrace a World SVO, keeping them wired together: the World SVO and
// the edit Queue both report into the same telemetry Counters, and
// Trace always reads through the World-SVO-plus-chunks combined tree
// rather than requiring the caller to compose a RayReader by hand each
// time.
type Engine struct {
	svo.Builder

	buf        *svobuf.Buffer
	ser        serialize.Serializer
	format     serialize.Format
	nodeReader raytrace.NodeReader
	world      *worldsvo.World
	queue      *changequeue.Queue
	materials  *materials.Table
	telemetry  *telemetry.Counters
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.WordCapacity <= 0 {
		return nil, fmt.Errorf("engine: WordCapacity must be > 0, got %d", cfg.WordCapacity)
	}
	buf, err := svobuf.New(cfg.WordCapacity)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	buf.SetScale(scale)

	var ser serialize.Serializer
	var reader raytrace.NodeReader
	switch cfg.Format {
	case serialize.FormatESVO:
		ser = serialize.NewESVOSerializer()
		reader = raytrace.ESVOReader{}
	case serialize.FormatCSVO:
		ser = serialize.NewCSVOSerializer()
		reader = raytrace.CSVOReader{}
	default:
		return nil, fmt.Errorf("engine: unknown Format %d", cfg.Format)
	}

	world, err := worldsvo.New(cfg.WorldDepth, cfg.ChunkDepth, buf, ser)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	counters := telemetry.NewCounters()
	world.SetTelemetrySink(counters)
	queue := changequeue.New(counters)

	return &Engine{
		buf:        buf,
		ser:        ser,
		format:     cfg.Format,
		nodeReader: reader,
		world:      world,
		queue:      queue,
		materials:  materials.New(),
		telemetry:  counters,
	}, nil
}

// Buffer returns the engine's backing SVO buffer.
func (e *Engine) Buffer() *svobuf.Buffer { return e.buf }

// World returns the engine's World SVO.
func (e *Engine) World() *worldsvo.World { return e.world }

// Queue returns the engine's pending-edit queue.
func (e *Engine) Queue() *changequeue.Queue { return e.queue }

// Materials returns the engine's materials table.
func (e *Engine) Materials() *materials.Table { return e.materials }

// Telemetry returns the engine's telemetry counters.
func (e *Engine) Telemetry() *telemetry.Counters { return e.telemetry }

// Format returns the wire format this engine serializes chunks and the
// World SVO in.
func (e *Engine) Format() serialize.Format { return e.format }

// Apply drains the pending edit queue and commits it: per-cell
// deduplication already happened on Push (changequeue.Queue), so this
// groups the drained batch by chunk, applies each chunk's edits to its
// octree (creating one at the engine's configured chunk depth if the
// coordinate had no chunk yet), and hands each touched chunk to
// World.SetChunk exactly once — which itself invokes the engine's
// Serializer, writes the new block into the Buffer, updates the World
// SVO's slot for that chunk, and frees the chunk's previous range. A
// chunk that received edits at several distinct cells in the same batch
// is still only serialized once.
func (e *Engine) Apply() error {
	batch := e.queue.Drain()
	if len(batch) == 0 {
		return nil
	}
	touched := make(map[worldsvo.ChunkCoord]*octree.Octree, len(batch))
	for _, edit := range batch {
		tr, ok := touched[edit.Chunk]
		if !ok {
			tr, ok = e.world.Chunk(edit.Chunk)
			if !ok {
				tr = octree.NewOctree()
				tr.Expand(e.world.ChunkDepth())
			}
			touched[edit.Chunk] = tr
		}
		if err := tr.Set(edit.Pos, edit.Depth, edit.Value); err != nil {
			return fmt.Errorf("engine: applying edit %+v: %w", edit, err)
		}
	}
	for coord, tr := range touched {
		if err := e.world.SetChunk(coord, tr); err != nil {
			return fmt.Errorf("engine: committing chunk %+v: %w", coord, err)
		}
	}
	return nil
}

// Trace raytraces ray through the combined World-SVO-plus-chunks tree,
// resolving hit colors through the engine's own materials table. If no
// chunk has ever been linked into the World SVO, Trace reports a Miss
// without error.
func (e *Engine) Trace(ray raytrace.Ray, cfg raytrace.Config) (raytrace.Hit, error) {
	root, ok := e.world.WorldRootOffset()
	if !ok {
		return raytrace.Hit{T: raytrace.Miss}, nil
	}
	if cfg.Sink == nil {
		cfg.Sink = e.telemetry
	}
	reader := worldsvo.RayReader{World: e.world, Inner: e.nodeReader}
	return raytrace.Traverse(e.buf, reader, root, ray, cfg, e.materials)
}
