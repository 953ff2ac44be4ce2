package raytrace

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"

	svo "github.com/ashgrove-games/svo"
	"github.com/ashgrove-games/svo/svobuf"
	"github.com/ashgrove-games/svo/telemetry"
)

// maxScale is the traversal's mantissa budget: scale counts down from 22
// toward 0 as PUSH descends, and a POP landing at scale >= maxScale means
// the ray has left the octree entirely.
const maxScale = 23

// DefaultMaxSteps is the traversal's step budget absent an explicit
// Config (spec.md §9 Open Questions: "treat MAX_STEPS as configurable;
// default 1000").
const DefaultMaxSteps = 1000

// Config controls traversal limits.
type Config struct {
	// MaxSteps bounds the PUSH/ADVANCE/POP loop. Zero selects
	// DefaultMaxSteps.
	MaxSteps int
	// Sink, if non-nil, receives one EventRaySteps per call recording
	// how many loop iterations this ray took. Nil disables telemetry.
	Sink telemetry.Sink
}

// Ray is one traversal request, in normalized world coordinates (the
// octree spans [0,1)^3 before the setup's rescale).
type Ray struct {
	Origin ms3.Vec
	Dir    ms3.Vec
	// MaxDst bounds the traversal distance in world units; zero means
	// unbounded.
	MaxDst float32
	// CastTranslucent enables the translucent-run aggregation rule; if
	// false every leaf's material is treated as opaque regardless of
	// what MaterialOracle reports.
	CastTranslucent bool
}

// Miss is the sentinel T value of a non-hit result.
const Miss float32 = -1

// Hit is the traversal's output record, matching the host/device shared
// struct in §6.
type Hit struct {
	T           float32
	Value       uint32
	Face        svo.Face
	Pos         ms3.Vec
	UV          [2]float32
	Color       [4]float32
	InsideVoxel bool
}

// MaterialOracle resolves a leaf value (and the face/uv it was struck
// on) to a display color and whether that material is translucent.
type MaterialOracle interface {
	Lookup(value uint32, face svo.Face, uv [2]float32) (color [4]float32, translucent bool)
}

type stackEntry struct {
	ptr  uint32
	tMax float32
}

// Traverse runs the PUSH/ADVANCE/POP state machine described in spec.md
// §4.7 against the octree rooted at rootOffset, reading octants through
// reader (ESVOReader or CSVOReader) out of buf.
func Traverse(buf *svobuf.Buffer, reader NodeReader, rootOffset uint32, ray Ray, cfg Config, oracle MaterialOracle) (Hit, error) {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	stepsTaken := 0
	if cfg.Sink != nil {
		defer func() { cfg.Sink.Record(telemetry.EventRaySteps, uint64(stepsTaken)) }()
	}
	scaleWorld := buf.Scale()

	var ro, rd, origDir [3]float32
	ro[0], ro[1], ro[2] = ray.Origin.X, ray.Origin.Y, ray.Origin.Z
	origDir[0], origDir[1], origDir[2] = ray.Dir.X, ray.Dir.Y, ray.Dir.Z
	rd = origDir

	// Setup step 1: rescale and shift ro into [1,2).
	for i := 0; i < 3; i++ {
		ro[i] = ro[i]*scaleWorld + 1
	}
	maxDst := float32(math.MaxFloat32)
	if ray.MaxDst > 0 {
		maxDst = ray.MaxDst * scaleWorld
	}

	// Setup step 2.
	for i := 0; i < 3; i++ {
		rd[i] = clampEpsilon(rd[i])
	}

	// Setup step 3.
	var tCoef, tBias [3]float32
	for i := 0; i < 3; i++ {
		tCoef[i] = 1 / -math32.Abs(rd[i])
		tBias[i] = tCoef[i] * ro[i]
	}

	// Setup step 4: mirror positive directions to negative.
	var octantMask uint8
	for i := 0; i < 3; i++ {
		if rd[i] > 0 {
			octantMask |= 1 << uint(i)
			tBias[i] = 3*tCoef[i] - tBias[i]
		}
	}

	// Setup step 5.
	tMin := maxf3(2*tCoef[0]-tBias[0], 2*tCoef[1]-tBias[1], 2*tCoef[2]-tBias[2])
	if tMin < 0 {
		tMin = 0
	}
	tMax := minf2(minf2(tCoef[0]-tBias[0], tCoef[1]-tBias[1]), tCoef[2]-tBias[2])
	h := tMax

	// Setup step 6.
	pos := [3]float32{1, 1, 1}
	var idx uint8
	for i := 0; i < 3; i++ {
		if 1.5*tCoef[i]-tBias[i] > tMin {
			idx |= 1 << uint(i)
			pos[i] = 1.5
		}
	}

	// Setup step 7.
	scale := uint32(22)
	scaleExp2 := float32(0.5)
	var stack [maxScale]stackEntry
	parent := rootOffset

	var insideVoxel bool
	var pendingSeen bool
	var pendingValue uint32
	var pendingHit Hit

	flush := func() (Hit, error) {
		if pendingSeen {
			pendingHit.InsideVoxel = pendingHit.InsideVoxel || insideVoxel
			return pendingHit, nil
		}
		return Hit{T: Miss, InsideVoxel: insideVoxel}, nil
	}

	for step := 0; step < maxSteps && tMin <= maxDst; step++ {
		stepsTaken = step + 1
		var tCorner [3]float32
		for i := 0; i < 3; i++ {
			tCorner[i] = pos[i]*tCoef[i] - tBias[i]
		}
		tcMax := minf3(tCorner[0], tCorner[1], tCorner[2])

		octantIdx := idx ^ octantMask
		isChild, isLeaf, childTarget, value, err := reader.Descriptor(buf, parent, int(octantIdx))
		if err != nil {
			return Hit{T: Miss}, err
		}

		switch {
		case isLeaf && tMin > 0:
			hitPos, uv, face := hitGeometry(pos, scaleExp2, tCoef, tBias, tMin, octantMask, origDir)
			color, translucent := oracle.Lookup(value, face, uv)
			// tMin parametrizes the rescaled [1,2) space, where position
			// deltas run scaleWorld times larger than in world space
			// (only ro was rescaled in setup step 1, not rd); dividing
			// by scaleWorld converts back to a world-unit ray parameter.
			worldHit := Hit{
				T:     tMin / scaleWorld,
				Value: value,
				Face:  face,
				Pos:   unscaleHitPos(hitPos, octantMask, scaleWorld),
				UV:    uv,
				Color: color,
			}
			if !translucent || !ray.CastTranslucent {
				if pendingSeen {
					pendingHit.InsideVoxel = pendingHit.InsideVoxel || insideVoxel
					return pendingHit, nil
				}
				worldHit.InsideVoxel = insideVoxel
				return worldHit, nil
			}
			if pendingSeen && pendingValue != value {
				// A different value breaks the in-progress run: report
				// the run's first leaf.
				return flush()
			}
			if !pendingSeen {
				pendingSeen = true
				pendingValue = value
				pendingHit = worldHit
			}
			// Otherwise same value as the in-progress run: swallowed,
			// advance through it.

		case isLeaf: // tMin <= 0: INSIDE-VOXEL
			insideVoxel = true

		case isChild && tMin <= minf2(tMax, tcMax):
			if tcMax < h {
				stack[scale] = stackEntry{ptr: parent, tMax: tMax}
			}
			h = tcMax
			parent = childTarget
			scale--
			if scale == 0 {
				return flush()
			}
			scaleExp2 *= 0.5
			var childIdx uint8
			for i := 0; i < 3; i++ {
				if (pos[i]+scaleExp2)*tCoef[i]-tBias[i] > tMin {
					childIdx |= 1 << uint(i)
					pos[i] += scaleExp2
				}
			}
			idx = childIdx
			tMax = minf2(tMax, tcMax)
			continue

		default:
			// Empty slot (neither child nor leaf): any pending
			// translucent run ends here, broken by empty space.
			if pendingSeen {
				return flush()
			}
		}

		// ADVANCE.
		var stepMask uint8
		for i := 0; i < 3; i++ {
			if tCorner[i] == tcMax {
				stepMask |= 1 << uint(i)
				pos[i] -= scaleExp2
			}
		}
		tMin = tcMax
		idx ^= stepMask
		if idx&stepMask != 0 {
			// POP.
			var differing uint32
			for i := 0; i < 3; i++ {
				if stepMask&(1<<uint(i)) == 0 {
					continue
				}
				differing |= floatBits(pos[i]) ^ floatBits(pos[i]+scaleExp2)
			}
			bit := highestDifferingBit(differing)
			if bit < 0 || uint32(bit) >= maxScale {
				return flush()
			}
			scale = uint32(bit)
			scaleExp2 = scaleExp2FromScale(scale)
			entry := stack[scale]
			parent = entry.ptr
			tMax = entry.tMax
			for i := 0; i < 3; i++ {
				pos[i] = truncatePosToScale(pos[i], scale)
			}
			idx = 0
			for i := 0; i < 3; i++ {
				bit := (floatBits(pos[i]) >> scale) & 1
				idx |= uint8(bit) << uint(i)
			}
			h = 0
		}
	}
	return flush()
}

// hitGeometry computes the entry point, UV, and face of a leaf hit, per
// spec.md §4.7's HIT step.
func hitGeometry(pos [3]float32, scaleExp2 float32, tCoef, tBias [3]float32, tMin float32, octantMask uint8, origDir [3]float32) (hitPosMirrored [3]float32, uv [2]float32, face svo.Face) {
	var tCorner [3]float32
	for i := 0; i < 3; i++ {
		tCorner[i] = pos[i]*tCoef[i] - tBias[i]
	}
	// The entry axis is whichever corner equals the parametric distance
	// we entered this leaf at (tMin, carried over from the prior
	// ADVANCE/POP step that brought us here).
	axis := 0
	best := math32.Abs(tCorner[0] - tMin)
	for i := 1; i < 3; i++ {
		if d := math32.Abs(tCorner[i] - tMin); d < best {
			best = d
			axis = i
		}
	}
	dirSign := origDir[axis]
	face = faceForEntry(axis, dirSign)

	for i := 0; i < 3; i++ {
		hitPosMirrored[i] = (tMin + tBias[i]) / tCoef[i]
	}

	u, v := tangentAxes(face)
	uvRaw := [2]float32{
		(hitPosMirrored[u] - pos[u]) / scaleExp2,
		(hitPosMirrored[v] - pos[v]) / scaleExp2,
	}
	if origDir[u] > 0 {
		uvRaw[0] = 1 - uvRaw[0]
	}
	if origDir[v] > 0 {
		uvRaw[1] = 1 - uvRaw[1]
	}
	return hitPosMirrored, uvRaw, face
}

// unscaleHitPos undoes setup steps 1 and 4: unmirror each axis the setup
// flipped to negative (x' = 3-x is its own inverse), then undo the
// +1 shift and octree_scale rescale.
func unscaleHitPos(mirrored [3]float32, octantMask uint8, scaleWorld float32) ms3.Vec {
	var p [3]float32
	for i := 0; i < 3; i++ {
		if octantMask&(1<<uint(i)) != 0 {
			p[i] = 3 - mirrored[i]
		} else {
			p[i] = mirrored[i]
		}
		p[i] = (p[i] - 1) / scaleWorld
	}
	return ms3.Vec{X: p[0], Y: p[1], Z: p[2]}
}
