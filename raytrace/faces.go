package raytrace

import svo "github.com/ashgrove-games/svo"

// faceForEntry maps the axis the ray entered a leaf through, together
// with the ray's (unmirrored) direction sign on that axis, to one of the
// six face identifiers in svo.Face: a ray moving in the negative
// direction on an axis enters through that axis's positive face, and
// vice-versa.
func faceForEntry(axis int, dirOnAxis float32) svo.Face {
	switch axis {
	case 0:
		if dirOnAxis < 0 {
			return svo.FacePosX
		}
		return svo.FaceNegX
	case 1:
		if dirOnAxis < 0 {
			return svo.FacePosY
		}
		return svo.FaceNegY
	default:
		if dirOnAxis < 0 {
			return svo.FacePosZ
		}
		return svo.FaceNegZ
	}
}

// tangentAxes returns the two axis indices spanning a face's UV plane,
// in (U,V) order, derived from svo.FaceTangents/FaceBitangents.
func tangentAxes(f svo.Face) (u, v int) {
	tan := svo.FaceTangents[f]
	bit := svo.FaceBitangents[f]
	for i := 0; i < 3; i++ {
		if tan[i] != 0 {
			u = i
		}
		if bit[i] != 0 {
			v = i
		}
	}
	return u, v
}
