package common

import (
	"github.com/chewxy/math32"
)

// Plane is the plane Normal·p + Distance = 0. Points with a positive distance are on the inner side.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// Frustum is the view volume as six inward-facing planes: left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// ExtractFrustumFromMatrix derives the frustum planes from a column-major view-projection matrix
// (Gribb/Hartmann). The near plane is the bare z row since WebGPU clip depth starts at 0.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: the 16 matrix values
//
// Returns:
//   - Frustum: the planes, normalized
func ExtractFrustumFromMatrix(viewProj []float32) Frustum {
	// row(i) gathers the i-th matrix row; column-major storage puts it at a stride of 4.
	row := func(i int) [4]float32 {
		return [4]float32{viewProj[i], viewProj[4+i], viewProj[8+i], viewProj[12+i]}
	}
	x, y, z, w := row(0), row(1), row(2), row(3)

	combos := [6][4]float32{}
	for k := 0; k < 4; k++ {
		combos[0][k] = w[k] + x[k]
		combos[1][k] = w[k] - x[k]
		combos[2][k] = w[k] + y[k]
		combos[3][k] = w[k] - y[k]
		combos[4][k] = z[k]
		combos[5][k] = w[k] - z[k]
	}

	var f Frustum
	for i, c := range combos {
		p := Plane{Normal: [3]float32{c[0], c[1], c[2]}, Distance: c[3]}
		if l := math32.Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2]); l > 0 {
			p.Normal = [3]float32{p.Normal[0] / l, p.Normal[1] / l, p.Normal[2] / l}
			p.Distance /= l
		}
		f.Planes[i] = p
	}
	return f
}

// Distance3 returns the signed distance from the plane to a point.
func (p Plane) Distance3(point [3]float32) float32 {
	return p.Normal[0]*point[0] + p.Normal[1]*point[1] + p.Normal[2]*point[2] + p.Distance
}

// IntersectsSphere reports whether any part of the sphere is inside the frustum.
//
// Parameters:
//   - center: the sphere center, in the space of the matrix the frustum came from
//   - radius: the sphere radius
//
// Returns:
//   - bool: false only when the sphere lies fully outside one plane
func (f Frustum) IntersectsSphere(center [3]float32, radius float32) bool {
	for _, p := range f.Planes {
		if p.Distance3(center) < -radius {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether any part of the box [lo, hi] is inside the frustum, testing the
// corner that reaches furthest along each plane normal.
func (f Frustum) IntersectsAABB(lo, hi [3]float32) bool {
	for _, p := range f.Planes {
		corner := lo
		for i, n := range p.Normal {
			if n >= 0 {
				corner[i] = hi[i]
			}
		}
		if p.Distance3(corner) < 0 {
			return false
		}
	}
	return true
}
