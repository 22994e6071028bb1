package common

import (
	"github.com/chewxy/math32"
)

// Matrices in this package are flat []float32 of 16 values in column-major order, so element
// (row r, column c) sits at index c*4+r. Clip space follows WebGPU: depth runs from 0 to 1.

// Identity overwrites m with the identity matrix.
func Identity(m []float32) {
	clear(m[:16])
	for i := 0; i < 16; i += 5 {
		m[i] = 1
	}
}

// Mul4 stores a*b in out. out may alias either operand.
//
// Parameters:
//   - out: destination, at least 16 values
//   - a: left operand
//   - b: right operand
func Mul4(out, a, b []float32) {
	var res [16]float32
	for c := 0; c < 4; c++ {
		bc := b[c*4 : c*4+4]
		for r := 0; r < 4; r++ {
			res[c*4+r] = a[r]*bc[0] + a[4+r]*bc[1] + a[8+r]*bc[2] + a[12+r]*bc[3]
		}
	}
	copy(out, res[:])
}

// Perspective writes a right-handed perspective projection mapping -near to depth 0 and -far to 1.
//
// Parameters:
//   - out: destination, at least 16 values
//   - fovY: vertical field of view in radians
//   - aspect: width over height
//   - near: near plane distance, > 0
//   - far: far plane distance, > near
func Perspective(out []float32, fovY, aspect, near, far float32) {
	focal := 1 / math32.Tan(fovY*0.5)
	depth := 1 / (near - far)
	clear(out[:16])
	out[0] = focal / aspect
	out[5] = focal
	out[10] = far * depth
	out[11] = -1
	out[14] = near * far * depth
}

// Ortho writes an orthographic projection of the box [left, right] x [bottom, top] looking down -z,
// mapping -near to depth 0 and -far to 1. The shadow pass projects the sun with it.
func Ortho(out []float32, left, right, bottom, top, near, far float32) {
	w, h, d := right-left, top-bottom, near-far
	clear(out[:16])
	out[0] = 2 / w
	out[5] = 2 / h
	out[10] = 1 / d
	out[12] = -(right + left) / w
	out[13] = -(top + bottom) / h
	out[14] = near / d
	out[15] = 1
}

// BuildModelMatrix writes translate * Ry * Rx * Rz * scale.
//
// Parameters:
//   - out: destination, at least 16 values
//   - posX, posY, posZ: translation
//   - rotX, rotY, rotZ: Euler angles in radians (pitch, yaw, roll)
//   - scaleX, scaleY, scaleZ: per-axis scale
func BuildModelMatrix(out []float32, posX, posY, posZ, rotX, rotY, rotZ, scaleX, scaleY, scaleZ float32) {
	sx, cx := math32.Sin(rotX), math32.Cos(rotX)
	sy, cy := math32.Sin(rotY), math32.Cos(rotY)
	sz, cz := math32.Sin(rotZ), math32.Cos(rotZ)

	axes := [3][3]float32{
		{cy*cz + sy*sx*sz, cx * sz, cy*sx*sz - sy*cz},
		{sy*sx*cz - cy*sz, cx * cz, sy*sz + cy*sx*cz},
		{sy * cx, -sx, cy * cx},
	}
	scale := [3]float32{scaleX, scaleY, scaleZ}
	for c, axis := range axes {
		out[c*4+0] = axis[0] * scale[c]
		out[c*4+1] = axis[1] * scale[c]
		out[c*4+2] = axis[2] * scale[c]
		out[c*4+3] = 0
	}
	out[12], out[13], out[14], out[15] = posX, posY, posZ, 1
}

// Invert4 stores the inverse of m in out using Gauss-Jordan elimination with partial pivoting.
// out is left untouched when m is singular.
//
// Returns:
//   - bool: false when m has no inverse
func Invert4(out, m []float32) bool {
	// Work on rows of [m | I]; rows are read out of the column-major input.
	var aug [4][8]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			aug[r][c] = m[c*4+r]
		}
		aug[r][4+r] = 1
	}

	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math32.Abs(aug[r][col]) > math32.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math32.Abs(aug[pivot][col]) < 1e-12 {
			return false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		inv := 1 / aug[col][col]
		for k := range aug[col] {
			aug[col][k] *= inv
		}
		for r := 0; r < 4; r++ {
			if r == col || aug[r][col] == 0 {
				continue
			}
			f := aug[r][col]
			for k := range aug[r] {
				aug[r][k] -= f * aug[col][k]
			}
		}
	}

	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = aug[r][4+c]
		}
	}
	return true
}

// LookAt writes a right-handed view matrix for an eye at (eyeX, eyeY, eyeZ) facing the center
// point. A zero-length basis vector is left unnormalized instead of producing NaNs.
//
// Parameters:
//   - out: destination, at least 16 values
//   - eyeX, eyeY, eyeZ: camera position
//   - centerX, centerY, centerZ: the point looked at
//   - upX, upY, upZ: world up, usually (0, 1, 0)
func LookAt(out []float32, eyeX, eyeY, eyeZ, centerX, centerY, centerZ, upX, upY, upZ float32) {
	eye := [3]float32{eyeX, eyeY, eyeZ}
	back := Normalize3([3]float32{eyeX - centerX, eyeY - centerY, eyeZ - centerZ})
	right := Normalize3(cross3([3]float32{upX, upY, upZ}, back))
	up := cross3(back, right)

	for i, axis := range [3][3]float32{right, up, back} {
		out[i] = axis[0]
		out[4+i] = axis[1]
		out[8+i] = axis[2]
		out[12+i] = -dot3(axis, eye)
	}
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Normalize3 returns v scaled to unit length, or v unchanged when it has zero length.
func Normalize3(v [3]float32) [3]float32 {
	l := math32.Sqrt(dot3(v, v))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

// TransformPoint applies m to the point p with w = 1 and drops the resulting w.
func TransformPoint(m []float32, p [3]float32) [3]float32 {
	var res [3]float32
	for r := range res {
		res[r] = m[r]*p[0] + m[4+r]*p[1] + m[8+r]*p[2] + m[12+r]
	}
	return res
}

// MaxScale returns the largest axis scale of an affine matrix. Bounding spheres grow by it when
// moved to world space.
func MaxScale(m []float32) float32 {
	col := func(c int) float32 {
		v := [3]float32{m[c*4], m[c*4+1], m[c*4+2]}
		return dot3(v, v)
	}
	return math32.Sqrt(max(col(0), col(1), col(2)))
}
