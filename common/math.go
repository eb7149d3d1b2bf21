package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// Vec3 is a three component float32 vector.
type Vec3 [3]float32

// Quat is a rotation quaternion stored as (x, y, z, w).
type Quat [4]float32

// Mat4 is a 4x4 matrix stored in column-major order (OpenGL/WebGPU/Vulkan convention).
// Element (row r, column c) lives at index c*4+r.
type Mat4 [16]float32

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{0, 0, 0, 1}

// Identity returns the 4x4 identity matrix.
//
// Returns:
//   - Mat4: the identity matrix
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// Mul returns m * o. Applying the result to a vector applies o first, then m.
//
// Parameters:
//   - o: right-hand matrix
//
// Returns:
//   - Mat4: the product
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * o[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Translation returns a matrix translating by v.
func Translation(v Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = v[0], v[1], v[2]
	return m
}

// Scaling returns a matrix scaling each axis by the matching component of v.
func Scaling(v Vec3) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = v[0], v[1], v[2]
	return m
}

// RotationY returns a right-handed rotation of angle radians about the Y axis.
func RotationY(angle float32) Mat4 {
	c, s := math32.Cos(angle), math32.Sin(angle)
	m := Identity()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

// RotationAxis returns a right-handed rotation of angle radians about an arbitrary axis.
// The axis does not need to be normalized.
//
// Parameters:
//   - angle: rotation angle in radians
//   - axis: the rotation axis
//
// Returns:
//   - Mat4: the rotation matrix
func RotationAxis(angle float32, axis Vec3) Mat4 {
	a := normalize3(axis)
	half := angle / 2
	s := math32.Sin(half)
	return Quat{a[0] * s, a[1] * s, a[2] * s, math32.Cos(half)}.Matrix()
}

// Matrix converts a unit quaternion into a rotation matrix.
//
// Returns:
//   - Mat4: the rotation matrix
func (q Quat) Matrix() Mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return Mat4{
		1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy), 0,
		2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx), 0,
		2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy), 0,
		0, 0, 0, 1,
	}
}

// Len returns the Euclidean length of the quaternion.
func (q Quat) Len() float32 {
	return math32.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

// Normalize returns q scaled to unit length. A zero quaternion yields IdentityQuat.
func (q Quat) Normalize() Quat {
	l := q.Len()
	if l == 0 {
		return IdentityQuat
	}
	inv := 1 / l
	return Quat{q[0] * inv, q[1] * inv, q[2] * inv, q[3] * inv}
}

// LerpVec3 linearly interpolates between a and b.
//
// Parameters:
//   - a: value at t=0
//   - b: value at t=1
//   - t: blend factor
//
// Returns:
//   - Vec3: the interpolated vector
func LerpVec3(a, b Vec3, t float32) Vec3 {
	return Vec3{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

// Slerp performs spherical linear interpolation between two rotations along the shortest arc.
// Nearly parallel inputs fall back to a normalized linear blend, where slerp is numerically unstable.
// The result is always renormalized.
//
// Parameters:
//   - a: rotation at t=0
//   - b: rotation at t=1
//   - t: blend factor in [0, 1]
//
// Returns:
//   - Quat: the interpolated unit quaternion
func Slerp(a, b Quat, t float32) Quat {
	cosom := a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
	end := b
	if cosom < 0 {
		cosom = -cosom
		end = Quat{-b[0], -b[1], -b[2], -b[3]}
	}

	var sclp, sclq float32
	if 1-cosom > 0.0001 {
		omega := math32.Acos(math32.Min(cosom, 1))
		sinom := math32.Sin(omega)
		sclp = math32.Sin((1-t)*omega) / sinom
		sclq = math32.Sin(t*omega) / sinom
	} else {
		sclp = 1 - t
		sclq = t
	}

	return Quat{
		sclp*a[0] + sclq*end[0],
		sclp*a[1] + sclq*end[1],
		sclp*a[2] + sclq*end[2],
		sclp*a[3] + sclq*end[3],
	}.Normalize()
}

// Perspective creates a right-handed perspective projection with depth mapped to [0, 1],
// the clip space shared by WebGPU and Vulkan.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - Mat4: the projection matrix
func Perspective(fovY, aspect, near, far float32) Mat4 {
	f := 1 / math32.Tan(fovY/2)
	var m Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = (near * far) / (near - far)
	return m
}

// Invert computes the inverse of m using cofactor expansion.
//
// Returns:
//   - Mat4: the inverse, or m unchanged when singular
//   - bool: false if m is singular
func (m Mat4) Invert() (Mat4, bool) {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return m, false
	}
	inv := 1 / det

	var out Mat4
	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * inv
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * inv
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * inv
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * inv

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * inv
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * inv
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * inv
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * inv

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * inv
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * inv
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * inv
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * inv

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * inv
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * inv
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * inv
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * inv
	return out, true
}

// LookAt creates a right-handed view matrix for a camera at eye looking toward center.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
//
// Returns:
//   - Mat4: the view matrix
func LookAt(eye, center, up Vec3) Mat4 {
	z := normalize3(Vec3{eye[0] - center[0], eye[1] - center[1], eye[2] - center[2]})
	x := normalize3(cross3(up, z))
	y := cross3(z, x)

	var m Mat4
	m[0], m[4], m[8], m[12] = x[0], x[1], x[2], -dot3(x, eye)
	m[1], m[5], m[9], m[13] = y[0], y[1], y[2], -dot3(y, eye)
	m[2], m[6], m[10], m[14] = z[0], z[1], z[2], -dot3(z, eye)
	m[15] = 1
	return m
}

func dot3(a, b Vec3) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross3(a, b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize3(v Vec3) Vec3 {
	l := math32.Sqrt(dot3(v, v))
	if l == 0 {
		return v
	}
	return Vec3{v[0] / l, v[1] / l, v[2] / l}
}
