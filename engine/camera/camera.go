package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/chewxy/math32"
)

// Movement is a direction the camera can fly in, relative to where it looks.
type Movement int

const (
	MoveForward Movement = iota
	MoveBackward
	MoveLeft
	MoveRight
)

type cameraImpl struct {
	mu *sync.Mutex

	position common.Vec3
	worldUp  common.Vec3

	// Euler angles in degrees. Yaw -90 looks down -Z.
	yaw   float32
	pitch float32

	fov  float32
	near float32
	far  float32

	speed       float32
	sensitivity float32

	front common.Vec3
	right common.Vec3
	up    common.Vec3
}

// Camera defines the interface for the camera system.
// The camera is a fly camera: a position and a look direction given by yaw and pitch. It supplies the view
// and projection of every frame and can be moved between frames from input callbacks.
type Camera interface {
	// ViewMatrix returns the world-to-view transform.
	//
	// Returns:
	//   - common.Mat4: the view matrix
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the perspective projection for the given aspect ratio.
	//
	// Parameters:
	//   - aspect: viewport width / height
	//   - flipY: negate the Y scale for clip spaces with Y pointing down
	//
	// Returns:
	//   - common.Mat4: the projection matrix
	ProjectionMatrix(aspect float32, flipY bool) common.Mat4

	// Position returns the eye position in world space.
	//
	// Returns:
	//   - common.Vec3: the eye position
	Position() common.Vec3

	// Front returns the unit look direction.
	//
	// Returns:
	//   - common.Vec3: the look direction
	Front() common.Vec3

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Move flies the camera by speed * dt in a direction relative to the look direction.
	//
	// Parameters:
	//   - dir: the direction to move in
	//   - dt: seconds the movement lasts
	Move(dir Movement, dt float32)

	// Look turns the camera. Offsets are scaled by the mouse sensitivity and pitch is clamped to
	// ±89 degrees.
	//
	// Parameters:
	//   - xOffset: yaw offset
	//   - yOffset: pitch offset
	Look(xOffset, yOffset float32)

	// SetPosition places the camera.
	//
	// Parameters:
	//   - position: the eye position in world space
	SetPosition(position common.Vec3)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera.
//
// The defaults are a 45 degree field of view, clip planes at 0.1 and 200, and an eye at (8.2, 2.8, 18.0)
// looking down -Z, which frames the benchmark scenes.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		position:    common.Vec3{8.207467, 2.819616, 18.021290},
		worldUp:     common.Vec3{0, 1, 0},
		yaw:         -90,
		pitch:       0,
		fov:         45 * (math32.Pi / 180),
		near:        0.1,
		far:         200,
		speed:       2.5,
		sensitivity: 0.1,
	}
	for _, option := range options {
		option(c)
	}
	c.updateVectors()
	return c
}

func (c *cameraImpl) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	center := common.Vec3{c.position[0] + c.front[0], c.position[1] + c.front[1], c.position[2] + c.front[2]}
	return common.LookAt(c.position, center, c.up)
}

func (c *cameraImpl) ProjectionMatrix(aspect float32, flipY bool) common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 {
		aspect = 1
	}
	m := common.Perspective(c.fov, aspect, c.near, c.far)
	if flipY {
		m[5] = -m[5]
	}
	return m
}

func (c *cameraImpl) Position() common.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Front() common.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.front
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Move(dir Movement, dt float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.speed * dt
	var axis common.Vec3
	switch dir {
	case MoveForward:
		axis = c.front
	case MoveBackward:
		axis = common.Vec3{-c.front[0], -c.front[1], -c.front[2]}
	case MoveLeft:
		axis = common.Vec3{-c.right[0], -c.right[1], -c.right[2]}
	case MoveRight:
		axis = c.right
	}
	for i := range c.position {
		c.position[i] += axis[i] * step
	}
}

func (c *cameraImpl) Look(xOffset, yOffset float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.yaw += xOffset * c.sensitivity
	c.pitch += yOffset * c.sensitivity
	c.pitch = max(-89, min(89, c.pitch))
	c.updateVectors()
}

func (c *cameraImpl) SetPosition(position common.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
}

// updateVectors recomputes the camera basis from yaw and pitch. Caller must hold the mutex, or the camera is
// still being built.
func (c *cameraImpl) updateVectors() {
	yaw := c.yaw * (math32.Pi / 180)
	pitch := c.pitch * (math32.Pi / 180)
	c.front = normalize(common.Vec3{
		math32.Cos(yaw) * math32.Cos(pitch),
		math32.Sin(pitch),
		math32.Sin(yaw) * math32.Cos(pitch),
	})
	c.right = normalize(cross(c.front, c.worldUp))
	c.up = normalize(cross(c.right, c.front))
}

func cross(a, b common.Vec3) common.Vec3 {
	return common.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v common.Vec3) common.Vec3 {
	l := math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if l == 0 {
		return v
	}
	return common.Vec3{v[0] / l, v[1] / l, v[2] / l}
}
