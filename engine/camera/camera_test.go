package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/stretchr/testify/assert"
)

func TestNewCamera_Defaults(t *testing.T) {
	c := NewCamera(WithPosition(common.Vec3{0, 0, 5}))

	front := c.Front()
	assert.InDelta(t, 0, front[0], 1e-6)
	assert.InDelta(t, 0, front[1], 1e-6)
	assert.InDelta(t, -1, front[2], 1e-6)
	assert.InDelta(t, 0.7853982, c.Fov(), 1e-6)
}

func TestCamera_ViewMatrixMovesEyeToOrigin(t *testing.T) {
	c := NewCamera(WithPosition(common.Vec3{1, 2, 3}))
	view := c.ViewMatrix()

	// The eye maps to the view space origin.
	x := view[0]*1 + view[4]*2 + view[8]*3 + view[12]
	y := view[1]*1 + view[5]*2 + view[9]*3 + view[13]
	z := view[2]*1 + view[6]*2 + view[10]*3 + view[14]
	assert.InDelta(t, 0, x, 1e-5)
	assert.InDelta(t, 0, y, 1e-5)
	assert.InDelta(t, 0, z, 1e-5)
}

func TestCamera_ProjectionFlipY(t *testing.T) {
	c := NewCamera()
	up := c.ProjectionMatrix(16.0/9.0, false)
	down := c.ProjectionMatrix(16.0/9.0, true)

	assert.Greater(t, up[5], float32(0))
	assert.Equal(t, -up[5], down[5])
	assert.Equal(t, up[0], down[0])
	assert.InDelta(t, up[5]/(16.0/9.0), up[0], 1e-6)
}

func TestCamera_ProjectionZeroAspect(t *testing.T) {
	c := NewCamera()
	m := c.ProjectionMatrix(0, false)
	assert.Equal(t, m[5], m[0])
}

func TestCamera_Move(t *testing.T) {
	c := NewCamera(WithPosition(common.Vec3{0, 0, 0}), WithSpeed(2))

	c.Move(MoveForward, 1)
	assert.InDelta(t, -2, c.Position()[2], 1e-5)

	c.Move(MoveRight, 0.5)
	assert.InDelta(t, 1, c.Position()[0], 1e-5)

	c.Move(MoveBackward, 1)
	c.Move(MoveLeft, 0.5)
	pos := c.Position()
	assert.InDelta(t, 0, pos[0], 1e-5)
	assert.InDelta(t, 0, pos[2], 1e-5)
}

func TestCamera_LookClampsPitch(t *testing.T) {
	c := NewCamera()
	c.Look(0, 10000)
	front := c.Front()
	assert.Less(t, front[1], float32(1))
	assert.Greater(t, front[1], float32(0.99))
}
