package animator

import "github.com/Carmen-Shannon/oxy-bench/common"

// DefaultRotationAxis is the axis simple models spin around.
var DefaultRotationAxis = common.Vec3{0.5, 1, 0}

// simpleAnimatorBackend spins a static model about an axis at a constant rate.
type simpleAnimatorBackend struct {
	axis  common.Vec3
	speed float32
}

var _ AnimatorBackend = &simpleAnimatorBackend{}

func newSimpleAnimatorBackend() *simpleAnimatorBackend {
	return &simpleAnimatorBackend{
		axis:  DefaultRotationAxis,
		speed: 1,
	}
}

func (b *simpleAnimatorBackend) boneTransforms(elapsed float32) BoneTransformSet {
	return nil
}

func (b *simpleAnimatorBackend) localTransform(elapsed float32) common.Mat4 {
	return common.RotationAxis(elapsed*b.speed, b.axis)
}

func (b *simpleAnimatorBackend) setSkeleton(s *Skeleton, clipIndex int) {}

func (b *simpleAnimatorBackend) skeleton() *Skeleton {
	return nil
}
