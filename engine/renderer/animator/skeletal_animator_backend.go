package animator

import "github.com/Carmen-Shannon/oxy-bench/common"

// skeletalAnimatorBackend samples one clip of a skeleton. The skeleton is shared read-only between every
// instance of the same model, so sampling holds no locks.
type skeletalAnimatorBackend struct {
	skel      *Skeleton
	clipIndex int
}

var _ AnimatorBackend = &skeletalAnimatorBackend{}

func newSkeletalAnimatorBackend() *skeletalAnimatorBackend {
	return &skeletalAnimatorBackend{}
}

func (b *skeletalAnimatorBackend) boneTransforms(elapsed float32) BoneTransformSet {
	if b.skel == nil {
		return nil
	}
	return Evaluate(b.skel, b.clipIndex, elapsed)
}

func (b *skeletalAnimatorBackend) localTransform(elapsed float32) common.Mat4 {
	return common.Identity()
}

func (b *skeletalAnimatorBackend) setSkeleton(s *Skeleton, clipIndex int) {
	b.skel = s
	b.clipIndex = clipIndex
}

func (b *skeletalAnimatorBackend) skeleton() *Skeleton {
	return b.skel
}
