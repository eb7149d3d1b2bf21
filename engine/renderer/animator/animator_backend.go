package animator

import "github.com/Carmen-Shannon/oxy-bench/common"

// AnimatorBackendType identifies the type of animation backend used by an Animator.
type AnimatorBackendType int

const (
	// BackendTypeSimple rotates the whole model about a fixed axis as time passes.
	// It produces no bone matrices.
	BackendTypeSimple AnimatorBackendType = iota

	// BackendTypeSkeletal evaluates a skeleton's keyframed clip into per-bone skinning matrices.
	BackendTypeSkeletal
)

// String returns a readable name for the backend type.
func (t AnimatorBackendType) String() string {
	switch t {
	case BackendTypeSimple:
		return "simple"
	case BackendTypeSkeletal:
		return "skeletal"
	default:
		return "unknown"
	}
}

// AnimatorBackend is the interface that all animation backends implement.
// Both methods must be safe to call from multiple goroutines at once, since recorder tasks sample
// different models concurrently and never mutate backend state.
type AnimatorBackend interface {
	// boneTransforms returns the skinning matrices for the given time.
	boneTransforms(elapsed float32) BoneTransformSet

	// localTransform returns the model-space motion applied after placement for the given time.
	localTransform(elapsed float32) common.Mat4

	// setSkeleton assigns the skeleton and clip to sample. Simple backends ignore it.
	setSkeleton(s *Skeleton, clipIndex int)

	// skeleton returns the assigned skeleton, or nil.
	skeleton() *Skeleton
}
