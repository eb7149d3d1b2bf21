package animator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
)

// animator is the implementation of the Animator interface.
type animator struct {
	backendType AnimatorBackendType
	backend     AnimatorBackend
}

// Animator defines the public interface for the animation system.
//
// An Animator turns elapsed time into the data a model needs to draw one frame: the bone matrices that go
// into its uniform buffer and the extra model-space motion applied on top of its placement.
// It delegates to an AnimatorBackend which provides either simple whole-model rotation or skeletal evaluation.
// Animators are immutable after construction and safe to sample from concurrent recorder tasks.
type Animator interface {
	// BackendType returns the type of backend this animator is using.
	//
	// Returns:
	//   - AnimatorBackendType: the backend type (BackendTypeSimple or BackendTypeSkeletal)
	BackendType() AnimatorBackendType

	// Skeleton returns the sampled skeleton, or nil for simple animators.
	//
	// Returns:
	//   - *Skeleton: the skeleton
	Skeleton() *Skeleton

	// BoneTransforms evaluates the skinning matrices at the given time.
	// Simple animators return nil.
	//
	// Parameters:
	//   - elapsed: playback time in seconds
	//
	// Returns:
	//   - BoneTransformSet: one matrix per bone
	BoneTransforms(elapsed float32) BoneTransformSet

	// ModelMatrix composes the placement matrix with the animator's own motion at the given time.
	//
	// Parameters:
	//   - placement: the model's translate * scale matrix
	//   - elapsed: playback time in seconds
	//
	// Returns:
	//   - common.Mat4: the final model matrix
	ModelMatrix(placement common.Mat4, elapsed float32) common.Mat4
}

var _ Animator = &animator{}

// NewAnimator creates a new Animator with the specified backend type and options.
// A skeletal animator whose skeleton fails Validate, or whose clip index is out of range, is rejected.
//
// Parameters:
//   - backendType: the type of animation backend to use
//   - options: variadic list of AnimatorBuilderOption functions to configure the animator
//
// Returns:
//   - Animator: the newly created Animator instance
//   - error: an error if the skeleton cannot be sampled
func NewAnimator(backendType AnimatorBackendType, options ...AnimatorBuilderOption) (Animator, error) {
	a := &animator{backendType: backendType}
	switch backendType {
	case BackendTypeSimple:
		a.backend = newSimpleAnimatorBackend()
	case BackendTypeSkeletal:
		a.backend = newSkeletalAnimatorBackend()
	default:
		return nil, fmt.Errorf("unknown animator backend type %d", backendType)
	}

	for _, opt := range options {
		opt(a)
	}

	if backendType == BackendTypeSkeletal {
		b := a.backend.(*skeletalAnimatorBackend)
		if b.skel == nil {
			return nil, fmt.Errorf("skeletal animator requires a skeleton")
		}
		if err := b.skel.Validate(); err != nil {
			return nil, fmt.Errorf("invalid skeleton: %w", err)
		}
		if len(b.skel.Clips) > 0 && (b.clipIndex < 0 || b.clipIndex >= len(b.skel.Clips)) {
			return nil, fmt.Errorf("clip index %d out of range [0, %d)", b.clipIndex, len(b.skel.Clips))
		}
	}
	return a, nil
}

func (a *animator) BackendType() AnimatorBackendType {
	return a.backendType
}

func (a *animator) Skeleton() *Skeleton {
	return a.backend.skeleton()
}

func (a *animator) BoneTransforms(elapsed float32) BoneTransformSet {
	return a.backend.boneTransforms(elapsed)
}

func (a *animator) ModelMatrix(placement common.Mat4, elapsed float32) common.Mat4 {
	return placement.Mul(a.backend.localTransform(elapsed))
}
