package animator

import "github.com/Carmen-Shannon/oxy-bench/common"

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithSkeleton is an option builder that assigns the skeleton and the clip the Animator plays.
// No-op on simple backends.
//
// Parameters:
//   - s: the skeleton to sample
//   - clipIndex: the index of the clip to play
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the skeleton option to an animator
func WithSkeleton(s *Skeleton, clipIndex int) AnimatorBuilderOption {
	return func(a *animator) {
		a.backend.setSkeleton(s, clipIndex)
	}
}

// WithRotation is an option builder that sets the spin axis and rate of a simple Animator.
// No-op on skeletal backends.
//
// Parameters:
//   - axis: the rotation axis (need not be normalized)
//   - radiansPerSecond: the spin rate
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the rotation option to an animator
func WithRotation(axis common.Vec3, radiansPerSecond float32) AnimatorBuilderOption {
	return func(a *animator) {
		if b, ok := a.backend.(*simpleAnimatorBackend); ok {
			b.axis = axis
			b.speed = radiansPerSecond
		}
	}
}
