package model

import (
	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// ModelBuilderOption is a function that configures a model instance during construction.
type ModelBuilderOption func(*model)

// WithName is an option builder that overrides the name taken from the imported model.
//
// Parameters:
//   - name: the identifier for the model
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithPosition is an option builder that sets the world position of the model.
//
// Parameters:
//   - position: the world position
//
// Returns:
//   - ModelBuilderOption: a function that applies the position option to a model
func WithPosition(position common.Vec3) ModelBuilderOption {
	return func(m *model) {
		m.position = position
	}
}

// WithScale is an option builder that sets the per-axis scale of the model.
//
// Parameters:
//   - scale: the scale factors
//
// Returns:
//   - ModelBuilderOption: a function that applies the scale option to a model
func WithScale(scale common.Vec3) ModelBuilderOption {
	return func(m *model) {
		m.scale = scale
	}
}

// WithUniformScale sets the same scale on every axis.
func WithUniformScale(s float32) ModelBuilderOption {
	return WithScale(common.Vec3{s, s, s})
}

// WithAnimator is an option builder that sets the animator sampled every frame.
// Without one the model draws in its bind pose with the placement matrix only.
//
// Parameters:
//   - anim: the animator
//
// Returns:
//   - ModelBuilderOption: a function that applies the animator option to a model
func WithAnimator(anim animator.Animator) ModelBuilderOption {
	return func(m *model) {
		m.anim = anim
	}
}

// WithTextures is an option builder that replaces the imported materials with one explicit texture pair.
// Every mesh of the model draws with it. A nil specular texture falls back to the diffuse texture.
//
// Parameters:
//   - diffuse: the diffuse texture
//   - specular: the optional specular texture
//
// Returns:
//   - ModelBuilderOption: a function that applies the texture option to a model
func WithTextures(diffuse, specular *common.ImportedTexture) ModelBuilderOption {
	return func(m *model) {
		m.diffuseOverride = diffuse
		m.specularOverride = specular
	}
}
