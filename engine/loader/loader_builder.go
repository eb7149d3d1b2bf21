package loader

import (
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
)

// RegistryBuilderOption is a functional option for configuring a Registry via NewRegistry.
type RegistryBuilderOption func(*registry)

// WithRendererBackend is an option builder that sets the backend textures are uploaded through.
//
// Parameters:
//   - b: the renderer backend
//
// Returns:
//   - RegistryBuilderOption: a function that applies the backend option to a registry
func WithRendererBackend(b renderer.RendererBackend) RegistryBuilderOption {
	return func(r *registry) {
		r.renderer = b
	}
}

// WithModel is an option builder that pre-populates the model cache with a model.
//
// Parameters:
//   - key: the cache key for the model
//   - m: the model to cache
//
// Returns:
//   - RegistryBuilderOption: a function that applies the model option to a registry
func WithModel(key string, m *model.ImportedModel) RegistryBuilderOption {
	return func(r *registry) {
		r.modelCache[key] = m
	}
}
