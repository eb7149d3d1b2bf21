package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// backendConfig carries the builder options a device backend needs at creation.
type backendConfig struct {
	presentMode          PresentMode
	msaa                 MSAASampleCount
	shaderDir            string
	forceFallbackAdapter bool
	validation           bool
}

// WithBackend injects an already created backend instead of creating one from the backend type.
// Tests use it to hand in a HeadlessRendererBackend they keep a reference to.
//
// Parameters:
//   - backend: the backend to render with
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend option to a renderer
func WithBackend(backend RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = backend
	}
}

// WithSurface overrides the window as the presentation surface the swapchain sizes itself to.
//
// Parameters:
//   - surface: the surface to query for size and events
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option to a renderer
func WithSurface(surface Surface) RendererBuilderOption {
	return func(r *renderer) {
		r.surface = surface
	}
}

// WithFramesInFlight sets how many frames the CPU may record ahead of the GPU. The default is 2.
//
// Parameters:
//   - n: the number of frame slots
//
// Returns:
//   - RendererBuilderOption: a function that applies the frames in flight option to a renderer
func WithFramesInFlight(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.framesInFlight = n
		}
	}
}

// WithWorkers sets the size of the command recording pool. The default is one less than the CPU count.
//
// Parameters:
//   - n: the number of recording goroutines
//
// Returns:
//   - RendererBuilderOption: a function that applies the workers option to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithClearValues sets the color and depth the render pass clears to.
//
// Parameters:
//   - clear: the clear values
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear values option to a renderer
func WithClearValues(clear ClearValues) RendererBuilderOption {
	return func(r *renderer) {
		r.clear = clear
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.msaa = count
	}
}

// WithShaderDir sets the directory the Vulkan backend loads its compiled SPIR-V shaders from.
//
// Parameters:
//   - dir: the directory holding skinned.vert.spv and skinned.frag.spv
//
// Returns:
//   - RendererBuilderOption: a function that applies the shader directory option to a renderer
func WithShaderDir(dir string) RendererBuilderOption {
	return func(r *renderer) {
		r.shaderDir = dir
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithValidation enables the Vulkan validation layer when it is installed.
//
// Parameters:
//   - enabled: true to request VK_LAYER_KHRONOS_validation
//
// Returns:
//   - RendererBuilderOption: a function that applies the validation option to a renderer
func WithValidation(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.validation = enabled
	}
}
