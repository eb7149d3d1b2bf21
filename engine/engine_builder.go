package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-bench/engine/camera"
	"github.com/Carmen-Shannon/oxy-bench/engine/loader"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables the profiler's log output. The window title shows FPS either way.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfilerInterval sets how often the profiler reports.
func WithProfilerInterval(interval time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.profilerInterval = interval
	}
}

// WithWindow sets the window the engine presents into and reads input from.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithSurface sets the surface of a windowless run. Ignored when a window is set.
func WithSurface(s renderer.Surface) EngineBuilderOption {
	return func(e *engine) {
		e.surface = s
	}
}

// WithTitle sets the window title prefix the frame rate is appended to.
//
// Parameters:
//   - title: the title prefix
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTitle(title string) EngineBuilderOption {
	return func(e *engine) {
		e.title = title
	}
}

// WithTimeLimit sets how long RunFrameLoop draws. Values <= 0 keep DefaultTimeLimit.
//
// Parameters:
//   - limit: the run duration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTimeLimit(limit time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if limit > 0 {
			e.timeLimit = limit
		}
	}
}

// WithCamera replaces the default fly camera.
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithRendererOptions appends options passed to renderer.NewRenderer on every run.
//
// Parameters:
//   - options: renderer builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithLoaderOptions appends options passed to loader.NewRegistry on every run.
func WithLoaderOptions(options ...loader.RegistryBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.loaderOptions = append(e.loaderOptions, options...)
	}
}

// WithClock replaces time.Now for the run timer and the profiler.
func WithClock(now func() time.Time) EngineBuilderOption {
	return func(e *engine) {
		e.now = now
	}
}
