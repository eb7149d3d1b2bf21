package engine

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/camera"
	"github.com/Carmen-Shannon/oxy-bench/engine/loader"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/scene"
	"github.com/Carmen-Shannon/oxy-bench/engine/window"
)

// DefaultTimeLimit bounds a run when no limit is configured.
const DefaultTimeLimit = 60 * time.Second

// keyStep is the camera travel time applied per key press or repeat event.
const keyStep = float32(1.0 / 30.0)

// engine implements the Engine interface.
type engine struct {
	window  window.Window
	surface renderer.Surface

	backendType     renderer.RendererBackendType
	rendererOptions []renderer.RendererBuilderOption
	loaderOptions   []loader.RegistryBuilderOption

	camera camera.Camera

	profilingEnabled bool
	profilerInterval time.Duration
	title            string

	timeLimit time.Duration
	now       func() time.Time
}

// Engine runs one benchmark session: it builds a renderer on the chosen backend, turns placements into models,
// draws them until the run stops and tears everything down again.
type Engine interface {
	// Window returns the window the engine presents into, or nil for an offscreen run.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Camera returns the camera frames are rendered from.
	Camera() camera.Camera

	// BackendType returns the renderer backend a run uses.
	BackendType() renderer.RendererBackendType

	// RunFrameLoop draws the placements until the time limit passes, the window closes or Escape is pressed.
	// Every resource the run created is released before it returns, after one device-idle wait.
	//
	// Parameters:
	//   - placements: the models to draw, in draw order
	//
	// Returns:
	//   - float64: frames rendered divided by the seconds the loop ran
	//   - error: a fatal startup, frame or teardown error
	RunFrameLoop(placements []scene.Placement) (avgFPS float64, err error)
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
//
// Without a window the engine renders into an offscreen surface, which only the headless backend accepts.
//
// Parameters:
//   - backendType: the renderer backend to run on
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(backendType renderer.RendererBackendType, options ...EngineBuilderOption) Engine {
	e := &engine{
		backendType:      backendType,
		profilerInterval: time.Second,
		title:            "oxy-bench",
		timeLimit:        DefaultTimeLimit,
		now:              time.Now,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.camera == nil {
		e.camera = camera.NewCamera()
	}
	if e.window != nil {
		e.surface = e.window
	} else if e.surface == nil {
		e.surface = &offscreenSurface{width: 1280, height: 720}
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) BackendType() renderer.RendererBackendType {
	return e.backendType
}

func (e *engine) RunFrameLoop(placements []scene.Placement) (avgFPS float64, err error) {
	options := append([]renderer.RendererBuilderOption{renderer.WithSurface(e.surface)}, e.rendererOptions...)
	r, err := renderer.NewRenderer(e.backendType, e.window, options...)
	if err != nil {
		return 0, fmt.Errorf("create renderer: %w", err)
	}

	registry := loader.NewRegistry(loader.BackendTypeGLTF,
		append([]loader.RegistryBuilderOption{loader.WithRendererBackend(r.Backend())}, e.loaderOptions...)...)

	var models []model.Model
	defer func() {
		if teardownErr := e.teardown(r, registry, models); teardownErr != nil {
			err = errors.Join(err, teardownErr)
		}
	}()

	models, err = scene.Instantiate(registry, placements)
	if err != nil {
		return 0, err
	}
	for _, m := range models {
		if err := m.Init(r.Backend(), registry, r.FramesInFlight()); err != nil {
			return 0, err
		}
	}
	drawables := make([]renderer.Drawable, len(models))
	for i, m := range models {
		drawables[i] = m
	}
	log.Printf("[Engine] %d models, %d textures, %s backend", len(models), registry.TextureCount(), e.backendType)

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			r.NotifyResized()
		})
		e.window.SetKeyDownCallback(e.handleKey)
	}

	profilerOptions := []profiler.ProfilerBuilderOption{
		profiler.WithClock(e.now),
		profiler.WithInterval(e.profilerInterval),
		profiler.WithQuiet(!e.profilingEnabled),
	}
	if e.window != nil {
		profilerOptions = append(profilerOptions, profiler.WithTitle(e.title, e.window.SetTitle))
	}
	prof := profiler.NewProfiler(profilerOptions...)

	start := e.now()
	frames := 0
	for {
		if e.window != nil {
			e.window.PollEvents()
			if !e.window.IsRunning() {
				break
			}
		}
		elapsed := e.now().Sub(start)
		if elapsed >= e.timeLimit {
			break
		}

		if err := r.RenderFrame(e.camera, float32(elapsed.Seconds()), drawables); err != nil {
			return 0, fmt.Errorf("frame %d: %w", frames, err)
		}
		frames++
		prof.Tick()
	}

	seconds := e.now().Sub(start).Seconds()
	if seconds > 0 {
		avgFPS = float64(frames) / seconds
	}
	stats := r.Stats()
	log.Printf("[Engine] %d frames in %.2fs, %.2f FPS average, %d swapchain rebuilds", frames, seconds, avgFPS, stats.Recreations)
	return avgFPS, nil
}

// handleKey moves the camera on W, A, S and D.
func (e *engine) handleKey(keyCode uint32) {
	switch keyCode {
	case common.KeyW:
		e.camera.Move(camera.MoveForward, keyStep)
	case common.KeyS:
		e.camera.Move(camera.MoveBackward, keyStep)
	case common.KeyA:
		e.camera.Move(camera.MoveLeft, keyStep)
	case common.KeyD:
		e.camera.Move(camera.MoveRight, keyStep)
	}
}

// teardown waits for the device once and releases models, then textures, then the renderer.
func (e *engine) teardown(r renderer.Renderer, registry loader.Registry, models []model.Model) error {
	if e.window != nil {
		e.window.SetResizeCallback(nil)
		e.window.SetKeyDownCallback(nil)
	}

	var errs []error
	if err := r.WaitIdle(); err != nil {
		errs = append(errs, fmt.Errorf("wait idle: %w", err))
	}
	for _, m := range models {
		m.Release()
	}
	registry.Release()
	if err := r.Destroy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// offscreenSurface is a fixed-size surface that never closes.
type offscreenSurface struct {
	width, height int
}

func (s *offscreenSurface) FramebufferSize() (int, int) { return s.width, s.height }
func (s *offscreenSurface) WaitEvents()                 {}
func (s *offscreenSurface) ShouldClose() bool           { return false }
