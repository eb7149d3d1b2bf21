package renderer

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/window"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	surface     Surface

	deviceRegistry *ResourceRegistry
	swapchain      *SwapchainManager
	scheduler      *FrameScheduler
	recorder       *CommandRecorder

	destroyed bool

	// Pre-creation config collected from builder options
	framesInFlight       int
	workers              int
	clear                ClearValues
	presentMode          PresentMode
	msaa                 MSAASampleCount
	shaderDir            string
	forceFallbackAdapter bool
	validation           bool
}

// Camera supplies the view and projection of a frame. The projection is requested per frame because the
// aspect ratio follows the swapchain extent, which changes on every rebuild.
type Camera interface {
	// ViewMatrix returns the world-to-view transform.
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the view-to-clip transform.
	//
	// Parameters:
	//   - aspect: the swapchain width / height
	//   - flipY: true when the backend's clip space has Y pointing down
	ProjectionMatrix(aspect float32, flipY bool) common.Mat4

	// Position returns the eye position in world space.
	Position() common.Vec3
}

// Renderer defines the interface for the rendering system.
//
// The Renderer owns the device backend and the per-frame machinery built on top of it: the swapchain and
// everything sized to it, the frame scheduler with its fences and semaphores, and the parallel command
// recorder. A frame is rendered with a single RenderFrame call from the goroutine that owns the window.
type Renderer interface {
	// BackendType returns the backend the renderer was created with.
	BackendType() RendererBackendType

	// Backend returns the device backend. Models use it to create their buffers, textures and descriptor sets.
	Backend() RendererBackend

	// Swapchain returns the swapchain manager.
	Swapchain() *SwapchainManager

	// FramesInFlight returns the number of frames the CPU may record ahead of the GPU.
	FramesInFlight() int

	// Workers returns the size of the command recording pool.
	Workers() int

	// RenderFrame schedules, records, submits and presents one frame.
	//
	// Swapchain staleness is handled internally. Only fatal errors and recording failures are returned,
	// and a frame whose recording failed is never submitted.
	//
	// Parameters:
	//   - camera: the camera to render from
	//   - elapsed: seconds since the run started
	//   - drawables: the models to draw, in draw order
	//
	// Returns:
	//   - error: a fatal error
	RenderFrame(camera Camera, elapsed float32, drawables []Drawable) error

	// NotifyResized flags the swapchain as stale. It is rebuilt after the next present.
	NotifyResized()

	// Stats returns the frame scheduler's counters.
	Stats() FrameStats

	// WaitIdle blocks until the device has finished all submitted work.
	//
	// Returns:
	//   - error: a device error
	WaitIdle() error

	// Destroy waits for the device to go idle and releases everything the renderer owns, in the order
	// recorder, swapchain, device registry, device. Model and texture resources must be released first.
	//
	// Returns:
	//   - error: the joined teardown errors
	Destroy() error
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on the specified backend and builds its swapchain.
//
// The window supplies the presentation surface for the Vulkan and WGPU backends. It may be nil when
// WithSurface provides a surface and the backend is headless or injected with WithBackend.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - win: the window to present into
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer, ready to render frames
//   - error: ErrNoSuitableDevice or a wrapped creation error
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:             &sync.Mutex{},
		backendType:    backendType,
		framesInFlight: DefaultFramesInFlight,
		workers:        DefaultRecorderWorkers(),
		clear:          DefaultClearValues,
		presentMode:    PresentModeUncapped,
		msaa:           MSAA4x,
		shaderDir:      "shaders",
	}

	// Options first so config flags are available before a device is requested.
	for _, opt := range options {
		opt(r)
	}

	if r.surface == nil {
		if win == nil {
			return nil, fmt.Errorf("new renderer: no window or surface: %w", ErrInvalidState)
		}
		r.surface = win
	}

	if r.backend == nil {
		backend, err := r.createBackend(win)
		if err != nil {
			return nil, err
		}
		r.backend = backend
	}

	if err := r.init(); err != nil {
		r.teardown()
		return nil, err
	}
	log.Printf("[Renderer] %s backend ready: %d frames in flight, %d recording workers", r.backend.Name(), r.framesInFlight, r.workers)
	return r, nil
}

func (r *renderer) createBackend(win window.Window) (RendererBackend, error) {
	cfg := backendConfig{
		presentMode:          r.presentMode,
		msaa:                 r.msaa,
		shaderDir:            r.shaderDir,
		forceFallbackAdapter: r.forceFallbackAdapter,
		validation:           r.validation,
	}
	switch r.backendType {
	case BackendTypeHeadless:
		return NewHeadlessRendererBackend(), nil
	case BackendTypeVulkan:
		if win == nil {
			return nil, fmt.Errorf("vulkan backend requires a window: %w", ErrInvalidState)
		}
		return newVulkanRendererBackend(win, cfg)
	case BackendTypeWGPU:
		if win == nil {
			return nil, fmt.Errorf("wgpu backend requires a window: %w", ErrInvalidState)
		}
		return newWGPURendererBackend(win, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type %d", r.backendType)
	}
}

// init builds the frame machinery on top of the backend.
func (r *renderer) init() error {
	r.deviceRegistry = NewResourceRegistry("device", deviceTeardownOrder)
	r.recorder = NewCommandRecorder(r.backend, r.framesInFlight, r.workers, r.clear)
	r.workers = r.recorder.Workers()

	r.swapchain = NewSwapchainManager(r.backend, r.surface, r.recorder)
	if err := r.swapchain.Create(); err != nil {
		return err
	}

	scheduler, err := NewFrameScheduler(r.backend, r.swapchain, r.deviceRegistry, r.framesInFlight)
	if err != nil {
		return err
	}
	r.scheduler = scheduler
	return nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) Swapchain() *SwapchainManager {
	return r.swapchain
}

func (r *renderer) FramesInFlight() int {
	return r.framesInFlight
}

func (r *renderer) Workers() int {
	return r.workers
}

func (r *renderer) RenderFrame(camera Camera, elapsed float32, drawables []Drawable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return fmt.Errorf("render frame: %w", ErrResourceDestroyed)
	}

	token, err := r.scheduler.BeginFrame()
	if err != nil {
		return err
	}

	// Read after BeginFrame, which may have rebuilt the swapchain.
	extent := r.swapchain.Extent()
	layout, pipeline := r.swapchain.Pipeline()
	frame := &FrameContext{
		Slot:           token.Slot,
		ImageIndex:     token.ImageIndex,
		Extent:         extent,
		RenderPass:     r.swapchain.RenderPass(),
		Framebuffer:    r.swapchain.Framebuffer(token.ImageIndex),
		Pipeline:       pipeline,
		PipelineLayout: layout,
		View:           camera.ViewMatrix(),
		Projection:     camera.ProjectionMatrix(extent.Aspect(), r.backend.FlipsProjectionY()),
		CameraPosition: camera.Position(),
		Elapsed:        elapsed,
	}

	primary, err := r.recorder.RecordFrame(frame, drawables)
	if err != nil {
		return errors.Join(err, r.scheduler.AbandonFrame(token))
	}
	return r.scheduler.SubmitAndPresent(token, primary)
}

func (r *renderer) NotifyResized() {
	r.swapchain.NotifyResized()
}

func (r *renderer) Stats() FrameStats {
	if r.scheduler == nil {
		return FrameStats{}
	}
	return r.scheduler.Stats()
}

func (r *renderer) WaitIdle() error {
	return r.backend.WaitIdle()
}

func (r *renderer) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil
	}
	r.destroyed = true
	return r.teardown()
}

// teardown releases whatever init managed to create. It is also the cleanup path of a failed NewRenderer.
func (r *renderer) teardown() error {
	var errs []error
	if err := r.backend.WaitIdle(); err != nil {
		errs = append(errs, fmt.Errorf("wait idle before renderer destroy: %w", err))
	}
	if r.recorder != nil {
		r.recorder.Destroy()
	}
	if r.swapchain != nil {
		if err := r.swapchain.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.deviceRegistry != nil {
		r.deviceRegistry.Release()
	}
	r.backend.Destroy()
	return errors.Join(errs...)
}
