package renderer

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// SwapchainState is the lifecycle state of a SwapchainManager.
type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainReady
	// SwapchainSuspended means the surface has zero size and nothing can be presented.
	SwapchainSuspended
	SwapchainRebuilding
	SwapchainDestroyed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainReady:
		return "ready"
	case SwapchainSuspended:
		return "suspended"
	case SwapchainRebuilding:
		return "rebuilding"
	case SwapchainDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CommandAllocator owns command pools whose buffers are tied to the swapchain's framebuffers.
// The SwapchainManager asks it to allocate as the last rebuild step and to drop its references before teardown.
type CommandAllocator interface {
	// AllocateCommands creates the allocator's command pools and buffers.
	// The returned pools are adopted by the swapchain registry.
	AllocateCommands() ([]*Resource, error)

	// ReleaseCommands forgets every buffer allocated by AllocateCommands. The pools themselves are destroyed
	// by the swapchain registry right after.
	ReleaseCommands()
}

// SwapchainManager owns the presentable chain and everything sized to it: image views, render pass,
// pipeline, color and depth targets, framebuffers and the command allocations recorded against them.
type SwapchainManager struct {
	mu       sync.Mutex
	backend  RendererBackend
	surface  Surface
	registry *ResourceRegistry

	allocators []CommandAllocator

	state      SwapchainState
	generation uint64
	extent     Extent
	resized    atomic.Bool

	swapchain      *Resource
	images         []*Resource
	views          []*Resource
	renderPass     *Resource
	pipelineLayout *Resource
	pipeline       *Resource
	colorImage     *Resource
	colorView      *Resource
	depthImage     *Resource
	depthView      *Resource
	framebuffers   []*Resource
}

// NewSwapchainManager creates an uninitialized manager. Call Create to build the chain.
//
// Parameters:
//   - backend: the device backend
//   - surface: the presentation surface
//   - allocators: command allocators rebuilt together with the swapchain
//
// Returns:
//   - *SwapchainManager: the manager
func NewSwapchainManager(backend RendererBackend, surface Surface, allocators ...CommandAllocator) *SwapchainManager {
	return &SwapchainManager{
		backend:    backend,
		surface:    surface,
		registry:   NewResourceRegistry("swapchain", swapchainTeardownOrder),
		allocators: allocators,
	}
}

// AddAllocator registers an allocator. It takes effect at the next Create or Recreate.
func (m *SwapchainManager) AddAllocator(a CommandAllocator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocators = append(m.allocators, a)
}

// Create builds the swapchain for the first time. It blocks while the surface has zero size.
//
// Returns:
//   - error: ErrInvalidState if already created, ErrSurfaceClosed if the surface closes while suspended,
//     or a wrapped creation error
func (m *SwapchainManager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != SwapchainUninitialized {
		return fmt.Errorf("create swapchain in state %s: %w", m.state, ErrInvalidState)
	}
	extent, err := m.waitForSurface()
	if err != nil {
		return err
	}
	if err := m.build(extent); err != nil {
		return err
	}
	m.state = SwapchainReady
	m.generation = 1
	log.Printf("[Swapchain] created %dx%d with %d images", m.extent.Width, m.extent.Height, len(m.images))
	return nil
}

// Recreate rebuilds the swapchain after the surface changed.
//
// The rebuild blocks while the surface has zero size, waits for the device to go idle, releases every
// dependent in reverse creation order, and rebuilds in creation order. The generation increments on success.
//
// Returns:
//   - error: ErrSurfaceClosed if the surface closes while suspended, or a wrapped fatal error
func (m *SwapchainManager) Recreate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case SwapchainReady, SwapchainSuspended, SwapchainRebuilding:
	default:
		return fmt.Errorf("recreate swapchain in state %s: %w", m.state, ErrInvalidState)
	}

	m.state = SwapchainRebuilding
	extent, err := m.waitForSurface()
	if err != nil {
		return err
	}
	m.state = SwapchainRebuilding

	if err := m.backend.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before swapchain rebuild: %w", err)
	}
	m.teardown()

	if err := m.build(extent); err != nil {
		return err
	}
	m.resized.Store(false)
	m.state = SwapchainReady
	m.generation++
	log.Printf("[Swapchain] rebuilt %dx%d (generation %d)", m.extent.Width, m.extent.Height, m.generation)
	return nil
}

// Destroy waits for the device to go idle and releases everything the manager owns.
func (m *SwapchainManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == SwapchainDestroyed {
		return nil
	}
	err := m.backend.WaitIdle()
	m.teardown()
	m.state = SwapchainDestroyed
	if err != nil {
		return fmt.Errorf("wait idle before swapchain destroy: %w", err)
	}
	return nil
}

// NotifyResized flags the swapchain as stale. The frame scheduler rebuilds it after the next present.
func (m *SwapchainManager) NotifyResized() {
	m.resized.Store(true)
}

// Resized reports whether NotifyResized was called since the last rebuild.
func (m *SwapchainManager) Resized() bool {
	return m.resized.Load()
}

// waitForSurface blocks in the Suspended state until the surface has a drawable size.
func (m *SwapchainManager) waitForSurface() (Extent, error) {
	for {
		w, h := m.surface.FramebufferSize()
		if w > 0 && h > 0 {
			return Extent{Width: uint32(w), Height: uint32(h)}, nil
		}
		if m.surface.ShouldClose() {
			return Extent{}, ErrSurfaceClosed
		}
		if m.state != SwapchainSuspended {
			log.Printf("[Swapchain] surface has zero size, suspending")
		}
		m.state = SwapchainSuspended
		m.surface.WaitEvents()
	}
}

// build creates the swapchain and its dependents in their fixed order. On failure the partial chain is released.
func (m *SwapchainManager) build(extent Extent) (err error) {
	defer func() {
		if err != nil {
			m.teardown()
		}
	}()

	adopt := func(res ...*Resource) error {
		return m.registry.Adopt(res...)
	}

	sc, images, actual, err := m.backend.CreateSwapchain(extent)
	if err != nil {
		return fmt.Errorf("create swapchain: %w", err)
	}
	m.swapchain, m.images, m.extent = sc, images, actual
	if err := adopt(sc); err != nil {
		return err
	}
	if err := adopt(images...); err != nil {
		return err
	}

	m.views = make([]*Resource, 0, len(images))
	for i, img := range images {
		view, err := m.backend.CreateImageView(img)
		if err != nil {
			return fmt.Errorf("create swapchain image view %d: %w", i, err)
		}
		if err := adopt(view); err != nil {
			return err
		}
		m.views = append(m.views, view)
	}

	if m.renderPass, err = m.backend.CreateRenderPass(); err != nil {
		return fmt.Errorf("create render pass: %w", err)
	}
	if err := adopt(m.renderPass); err != nil {
		return err
	}

	if m.pipelineLayout, m.pipeline, err = m.backend.CreatePipeline(m.renderPass, m.extent); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	if err := adopt(m.pipelineLayout, m.pipeline); err != nil {
		return err
	}

	if m.colorImage, m.colorView, err = m.backend.CreateColorTarget(m.extent); err != nil {
		return fmt.Errorf("create color target: %w", err)
	}
	if err := adopt(m.colorImage, m.colorView); err != nil {
		return err
	}

	if m.depthImage, m.depthView, err = m.backend.CreateDepthTarget(m.extent); err != nil {
		return fmt.Errorf("create depth target: %w", err)
	}
	if err := adopt(m.depthImage, m.depthView); err != nil {
		return err
	}

	m.framebuffers = make([]*Resource, 0, len(m.views))
	for i, view := range m.views {
		fb, err := m.backend.CreateFramebuffer(m.renderPass, view, m.colorView, m.depthView, m.extent)
		if err != nil {
			return fmt.Errorf("create framebuffer %d: %w", i, err)
		}
		if err := adopt(fb); err != nil {
			return err
		}
		m.framebuffers = append(m.framebuffers, fb)
	}

	for _, a := range m.allocators {
		pools, err := a.AllocateCommands()
		if err != nil {
			return fmt.Errorf("allocate command buffers: %w", err)
		}
		if err := adopt(pools...); err != nil {
			return err
		}
	}
	return nil
}

// teardown drops allocator references and releases the registry in reverse creation order.
func (m *SwapchainManager) teardown() {
	for _, a := range m.allocators {
		a.ReleaseCommands()
	}
	m.registry.Release()

	m.swapchain = nil
	m.images = nil
	m.views = nil
	m.renderPass = nil
	m.pipelineLayout = nil
	m.pipeline = nil
	m.colorImage, m.colorView = nil, nil
	m.depthImage, m.depthView = nil, nil
	m.framebuffers = nil
}

// State returns the lifecycle state.
func (m *SwapchainManager) State() SwapchainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the rebuild counter: 1 after Create, incremented by each Recreate.
func (m *SwapchainManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *SwapchainManager) Extent() Extent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extent
}

func (m *SwapchainManager) Swapchain() *Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapchain
}

// ImageCount returns the number of presentable images.
func (m *SwapchainManager) ImageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

func (m *SwapchainManager) RenderPass() *Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderPass
}

func (m *SwapchainManager) Pipeline() (layout, pipeline *Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipelineLayout, m.pipeline
}

// Framebuffer returns the framebuffer that targets the given swapchain image.
func (m *SwapchainManager) Framebuffer(imageIndex uint32) *Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(imageIndex) >= len(m.framebuffers) {
		return nil
	}
	return m.framebuffers[imageIndex]
}

// Registry exposes the swapchain's resource registry.
func (m *SwapchainManager) Registry() *ResourceRegistry {
	return m.registry
}
