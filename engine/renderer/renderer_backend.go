package renderer

import (
	"github.com/Carmen-Shannon/oxy-bench/common"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeVulkan selects the Vulkan backend.
	BackendTypeVulkan RendererBackendType = iota

	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU

	// BackendTypeHeadless selects the in-memory backend. It draws nothing and validates frame synchronization.
	BackendTypeHeadless
)

// String returns the name used for the backend on the command line and in the config file.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeVulkan:
		return "vulkan"
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHeadless:
		return "headless"
	default:
		return "unknown"
	}
}

// ParseBackendType maps a backend name to its type.
//
// Parameters:
//   - name: "vulkan", "wgpu" or "headless"
//
// Returns:
//   - RendererBackendType: the backend type
//   - bool: false when the name is not recognized
func ParseBackendType(name string) (RendererBackendType, bool) {
	switch name {
	case "vulkan":
		return BackendTypeVulkan, true
	case "wgpu":
		return BackendTypeWGPU, true
	case "headless":
		return BackendTypeHeadless, true
	default:
		return 0, false
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but measures the highest frame rate. This is the default.
	PresentModeUncapped PresentMode = iota

	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate.
	PresentModeVSync
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing.
// Backends clamp the request to the highest count the device supports for both color and depth.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4x multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4

	// MSAA8x enables 8x multisample anti-aliasing. Device-dependent.
	MSAA8x MSAASampleCount = 8
)

// Extent is a surface or image size in pixels.
type Extent struct {
	Width, Height uint32
}

// IsZero reports whether either dimension is zero, as happens while the window is minimized.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns width / height.
func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

// ClearValues are the attachment clear values of the main render pass.
type ClearValues struct {
	Color [4]float32
	Depth float32
}

// DefaultClearValues clears to sky blue and the far depth plane.
var DefaultClearValues = ClearValues{
	Color: [4]float32{135.0 / 255.0, 206.0 / 255.0, 235.0 / 255.0, 1},
	Depth: 1,
}

// BufferUsage selects what a buffer is bound as.
type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
	BufferUsageUniform
)

// CommandBufferLevel distinguishes primary buffers, which are submitted, from secondary buffers,
// which are executed inside a primary buffer's render pass.
type CommandBufferLevel int

const (
	CommandBufferLevelPrimary CommandBufferLevel = iota
	CommandBufferLevelSecondary
)

// PushConstantSize is the size of the per-draw push constant block: the PVM and model matrices.
const PushConstantSize = 128

// DescriptorBinding lists the resources bound to one draw's descriptor set.
// A nil specular texture falls back to the diffuse texture and sampler.
type DescriptorBinding struct {
	Uniform         *Resource
	Diffuse         *Resource
	DiffuseSampler  *Resource
	Specular        *Resource
	SpecularSampler *Resource
}

// Surface is the presentation target a swapchain is built for.
type Surface interface {
	// FramebufferSize returns the drawable size in pixels. Zero while minimized.
	FramebufferSize() (width, height int)

	// WaitEvents blocks until the windowing system delivers an event.
	WaitEvents()

	// ShouldClose reports whether the user asked to close the surface.
	ShouldClose() bool
}

// CommandBuffer records GPU commands. A command buffer is used by one goroutine at a time.
//
// Recording calls do not return errors. A backend reports invalid recording from End.
type CommandBuffer interface {
	// Level returns whether the buffer is primary or secondary.
	Level() CommandBufferLevel

	// Reset discards recorded commands.
	Reset() error

	// BeginPrimary starts recording a one-time-submit primary buffer.
	BeginPrimary() error

	// BeginSecondary starts recording a secondary buffer that continues the given render pass and framebuffer.
	BeginSecondary(renderPass, framebuffer *Resource) error

	// BeginRenderPass begins a render pass. With secondaryContents the pass body must come from ExecuteCommands.
	BeginRenderPass(renderPass, framebuffer *Resource, extent Extent, clear ClearValues, secondaryContents bool)

	// ExecuteCommands replays ended secondary buffers in order.
	ExecuteCommands(secondary []CommandBuffer)

	EndRenderPass()

	// End finishes recording.
	End() error

	SetViewport(extent Extent)
	BindPipeline(pipeline *Resource)
	BindVertexBuffer(buffer *Resource)
	BindIndexBuffer(buffer *Resource)
	BindDescriptorSet(layout, set *Resource)
	PushConstants(layout *Resource, data []byte)
	DrawIndexed(indexCount uint32)
}

// RendererBackend is the device-level interface every graphics API implementation provides.
// Every create call returns a Resource whose destructor is bound to this backend's device.
// CreateBuffer, WriteBuffer and the CommandBuffer recording calls may run concurrently from recorder tasks.
// Everything else is called from the render goroutine.
type RendererBackend interface {
	// Name returns a human readable device description.
	Name() string

	// Swapchain and its dependents, created in this order by the SwapchainManager.
	CreateSwapchain(extent Extent) (swapchain *Resource, images []*Resource, actual Extent, err error)
	CreateImageView(image *Resource) (*Resource, error)
	CreateRenderPass() (*Resource, error)
	CreatePipeline(renderPass *Resource, extent Extent) (layout, pipeline *Resource, err error)
	CreateColorTarget(extent Extent) (image, view *Resource, err error)
	CreateDepthTarget(extent Extent) (image, view *Resource, err error)
	CreateFramebuffer(renderPass, swapchainView, colorView, depthView *Resource, extent Extent) (*Resource, error)

	// Commands and synchronization.
	CreateCommandPool(label string) (*Resource, error)
	AllocateCommandBuffers(pool *Resource, level CommandBufferLevel, count int) ([]CommandBuffer, error)
	CreateFence(signaled bool) (*Resource, error)
	CreateSemaphore() (*Resource, error)
	WaitForFence(fence *Resource) error
	ResetFence(fence *Resource) error

	// AcquireNextImage returns the index of the next presentable image and arranges for signal to be signaled
	// when it is ready. It returns ErrSwapchainOutOfDate when no image could be acquired, and a valid index
	// together with ErrSwapchainSuboptimal when the image is usable but the swapchain should be rebuilt.
	AcquireNextImage(swapchain, signal *Resource) (uint32, error)

	// Submit queues a primary buffer that waits on wait, signals signal and then signals fence.
	Submit(cmd CommandBuffer, wait, signal, fence *Resource) error

	// Present queues the image for display once wait is signaled.
	// It returns ErrSwapchainOutOfDate or ErrSwapchainSuboptimal when the swapchain should be rebuilt.
	Present(swapchain *Resource, imageIndex uint32, wait *Resource) error

	// Model resources.
	CreateBuffer(label string, usage BufferUsage, data []byte) (*Resource, error)
	WriteBuffer(buffer *Resource, offset uint64, data []byte) error
	CreateTexture(label string, data common.TextureStagingData) (texture, view *Resource, err error)
	CreateSampler(label string) (*Resource, error)
	CreateDescriptorPool(label string, maxSets int) (*Resource, error)
	AllocateDescriptorSet(pool *Resource, binding DescriptorBinding) (*Resource, error)

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error

	// FlipsProjectionY reports whether clip space Y points down, so projections must be flipped.
	FlipsProjectionY() bool

	// Destroy releases the device. Every resource must be destroyed first.
	Destroy()
}
