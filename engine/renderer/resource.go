package renderer

import (
	"fmt"
	"sync/atomic"
)

// ResourceKind classifies a GPU resource. Teardown tables order resources by kind.
type ResourceKind int

const (
	ResourceKindSwapchain ResourceKind = iota
	ResourceKindSwapchainImage
	ResourceKindSwapchainView
	ResourceKindRenderPass
	ResourceKindPipelineLayout
	ResourceKindPipeline
	ResourceKindColorImage
	ResourceKindColorView
	ResourceKindDepthImage
	ResourceKindDepthView
	ResourceKindFramebuffer
	ResourceKindCommandPool
	ResourceKindBuffer
	ResourceKindTexture
	ResourceKindTextureView
	ResourceKindSampler
	ResourceKindDescriptorPool
	ResourceKindDescriptorSet
	ResourceKindFence
	ResourceKindSemaphore
)

var resourceKindNames = map[ResourceKind]string{
	ResourceKindSwapchain:      "swapchain",
	ResourceKindSwapchainImage: "swapchain image",
	ResourceKindSwapchainView:  "swapchain view",
	ResourceKindRenderPass:     "render pass",
	ResourceKindPipelineLayout: "pipeline layout",
	ResourceKindPipeline:       "pipeline",
	ResourceKindColorImage:     "color image",
	ResourceKindColorView:      "color view",
	ResourceKindDepthImage:     "depth image",
	ResourceKindDepthView:      "depth view",
	ResourceKindFramebuffer:    "framebuffer",
	ResourceKindCommandPool:    "command pool",
	ResourceKindBuffer:         "buffer",
	ResourceKindTexture:        "texture",
	ResourceKindTextureView:    "texture view",
	ResourceKindSampler:        "sampler",
	ResourceKindDescriptorPool: "descriptor pool",
	ResourceKindDescriptorSet:  "descriptor set",
	ResourceKindFence:          "fence",
	ResourceKindSemaphore:      "semaphore",
}

// String returns the readable name of the kind.
func (k ResourceKind) String() string {
	if name, ok := resourceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var nextGeneration atomic.Uint64

// Resource is a backend handle with exactly one owner.
//
// A Resource carries the destructor bound to the device that created it and a generation id that is unique
// and increases with every resource created in the process, so a recreated object is always distinguishable
// from the one it replaced. Ownership is claimed once through ResourceRegistry.Adopt and never transferred.
type Resource struct {
	kind       ResourceKind
	label      string
	generation uint64
	handle     any
	destroy    func()

	destroyed atomic.Bool
	owner     atomic.Pointer[ResourceRegistry]
}

// NewResource wraps a backend handle.
//
// Parameters:
//   - kind: the resource kind
//   - label: a debug label
//   - handle: the backend specific handle
//   - destroy: releases the handle on its device, may be nil for handles owned by another object
//
// Returns:
//   - *Resource: the new resource
func NewResource(kind ResourceKind, label string, handle any, destroy func()) *Resource {
	return &Resource{
		kind:       kind,
		label:      label,
		generation: nextGeneration.Add(1),
		handle:     handle,
		destroy:    destroy,
	}
}

func (r *Resource) Kind() ResourceKind {
	return r.kind
}

func (r *Resource) Label() string {
	return r.label
}

// Generation returns the process-unique creation sequence number of the resource.
func (r *Resource) Generation() uint64 {
	return r.generation
}

// Handle returns the backend handle.
func (r *Resource) Handle() any {
	return r.handle
}

// Destroyed reports whether Destroy has run.
func (r *Resource) Destroyed() bool {
	return r.destroyed.Load()
}

// Owner returns the name of the owning registry, or "" when unowned.
func (r *Resource) Owner() string {
	if o := r.owner.Load(); o != nil {
		return o.name
	}
	return ""
}

// Destroy runs the destructor once. Later calls are no-ops.
//
// Returns:
//   - bool: true if this call destroyed the resource
func (r *Resource) Destroy() bool {
	if r == nil || !r.destroyed.CompareAndSwap(false, true) {
		return false
	}
	if r.destroy != nil {
		r.destroy()
	}
	return true
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s %q (gen %d)", r.kind, r.label, r.generation)
}

// HandleAs returns the resource handle as T. It panics when the handle has another type,
// which means a resource from one backend was passed to another.
//
// Parameters:
//   - r: the resource
//
// Returns:
//   - T: the typed handle
func HandleAs[T any](r *Resource) T {
	h, ok := r.handle.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("renderer: %s has handle type %T, want %T", r, r.handle, zero))
	}
	return h
}
