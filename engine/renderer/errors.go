package renderer

import "errors"

// Transient swapchain results. The frame scheduler consumes both by rebuilding the swapchain,
// so they never reach the caller of RenderFrame.
var (
	// ErrSwapchainOutOfDate reports that the surface changed and the swapchain can no longer be presented to.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")

	// ErrSwapchainSuboptimal reports that the swapchain still works but no longer matches the surface exactly.
	ErrSwapchainSuboptimal = errors.New("swapchain suboptimal")
)

// Fatal conditions.
var (
	// ErrNoSuitableDevice is returned at startup when no device supports presentation to the surface
	// with the required formats.
	ErrNoSuitableDevice = errors.New("no device with presentation support and required formats")

	// ErrSurfaceClosed is returned when the window closes while the renderer is waiting for a usable surface size.
	ErrSurfaceClosed = errors.New("surface closed")

	// ErrResourceOwned is returned when adopting a resource that already has an owner.
	ErrResourceOwned = errors.New("resource already owned")

	// ErrResourceDestroyed is returned when an operation references a destroyed resource.
	ErrResourceDestroyed = errors.New("resource destroyed")

	// ErrInvalidState is returned when an operation is not allowed in the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
)
