package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAllocator creates one command pool per allocation.
type countingAllocator struct {
	backend  RendererBackend
	allocs   int
	releases int
}

func (a *countingAllocator) AllocateCommands() ([]*Resource, error) {
	a.allocs++
	pool, err := a.backend.CreateCommandPool("test pool")
	if err != nil {
		return nil, err
	}
	return []*Resource{pool}, nil
}

func (a *countingAllocator) ReleaseCommands() {
	a.releases++
}

func TestSwapchainManager_CreateBuildsEveryDependent(t *testing.T) {
	backend := NewHeadlessRendererBackend(WithHeadlessImageCount(3))
	alloc := &countingAllocator{backend: backend}
	m := NewSwapchainManager(backend, newFakeSurface(800, 600), alloc)

	require.NoError(t, m.Create())
	assert.Equal(t, SwapchainReady, m.State())
	assert.Equal(t, uint64(1), m.Generation())
	assert.Equal(t, Extent{Width: 800, Height: 600}, m.Extent())
	assert.Equal(t, 3, m.ImageCount())
	assert.Equal(t, 1, alloc.allocs)

	layout, pipeline := m.Pipeline()
	assert.NotNil(t, layout)
	assert.NotNil(t, pipeline)
	assert.NotNil(t, m.RenderPass())
	for i := uint32(0); i < 3; i++ {
		assert.NotNil(t, m.Framebuffer(i))
	}
	assert.Nil(t, m.Framebuffer(3))

	// swapchain, 3 images, 3 views, render pass, layout and pipeline, color and depth pairs, 3 framebuffers, pool
	assert.Equal(t, 18, m.Registry().Len())

	require.NoError(t, m.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestSwapchainManager_CreateTwiceIsInvalid(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	m := NewSwapchainManager(backend, newFakeSurface(640, 480))
	require.NoError(t, m.Create())
	defer m.Destroy()

	assert.ErrorIs(t, m.Create(), ErrInvalidState)
}

func TestSwapchainManager_RecreateReplacesDependents(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	surface := newFakeSurface(800, 600)
	alloc := &countingAllocator{backend: backend}
	m := NewSwapchainManager(backend, surface, alloc)
	require.NoError(t, m.Create())

	oldFramebuffer := m.Framebuffer(0)
	oldSwapchain := m.Swapchain()
	surface.resize(1024, 768)

	require.NoError(t, m.Recreate())
	assert.Equal(t, uint64(2), m.Generation())
	assert.Equal(t, SwapchainReady, m.State())
	assert.Equal(t, Extent{Width: 1024, Height: 768}, m.Extent())
	assert.True(t, oldFramebuffer.Destroyed())
	assert.True(t, oldSwapchain.Destroyed())
	assert.NotSame(t, oldSwapchain, m.Swapchain())
	assert.Greater(t, m.Swapchain().Generation(), oldSwapchain.Generation())

	assert.Equal(t, 2, backend.SwapchainsCreated())
	assert.Equal(t, 1, backend.WaitIdleCalls())
	assert.Equal(t, 2, alloc.allocs)
	assert.Equal(t, 1, alloc.releases)
	assert.Equal(t, 3, backend.LiveResources(ResourceKindFramebuffer))
	assert.Equal(t, 1, backend.LiveResources(ResourceKindCommandPool))

	require.NoError(t, m.Destroy())
	assert.Equal(t, SwapchainDestroyed, m.State())
	assert.Zero(t, backend.LiveResources(ResourceKindFramebuffer))
	assert.Empty(t, backend.Violations())

	assert.ErrorIs(t, m.Recreate(), ErrInvalidState)
}

func TestSwapchainManager_ResizeFlagClearsOnRebuild(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	m := NewSwapchainManager(backend, newFakeSurface(800, 600))
	require.NoError(t, m.Create())
	defer m.Destroy()

	m.NotifyResized()
	assert.True(t, m.Resized())
	require.NoError(t, m.Recreate())
	assert.False(t, m.Resized())
}

func TestSwapchainManager_SuspendsWhileSurfaceIsZero(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	surface := newFakeSurface(0, 0)
	surface.onWait = func(s *fakeSurface) {
		if s.waitCount() == 3 {
			s.resize(640, 480)
		}
	}
	m := NewSwapchainManager(backend, surface)

	require.NoError(t, m.Create())
	assert.Equal(t, 3, surface.waitCount())
	assert.Equal(t, SwapchainReady, m.State())
	assert.Equal(t, Extent{Width: 640, Height: 480}, m.Extent())

	// minimize, then restore after one event pump
	surface.resize(0, 0)
	surface.onWait = func(s *fakeSurface) { s.resize(800, 600) }
	require.NoError(t, m.Recreate())
	assert.Equal(t, 4, surface.waitCount())
	assert.Equal(t, Extent{Width: 800, Height: 600}, m.Extent())
	assert.Equal(t, uint64(2), m.Generation())

	require.NoError(t, m.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestSwapchainManager_SurfaceClosedWhileSuspended(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	surface := newFakeSurface(0, 0)
	surface.onWait = func(s *fakeSurface) { s.close() }
	m := NewSwapchainManager(backend, surface)

	assert.ErrorIs(t, m.Create(), ErrSurfaceClosed)
	assert.Equal(t, SwapchainSuspended, m.State())
	assert.Zero(t, backend.SwapchainsCreated())
}
