package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingResource(kind ResourceKind, label string, log *[]string) *Resource {
	return NewResource(kind, label, nil, func() { *log = append(*log, label) })
}

func TestResource_GenerationsIncrease(t *testing.T) {
	a := NewResource(ResourceKindBuffer, "a", nil, nil)
	b := NewResource(ResourceKindBuffer, "b", nil, nil)
	assert.Less(t, a.Generation(), b.Generation())
}

func TestResource_DestroyRunsOnce(t *testing.T) {
	var log []string
	r := newCountingResource(ResourceKindBuffer, "vb", &log)

	assert.True(t, r.Destroy())
	assert.False(t, r.Destroy())
	assert.True(t, r.Destroyed())
	assert.Equal(t, []string{"vb"}, log)
}

func TestHandleAs_PanicsOnForeignHandle(t *testing.T) {
	r := NewResource(ResourceKindFence, "fence", 42, nil)
	assert.Equal(t, 42, HandleAs[int](r))
	assert.Panics(t, func() { HandleAs[*headlessFence](r) })
}

func TestResourceRegistry_ReleasesInTeardownOrder(t *testing.T) {
	var log []string
	reg := NewResourceRegistry("swapchain", swapchainTeardownOrder)

	require.NoError(t, reg.Adopt(newCountingResource(ResourceKindSwapchain, "swapchain", &log)))
	require.NoError(t, reg.Adopt(
		newCountingResource(ResourceKindSwapchainView, "view 0", &log),
		newCountingResource(ResourceKindSwapchainView, "view 1", &log),
	))
	require.NoError(t, reg.Adopt(newCountingResource(ResourceKindRenderPass, "render pass", &log)))
	require.NoError(t, reg.Adopt(newCountingResource(ResourceKindFramebuffer, "framebuffer", &log)))
	require.NoError(t, reg.Adopt(newCountingResource(ResourceKindCommandPool, "pool", &log)))
	assert.Equal(t, 6, reg.Len())

	released := reg.Release()
	assert.Len(t, released, 6)
	assert.Equal(t, []string{"pool", "framebuffer", "render pass", "view 1", "view 0", "swapchain"}, log)
	assert.Equal(t, 0, reg.Len())
}

func TestResourceRegistry_ExclusiveOwnership(t *testing.T) {
	device := NewResourceRegistry("device", deviceTeardownOrder)
	model := NewModelResourceRegistry("chimp")

	buf := NewResource(ResourceKindBuffer, "vertices", nil, nil)
	require.NoError(t, model.Adopt(buf))
	assert.Equal(t, "chimp", buf.Owner())

	err := device.Adopt(buf)
	assert.ErrorIs(t, err, ErrResourceOwned)
	assert.Equal(t, "chimp", buf.Owner())

	err = model.Adopt(buf)
	assert.ErrorIs(t, err, ErrResourceOwned)
}

func TestResourceRegistry_AdoptIsAllOrNothing(t *testing.T) {
	reg := NewModelResourceRegistry("bird")
	owned := NewResource(ResourceKindBuffer, "owned", nil, nil)
	require.NoError(t, NewModelResourceRegistry("other").Adopt(owned))

	fresh := NewResource(ResourceKindBuffer, "fresh", nil, nil)
	err := reg.Adopt(fresh, owned)
	require.ErrorIs(t, err, ErrResourceOwned)
	assert.Equal(t, "", fresh.Owner())
	assert.Equal(t, 0, reg.Len())
}

func TestResourceRegistry_RejectsDestroyedAndForeignKinds(t *testing.T) {
	reg := NewTextureResourceRegistry("textures")

	dead := NewResource(ResourceKindTexture, "dead", nil, nil)
	dead.Destroy()
	assert.ErrorIs(t, reg.Adopt(dead), ErrResourceDestroyed)

	assert.Error(t, reg.Adopt(NewResource(ResourceKindFence, "fence", nil, nil)))
}

func TestResourceRegistry_ReplaceKeepsTeardownPosition(t *testing.T) {
	var log []string
	reg := NewResourceRegistry("device", deviceTeardownOrder)

	first := newCountingResource(ResourceKindSemaphore, "first", &log)
	second := newCountingResource(ResourceKindSemaphore, "second", &log)
	require.NoError(t, reg.Adopt(first, second))

	fresh := newCountingResource(ResourceKindSemaphore, "fresh", &log)
	require.NoError(t, reg.Replace(first, fresh))
	assert.True(t, first.Destroyed())
	assert.Equal(t, "device", fresh.Owner())
	assert.Equal(t, []*Resource{fresh, second}, reg.Get(ResourceKindSemaphore))

	log = nil
	reg.Release()
	assert.Equal(t, []string{"second", "fresh"}, log)
}

func TestResourceRegistry_ReplaceRejectsMismatches(t *testing.T) {
	reg := NewResourceRegistry("device", deviceTeardownOrder)
	owned := NewResource(ResourceKindFence, "fence", nil, nil)
	require.NoError(t, reg.Adopt(owned))

	assert.Error(t, reg.Replace(NewResource(ResourceKindFence, "stray", nil, nil), NewResource(ResourceKindFence, "x", nil, nil)))
	assert.Error(t, reg.Replace(owned, NewResource(ResourceKindSemaphore, "sem", nil, nil)))

	dead := NewResource(ResourceKindFence, "dead", nil, nil)
	dead.Destroy()
	assert.ErrorIs(t, reg.Replace(owned, dead), ErrResourceDestroyed)

	other := NewResourceRegistry("other", deviceTeardownOrder)
	taken := NewResource(ResourceKindFence, "taken", nil, nil)
	require.NoError(t, other.Adopt(taken))
	assert.ErrorIs(t, reg.Replace(owned, taken), ErrResourceOwned)
	assert.False(t, owned.Destroyed())
}
