package renderer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameScheduler_NeverRecordsIntoBusyImage(t *testing.T) {
	for _, tc := range []struct {
		framesInFlight int
		images         int
	}{
		{1, 2}, {2, 2}, {2, 3}, {3, 2}, {3, 3}, {3, 4},
	} {
		t.Run(fmt.Sprintf("%d in flight over %d images", tc.framesInFlight, tc.images), func(t *testing.T) {
			backend := NewHeadlessRendererBackend(WithHeadlessImageCount(tc.images))
			r := newTestRenderer(t, backend, newFakeSurface(800, 600), WithFramesInFlight(tc.framesInFlight))

			frames := 4*(tc.framesInFlight+1) + 1
			for i := 0; i < frames; i++ {
				require.NoError(t, r.RenderFrame(fixedCamera{}, 0, drawCalls(3)))
				assert.LessOrEqual(t, backend.PendingSubmissions(), tc.framesInFlight)
			}

			stats := r.Stats()
			assert.Equal(t, uint64(frames), stats.Frames)
			assert.Equal(t, uint64(frames), stats.FenceWaits)
			assert.Zero(t, stats.Recreations)

			require.NoError(t, r.Destroy())
			assert.Empty(t, backend.Violations())
		})
	}
}

func TestFrameScheduler_WaitsOnImageFenceWhenImagesAreScarce(t *testing.T) {
	backend := NewHeadlessRendererBackend(WithHeadlessImageCount(2))
	r := newTestRenderer(t, backend, newFakeSurface(800, 600), WithFramesInFlight(3))

	// frame 2 gets image 0 back while frame 0 still holds it
	renderFrames(t, r, 3, drawCalls(2))
	assert.Equal(t, uint64(1), r.Stats().ImageFenceWaits)

	renderFrames(t, r, 6, drawCalls(2))
	assert.Greater(t, r.Stats().ImageFenceWaits, uint64(1))

	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestFrameScheduler_NoImageFenceWaitsWithEnoughImages(t *testing.T) {
	backend := NewHeadlessRendererBackend(WithHeadlessImageCount(2))
	r := newTestRenderer(t, backend, newFakeSurface(800, 600), WithFramesInFlight(2))

	renderFrames(t, r, 10, drawCalls(2))
	assert.Zero(t, r.Stats().ImageFenceWaits)

	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestFrameScheduler_OutOfDateAcquireRebuildsMidFrame(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))

	renderFrames(t, r, 3, drawCalls(4))
	require.Positive(t, backend.PendingSubmissions(), "the rebuild must happen with work in flight")
	waitsBefore := backend.WaitIdleCalls()

	backend.InjectAcquireResult(ErrSwapchainOutOfDate)
	require.NoError(t, r.RenderFrame(fixedCamera{}, 0, drawCalls(4)))

	assert.Equal(t, uint64(2), r.Swapchain().Generation())
	assert.Equal(t, uint64(1), r.Stats().Recreations)
	assert.Equal(t, uint64(4), r.Stats().Frames)
	assert.Equal(t, 2, backend.SwapchainsCreated())
	assert.Greater(t, backend.WaitIdleCalls(), waitsBefore)
	assert.Empty(t, backend.Violations(), "no resource may be destroyed while a frame references it")

	renderFrames(t, r, 5, drawCalls(4))
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestFrameScheduler_SuboptimalAcquireProceeds(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))
	defer r.Destroy()

	backend.InjectAcquireResult(ErrSwapchainSuboptimal)
	require.NoError(t, r.RenderFrame(fixedCamera{}, 0, drawCalls(1)))
	assert.Equal(t, uint64(1), r.Swapchain().Generation())
	assert.Equal(t, 1, backend.Submissions())
}

func TestFrameScheduler_StalePresentRebuilds(t *testing.T) {
	for _, result := range []error{ErrSwapchainOutOfDate, ErrSwapchainSuboptimal} {
		t.Run(result.Error(), func(t *testing.T) {
			backend := NewHeadlessRendererBackend()
			r := newTestRenderer(t, backend, newFakeSurface(800, 600))

			renderFrames(t, r, 2, drawCalls(2))
			backend.InjectPresentResult(result)
			require.NoError(t, r.RenderFrame(fixedCamera{}, 0, drawCalls(2)))
			assert.Equal(t, uint64(2), r.Swapchain().Generation())

			renderFrames(t, r, 3, drawCalls(2))
			require.NoError(t, r.Destroy())
			assert.Empty(t, backend.Violations())
		})
	}
}

func TestFrameScheduler_ResizeRebuildsAfterPresent(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	surface := newFakeSurface(800, 600)
	r := newTestRenderer(t, backend, surface)

	renderFrames(t, r, 2, drawCalls(2))
	surface.resize(1280, 720)
	r.NotifyResized()
	renderFrames(t, r, 1, drawCalls(2))

	assert.Equal(t, uint64(2), r.Swapchain().Generation())
	assert.Equal(t, Extent{Width: 1280, Height: 720}, r.Swapchain().Extent())

	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestFrameScheduler_FatalPresentErrorSurfaces(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))
	defer r.Destroy()

	lost := errors.New("device lost")
	backend.InjectPresentResult(lost)
	err := r.RenderFrame(fixedCamera{}, 0, drawCalls(1))
	assert.ErrorIs(t, err, lost)
}

func TestHeadlessBackend_DestroyingInFlightResourceIsViolation(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))

	vb, err := backend.CreateBuffer("vertices", BufferUsageVertex, make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, r.RenderFrame(fixedCamera{}, 0, []Drawable{&drawCall{indexCount: 3, buffer: vb}}))

	// no device idle wait first
	vb.Destroy()
	require.NotEmpty(t, backend.Violations())
	assert.Contains(t, backend.Violations()[0], "vertices")

	require.NoError(t, r.Destroy())
}
