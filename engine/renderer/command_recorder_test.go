package renderer

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame builds the frame context RenderFrame would hand the recorder for a slot and image.
func testFrame(r *renderer, slot int, image uint32) *FrameContext {
	layout, pipeline := r.swapchain.Pipeline()
	return &FrameContext{
		Slot:           slot,
		ImageIndex:     image,
		Extent:         r.swapchain.Extent(),
		RenderPass:     r.swapchain.RenderPass(),
		Framebuffer:    r.swapchain.Framebuffer(image),
		Pipeline:       pipeline,
		PipelineLayout: layout,
		View:           common.Identity(),
		Projection:     common.Identity(),
	}
}

func expectedDraws(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i + 1)
	}
	return out
}

func TestCommandRecorder_DispatchOrderSurvivesJitter(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600), WithWorkers(6))
	defer r.Destroy()

	const drawables = 24
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(7))
	r.recorder.jitter = func(task int) {
		mu.Lock()
		d := time.Duration(rng.Intn(400)) * time.Microsecond
		mu.Unlock()
		// early tasks tend to finish last
		time.Sleep(d + time.Duration(drawables-task)*50*time.Microsecond)
	}

	for i := 0; i < 6; i++ {
		slot := i % r.FramesInFlight()
		primary, err := r.recorder.RecordFrame(testFrame(r, slot, 0), drawCalls(drawables))
		require.NoError(t, err)
		assert.Equal(t, expectedDraws(drawables), ExecutedDraws(primary), "iteration %d", i)
	}
}

func TestCommandRecorder_EmptyFrameStillClears(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))
	defer r.Destroy()

	primary, err := r.recorder.RecordFrame(testFrame(r, 0, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, ExecutedDraws(primary))
	assert.Equal(t, CommandBufferLevelPrimary, primary.Level())
}

func TestCommandRecorder_JoinsTaskErrors(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))
	defer r.Destroy()

	first := errors.New("first")
	second := errors.New("second")
	drawables := drawCalls(8)
	drawables[1] = &drawCall{err: first}
	drawables[6] = &drawCall{err: second}

	primary, err := r.recorder.RecordFrame(testFrame(r, 0, 0), drawables)
	assert.Nil(t, primary)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestCommandRecorder_RecoversLogicViolation(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600))
	defer r.Destroy()

	drawables := drawCalls(5)
	drawables[3] = &drawCall{panicWith: func() {
		common.PanicLogicViolation("test", "bone index %d past its slot", 100)
	}}

	_, err := r.recorder.RecordFrame(testFrame(r, 0, 0), drawables)
	require.Error(t, err)
	var lv *common.LogicViolationError
	require.ErrorAs(t, err, &lv)
	assert.Equal(t, "test", lv.Component)

	// the pool and every worker slot survive the panic
	primary, err := r.recorder.RecordFrame(testFrame(r, 0, 0), drawCalls(5))
	require.NoError(t, err)
	assert.Equal(t, expectedDraws(5), ExecutedDraws(primary))
}

func TestCommandRecorder_RequiresAllocation(t *testing.T) {
	rec := NewCommandRecorder(NewHeadlessRendererBackend(), 2, 2, DefaultClearValues)
	defer rec.Destroy()

	_, err := rec.RecordFrame(&FrameContext{}, drawCalls(1))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCommandRecorder_ReallocatesAfterRebuild(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(800, 600), WithWorkers(3))

	renderFrames(t, r, 2, drawCalls(6))
	// primary pool plus one per worker
	assert.Equal(t, 4, backend.LiveResources(ResourceKindCommandPool))

	require.NoError(t, r.Swapchain().Recreate())
	assert.Equal(t, 4, backend.LiveResources(ResourceKindCommandPool))
	for _, s := range r.recorder.slots {
		assert.Zero(t, s.cached(0), "worker slot %d kept buffers across a rebuild", s.ID())
	}

	renderFrames(t, r, 2, drawCalls(6))
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestWorkerSlot_CachesSecondaryBuffers(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	pool, err := backend.CreateCommandPool("worker 0")
	require.NoError(t, err)
	slot := newWorkerSlot(0, pool, 2)

	a, err := slot.next(backend, 0)
	require.NoError(t, err)
	b, err := slot.next(backend, 0)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, slot.cached(0))
	assert.Zero(t, slot.cached(1))

	slot.reset(0)
	again, err := slot.next(backend, 0)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 2, slot.cached(0))
	assert.Equal(t, CommandBufferLevelSecondary, again.Level())
}

func TestCommandRecorder_RecordersShareOnePool(t *testing.T) {
	first := NewCommandRecorder(NewHeadlessRendererBackend(), 2, 3, DefaultClearValues)
	first.Destroy()
	before := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		backend := NewHeadlessRendererBackend()
		r := newTestRenderer(t, backend, newFakeSurface(320, 240), WithWorkers(3))
		renderFrames(t, r, 2, drawCalls(4))
		require.NoError(t, r.Destroy())
		assert.Same(t, first.pool, r.recorder.pool)
	}

	// ten renderers with three workers each would leave thirty goroutines behind with a pool apiece
	assert.Less(t, runtime.NumGoroutine()-before, 10)
}

func TestCommandRecorder_PoolGrowsToLargestRequest(t *testing.T) {
	small := NewCommandRecorder(NewHeadlessRendererBackend(), 2, 1, DefaultClearValues)
	defer small.Destroy()
	want := small.pool.GetMaxWorkers() + 2

	large := NewCommandRecorder(NewHeadlessRendererBackend(), 2, want, DefaultClearValues)
	defer large.Destroy()
	assert.Same(t, small.pool, large.pool)
	assert.GreaterOrEqual(t, large.pool.GetMaxWorkers(), want)
}

func TestCommandRecorder_DestroyedRecorderRefusesFrames(t *testing.T) {
	backend := NewHeadlessRendererBackend()
	r := newTestRenderer(t, backend, newFakeSurface(320, 240))
	rec := r.recorder
	require.NoError(t, r.Destroy())

	_, err := rec.RecordFrame(&FrameContext{}, drawCalls(1))
	assert.ErrorIs(t, err, ErrInvalidState)
}
