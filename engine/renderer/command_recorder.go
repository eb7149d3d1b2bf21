package renderer

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-bench/common"
)

// FrameContext is the read-only state shared by every recording task of a frame.
type FrameContext struct {
	Slot        int
	ImageIndex  uint32
	Extent      Extent
	RenderPass  *Resource
	Framebuffer *Resource

	Pipeline       *Resource
	PipelineLayout *Resource

	View           common.Mat4
	Projection     common.Mat4
	CameraPosition common.Vec3

	// Elapsed is the time since the run started, in seconds.
	Elapsed float32
}

// Drawable records the draw commands of one model into a secondary command buffer.
// RecordDraw runs on a pool goroutine. It may write only to storage private to the drawable and frame slot.
type Drawable interface {
	RecordDraw(cmd CommandBuffer, frame *FrameContext) error
}

var (
	sharedPoolMu sync.Mutex
	sharedPool   worker.DynamicWorkerPool
)

// recorderPool returns the process-wide recording pool, grown to at least n goroutines.
//
// The pool is never stopped. A stopped automation pool hands its stop ids to whichever worker reads the shared
// stop channel first, so workers that read another worker's id keep running. Sharing one pool bounds the
// recording goroutines of the process by the largest worker count any recorder asked for, however many
// renderers come and go.
func recorderPool(n int) worker.DynamicWorkerPool {
	sharedPoolMu.Lock()
	defer sharedPoolMu.Unlock()
	if sharedPool == nil {
		sharedPool = worker.NewDynamicWorkerPool(n, 256, 1*time.Second)
		return sharedPool
	}
	if grow := n - sharedPool.GetMaxWorkers(); grow > 0 {
		sharedPool.IncreaseMaxWorkers(grow)
	}
	return sharedPool
}

// DefaultRecorderWorkers returns max(NumCPU-1, 1), leaving one core for the render goroutine.
func DefaultRecorderWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// CommandRecorder fans per-drawable recording out over a worker pool and assembles the results into one
// primary command buffer. Secondary buffers are executed in dispatch order regardless of which task finishes
// first, so the frame's command stream is deterministic.
type CommandRecorder struct {
	backend        RendererBackend
	framesInFlight int
	workers        int
	clear          ClearValues

	pool      worker.DynamicWorkerPool
	destroyed bool

	slots       []*WorkerSlot
	free        chan *WorkerSlot
	primaryPool *Resource
	primaries   []CommandBuffer

	// jitter, when set, runs at the start of every task. Tests use it to shuffle completion order.
	jitter func(task int)
}

// NewCommandRecorder creates a recorder on the shared recording pool. Command buffers are allocated when the
// swapchain calls AllocateCommands.
//
// Parameters:
//   - backend: the device backend
//   - framesInFlight: the scheduler's slot count
//   - workers: the number of worker slots, and the least pool size; values below 1 use DefaultRecorderWorkers
//   - clear: the render pass clear values
//
// Returns:
//   - *CommandRecorder: the recorder
func NewCommandRecorder(backend RendererBackend, framesInFlight, workers int, clear ClearValues) *CommandRecorder {
	if workers < 1 {
		workers = DefaultRecorderWorkers()
	}
	return &CommandRecorder{
		backend:        backend,
		framesInFlight: framesInFlight,
		workers:        workers,
		clear:          clear,
		pool:           recorderPool(workers),
		free:           make(chan *WorkerSlot, workers),
	}
}

// Workers returns the number of worker slots.
func (r *CommandRecorder) Workers() int {
	return r.workers
}

// AllocateCommands creates one primary buffer per frame slot and one worker slot per pool goroutine.
func (r *CommandRecorder) AllocateCommands() ([]*Resource, error) {
	var pools []*Resource
	fail := func(err error) ([]*Resource, error) {
		for _, p := range pools {
			p.Destroy()
		}
		r.ReleaseCommands()
		return nil, err
	}

	primaryPool, err := r.backend.CreateCommandPool("primary")
	if err != nil {
		return fail(fmt.Errorf("create primary command pool: %w", err))
	}
	pools = append(pools, primaryPool)
	primaries, err := r.backend.AllocateCommandBuffers(primaryPool, CommandBufferLevelPrimary, r.framesInFlight)
	if err != nil {
		return fail(fmt.Errorf("allocate primary command buffers: %w", err))
	}
	r.primaryPool = primaryPool
	r.primaries = primaries

	r.slots = make([]*WorkerSlot, r.workers)
	for i := range r.slots {
		p, err := r.backend.CreateCommandPool(fmt.Sprintf("worker %d", i))
		if err != nil {
			return fail(fmt.Errorf("create command pool for worker slot %d: %w", i, err))
		}
		pools = append(pools, p)
		r.slots[i] = newWorkerSlot(i, p, r.framesInFlight)
		r.free <- r.slots[i]
	}
	return pools, nil
}

// ReleaseCommands forgets all worker slots and primary buffers.
func (r *CommandRecorder) ReleaseCommands() {
	for len(r.free) > 0 {
		<-r.free
	}
	r.slots = nil
	r.primaries = nil
	r.primaryPool = nil
}

// RecordFrame records every drawable in parallel and returns the frame's primary command buffer.
//
// Each drawable becomes one pool task. A task checks out a free worker slot, takes the slot's next cached
// secondary buffer for the frame slot, begins it as a continuation of the frame's render pass and lets the
// drawable record into it. After every task has finished, the filled buffers are executed inside the primary
// buffer's render pass in dispatch order. Errors and panics from tasks are joined and returned, and nothing
// is returned for submission when any task fails.
//
// Parameters:
//   - frame: the shared frame state
//   - drawables: the models to draw, in draw order
//
// Returns:
//   - CommandBuffer: the ended primary buffer
//   - error: the joined task errors, or an assembly error
func (r *CommandRecorder) RecordFrame(frame *FrameContext, drawables []Drawable) (CommandBuffer, error) {
	if r.destroyed {
		return nil, fmt.Errorf("record frame: recorder destroyed: %w", ErrInvalidState)
	}
	if r.primaries == nil {
		return nil, fmt.Errorf("record frame: command buffers not allocated: %w", ErrInvalidState)
	}
	for _, s := range r.slots {
		s.reset(frame.Slot)
	}

	results := make([]CommandBuffer, len(drawables))
	errs := make([]error, len(drawables))

	var wg sync.WaitGroup
	wg.Add(len(drawables))
	for i, d := range drawables {
		r.pool.SubmitTask(worker.Task{
			ID:      i,
			Payload: d,
			Do: func() (any, error) {
				defer wg.Done()
				results[i], errs[i] = r.recordTask(i, frame, d)
				return results[i], errs[i]
			},
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("record frame slot %d: %w", frame.Slot, err)
	}

	primary := r.primaries[frame.Slot]
	if err := primary.Reset(); err != nil {
		return nil, fmt.Errorf("reset primary command buffer: %w", err)
	}
	if err := primary.BeginPrimary(); err != nil {
		return nil, fmt.Errorf("begin primary command buffer: %w", err)
	}
	primary.BeginRenderPass(frame.RenderPass, frame.Framebuffer, frame.Extent, r.clear, true)
	if len(results) > 0 {
		primary.ExecuteCommands(results)
	}
	primary.EndRenderPass()
	if err := primary.End(); err != nil {
		return nil, fmt.Errorf("end primary command buffer: %w", err)
	}
	return primary, nil
}

// recordTask records drawable d into a secondary buffer taken from a checked-out worker slot.
// A panic inside the drawable becomes the task's error.
func (r *CommandRecorder) recordTask(task int, frame *FrameContext, d Drawable) (cmd CommandBuffer, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[Renderer] recovered panic in record task %d: %v", task, p)
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("record task %d panicked: %w", task, perr)
			} else {
				err = fmt.Errorf("record task %d panicked: %v", task, p)
			}
			cmd = nil
		}
	}()

	slot := <-r.free
	defer func() { r.free <- slot }()

	if r.jitter != nil {
		r.jitter(task)
	}

	cmd, err = slot.next(r.backend, frame.Slot)
	if err != nil {
		return nil, err
	}
	if err := cmd.BeginSecondary(frame.RenderPass, frame.Framebuffer); err != nil {
		return nil, fmt.Errorf("record task %d: begin secondary buffer: %w", task, err)
	}
	cmd.SetViewport(frame.Extent)
	if err := d.RecordDraw(cmd, frame); err != nil {
		return nil, fmt.Errorf("record task %d: %w", task, err)
	}
	if err := cmd.End(); err != nil {
		return nil, fmt.Errorf("record task %d: end secondary buffer: %w", task, err)
	}
	return cmd, nil
}

// Destroy detaches the recorder from the shared pool, which keeps running for later recorders.
// Command pools are owned by the swapchain registry.
func (r *CommandRecorder) Destroy() {
	r.destroyed = true
	r.ReleaseCommands()
}
