package renderer

import "fmt"

// WorkerSlot is a recorder task's private command pool and its arena of secondary command buffers.
// The arena is indexed by (frame slot, sequence number) and only grows. A slot is checked out by at most
// one task at a time, which is what makes recording into its pool safe without locks.
type WorkerSlot struct {
	id      int
	pool    *Resource
	buffers [][]CommandBuffer
	used    []int
}

func newWorkerSlot(id int, pool *Resource, framesInFlight int) *WorkerSlot {
	return &WorkerSlot{
		id:      id,
		pool:    pool,
		buffers: make([][]CommandBuffer, framesInFlight),
		used:    make([]int, framesInFlight),
	}
}

// ID returns the slot index.
func (w *WorkerSlot) ID() int {
	return w.id
}

// reset marks every cached buffer of a frame slot as free for reuse.
func (w *WorkerSlot) reset(frameSlot int) {
	w.used[frameSlot] = 0
}

// next returns the next free secondary buffer for the frame slot, allocating and caching one when the
// arena is exhausted.
func (w *WorkerSlot) next(backend RendererBackend, frameSlot int) (CommandBuffer, error) {
	seq := w.used[frameSlot]
	if seq == len(w.buffers[frameSlot]) {
		cmds, err := backend.AllocateCommandBuffers(w.pool, CommandBufferLevelSecondary, 1)
		if err != nil {
			return nil, fmt.Errorf("worker slot %d: allocate secondary buffer %d for frame slot %d: %w", w.id, seq, frameSlot, err)
		}
		w.buffers[frameSlot] = append(w.buffers[frameSlot], cmds[0])
	}
	w.used[frameSlot]++
	return w.buffers[frameSlot][seq], nil
}

// cached returns the number of secondary buffers allocated for a frame slot.
func (w *WorkerSlot) cached(frameSlot int) int {
	return len(w.buffers[frameSlot])
}
