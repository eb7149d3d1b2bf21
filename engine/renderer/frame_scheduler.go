package renderer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultFramesInFlight is the number of frames the CPU may record ahead of the GPU.
const DefaultFramesInFlight = 2

// FrameToken identifies a frame between BeginFrame and SubmitAndPresent.
type FrameToken struct {
	// Slot is the in-flight slot, frameCounter mod N.
	Slot int
	// ImageIndex is the acquired swapchain image.
	ImageIndex uint32
}

// FrameStats are the scheduler's wait and rebuild counters.
type FrameStats struct {
	// Frames counts frames submitted.
	Frames uint64
	// FenceWaits counts waits on the slot's own fence at the start of a frame.
	FenceWaits uint64
	// ImageFenceWaits counts waits on another slot's fence that still held the acquired image.
	ImageFenceWaits uint64
	// Recreations counts swapchain rebuilds the scheduler triggered.
	Recreations uint64
}

// inFlightFrame holds the synchronization objects of one frame slot.
type inFlightFrame struct {
	fence          *Resource
	imageAvailable *Resource
	renderFinished *Resource
	image          int
}

// FrameScheduler paces frames with a fixed number in flight.
//
// Each slot waits for its own fence before reuse, so recording for frame f+N never starts before frame f has
// finished on the GPU. An image that is still held by another slot's unresolved fence is waited for before it
// is recorded into. Frames are submitted in frame-counter order from a single goroutine.
type FrameScheduler struct {
	backend   RendererBackend
	swapchain *SwapchainManager
	registry  *ResourceRegistry

	frames       []inFlightFrame
	imageFences  []*Resource
	imagesForGen uint64

	frameCounter uint64

	frameCount      atomic.Uint64
	fenceWaits      atomic.Uint64
	imageFenceWaits atomic.Uint64
	recreations     atomic.Uint64
}

// NewFrameScheduler creates the per-slot fences and semaphores and hands them to the device registry.
//
// Parameters:
//   - backend: the device backend
//   - swapchain: the swapchain manager, already created
//   - registry: the device registry that owns the synchronization objects
//   - framesInFlight: slots to cycle through; values below 1 use DefaultFramesInFlight
//
// Returns:
//   - *FrameScheduler: the scheduler
//   - error: a wrapped creation error
func NewFrameScheduler(backend RendererBackend, swapchain *SwapchainManager, registry *ResourceRegistry, framesInFlight int) (*FrameScheduler, error) {
	if framesInFlight < 1 {
		framesInFlight = DefaultFramesInFlight
	}
	s := &FrameScheduler{
		backend:   backend,
		swapchain: swapchain,
		registry:  registry,
		frames:    make([]inFlightFrame, framesInFlight),
	}
	for i := range s.frames {
		fence, err := backend.CreateFence(true)
		if err != nil {
			return nil, fmt.Errorf("create fence for frame slot %d: %w", i, err)
		}
		available, err := backend.CreateSemaphore()
		if err != nil {
			fence.Destroy()
			return nil, fmt.Errorf("create image-available semaphore for frame slot %d: %w", i, err)
		}
		finished, err := backend.CreateSemaphore()
		if err != nil {
			fence.Destroy()
			available.Destroy()
			return nil, fmt.Errorf("create render-finished semaphore for frame slot %d: %w", i, err)
		}
		if err := registry.Adopt(fence, available, finished); err != nil {
			return nil, err
		}
		s.frames[i] = inFlightFrame{fence: fence, imageAvailable: available, renderFinished: finished, image: -1}
	}
	return s, nil
}

// FramesInFlight returns the number of slots.
func (s *FrameScheduler) FramesInFlight() int {
	return len(s.frames)
}

// FrameCounter returns the number of frames submitted so far.
func (s *FrameScheduler) FrameCounter() uint64 {
	return s.frameCounter
}

// Stats returns a snapshot of the counters.
func (s *FrameScheduler) Stats() FrameStats {
	return FrameStats{
		Frames:          s.frameCount.Load(),
		FenceWaits:      s.fenceWaits.Load(),
		ImageFenceWaits: s.imageFenceWaits.Load(),
		Recreations:     s.recreations.Load(),
	}
}

// BeginFrame waits for the current slot to come free and acquires the next presentable image.
// An out-of-date swapchain is rebuilt and the whole acquisition retried. A suboptimal image is used as is.
//
// Returns:
//   - FrameToken: the slot and image to record into
//   - error: a fatal error
func (s *FrameScheduler) BeginFrame() (FrameToken, error) {
	slot := int(s.frameCounter % uint64(len(s.frames)))
	f := &s.frames[slot]

	for {
		if err := s.backend.WaitForFence(f.fence); err != nil {
			return FrameToken{}, fmt.Errorf("wait for frame slot %d fence: %w", slot, err)
		}
		s.fenceWaits.Add(1)

		s.syncImageTable()

		idx, err := s.backend.AcquireNextImage(s.swapchain.Swapchain(), f.imageAvailable)
		if errors.Is(err, ErrSwapchainOutOfDate) {
			if err := s.rebuild(); err != nil {
				return FrameToken{}, err
			}
			continue
		}
		if err != nil && !errors.Is(err, ErrSwapchainSuboptimal) {
			return FrameToken{}, fmt.Errorf("acquire swapchain image: %w", err)
		}
		if int(idx) >= len(s.imageFences) {
			return FrameToken{}, fmt.Errorf("acquired image %d of %d", idx, len(s.imageFences))
		}

		if owner := s.imageFences[idx]; owner != nil && owner != f.fence {
			if err := s.backend.WaitForFence(owner); err != nil {
				return FrameToken{}, fmt.Errorf("wait for fence holding image %d: %w", idx, err)
			}
			s.imageFenceWaits.Add(1)
		}
		f.image = int(idx)
		return FrameToken{Slot: slot, ImageIndex: idx}, nil
	}
}

// SubmitAndPresent submits the frame's primary command buffer and presents its image.
// The slot fence is reset right before the submission that signals it, and the image is recorded as held by
// that fence. Out-of-date and suboptimal presents, and a pending resize, rebuild the swapchain without
// surfacing an error.
//
// Parameters:
//   - token: the token returned by BeginFrame
//   - primary: the recorded primary command buffer
//
// Returns:
//   - error: a fatal error
func (s *FrameScheduler) SubmitAndPresent(token FrameToken, primary CommandBuffer) error {
	f := &s.frames[token.Slot]

	if err := s.backend.ResetFence(f.fence); err != nil {
		return fmt.Errorf("reset frame slot %d fence: %w", token.Slot, err)
	}
	if err := s.backend.Submit(primary, f.imageAvailable, f.renderFinished, f.fence); err != nil {
		return fmt.Errorf("submit frame %d: %w", s.frameCounter, err)
	}
	s.imageFences[token.ImageIndex] = f.fence
	s.frameCounter++
	s.frameCount.Add(1)

	err := s.backend.Present(s.swapchain.Swapchain(), token.ImageIndex, f.renderFinished)
	switch {
	case errors.Is(err, ErrSwapchainOutOfDate), errors.Is(err, ErrSwapchainSuboptimal), err == nil && s.swapchain.Resized():
		return s.rebuild()
	case err != nil:
		return fmt.Errorf("present image %d: %w", token.ImageIndex, err)
	}
	return nil
}

// AbandonFrame gives up a frame that BeginFrame started but that will never be submitted.
//
// The slot fence was never reset, so the slot stays reusable and the frame counter does not advance. The
// acquired image is still held by the presentation engine and the slot's image-available semaphore carries
// a signal nothing will wait on. The swapchain is rebuilt to hand the image back, and the semaphore is
// replaced once the device is idle.
//
// Parameters:
//   - token: the token returned by BeginFrame
//
// Returns:
//   - error: a fatal rebuild or creation error
func (s *FrameScheduler) AbandonFrame(token FrameToken) error {
	f := &s.frames[token.Slot]
	f.image = -1

	if err := s.rebuild(); err != nil {
		return err
	}
	fresh, err := s.backend.CreateSemaphore()
	if err != nil {
		return fmt.Errorf("recreate image-available semaphore for frame slot %d: %w", token.Slot, err)
	}
	if err := s.registry.Replace(f.imageAvailable, fresh); err != nil {
		fresh.Destroy()
		return err
	}
	f.imageAvailable = fresh
	return nil
}

func (s *FrameScheduler) rebuild() error {
	if err := s.swapchain.Recreate(); err != nil {
		return fmt.Errorf("rebuild swapchain: %w", err)
	}
	s.recreations.Add(1)
	s.syncImageTable()
	return nil
}

// syncImageTable resizes the image-to-fence table after a swapchain rebuild. A rebuild waits for the device
// to go idle, so no fence in the old table can still be pending.
func (s *FrameScheduler) syncImageTable() {
	gen := s.swapchain.Generation()
	if gen == s.imagesForGen && s.imageFences != nil {
		return
	}
	s.imageFences = make([]*Resource, s.swapchain.ImageCount())
	s.imagesForGen = gen
	for i := range s.frames {
		s.frames[i].image = -1
	}
}
