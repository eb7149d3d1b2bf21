package renderer

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/common"
)

// HeadlessBackendOption configures a HeadlessRendererBackend.
type HeadlessBackendOption func(*HeadlessRendererBackend)

// WithHeadlessImageCount sets the number of swapchain images. The default is 3.
func WithHeadlessImageCount(n int) HeadlessBackendOption {
	return func(b *HeadlessRendererBackend) {
		b.imageCount = max(n, 1)
	}
}

// HeadlessRendererBackend is an in-memory RendererBackend that executes nothing and validates everything.
//
// Submissions stay pending until a fence wait or a device idle wait completes them, in submission order,
// the way a GPU queue retires work. The backend records a violation whenever a submission references a
// destroyed resource, a resource is destroyed while a pending submission references it, an image is rendered
// while an earlier submission to it is still pending, or a semaphore or fence is used out of protocol.
type HeadlessRendererBackend struct {
	mu sync.Mutex

	imageCount   int
	nextImage    int
	lastAcquired int

	acquireResults []error
	presentResults []error

	pending          []*headlessSubmission
	imageSubmissions map[int]*headlessSubmission
	nextSubmission   uint64

	live       map[*Resource]struct{}
	created    map[ResourceKind]int
	violations []string
	buffers    map[*Resource][]byte

	submits    int
	presents   int
	waitIdles  int
	swapchains int
}

var _ RendererBackend = &HeadlessRendererBackend{}

type headlessFence struct {
	signaled bool
	pending  *headlessSubmission
}

type headlessSemaphore struct {
	signaled bool
}

type headlessSubmission struct {
	id    uint64
	refs  []*Resource
	image int
	done  bool
}

// NewHeadlessRendererBackend creates a headless backend.
//
// Parameters:
//   - options: variadic list of HeadlessBackendOption functions
//
// Returns:
//   - *HeadlessRendererBackend: the backend
func NewHeadlessRendererBackend(options ...HeadlessBackendOption) *HeadlessRendererBackend {
	b := &HeadlessRendererBackend{
		imageCount:       3,
		lastAcquired:     -1,
		imageSubmissions: make(map[int]*headlessSubmission),
		live:             make(map[*Resource]struct{}),
		created:          make(map[ResourceKind]int),
		buffers:          make(map[*Resource][]byte),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// InjectAcquireResult queues a result for a future AcquireNextImage call.
// ErrSwapchainOutOfDate fails the acquisition. ErrSwapchainSuboptimal acquires an image and reports it.
func (b *HeadlessRendererBackend) InjectAcquireResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquireResults = append(b.acquireResults, err)
}

// InjectPresentResult queues a result for a future Present call.
func (b *HeadlessRendererBackend) InjectPresentResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentResults = append(b.presentResults, err)
}

// Violations returns every protocol violation recorded so far.
func (b *HeadlessRendererBackend) Violations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.violations)
}

// Submissions returns the number of Submit calls that were accepted.
func (b *HeadlessRendererBackend) Submissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submits
}

// Presents returns the number of Present calls.
func (b *HeadlessRendererBackend) Presents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presents
}

// WaitIdleCalls returns the number of WaitIdle calls.
func (b *HeadlessRendererBackend) WaitIdleCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitIdles
}

// SwapchainsCreated returns the number of CreateSwapchain calls that succeeded.
func (b *HeadlessRendererBackend) SwapchainsCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.swapchains
}

// PendingSubmissions returns the number of submissions not yet retired.
func (b *HeadlessRendererBackend) PendingSubmissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// LiveResources returns the number of undestroyed resources of a kind.
func (b *HeadlessRendererBackend) LiveResources(kind ResourceKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for r := range b.live {
		if r.kind == kind {
			n++
		}
	}
	return n
}

// BufferContents returns a copy of a buffer's bytes.
func (b *HeadlessRendererBackend) BufferContents(buf *Resource) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.buffers[buf])
}

func (b *HeadlessRendererBackend) violate(format string, args ...any) {
	b.violations = append(b.violations, fmt.Sprintf(format, args...))
}

// track creates a resource whose destructor checks pending submissions. Callers hold no lock.
func (b *HeadlessRendererBackend) track(kind ResourceKind, label string, handle any) *Resource {
	res := NewResource(kind, label, handle, nil)
	res.destroy = func() { b.release(res) }
	b.mu.Lock()
	b.live[res] = struct{}{}
	b.created[kind]++
	b.mu.Unlock()
	return res
}

func (b *HeadlessRendererBackend) release(res *Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, res)
	delete(b.buffers, res)
	for _, sub := range b.pending {
		if slices.Contains(sub.refs, res) {
			b.violate("destroyed %s while submission %d is in flight", res, sub.id)
		}
	}
}

// retire completes pending submissions up to and including target, in submission order.
func (b *HeadlessRendererBackend) retire(target *headlessSubmission) {
	n := 0
	for i, sub := range b.pending {
		sub.done = true
		n = i + 1
		if sub == target {
			break
		}
	}
	b.pending = b.pending[n:]
}

func (b *HeadlessRendererBackend) Name() string {
	return "headless"
}

func (b *HeadlessRendererBackend) CreateSwapchain(extent Extent) (*Resource, []*Resource, Extent, error) {
	if extent.IsZero() {
		return nil, nil, Extent{}, fmt.Errorf("headless: swapchain extent %dx%d", extent.Width, extent.Height)
	}
	sc := b.track(ResourceKindSwapchain, "swapchain", extent)
	images := make([]*Resource, b.imageCount)
	for i := range images {
		images[i] = b.track(ResourceKindSwapchainImage, fmt.Sprintf("swapchain image %d", i), i)
	}
	b.mu.Lock()
	b.swapchains++
	b.nextImage = 0
	b.lastAcquired = -1
	b.imageSubmissions = make(map[int]*headlessSubmission)
	b.mu.Unlock()
	return sc, images, extent, nil
}

func (b *HeadlessRendererBackend) CreateImageView(image *Resource) (*Resource, error) {
	if image.Destroyed() {
		return nil, fmt.Errorf("headless: view of %s: %w", image, ErrResourceDestroyed)
	}
	kind := ResourceKindTextureView
	if image.kind == ResourceKindSwapchainImage {
		kind = ResourceKindSwapchainView
	}
	return b.track(kind, image.label+" view", image.handle), nil
}

func (b *HeadlessRendererBackend) CreateRenderPass() (*Resource, error) {
	return b.track(ResourceKindRenderPass, "render pass", nil), nil
}

func (b *HeadlessRendererBackend) CreatePipeline(renderPass *Resource, extent Extent) (*Resource, *Resource, error) {
	if renderPass.Destroyed() {
		return nil, nil, fmt.Errorf("headless: pipeline for %s: %w", renderPass, ErrResourceDestroyed)
	}
	return b.track(ResourceKindPipelineLayout, "pipeline layout", nil), b.track(ResourceKindPipeline, "skinned pipeline", extent), nil
}

func (b *HeadlessRendererBackend) CreateColorTarget(extent Extent) (*Resource, *Resource, error) {
	return b.track(ResourceKindColorImage, "color target", extent), b.track(ResourceKindColorView, "color target view", extent), nil
}

func (b *HeadlessRendererBackend) CreateDepthTarget(extent Extent) (*Resource, *Resource, error) {
	return b.track(ResourceKindDepthImage, "depth target", extent), b.track(ResourceKindDepthView, "depth target view", extent), nil
}

func (b *HeadlessRendererBackend) CreateFramebuffer(renderPass, swapchainView, colorView, depthView *Resource, extent Extent) (*Resource, error) {
	for _, r := range []*Resource{renderPass, swapchainView, colorView, depthView} {
		if r.Destroyed() {
			return nil, fmt.Errorf("headless: framebuffer attachment %s: %w", r, ErrResourceDestroyed)
		}
	}
	return b.track(ResourceKindFramebuffer, "framebuffer "+swapchainView.label, swapchainView.handle), nil
}

func (b *HeadlessRendererBackend) CreateCommandPool(label string) (*Resource, error) {
	return b.track(ResourceKindCommandPool, label, nil), nil
}

func (b *HeadlessRendererBackend) AllocateCommandBuffers(pool *Resource, level CommandBufferLevel, count int) ([]CommandBuffer, error) {
	if pool.Destroyed() {
		return nil, fmt.Errorf("headless: allocate from %s: %w", pool, ErrResourceDestroyed)
	}
	cmds := make([]CommandBuffer, count)
	for i := range cmds {
		cmds[i] = &headlessCommandBuffer{level: level, pool: pool}
	}
	return cmds, nil
}

func (b *HeadlessRendererBackend) CreateFence(signaled bool) (*Resource, error) {
	return b.track(ResourceKindFence, "fence", &headlessFence{signaled: signaled}), nil
}

func (b *HeadlessRendererBackend) CreateSemaphore() (*Resource, error) {
	return b.track(ResourceKindSemaphore, "semaphore", &headlessSemaphore{}), nil
}

func (b *HeadlessRendererBackend) WaitForFence(fence *Resource) error {
	f := HandleAs[*headlessFence](fence)
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.signaled {
		return nil
	}
	if f.pending == nil {
		b.violate("wait on unsignaled %s with no pending submission", fence)
		return fmt.Errorf("headless: wait on %s would never return", fence)
	}
	if !f.pending.done {
		b.retire(f.pending)
	}
	f.signaled = true
	return nil
}

func (b *HeadlessRendererBackend) ResetFence(fence *Resource) error {
	f := HandleAs[*headlessFence](fence)
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.pending != nil && !f.pending.done {
		b.violate("reset %s while submission %d is in flight", fence, f.pending.id)
	}
	f.signaled = false
	f.pending = nil
	return nil
}

func (b *HeadlessRendererBackend) AcquireNextImage(swapchain, signal *Resource) (uint32, error) {
	sem := HandleAs[*headlessSemaphore](signal)
	b.mu.Lock()
	defer b.mu.Unlock()

	if swapchain == nil || swapchain.Destroyed() {
		b.violate("acquire from destroyed swapchain")
		return 0, fmt.Errorf("headless: acquire: %w", ErrResourceDestroyed)
	}

	var result error
	if len(b.acquireResults) > 0 {
		result = b.acquireResults[0]
		b.acquireResults = b.acquireResults[1:]
	}
	if result != nil && !errors.Is(result, ErrSwapchainSuboptimal) {
		return 0, result
	}

	if sem.signaled {
		b.violate("acquire signals %s which is already signaled", signal)
	}
	sem.signaled = true
	idx := b.nextImage
	b.nextImage = (b.nextImage + 1) % b.imageCount
	b.lastAcquired = idx
	return uint32(idx), result
}

func (b *HeadlessRendererBackend) Submit(cmd CommandBuffer, wait, signal, fence *Resource) error {
	hc, ok := cmd.(*headlessCommandBuffer)
	if !ok {
		return fmt.Errorf("headless: submit of foreign command buffer %T", cmd)
	}
	if hc.level != CommandBufferLevelPrimary {
		return fmt.Errorf("headless: submit of secondary command buffer")
	}
	if hc.recording {
		return fmt.Errorf("headless: submit of command buffer still recording")
	}
	waitSem := HandleAs[*headlessSemaphore](wait)
	signalSem := HandleAs[*headlessSemaphore](signal)
	f := HandleAs[*headlessFence](fence)

	refs := hc.allRefs()
	refs = append(refs, wait, signal, fence)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range refs {
		if r.Destroyed() {
			b.violate("submission references destroyed %s", r)
			return fmt.Errorf("headless: submit: %s: %w", r, ErrResourceDestroyed)
		}
	}
	if !waitSem.signaled {
		b.violate("submission waits on %s which nothing signals", wait)
	}
	waitSem.signaled = false
	if f.signaled || f.pending != nil {
		b.violate("submission signals %s which was not reset", fence)
	}
	if prev := b.imageSubmissions[b.lastAcquired]; prev != nil && !prev.done {
		b.violate("image %d rendered while submission %d to it is in flight", b.lastAcquired, prev.id)
	}

	b.nextSubmission++
	sub := &headlessSubmission{id: b.nextSubmission, refs: refs, image: b.lastAcquired}
	b.pending = append(b.pending, sub)
	b.imageSubmissions[b.lastAcquired] = sub
	f.pending = sub
	signalSem.signaled = true
	b.submits++
	return nil
}

func (b *HeadlessRendererBackend) Present(swapchain *Resource, imageIndex uint32, wait *Resource) error {
	sem := HandleAs[*headlessSemaphore](wait)
	b.mu.Lock()
	defer b.mu.Unlock()

	if swapchain == nil || swapchain.Destroyed() {
		b.violate("present to destroyed swapchain")
		return fmt.Errorf("headless: present: %w", ErrResourceDestroyed)
	}
	if !sem.signaled {
		b.violate("present of image %d waits on %s which nothing signals", imageIndex, wait)
	}
	sem.signaled = false
	b.presents++

	if len(b.presentResults) > 0 {
		result := b.presentResults[0]
		b.presentResults = b.presentResults[1:]
		return result
	}
	return nil
}

func (b *HeadlessRendererBackend) CreateBuffer(label string, usage BufferUsage, data []byte) (*Resource, error) {
	res := b.track(ResourceKindBuffer, label, usage)
	b.mu.Lock()
	b.buffers[res] = slices.Clone(data)
	b.mu.Unlock()
	return res, nil
}

func (b *HeadlessRendererBackend) WriteBuffer(buffer *Resource, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buffer.Destroyed() {
		return fmt.Errorf("headless: write %s: %w", buffer, ErrResourceDestroyed)
	}
	contents := b.buffers[buffer]
	end := int(offset) + len(data)
	if end > len(contents) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows %s of %d bytes", len(data), offset, buffer, len(contents))
	}
	copy(contents[offset:], data)
	return nil
}

func (b *HeadlessRendererBackend) CreateTexture(label string, data common.TextureStagingData) (*Resource, *Resource, error) {
	if want := int(data.Width) * int(data.Height) * 4; len(data.Pixels) != want {
		return nil, nil, fmt.Errorf("headless: texture %s has %d bytes, want %d", label, len(data.Pixels), want)
	}
	tex := b.track(ResourceKindTexture, label, data.Width*data.Height)
	return tex, b.track(ResourceKindTextureView, label+" view", nil), nil
}

func (b *HeadlessRendererBackend) CreateSampler(label string) (*Resource, error) {
	return b.track(ResourceKindSampler, label, nil), nil
}

func (b *HeadlessRendererBackend) CreateDescriptorPool(label string, maxSets int) (*Resource, error) {
	return b.track(ResourceKindDescriptorPool, label, maxSets), nil
}

func (b *HeadlessRendererBackend) AllocateDescriptorSet(pool *Resource, binding DescriptorBinding) (*Resource, error) {
	if binding.Uniform == nil || binding.Diffuse == nil || binding.DiffuseSampler == nil {
		return nil, fmt.Errorf("headless: descriptor set needs a uniform buffer and a diffuse texture")
	}
	for _, r := range []*Resource{pool, binding.Uniform, binding.Diffuse, binding.DiffuseSampler, binding.Specular, binding.SpecularSampler} {
		if r != nil && r.Destroyed() {
			return nil, fmt.Errorf("headless: descriptor set binds %s: %w", r, ErrResourceDestroyed)
		}
	}
	return b.track(ResourceKindDescriptorSet, pool.label+" set", binding), nil
}

func (b *HeadlessRendererBackend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.pending {
		sub.done = true
	}
	b.pending = nil
	b.waitIdles++
	return nil
}

func (b *HeadlessRendererBackend) FlipsProjectionY() bool {
	return false
}

func (b *HeadlessRendererBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for r := range b.live {
		// swapchain images and descriptor sets are freed by their parents
		if r.kind == ResourceKindSwapchainImage || r.kind == ResourceKindDescriptorSet {
			continue
		}
		b.violate("device destroyed with live %s", r)
	}
}

// headlessCommandBuffer keeps the resources a recording references and a readable op log.
type headlessCommandBuffer struct {
	level CommandBufferLevel
	pool  *Resource

	recording    bool
	inRenderPass bool
	continuation bool
	err          error

	refs        []*Resource
	secondaries []*headlessCommandBuffer
	ops         []string
	draws       []uint32
}

var _ CommandBuffer = &headlessCommandBuffer{}

func (c *headlessCommandBuffer) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("headless: "+format, args...)
	}
}

func (c *headlessCommandBuffer) use(rs ...*Resource) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if r.Destroyed() {
			c.fail("recording references destroyed %s", r)
		}
		c.refs = append(c.refs, r)
	}
}

func (c *headlessCommandBuffer) requireRecording(op string) bool {
	if !c.recording {
		c.fail("%s outside of recording", op)
		return false
	}
	c.ops = append(c.ops, op)
	return true
}

func (c *headlessCommandBuffer) requirePass(op string) {
	if c.requireRecording(op) && !c.inRenderPass && !c.continuation {
		c.fail("%s outside of a render pass", op)
	}
}

func (c *headlessCommandBuffer) allRefs() []*Resource {
	refs := slices.Clone(c.refs)
	for _, s := range c.secondaries {
		refs = append(refs, s.allRefs()...)
	}
	return refs
}

func (c *headlessCommandBuffer) Level() CommandBufferLevel {
	return c.level
}

func (c *headlessCommandBuffer) Reset() error {
	if c.pool.Destroyed() {
		return fmt.Errorf("headless: reset buffer of %s: %w", c.pool, ErrResourceDestroyed)
	}
	c.recording, c.inRenderPass, c.continuation = false, false, false
	c.err = nil
	c.refs, c.secondaries, c.ops, c.draws = nil, nil, nil, nil
	return nil
}

func (c *headlessCommandBuffer) begin(level CommandBufferLevel) error {
	if c.level != level {
		return fmt.Errorf("headless: begin buffer at the wrong level")
	}
	// Begin resets implicitly, like a buffer from a pool created with the reset-command-buffer flag.
	// A task that failed mid-recording leaves its buffer open, and the next frame reuses it.
	if err := c.Reset(); err != nil {
		return err
	}
	c.recording = true
	return nil
}

func (c *headlessCommandBuffer) BeginPrimary() error {
	return c.begin(CommandBufferLevelPrimary)
}

func (c *headlessCommandBuffer) BeginSecondary(renderPass, framebuffer *Resource) error {
	if err := c.begin(CommandBufferLevelSecondary); err != nil {
		return err
	}
	c.continuation = true
	c.use(renderPass, framebuffer)
	return nil
}

func (c *headlessCommandBuffer) BeginRenderPass(renderPass, framebuffer *Resource, extent Extent, clear ClearValues, secondaryContents bool) {
	if !c.requireRecording("begin render pass") {
		return
	}
	if c.level != CommandBufferLevelPrimary || c.inRenderPass {
		c.fail("begin render pass on a secondary buffer or inside a pass")
	}
	c.inRenderPass = true
	c.use(renderPass, framebuffer)
}

func (c *headlessCommandBuffer) ExecuteCommands(secondary []CommandBuffer) {
	if !c.requireRecording("execute commands") {
		return
	}
	if !c.inRenderPass {
		c.fail("execute commands outside of a render pass")
	}
	for _, s := range secondary {
		hs, ok := s.(*headlessCommandBuffer)
		if !ok || hs.level != CommandBufferLevelSecondary || hs.recording {
			c.fail("execute commands needs ended secondary buffers")
			continue
		}
		c.secondaries = append(c.secondaries, hs)
	}
}

func (c *headlessCommandBuffer) EndRenderPass() {
	if c.requireRecording("end render pass") && !c.inRenderPass {
		c.fail("end render pass without a pass")
	}
	c.inRenderPass = false
}

func (c *headlessCommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("headless: end buffer that is not recording")
	}
	if c.inRenderPass {
		c.fail("end buffer inside a render pass")
	}
	c.recording = false
	return c.err
}

func (c *headlessCommandBuffer) SetViewport(extent Extent) {
	c.requirePass("set viewport")
}

func (c *headlessCommandBuffer) BindPipeline(pipeline *Resource) {
	c.requirePass("bind pipeline")
	c.use(pipeline)
}

func (c *headlessCommandBuffer) BindVertexBuffer(buffer *Resource) {
	c.requirePass("bind vertex buffer")
	c.use(buffer)
}

func (c *headlessCommandBuffer) BindIndexBuffer(buffer *Resource) {
	c.requirePass("bind index buffer")
	c.use(buffer)
}

func (c *headlessCommandBuffer) BindDescriptorSet(layout, set *Resource) {
	c.requirePass("bind descriptor set")
	c.use(layout, set)
}

func (c *headlessCommandBuffer) PushConstants(layout *Resource, data []byte) {
	c.requirePass("push constants")
	if len(data) > PushConstantSize {
		c.fail("push constants of %d bytes exceed %d", len(data), PushConstantSize)
	}
	c.use(layout)
}

func (c *headlessCommandBuffer) DrawIndexed(indexCount uint32) {
	c.requirePass("draw indexed")
	c.draws = append(c.draws, indexCount)
}

// executedDraws returns the index counts of every draw in execution order, following executed secondaries.
func (c *headlessCommandBuffer) executedDraws() []uint32 {
	draws := slices.Clone(c.draws)
	for _, s := range c.secondaries {
		draws = append(draws, s.executedDraws()...)
	}
	return draws
}

// ExecutedDraws returns the index count of every draw a headless command buffer executes, in order.
// It returns nil for command buffers from other backends.
func ExecutedDraws(cmd CommandBuffer) []uint32 {
	if hc, ok := cmd.(*headlessCommandBuffer); ok {
		return hc.executedDraws()
	}
	return nil
}
