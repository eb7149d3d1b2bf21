package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bench/engine/window"
	"github.com/Carmen-Shannon/oxy-bench/shaders"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// wgpuImageCount is the number of logical swapchain images. The surface owns the real images;
	// acquisitions rotate through these slots so image fences keep their meaning.
	wgpuImageCount = 3

	// wgpuDrawDataStride is the dynamic offset stride of the per-draw matrix ring. It is the default
	// minUniformBufferOffsetAlignment.
	wgpuDrawDataStride = 256

	wgpuDepthFormat = wgpu.TextureFormatDepth24Plus
)

// wgpuRendererBackendImpl runs the Vulkan-shaped frame protocol on WebGPU.
//
// WebGPU has no secondary command buffers, push constants, fences or semaphores. Command buffers record
// into op lists that Submit replays into one encoder, executing secondaries inline. Push constants become
// a uniform ring in bind group 1 indexed by dynamic offset. Fences and semaphores are state flags checked
// and signalled by Submit, with device polling standing in for the GPU wait.
type wgpuRendererBackendImpl struct {
	mu      *sync.Mutex
	queueMu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	alphaMode     wgpu.CompositeAlphaMode
	presentMode   wgpu.PresentMode
	sampleCount   MSAASampleCount

	reflection  *shader.Reflection
	groupLayout *wgpu.BindGroupLayout
	drawLayout  *wgpu.BindGroupLayout

	// per-draw matrix ring, guarded by queueMu
	drawBuffer   *wgpu.Buffer
	drawGroup    *wgpu.BindGroup
	drawCapacity int
	drawData     []byte

	images    []*wgpuSurfaceImage
	nextImage int
}

// wgpuSurfaceImage is one logical swapchain image. It holds the surface texture between acquire and present.
type wgpuSurfaceImage struct {
	index   int
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (s *wgpuSurfaceImage) release() {
	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	if s.texture != nil {
		s.texture.Release()
		s.texture = nil
	}
}

type wgpuSwapchain struct {
	extent Extent
}

type wgpuRenderPass struct{}

type wgpuFramebuffer struct {
	image  *wgpuSurfaceImage
	color  *wgpu.TextureView
	depth  *wgpu.TextureView
	extent Extent
}

type wgpuCommandPool struct {
	label string
}

type wgpuDescriptorPool struct {
	maxSets int
	used    int
}

type wgpuFence struct {
	signaled bool
	pending  bool
}

type wgpuSemaphore struct {
	signaled bool
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend requests an adapter and device compatible with the window surface and creates
// the bind group layouts of the skinned shader.
//
// Parameters:
//   - win: the window providing the surface descriptor
//   - cfg: the backend configuration collected by the renderer builder
//
// Returns:
//   - RendererBackend: the backend
//   - error: ErrNoSuitableDevice when no adapter is found, or a creation error
func newWGPURendererBackend(win window.Window, cfg backendConfig) (RendererBackend, error) {
	b := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		queueMu:     &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		sampleCount: common.Coalesce(cfg.msaa, MSAAOff),
	}
	if cfg.presentMode == PresentModeVSync {
		b.presentMode = wgpu.PresentModeFifo
	}
	if b.sampleCount != MSAAOff {
		// WebGPU guarantees only 1x and 4x.
		b.sampleCount = MSAA4x
	}

	var err error
	b.surface = b.instance.CreateSurface(win.SurfaceDescriptor())
	b.adapter, err = b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("wgpu: request adapter: %v: %w", err, ErrNoSuitableDevice)
	}

	b.device, err = b.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("wgpu: request device: %v: %w", err, ErrNoSuitableDevice)
	}
	b.queue = b.device.GetQueue()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		b.Destroy()
		return nil, fmt.Errorf("wgpu: surface reports no formats: %w", ErrNoSuitableDevice)
	}
	b.surfaceFormat = capabilities.Formats[0]
	b.alphaMode = capabilities.AlphaModes[0]

	if err := b.createLayouts(); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := b.growDrawRing(64); err != nil {
		b.Destroy()
		return nil, err
	}

	b.images = make([]*wgpuSurfaceImage, wgpuImageCount)
	for i := range b.images {
		b.images[i] = &wgpuSurfaceImage{index: i}
	}
	return b, nil
}

// createLayouts reflects the skinned module into group 0 (bones and view position, diffuse and specular
// texture with their samplers) and group 1 (the per-draw matrices, switched to a dynamic offset).
func (b *wgpuRendererBackendImpl) createLayouts() error {
	reflection, err := shader.Reflect(shaders.SkinnedWGSL)
	if err != nil {
		return fmt.Errorf("wgpu: %w", err)
	}
	group0, group1 := reflection.Group(0), reflection.Group(1)
	if len(group0) != 5 || len(group1) != 1 {
		return fmt.Errorf("wgpu: skinned module declares %d+%d bindings, want 5+1", len(group0), len(group1))
	}
	b.reflection = reflection

	b.groupLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "skinned group 0",
		Entries: group0,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	draw := group1[0]
	draw.Buffer.HasDynamicOffset = true
	b.drawLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "skinned group 1",
		Entries: []wgpu.BindGroupLayoutEntry{draw},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create draw layout: %w", err)
	}
	return nil
}

// growDrawRing replaces the per-draw matrix ring with one holding at least draws entries.
// The caller holds queueMu, or the backend is still being built.
func (b *wgpuRendererBackendImpl) growDrawRing(draws int) error {
	capacity := max(b.drawCapacity, 64)
	for capacity < draws {
		capacity *= 2
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "draw data ring",
		Size:  uint64(capacity * wgpuDrawDataStride),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create draw data ring: %w", err)
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "draw data ring",
		Layout: b.drawLayout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  buf,
			Size:    PushConstantSize,
		}},
	})
	if err != nil {
		buf.Release()
		return fmt.Errorf("wgpu: create draw data group: %w", err)
	}
	if b.drawGroup != nil {
		b.drawGroup.Release()
	}
	if b.drawBuffer != nil {
		b.drawBuffer.Release()
	}
	b.drawBuffer, b.drawGroup, b.drawCapacity = buf, group, capacity
	b.drawData = make([]byte, capacity*wgpuDrawDataStride)
	return nil
}

func (b *wgpuRendererBackendImpl) Name() string {
	return "wgpu"
}

// CreateSwapchain configures the surface. The returned images are logical slots bound to a surface texture
// on each acquisition.
func (b *wgpuRendererBackendImpl) CreateSwapchain(extent Extent) (*Resource, []*Resource, Extent, error) {
	if extent.IsZero() {
		return nil, nil, Extent{}, ErrSwapchainOutOfDate
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, img := range b.images {
		img.release()
	}
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       extent.Width,
		Height:      extent.Height,
		PresentMode: b.presentMode,
		AlphaMode:   b.alphaMode,
	})

	swapchain := NewResource(ResourceKindSwapchain, "surface", &wgpuSwapchain{extent: extent}, nil)
	images := make([]*Resource, len(b.images))
	for i, img := range b.images {
		images[i] = NewResource(ResourceKindSwapchainImage, fmt.Sprintf("surface image %d", i), img, nil)
	}
	b.nextImage = 0
	return swapchain, images, extent, nil
}

func (b *wgpuRendererBackendImpl) CreateImageView(image *Resource) (*Resource, error) {
	switch image.Kind() {
	case ResourceKindSwapchainImage:
		img := HandleAs[*wgpuSurfaceImage](image)
		return NewResource(ResourceKindSwapchainView, image.Label()+" view", img, nil), nil
	case ResourceKindTexture:
		view, err := HandleAs[*wgpu.Texture](image).CreateView(nil)
		if err != nil {
			return nil, fmt.Errorf("wgpu: view of %s: %w", image, err)
		}
		return NewResource(ResourceKindTextureView, image.Label()+" view", view, view.Release), nil
	default:
		return nil, fmt.Errorf("wgpu: no view for %s", image)
	}
}

// CreateRenderPass returns a placeholder. Render pass attachments are described when a recorded pass
// is replayed.
func (b *wgpuRendererBackendImpl) CreateRenderPass() (*Resource, error) {
	return NewResource(ResourceKindRenderPass, "render pass", &wgpuRenderPass{}, nil), nil
}

func (b *wgpuRendererBackendImpl) CreatePipeline(renderPass *Resource, extent Extent) (*Resource, *Resource, error) {
	if renderPass.Destroyed() {
		return nil, nil, fmt.Errorf("wgpu: pipeline for %s: %w", renderPass, ErrResourceDestroyed)
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "skinned",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: shaders.SkinnedWGSL,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create shader module: %w", err)
	}
	defer module.Release()

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "skinned",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.groupLayout, b.drawLayout},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	layoutRes := NewResource(ResourceKindPipelineLayout, "pipeline layout", layout, layout.Release)

	p, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "skinned Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: b.reflection.VertexEntry,
			Buffers:    []wgpu.VertexBufferLayout{b.reflection.VertexLayout},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: b.reflection.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    b.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpuDepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		layoutRes.Destroy()
		return nil, nil, fmt.Errorf("wgpu: create render pipeline: %w", err)
	}
	return layoutRes, NewResource(ResourceKindPipeline, "skinned pipeline", p, p.Release), nil
}

func (b *wgpuRendererBackendImpl) createTarget(kind, viewKind ResourceKind, label string, extent Extent, format wgpu.TextureFormat) (*Resource, *Resource, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              extent.Width,
			Height:             extent.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   uint32(b.sampleCount),
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("wgpu: view of %s: %w", label, err)
	}
	return NewResource(kind, label, tex, tex.Release), NewResource(viewKind, label+" view", view, view.Release), nil
}

// CreateColorTarget creates the multisampled color target, or placeholders when MSAA is off and the pass
// draws straight into the surface texture.
func (b *wgpuRendererBackendImpl) CreateColorTarget(extent Extent) (*Resource, *Resource, error) {
	if b.sampleCount == MSAAOff {
		return NewResource(ResourceKindColorImage, "color target", (*wgpu.Texture)(nil), nil),
			NewResource(ResourceKindColorView, "color target view", (*wgpu.TextureView)(nil), nil), nil
	}
	return b.createTarget(ResourceKindColorImage, ResourceKindColorView, "color target", extent, b.surfaceFormat)
}

func (b *wgpuRendererBackendImpl) CreateDepthTarget(extent Extent) (*Resource, *Resource, error) {
	return b.createTarget(ResourceKindDepthImage, ResourceKindDepthView, "depth target", extent, wgpuDepthFormat)
}

func (b *wgpuRendererBackendImpl) CreateFramebuffer(renderPass, swapchainView, colorView, depthView *Resource, extent Extent) (*Resource, error) {
	for _, r := range []*Resource{renderPass, swapchainView, colorView, depthView} {
		if r.Destroyed() {
			return nil, fmt.Errorf("wgpu: framebuffer uses %s: %w", r, ErrResourceDestroyed)
		}
	}
	fb := &wgpuFramebuffer{
		image:  HandleAs[*wgpuSurfaceImage](swapchainView),
		color:  HandleAs[*wgpu.TextureView](colorView),
		depth:  HandleAs[*wgpu.TextureView](depthView),
		extent: extent,
	}
	return NewResource(ResourceKindFramebuffer, "framebuffer "+swapchainView.Label(), fb, nil), nil
}

func (b *wgpuRendererBackendImpl) CreateCommandPool(label string) (*Resource, error) {
	return NewResource(ResourceKindCommandPool, label, &wgpuCommandPool{label: label}, nil), nil
}

func (b *wgpuRendererBackendImpl) AllocateCommandBuffers(pool *Resource, level CommandBufferLevel, count int) ([]CommandBuffer, error) {
	if pool.Destroyed() {
		return nil, fmt.Errorf("wgpu: allocate from %s: %w", pool, ErrResourceDestroyed)
	}
	cmds := make([]CommandBuffer, count)
	for i := range cmds {
		cmds[i] = &wgpuCommandBuffer{level: level, pool: pool}
	}
	return cmds, nil
}

func (b *wgpuRendererBackendImpl) CreateFence(signaled bool) (*Resource, error) {
	return NewResource(ResourceKindFence, "fence", &wgpuFence{signaled: signaled}, nil), nil
}

func (b *wgpuRendererBackendImpl) CreateSemaphore() (*Resource, error) {
	return NewResource(ResourceKindSemaphore, "semaphore", &wgpuSemaphore{}, nil), nil
}

// WaitForFence polls the device until the queue is empty when the fence guards submitted work.
func (b *wgpuRendererBackendImpl) WaitForFence(fence *Resource) error {
	b.mu.Lock()
	f := HandleAs[*wgpuFence](fence)
	pending, signaled := f.pending, f.signaled
	b.mu.Unlock()

	if signaled {
		return nil
	}
	if !pending {
		return fmt.Errorf("wgpu: wait on %s that guards no submission: %w", fence, ErrInvalidState)
	}
	b.device.Poll(true, nil)

	b.mu.Lock()
	f.pending, f.signaled = false, true
	b.mu.Unlock()
	return nil
}

func (b *wgpuRendererBackendImpl) ResetFence(fence *Resource) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := HandleAs[*wgpuFence](fence)
	if f.pending {
		return fmt.Errorf("wgpu: reset of pending %s: %w", fence, ErrInvalidState)
	}
	f.signaled = false
	return nil
}

// AcquireNextImage takes the current surface texture into the next logical image slot. Any surface status
// other than success means the surface must be reconfigured.
func (b *wgpuRendererBackendImpl) AcquireNextImage(swapchain, signal *Resource) (uint32, error) {
	if swapchain == nil || swapchain.Destroyed() {
		return 0, fmt.Errorf("wgpu: acquire: %w", ErrResourceDestroyed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	img := b.images[b.nextImage]
	if img.texture != nil {
		return 0, fmt.Errorf("wgpu: surface image %d acquired twice: %w", img.index, ErrInvalidState)
	}
	tex, err := b.surface.GetCurrentTexture()
	if err != nil {
		return 0, fmt.Errorf("wgpu: %v: %w", err, ErrSwapchainOutOfDate)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return 0, fmt.Errorf("wgpu: view of surface texture: %w", err)
	}
	img.texture, img.view = tex, view
	b.nextImage = (b.nextImage + 1) % len(b.images)

	HandleAs[*wgpuSemaphore](signal).signaled = true
	return uint32(img.index), nil
}

// Submit replays the primary command list and its secondaries into one encoder and submits it.
func (b *wgpuRendererBackendImpl) Submit(cmd CommandBuffer, wait, signal, fence *Resource) error {
	wc, ok := cmd.(*wgpuCommandBuffer)
	if !ok {
		return fmt.Errorf("wgpu: submit of foreign command buffer %T", cmd)
	}
	if wc.level != CommandBufferLevelPrimary || wc.recording {
		return fmt.Errorf("wgpu: submit of %s command buffer: %w", wc.state(), ErrInvalidState)
	}

	b.mu.Lock()
	waitSem := HandleAs[*wgpuSemaphore](wait)
	f := HandleAs[*wgpuFence](fence)
	if !waitSem.signaled {
		b.mu.Unlock()
		return fmt.Errorf("wgpu: submit waits on unsignaled %s: %w", wait, ErrInvalidState)
	}
	if f.signaled || f.pending {
		b.mu.Unlock()
		return fmt.Errorf("wgpu: submit with unreset %s: %w", fence, ErrInvalidState)
	}
	waitSem.signaled = false
	b.mu.Unlock()

	b.queueMu.Lock()
	err := b.replay(wc)
	b.queueMu.Unlock()
	if err != nil {
		return err
	}

	b.mu.Lock()
	HandleAs[*wgpuSemaphore](signal).signaled = true
	f.pending = true
	b.mu.Unlock()
	return nil
}

// replay encodes a primary command list. The caller holds queueMu.
func (b *wgpuRendererBackendImpl) replay(primary *wgpuCommandBuffer) error {
	if draws := primary.countPushes(); draws > b.drawCapacity {
		if err := b.growDrawRing(draws); err != nil {
			return err
		}
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	defer encoder.Release()

	r := &wgpuReplay{backend: b, encoder: encoder}
	if err := r.run(primary.ops, nil); err != nil {
		if r.pass != nil {
			r.pass.End()
			r.pass.Release()
		}
		return err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("wgpu: finish command encoder: %w", err)
	}
	defer commandBuffer.Release()

	if r.draws > 0 {
		if err := b.queue.WriteBuffer(b.drawBuffer, 0, b.drawData[:r.draws*wgpuDrawDataStride]); err != nil {
			return fmt.Errorf("wgpu: write draw data: %w", err)
		}
	}
	b.queue.Submit(commandBuffer)
	return nil
}

// Present shows the surface texture of the image and releases it.
func (b *wgpuRendererBackendImpl) Present(swapchain *Resource, imageIndex uint32, wait *Resource) error {
	if swapchain == nil || swapchain.Destroyed() {
		return fmt.Errorf("wgpu: present: %w", ErrResourceDestroyed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sem := HandleAs[*wgpuSemaphore](wait)
	if !sem.signaled {
		return fmt.Errorf("wgpu: present waits on unsignaled %s: %w", wait, ErrInvalidState)
	}
	sem.signaled = false
	if int(imageIndex) >= len(b.images) || b.images[imageIndex].texture == nil {
		return fmt.Errorf("wgpu: present of unacquired image %d: %w", imageIndex, ErrInvalidState)
	}

	b.surface.Present()
	b.images[imageIndex].release()
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, usage BufferUsage, data []byte) (*Resource, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wgpu: buffer %s is empty", label)
	}
	var bits wgpu.BufferUsage
	switch usage {
	case BufferUsageVertex:
		bits = wgpu.BufferUsageVertex
	case BufferUsageIndex:
		bits = wgpu.BufferUsageIndex
	case BufferUsageUniform:
		bits = wgpu.BufferUsageUniform
	}
	buf, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: data,
		Usage:    bits | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: buffer %s: %w", label, err)
	}
	return NewResource(ResourceKindBuffer, label, &wgpuBuffer{buffer: buf, size: uint64(len(data))}, buf.Release), nil
}

type wgpuBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

// WriteBuffer queues a write. Writes land before the next submission, which is the one that reads them.
func (b *wgpuRendererBackendImpl) WriteBuffer(buffer *Resource, offset uint64, data []byte) error {
	if buffer.Destroyed() {
		return fmt.Errorf("wgpu: write %s: %w", buffer, ErrResourceDestroyed)
	}
	buf := HandleAs[*wgpuBuffer](buffer)
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows %s of %d bytes", len(data), offset, buffer, buf.size)
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return b.queue.WriteBuffer(buf.buffer, offset, data)
}

func (b *wgpuRendererBackendImpl) CreateTexture(label string, data common.TextureStagingData) (*Resource, *Resource, error) {
	if data.Width == 0 || data.Height == 0 || len(data.Pixels) != int(data.Width*data.Height*4) {
		return nil, nil, fmt.Errorf("wgpu: texture %s: %d bytes for %dx%d RGBA", label, len(data.Pixels), data.Width, data.Height)
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: texture %s: %w", label, err)
	}

	b.queueMu.Lock()
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
	b.queueMu.Unlock()

	texture := NewResource(ResourceKindTexture, label, tex, tex.Release)
	view, err := b.CreateImageView(texture)
	if err != nil {
		texture.Destroy()
		return nil, nil, err
	}
	return texture, view, nil
}

func (b *wgpuRendererBackendImpl) CreateSampler(label string) (*Resource, error) {
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: sampler %s: %w", label, err)
	}
	return NewResource(ResourceKindSampler, label, samp, samp.Release), nil
}

// CreateDescriptorPool returns a counter. Bind groups are allocated by the device.
func (b *wgpuRendererBackendImpl) CreateDescriptorPool(label string, maxSets int) (*Resource, error) {
	if maxSets <= 0 {
		return nil, fmt.Errorf("wgpu: descriptor pool %s needs at least one set", label)
	}
	return NewResource(ResourceKindDescriptorPool, label, &wgpuDescriptorPool{maxSets: maxSets}, nil), nil
}

func (b *wgpuRendererBackendImpl) AllocateDescriptorSet(pool *Resource, binding DescriptorBinding) (*Resource, error) {
	if pool.Destroyed() {
		return nil, fmt.Errorf("wgpu: allocate from %s: %w", pool, ErrResourceDestroyed)
	}
	if binding.Uniform == nil || binding.Diffuse == nil || binding.DiffuseSampler == nil {
		return nil, fmt.Errorf("wgpu: descriptor set needs a uniform buffer and a diffuse texture")
	}
	specular, specularSampler := binding.Specular, binding.SpecularSampler
	if specular == nil || specularSampler == nil {
		specular, specularSampler = binding.Diffuse, binding.DiffuseSampler
	}

	b.mu.Lock()
	p := HandleAs[*wgpuDescriptorPool](pool)
	if p.used >= p.maxSets {
		b.mu.Unlock()
		return nil, fmt.Errorf("wgpu: %s exhausted at %d sets", pool, p.maxSets)
	}
	p.used++
	b.mu.Unlock()

	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  pool.Label() + " Bind Group",
		Layout: b.groupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: HandleAs[*wgpuBuffer](binding.Uniform).buffer, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: HandleAs[*wgpu.TextureView](binding.Diffuse)},
			{Binding: 2, Sampler: HandleAs[*wgpu.Sampler](binding.DiffuseSampler)},
			{Binding: 3, TextureView: HandleAs[*wgpu.TextureView](specular)},
			{Binding: 4, Sampler: HandleAs[*wgpu.Sampler](specularSampler)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: bind group for %s: %w", pool, err)
	}
	return NewResource(ResourceKindDescriptorSet, pool.Label()+" set", group, group.Release), nil
}

func (b *wgpuRendererBackendImpl) WaitIdle() error {
	if b.device == nil {
		return nil
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	b.device.Poll(true, nil)
	return nil
}

// FlipsProjectionY is false: WebGPU clip space has Y pointing up.
func (b *wgpuRendererBackendImpl) FlipsProjectionY() bool {
	return false
}

// Destroy releases device-level objects. It tolerates a partially constructed backend.
func (b *wgpuRendererBackendImpl) Destroy() {
	for _, img := range b.images {
		img.release()
	}
	if b.drawGroup != nil {
		b.drawGroup.Release()
		b.drawGroup = nil
	}
	if b.drawBuffer != nil {
		b.drawBuffer.Release()
		b.drawBuffer = nil
	}
	if b.drawLayout != nil {
		b.drawLayout.Release()
		b.drawLayout = nil
	}
	if b.groupLayout != nil {
		b.groupLayout.Release()
		b.groupLayout = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
