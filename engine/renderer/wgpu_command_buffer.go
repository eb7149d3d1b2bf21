package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuOpKind int

const (
	wgpuOpBeginRenderPass wgpuOpKind = iota
	wgpuOpExecuteCommands
	wgpuOpEndRenderPass
	wgpuOpSetViewport
	wgpuOpBindPipeline
	wgpuOpBindVertexBuffer
	wgpuOpBindIndexBuffer
	wgpuOpBindDescriptorSet
	wgpuOpPushConstants
	wgpuOpDrawIndexed
)

// wgpuOp is one recorded command. Resources are kept so replay can refuse destroyed ones.
type wgpuOp struct {
	kind      wgpuOpKind
	resource  *Resource
	extra     *Resource
	extent    Extent
	clear     ClearValues
	count     uint32
	data      []byte
	secondary []*wgpuCommandBuffer
}

// wgpuCommandBuffer records ops for replay at Submit. A secondary buffer remembers the framebuffer it was
// begun for so replay can check it runs inside the matching pass.
type wgpuCommandBuffer struct {
	level       CommandBufferLevel
	pool        *Resource
	framebuffer *Resource
	recording   bool
	ops         []wgpuOp
	err         error
}

var _ CommandBuffer = &wgpuCommandBuffer{}

func (c *wgpuCommandBuffer) state() string {
	switch {
	case c.recording:
		return "recording"
	case c.level == CommandBufferLevelSecondary:
		return "secondary"
	default:
		return "primary"
	}
}

func (c *wgpuCommandBuffer) Level() CommandBufferLevel {
	return c.level
}

func (c *wgpuCommandBuffer) Reset() error {
	c.ops = c.ops[:0]
	c.framebuffer = nil
	c.recording = false
	c.err = nil
	return nil
}

func (c *wgpuCommandBuffer) BeginPrimary() error {
	if c.level != CommandBufferLevelPrimary {
		return fmt.Errorf("wgpu: BeginPrimary on secondary command buffer: %w", ErrInvalidState)
	}
	c.ops = c.ops[:0]
	c.recording = true
	c.err = nil
	return nil
}

func (c *wgpuCommandBuffer) BeginSecondary(renderPass, framebuffer *Resource) error {
	if c.level != CommandBufferLevelSecondary {
		return fmt.Errorf("wgpu: BeginSecondary on primary command buffer: %w", ErrInvalidState)
	}
	if renderPass.Destroyed() || framebuffer.Destroyed() {
		return fmt.Errorf("wgpu: begin secondary for %s: %w", framebuffer, ErrResourceDestroyed)
	}
	c.ops = c.ops[:0]
	c.framebuffer = framebuffer
	c.recording = true
	c.err = nil
	return nil
}

func (c *wgpuCommandBuffer) record(op wgpuOp) {
	if c.err != nil {
		return
	}
	if !c.recording {
		c.err = fmt.Errorf("wgpu: command recorded outside recording: %w", ErrInvalidState)
		return
	}
	c.ops = append(c.ops, op)
}

func (c *wgpuCommandBuffer) BeginRenderPass(renderPass, framebuffer *Resource, extent Extent, clear ClearValues, secondaryContents bool) {
	if c.level != CommandBufferLevelPrimary {
		c.err = fmt.Errorf("wgpu: render pass begun in secondary command buffer: %w", ErrInvalidState)
		return
	}
	c.record(wgpuOp{kind: wgpuOpBeginRenderPass, resource: renderPass, extra: framebuffer, extent: extent, clear: clear})
}

func (c *wgpuCommandBuffer) ExecuteCommands(secondary []CommandBuffer) {
	list := make([]*wgpuCommandBuffer, 0, len(secondary))
	for _, s := range secondary {
		ws, ok := s.(*wgpuCommandBuffer)
		if !ok || ws.level != CommandBufferLevelSecondary {
			c.err = fmt.Errorf("wgpu: execute commands: %T is not a secondary wgpu command buffer", s)
			return
		}
		list = append(list, ws)
	}
	c.record(wgpuOp{kind: wgpuOpExecuteCommands, secondary: list})
}

func (c *wgpuCommandBuffer) EndRenderPass() {
	c.record(wgpuOp{kind: wgpuOpEndRenderPass})
}

func (c *wgpuCommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("wgpu: end of command buffer that is not recording: %w", ErrInvalidState)
	}
	c.recording = false
	return c.err
}

func (c *wgpuCommandBuffer) SetViewport(extent Extent) {
	c.record(wgpuOp{kind: wgpuOpSetViewport, extent: extent})
}

func (c *wgpuCommandBuffer) BindPipeline(pipeline *Resource) {
	c.record(wgpuOp{kind: wgpuOpBindPipeline, resource: pipeline})
}

func (c *wgpuCommandBuffer) BindVertexBuffer(buffer *Resource) {
	c.record(wgpuOp{kind: wgpuOpBindVertexBuffer, resource: buffer})
}

func (c *wgpuCommandBuffer) BindIndexBuffer(buffer *Resource) {
	c.record(wgpuOp{kind: wgpuOpBindIndexBuffer, resource: buffer})
}

func (c *wgpuCommandBuffer) BindDescriptorSet(layout, set *Resource) {
	c.record(wgpuOp{kind: wgpuOpBindDescriptorSet, resource: set, extra: layout})
}

// PushConstants copies the block. The caller may reuse its slice once the call returns.
func (c *wgpuCommandBuffer) PushConstants(layout *Resource, data []byte) {
	if len(data) == 0 || len(data) > PushConstantSize {
		c.err = fmt.Errorf("wgpu: push constant block of %d bytes", len(data))
		return
	}
	c.record(wgpuOp{kind: wgpuOpPushConstants, resource: layout, data: append([]byte(nil), data...)})
}

func (c *wgpuCommandBuffer) DrawIndexed(indexCount uint32) {
	c.record(wgpuOp{kind: wgpuOpDrawIndexed, count: indexCount})
}

// countPushes returns the number of push constant blocks the buffer and its secondaries hold.
func (c *wgpuCommandBuffer) countPushes() int {
	n := 0
	for i := range c.ops {
		switch c.ops[i].kind {
		case wgpuOpPushConstants:
			n++
		case wgpuOpExecuteCommands:
			for _, s := range c.ops[i].secondary {
				n += s.countPushes()
			}
		}
	}
	return n
}

// wgpuReplay encodes recorded ops. Push constant blocks are packed into the backend's draw ring in the
// order they are replayed.
type wgpuReplay struct {
	backend     *wgpuRendererBackendImpl
	encoder     *wgpu.CommandEncoder
	pass        *wgpu.RenderPassEncoder
	framebuffer *Resource
	draws       int
}

func (r *wgpuReplay) run(ops []wgpuOp, framebuffer *Resource) error {
	for i := range ops {
		op := &ops[i]
		for _, res := range []*Resource{op.resource, op.extra} {
			if res != nil && res.Destroyed() {
				return fmt.Errorf("wgpu: replay uses %s: %w", res, ErrResourceDestroyed)
			}
		}
		if op.kind != wgpuOpBeginRenderPass && op.kind != wgpuOpExecuteCommands && r.pass == nil {
			return fmt.Errorf("wgpu: command %d outside a render pass: %w", op.kind, ErrInvalidState)
		}

		switch op.kind {
		case wgpuOpBeginRenderPass:
			if framebuffer != nil || r.pass != nil {
				return fmt.Errorf("wgpu: nested render pass: %w", ErrInvalidState)
			}
			if err := r.beginPass(op); err != nil {
				return err
			}
		case wgpuOpExecuteCommands:
			if r.pass == nil {
				return fmt.Errorf("wgpu: execute commands outside a render pass: %w", ErrInvalidState)
			}
			for _, s := range op.secondary {
				if s.recording {
					return fmt.Errorf("wgpu: execute of secondary still recording: %w", ErrInvalidState)
				}
				if s.framebuffer != r.framebuffer {
					return fmt.Errorf("wgpu: secondary recorded for %s executed in %s: %w", s.framebuffer, r.framebuffer, ErrInvalidState)
				}
				if err := r.run(s.ops, s.framebuffer); err != nil {
					return err
				}
			}
		case wgpuOpEndRenderPass:
			if framebuffer != nil {
				return fmt.Errorf("wgpu: render pass ended in secondary: %w", ErrInvalidState)
			}
			r.pass.End()
			r.pass.Release()
			r.pass = nil
			r.framebuffer = nil
		case wgpuOpSetViewport:
			r.pass.SetViewport(0, 0, float32(op.extent.Width), float32(op.extent.Height), 0, 1)
			r.pass.SetScissorRect(0, 0, op.extent.Width, op.extent.Height)
		case wgpuOpBindPipeline:
			r.pass.SetPipeline(HandleAs[*wgpu.RenderPipeline](op.resource))
		case wgpuOpBindVertexBuffer:
			r.pass.SetVertexBuffer(0, HandleAs[*wgpuBuffer](op.resource).buffer, 0, wgpu.WholeSize)
		case wgpuOpBindIndexBuffer:
			r.pass.SetIndexBuffer(HandleAs[*wgpuBuffer](op.resource).buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		case wgpuOpBindDescriptorSet:
			r.pass.SetBindGroup(0, HandleAs[*wgpu.BindGroup](op.resource), nil)
		case wgpuOpPushConstants:
			offset := r.draws * wgpuDrawDataStride
			copy(r.backend.drawData[offset:offset+PushConstantSize], op.data)
			r.pass.SetBindGroup(1, r.backend.drawGroup, []uint32{uint32(offset)})
			r.draws++
		case wgpuOpDrawIndexed:
			r.pass.DrawIndexed(op.count, 1, 0, 0, 0)
		}
	}
	return nil
}

// beginPass starts the main render pass. With MSAA the multisampled target is drawn and resolved into the
// surface texture; without it the surface texture is drawn directly.
func (r *wgpuReplay) beginPass(op *wgpuOp) error {
	fb := HandleAs[*wgpuFramebuffer](op.extra)
	if fb.image.view == nil {
		return fmt.Errorf("wgpu: render into unacquired surface image %d: %w", fb.image.index, ErrInvalidState)
	}
	color := wgpu.RenderPassColorAttachment{
		View:    fb.image.view,
		LoadOp:  wgpu.LoadOpClear,
		StoreOp: wgpu.StoreOpStore,
		ClearValue: wgpu.Color{
			R: float64(op.clear.Color[0]),
			G: float64(op.clear.Color[1]),
			B: float64(op.clear.Color[2]),
			A: float64(op.clear.Color[3]),
		},
	}
	if fb.color != nil {
		color.View = fb.color
		color.ResolveTarget = fb.image.view
		color.StoreOp = wgpu.StoreOpDiscard
	}
	r.pass = r.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            fb.depth,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: op.clear.Depth,
		},
	})
	r.framebuffer = op.extra
	return nil
}
