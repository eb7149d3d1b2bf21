package renderer

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// vulkanCommandBuffer wraps a vk.CommandBuffer. The first invalid recording call is kept and returned by End.
type vulkanCommandBuffer struct {
	level     CommandBufferLevel
	handle    vk.CommandBuffer
	recording bool
	err       error
}

var _ CommandBuffer = &vulkanCommandBuffer{}

func (c *vulkanCommandBuffer) Level() CommandBufferLevel {
	return c.level
}

func (c *vulkanCommandBuffer) Reset() error {
	c.recording = false
	c.err = nil
	return vkCheck("reset command buffer", vk.ResetCommandBuffer(c.handle, 0))
}

func (c *vulkanCommandBuffer) BeginPrimary() error {
	if c.level != CommandBufferLevelPrimary {
		return fmt.Errorf("vulkan: BeginPrimary on secondary command buffer: %w", ErrInvalidState)
	}
	if err := vkCheck("begin command buffer", vk.BeginCommandBuffer(c.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	c.recording = true
	c.err = nil
	return nil
}

func (c *vulkanCommandBuffer) BeginSecondary(renderPass, framebuffer *Resource) error {
	if c.level != CommandBufferLevelSecondary {
		return fmt.Errorf("vulkan: BeginSecondary on primary command buffer: %w", ErrInvalidState)
	}
	if renderPass.Destroyed() || framebuffer.Destroyed() {
		return fmt.Errorf("vulkan: begin secondary for %s: %w", framebuffer, ErrResourceDestroyed)
	}
	if err := vkCheck("begin secondary command buffer", vk.BeginCommandBuffer(c.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit | vk.CommandBufferUsageOneTimeSubmitBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  HandleAs[vk.RenderPass](renderPass),
			Framebuffer: HandleAs[vk.Framebuffer](framebuffer),
		}},
	})); err != nil {
		return err
	}
	c.recording = true
	c.err = nil
	return nil
}

// check records the first failure and reports whether recording may continue.
func (c *vulkanCommandBuffer) check(op string, resources ...*Resource) bool {
	if c.err != nil {
		return false
	}
	if !c.recording {
		c.err = fmt.Errorf("vulkan: %s outside recording: %w", op, ErrInvalidState)
		return false
	}
	for _, r := range resources {
		if r == nil || r.Destroyed() {
			c.err = fmt.Errorf("vulkan: %s uses %s: %w", op, r, ErrResourceDestroyed)
			return false
		}
	}
	return true
}

func (c *vulkanCommandBuffer) BeginRenderPass(renderPass, framebuffer *Resource, extent Extent, clear ClearValues, secondaryContents bool) {
	if !c.check("begin render pass", renderPass, framebuffer) {
		return
	}
	color := vk.NewClearValue(clear.Color[:])
	depth := vk.NewClearDepthStencil(clear.Depth, 0)
	contents := vk.SubpassContentsInline
	if secondaryContents {
		contents = vk.SubpassContentsSecondaryCommandBuffers
	}
	// The multisampled pass has a third attachment, the resolve target, which is never cleared.
	vk.CmdBeginRenderPass(c.handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  HandleAs[vk.RenderPass](renderPass),
		Framebuffer: HandleAs[vk.Framebuffer](framebuffer),
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: 3,
		PClearValues:    []vk.ClearValue{color, depth, color},
	}, contents)
}

func (c *vulkanCommandBuffer) ExecuteCommands(secondary []CommandBuffer) {
	if !c.check("execute commands") || len(secondary) == 0 {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(secondary))
	for _, s := range secondary {
		vs, ok := s.(*vulkanCommandBuffer)
		if !ok || vs.level != CommandBufferLevelSecondary {
			c.err = fmt.Errorf("vulkan: execute commands: %T is not a secondary vulkan command buffer", s)
			return
		}
		handles = append(handles, vs.handle)
	}
	vk.CmdExecuteCommands(c.handle, uint32(len(handles)), handles)
}

func (c *vulkanCommandBuffer) EndRenderPass() {
	if c.check("end render pass") {
		vk.CmdEndRenderPass(c.handle)
	}
}

func (c *vulkanCommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("vulkan: end of command buffer that is not recording: %w", ErrInvalidState)
	}
	c.recording = false
	endErr := vkCheck("end command buffer", vk.EndCommandBuffer(c.handle))
	if c.err != nil {
		return c.err
	}
	return endErr
}

func (c *vulkanCommandBuffer) SetViewport(extent Extent) {
	if !c.check("set viewport") {
		return
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{vulkanViewport(extent)})
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}})
}

func (c *vulkanCommandBuffer) BindPipeline(pipeline *Resource) {
	if c.check("bind pipeline", pipeline) {
		vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, HandleAs[vk.Pipeline](pipeline))
	}
}

func (c *vulkanCommandBuffer) BindVertexBuffer(buffer *Resource) {
	if c.check("bind vertex buffer", buffer) {
		vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{HandleAs[*vulkanBuffer](buffer).buffer}, []vk.DeviceSize{0})
	}
}

func (c *vulkanCommandBuffer) BindIndexBuffer(buffer *Resource) {
	if c.check("bind index buffer", buffer) {
		vk.CmdBindIndexBuffer(c.handle, HandleAs[*vulkanBuffer](buffer).buffer, 0, vk.IndexTypeUint32)
	}
}

func (c *vulkanCommandBuffer) BindDescriptorSet(layout, set *Resource) {
	if !c.check("bind descriptor set", layout, set) {
		return
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, HandleAs[vk.PipelineLayout](layout),
		0, 1, []vk.DescriptorSet{HandleAs[vk.DescriptorSet](set)}, 0, nil)
}

func (c *vulkanCommandBuffer) PushConstants(layout *Resource, data []byte) {
	if !c.check("push constants", layout) {
		return
	}
	if len(data) == 0 || len(data) > PushConstantSize || len(data)%4 != 0 {
		c.err = fmt.Errorf("vulkan: push constant block of %d bytes", len(data))
		return
	}
	vk.CmdPushConstants(c.handle, HandleAs[vk.PipelineLayout](layout), vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *vulkanCommandBuffer) DrawIndexed(indexCount uint32) {
	if c.check("draw indexed") {
		vk.CmdDrawIndexed(c.handle, indexCount, 1, 0, 0, 0)
	}
}
