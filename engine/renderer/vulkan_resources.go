package renderer

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-bench/common"
	vk "github.com/goki/vulkan"
)

// vulkanBuffer is a buffer with its memory. Uniform buffers stay mapped for their whole life so recorder
// tasks can write bone matrices without a queue round trip.
type vulkanBuffer struct {
	buffer vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

func (b *vulkanRendererBackendImpl) findMemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	for i := uint32(0); i < b.memory.MemoryTypeCount; i++ {
		t := b.memory.MemoryTypes[i]
		t.Deref()
		if typeBits&(1<<i) != 0 && t.PropertyFlags&props == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type with properties %#x", props)
}

func (b *vulkanRendererBackendImpl) allocate(req vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	req.Deref()
	typeIndex, err := b.findMemoryType(req.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}
	var mem vk.DeviceMemory
	err = vkCheck("allocate memory", vk.AllocateMemory(b.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &mem))
	return mem, err
}

func (b *vulkanRendererBackendImpl) createRawBuffer(size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*vulkanBuffer, error) {
	buf := &vulkanBuffer{size: size}
	if err := vkCheck("create buffer", vk.CreateBuffer(b.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf.buffer)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device, buf.buffer, &req)
	mem, err := b.allocate(req, props)
	if err != nil {
		vk.DestroyBuffer(b.device, buf.buffer, nil)
		return nil, err
	}
	buf.memory = mem
	if err := vkCheck("bind buffer memory", vk.BindBufferMemory(b.device, buf.buffer, mem, 0)); err != nil {
		b.freeBuffer(buf)
		return nil, err
	}
	return buf, nil
}

func (b *vulkanRendererBackendImpl) freeBuffer(buf *vulkanBuffer) {
	if buf.mapped != nil {
		vk.UnmapMemory(b.device, buf.memory)
		buf.mapped = nil
	}
	vk.DestroyBuffer(b.device, buf.buffer, nil)
	vk.FreeMemory(b.device, buf.memory, nil)
}

// stage copies data into a temporary host-visible transfer source.
func (b *vulkanRendererBackendImpl) stage(data []byte) (*vulkanBuffer, error) {
	staging, err := b.createRawBuffer(uint64(len(data)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, fmt.Errorf("staging buffer: %w", err)
	}
	var ptr unsafe.Pointer
	if err := vkCheck("map staging buffer", vk.MapMemory(b.device, staging.memory, 0, vk.DeviceSize(len(data)), 0, &ptr)); err != nil {
		b.freeBuffer(staging)
		return nil, err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(b.device, staging.memory)
	return staging, nil
}

// submitOnce records commands into a transient buffer, submits it and waits for the queue to drain.
func (b *vulkanRendererBackendImpl) submitOnce(record func(cb vk.CommandBuffer)) error {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	cmds := make([]vk.CommandBuffer, 1)
	if err := vkCheck("allocate upload buffer", vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.uploadPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)); err != nil {
		return err
	}
	defer vk.FreeCommandBuffers(b.device, b.uploadPool, 1, cmds)

	if err := vkCheck("begin upload buffer", vk.BeginCommandBuffer(cmds[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	record(cmds[0])
	if err := vkCheck("end upload buffer", vk.EndCommandBuffer(cmds[0])); err != nil {
		return err
	}
	if err := vkCheck("submit upload", vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}}, vk.NullFence)); err != nil {
		return err
	}
	return vkCheck("wait for upload", vk.QueueWaitIdle(b.queue))
}

// CreateBuffer creates a uniform buffer in mapped host-coherent memory, or a vertex or index buffer in
// device-local memory filled through a staging copy.
func (b *vulkanRendererBackendImpl) CreateBuffer(label string, usage BufferUsage, data []byte) (*Resource, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("vulkan: buffer %s is empty", label)
	}
	size := uint64(len(data))
	device := b.device
	wrap := func(buf *vulkanBuffer) *Resource {
		return NewResource(ResourceKindBuffer, label, buf, func() {
			if buf.mapped != nil {
				vk.UnmapMemory(device, buf.memory)
			}
			vk.DestroyBuffer(device, buf.buffer, nil)
			vk.FreeMemory(device, buf.memory, nil)
		})
	}

	if usage == BufferUsageUniform {
		buf, err := b.createRawBuffer(size, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
		if err != nil {
			return nil, fmt.Errorf("vulkan: buffer %s: %w", label, err)
		}
		if err := vkCheck("map uniform buffer", vk.MapMemory(b.device, buf.memory, 0, vk.DeviceSize(size), 0, &buf.mapped)); err != nil {
			b.freeBuffer(buf)
			return nil, fmt.Errorf("vulkan: buffer %s: %w", label, err)
		}
		vk.Memcopy(buf.mapped, data)
		return wrap(buf), nil
	}

	bits := vk.BufferUsageVertexBufferBit
	if usage == BufferUsageIndex {
		bits = vk.BufferUsageIndexBufferBit
	}
	buf, err := b.createRawBuffer(size, vk.BufferUsageFlags(bits|vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, fmt.Errorf("vulkan: buffer %s: %w", label, err)
	}
	staging, err := b.stage(data)
	if err != nil {
		b.freeBuffer(buf)
		return nil, fmt.Errorf("vulkan: buffer %s: %w", label, err)
	}
	defer b.freeBuffer(staging)

	err = b.submitOnce(func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, staging.buffer, buf.buffer, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	})
	if err != nil {
		b.freeBuffer(buf)
		return nil, fmt.Errorf("vulkan: buffer %s: %w", label, err)
	}
	return wrap(buf), nil
}

// WriteBuffer copies into a mapped uniform buffer. The caller guarantees the GPU is not reading the region,
// which the per-frame-slot uniform buffers ensure.
func (b *vulkanRendererBackendImpl) WriteBuffer(buffer *Resource, offset uint64, data []byte) error {
	if buffer.Destroyed() {
		return fmt.Errorf("vulkan: write %s: %w", buffer, ErrResourceDestroyed)
	}
	buf := HandleAs[*vulkanBuffer](buffer)
	if buf.mapped == nil {
		return fmt.Errorf("vulkan: write %s: buffer is not host visible", buffer)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("vulkan: write of %d bytes at %d overflows %s of %d bytes", len(data), offset, buffer, buf.size)
	}
	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}

func (b *vulkanRendererBackendImpl) createImage(width, height uint32, format vk.Format, samples vk.SampleCountFlagBits, usage vk.ImageUsageFlags) (*vulkanImage, error) {
	img := &vulkanImage{}
	if err := vkCheck("create image", vk.CreateImage(b.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img.image)); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device, img.image, &req)
	mem, err := b.allocate(req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(b.device, img.image, nil)
		return nil, err
	}
	img.memory = mem
	if err := vkCheck("bind image memory", vk.BindImageMemory(b.device, img.image, mem, 0)); err != nil {
		vk.DestroyImage(b.device, img.image, nil)
		vk.FreeMemory(b.device, mem, nil)
		return nil, err
	}
	return img, nil
}

// layoutBarrier moves a whole color image between layouts for the texture upload.
func layoutBarrier(cb vk.CommandBuffer, image vk.Image, from, to vk.ImageLayout, srcAccess, dstAccess vk.AccessFlagBits, srcStage, dstStage vk.PipelineStageFlagBits) {
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0, 0, nil, 0, nil, 1,
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

// CreateTexture uploads RGBA8 pixels into a sampled sRGB image and creates its view.
func (b *vulkanRendererBackendImpl) CreateTexture(label string, data common.TextureStagingData) (*Resource, *Resource, error) {
	if want := int(data.Width) * int(data.Height) * 4; want == 0 || len(data.Pixels) != want {
		return nil, nil, fmt.Errorf("vulkan: texture %s has %d bytes for %dx%d", label, len(data.Pixels), data.Width, data.Height)
	}
	img, err := b.createImage(data.Width, data.Height, vk.FormatR8g8b8a8Srgb, vk.SampleCount1Bit,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit))
	if err != nil {
		return nil, nil, fmt.Errorf("vulkan: texture %s: %w", label, err)
	}
	device := b.device
	tex := NewResource(ResourceKindTexture, label, img, func() {
		vk.DestroyImage(device, img.image, nil)
		vk.FreeMemory(device, img.memory, nil)
	})

	staging, err := b.stage(data.Pixels)
	if err != nil {
		tex.Destroy()
		return nil, nil, fmt.Errorf("vulkan: texture %s: %w", label, err)
	}
	defer b.freeBuffer(staging)

	err = b.submitOnce(func(cb vk.CommandBuffer) {
		layoutBarrier(cb, img.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessTransferWriteBit, vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit)
		vk.CmdCopyBufferToImage(cb, staging.buffer, img.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: data.Width, Height: data.Height, Depth: 1},
		}})
		layoutBarrier(cb, img.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessTransferWriteBit, vk.AccessShaderReadBit, vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit)
	})
	if err != nil {
		tex.Destroy()
		return nil, nil, fmt.Errorf("vulkan: texture %s: %w", label, err)
	}

	view, err := b.CreateImageView(tex)
	if err != nil {
		tex.Destroy()
		return nil, nil, err
	}
	return tex, view, nil
}

func (b *vulkanRendererBackendImpl) CreateSampler(label string) (*Resource, error) {
	var sampler vk.Sampler
	err := vkCheck("create sampler "+label, vk.CreateSampler(b.device, &vk.SamplerCreateInfo{
		SType:         vk.StructureTypeSamplerCreateInfo,
		MagFilter:     vk.FilterLinear,
		MinFilter:     vk.FilterLinear,
		MipmapMode:    vk.SamplerMipmapModeLinear,
		AddressModeU:  vk.SamplerAddressModeRepeat,
		AddressModeV:  vk.SamplerAddressModeRepeat,
		AddressModeW:  vk.SamplerAddressModeRepeat,
		MaxAnisotropy: 1,
		CompareOp:     vk.CompareOpAlways,
		BorderColor:   vk.BorderColorIntOpaqueBlack,
	}, nil, &sampler))
	if err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindSampler, label, sampler, func() { vk.DestroySampler(device, sampler, nil) }), nil
}

// CreateDescriptorPool sizes the pool for maxSets sets of one uniform buffer and two combined image samplers.
func (b *vulkanRendererBackendImpl) CreateDescriptorPool(label string, maxSets int) (*Resource, error) {
	if maxSets <= 0 {
		return nil, fmt.Errorf("vulkan: descriptor pool %s for %d sets", label, maxSets)
	}
	var pool vk.DescriptorPool
	err := vkCheck("create descriptor pool "+label, vk.CreateDescriptorPool(b.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		PoolSizeCount: 2,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: uint32(maxSets)},
			{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: uint32(maxSets * 2)},
		},
	}, nil, &pool))
	if err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindDescriptorPool, label, pool, func() { vk.DestroyDescriptorPool(device, pool, nil) }), nil
}

// AllocateDescriptorSet allocates and writes one set. Sets are freed with their pool, so the returned
// resource carries no destructor.
func (b *vulkanRendererBackendImpl) AllocateDescriptorSet(pool *Resource, binding DescriptorBinding) (*Resource, error) {
	if binding.Uniform == nil || binding.Diffuse == nil || binding.DiffuseSampler == nil {
		return nil, fmt.Errorf("vulkan: descriptor set needs a uniform buffer and a diffuse texture")
	}
	for _, r := range []*Resource{pool, binding.Uniform, binding.Diffuse, binding.DiffuseSampler, binding.Specular, binding.SpecularSampler} {
		if r != nil && r.Destroyed() {
			return nil, fmt.Errorf("vulkan: descriptor set binds %s: %w", r, ErrResourceDestroyed)
		}
	}
	specular, specularSampler := binding.Specular, binding.SpecularSampler
	if specular == nil || specularSampler == nil {
		specular, specularSampler = binding.Diffuse, binding.DiffuseSampler
	}

	var set vk.DescriptorSet
	if err := vkCheck("allocate descriptor set", vk.AllocateDescriptorSets(b.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     HandleAs[vk.DescriptorPool](pool),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.setLayout},
	}, &set)); err != nil {
		return nil, err
	}

	uniform := HandleAs[*vulkanBuffer](binding.Uniform)
	imageWrite := func(dst uint32, view, sampler *Resource) vk.WriteDescriptorSet {
		return vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      dst,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     HandleAs[vk.Sampler](sampler),
				ImageView:   HandleAs[vk.ImageView](view),
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		}
	}
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: uniform.buffer,
				Range:  vk.DeviceSize(uniform.size),
			}},
		},
		imageWrite(1, binding.Diffuse, binding.DiffuseSampler),
		imageWrite(2, specular, specularSampler),
	}
	vk.UpdateDescriptorSets(b.device, uint32(len(writes)), writes, 0, nil)
	return NewResource(ResourceKindDescriptorSet, pool.Label()+" set", set, nil), nil
}
