package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/engine/window"
	vk "github.com/goki/vulkan"
)

// vulkanDepthFormat is the depth attachment format. Every desktop driver supports it as an attachment.
const vulkanDepthFormat = vk.FormatD32Sfloat

// vulkanValidationLayer is requested when validation is enabled and the layer is installed.
const vulkanValidationLayer = "VK_LAYER_KHRONOS_validation\x00"

// Shader file names loaded from the configured shader directory.
const (
	vulkanVertexShaderFile   = "skinned.vert.spv"
	vulkanFragmentShaderFile = "skinned.frag.spv"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// vulkanRendererBackendImpl is the Vulkan implementation of RendererBackend.
//
// It owns the instance, the surface, one logical device with a single queue family that supports both
// graphics and presentation, the descriptor set layout shared by every draw, and a small command pool used
// for one-time uploads. Everything else is created on request and handed back wrapped in a Resource.
type vulkanRendererBackendImpl struct {
	// queueMu serializes queue access and the upload pool. Submit and Present come from the render
	// goroutine while model uploads may come from loader goroutines.
	queueMu *sync.Mutex

	cfg  backendConfig
	name string

	instance vk.Instance
	surface  vk.Surface
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	family   uint32

	memory      vk.PhysicalDeviceMemoryProperties
	colorFormat vk.Format
	colorSpace  vk.ColorSpace
	presentMode vk.PresentMode
	samples     vk.SampleCountFlagBits

	setLayout  vk.DescriptorSetLayout
	uploadPool vk.CommandPool

	vertexCode   []uint32
	fragmentCode []uint32
}

var _ RendererBackend = &vulkanRendererBackendImpl{}

// vulkanImage is an image with the memory bound to it.
type vulkanImage struct {
	image  vk.Image
	memory vk.DeviceMemory
}

// newVulkanRendererBackend loads the Vulkan API through GLFW, creates the instance, the window surface and a
// logical device, and loads the SPIR-V shader pair. Every step that fails unwinds the steps before it.
//
// Parameters:
//   - win: the window to present into
//   - cfg: present mode, MSAA, shader directory and validation settings
//
// Returns:
//   - RendererBackend: the Vulkan backend
//   - error: ErrNoSuitableDevice or a wrapped creation error
func newVulkanRendererBackend(win window.Window, cfg backendConfig) (RendererBackend, error) {
	if !win.VulkanSupported() {
		return nil, fmt.Errorf("vulkan loader not found: %w", ErrNoSuitableDevice)
	}
	vertexCode, err := loadSPIRV(filepath.Join(cfg.shaderDir, vulkanVertexShaderFile))
	if err != nil {
		return nil, err
	}
	fragmentCode, err := loadSPIRV(filepath.Join(cfg.shaderDir, vulkanFragmentShaderFile))
	if err != nil {
		return nil, err
	}

	vk.SetGetInstanceProcAddr(win.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan init: %w", err)
	}

	b := &vulkanRendererBackendImpl{
		queueMu:      &sync.Mutex{},
		cfg:          cfg,
		vertexCode:   vertexCode,
		fragmentCode: fragmentCode,
	}
	if err := b.createInstance(win.VulkanInstanceExtensions()); err != nil {
		return nil, err
	}

	surface, err := win.CreateVulkanSurface(b.instance)
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	b.surface = vk.SurfaceFromPointer(surface)

	if err := b.pickPhysicalDevice(); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := b.createDevice(); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := b.createSetLayout(); err != nil {
		b.Destroy()
		return nil, err
	}
	if err := vkCheck("create upload command pool", vk.CreateCommandPool(b.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: b.family,
	}, nil, &b.uploadPool)); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// loadSPIRV reads a compiled shader and converts it to the word slice vkCreateShaderModule expects.
func loadSPIRV(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load shader: %w (compile the GLSL sources with `go generate ./shaders`, which needs glslc, or point the shader directory at the .spv files)", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load shader: %w", err)
	}
	if len(data) < 4 || len(data)%4 != 0 || binary.LittleEndian.Uint32(data) != spirvMagic {
		return nil, fmt.Errorf("load shader %s: %d bytes is not little-endian SPIR-V", path, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

// vkCheck converts a failed vk.Result into an error.
func vkCheck(op string, res vk.Result) error {
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// cString terminates a Go string for the Vulkan C API.
func cString(s string) string {
	return s + "\x00"
}

func (b *vulkanRendererBackendImpl) createInstance(extensions []string) error {
	names := make([]string, 0, len(extensions))
	for _, e := range extensions {
		names = append(names, cString(e))
	}
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   cString("oxy-bench"),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        cString("oxy"),
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			ApiVersion:         vk.MakeVersion(1, 1, 0),
		},
	}
	info.EnabledExtensionCount = uint32(len(names))
	info.PpEnabledExtensionNames = names

	if b.cfg.validation {
		if validationLayerAvailable() {
			info.EnabledLayerCount = 1
			info.PpEnabledLayerNames = []string{vulkanValidationLayer}
		} else {
			log.Printf("[Renderer] vulkan validation requested but %s is not installed", vulkanValidationLayer[:len(vulkanValidationLayer)-1])
		}
	}

	if err := vkCheck("create instance", vk.CreateInstance(&info, nil, &b.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(b.instance); err != nil {
		vk.DestroyInstance(b.instance, nil)
		b.instance = nil
		return fmt.Errorf("load instance functions: %w", err)
	}
	return nil
}

func validationLayerAvailable() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	want := vulkanValidationLayer[:len(vulkanValidationLayer)-1]
	for _, l := range layers {
		l.Deref()
		if vk.ToString(l.LayerName[:]) == want {
			return true
		}
	}
	return false
}

// pickPhysicalDevice selects the first device with a queue family that does both graphics and presentation,
// swapchain support and at least one surface format. Discrete GPUs are preferred.
func (b *vulkanRendererBackendImpl) pickPhysicalDevice() error {
	var count uint32
	if err := vkCheck("enumerate physical devices", vk.EnumeratePhysicalDevices(b.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no vulkan devices: %w", ErrNoSuitableDevice)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vkCheck("enumerate physical devices", vk.EnumeratePhysicalDevices(b.instance, &count, devices)); err != nil {
		return err
	}

	found := false
	for _, dev := range devices {
		family, ok := b.presentFamily(dev)
		if !ok || !hasSwapchainExtension(dev) {
			continue
		}
		format, space, ok := b.chooseSurfaceFormat(dev)
		if !ok {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		discrete := props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
		if found && !discrete {
			continue
		}

		props.Limits.Deref()
		b.physical = dev
		b.family = family
		b.colorFormat, b.colorSpace = format, space
		b.samples = clampSampleCount(b.cfg.msaa, props.Limits.FramebufferColorSampleCounts&props.Limits.FramebufferDepthSampleCounts)
		b.name = "vulkan " + vk.ToString(props.DeviceName[:])
		found = true
		if discrete {
			break
		}
	}
	if !found {
		return ErrNoSuitableDevice
	}

	vk.GetPhysicalDeviceMemoryProperties(b.physical, &b.memory)
	b.memory.Deref()
	b.presentMode = b.choosePresentMode()
	return nil
}

func (b *vulkanRendererBackendImpl) presentFamily(dev vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, families)
	for i, f := range families {
		f.Deref()
		if f.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), b.surface, &supported)
		if supported.B() {
			return uint32(i), true
		}
	}
	return 0, false
}

func hasSwapchainExtension(dev vk.PhysicalDevice) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(dev, "", &count, nil) != vk.Success {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(dev, "", &count, exts) != vk.Success {
		return false
	}
	for _, e := range exts {
		e.Deref()
		if vk.ToString(e.ExtensionName[:]) == vk.KhrSwapchainExtensionName {
			return true
		}
	}
	return false
}

// chooseSurfaceFormat prefers 8-bit BGRA sRGB and otherwise takes the first format the surface offers.
func (b *vulkanRendererBackendImpl) chooseSurfaceFormat(dev vk.PhysicalDevice) (vk.Format, vk.ColorSpace, bool) {
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(dev, b.surface, &count, nil)
	if count == 0 {
		return 0, 0, false
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(dev, b.surface, &count, formats)
	for i := range formats {
		formats[i].Deref()
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f.Format, f.ColorSpace, true
		}
	}
	if formats[0].Format == vk.FormatUndefined {
		return vk.FormatB8g8r8a8Srgb, vk.ColorSpaceSrgbNonlinear, true
	}
	return formats[0].Format, formats[0].ColorSpace, true
}

// choosePresentMode maps the configured PresentMode. Uncapped prefers immediate, then mailbox.
// FIFO is the fallback because every driver must support it.
func (b *vulkanRendererBackendImpl) choosePresentMode() vk.PresentMode {
	if b.cfg.presentMode == PresentModeVSync {
		return vk.PresentModeFifo
	}
	var count uint32
	vk.GetPhysicalDeviceSurfacePresentModes(b.physical, b.surface, &count, nil)
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(b.physical, b.surface, &count, modes)
	best := vk.PresentModeFifo
	for _, m := range modes {
		switch m {
		case vk.PresentModeImmediate:
			return m
		case vk.PresentModeMailbox:
			best = m
		}
	}
	return best
}

// clampSampleCount returns the highest supported sample count not above the request.
func clampSampleCount(want MSAASampleCount, supported vk.SampleCountFlags) vk.SampleCountFlagBits {
	for _, c := range []struct {
		count MSAASampleCount
		bit   vk.SampleCountFlagBits
	}{
		{MSAA8x, vk.SampleCount8Bit},
		{MSAA4x, vk.SampleCount4Bit},
		{2, vk.SampleCount2Bit},
	} {
		if want >= c.count && supported&vk.SampleCountFlags(c.bit) != 0 {
			return c.bit
		}
	}
	return vk.SampleCount1Bit
}

func (b *vulkanRendererBackendImpl) createDevice() error {
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: b.family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   1,
		PpEnabledExtensionNames: []string{cString(vk.KhrSwapchainExtensionName)},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}
	if err := vkCheck("create device", vk.CreateDevice(b.physical, &info, nil, &b.device)); err != nil {
		return err
	}
	vk.GetDeviceQueue(b.device, b.family, 0, &b.queue)
	return nil
}

// createSetLayout creates the layout every draw binds: the uniform block at 0, diffuse at 1, specular at 2.
func (b *vulkanRendererBackendImpl) createSetLayout() error {
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: stages},
		{Binding: 1, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
		{Binding: 2, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	}
	return vkCheck("create descriptor set layout", vk.CreateDescriptorSetLayout(b.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &b.setLayout))
}

func (b *vulkanRendererBackendImpl) Name() string {
	return b.name
}

func (b *vulkanRendererBackendImpl) multisampled() bool {
	return b.samples != vk.SampleCount1Bit
}

func (b *vulkanRendererBackendImpl) CreateSwapchain(extent Extent) (*Resource, []*Resource, Extent, error) {
	var caps vk.SurfaceCapabilities
	if err := vkCheck("query surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(b.physical, b.surface, &caps)); err != nil {
		return nil, nil, Extent{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	actual := extent
	if caps.CurrentExtent.Width != math.MaxUint32 {
		actual = Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	} else {
		actual.Width = min(max(actual.Width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width)
		actual.Height = min(max(actual.Height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height)
	}
	if actual.IsZero() {
		return nil, nil, Extent{}, ErrSwapchainOutOfDate
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	var sc vk.Swapchain
	err := vkCheck("create swapchain", vk.CreateSwapchain(b.device, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.surface,
		MinImageCount:    imageCount,
		ImageFormat:      b.colorFormat,
		ImageColorSpace:  b.colorSpace,
		ImageExtent:      vk.Extent2D{Width: actual.Width, Height: actual.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      b.presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}, nil, &sc))
	if err != nil {
		return nil, nil, Extent{}, err
	}
	device := b.device
	swapchain := NewResource(ResourceKindSwapchain, "swapchain", sc, func() { vk.DestroySwapchain(device, sc, nil) })

	var count uint32
	if err := vkCheck("get swapchain images", vk.GetSwapchainImages(b.device, sc, &count, nil)); err != nil {
		swapchain.Destroy()
		return nil, nil, Extent{}, err
	}
	raw := make([]vk.Image, count)
	if err := vkCheck("get swapchain images", vk.GetSwapchainImages(b.device, sc, &count, raw)); err != nil {
		swapchain.Destroy()
		return nil, nil, Extent{}, err
	}
	// Swapchain images belong to the swapchain, so their resources carry no destructor.
	images := make([]*Resource, count)
	for i, img := range raw {
		images[i] = NewResource(ResourceKindSwapchainImage, fmt.Sprintf("swapchain image %d", i), img, nil)
	}
	return swapchain, images, actual, nil
}

func (b *vulkanRendererBackendImpl) createView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	var view vk.ImageView
	err := vkCheck("create image view", vk.CreateImageView(b.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view))
	return view, err
}

func (b *vulkanRendererBackendImpl) viewResource(kind ResourceKind, label string, view vk.ImageView) *Resource {
	device := b.device
	return NewResource(kind, label, view, func() { vk.DestroyImageView(device, view, nil) })
}

func (b *vulkanRendererBackendImpl) CreateImageView(image *Resource) (*Resource, error) {
	if image.Destroyed() {
		return nil, fmt.Errorf("vulkan: view of %s: %w", image, ErrResourceDestroyed)
	}
	switch image.Kind() {
	case ResourceKindSwapchainImage:
		view, err := b.createView(HandleAs[vk.Image](image), b.colorFormat, vk.ImageAspectColorBit)
		if err != nil {
			return nil, err
		}
		return b.viewResource(ResourceKindSwapchainView, image.Label()+" view", view), nil
	case ResourceKindTexture:
		view, err := b.createView(HandleAs[*vulkanImage](image).image, vk.FormatR8g8b8a8Srgb, vk.ImageAspectColorBit)
		if err != nil {
			return nil, err
		}
		return b.viewResource(ResourceKindTextureView, image.Label()+" view", view), nil
	default:
		return nil, fmt.Errorf("vulkan: cannot create a view of %s", image)
	}
}

// CreateRenderPass builds the single-subpass pass. With MSAA the multisampled color target resolves into the
// swapchain image, otherwise the swapchain image is drawn directly. Attachment order matches CreateFramebuffer.
func (b *vulkanRendererBackendImpl) CreateRenderPass() (*Resource, error) {
	depth := vk.AttachmentDescription{
		Format:         vulkanDepthFormat,
		Samples:        b.samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	present := vk.AttachmentDescription{
		Format:         b.colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	depthRef := vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}

	attachments := []vk.AttachmentDescription{present, depth}
	if b.multisampled() {
		color := present
		color.Samples = b.samples
		color.StoreOp = vk.AttachmentStoreOpDontCare
		color.FinalLayout = vk.ImageLayoutColorAttachmentOptimal
		present.LoadOp = vk.AttachmentLoadOpDontCare
		attachments = []vk.AttachmentDescription{color, depth, present}
		subpass.PResolveAttachments = []vk.AttachmentReference{{Attachment: 2, Layout: vk.ImageLayoutColorAttachmentOptimal}}
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var rp vk.RenderPass
	err := vkCheck("create render pass", vk.CreateRenderPass(b.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp))
	if err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindRenderPass, "render pass", rp, func() { vk.DestroyRenderPass(device, rp, nil) }), nil
}

func (b *vulkanRendererBackendImpl) createShaderModule(code []uint32) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	err := vkCheck("create shader module", vk.CreateShaderModule(b.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}, nil, &module))
	return module, err
}

// vulkanVertexAttributes mirrors model.GPUVertex: position, normal, uv, two uvec4 of bone ids and two vec4 of
// weights in a 96 byte stride.
var vulkanVertexAttributes = []vk.VertexInputAttributeDescription{
	{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
	{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
	{Location: 3, Binding: 0, Format: vk.FormatR32g32b32a32Uint, Offset: 32},
	{Location: 4, Binding: 0, Format: vk.FormatR32g32b32a32Uint, Offset: 48},
	{Location: 5, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 64},
	{Location: 6, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 80},
}

const vulkanVertexStride = 96

func (b *vulkanRendererBackendImpl) CreatePipeline(renderPass *Resource, extent Extent) (*Resource, *Resource, error) {
	if renderPass.Destroyed() {
		return nil, nil, fmt.Errorf("vulkan: pipeline for %s: %w", renderPass, ErrResourceDestroyed)
	}
	device := b.device

	var layout vk.PipelineLayout
	err := vkCheck("create pipeline layout", vk.CreatePipelineLayout(b.device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{b.setLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			Offset:     0,
			Size:       PushConstantSize,
		}},
	}, nil, &layout))
	if err != nil {
		return nil, nil, err
	}
	layoutRes := NewResource(ResourceKindPipelineLayout, "pipeline layout", layout, func() { vk.DestroyPipelineLayout(device, layout, nil) })

	vs, err := b.createShaderModule(b.vertexCode)
	if err != nil {
		layoutRes.Destroy()
		return nil, nil, err
	}
	defer vk.DestroyShaderModule(b.device, vs, nil)
	fs, err := b.createShaderModule(b.fragmentCode)
	if err != nil {
		layoutRes.Destroy()
		return nil, nil, err
	}
	defer vk.DestroyShaderModule(b.device, fs, nil)

	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{
			{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vs, PName: cString("main")},
			{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fs, PName: cString("main")},
		},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount: 1,
			PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    vulkanVertexStride,
				InputRate: vk.VertexInputRateVertex,
			}},
			VertexAttributeDescriptionCount: uint32(len(vulkanVertexAttributes)),
			PVertexAttributeDescriptions:    vulkanVertexAttributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			PViewports:    []vk.Viewport{vulkanViewport(extent)},
			ScissorCount:  1,
			PScissors:     []vk.Rect2D{{Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height}}},
		},
		// Imported models mix winding orders, so nothing is culled.
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: b.samples,
			MinSampleShading:     1,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MaxDepthBounds:   1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:            layout,
		RenderPass:        HandleAs[vk.RenderPass](renderPass),
		BasePipelineIndex: -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vkCheck("create graphics pipeline", vk.CreateGraphicsPipelines(b.device, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)); err != nil {
		layoutRes.Destroy()
		return nil, nil, err
	}
	p := pipelines[0]
	return layoutRes, NewResource(ResourceKindPipeline, "skinned pipeline", p, func() { vk.DestroyPipeline(device, p, nil) }), nil
}

func vulkanViewport(extent Extent) vk.Viewport {
	return vk.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1}
}

// createAttachment creates a device-local image with a view, used for the color and depth targets.
func (b *vulkanRendererBackendImpl) createAttachment(kind, viewKind ResourceKind, label string, extent Extent, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits) (*Resource, *Resource, error) {
	img, err := b.createImage(extent.Width, extent.Height, format, b.samples, vk.ImageUsageFlags(usage))
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", label, err)
	}
	device := b.device
	image := NewResource(kind, label, img, func() {
		vk.DestroyImage(device, img.image, nil)
		vk.FreeMemory(device, img.memory, nil)
	})
	view, err := b.createView(img.image, format, aspect)
	if err != nil {
		image.Destroy()
		return nil, nil, fmt.Errorf("create %s view: %w", label, err)
	}
	return image, b.viewResource(viewKind, label+" view", view), nil
}

// CreateColorTarget creates the multisampled color image. Without MSAA the swapchain image is the color
// target, so both returned resources are placeholders without a device object.
func (b *vulkanRendererBackendImpl) CreateColorTarget(extent Extent) (*Resource, *Resource, error) {
	if !b.multisampled() {
		return NewResource(ResourceKindColorImage, "color target", nil, nil),
			NewResource(ResourceKindColorView, "color target view", nil, nil), nil
	}
	return b.createAttachment(ResourceKindColorImage, ResourceKindColorView, "color target", extent, b.colorFormat,
		vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransientAttachmentBit, vk.ImageAspectColorBit)
}

func (b *vulkanRendererBackendImpl) CreateDepthTarget(extent Extent) (*Resource, *Resource, error) {
	return b.createAttachment(ResourceKindDepthImage, ResourceKindDepthView, "depth target", extent, vulkanDepthFormat,
		vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit)
}

func (b *vulkanRendererBackendImpl) CreateFramebuffer(renderPass, swapchainView, colorView, depthView *Resource, extent Extent) (*Resource, error) {
	for _, r := range []*Resource{renderPass, swapchainView, colorView, depthView} {
		if r.Destroyed() {
			return nil, fmt.Errorf("vulkan: framebuffer attachment %s: %w", r, ErrResourceDestroyed)
		}
	}
	attachments := []vk.ImageView{HandleAs[vk.ImageView](swapchainView), HandleAs[vk.ImageView](depthView)}
	if b.multisampled() {
		attachments = []vk.ImageView{HandleAs[vk.ImageView](colorView), HandleAs[vk.ImageView](depthView), HandleAs[vk.ImageView](swapchainView)}
	}

	var fb vk.Framebuffer
	err := vkCheck("create framebuffer", vk.CreateFramebuffer(b.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      HandleAs[vk.RenderPass](renderPass),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb))
	if err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindFramebuffer, "framebuffer "+swapchainView.Label(), fb, func() { vk.DestroyFramebuffer(device, fb, nil) }), nil
}

// CreateCommandPool creates a pool whose buffers can be reset one by one, which the recorder's worker slots
// rely on when they reuse cached secondary buffers.
func (b *vulkanRendererBackendImpl) CreateCommandPool(label string) (*Resource, error) {
	var pool vk.CommandPool
	err := vkCheck("create command pool "+label, vk.CreateCommandPool(b.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: b.family,
	}, nil, &pool))
	if err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindCommandPool, label, pool, func() { vk.DestroyCommandPool(device, pool, nil) }), nil
}

func (b *vulkanRendererBackendImpl) AllocateCommandBuffers(pool *Resource, level CommandBufferLevel, count int) ([]CommandBuffer, error) {
	if pool.Destroyed() {
		return nil, fmt.Errorf("vulkan: allocate from %s: %w", pool, ErrResourceDestroyed)
	}
	if count <= 0 {
		return nil, nil
	}
	vkLevel := vk.CommandBufferLevelPrimary
	if level == CommandBufferLevelSecondary {
		vkLevel = vk.CommandBufferLevelSecondary
	}
	raw := make([]vk.CommandBuffer, count)
	err := vkCheck("allocate command buffers", vk.AllocateCommandBuffers(b.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        HandleAs[vk.CommandPool](pool),
		Level:              vkLevel,
		CommandBufferCount: uint32(count),
	}, raw))
	if err != nil {
		return nil, err
	}
	cmds := make([]CommandBuffer, count)
	for i, cb := range raw {
		cmds[i] = &vulkanCommandBuffer{level: level, handle: cb}
	}
	return cmds, nil
}

func (b *vulkanRendererBackendImpl) CreateFence(signaled bool) (*Resource, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vkCheck("create fence", vk.CreateFence(b.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)); err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindFence, "fence", fence, func() { vk.DestroyFence(device, fence, nil) }), nil
}

func (b *vulkanRendererBackendImpl) CreateSemaphore() (*Resource, error) {
	var sem vk.Semaphore
	if err := vkCheck("create semaphore", vk.CreateSemaphore(b.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)); err != nil {
		return nil, err
	}
	device := b.device
	return NewResource(ResourceKindSemaphore, "semaphore", sem, func() { vk.DestroySemaphore(device, sem, nil) }), nil
}

func (b *vulkanRendererBackendImpl) WaitForFence(fence *Resource) error {
	return vkCheck("wait for fence", vk.WaitForFences(b.device, 1, []vk.Fence{HandleAs[vk.Fence](fence)}, vk.True, vk.MaxUint64))
}

func (b *vulkanRendererBackendImpl) ResetFence(fence *Resource) error {
	return vkCheck("reset fence", vk.ResetFences(b.device, 1, []vk.Fence{HandleAs[vk.Fence](fence)}))
}

func (b *vulkanRendererBackendImpl) AcquireNextImage(swapchain, signal *Resource) (uint32, error) {
	if swapchain == nil || swapchain.Destroyed() {
		return 0, fmt.Errorf("vulkan: acquire: %w", ErrResourceDestroyed)
	}
	var idx uint32
	res := vk.AcquireNextImage(b.device, HandleAs[vk.Swapchain](swapchain), vk.MaxUint64, HandleAs[vk.Semaphore](signal), vk.NullFence, &idx)
	switch res {
	case vk.Success:
		return idx, nil
	case vk.Suboptimal:
		return idx, ErrSwapchainSuboptimal
	case vk.ErrorOutOfDate:
		return 0, ErrSwapchainOutOfDate
	default:
		return 0, vkCheck("acquire next image", res)
	}
}

func (b *vulkanRendererBackendImpl) Submit(cmd CommandBuffer, wait, signal, fence *Resource) error {
	vc, ok := cmd.(*vulkanCommandBuffer)
	if !ok {
		return fmt.Errorf("vulkan: submit of foreign command buffer %T", cmd)
	}
	if vc.level != CommandBufferLevelPrimary {
		return fmt.Errorf("vulkan: submit of secondary command buffer")
	}
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{HandleAs[vk.Semaphore](wait)},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{vc.handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{HandleAs[vk.Semaphore](signal)},
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return vkCheck("queue submit", vk.QueueSubmit(b.queue, 1, []vk.SubmitInfo{info}, HandleAs[vk.Fence](fence)))
}

func (b *vulkanRendererBackendImpl) Present(swapchain *Resource, imageIndex uint32, wait *Resource) error {
	if swapchain == nil || swapchain.Destroyed() {
		return fmt.Errorf("vulkan: present: %w", ErrResourceDestroyed)
	}
	b.queueMu.Lock()
	res := vk.QueuePresent(b.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{HandleAs[vk.Semaphore](wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{HandleAs[vk.Swapchain](swapchain)},
		PImageIndices:      []uint32{imageIndex},
	})
	b.queueMu.Unlock()

	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return ErrSwapchainSuboptimal
	case vk.ErrorOutOfDate:
		return ErrSwapchainOutOfDate
	default:
		return vkCheck("queue present", res)
	}
}

func (b *vulkanRendererBackendImpl) WaitIdle() error {
	if b.device == nil {
		return nil
	}
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return vkCheck("device wait idle", vk.DeviceWaitIdle(b.device))
}

// FlipsProjectionY is true because Vulkan clip space has Y pointing down.
func (b *vulkanRendererBackendImpl) FlipsProjectionY() bool {
	return true
}

// Destroy releases the device-level objects in reverse creation order. It tolerates a partially
// constructed backend, which is how a failed newVulkanRendererBackend cleans up.
func (b *vulkanRendererBackendImpl) Destroy() {
	if b.device != nil {
		if err := vk.Error(vk.DeviceWaitIdle(b.device)); err != nil {
			log.Printf("[Renderer] vulkan wait idle before destroy: %v", err)
		}
		if b.uploadPool != nil {
			vk.DestroyCommandPool(b.device, b.uploadPool, nil)
			b.uploadPool = nil
		}
		if b.setLayout != nil {
			vk.DestroyDescriptorSetLayout(b.device, b.setLayout, nil)
			b.setLayout = nil
		}
		vk.DestroyDevice(b.device, nil)
		b.device = nil
	}
	if b.surface != nil {
		vk.DestroySurface(b.instance, b.surface, nil)
		b.surface = nil
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, nil)
		b.instance = nil
	}
}
