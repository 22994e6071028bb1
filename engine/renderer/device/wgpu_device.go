package device

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// pushConstantStride is the dynamic uniform offset alignment guaranteed by WebGPU.
const pushConstantStride = 256

type wgpuImage struct {
	desc      ImageDesc
	texture   *wgpu.Texture
	view      *wgpu.TextureView
	swapchain bool
}

func (i *wgpuImage) release() {
	if i.view != nil {
		i.view.Release()
		i.view = nil
	}
	if i.texture != nil {
		i.texture.Release()
		i.texture = nil
	}
}

type wgpuBuffer struct {
	desc   BufferDesc
	buffer *wgpu.Buffer
}

type wgpuPipeline struct {
	desc      PipelineDesc
	pipeline  *wgpu.RenderPipeline
	layouts   map[uint32]*wgpu.BindGroupLayout
	pushGroup *wgpu.BindGroup
}

func (p *wgpuPipeline) release() {
	if p.pushGroup != nil {
		p.pushGroup.Release()
		p.pushGroup = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	for g, l := range p.layouts {
		l.Release()
		delete(p.layouts, g)
	}
}

type wgpuResourceSet struct {
	desc   ResourceSetDesc
	layout *wgpu.BindGroupLayout
	writes map[uint32]ResourceWrite
	group  *wgpu.BindGroup
}

// complete reports whether every declared binding has a write.
func (s *wgpuResourceSet) complete() bool {
	for _, b := range s.desc.Bindings {
		if _, ok := s.writes[b.Binding]; !ok {
			return false
		}
	}
	return true
}

// wgpuFence emulates a binary CPU/GPU fence on top of queue submission indices.
type wgpuFence struct {
	signaled   bool
	pending    bool
	submission wgpu.SubmissionIndex
}

// wgpuSemaphore is bookkeeping only. The WebGPU queue orders submissions and presents itself,
// so the state is kept to enforce the acquire, submit and present protocol.
type wgpuSemaphore struct {
	signaled bool
}

type wgpuDevice struct {
	mu *sync.Mutex

	label                string
	forceFallbackAdapter bool
	pushSlots            int

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	images       Arena[ImageTag, *wgpuImage]
	buffers      Arena[BufferTag, *wgpuBuffer]
	samplers     Arena[SamplerTag, *wgpu.Sampler]
	renderPasses Arena[RenderPassTag, RenderPassDesc]
	framebuffers Arena[FramebufferTag, FramebufferDesc]
	pipelines    Arena[PipelineTag, *wgpuPipeline]
	sets         Arena[ResourceSetTag, *wgpuResourceSet]
	fences       Arena[FenceTag, *wgpuFence]
	semaphores   Arena[SemaphoreTag, *wgpuSemaphore]

	// pushRing backs emulated push constants. Each submission restarts at offset 0; queue
	// writes are ordered after earlier submissions so in-flight frames keep their data.
	pushRing    *wgpu.Buffer
	pushStaging []byte

	swapchain    []ImageHandle
	acquireCount uint32
	acquired     bool
	currentImage uint32
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice creates the WebGPU device context: instance, surface, adapter, device and queue.
// The calling goroutine is locked to its OS thread, as required by the windowing layer.
//
// Parameters:
//   - surfaceDescriptor: the platform surface of the window, or nil for an offscreen device
//   - opts: optional configuration
//
// Returns:
//   - Device: the device context
//   - error: wraps ErrResourceCreation if any step fails
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, opts ...WGPUDeviceBuilderOption) (Device, error) {
	runtime.LockOSThread()
	d := &wgpuDevice{
		mu:        &sync.Mutex{},
		label:     "Main Device",
		pushSlots: 4096,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrResourceCreation, err)
	}
	d.adapter = a

	// Groups 0-2 hold shader resources and group 3 holds the push constant ring.
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 4

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrResourceCreation, err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	ring, err := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Push Constant Ring",
		Size:  uint64(d.pushSlots * pushConstantStride),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: push constant ring: %w", ErrResourceCreation, err)
	}
	d.pushRing = ring

	common.Logger().Info("device created", "backend", "wgpu", "label", d.label, "fallback", d.forceFallbackAdapter)
	return d, nil
}

func (d *wgpuDevice) CreateImage(desc ImageDesc) (ImageHandle, error) {
	desc = desc.Normalize()
	if err := desc.Validate(); err != nil {
		return ImageHandle{}, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Layers,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.Samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        toWGPUFormat(desc.Format),
		Usage:         toWGPUTextureUsage(desc.Usage),
	})
	if err != nil {
		return ImageHandle{}, fmt.Errorf("%w: texture %q: %w", ErrResourceCreation, desc.Label, err)
	}

	var viewDesc *wgpu.TextureViewDescriptor
	if desc.Cube {
		viewDesc = &wgpu.TextureViewDescriptor{
			Label:           desc.Label + " Cube View",
			Format:          toWGPUFormat(desc.Format),
			Dimension:       wgpu.TextureViewDimensionCube,
			BaseMipLevel:    0,
			MipLevelCount:   desc.MipLevels,
			BaseArrayLayer:  0,
			ArrayLayerCount: 6,
			Aspect:          wgpu.TextureAspectAll,
		}
	}
	view, err := tex.CreateView(viewDesc)
	if err != nil {
		tex.Release()
		return ImageHandle{}, fmt.Errorf("%w: texture view %q: %w", ErrResourceCreation, desc.Label, err)
	}

	return d.images.Insert(&wgpuImage{desc: desc, texture: tex, view: view}), nil
}

func (d *wgpuDevice) WriteImage(h ImageHandle, layer uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, ok := d.images.Get(h)
	if !ok || img.swapchain {
		return fmt.Errorf("%w: write image %s", ErrInvalidHandle, h)
	}
	if layer >= img.desc.Layers {
		return fmt.Errorf("%w: layer %d of image %q with %d layers", ErrInvalidDescriptor, layer, img.desc.Label, img.desc.Layers)
	}
	bpp := img.desc.Format.BytesPerPixel()
	if want := int(img.desc.Width * img.desc.Height * bpp); len(data) != want {
		return fmt.Errorf("%w: image %q expects %d bytes, got %d", ErrInvalidDescriptor, img.desc.Label, want, len(data))
	}

	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  img.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: layer},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  img.desc.Width * bpp,
			RowsPerImage: img.desc.Height,
		},
		&wgpu.Extent3D{
			Width:              img.desc.Width,
			Height:             img.desc.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (d *wgpuDevice) DestroyImage(h ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, ok := d.images.Get(h)
	if !ok || img.swapchain {
		return
	}
	img.release()
	d.images.Remove(h)
}

func (d *wgpuDevice) CreateBuffer(desc BufferDesc) (BufferHandle, error) {
	if desc.Size == 0 {
		return BufferHandle{}, fmt.Errorf("%w: buffer %q has zero size", ErrResourceCreation, desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            toWGPUBufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return BufferHandle{}, fmt.Errorf("%w: buffer %q: %w", ErrResourceCreation, desc.Label, err)
	}
	return d.buffers.Insert(&wgpuBuffer{desc: desc, buffer: buf}), nil
}

func (d *wgpuDevice) WriteBuffer(h BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers.Get(h)
	if !ok {
		return fmt.Errorf("%w: write buffer %s", ErrInvalidHandle, h)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer %q (%d bytes)", ErrInvalidDescriptor, len(data), offset, b.desc.Label, b.desc.Size)
	}
	d.queue.WriteBuffer(b.buffer, offset, data)
	return nil
}

func (d *wgpuDevice) DestroyBuffer(h BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.buffers.Remove(h); ok {
		b.buffer.Release()
	}
}

func (d *wgpuDevice) BufferAlive(h BufferHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.buffers.Get(h)
	return ok
}

func (d *wgpuDevice) CreateSampler(desc SamplerDesc) (SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	address := wgpu.AddressModeRepeat
	if desc.Address == AddressClampToEdge {
		address = wgpu.AddressModeClampToEdge
	}
	filter, mipFilter := wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	if desc.Filter == FilterNearest {
		filter, mipFilter = wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	}

	s, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipFilter,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		Compare:       toWGPUCompare(desc.Compare),
		MaxAnisotropy: 1,
	})
	if err != nil {
		return SamplerHandle{}, fmt.Errorf("%w: sampler %q: %w", ErrResourceCreation, desc.Label, err)
	}
	return d.samplers.Insert(s), nil
}

func (d *wgpuDevice) DestroySampler(h SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.samplers.Remove(h); ok {
		s.Release()
	}
}

// CreateRenderPass stores the derived attachment rules. WebGPU has no render pass object;
// the rules are applied when a render target begins inside Submit.
func (d *wgpuDevice) CreateRenderPass(desc RenderPassDesc) (RenderPassHandle, error) {
	if err := desc.Validate(); err != nil {
		return RenderPassHandle{}, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderPasses.Insert(desc), nil
}

func (d *wgpuDevice) DestroyRenderPass(h RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderPasses.Remove(h)
}

func (d *wgpuDevice) CreateFramebuffer(desc FramebufferDesc) (FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp, ok := d.renderPasses.Get(desc.RenderPass)
	if !ok {
		return FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q: render pass %s", ErrInvalidHandle, desc.Label, desc.RenderPass)
	}
	if len(desc.Attachments) != len(rp.Attachments) {
		return FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q has %d images, render pass %q expects %d",
			ErrResourceCreation, desc.Label, len(desc.Attachments), rp.Label, len(rp.Attachments))
	}
	for i, h := range desc.Attachments {
		img, ok := d.images.Get(h)
		if !ok {
			return FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q attachment %d: %s", ErrInvalidHandle, desc.Label, i, h)
		}
		if img.desc.Width != desc.Width || img.desc.Height != desc.Height {
			return FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q attachment %d is %dx%d, framebuffer is %dx%d",
				ErrResourceCreation, desc.Label, i, img.desc.Width, img.desc.Height, desc.Width, desc.Height)
		}
	}
	return d.framebuffers.Insert(desc), nil
}

func (d *wgpuDevice) DestroyFramebuffer(h FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.framebuffers.Remove(h)
}

func (d *wgpuDevice) CreatePipeline(desc PipelineDesc) (PipelineHandle, error) {
	if err := desc.Validate(); err != nil {
		return PipelineHandle{}, fmt.Errorf("%w: %w", ErrResourceCreation, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rp, ok := d.renderPasses.Get(desc.RenderPass)
	if !ok {
		return PipelineHandle{}, fmt.Errorf("%w: pipeline %q: render pass %s", ErrInvalidHandle, desc.Label, desc.RenderPass)
	}

	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return PipelineHandle{}, fmt.Errorf("%w: shader module %q: %w", ErrResourceCreation, desc.Label, err)
	}
	defer module.Release()

	p := &wgpuPipeline{desc: desc, layouts: make(map[uint32]*wgpu.BindGroupLayout)}

	groups := groupBindings(desc.Bindings)
	maxGroup := -1
	for g := range groups {
		maxGroup = max(maxGroup, int(g))
	}
	if desc.PushConstantSize > 0 {
		maxGroup = PushConstantGroup
	}

	// Groups a shader skips still need an empty layout in the pipeline layout.
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		var entries []wgpu.BindGroupLayoutEntry
		if g == PushConstantGroup && desc.PushConstantSize > 0 {
			entries = []wgpu.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   pushBlockSize(desc.PushConstantSize),
				},
			}}
		} else {
			for _, b := range groups[uint32(g)] {
				entries = append(entries, toWGPULayoutEntry(b))
			}
		}
		layout, layoutErr := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s Group %d", desc.Label, g),
			Entries: entries,
		})
		if layoutErr != nil {
			p.release()
			return PipelineHandle{}, fmt.Errorf("%w: bind group layout %d of %q: %w", ErrResourceCreation, g, desc.Label, layoutErr)
		}
		bindGroupLayouts[g] = layout
		p.layouts[uint32(g)] = layout
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		p.release()
		return PipelineHandle{}, fmt.Errorf("%w: pipeline layout %q: %w", ErrResourceCreation, desc.Label, err)
	}
	defer pipelineLayout.Release()

	var fragment *wgpu.FragmentState
	if desc.FragmentEntry != "" {
		targets := make([]wgpu.ColorTargetState, 0, len(rp.Subpass.Color))
		for _, idx := range rp.Subpass.Color {
			targets = append(targets, wgpu.ColorTargetState{
				Format:    toWGPUFormat(rp.Attachments[idx].Format),
				Blend:     toWGPUBlend(desc.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			})
		}
		fragment = &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		}
	}

	var depthStencil *wgpu.DepthStencilState
	if rp.Subpass.Depth != AttachmentUnused {
		compare := wgpu.CompareFunctionAlways
		if desc.DepthTest {
			compare = toWGPUCompare(orDefault(desc.DepthCompare, CompareLessEqual))
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:              toWGPUFormat(rp.Attachments[rp.Subpass.Depth].Format),
			DepthWriteEnabled:   desc.DepthWrite,
			DepthCompare:        compare,
			DepthBias:           desc.DepthBias,
			DepthBiasSlopeScale: desc.DepthBiasSlope,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
			Buffers:    toWGPUVertexLayouts(desc.Vertex),
		},
		Fragment: fragment,
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: toWGPUFrontFace(desc.FrontFace),
			CullMode:  toWGPUCullMode(desc.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: orDefault(desc.Samples, 1),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		p.release()
		return PipelineHandle{}, fmt.Errorf("%w: render pipeline %q: %w", ErrResourceCreation, desc.Label, err)
	}
	p.pipeline = created

	if desc.PushConstantSize > 0 {
		bg, bgErr := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  desc.Label + " Push Constants",
			Layout: p.layouts[PushConstantGroup],
			Entries: []wgpu.BindGroupEntry{{
				Binding: 0,
				Buffer:  d.pushRing,
				Offset:  0,
				Size:    pushBlockSize(desc.PushConstantSize),
			}},
		})
		if bgErr != nil {
			p.release()
			return PipelineHandle{}, fmt.Errorf("%w: push constant group of %q: %w", ErrResourceCreation, desc.Label, bgErr)
		}
		p.pushGroup = bg
	}

	common.Logger().Debug("pipeline created", "label", desc.Label, "groups", maxGroup+1, "push", desc.PushConstantSize)
	return d.pipelines.Insert(p), nil
}

func (d *wgpuDevice) DestroyPipeline(h PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pipelines.Remove(h); ok {
		p.release()
	}
}

func (d *wgpuDevice) CreateResourceSet(desc ResourceSetDesc) (ResourceSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pipelines.Get(desc.Pipeline)
	if !ok {
		return ResourceSetHandle{}, fmt.Errorf("%w: resource set %q: pipeline %s", ErrInvalidHandle, desc.Label, desc.Pipeline)
	}
	layout, ok := p.layouts[desc.Group]
	if !ok || (desc.Group == PushConstantGroup && p.desc.PushConstantSize > 0) {
		return ResourceSetHandle{}, fmt.Errorf("%w: pipeline %q has no group %d", ErrResourceCreation, p.desc.Label, desc.Group)
	}
	return d.sets.Insert(&wgpuResourceSet{
		desc:   desc,
		layout: layout,
		writes: make(map[uint32]ResourceWrite),
	}), nil
}

// UpdateResourceSet records the writes and rebuilds the bind group once every declared
// binding is filled. WebGPU bind groups are immutable, so each complete update replaces it.
func (d *wgpuDevice) UpdateResourceSet(h ResourceSetHandle, writes []ResourceWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.sets.Get(h)
	if !ok {
		return fmt.Errorf("%w: update resource set %s", ErrInvalidHandle, h)
	}
	for _, w := range writes {
		if _, declared := set.desc.Declares(w.Binding); !declared {
			return fmt.Errorf("%w: resource set %q does not declare binding %d", ErrInvalidDescriptor, set.desc.Label, w.Binding)
		}
		set.writes[w.Binding] = w
	}
	if !set.complete() {
		return nil
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(set.desc.Bindings))
	for _, b := range set.desc.Bindings {
		w := set.writes[b.Binding]
		entry := wgpu.BindGroupEntry{Binding: b.Binding}
		switch {
		case b.Kind.IsBuffer():
			buf, ok := d.buffers.Get(w.Buffer)
			if !ok {
				return fmt.Errorf("%w: resource set %q binding %d buffer %s", ErrInvalidHandle, set.desc.Label, b.Binding, w.Buffer)
			}
			entry.Buffer = buf.buffer
			entry.Offset = w.Offset
			entry.Size = orDefault(w.Size, wgpu.WholeSize)
		case b.Kind.IsImage():
			img, ok := d.images.Get(w.Image)
			if !ok || img.view == nil {
				return fmt.Errorf("%w: resource set %q binding %d image %s", ErrInvalidHandle, set.desc.Label, b.Binding, w.Image)
			}
			entry.TextureView = img.view
		case b.Kind.IsSampler():
			s, ok := d.samplers.Get(w.Sampler)
			if !ok {
				return fmt.Errorf("%w: resource set %q binding %d sampler %s", ErrInvalidHandle, set.desc.Label, b.Binding, w.Sampler)
			}
			entry.Sampler = s
		}
		entries = append(entries, entry)
	}

	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   set.desc.Label + " Bind Group",
		Layout:  set.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%w: bind group %q: %w", ErrResourceCreation, set.desc.Label, err)
	}
	if set.group != nil {
		set.group.Release()
	}
	set.group = bg
	return nil
}

func (d *wgpuDevice) DestroyResourceSet(h ResourceSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sets.Remove(h); ok && s.group != nil {
		s.group.Release()
	}
}

func (d *wgpuDevice) CreateFence(signaled bool) (FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences.Insert(&wgpuFence{signaled: signaled}), nil
}

func (d *wgpuDevice) WaitFence(h FenceHandle, timeout time.Duration) error {
	d.mu.Lock()
	f, ok := d.fences.Get(h)
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: wait fence %s", ErrInvalidHandle, h)
	}
	if f.signaled {
		d.mu.Unlock()
		return nil
	}
	if !f.pending {
		d.mu.Unlock()
		return fmt.Errorf("%w: fence %s has no pending submission", ErrInvalidState, h)
	}
	index := f.submission
	d.mu.Unlock()

	if err := d.poll(&index, timeout); err != nil {
		return fmt.Errorf("wait fence %s: %w", h, err)
	}

	d.mu.Lock()
	d.completeThrough(index)
	d.mu.Unlock()
	return nil
}

func (d *wgpuDevice) ResetFence(h FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.fences.Get(h)
	if !ok {
		return fmt.Errorf("%w: reset fence %s", ErrInvalidHandle, h)
	}
	if f.pending {
		return fmt.Errorf("%w: fence %s is still pending", ErrInvalidState, h)
	}
	f.signaled = false
	return nil
}

func (d *wgpuDevice) FenceSignaled(h FenceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.fences.Get(h)
	if !ok {
		return false
	}
	if f.pending && d.device.Poll(false, nil) {
		// The queue is empty, so every submission has finished.
		d.fences.Each(func(_ FenceHandle, other *wgpuFence) {
			if other.pending {
				other.pending = false
				other.signaled = true
			}
		})
	}
	return f.signaled
}

func (d *wgpuDevice) DestroyFence(h FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences.Remove(h)
}

func (d *wgpuDevice) CreateSemaphore() (SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.semaphores.Insert(&wgpuSemaphore{}), nil
}

func (d *wgpuDevice) DestroySemaphore(h SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.semaphores.Remove(h)
}

func (d *wgpuDevice) Submit(info SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fence *wgpuFence
	if info.Fence.Valid() {
		f, ok := d.fences.Get(info.Fence)
		if !ok {
			return fmt.Errorf("%w: submit fence %s", ErrInvalidHandle, info.Fence)
		}
		if f.signaled || f.pending {
			return fmt.Errorf("%w: fence %s must be reset before submit", ErrInvalidState, info.Fence)
		}
		fence = f
	}
	waits, err := d.resolveSemaphores(info.Wait, true)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	signals, err := d.resolveSemaphores(info.Signal, false)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: command encoder: %w", ErrResourceCreation, err)
	}
	d.pushStaging = d.pushStaging[:0]
	if err := d.encode(encoder, info.Commands); err != nil {
		encoder.Release()
		return err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("finish command encoder: %w", err)
	}
	if len(d.pushStaging) > 0 {
		d.queue.WriteBuffer(d.pushRing, 0, d.pushStaging)
	}
	index := d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	for _, s := range waits {
		s.signaled = false
	}
	for _, s := range signals {
		s.signaled = true
	}
	if fence != nil {
		fence.pending = true
		fence.submission = index
	}
	return nil
}

// resolveSemaphores looks up semaphores and checks they are in the expected state.
func (d *wgpuDevice) resolveSemaphores(handles []SemaphoreHandle, wantSignaled bool) ([]*wgpuSemaphore, error) {
	out := make([]*wgpuSemaphore, 0, len(handles))
	for _, h := range handles {
		s, ok := d.semaphores.Get(h)
		if !ok {
			return nil, fmt.Errorf("%w: semaphore %s", ErrInvalidHandle, h)
		}
		if s.signaled != wantSignaled {
			return nil, fmt.Errorf("%w: semaphore %s signaled=%t, want %t", ErrInvalidState, h, s.signaled, wantSignaled)
		}
		out = append(out, s)
	}
	return out, nil
}

// encode translates recorded commands into WebGPU render passes on the encoder.
func (d *wgpuDevice) encode(encoder *wgpu.CommandEncoder, cmds []Command) error {
	var pass *wgpu.RenderPassEncoder
	var current *wgpuPipeline
	pushSlot := 0

	for i, c := range cmds {
		if c.Kind != CmdBeginRenderTarget && pass == nil {
			return fmt.Errorf("%w: command %d (%s) outside a render target", ErrInvalidState, i, c.Kind)
		}
		switch c.Kind {
		case CmdBeginRenderTarget:
			if pass != nil {
				pass.End()
				return fmt.Errorf("%w: command %d begins a render target inside another", ErrInvalidState, i)
			}
			desc, err := d.renderPassDescriptor(c)
			if err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
			pass = encoder.BeginRenderPass(desc)

		case CmdEndRenderTarget:
			pass.End()
			pass = nil
			current = nil

		case CmdSetViewport:
			v := c.Viewport
			pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)

		case CmdSetScissor:
			s := c.Scissor
			pass.SetScissorRect(uint32(max(s.X, 0)), uint32(max(s.Y, 0)), s.Width, s.Height)

		case CmdBindPipeline:
			p, ok := d.pipelines.Get(c.Pipeline)
			if !ok {
				pass.End()
				return fmt.Errorf("%w: command %d pipeline %s", ErrInvalidHandle, i, c.Pipeline)
			}
			pass.SetPipeline(p.pipeline)
			current = p

		case CmdBindResourceSet:
			set, ok := d.sets.Get(c.ResourceSet)
			if !ok {
				pass.End()
				return fmt.Errorf("%w: command %d resource set %s", ErrInvalidHandle, i, c.ResourceSet)
			}
			if set.group == nil {
				pass.End()
				return fmt.Errorf("%w: command %d binds incomplete resource set %q", ErrMissingBinding, i, set.desc.Label)
			}
			pass.SetBindGroup(c.Group, set.group, nil)

		case CmdPushConstants:
			if current == nil || current.pushGroup == nil {
				pass.End()
				return fmt.Errorf("%w: command %d pushes constants without a pipeline that declares them", ErrInvalidState, i)
			}
			if pushSlot >= d.pushSlots {
				pass.End()
				return fmt.Errorf("%w: push constant ring exhausted after %d blocks", ErrInvalidState, d.pushSlots)
			}
			offset := pushSlot * pushConstantStride
			d.pushStaging = append(d.pushStaging, make([]byte, pushConstantStride)...)
			copy(d.pushStaging[offset:], c.Data)
			pass.SetBindGroup(PushConstantGroup, current.pushGroup, []uint32{uint32(offset)})
			pushSlot++

		case CmdBindVertexAndIndexBuffers:
			vb, okV := d.buffers.Get(c.VertexBuffer)
			ib, okI := d.buffers.Get(c.IndexBuffer)
			if !okV || !okI {
				pass.End()
				return fmt.Errorf("%w: command %d vertex %s index %s", ErrInvalidHandle, i, c.VertexBuffer, c.IndexBuffer)
			}
			pass.SetVertexBuffer(0, vb.buffer, 0, wgpu.WholeSize)
			pass.SetIndexBuffer(ib.buffer, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)

		case CmdDrawIndexed:
			pass.DrawIndexed(c.Count, max(c.InstanceCount, 1), c.First, c.VertexOffset, 0)

		case CmdDraw:
			pass.Draw(c.Count, max(c.InstanceCount, 1), c.First, 0)
		}
	}
	if pass != nil {
		pass.End()
		return fmt.Errorf("%w: render target left open at end of command list", ErrInvalidState)
	}
	return nil
}

// renderPassDescriptor applies the stored attachment rules to the framebuffer images.
func (d *wgpuDevice) renderPassDescriptor(c Command) (*wgpu.RenderPassDescriptor, error) {
	rp, ok := d.renderPasses.Get(c.RenderPass)
	if !ok {
		return nil, fmt.Errorf("%w: render pass %s", ErrInvalidHandle, c.RenderPass)
	}
	fb, ok := d.framebuffers.Get(c.Framebuffer)
	if !ok {
		return nil, fmt.Errorf("%w: framebuffer %s", ErrInvalidHandle, c.Framebuffer)
	}
	if fb.RenderPass != c.RenderPass {
		return nil, fmt.Errorf("%w: framebuffer %q was built for another render pass", ErrInvalidDescriptor, fb.Label)
	}

	views := make([]*wgpu.TextureView, len(fb.Attachments))
	for i, h := range fb.Attachments {
		img, ok := d.images.Get(h)
		if !ok {
			return nil, fmt.Errorf("%w: framebuffer %q attachment %d", ErrInvalidHandle, fb.Label, i)
		}
		if img.view == nil {
			return nil, fmt.Errorf("%w: framebuffer %q attachment %d is a swapchain image that was not acquired", ErrInvalidState, fb.Label, i)
		}
		views[i] = img.view
	}
	clearFor := func(i uint32) ClearValue {
		if int(i) < len(c.Clear) {
			return c.Clear[i]
		}
		return rp.Attachments[i].Clear
	}

	desc := &wgpu.RenderPassDescriptor{Label: rp.Label}
	for k, idx := range rp.Subpass.Color {
		a := rp.Attachments[idx]
		cv := clearFor(idx)
		ca := wgpu.RenderPassColorAttachment{
			View:    views[idx],
			LoadOp:  toWGPULoadOp(a.Load),
			StoreOp: toWGPUStoreOp(a.Store),
			ClearValue: wgpu.Color{
				R: float64(cv.Color[0]),
				G: float64(cv.Color[1]),
				B: float64(cv.Color[2]),
				A: float64(cv.Color[3]),
			},
		}
		if k < len(rp.Subpass.Resolve) && rp.Subpass.Resolve[k] != AttachmentUnused {
			ca.ResolveTarget = views[rp.Subpass.Resolve[k]]
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}
	if idx := rp.Subpass.Depth; idx != AttachmentUnused {
		a := rp.Attachments[idx]
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            views[idx],
			DepthLoadOp:     toWGPULoadOp(a.Load),
			DepthStoreOp:    toWGPUStoreOp(a.Store),
			DepthClearValue: clearFor(idx).Depth,
		}
	}
	return desc, nil
}

// poll blocks on the device until the given submission (or all work when index is nil)
// completes, giving up after timeout. A timed-out poll goroutine finishes on its own
// once the device responds.
func (d *wgpuDevice) poll(index *wgpu.SubmissionIndex, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		var wrapped *wgpu.WrappedSubmissionIndex
		if index != nil {
			wrapped = &wgpu.WrappedSubmissionIndex{Queue: d.queue, SubmissionIndex: *index}
		}
		d.device.Poll(true, wrapped)
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrDeviceWait, timeout)
	}
}

// completeThrough signals every pending fence whose submission is at or before index.
func (d *wgpuDevice) completeThrough(index wgpu.SubmissionIndex) {
	d.fences.Each(func(_ FenceHandle, f *wgpuFence) {
		if f.pending && f.submission <= index {
			f.pending = false
			f.signaled = true
		}
	})
}

func (d *wgpuDevice) WaitIdle(timeout time.Duration) error {
	if d.device == nil {
		return nil
	}
	if err := d.poll(nil, timeout); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences.Each(func(_ FenceHandle, f *wgpuFence) {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	})
	return nil
}

func (d *wgpuDevice) SurfaceCapabilities() SurfaceCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return SurfaceCapabilities{}
	}
	capabilities := d.surface.GetCapabilities(d.adapter)
	out := SurfaceCapabilities{
		// WebGPU manages its own image queue; two to three images is what drivers provide.
		MinImageCount: 2,
		MaxImageCount: 3,
	}
	for _, tf := range capabilities.Formats {
		if f, ok := fromWGPUFormat(tf); ok {
			out.Formats = append(out.Formats, f)
		}
	}
	for _, pm := range capabilities.PresentModes {
		if m, ok := fromWGPUPresentMode(pm); ok {
			out.PresentModes = append(out.PresentModes, m)
		}
	}
	return out
}

// ConfigureSurface is a wrapper for boilerplate logic required when calling Configure on a surface.
// This is required when the surface size changes, such as when the window is resized.
func (d *wgpuDevice) ConfigureSurface(cfg SurfaceConfig) ([]ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil {
		return nil, fmt.Errorf("%w: device has no surface", ErrResourceCreation)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: surface size %dx%d", ErrResourceCreation, cfg.Width, cfg.Height)
	}
	d.dropSwapchain()

	capabilities := d.surface.GetCapabilities(d.adapter)
	var alphaMode wgpu.CompositeAlphaMode
	if len(capabilities.AlphaModes) > 0 {
		alphaMode = capabilities.AlphaModes[0]
	}
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      toWGPUFormat(cfg.Format),
		Width:       cfg.Width,
		Height:      cfg.Height,
		PresentMode: toWGPUPresentMode(cfg.PresentMode),
		AlphaMode:   alphaMode,
	})

	count := orDefault(cfg.ImageCount, 2)
	d.swapchain = make([]ImageHandle, 0, count)
	for i := range count {
		d.swapchain = append(d.swapchain, d.images.Insert(&wgpuImage{
			desc: ImageDesc{
				Label:     fmt.Sprintf("Swapchain Image %d", i),
				Width:     cfg.Width,
				Height:    cfg.Height,
				Format:    cfg.Format,
				Samples:   1,
				MipLevels: 1,
				Layers:    1,
				Usage:     ImageUsageRenderAttachment | ImageUsagePresent,
			},
			swapchain: true,
		}))
	}
	d.acquireCount = 0

	common.Logger().Info("surface configured", "width", cfg.Width, "height", cfg.Height,
		"format", cfg.Format, "present", cfg.PresentMode, "images", count)
	return append([]ImageHandle(nil), d.swapchain...), nil
}

// dropSwapchain forgets the swapchain wrappers. Their backing belongs to the surface.
func (d *wgpuDevice) dropSwapchain() {
	for _, h := range d.swapchain {
		if img, ok := d.images.Remove(h); ok {
			img.release()
		}
	}
	d.swapchain = nil
	d.acquired = false
}

type acquireResult struct {
	texture *wgpu.Texture
	err     error
}

func (d *wgpuDevice) AcquireNextImage(signal SemaphoreHandle, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sem, ok := d.semaphores.Get(signal)
	if !ok {
		return 0, fmt.Errorf("%w: acquire semaphore %s", ErrInvalidHandle, signal)
	}
	if sem.signaled {
		return 0, fmt.Errorf("%w: acquire semaphore %s is already signaled", ErrInvalidState, signal)
	}
	if d.surface == nil || len(d.swapchain) == 0 {
		return 0, fmt.Errorf("%w: surface is not configured", ErrInvalidState)
	}
	// If a previous image is still held, avoid acquiring another one. wgpu-native
	// reports "Surface image is already acquired" otherwise.
	if d.acquired {
		return 0, fmt.Errorf("%w: previous image %d not presented", ErrInvalidState, d.currentImage)
	}

	results := make(chan acquireResult, 1)
	go func() {
		tex, err := d.surface.GetCurrentTexture()
		results <- acquireResult{texture: tex, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var r acquireResult
	select {
	case r = <-results:
	case <-timer.C:
		go func() {
			if late := <-results; late.texture != nil {
				late.texture.Release()
			}
		}()
		return 0, fmt.Errorf("acquire: %w after %s", ErrDeviceWait, timeout)
	}
	if r.err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSurfaceOutOfDate, r.err)
	}

	view, err := r.texture.CreateView(nil)
	if err != nil {
		r.texture.Release()
		return 0, fmt.Errorf("%w: swapchain view: %w", ErrSurfaceOutOfDate, err)
	}

	index := d.acquireCount % uint32(len(d.swapchain))
	d.acquireCount++
	img, _ := d.images.Get(d.swapchain[index])
	img.texture = r.texture
	img.view = view
	d.acquired = true
	d.currentImage = index
	sem.signaled = true
	return index, nil
}

func (d *wgpuDevice) Present(imageIndex uint32, wait []SemaphoreHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired || imageIndex != d.currentImage {
		return fmt.Errorf("%w: image %d was not acquired", ErrInvalidState, imageIndex)
	}
	waits, err := d.resolveSemaphores(wait, true)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}

	d.surface.Present()

	if img, ok := d.images.Get(d.swapchain[imageIndex]); ok {
		img.release()
	}
	d.acquired = false
	for _, s := range waits {
		s.signaled = false
	}
	return nil
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sets.Each(func(_ ResourceSetHandle, s *wgpuResourceSet) {
		if s.group != nil {
			s.group.Release()
		}
	})
	d.pipelines.Each(func(_ PipelineHandle, p *wgpuPipeline) { p.release() })
	d.images.Each(func(_ ImageHandle, img *wgpuImage) { img.release() })
	d.buffers.Each(func(_ BufferHandle, b *wgpuBuffer) { b.buffer.Release() })
	d.samplers.Each(func(_ SamplerHandle, s *wgpu.Sampler) { s.Release() })

	d.sets = Arena[ResourceSetTag, *wgpuResourceSet]{}
	d.pipelines = Arena[PipelineTag, *wgpuPipeline]{}
	d.images = Arena[ImageTag, *wgpuImage]{}
	d.buffers = Arena[BufferTag, *wgpuBuffer]{}
	d.samplers = Arena[SamplerTag, *wgpu.Sampler]{}
	d.renderPasses = Arena[RenderPassTag, RenderPassDesc]{}
	d.framebuffers = Arena[FramebufferTag, FramebufferDesc]{}
	d.fences = Arena[FenceTag, *wgpuFence]{}
	d.semaphores = Arena[SemaphoreTag, *wgpuSemaphore]{}
	d.swapchain = nil

	if d.pushRing != nil {
		d.pushRing.Release()
		d.pushRing = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	common.Logger().Info("device released", "label", d.label)
}

// pushBlockSize rounds a push constant block up to the 16-byte uniform size granularity.
func pushBlockSize(size uint32) uint64 {
	return uint64((size + 15) &^ 15)
}
