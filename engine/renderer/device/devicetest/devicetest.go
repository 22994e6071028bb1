// Package devicetest provides a recording device.Device for tests. It enforces the same
// handle, semaphore and fence rules as the WebGPU backend without touching a GPU.
package devicetest

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Object kind names used by Live, Created and FailCreate.
const (
	KindImage       = "image"
	KindBuffer      = "buffer"
	KindSampler     = "sampler"
	KindRenderPass  = "render-pass"
	KindFramebuffer = "framebuffer"
	KindPipeline    = "pipeline"
	KindResourceSet = "resource-set"
	KindFence       = "fence"
	KindSemaphore   = "semaphore"
)

type bufferState struct {
	desc device.BufferDesc
	data []byte
}

type setState struct {
	desc   device.ResourceSetDesc
	writes map[uint32]device.ResourceWrite
}

func (s *setState) complete() bool {
	for _, b := range s.desc.Bindings {
		if _, ok := s.writes[b.Binding]; !ok {
			return false
		}
	}
	return true
}

type fenceState struct {
	signaled bool
	pending  bool
}

type semaphoreState struct {
	signaled bool
}

// Device is a recording mock of device.Device. Submitted work completes immediately unless
// ManualCompletion or Hung is set. Exported fields may be changed between calls.
type Device struct {
	mu sync.Mutex

	// ManualCompletion leaves submitted fences pending until Complete is called.
	ManualCompletion bool
	// Hung makes every wait on pending work fail with device.ErrDeviceWait.
	Hung bool
	// Capabilities is returned by SurfaceCapabilities.
	Capabilities device.SurfaceCapabilities

	images       device.Arena[device.ImageTag, device.ImageDesc]
	swapchainSet map[device.ImageHandle]bool
	buffers      device.Arena[device.BufferTag, *bufferState]
	samplers     device.Arena[device.SamplerTag, device.SamplerDesc]
	renderPasses device.Arena[device.RenderPassTag, device.RenderPassDesc]
	framebuffers device.Arena[device.FramebufferTag, device.FramebufferDesc]
	pipelines    device.Arena[device.PipelineTag, device.PipelineDesc]
	sets         device.Arena[device.ResourceSetTag, *setState]
	fences       device.Arena[device.FenceTag, *fenceState]
	semaphores   device.Arena[device.SemaphoreTag, *semaphoreState]

	created   map[string]int
	destroyed map[string]int
	failures  map[string]error

	submissions []device.SubmitInfo
	acquires    []uint32
	presents    []uint32
	configures  []device.SurfaceConfig
	events      []string
	fenceWaits  int

	swapchain    []device.ImageHandle
	acquireCount uint32
	acquired     bool
	currentImage uint32
	failAcquire  []error
	failPresent  []error
	failSubmit   []error
	failWrite    []error
	released     bool
}

var _ device.Device = &Device{}

// New creates a mock device whose surface supports BGRA8 sRGB, mailbox and fifo, and 2 to 3 images.
//
// Returns:
//   - *Device: the mock
func New() *Device {
	return &Device{
		Capabilities: device.SurfaceCapabilities{
			Formats:       []device.Format{device.FormatBGRA8UnormSrgb, device.FormatBGRA8Unorm},
			PresentModes:  []device.PresentMode{device.PresentModeFifo, device.PresentModeMailbox},
			MinImageCount: 2,
			MaxImageCount: 3,
		},
		swapchainSet: make(map[device.ImageHandle]bool),
		created:      make(map[string]int),
		destroyed:    make(map[string]int),
		failures:     make(map[string]error),
	}
}

func (d *Device) create(kind string) error {
	if err, ok := d.failures[kind]; ok {
		delete(d.failures, kind)
		return fmt.Errorf("%w: %s: %w", device.ErrResourceCreation, kind, err)
	}
	d.created[kind]++
	return nil
}

func (d *Device) destroy(kind string) {
	d.destroyed[kind]++
}

func (d *Device) logf(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *Device) CreateImage(desc device.ImageDesc) (device.ImageHandle, error) {
	desc = desc.Normalize()
	if err := desc.Validate(); err != nil {
		return device.ImageHandle{}, fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindImage); err != nil {
		return device.ImageHandle{}, err
	}
	return d.images.Insert(desc), nil
}

func (d *Device) WriteImage(h device.ImageHandle, layer uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.images.Get(h)
	if !ok || d.swapchainSet[h] {
		return fmt.Errorf("%w: write image %s", device.ErrInvalidHandle, h)
	}
	if layer >= desc.Layers {
		return fmt.Errorf("%w: layer %d of %d", device.ErrInvalidDescriptor, layer, desc.Layers)
	}
	if want := int(desc.Width * desc.Height * desc.Format.BytesPerPixel()); len(data) != want {
		return fmt.Errorf("%w: image %q expects %d bytes, got %d", device.ErrInvalidDescriptor, desc.Label, want, len(data))
	}
	d.logf("write-image %s layer %d", desc.Label, layer)
	return nil
}

func (d *Device) DestroyImage(h device.ImageHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.swapchainSet[h] {
		return
	}
	if _, ok := d.images.Remove(h); ok {
		d.destroy(KindImage)
	}
}

func (d *Device) CreateBuffer(desc device.BufferDesc) (device.BufferHandle, error) {
	if desc.Size == 0 {
		return device.BufferHandle{}, fmt.Errorf("%w: buffer %q has zero size", device.ErrResourceCreation, desc.Label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindBuffer); err != nil {
		return device.BufferHandle{}, err
	}
	return d.buffers.Insert(&bufferState{desc: desc, data: make([]byte, desc.Size)}), nil
}

func (d *Device) WriteBuffer(h device.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(h)
	if !ok {
		return fmt.Errorf("%w: write buffer %s", device.ErrInvalidHandle, h)
	}
	if len(d.failWrite) > 0 {
		err := d.failWrite[0]
		d.failWrite = d.failWrite[1:]
		d.logf("write buffer failed")
		return err
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("%w: write overflows buffer %q", device.ErrInvalidDescriptor, b.desc.Label)
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(h device.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers.Remove(h); ok {
		d.destroy(KindBuffer)
	}
}

func (d *Device) BufferAlive(h device.BufferHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers.Get(h)
	return ok
}

func (d *Device) CreateSampler(desc device.SamplerDesc) (device.SamplerHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindSampler); err != nil {
		return device.SamplerHandle{}, err
	}
	return d.samplers.Insert(desc), nil
}

func (d *Device) DestroySampler(h device.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.samplers.Remove(h); ok {
		d.destroy(KindSampler)
	}
}

func (d *Device) CreateRenderPass(desc device.RenderPassDesc) (device.RenderPassHandle, error) {
	if err := desc.Validate(); err != nil {
		return device.RenderPassHandle{}, fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindRenderPass); err != nil {
		return device.RenderPassHandle{}, err
	}
	return d.renderPasses.Insert(desc), nil
}

func (d *Device) DestroyRenderPass(h device.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses.Remove(h); ok {
		d.destroy(KindRenderPass)
	}
}

func (d *Device) CreateFramebuffer(desc device.FramebufferDesc) (device.FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rp, ok := d.renderPasses.Get(desc.RenderPass)
	if !ok {
		return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q render pass", device.ErrInvalidHandle, desc.Label)
	}
	if len(desc.Attachments) != len(rp.Attachments) {
		return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q has %d images, want %d",
			device.ErrResourceCreation, desc.Label, len(desc.Attachments), len(rp.Attachments))
	}
	for i, h := range desc.Attachments {
		img, ok := d.images.Get(h)
		if !ok {
			return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q attachment %d", device.ErrInvalidHandle, desc.Label, i)
		}
		if img.Width != desc.Width || img.Height != desc.Height {
			return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q attachment %d size mismatch", device.ErrResourceCreation, desc.Label, i)
		}
	}
	if err := d.create(KindFramebuffer); err != nil {
		return device.FramebufferHandle{}, err
	}
	return d.framebuffers.Insert(desc), nil
}

func (d *Device) DestroyFramebuffer(h device.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers.Remove(h); ok {
		d.destroy(KindFramebuffer)
	}
}

func (d *Device) CreatePipeline(desc device.PipelineDesc) (device.PipelineHandle, error) {
	if err := desc.Validate(); err != nil {
		return device.PipelineHandle{}, fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses.Get(desc.RenderPass); !ok {
		return device.PipelineHandle{}, fmt.Errorf("%w: pipeline %q render pass", device.ErrInvalidHandle, desc.Label)
	}
	if err := d.create(KindPipeline); err != nil {
		return device.PipelineHandle{}, err
	}
	return d.pipelines.Insert(desc), nil
}

func (d *Device) DestroyPipeline(h device.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines.Remove(h); ok {
		d.destroy(KindPipeline)
	}
}

func (d *Device) CreateResourceSet(desc device.ResourceSetDesc) (device.ResourceSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines.Get(desc.Pipeline); !ok {
		return device.ResourceSetHandle{}, fmt.Errorf("%w: resource set %q pipeline", device.ErrInvalidHandle, desc.Label)
	}
	if desc.Group == device.PushConstantGroup {
		return device.ResourceSetHandle{}, fmt.Errorf("%w: group %d is reserved", device.ErrResourceCreation, desc.Group)
	}
	if err := d.create(KindResourceSet); err != nil {
		return device.ResourceSetHandle{}, err
	}
	return d.sets.Insert(&setState{desc: desc, writes: make(map[uint32]device.ResourceWrite)}), nil
}

func (d *Device) UpdateResourceSet(h device.ResourceSetHandle, writes []device.ResourceWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets.Get(h)
	if !ok {
		return fmt.Errorf("%w: update resource set %s", device.ErrInvalidHandle, h)
	}
	for _, w := range writes {
		b, declared := s.desc.Declares(w.Binding)
		if !declared {
			return fmt.Errorf("%w: resource set %q does not declare binding %d", device.ErrInvalidDescriptor, s.desc.Label, w.Binding)
		}
		switch {
		case b.Kind.IsBuffer():
			if _, ok := d.buffers.Get(w.Buffer); !ok {
				return fmt.Errorf("%w: binding %d buffer", device.ErrInvalidHandle, w.Binding)
			}
		case b.Kind.IsImage():
			if _, ok := d.images.Get(w.Image); !ok {
				return fmt.Errorf("%w: binding %d image", device.ErrInvalidHandle, w.Binding)
			}
		case b.Kind.IsSampler():
			if _, ok := d.samplers.Get(w.Sampler); !ok {
				return fmt.Errorf("%w: binding %d sampler", device.ErrInvalidHandle, w.Binding)
			}
		}
		s.writes[w.Binding] = w
	}
	return nil
}

func (d *Device) DestroyResourceSet(h device.ResourceSetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sets.Remove(h); ok {
		d.destroy(KindResourceSet)
	}
}

func (d *Device) CreateFence(signaled bool) (device.FenceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindFence); err != nil {
		return device.FenceHandle{}, err
	}
	return d.fences.Insert(&fenceState{signaled: signaled}), nil
}

// WaitFence never sleeps. A pending fence on a hung or manually completed device times out at once.
func (d *Device) WaitFence(h device.FenceHandle, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences.Get(h)
	if !ok {
		return fmt.Errorf("%w: wait fence %s", device.ErrInvalidHandle, h)
	}
	d.fenceWaits++
	d.logf("wait-fence %s", h)
	if f.signaled {
		return nil
	}
	if !f.pending {
		return fmt.Errorf("%w: fence %s has no pending submission", device.ErrInvalidState, h)
	}
	return fmt.Errorf("wait fence %s: %w after %s", h, device.ErrDeviceWait, timeout)
}

func (d *Device) ResetFence(h device.FenceHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences.Get(h)
	if !ok {
		return fmt.Errorf("%w: reset fence %s", device.ErrInvalidHandle, h)
	}
	if f.pending {
		return fmt.Errorf("%w: fence %s is still pending", device.ErrInvalidState, h)
	}
	f.signaled = false
	d.logf("reset-fence %s", h)
	return nil
}

func (d *Device) FenceSignaled(h device.FenceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences.Get(h)
	return ok && f.signaled
}

func (d *Device) DestroyFence(h device.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences.Remove(h); ok {
		d.destroy(KindFence)
	}
}

func (d *Device) CreateSemaphore() (device.SemaphoreHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.create(KindSemaphore); err != nil {
		return device.SemaphoreHandle{}, err
	}
	return d.semaphores.Insert(&semaphoreState{}), nil
}

func (d *Device) DestroySemaphore(h device.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.semaphores.Remove(h); ok {
		d.destroy(KindSemaphore)
	}
}

func (d *Device) semaphoresIn(handles []device.SemaphoreHandle, want bool) ([]*semaphoreState, error) {
	out := make([]*semaphoreState, 0, len(handles))
	for _, h := range handles {
		s, ok := d.semaphores.Get(h)
		if !ok {
			return nil, fmt.Errorf("%w: semaphore %s", device.ErrInvalidHandle, h)
		}
		if s.signaled != want {
			return nil, fmt.Errorf("%w: semaphore %s signaled=%t, want %t", device.ErrInvalidState, h, s.signaled, want)
		}
		out = append(out, s)
	}
	return out, nil
}

// checkCommands applies the structural rules the WebGPU backend enforces while encoding.
func (d *Device) checkCommands(cmds []device.Command) error {
	open := false
	var pipeline device.PipelineDesc
	havePipeline := false
	for i, c := range cmds {
		if c.Kind != device.CmdBeginRenderTarget && !open {
			return fmt.Errorf("%w: command %d (%s) outside a render target", device.ErrInvalidState, i, c.Kind)
		}
		switch c.Kind {
		case device.CmdBeginRenderTarget:
			if open {
				return fmt.Errorf("%w: command %d nests render targets", device.ErrInvalidState, i)
			}
			fb, ok := d.framebuffers.Get(c.Framebuffer)
			if !ok || fb.RenderPass != c.RenderPass {
				return fmt.Errorf("%w: command %d framebuffer %s", device.ErrInvalidHandle, i, c.Framebuffer)
			}
			open = true
		case device.CmdEndRenderTarget:
			open = false
			havePipeline = false
		case device.CmdBindPipeline:
			p, ok := d.pipelines.Get(c.Pipeline)
			if !ok {
				return fmt.Errorf("%w: command %d pipeline %s", device.ErrInvalidHandle, i, c.Pipeline)
			}
			pipeline, havePipeline = p, true
		case device.CmdBindResourceSet:
			s, ok := d.sets.Get(c.ResourceSet)
			if !ok {
				return fmt.Errorf("%w: command %d resource set %s", device.ErrInvalidHandle, i, c.ResourceSet)
			}
			if !s.complete() {
				return fmt.Errorf("%w: command %d binds incomplete resource set %q", device.ErrMissingBinding, i, s.desc.Label)
			}
		case device.CmdPushConstants:
			if !havePipeline || pipeline.PushConstantSize == 0 {
				return fmt.Errorf("%w: command %d pushes constants without a pipeline that declares them", device.ErrInvalidState, i)
			}
			if uint32(len(c.Data)) > pipeline.PushConstantSize {
				return fmt.Errorf("%w: command %d pushes %d bytes into a %d byte block", device.ErrInvalidDescriptor, i, len(c.Data), pipeline.PushConstantSize)
			}
		case device.CmdBindVertexAndIndexBuffers:
			_, okV := d.buffers.Get(c.VertexBuffer)
			_, okI := d.buffers.Get(c.IndexBuffer)
			if !okV || !okI {
				return fmt.Errorf("%w: command %d vertex or index buffer", device.ErrInvalidHandle, i)
			}
		}
	}
	if open {
		return fmt.Errorf("%w: render target left open", device.ErrInvalidState)
	}
	return nil
}

func (d *Device) Submit(info device.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.failSubmit) > 0 {
		err := d.failSubmit[0]
		d.failSubmit = d.failSubmit[1:]
		d.logf("submit failed")
		return err
	}
	var fence *fenceState
	if info.Fence.Valid() {
		f, ok := d.fences.Get(info.Fence)
		if !ok {
			return fmt.Errorf("%w: submit fence %s", device.ErrInvalidHandle, info.Fence)
		}
		if f.signaled || f.pending {
			return fmt.Errorf("%w: fence %s must be reset before submit", device.ErrInvalidState, info.Fence)
		}
		fence = f
	}
	waits, err := d.semaphoresIn(info.Wait, true)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	signals, err := d.semaphoresIn(info.Signal, false)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := d.checkCommands(info.Commands); err != nil {
		return err
	}

	for _, s := range waits {
		s.signaled = false
	}
	for _, s := range signals {
		s.signaled = true
	}
	if fence != nil {
		fence.pending = true
		if !d.ManualCompletion && !d.Hung {
			fence.pending = false
			fence.signaled = true
		}
	}
	info.Commands = slices.Clone(info.Commands)
	d.submissions = append(d.submissions, info)
	d.logf("submit %d", len(info.Commands))
	return nil
}

func (d *Device) WaitIdle(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := false
	d.fences.Each(func(_ device.FenceHandle, f *fenceState) {
		pending = pending || f.pending
	})
	if pending && (d.Hung || d.ManualCompletion) {
		return fmt.Errorf("wait idle: %w after %s", device.ErrDeviceWait, timeout)
	}
	d.logf("wait-idle")
	return nil
}

func (d *Device) SurfaceCapabilities() device.SurfaceCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Capabilities
}

func (d *Device) ConfigureSurface(cfg device.SurfaceConfig) ([]device.ImageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: surface size %dx%d", device.ErrResourceCreation, cfg.Width, cfg.Height)
	}
	for _, h := range d.swapchain {
		d.images.Remove(h)
		delete(d.swapchainSet, h)
	}
	count := max(cfg.ImageCount, 1)
	d.swapchain = make([]device.ImageHandle, 0, count)
	for i := range count {
		h := d.images.Insert(device.ImageDesc{
			Label:     fmt.Sprintf("Swapchain Image %d", i),
			Width:     cfg.Width,
			Height:    cfg.Height,
			Format:    cfg.Format,
			Samples:   1,
			MipLevels: 1,
			Layers:    1,
			Usage:     device.ImageUsageRenderAttachment | device.ImageUsagePresent,
		})
		d.swapchainSet[h] = true
		d.swapchain = append(d.swapchain, h)
	}
	d.acquireCount = 0
	d.acquired = false
	d.configures = append(d.configures, cfg)
	d.logf("configure %dx%d", cfg.Width, cfg.Height)
	return slices.Clone(d.swapchain), nil
}

func (d *Device) AcquireNextImage(signal device.SemaphoreHandle, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sems, err := d.semaphoresIn([]device.SemaphoreHandle{signal}, false)
	if err != nil {
		return 0, fmt.Errorf("acquire: %w", err)
	}
	if len(d.swapchain) == 0 {
		return 0, fmt.Errorf("%w: surface is not configured", device.ErrInvalidState)
	}
	if d.acquired {
		return 0, fmt.Errorf("%w: previous image %d not presented", device.ErrInvalidState, d.currentImage)
	}
	if len(d.failAcquire) > 0 {
		err := d.failAcquire[0]
		d.failAcquire = d.failAcquire[1:]
		d.logf("acquire failed")
		return 0, err
	}
	if d.Hung {
		return 0, fmt.Errorf("acquire: %w after %s", device.ErrDeviceWait, timeout)
	}
	index := d.acquireCount % uint32(len(d.swapchain))
	d.acquireCount++
	d.acquired = true
	d.currentImage = index
	sems[0].signaled = true
	d.acquires = append(d.acquires, index)
	d.logf("acquire %d", index)
	return index, nil
}

func (d *Device) Present(imageIndex uint32, wait []device.SemaphoreHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired || imageIndex != d.currentImage {
		return fmt.Errorf("%w: image %d was not acquired", device.ErrInvalidState, imageIndex)
	}
	waits, err := d.semaphoresIn(wait, true)
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	for _, s := range waits {
		s.signaled = false
	}
	d.acquired = false
	if len(d.failPresent) > 0 {
		err := d.failPresent[0]
		d.failPresent = d.failPresent[1:]
		d.logf("present failed")
		return err
	}
	d.presents = append(d.presents, imageIndex)
	d.logf("present %d", imageIndex)
	return nil
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.logf("release")
}

// Complete signals every pending fence, as if the GPU caught up.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fences.Each(func(_ device.FenceHandle, f *fenceState) {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	})
}

// FailNextAcquire makes the next AcquireNextImage return err without acquiring.
func (d *Device) FailNextAcquire(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAcquire = append(d.failAcquire, err)
}

// FailNextPresent makes the next Present return err after consuming its wait semaphores.
func (d *Device) FailNextPresent(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPresent = append(d.failPresent, err)
}

// FailNextSubmit makes the next Submit return err. Nothing is waited on or signaled. Calls queue,
// so two calls fail two submits in a row.
func (d *Device) FailNextSubmit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSubmit = append(d.failSubmit, err)
}

// FailNextWriteBuffer makes the next WriteBuffer to a live buffer return err without writing.
func (d *Device) FailNextWriteBuffer(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite = append(d.failWrite, err)
}

// FailCreate makes the next creation of the given kind fail with err.
func (d *Device) FailCreate(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[kind] = err
}

// Submissions returns every accepted submission in order.
func (d *Device) Submissions() []device.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.submissions)
}

// Acquires returns the image index of every successful acquire in order.
func (d *Device) Acquires() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.acquires)
}

// Presents returns the image index of every successful present in order.
func (d *Device) Presents() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.presents)
}

// Configures returns every surface configuration in order.
func (d *Device) Configures() []device.SurfaceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.configures)
}

// Events returns a readable log of acquires, submits, presents and fence operations.
func (d *Device) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// FenceWaits returns how many times WaitFence was called.
func (d *Device) FenceWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fenceWaits
}

// Live returns how many objects of a kind are currently alive, swapchain images excluded.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind] - d.destroyed[kind]
}

// Created returns how many objects of a kind were ever created.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Image returns the description of a live image.
func (d *Device) Image(h device.ImageHandle) (device.ImageDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.images.Get(h)
}

// IsSwapchain reports whether h is a surface-owned image.
func (d *Device) IsSwapchain(h device.ImageHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapchainSet[h]
}

// RenderPass returns the description of a live render pass.
func (d *Device) RenderPass(h device.RenderPassHandle) (device.RenderPassDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderPasses.Get(h)
}

// Framebuffer returns the description of a live framebuffer.
func (d *Device) Framebuffer(h device.FramebufferHandle) (device.FramebufferDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.framebuffers.Get(h)
}

// Pipeline returns the description of a live pipeline.
func (d *Device) Pipeline(h device.PipelineHandle) (device.PipelineDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines.Get(h)
}

// ResourceSetWrites returns the current writes of a live resource set keyed by binding.
func (d *Device) ResourceSetWrites(h device.ResourceSetHandle) (map[uint32]device.ResourceWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets.Get(h)
	if !ok {
		return nil, false
	}
	out := make(map[uint32]device.ResourceWrite, len(s.writes))
	for k, v := range s.writes {
		out[k] = v
	}
	return out, true
}

// ResourceSet returns the description of a live resource set.
func (d *Device) ResourceSet(h device.ResourceSetHandle) (device.ResourceSetDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets.Get(h)
	if !ok {
		return device.ResourceSetDesc{}, false
	}
	return s.desc, true
}

// BufferData returns a copy of a live buffer's contents.
func (d *Device) BufferData(h device.BufferHandle) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers.Get(h)
	if !ok {
		return nil, false
	}
	return slices.Clone(b.data), true
}

// SemaphoreSignaled reports the state of a live semaphore.
func (d *Device) SemaphoreSignaled(h device.SemaphoreHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.semaphores.Get(h)
	return ok && s.signaled
}

// CountCommands returns how many commands of kind appear in a submission.
//
// Parameters:
//   - info: the submission
//   - kind: the command kind to count
//
// Returns:
//   - int: the count
func CountCommands(info device.SubmitInfo, kind device.CommandKind) int {
	n := 0
	for _, c := range info.Commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
