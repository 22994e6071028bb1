package render_target

import (
	"fmt"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// framebuffer remembers which images a framebuffer binds so layouts can be checked and updated.
type framebuffer struct {
	images []attachment.Attachment
	extent device.Extent
}

// renderTarget is the implementation of the RenderTarget interface.
type renderTarget struct {
	mu *sync.Mutex

	dev   device.Device
	desc  Descriptor
	slots int

	// manualFramebuffers skips the per-slot framebuffers; the owner builds its own with NewFramebuffer.
	manualFramebuffers bool

	renderPass device.RenderPassHandle
	// perSlot holds one framebuffer per frame slot, or one per presentable image for present targets.
	perSlot      []device.FramebufferHandle
	framebuffers map[device.FramebufferHandle]framebuffer
}

// RenderTarget is the hardware render pass derived from a Descriptor together with the
// framebuffers that bind concrete images to it.
type RenderTarget interface {
	// Label returns the descriptor label.
	Label() string

	// Descriptor returns the descriptor the target was last built from.
	//
	// Returns:
	//   - Descriptor: the descriptor
	Descriptor() Descriptor

	// Handle returns the device render pass.
	//
	// Returns:
	//   - device.RenderPassHandle: the render pass, invalid after Release
	Handle() device.RenderPassHandle

	// Extent returns the size of the descriptor's images.
	Extent() device.Extent

	// Samples returns the sample count pipelines rendering into the target must use.
	Samples() uint32

	// Framebuffer returns the framebuffer to begin for a frame.
	//
	// Parameters:
	//   - slot: the frame slot index
	//   - imageIndex: the acquired presentable image index, used by present targets only
	//
	// Returns:
	//   - device.FramebufferHandle: the framebuffer
	//   - error: ErrInvalidState for targets with manual framebuffers or out-of-range indices
	Framebuffer(slot int, imageIndex uint32) (device.FramebufferHandle, error)

	// FramebufferExtent returns the size of a framebuffer built by this target.
	//
	// Parameters:
	//   - fb: the framebuffer
	//
	// Returns:
	//   - device.Extent: the size
	//   - bool: false if fb does not belong to this target
	FramebufferExtent(fb device.FramebufferHandle) (device.Extent, bool)

	// NewFramebuffer builds an extra framebuffer over images shaped like the descriptor entries.
	// The images may be smaller than the descriptor's, as bloom mips are.
	//
	// Parameters:
	//   - label: the framebuffer label
	//   - images: one image per descriptor entry, in entry order
	//
	// Returns:
	//   - device.FramebufferHandle: the framebuffer, owned by the target
	//   - error: wraps device.ErrResourceCreation on failure
	NewFramebuffer(label string, images ...attachment.Attachment) (device.FramebufferHandle, error)

	// ClearValues returns one clear value per attachment in index order.
	ClearValues() []device.ClearValue

	// Enter checks that every image a loading target reads is in the layout the target expects.
	//
	// Parameters:
	//   - fb: the framebuffer being begun
	//
	// Returns:
	//   - error: a *device.LayoutMismatchError naming the first image in the wrong layout
	Enter(fb device.FramebufferHandle) error

	// Leave records the final layout of every image bound by fb.
	//
	// Parameters:
	//   - fb: the framebuffer being ended
	Leave(fb device.FramebufferHandle)

	// Rebuild destroys the render pass and every framebuffer and builds them again from desc.
	// Framebuffers created with NewFramebuffer are dropped and must be recreated by their owner.
	//
	// Parameters:
	//   - desc: the new descriptor, typically holding resized images
	//
	// Returns:
	//   - error: wraps device.ErrResourceCreation on failure
	Rebuild(desc Descriptor) error

	// Release destroys the render pass and every framebuffer. Images are not touched.
	Release()
}

var _ RenderTarget = &renderTarget{}

// Build validates a descriptor and creates its render pass and framebuffers.
//
// Parameters:
//   - dev: the device context
//   - desc: the descriptor
//   - slots: the number of frame slots that need a framebuffer
//   - opts: optional configuration
//
// Returns:
//   - RenderTarget: the render target
//   - error: wraps device.ErrInvalidDescriptor or device.ErrResourceCreation
func Build(dev device.Device, desc Descriptor, slots int, opts ...RenderTargetBuilderOption) (RenderTarget, error) {
	rt := &renderTarget{
		mu:           &sync.Mutex{},
		dev:          dev,
		slots:        max(slots, 1),
		framebuffers: make(map[device.FramebufferHandle]framebuffer),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := rt.build(desc); err != nil {
		rt.destroy()
		return nil, err
	}
	return rt, nil
}

func (rt *renderTarget) build(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	rt.desc = desc
	rp, err := rt.dev.CreateRenderPass(desc.RenderPassDesc())
	if err != nil {
		return fmt.Errorf("render target %q: %w", desc.Label, err)
	}
	rt.renderPass = rp

	if rt.manualFramebuffers {
		common.Logger().Debug("render target built", "label", desc.Label, "framebuffers", "manual")
		return nil
	}
	count := rt.slots
	if desc.HasPresent() {
		for _, e := range desc.Entries {
			if e.Role == device.RolePresent {
				count = len(e.PerImage)
			}
		}
	}
	rt.perSlot = make([]device.FramebufferHandle, 0, count)
	for i := range count {
		images := make([]attachment.Attachment, len(desc.Entries))
		for k, e := range desc.Entries {
			if e.Role == device.RolePresent {
				images[k] = e.PerImage[i]
			} else {
				images[k] = e.Attachment
			}
		}
		fb, err := rt.createFramebuffer(fmt.Sprintf("%s Framebuffer %d", desc.Label, i), images)
		if err != nil {
			return err
		}
		rt.perSlot = append(rt.perSlot, fb)
	}
	common.Logger().Debug("render target built", "label", desc.Label, "framebuffers", count)
	return nil
}

func (rt *renderTarget) createFramebuffer(label string, images []attachment.Attachment) (device.FramebufferHandle, error) {
	if len(images) != len(rt.desc.Entries) {
		return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q has %d images, want %d",
			device.ErrResourceCreation, label, len(images), len(rt.desc.Entries))
	}
	handles := make([]device.ImageHandle, len(images))
	for i, img := range images {
		if img == nil {
			return device.FramebufferHandle{}, fmt.Errorf("%w: framebuffer %q image %d is nil", device.ErrResourceCreation, label, i)
		}
		handles[i] = img.Handle()
	}
	extent := images[0].Extent()
	fb, err := rt.dev.CreateFramebuffer(device.FramebufferDesc{
		Label:       label,
		RenderPass:  rt.renderPass,
		Attachments: handles,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return device.FramebufferHandle{}, fmt.Errorf("render target %q: %w", rt.desc.Label, err)
	}
	rt.framebuffers[fb] = framebuffer{images: images, extent: extent}
	return fb, nil
}

func (rt *renderTarget) destroy() {
	for fb := range rt.framebuffers {
		rt.dev.DestroyFramebuffer(fb)
	}
	clear(rt.framebuffers)
	rt.perSlot = nil
	if rt.renderPass.Valid() {
		rt.dev.DestroyRenderPass(rt.renderPass)
		rt.renderPass = device.RenderPassHandle{}
	}
}

func (rt *renderTarget) Label() string {
	return rt.desc.Label
}

func (rt *renderTarget) Descriptor() Descriptor {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.desc
}

func (rt *renderTarget) Handle() device.RenderPassHandle {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.renderPass
}

func (rt *renderTarget) Extent() device.Extent {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.desc.Extent()
}

func (rt *renderTarget) Samples() uint32 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, e := range rt.desc.Entries {
		if e.Role != device.RoleResolve {
			if a := e.first(); a != nil {
				return a.Samples()
			}
		}
	}
	return 1
}

func (rt *renderTarget) Framebuffer(slot int, imageIndex uint32) (device.FramebufferHandle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.manualFramebuffers {
		return device.FramebufferHandle{}, fmt.Errorf("%w: render target %q builds its framebuffers manually", device.ErrInvalidState, rt.desc.Label)
	}
	index := slot
	if rt.desc.HasPresent() {
		index = int(imageIndex)
	}
	if index < 0 || index >= len(rt.perSlot) {
		return device.FramebufferHandle{}, fmt.Errorf("%w: render target %q has no framebuffer %d", device.ErrInvalidState, rt.desc.Label, index)
	}
	return rt.perSlot[index], nil
}

func (rt *renderTarget) FramebufferExtent(fb device.FramebufferHandle) (device.Extent, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	f, ok := rt.framebuffers[fb]
	return f.extent, ok
}

func (rt *renderTarget) NewFramebuffer(label string, images ...attachment.Attachment) (device.FramebufferHandle, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.createFramebuffer(label, images)
}

func (rt *renderTarget) ClearValues() []device.ClearValue {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	atts := rt.desc.Attachments()
	out := make([]device.ClearValue, len(atts))
	for i, a := range atts {
		out[i] = a.Clear
	}
	return out
}

func (rt *renderTarget) Enter(fb device.FramebufferHandle) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	f, ok := rt.framebuffers[fb]
	if !ok {
		return fmt.Errorf("%w: framebuffer %s does not belong to render target %q", device.ErrInvalidHandle, fb, rt.desc.Label)
	}
	if rt.desc.Clear {
		return nil
	}
	for i, e := range rt.desc.Entries {
		// Resolve targets are overwritten in full.
		if e.Role == device.RoleResolve {
			continue
		}
		want := ExpectedEntryLayout(e)
		if have := f.images[i].Layout(); have != want {
			return &device.LayoutMismatchError{Attachment: f.images[i].Label(), Pass: rt.desc.Label, Have: have, Want: want}
		}
	}
	return nil
}

func (rt *renderTarget) Leave(fb device.FramebufferHandle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	f, ok := rt.framebuffers[fb]
	if !ok {
		return
	}
	for i, e := range rt.desc.Entries {
		f.images[i].SetLayout(FinalLayout(e))
	}
}

func (rt *renderTarget) Rebuild(desc Descriptor) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.destroy()
	if err := rt.build(desc); err != nil {
		rt.destroy()
		return err
	}
	common.Logger().Info("render target rebuilt", "label", desc.Label, "width", desc.Extent().Width, "height", desc.Extent().Height)
	return nil
}

func (rt *renderTarget) Release() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.destroy()
}
