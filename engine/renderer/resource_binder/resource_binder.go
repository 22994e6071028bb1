package resource_binder

import (
	"fmt"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Layout is the reflected binding layout of one bind group of a pipeline.
type Layout struct {
	Pipeline      device.PipelineHandle
	PipelineLabel string
	Group         uint32
	Bindings      []device.BindingLayout
}

// Binding returns the declared binding with the given index.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - device.BindingLayout: the binding
//   - bool: false if the group does not declare it
func (l Layout) Binding(binding uint32) (device.BindingLayout, bool) {
	for _, b := range l.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return device.BindingLayout{}, false
}

// resourceBinder is the implementation of the ResourceBinder interface.
type resourceBinder struct {
	mu *sync.Mutex

	dev    device.Device
	label  string
	layout Layout

	// sets holds one device resource set per frame slot.
	sets []device.ResourceSetHandle
	// written mirrors the writes applied to each slot's set, keyed by binding index.
	written []map[uint32]device.ResourceWrite
}

// ResourceBinder binds buffers and images to the binding slots one bind group of a shader declares.
// The bindings are replicated once per frame slot so work in flight for slot i never observes a
// write meant for another slot.
//
// Usage pattern:
//  1. A pass creates a ResourceBinder from its pipeline's Layout for a bind group
//  2. The pass binds uniform buffers (per slot or shared) and images with their samplers
//  3. Validate confirms every declared binding of every slot has been written
//  4. The command recorder binds ResourceSet(slot) before drawing
type ResourceBinder interface {
	// Label returns the debug label of the binder.
	Label() string

	// Layout returns the bind group layout the binder fills.
	Layout() Layout

	// Group returns the bind group index.
	Group() uint32

	// Slots returns the number of frame slots the binder is replicated for.
	Slots() int

	// BindUniformBuffer writes a buffer binding for every slot.
	//
	// Parameters:
	//   - buffers: one buffer per slot, or a single buffer shared by every slot
	//   - binding: the binding index
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for an undeclared binding or a wrong buffer count
	BindUniformBuffer(buffers []device.BufferHandle, binding uint32) error

	// BindUniformBufferSlot writes a buffer binding for a single slot, for late or partial updates.
	//
	// Parameters:
	//   - slot: the frame slot
	//   - buffer: the buffer
	//   - binding: the binding index
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for an undeclared binding or slot
	BindUniformBufferSlot(slot int, buffer device.BufferHandle, binding uint32) error

	// BindImage writes an image binding for every slot. When the group declares a sampler at
	// binding+1 and sampler is valid, the sampler is written there too.
	//
	// Parameters:
	//   - image: the image to sample
	//   - sampler: the sampler paired with the image, or the zero handle
	//   - binding: the image binding index
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for an undeclared binding
	BindImage(image device.ImageHandle, sampler device.SamplerHandle, binding uint32) error

	// BindImageSlot is BindImage for a single slot.
	//
	// Parameters:
	//   - slot: the frame slot
	//   - image: the image to sample
	//   - sampler: the sampler paired with the image, or the zero handle
	//   - binding: the image binding index
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for an undeclared binding or slot
	BindImageSlot(slot int, image device.ImageHandle, sampler device.SamplerHandle, binding uint32) error

	// BindSampler writes a sampler binding for every slot.
	//
	// Parameters:
	//   - sampler: the sampler
	//   - binding: the sampler binding index
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for an undeclared binding
	BindSampler(sampler device.SamplerHandle, binding uint32) error

	// Validate checks that every declared binding is written for every slot.
	//
	// Returns:
	//   - error: a *device.MissingBindingError for the first empty binding
	Validate() error

	// ValidateSlot checks that every declared binding is written for one slot.
	//
	// Parameters:
	//   - slot: the frame slot
	//
	// Returns:
	//   - error: a *device.MissingBindingError for the first empty binding
	ValidateSlot(slot int) error

	// ResourceSet returns the device resource set of a slot.
	//
	// Parameters:
	//   - slot: the frame slot
	//
	// Returns:
	//   - device.ResourceSetHandle: the set, or the zero handle for an unknown slot
	ResourceSet(slot int) device.ResourceSetHandle

	// Release destroys every per-slot resource set. Bound buffers and images are not owned.
	Release()
}

var _ ResourceBinder = &resourceBinder{}

// New creates a binder with one empty resource set per frame slot.
//
// Parameters:
//   - dev: the device context
//   - label: a debug label
//   - layout: the bind group layout to fill
//   - slots: the number of frame slots
//
// Returns:
//   - ResourceBinder: the binder
//   - error: wraps device.ErrResourceCreation on failure
func New(dev device.Device, label string, layout Layout, slots int) (ResourceBinder, error) {
	if slots < 1 {
		return nil, fmt.Errorf("%w: binder %q needs at least one slot", device.ErrResourceCreation, label)
	}
	b := &resourceBinder{
		mu:      &sync.Mutex{},
		dev:     dev,
		label:   label,
		layout:  layout,
		sets:    make([]device.ResourceSetHandle, 0, slots),
		written: make([]map[uint32]device.ResourceWrite, slots),
	}
	for i := range slots {
		h, err := dev.CreateResourceSet(device.ResourceSetDesc{
			Label:    fmt.Sprintf("%s Slot %d", label, i),
			Pipeline: layout.Pipeline,
			Group:    layout.Group,
			Bindings: layout.Bindings,
		})
		if err != nil {
			b.Release()
			return nil, fmt.Errorf("binder %q: %w", label, err)
		}
		b.sets = append(b.sets, h)
		b.written[i] = make(map[uint32]device.ResourceWrite)
	}
	return b, nil
}

func (b *resourceBinder) Label() string {
	return b.label
}

func (b *resourceBinder) Layout() Layout {
	return b.layout
}

func (b *resourceBinder) Group() uint32 {
	return b.layout.Group
}

func (b *resourceBinder) Slots() int {
	return len(b.written)
}

// declared returns the binding when it exists and accepts the resource kind.
func (b *resourceBinder) declared(binding uint32, accept func(device.BindingKind) bool) (device.BindingLayout, error) {
	bl, ok := b.layout.Binding(binding)
	if !ok {
		return bl, fmt.Errorf("%w: binder %q group %d does not declare binding %d", device.ErrInvalidDescriptor, b.label, b.layout.Group, binding)
	}
	if !accept(bl.Kind) {
		return bl, fmt.Errorf("%w: binder %q binding %d (%s) expects a %s", device.ErrInvalidDescriptor, b.label, binding, bl.Name, bl.Kind)
	}
	return bl, nil
}

func (b *resourceBinder) checkSlot(slot int) error {
	if slot < 0 || slot >= len(b.sets) {
		return fmt.Errorf("%w: binder %q has no slot %d", device.ErrInvalidDescriptor, b.label, slot)
	}
	return nil
}

// apply writes to the device first, then mirrors the writes once they are accepted.
func (b *resourceBinder) apply(slot int, writes ...device.ResourceWrite) error {
	if err := b.dev.UpdateResourceSet(b.sets[slot], writes); err != nil {
		return fmt.Errorf("binder %q slot %d: %w", b.label, slot, err)
	}
	for _, w := range writes {
		b.written[slot][w.Binding] = w
	}
	return nil
}

func (b *resourceBinder) BindUniformBuffer(buffers []device.BufferHandle, binding uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.declared(binding, device.BindingKind.IsBuffer); err != nil {
		return err
	}
	if len(buffers) != 1 && len(buffers) != len(b.sets) {
		return fmt.Errorf("%w: binder %q got %d buffers for %d slots", device.ErrInvalidDescriptor, b.label, len(buffers), len(b.sets))
	}
	for slot := range b.sets {
		buf := buffers[0]
		if len(buffers) > 1 {
			buf = buffers[slot]
		}
		if err := b.apply(slot, device.ResourceWrite{Binding: binding, Buffer: buf}); err != nil {
			return err
		}
	}
	return nil
}

func (b *resourceBinder) BindUniformBufferSlot(slot int, buffer device.BufferHandle, binding uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	if _, err := b.declared(binding, device.BindingKind.IsBuffer); err != nil {
		return err
	}
	return b.apply(slot, device.ResourceWrite{Binding: binding, Buffer: buffer})
}

func (b *resourceBinder) imageWrites(image device.ImageHandle, sampler device.SamplerHandle, binding uint32) ([]device.ResourceWrite, error) {
	if _, err := b.declared(binding, device.BindingKind.IsImage); err != nil {
		return nil, err
	}
	writes := []device.ResourceWrite{{Binding: binding, Image: image}}
	if sb, ok := b.layout.Binding(binding + 1); ok && sb.Kind.IsSampler() && sampler.Valid() {
		writes = append(writes, device.ResourceWrite{Binding: binding + 1, Sampler: sampler})
	}
	return writes, nil
}

func (b *resourceBinder) BindImage(image device.ImageHandle, sampler device.SamplerHandle, binding uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	writes, err := b.imageWrites(image, sampler, binding)
	if err != nil {
		return err
	}
	for slot := range b.sets {
		if err := b.apply(slot, writes...); err != nil {
			return err
		}
	}
	return nil
}

func (b *resourceBinder) BindImageSlot(slot int, image device.ImageHandle, sampler device.SamplerHandle, binding uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	writes, err := b.imageWrites(image, sampler, binding)
	if err != nil {
		return err
	}
	return b.apply(slot, writes...)
}

func (b *resourceBinder) BindSampler(sampler device.SamplerHandle, binding uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.declared(binding, device.BindingKind.IsSampler); err != nil {
		return err
	}
	for slot := range b.sets {
		if err := b.apply(slot, device.ResourceWrite{Binding: binding, Sampler: sampler}); err != nil {
			return err
		}
	}
	return nil
}

func (b *resourceBinder) validateSlot(slot int) error {
	for _, bl := range b.layout.Bindings {
		if _, ok := b.written[slot][bl.Binding]; !ok {
			return &device.MissingBindingError{
				Pipeline: b.layout.PipelineLabel,
				Group:    b.layout.Group,
				Binding:  bl.Binding,
				Slot:     slot,
				Name:     bl.Name,
			}
		}
	}
	return nil
}

func (b *resourceBinder) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot := range b.written {
		if err := b.validateSlot(slot); err != nil {
			return err
		}
	}
	return nil
}

func (b *resourceBinder) ValidateSlot(slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkSlot(slot); err != nil {
		return err
	}
	return b.validateSlot(slot)
}

func (b *resourceBinder) ResourceSet(slot int) device.ResourceSetHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot < 0 || slot >= len(b.sets) {
		return device.ResourceSetHandle{}
	}
	return b.sets[slot]
}

func (b *resourceBinder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.sets {
		b.dev.DestroyResourceSet(h)
		b.sets[i] = device.ResourceSetHandle{}
	}
	b.sets = nil
	b.written = nil
}
