package material

import (
	"fmt"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
)

// material is the implementation of the Material interface.
type material struct {
	mu *sync.Mutex

	dev      device.Device
	name     string
	props    Properties
	imported *common.ImportedMaterial

	albedo, specular, normal attachment.Attachment
	// owned lists the textures decoded from imported data; shared defaults are not owned.
	owned []attachment.Attachment

	sampler    device.SamplerHandle
	ownSampler bool

	// buffers holds one MaterialProperties uniform per frame slot.
	buffers []device.BufferHandle
	// stale marks the slots whose uniform does not hold the current properties yet.
	stale []bool

	binder resource_binder.ResourceBinder
}

// Material is a surface description bound to the material group of the forward pipeline:
// a MaterialProperties uniform replicated per frame slot plus albedo, specular and normal textures.
//
// Property changes are staged and reach a slot's uniform only when that slot calls Sync, so work
// in flight for another slot keeps reading the values it was recorded with.
type Material interface {
	// Name retrieves the material identifier.
	Name() string

	// Properties returns the current surface properties.
	Properties() Properties

	// SetProperties stages new surface properties for every slot.
	//
	// Parameters:
	//   - p: the new properties
	SetProperties(p Properties)

	// Sync writes the staged properties into the slot's uniform if they changed since the slot last synced.
	// Call it only while the slot's previous work is known to be complete.
	//
	// Parameters:
	//   - slot: the frame slot being recorded
	//
	// Returns:
	//   - error: the device write error, if any
	Sync(slot int) error

	// Binder returns the resource binder holding the material group.
	Binder() resource_binder.ResourceBinder

	// Albedo returns the albedo texture, nil if none is bound.
	Albedo() attachment.Attachment

	// Specular returns the specular texture, nil if none is bound.
	Specular() attachment.Attachment

	// Normal returns the normal map, nil if none is bound.
	Normal() attachment.Attachment

	// Release destroys the binder, the uniforms, owned textures and an owned sampler.
	Release()
}

var _ Material = &material{}

// New creates a material for the material bind group described by layout. Textures default to
// nothing; a declared texture binding left empty fails validation with a *device.MissingBindingError.
//
// Parameters:
//   - dev: the device context
//   - layout: the layout of the material group, from the forward pipeline
//   - slots: the number of frame slots
//   - opts: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: the material
//   - error: wraps device.ErrResourceCreation, or a *device.MissingBindingError for incomplete materials
func New(dev device.Device, layout resource_binder.Layout, slots int, opts ...MaterialBuilderOption) (Material, error) {
	m := &material{
		mu:    &sync.Mutex{},
		dev:   dev,
		props: Properties{Roughness: 1, Reflectance: 0.04},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.init(layout, slots); err != nil {
		m.Release()
		return nil, err
	}
	common.Logger().Debug("material created", "name", m.name, "slots", slots)
	return m, nil
}

func (m *material) init(layout resource_binder.Layout, slots int) error {
	if err := m.loadImported(); err != nil {
		return err
	}

	b, err := resource_binder.New(m.dev, "material:"+m.name, layout, slots)
	if err != nil {
		return err
	}
	m.binder = b

	if _, ok := layout.Binding(BindingProperties); ok {
		data := m.props.Marshal()
		for i := 0; i < slots; i++ {
			buf, err := m.dev.CreateBuffer(device.BufferDesc{
				Label: fmt.Sprintf("material:%s:%d", m.name, i),
				Size:  PropertiesSize,
				Usage: device.BufferUsageUniform | device.BufferUsageTransferDst,
			})
			if err != nil {
				return fmt.Errorf("%w: material %q uniform: %w", device.ErrResourceCreation, m.name, err)
			}
			m.buffers = append(m.buffers, buf)
			if err := m.dev.WriteBuffer(buf, 0, data); err != nil {
				return fmt.Errorf("material %q uniform: %w", m.name, err)
			}
		}
		m.stale = make([]bool, slots)
		if err := b.BindUniformBuffer(m.buffers, BindingProperties); err != nil {
			return err
		}
	}

	textures := []struct {
		binding uint32
		image   attachment.Attachment
	}{
		{BindingAlbedo, m.albedo},
		{BindingSpecular, m.specular},
		{BindingNormal, m.normal},
	}
	for _, tex := range textures {
		if _, declared := layout.Binding(tex.binding); !declared || tex.image == nil {
			continue
		}
		if !m.sampler.Valid() {
			s, err := m.dev.CreateSampler(device.SamplerDesc{
				Label:   "material:" + m.name,
				Filter:  device.FilterLinear,
				Address: device.AddressRepeat,
			})
			if err != nil {
				return fmt.Errorf("%w: material %q sampler: %w", device.ErrResourceCreation, m.name, err)
			}
			m.sampler, m.ownSampler = s, true
		}
		if err := b.BindImage(tex.image.Handle(), m.sampler, tex.binding); err != nil {
			return err
		}
	}

	if err := b.Validate(); err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}
	return nil
}

// loadImported decodes the textures of an imported material. Imported textures replace the
// ones given with WithAlbedo, WithSpecular and WithNormal.
func (m *material) loadImported() error {
	im := m.imported
	if im == nil {
		return nil
	}
	if m.name == "" {
		m.name = im.Name
	}
	m.props = Properties{Roughness: im.Roughness, Reflectance: im.Reflectance}

	textures := []struct {
		src    *common.ImportedTexture
		format device.Format
		dst    *attachment.Attachment
	}{
		{im.Albedo, device.FormatRGBA8UnormSrgb, &m.albedo},
		{im.Specular, device.FormatRGBA8Unorm, &m.specular},
		{im.Normal, device.FormatRGBA8Unorm, &m.normal},
	}
	for _, tex := range textures {
		if tex.src == nil {
			continue
		}
		a, err := UploadTexture(m.dev, tex.src, tex.format)
		if err != nil {
			return fmt.Errorf("material %q: %w", m.name, err)
		}
		m.owned = append(m.owned, a)
		*tex.dst = a
	}
	return nil
}

func (m *material) Name() string {
	return m.name
}

func (m *material) Properties() Properties {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.props
}

func (m *material) SetProperties(p Properties) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == m.props {
		return
	}
	m.props = p
	for i := range m.stale {
		m.stale[i] = true
	}
}

func (m *material) Sync(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= len(m.stale) || !m.stale[slot] {
		return nil
	}
	if err := m.dev.WriteBuffer(m.buffers[slot], 0, m.props.Marshal()); err != nil {
		return fmt.Errorf("material %q slot %d: %w", m.name, slot, err)
	}
	m.stale[slot] = false
	return nil
}

func (m *material) Binder() resource_binder.ResourceBinder {
	return m.binder
}

func (m *material) Albedo() attachment.Attachment {
	return m.albedo
}

func (m *material) Specular() attachment.Attachment {
	return m.specular
}

func (m *material) Normal() attachment.Attachment {
	return m.normal
}

func (m *material) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binder != nil {
		m.binder.Release()
		m.binder = nil
	}
	for _, b := range m.buffers {
		m.dev.DestroyBuffer(b)
	}
	m.buffers = nil
	m.stale = nil
	for _, a := range m.owned {
		a.Release()
	}
	m.owned = nil
	if m.ownSampler {
		m.dev.DestroySampler(m.sampler)
		m.sampler, m.ownSampler = device.SamplerHandle{}, false
	}
}
