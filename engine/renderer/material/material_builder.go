package material

import (
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithProperties is an option builder that sets the initial surface properties.
//
// Parameters:
//   - p: the properties, defaults to roughness 1 and reflectance 0.04
//
// Returns:
//   - MaterialBuilderOption: a function that applies the properties option to a material
func WithProperties(p Properties) MaterialBuilderOption {
	return func(m *material) {
		m.props = p
	}
}

// WithAlbedo is an option builder that sets the albedo texture. The material does not own it.
//
// Parameters:
//   - a: the albedo texture
//
// Returns:
//   - MaterialBuilderOption: a function that applies the albedo option to a material
func WithAlbedo(a attachment.Attachment) MaterialBuilderOption {
	return func(m *material) {
		m.albedo = a
	}
}

// WithSpecular is an option builder that sets the specular texture. The material does not own it.
//
// Parameters:
//   - a: the specular texture
//
// Returns:
//   - MaterialBuilderOption: a function that applies the specular option to a material
func WithSpecular(a attachment.Attachment) MaterialBuilderOption {
	return func(m *material) {
		m.specular = a
	}
}

// WithNormal is an option builder that sets the normal map. The material does not own it.
//
// Parameters:
//   - a: the normal map
//
// Returns:
//   - MaterialBuilderOption: a function that applies the normal option to a material
func WithNormal(a attachment.Attachment) MaterialBuilderOption {
	return func(m *material) {
		m.normal = a
	}
}

// WithSampler is an option builder that sets a shared sampler for every texture.
// Without it the material creates and owns a linear, repeating sampler.
//
// Parameters:
//   - s: the sampler
//
// Returns:
//   - MaterialBuilderOption: a function that applies the sampler option to a material
func WithSampler(s device.SamplerHandle) MaterialBuilderOption {
	return func(m *material) {
		m.sampler = s
	}
}

// WithImported is an option builder that takes the name, properties and textures of an imported material.
// Its textures are decoded and uploaded during New and owned by the material.
//
// Parameters:
//   - im: the imported material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the imported material to a material
func WithImported(im *common.ImportedMaterial) MaterialBuilderOption {
	return func(m *material) {
		m.imported = im
	}
}
