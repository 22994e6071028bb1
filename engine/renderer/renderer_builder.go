package renderer

import (
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via New.
type RendererBuilderOption func(*renderer)

// WithSettings replaces the default settings.
//
// Parameters:
//   - s: the settings, validated by New
//
// Returns:
//   - RendererBuilderOption: a function that applies the settings to a renderer
func WithSettings(s config.Settings) RendererBuilderOption {
	return func(r *renderer) {
		r.settings = s
	}
}

// WithShaderLibrary loads the pass shaders from lib instead of the embedded sources.
//
// Parameters:
//   - lib: the shader library
//
// Returns:
//   - RendererBuilderOption: a function that applies the library to a renderer
func WithShaderLibrary(lib shader.Library) RendererBuilderOption {
	return func(r *renderer) {
		r.library = lib
	}
}

// WithSkyBox sets the six cubemap faces drawn by the sky box pass, in +X, -X, +Y, -Y, +Z, -Z order.
// Faces are scaled to the size of the first one.
//
// Parameters:
//   - faces: the face textures
//
// Returns:
//   - RendererBuilderOption: a function that applies the sky box to a renderer
func WithSkyBox(faces [6]*common.ImportedTexture) RendererBuilderOption {
	return func(r *renderer) {
		r.skyFaces = &faces
	}
}

// WithSkyColor sets the color of the single-texel cubemap used when no sky box faces are given.
//
// Parameters:
//   - rgba: the sRGB color
//
// Returns:
//   - RendererBuilderOption: a function that applies the sky color to a renderer
func WithSkyColor(rgba [4]byte) RendererBuilderOption {
	return func(r *renderer) {
		r.skyColor = rgba
	}
}

// WithCamera sets the initial camera. Without it the renderer looks at the origin from (0, 2, 6)
// and keeps the projection aspect in step with the surface.
func WithCamera(c Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.camera = c
		r.userCamera = true
	}
}

// WithLight sets the initial directional light.
func WithLight(l Light) RendererBuilderOption {
	return func(r *renderer) {
		r.light = l
	}
}

// WithKernelSeed sets the seed of the SSAO sample kernel.
//
// Parameters:
//   - seed: the seed, defaults to 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the seed to a renderer
func WithKernelSeed(seed uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.kernelSeed = seed
	}
}
