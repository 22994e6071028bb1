package bloom

import "github.com/SedenionProj/vulkan-renderer/engine/renderer/device"

// BloomBuilderOption is a function that configures a bloom chain during construction.
type BloomBuilderOption func(*bloom)

// WithMipLevels sets the number of mips in the chain.
//
// Parameters:
//   - levels: the mip count, defaults to 5 and is clamped to at least 1
//
// Returns:
//   - BloomBuilderOption: a function that applies the mip count to a bloom chain
func WithMipLevels(levels int) BloomBuilderOption {
	return func(b *bloom) {
		b.levels = max(levels, 1)
	}
}

// WithFormat sets the format of the mips.
//
// Parameters:
//   - format: the color format, defaults to device.FormatRGBA16Float
//
// Returns:
//   - BloomBuilderOption: a function that applies the format to a bloom chain
func WithFormat(format device.Format) BloomBuilderOption {
	return func(b *bloom) {
		b.format = format
	}
}

// WithThreshold sets the luminance the prefilter step keeps.
//
// Parameters:
//   - threshold: the threshold, defaults to 1
//
// Returns:
//   - BloomBuilderOption: a function that applies the threshold to a bloom chain
func WithThreshold(threshold float32) BloomBuilderOption {
	return func(b *bloom) {
		b.threshold = threshold
	}
}

// WithFilterRadius sets the radius of the upsample tent filter in texture coordinates.
//
// Parameters:
//   - radius: the radius, defaults to 0.005
//
// Returns:
//   - BloomBuilderOption: a function that applies the radius to a bloom chain
func WithFilterRadius(radius float32) BloomBuilderOption {
	return func(b *bloom) {
		b.radius = radius
	}
}
