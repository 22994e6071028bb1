package attachment

import "github.com/SedenionProj/vulkan-renderer/engine/renderer/device"

// AttachmentBuilderOption is a functional option used to configure an Attachment during construction.
type AttachmentBuilderOption func(*attachment)

// WithLabel sets the debug label of the attachment.
//
// Parameters:
//   - label: the label reported to the device
//
// Returns:
//   - AttachmentBuilderOption: a function that sets the label
func WithLabel(label string) AttachmentBuilderOption {
	return func(a *attachment) {
		a.label = label
	}
}

// WithFormat overrides the default format of the attachment kind.
//
// Parameters:
//   - format: the pixel format
//
// Returns:
//   - AttachmentBuilderOption: a function that sets the format
func WithFormat(format device.Format) AttachmentBuilderOption {
	return func(a *attachment) {
		a.format = format
	}
}

// WithSamples sets the multisample count. Values below 1 are ignored.
//
// Parameters:
//   - samples: the sample count, 1 or 4
//
// Returns:
//   - AttachmentBuilderOption: a function that sets the sample count
func WithSamples(samples uint32) AttachmentBuilderOption {
	return func(a *attachment) {
		if samples > 0 {
			a.samples = samples
		}
	}
}

// WithMipLevels sets the number of mip levels.
//
// Parameters:
//   - levels: the mip level count
//
// Returns:
//   - AttachmentBuilderOption: a function that sets the mip level count
func WithMipLevels(levels uint32) AttachmentBuilderOption {
	return func(a *attachment) {
		a.mipLevels = levels
	}
}

// WithUsage replaces the default usage flags of the attachment kind.
//
// Parameters:
//   - usage: the image usage flags
//
// Returns:
//   - AttachmentBuilderOption: a function that sets the usage
func WithUsage(usage device.ImageUsage) AttachmentBuilderOption {
	return func(a *attachment) {
		a.usage = usage
	}
}
