package material

import (
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// UploadTexture decodes an imported texture and uploads it into a new sampled image.
//
// Parameters:
//   - dev: the device context
//   - tex: the texture to decode
//   - format: device.FormatRGBA8UnormSrgb for color data, device.FormatRGBA8Unorm otherwise
//
// Returns:
//   - attachment.Attachment: the uploaded image, owned by the caller
//   - error: wraps device.ErrResourceCreation when decoding or upload fails
func UploadTexture(dev device.Device, tex *common.ImportedTexture, format device.Format) (attachment.Attachment, error) {
	pixels, w, h, err := tex.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
	}
	return upload(dev, tex.Label(), pixels, w, h, format)
}

// SolidTexture creates a 1x1 image of a single color. The renderer shares these as the default
// albedo (white), specular (black) and normal (flat) textures.
//
// Parameters:
//   - dev: the device context
//   - label: the debug label
//   - rgba: the texel
//   - format: the image format
//
// Returns:
//   - attachment.Attachment: the image, owned by the caller
//   - error: wraps device.ErrResourceCreation on failure
func SolidTexture(dev device.Device, label string, rgba [4]byte, format device.Format) (attachment.Attachment, error) {
	return upload(dev, label, rgba[:], 1, 1, format)
}

func upload(dev device.Device, label string, pixels []byte, w, h uint32, format device.Format) (attachment.Attachment, error) {
	a, err := attachment.New(dev, attachment.KindColor, w, h,
		attachment.WithLabel(label),
		attachment.WithFormat(format),
		attachment.WithUsage(device.ImageUsageSampled|device.ImageUsageTransferDst),
	)
	if err != nil {
		return nil, err
	}
	if err := a.Upload(0, pixels); err != nil {
		a.Release()
		return nil, fmt.Errorf("%w: texture %q: %w", device.ErrResourceCreation, label, err)
	}
	return a, nil
}
