package renderer

import (
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// uploadSkyBox decodes the six faces into one cubemap. Every face is scaled to the size of the first.
//
// Parameters:
//   - dev: the device context
//   - faces: the faces in +X, -X, +Y, -Y, +Z, -Z order
//
// Returns:
//   - attachment.Attachment: the cubemap, owned by the caller
//   - error: wraps device.ErrResourceCreation
func uploadSkyBox(dev device.Device, faces [6]*common.ImportedTexture) (attachment.Attachment, error) {
	first, w, h, err := faces[0].Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: sky box face 0: %w", device.ErrResourceCreation, err)
	}
	cube, err := attachment.New(dev, attachment.KindCubemap, w, h,
		attachment.WithLabel("Sky Box"), attachment.WithFormat(device.FormatRGBA8UnormSrgb))
	if err != nil {
		return nil, err
	}
	if err := cube.Upload(0, first); err != nil {
		cube.Release()
		return nil, fmt.Errorf("%w: sky box face 0: %w", device.ErrResourceCreation, err)
	}
	for i := 1; i < len(faces); i++ {
		staged, err := faces[i].DecodeSized(w, h)
		if err == nil {
			err = cube.Upload(uint32(i), staged.Pixels)
		}
		if err != nil {
			cube.Release()
			return nil, fmt.Errorf("%w: sky box face %d: %w", device.ErrResourceCreation, i, err)
		}
	}
	common.Logger().Debug("sky box uploaded", "width", w, "height", h)
	return cube, nil
}
