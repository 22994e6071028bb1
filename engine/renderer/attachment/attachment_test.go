package attachment

import (
	"errors"
	"testing"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	dev := devicetest.New()

	color, err := New(dev, KindColor, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, device.FormatRGBA8Unorm, color.Format())
	assert.Equal(t, uint32(1), color.Samples())
	assert.Equal(t, uint32(1), color.Layers())
	assert.Equal(t, device.LayoutUndefined, color.Layout())
	assert.False(t, color.IsDepth())

	depth, err := New(dev, KindDepth, 640, 480)
	require.NoError(t, err)
	assert.True(t, depth.IsDepth())

	cube, err := New(dev, KindCubemap, 256, 256, WithLabel("Sky"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), cube.Layers())
	desc, ok := dev.Image(cube.Handle())
	require.True(t, ok)
	assert.True(t, desc.Cube)
	assert.Equal(t, "Sky", desc.Label)

	assert.Equal(t, 3, dev.Live(devicetest.KindImage))
}

func TestNewRejectsMismatchedFormats(t *testing.T) {
	dev := devicetest.New()

	_, err := New(dev, KindDepth, 64, 64, WithFormat(device.FormatRGBA16Float))
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	_, err = New(dev, KindColor, 64, 64, WithFormat(device.FormatDepth24Plus))
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	_, err = New(dev, KindSwapchain, 64, 64)
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	_, err = New(dev, KindColor, 0, 64)
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	assert.Equal(t, 0, dev.Live(devicetest.KindImage))
}

func TestNewPropagatesDeviceFailure(t *testing.T) {
	dev := devicetest.New()
	dev.FailCreate(devicetest.KindImage, errors.New("out of memory"))

	_, err := New(dev, KindColor, 64, 64)
	assert.ErrorIs(t, err, device.ErrResourceCreation)
}

func TestReleaseOwnedImage(t *testing.T) {
	dev := devicetest.New()
	a, err := New(dev, KindColor, 32, 32, WithSamples(4))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), a.Samples())

	a.Release()
	a.Release()
	assert.Equal(t, 0, dev.Live(devicetest.KindImage))
	assert.False(t, a.Handle().Valid())
}

func TestSwapchainBackedNeverDestroysImage(t *testing.T) {
	dev := devicetest.New()
	images, err := dev.ConfigureSurface(device.SurfaceConfig{Width: 800, Height: 600, Format: device.FormatBGRA8UnormSrgb, ImageCount: 2})
	require.NoError(t, err)

	a := NewSwapchainBacked(dev, images[0], 800, 600, device.FormatBGRA8UnormSrgb)
	assert.Equal(t, KindSwapchain, a.Kind())
	a.Release()

	_, ok := dev.Image(images[0])
	assert.True(t, ok, "the surface still owns the image")
	assert.Error(t, a.Upload(0, make([]byte, 4)))
}

func TestUploadMovesToShaderReadOnly(t *testing.T) {
	dev := devicetest.New()
	a, err := New(dev, KindCubemap, 2, 2)
	require.NoError(t, err)

	require.NoError(t, a.Upload(5, make([]byte, 2*2*4)))
	assert.Equal(t, device.LayoutShaderReadOnly, a.Layout())

	assert.ErrorIs(t, a.Upload(6, make([]byte, 2*2*4)), device.ErrInvalidDescriptor)
	assert.ErrorIs(t, a.Upload(0, make([]byte, 3)), device.ErrInvalidDescriptor)
}
