package attachment

import (
	"fmt"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Kind classifies who owns an attachment's backing memory and how it is shaped.
type Kind int

const (
	// KindColor is an owned color image.
	KindColor Kind = iota
	// KindDepth is an owned depth image.
	KindDepth
	// KindSwapchain wraps a presentable image owned by the surface.
	KindSwapchain
	// KindCubemap is an owned six-layer color image sampled as a cube.
	KindCubemap
)

func (k Kind) String() string {
	switch k {
	case KindColor:
		return "color"
	case KindDepth:
		return "depth"
	case KindSwapchain:
		return "swapchain"
	case KindCubemap:
		return "cubemap"
	}
	return "unknown"
}

// attachment is the implementation of the Attachment interface.
type attachment struct {
	mu *sync.Mutex

	dev    device.Device
	handle device.ImageHandle
	kind   Kind
	label  string

	width     uint32
	height    uint32
	format    device.Format
	samples   uint32
	mipLevels uint32
	layers    uint32
	usage     device.ImageUsage

	layout   device.Layout
	released bool
}

// Attachment is a GPU image that passes render into or sample from. It tracks the layout the
// image was left in by the last pass that touched it.
//
// A swapchain-backed attachment never destroys its image; the surface owns it.
type Attachment interface {
	// Handle returns the device image handle.
	//
	// Returns:
	//   - device.ImageHandle: the image, invalid after Release
	Handle() device.ImageHandle

	// Label returns the debug label of the attachment.
	Label() string

	// Width returns the width of mip 0 in pixels.
	Width() uint32

	// Height returns the height of mip 0 in pixels.
	Height() uint32

	// Extent returns the size of mip 0.
	Extent() device.Extent

	// Format returns the pixel format.
	Format() device.Format

	// Samples returns the sample count, 1 for single-sampled images.
	Samples() uint32

	// MipLevels returns the number of mip levels.
	MipLevels() uint32

	// Layers returns the number of array layers, 6 for cubemaps.
	Layers() uint32

	// Kind returns the ownership kind.
	Kind() Kind

	// Usage returns the usage flags the image was created with.
	Usage() device.ImageUsage

	// IsDepth reports whether the format is a depth format.
	IsDepth() bool

	// Layout returns the layout the image is currently in.
	//
	// Returns:
	//   - device.Layout: LayoutUndefined until a render target has written it
	Layout() device.Layout

	// SetLayout records the layout a render target left the image in.
	//
	// Parameters:
	//   - layout: the new layout
	SetLayout(layout device.Layout)

	// Upload writes texel data into one array layer of mip 0 and moves the image to ShaderReadOnly.
	//
	// Parameters:
	//   - layer: the array layer, a cube face index for cubemaps
	//   - data: tightly packed texels
	//
	// Returns:
	//   - error: an error if the image was released or the data does not match its size
	Upload(layer uint32, data []byte) error

	// Release destroys the backing image unless it belongs to the surface. It is safe to call more than once.
	Release()
}

var _ Attachment = &attachment{}

// New creates an attachment with its own backing image.
//
// Parameters:
//   - dev: the device context that owns the image
//   - kind: KindColor, KindDepth or KindCubemap
//   - width: the width in pixels
//   - height: the height in pixels
//   - opts: optional configuration
//
// Returns:
//   - Attachment: the new attachment
//   - error: wraps device.ErrResourceCreation if the image could not be created
func New(dev device.Device, kind Kind, width, height uint32, opts ...AttachmentBuilderOption) (Attachment, error) {
	if kind == KindSwapchain {
		return nil, fmt.Errorf("%w: swapchain attachments are created with NewSwapchainBacked", device.ErrResourceCreation)
	}
	a := &attachment{
		mu:      &sync.Mutex{},
		dev:     dev,
		kind:    kind,
		width:   width,
		height:  height,
		samples: 1,
	}
	switch kind {
	case KindDepth:
		a.label = "Depth Attachment"
		a.format = device.FormatDepth32Float
		a.usage = device.ImageUsageRenderAttachment | device.ImageUsageSampled
	case KindCubemap:
		a.label = "Cubemap"
		a.format = device.FormatRGBA8Unorm
		a.usage = device.ImageUsageSampled | device.ImageUsageTransferDst
	default:
		a.label = "Color Attachment"
		a.format = device.FormatRGBA8Unorm
		a.usage = device.ImageUsageRenderAttachment | device.ImageUsageSampled
	}
	for _, opt := range opts {
		opt(a)
	}

	desc := device.ImageDesc{
		Label:     a.label,
		Width:     a.width,
		Height:    a.height,
		Format:    a.format,
		Samples:   a.samples,
		MipLevels: a.mipLevels,
		Layers:    a.layers,
		Cube:      kind == KindCubemap,
		Usage:     a.usage,
	}.Normalize()
	if kind == KindDepth && !desc.Format.IsDepth() {
		return nil, fmt.Errorf("%w: depth attachment %q has color format %s", device.ErrResourceCreation, a.label, desc.Format)
	}
	if kind != KindDepth && desc.Format.IsDepth() {
		return nil, fmt.Errorf("%w: %s attachment %q has depth format %s", device.ErrResourceCreation, kind, a.label, desc.Format)
	}
	a.mipLevels = desc.MipLevels
	a.layers = desc.Layers

	h, err := dev.CreateImage(desc)
	if err != nil {
		return nil, fmt.Errorf("attachment %q: %w", a.label, err)
	}
	a.handle = h
	return a, nil
}

// NewSwapchainBacked wraps a surface-owned image. Release only forgets the handle.
//
// Parameters:
//   - dev: the device context
//   - handle: the swapchain image handle returned by device.ConfigureSurface
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//   - format: the surface format
//
// Returns:
//   - Attachment: the wrapper
func NewSwapchainBacked(dev device.Device, handle device.ImageHandle, width, height uint32, format device.Format) Attachment {
	return &attachment{
		mu:        &sync.Mutex{},
		dev:       dev,
		handle:    handle,
		kind:      KindSwapchain,
		label:     "Swapchain Image",
		width:     width,
		height:    height,
		format:    format,
		samples:   1,
		mipLevels: 1,
		layers:    1,
		usage:     device.ImageUsageRenderAttachment | device.ImageUsagePresent,
	}
}

func (a *attachment) Handle() device.ImageHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

func (a *attachment) Label() string {
	return a.label
}

func (a *attachment) Width() uint32 {
	return a.width
}

func (a *attachment) Height() uint32 {
	return a.height
}

func (a *attachment) Extent() device.Extent {
	return device.Extent{Width: a.width, Height: a.height}
}

func (a *attachment) Format() device.Format {
	return a.format
}

func (a *attachment) Samples() uint32 {
	return a.samples
}

func (a *attachment) MipLevels() uint32 {
	return a.mipLevels
}

func (a *attachment) Layers() uint32 {
	return a.layers
}

func (a *attachment) Kind() Kind {
	return a.kind
}

func (a *attachment) Usage() device.ImageUsage {
	return a.usage
}

func (a *attachment) IsDepth() bool {
	return a.format.IsDepth()
}

func (a *attachment) Layout() device.Layout {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layout
}

func (a *attachment) SetLayout(layout device.Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.layout = layout
}

func (a *attachment) Upload(layer uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return fmt.Errorf("%w: attachment %q was released", device.ErrInvalidHandle, a.label)
	}
	if a.kind == KindSwapchain {
		return fmt.Errorf("%w: cannot upload into swapchain image", device.ErrInvalidState)
	}
	if err := a.dev.WriteImage(a.handle, layer, data); err != nil {
		return fmt.Errorf("upload %q layer %d: %w", a.label, layer, err)
	}
	a.layout = device.LayoutShaderReadOnly
	return nil
}

func (a *attachment) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	if a.kind != KindSwapchain {
		a.dev.DestroyImage(a.handle)
	}
	a.handle = device.ImageHandle{}
	a.layout = device.LayoutUndefined
}
