package renderer

import (
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
)

// Graph resource names.
const (
	ResourceDepth          = "depth"
	ResourceSSAO           = "ssao"
	ResourceShadowMap      = "shadow-map"
	ResourceHDR            = "hdr"
	ResourceHDRMultisample = "hdr-msaa"
	ResourceForwardDepth   = "forward-depth"
	ResourceBloom          = "bloom"
	ResourceLDR            = "ldr"
	ResourceSky            = "sky"
)

// sizedImages are the attachments whose size follows the surface.
type sizedImages struct {
	depth        attachment.Attachment
	ssao         attachment.Attachment
	hdr          attachment.Attachment
	hdrMSAA      attachment.Attachment
	forwardDepth attachment.Attachment
	ldr          attachment.Attachment
}

func (s sizedImages) each(fn func(name string, a attachment.Attachment)) {
	named := []struct {
		name string
		a    attachment.Attachment
	}{
		{ResourceDepth, s.depth},
		{ResourceSSAO, s.ssao},
		{ResourceHDR, s.hdr},
		{ResourceHDRMultisample, s.hdrMSAA},
		{ResourceForwardDepth, s.forwardDepth},
		{ResourceLDR, s.ldr},
	}
	for _, n := range named {
		if n.a != nil {
			fn(n.name, n.a)
		}
	}
}

func (s sizedImages) release() {
	s.each(func(_ string, a attachment.Attachment) { a.Release() })
}

// createSizedImages allocates every surface-sized attachment. Multisampled images are render-only.
func createSizedImages(dev device.Device, width, height, samples uint32) (sizedImages, error) {
	var s sizedImages
	defs := []struct {
		dst  *attachment.Attachment
		kind attachment.Kind
		opts []attachment.AttachmentBuilderOption
	}{
		{&s.depth, attachment.KindDepth, []attachment.AttachmentBuilderOption{attachment.WithLabel("Depth Pre-pass")}},
		{&s.ssao, attachment.KindColor, []attachment.AttachmentBuilderOption{attachment.WithLabel("SSAO")}},
		{&s.hdr, attachment.KindColor, []attachment.AttachmentBuilderOption{
			attachment.WithLabel("HDR Color"), attachment.WithFormat(device.FormatRGBA16Float)}},
		{&s.forwardDepth, attachment.KindDepth, []attachment.AttachmentBuilderOption{
			attachment.WithLabel("Forward Depth"), attachment.WithSamples(samples), msaaUsage(samples)}},
		{&s.ldr, attachment.KindColor, []attachment.AttachmentBuilderOption{
			attachment.WithLabel("LDR Color"), attachment.WithFormat(device.FormatRGBA8UnormSrgb)}},
	}
	if samples > 1 {
		defs = append(defs, struct {
			dst  *attachment.Attachment
			kind attachment.Kind
			opts []attachment.AttachmentBuilderOption
		}{&s.hdrMSAA, attachment.KindColor, []attachment.AttachmentBuilderOption{
			attachment.WithLabel("HDR Color MSAA"), attachment.WithFormat(device.FormatRGBA16Float),
			attachment.WithSamples(samples), msaaUsage(samples)}})
	}
	for _, def := range defs {
		a, err := attachment.New(dev, def.kind, width, height, def.opts...)
		if err != nil {
			s.release()
			return sizedImages{}, err
		}
		*def.dst = a
	}
	return s, nil
}

func msaaUsage(samples uint32) attachment.AttachmentBuilderOption {
	usage := device.ImageUsageRenderAttachment | device.ImageUsageSampled
	if samples > 1 {
		usage = device.ImageUsageRenderAttachment
	}
	return attachment.WithUsage(usage)
}

func labeled(label string, clear bool, entries ...render_target.Entry) render_target.Descriptor {
	d := render_target.NewDescriptor(clear, entries...)
	d.Label = label
	return d
}

// prepassDescriptor clears the depth that SSAO samples.
func prepassDescriptor(img sizedImages) render_target.Descriptor {
	return labeled(PassDepth, true,
		render_target.Entry{Attachment: img.depth, Role: device.RoleDepth, Sampled: true})
}

func ssaoDescriptor(img sizedImages) render_target.Descriptor {
	d := labeled(PassSSAO, true,
		render_target.Entry{Attachment: img.ssao, Role: device.RoleColor, Sampled: true})
	d.ClearColor = [4]float32{1, 1, 1, 1}
	return d
}

func shadowDescriptor(shadowMap attachment.Attachment) render_target.Descriptor {
	return labeled(PassShadow, true,
		render_target.Entry{Attachment: shadowMap, Role: device.RoleDepth, Sampled: true})
}

// forwardDescriptor clears the scene. With MSAA the multisampled color resolves into the HDR image.
func forwardDescriptor(img sizedImages, clearColor [4]float32) render_target.Descriptor {
	d := labeled(PassForward, true, sceneEntries(img, false)...)
	d.ClearColor = clearColor
	return d
}

// skyDescriptor loads what the forward pass left. The multisampled color was not sampled, so it
// stays a color attachment between the two passes.
func skyDescriptor(img sizedImages) render_target.Descriptor {
	return labeled(PassSkyBox, false, sceneEntries(img, true)...)
}

func sceneEntries(img sizedImages, load bool) []render_target.Entry {
	depth := render_target.Entry{Attachment: img.forwardDepth, Role: device.RoleDepth, Retain: true}
	if img.hdrMSAA == nil {
		return []render_target.Entry{
			{Attachment: img.hdr, Role: device.RoleColor, Sampled: true},
			depth,
		}
	}
	color := render_target.Entry{Attachment: img.hdrMSAA, Role: device.RoleColor}
	if load {
		color.EntryLayout = device.LayoutColorAttachment
	}
	return []render_target.Entry{
		color,
		{Attachment: img.hdr, Role: device.RoleResolve, Sampled: true},
		depth,
	}
}

func tonemapDescriptor(img sizedImages) render_target.Descriptor {
	return labeled(PassToneMapping, true,
		render_target.Entry{Attachment: img.ldr, Role: device.RoleColor, Sampled: true})
}

func finalDescriptor(images []attachment.Attachment) render_target.Descriptor {
	return labeled(PassFinal, true,
		render_target.Entry{PerImage: images, Role: device.RolePresent})
}

// createSkyCubemap uploads a single-color cubemap used when no faces are configured.
func createSkyCubemap(dev device.Device, rgba [4]byte) (attachment.Attachment, error) {
	cube, err := attachment.New(dev, attachment.KindCubemap, 1, 1,
		attachment.WithLabel("Sky Cubemap"), attachment.WithFormat(device.FormatRGBA8UnormSrgb))
	if err != nil {
		return nil, err
	}
	for layer := range uint32(6) {
		if err := cube.Upload(layer, rgba[:]); err != nil {
			cube.Release()
			return nil, fmt.Errorf("%w: sky face %d: %w", device.ErrResourceCreation, layer, err)
		}
	}
	return cube, nil
}
