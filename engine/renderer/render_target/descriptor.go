package render_target

import (
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Entry is one image of a render target descriptor together with the role it plays.
type Entry struct {
	// Attachment is the image. Present entries leave it nil and use PerImage instead.
	Attachment attachment.Attachment
	// PerImage holds one swapchain-backed attachment per presentable image for RolePresent entries.
	PerImage []attachment.Attachment
	Role     device.AttachmentRole
	// Sampled marks an image that a later pass reads as a texture.
	Sampled bool
	// Retain keeps a depth image that a later pass loads without sampling it.
	Retain bool
	// EntryLayout overrides the layout a loading target expects the image to be in.
	EntryLayout device.Layout
}

func (e Entry) first() attachment.Attachment {
	if e.Role == device.RolePresent && len(e.PerImage) > 0 {
		return e.PerImage[0]
	}
	return e.Attachment
}

// Descriptor is the ordered attachment list plus the clear policy that shapes a render target.
type Descriptor struct {
	Label   string
	Clear   bool
	Entries []Entry
	// ClearColor is used for color, resolve and present entries when Clear is set.
	ClearColor [4]float32
	// ClearDepth is used for the depth entry when Clear is set.
	ClearDepth float32
}

// NewDescriptor creates a descriptor with an opaque black clear color and a far-plane depth clear.
//
// Parameters:
//   - clear: whether every entry is cleared when the target begins
//   - entries: the attachments in attachment index order
//
// Returns:
//   - Descriptor: the descriptor
func NewDescriptor(clear bool, entries ...Entry) Descriptor {
	return Descriptor{
		Clear:      clear,
		Entries:    entries,
		ClearColor: [4]float32{0, 0, 0, 1},
		ClearDepth: 1,
	}
}

// HasPresent reports whether the descriptor renders into swapchain images.
func (d Descriptor) HasPresent() bool {
	for _, e := range d.Entries {
		if e.Role == device.RolePresent {
			return true
		}
	}
	return false
}

// Extent returns the size shared by every entry, or the zero extent for an empty descriptor.
func (d Descriptor) Extent() device.Extent {
	for _, e := range d.Entries {
		if a := e.first(); a != nil {
			return a.Extent()
		}
	}
	return device.Extent{}
}

// Validate checks the structural rules: at most one depth entry, every resolve entry follows a
// multisampled color entry, present entries carry their images and every image has the same size.
//
// Returns:
//   - error: wraps device.ErrInvalidDescriptor when a rule is broken
func (d Descriptor) Validate() error {
	if len(d.Entries) == 0 {
		return fmt.Errorf("%w: render target %q has no entries", device.ErrInvalidDescriptor, d.Label)
	}
	depths := 0
	msaaColors := 0
	resolves := 0
	var samples uint32
	var size device.Extent
	for i, e := range d.Entries {
		if e.Role == device.RolePresent {
			if len(e.PerImage) == 0 {
				return fmt.Errorf("%w: render target %q present entry %d has no images", device.ErrInvalidDescriptor, d.Label, i)
			}
			if e.Sampled {
				return fmt.Errorf("%w: render target %q present entry %d cannot be sampled", device.ErrInvalidDescriptor, d.Label, i)
			}
			for _, img := range e.PerImage {
				if img == nil || img.Extent() != e.PerImage[0].Extent() || img.Format() != e.PerImage[0].Format() {
					return fmt.Errorf("%w: render target %q present images differ", device.ErrInvalidDescriptor, d.Label)
				}
			}
		}
		a := e.first()
		if a == nil {
			return fmt.Errorf("%w: render target %q entry %d has no attachment", device.ErrInvalidDescriptor, d.Label, i)
		}
		if i == 0 {
			size = a.Extent()
		} else if a.Extent() != size {
			return fmt.Errorf("%w: render target %q entry %d is %dx%d, want %dx%d",
				device.ErrInvalidDescriptor, d.Label, i, a.Width(), a.Height(), size.Width, size.Height)
		}

		if e.Role != device.RoleResolve {
			if samples == 0 {
				samples = a.Samples()
			} else if a.Samples() != samples {
				return fmt.Errorf("%w: render target %q entry %d has %d samples, want %d",
					device.ErrInvalidDescriptor, d.Label, i, a.Samples(), samples)
			}
		}

		switch e.Role {
		case device.RoleDepth:
			depths++
			if depths > 1 {
				return fmt.Errorf("%w: render target %q has more than one depth entry", device.ErrInvalidDescriptor, d.Label)
			}
			if !a.IsDepth() {
				return fmt.Errorf("%w: render target %q depth entry %d has format %s", device.ErrInvalidDescriptor, d.Label, i, a.Format())
			}
		case device.RoleColor, device.RolePresent:
			if a.IsDepth() {
				return fmt.Errorf("%w: render target %q color entry %d has depth format %s", device.ErrInvalidDescriptor, d.Label, i, a.Format())
			}
			if a.Samples() > 1 {
				msaaColors++
			}
		case device.RoleResolve:
			resolves++
			if resolves > msaaColors {
				return fmt.Errorf("%w: render target %q resolve entry %d has no multisampled color entry before it", device.ErrInvalidDescriptor, d.Label, i)
			}
			if a.Samples() != 1 {
				return fmt.Errorf("%w: render target %q resolve entry %d is multisampled", device.ErrInvalidDescriptor, d.Label, i)
			}
		}
	}
	return nil
}

// ExpectedEntryLayout returns the layout an entry must be in when a loading target begins.
//
// Parameters:
//   - e: the entry
//
// Returns:
//   - device.Layout: EntryLayout when set, otherwise the layout a producing pass leaves behind
func ExpectedEntryLayout(e Entry) device.Layout {
	if e.EntryLayout != device.LayoutUndefined {
		return e.EntryLayout
	}
	switch e.Role {
	case device.RoleDepth:
		return device.LayoutDepthAttachment
	case device.RolePresent:
		return device.LayoutPresentSrc
	}
	return device.LayoutShaderReadOnly
}

// FinalLayout returns the layout an entry is left in when the target ends.
//
// Parameters:
//   - e: the entry
//
// Returns:
//   - device.Layout: PresentSrc for present entries, ShaderReadOnly for sampled entries, otherwise the attachment layout
func FinalLayout(e Entry) device.Layout {
	switch {
	case e.Role == device.RolePresent:
		return device.LayoutPresentSrc
	case e.Sampled:
		return device.LayoutShaderReadOnly
	case e.Role == device.RoleDepth:
		return device.LayoutDepthAttachment
	}
	return device.LayoutColorAttachment
}

// Attachments derives the load, store and layout rules of every entry in attachment index order.
//
// Returns:
//   - []device.AttachmentDesc: one description per entry
func (d Descriptor) Attachments() []device.AttachmentDesc {
	out := make([]device.AttachmentDesc, len(d.Entries))
	for i, e := range d.Entries {
		a := e.first()
		ad := device.AttachmentDesc{
			Role:        e.Role,
			Store:       device.StoreOpStore,
			FinalLayout: FinalLayout(e),
		}
		if a != nil {
			ad.Format = a.Format()
			ad.Samples = a.Samples()
		}
		if d.Clear {
			ad.Load = device.LoadOpClear
			ad.InitialLayout = device.LayoutUndefined
		} else {
			ad.Load = device.LoadOpLoad
			ad.InitialLayout = ExpectedEntryLayout(e)
		}
		if e.Role == device.RoleDepth {
			ad.Clear.Depth = d.ClearDepth
			if !e.Sampled && !e.Retain {
				ad.Store = device.StoreOpDontCare
			}
		} else {
			ad.Clear.Color = d.ClearColor
		}
		out[i] = ad
	}
	return out
}

// Subpass derives the attachment references of the single subpass. Resolve entries pair with
// multisampled color entries in order.
//
// Returns:
//   - device.SubpassDesc: the color, resolve and depth references
func (d Descriptor) Subpass() device.SubpassDesc {
	sp := device.SubpassDesc{Depth: device.AttachmentUnused}
	var msaa []int
	var resolves []uint32
	for i, e := range d.Entries {
		switch e.Role {
		case device.RoleColor, device.RolePresent:
			if a := e.first(); a != nil && a.Samples() > 1 {
				msaa = append(msaa, len(sp.Color))
			}
			sp.Color = append(sp.Color, uint32(i))
		case device.RoleDepth:
			sp.Depth = uint32(i)
		case device.RoleResolve:
			resolves = append(resolves, uint32(i))
		}
	}
	if len(resolves) > 0 {
		sp.Resolve = make([]uint32, len(sp.Color))
		for k := range sp.Resolve {
			sp.Resolve[k] = device.AttachmentUnused
		}
		for k, idx := range resolves {
			if k < len(msaa) {
				sp.Resolve[msaa[k]] = idx
			}
		}
	}
	return sp
}

// Dependencies returns the two explicit external dependencies every render target carries: one
// ordering earlier attachment writes and sampling before this target, one making this target's
// writes visible to later passes.
//
// Returns:
//   - []device.SubpassDependency: the incoming and outgoing dependency
func (d Descriptor) Dependencies() []device.SubpassDependency {
	var hasColor, hasDepth, sampled bool
	for _, e := range d.Entries {
		if e.Role == device.RoleDepth {
			hasDepth = true
		} else {
			hasColor = true
		}
		sampled = sampled || e.Sampled
	}

	var writeStages, entryStages device.PipelineStage
	var writeAccess, entryAccess device.Access
	if hasColor {
		writeStages |= device.StageColorAttachmentOutput
		entryStages |= device.StageColorAttachmentOutput
		writeAccess |= device.AccessColorAttachmentWrite
		entryAccess |= device.AccessColorAttachmentWrite
		if !d.Clear {
			entryAccess |= device.AccessColorAttachmentRead
		}
	}
	if hasDepth {
		writeStages |= device.StageLateFragmentTests
		entryStages |= device.StageEarlyFragmentTests | device.StageLateFragmentTests
		writeAccess |= device.AccessDepthAttachmentWrite
		entryAccess |= device.AccessDepthAttachmentRead | device.AccessDepthAttachmentWrite
	}

	incoming := device.SubpassDependency{
		Src:       device.SubpassExternal,
		Dst:       0,
		SrcStage:  device.StageColorAttachmentOutput | device.StageLateFragmentTests | device.StageFragmentShader,
		DstStage:  entryStages,
		SrcAccess: device.AccessColorAttachmentWrite | device.AccessDepthAttachmentWrite,
		DstAccess: entryAccess,
	}
	outgoing := device.SubpassDependency{
		Src:       0,
		Dst:       device.SubpassExternal,
		SrcStage:  writeStages,
		DstStage:  device.StageBottomOfPipe,
		SrcAccess: writeAccess,
	}
	if sampled {
		outgoing.DstStage = device.StageFragmentShader
		outgoing.DstAccess = device.AccessShaderRead
	}
	return []device.SubpassDependency{incoming, outgoing}
}

// RenderPassDesc assembles the device description of the hardware render target.
//
// Returns:
//   - device.RenderPassDesc: attachments, subpass and dependencies
func (d Descriptor) RenderPassDesc() device.RenderPassDesc {
	return device.RenderPassDesc{
		Label:        d.Label,
		Attachments:  d.Attachments(),
		Subpass:      d.Subpass(),
		Dependencies: d.Dependencies(),
	}
}
