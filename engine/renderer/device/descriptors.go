package device

import "fmt"

// ImageDesc describes an image to create.
type ImageDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	Format    Format
	Samples   uint32
	MipLevels uint32
	// Layers is the array layer count. Cube images use 6.
	Layers uint32
	Cube   bool
	Usage  ImageUsage
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// SamplerDesc describes a sampler to create.
type SamplerDesc struct {
	Label   string
	Filter  FilterMode
	Address AddressMode
	// Compare turns the sampler into a comparison sampler when set.
	Compare CompareFunction
}

// AttachmentDesc is the fully derived description of one render target attachment.
type AttachmentDesc struct {
	Format        Format
	Samples       uint32
	Role          AttachmentRole
	Load          LoadOp
	Store         StoreOp
	InitialLayout Layout
	FinalLayout   Layout
	Clear         ClearValue
}

// SubpassDesc lists attachment indices used by the single subpass of a render target.
type SubpassDesc struct {
	Color []uint32
	// Resolve holds, for each Color entry, the index of its resolve attachment or AttachmentUnused.
	Resolve []uint32
	// Depth is the depth attachment index or AttachmentUnused.
	Depth uint32
}

// AttachmentUnused marks an empty attachment reference in a SubpassDesc.
const AttachmentUnused = ^uint32(0)

// SubpassDependency orders work across a render target boundary.
type SubpassDependency struct {
	Src       uint32
	Dst       uint32
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

// RenderPassDesc describes the shape of a render target.
type RenderPassDesc struct {
	Label        string
	Attachments  []AttachmentDesc
	Subpass      SubpassDesc
	Dependencies []SubpassDependency
}

// FramebufferDesc binds concrete images to a render pass.
type FramebufferDesc struct {
	Label       string
	RenderPass  RenderPassHandle
	Attachments []ImageHandle
	Width       uint32
	Height      uint32
}

// PipelineDesc describes a graphics pipeline.
type PipelineDesc struct {
	Label         string
	Source        string
	VertexEntry   string
	FragmentEntry string
	// Bindings is the reflected binding layout of the shader, excluding the push constant group.
	Bindings []BindingLayout
	// PushConstantSize is the size of the push constant block in bytes, zero for none.
	PushConstantSize uint32
	// Vertex is nil for pipelines that generate their own vertices, such as full-screen passes.
	Vertex     *VertexLayout
	RenderPass RenderPassHandle
	Samples    uint32
	Cull       CullMode
	FrontFace  FrontFace
	DepthTest  bool
	DepthWrite bool
	// DepthCompare defaults to CompareLessEqual when DepthTest is set.
	DepthCompare   CompareFunction
	Blend          BlendMode
	DepthBias      int32
	DepthBiasSlope float32
}

// ResourceSetDesc describes a resource set bound at one bind group of a pipeline.
type ResourceSetDesc struct {
	Label    string
	Pipeline PipelineHandle
	Group    uint32
	Bindings []BindingLayout
}

// ResourceWrite fills one binding of a resource set. Exactly one of Buffer, Image or Sampler is set.
type ResourceWrite struct {
	Binding uint32
	Buffer  BufferHandle
	Offset  uint64
	// Size of zero binds the whole buffer.
	Size    uint64
	Image   ImageHandle
	Sampler SamplerHandle
}

// SubmitInfo is one queue submission.
type SubmitInfo struct {
	Commands []Command
	// Wait semaphores must be signaled before the commands run. They are unsignaled by the submit.
	Wait []SemaphoreHandle
	// Signal semaphores are signaled when the commands complete.
	Signal []SemaphoreHandle
	// Fence is signaled when the commands complete. It must be unsignaled at submit time.
	Fence FenceHandle
}

// SurfaceCapabilities reports what the presentation surface supports.
type SurfaceCapabilities struct {
	Formats       []Format
	PresentModes  []PresentMode
	MinImageCount uint32
	// MaxImageCount of zero means no upper limit.
	MaxImageCount uint32
	CurrentExtent Extent
}

// SurfaceConfig is the chosen presentation configuration.
type SurfaceConfig struct {
	Width       uint32
	Height      uint32
	Format      Format
	PresentMode PresentMode
	ImageCount  uint32
}

// Normalize fills defaulted fields: one sample, one mip, one layer, six layers for cubes.
//
// Returns:
//   - ImageDesc: the normalized copy
func (d ImageDesc) Normalize() ImageDesc {
	if d.Samples == 0 {
		d.Samples = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.Cube {
		d.Layers = 6
	} else if d.Layers == 0 {
		d.Layers = 1
	}
	return d
}

// Validate checks the structural rules of an image description.
//
// Returns:
//   - error: wraps ErrInvalidDescriptor when a rule is broken
func (d ImageDesc) Validate() error {
	switch {
	case d.Width == 0 || d.Height == 0:
		return fmt.Errorf("%w: image %q has zero size %dx%d", ErrInvalidDescriptor, d.Label, d.Width, d.Height)
	case d.Format == FormatUndefined:
		return fmt.Errorf("%w: image %q has no format", ErrInvalidDescriptor, d.Label)
	case d.Cube && d.Width != d.Height:
		return fmt.Errorf("%w: cube image %q is not square", ErrInvalidDescriptor, d.Label)
	case d.Samples > 1 && d.MipLevels > 1:
		return fmt.Errorf("%w: multisampled image %q cannot have mips", ErrInvalidDescriptor, d.Label)
	}
	return nil
}

// Validate checks that every subpass reference points at an attachment of the right kind.
//
// Returns:
//   - error: wraps ErrInvalidDescriptor when a rule is broken
func (d RenderPassDesc) Validate() error {
	n := uint32(len(d.Attachments))
	if n == 0 {
		return fmt.Errorf("%w: render pass %q has no attachments", ErrInvalidDescriptor, d.Label)
	}
	for _, idx := range d.Subpass.Color {
		if idx >= n {
			return fmt.Errorf("%w: render pass %q color reference %d out of range", ErrInvalidDescriptor, d.Label, idx)
		}
		if d.Attachments[idx].Format.IsDepth() {
			return fmt.Errorf("%w: render pass %q uses depth attachment %d as color", ErrInvalidDescriptor, d.Label, idx)
		}
	}
	if len(d.Subpass.Resolve) > len(d.Subpass.Color) {
		return fmt.Errorf("%w: render pass %q has more resolve than color references", ErrInvalidDescriptor, d.Label)
	}
	for k, idx := range d.Subpass.Resolve {
		if idx == AttachmentUnused {
			continue
		}
		if idx >= n {
			return fmt.Errorf("%w: render pass %q resolve reference %d out of range", ErrInvalidDescriptor, d.Label, idx)
		}
		if d.Attachments[d.Subpass.Color[k]].Samples <= 1 {
			return fmt.Errorf("%w: render pass %q resolves single-sampled attachment %d", ErrInvalidDescriptor, d.Label, d.Subpass.Color[k])
		}
	}
	if d.Subpass.Depth != AttachmentUnused {
		if d.Subpass.Depth >= n {
			return fmt.Errorf("%w: render pass %q depth reference %d out of range", ErrInvalidDescriptor, d.Label, d.Subpass.Depth)
		}
		if !d.Attachments[d.Subpass.Depth].Format.IsDepth() {
			return fmt.Errorf("%w: render pass %q depth reference %d is not a depth format", ErrInvalidDescriptor, d.Label, d.Subpass.Depth)
		}
	}
	return nil
}

// Validate checks the structural rules of a pipeline description.
//
// Returns:
//   - error: wraps ErrInvalidDescriptor when a rule is broken
func (d PipelineDesc) Validate() error {
	switch {
	case d.Source == "":
		return fmt.Errorf("%w: pipeline %q has no shader source", ErrInvalidDescriptor, d.Label)
	case d.VertexEntry == "":
		return fmt.Errorf("%w: pipeline %q has no vertex entry point", ErrInvalidDescriptor, d.Label)
	case d.PushConstantSize > MaxPushConstantSize:
		return fmt.Errorf("%w: pipeline %q push constants are %d bytes, limit is %d", ErrInvalidDescriptor, d.Label, d.PushConstantSize, MaxPushConstantSize)
	}
	for _, b := range d.Bindings {
		if b.Group == PushConstantGroup {
			return fmt.Errorf("%w: pipeline %q declares binding %d in reserved group %d", ErrInvalidDescriptor, d.Label, b.Binding, PushConstantGroup)
		}
	}
	return nil
}

// Declares reports whether the set declares the binding and returns its layout.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - BindingLayout: the declared layout
//   - bool: false if the binding is not part of the set
func (d ResourceSetDesc) Declares(binding uint32) (BindingLayout, bool) {
	for _, b := range d.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return BindingLayout{}, false
}
