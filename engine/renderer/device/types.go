package device

// Format identifies the pixel format of an image.
type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA16Float
	FormatDepth24Plus
	FormatDepth32Float
)

var formatNames = map[Format]string{
	FormatUndefined:      "undefined",
	FormatR8Unorm:        "r8unorm",
	FormatRGBA8Unorm:     "rgba8unorm",
	FormatRGBA8UnormSrgb: "rgba8unorm-srgb",
	FormatBGRA8Unorm:     "bgra8unorm",
	FormatBGRA8UnormSrgb: "bgra8unorm-srgb",
	FormatRGBA16Float:    "rgba16float",
	FormatDepth24Plus:    "depth24plus",
	FormatDepth32Float:   "depth32float",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "unknown"
}

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth24Plus || f == FormatDepth32Float
}

// BytesPerPixel returns the texel size used for uploads. Depth formats report 4.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRGBA16Float:
		return 8
	case FormatUndefined:
		return 0
	default:
		return 4
	}
}

// Layout is the access state an image is in between passes. The WebGPU backend tracks
// transitions itself, so layouts are bookkeeping that the renderer validates.
type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderReadOnly
	LayoutPresentSrc
	LayoutTransferDst
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthAttachment:
		return "depth-attachment"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutPresentSrc:
		return "present-src"
	case LayoutTransferDst:
		return "transfer-dst"
	}
	return "unknown"
}

// LoadOp selects what happens to an attachment's contents when a render target begins.
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

func (o LoadOp) String() string {
	switch o {
	case LoadOpLoad:
		return "load"
	case LoadOpClear:
		return "clear"
	}
	return "dont-care"
}

// StoreOp selects whether an attachment's contents survive the end of a render target.
type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

func (o StoreOp) String() string {
	if o == StoreOpStore {
		return "store"
	}
	return "dont-care"
}

// AttachmentRole is the part an image plays inside a render target.
type AttachmentRole int

const (
	RoleColor AttachmentRole = iota
	RoleDepth
	RoleResolve
	RolePresent
)

func (r AttachmentRole) String() string {
	switch r {
	case RoleColor:
		return "color"
	case RoleDepth:
		return "depth"
	case RoleResolve:
		return "resolve"
	case RolePresent:
		return "present"
	}
	return "unknown"
}

// ImageUsage is a bit set of the ways an image may be used.
type ImageUsage uint32

const (
	ImageUsageRenderAttachment ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsageTransferDst
	ImageUsagePresent
)

// BufferUsage is a bit set of the ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferDst
)

// ShaderStage is a bit set of shader stages a binding is visible to.
type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
)

// BindingKind is the resource type a shader binding slot expects.
type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingTexture
	BindingDepthTexture
	BindingCubeTexture
	BindingSampler
	BindingComparisonSampler
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "uniform-buffer"
	case BindingStorageBuffer:
		return "storage-buffer"
	case BindingTexture:
		return "texture"
	case BindingDepthTexture:
		return "depth-texture"
	case BindingCubeTexture:
		return "cube-texture"
	case BindingSampler:
		return "sampler"
	case BindingComparisonSampler:
		return "comparison-sampler"
	}
	return "unknown"
}

// IsBuffer reports whether the binding expects a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingUniformBuffer || k == BindingStorageBuffer
}

// IsImage reports whether the binding expects an image view.
func (k BindingKind) IsImage() bool {
	return k == BindingTexture || k == BindingDepthTexture || k == BindingCubeTexture
}

// IsSampler reports whether the binding expects a sampler.
func (k BindingKind) IsSampler() bool {
	return k == BindingSampler || k == BindingComparisonSampler
}

// BindingLayout describes one shader-declared binding slot.
type BindingLayout struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Stages  ShaderStage
	// Name is the WGSL variable name, kept for diagnostics.
	Name string
	// Size is the minimum buffer size in bytes for buffer bindings.
	Size uint64
}

// PresentMode selects how presented images reach the display.
type PresentMode int

const (
	PresentModeFifo PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFifo:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	}
	return "unknown"
}

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// FrontFace selects the winding considered front-facing.
type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

// CompareFunction is used by depth tests and comparison samplers.
type CompareFunction int

const (
	CompareUndefined CompareFunction = iota
	CompareLess
	CompareLessEqual
	CompareEqual
	CompareGreater
	CompareAlways
)

// BlendMode selects a color blend preset.
type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
)

// FilterMode selects texture filtering.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterNearest
)

// AddressMode selects how out-of-range texture coordinates are handled.
type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
)

// VertexFormat is the data type of a single vertex attribute.
type VertexFormat int

const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexFloat32x4
	VertexUint32
)

// Size returns the byte size of the format.
func (f VertexFormat) Size() uint64 {
	switch f {
	case VertexFloat32x2:
		return 8
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4:
		return 16
	}
	return 4
}

// VertexAttribute is a single attribute inside a vertex buffer.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint64
}

// VertexLayout describes the interleaved layout of vertex buffer 0.
type VertexLayout struct {
	Stride     uint64
	Attributes []VertexAttribute
}

// Extent is a 2D size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Rect is a 2D region in pixels.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Viewport maps normalized device coordinates to framebuffer pixels.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// ClearValue holds the clear color or depth for one attachment.
type ClearValue struct {
	Color [4]float32
	Depth float32
}

// PipelineStage is a bit set of pipeline stages used in subpass dependencies.
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageBottomOfPipe
)

// Access is a bit set of memory access kinds used in subpass dependencies.
type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthAttachmentRead
	AccessDepthAttachmentWrite
)

// SubpassExternal refers to work outside the render target in a SubpassDependency.
const SubpassExternal = ^uint32(0)

// PushConstantGroup is the bind group index reserved for push constant emulation.
// Shaders that use push constants declare their block at this group, binding 0.
const PushConstantGroup = 3

// MaxPushConstantSize is the largest push constant block a pipeline may declare.
const MaxPushConstantSize = 128
