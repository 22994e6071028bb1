package device

import (
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

var wgpuFormats = map[Format]wgpu.TextureFormat{
	FormatR8Unorm:        wgpu.TextureFormatR8Unorm,
	FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	FormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	FormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	FormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	FormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	FormatDepth24Plus:    wgpu.TextureFormatDepth24Plus,
	FormatDepth32Float:   wgpu.TextureFormatDepth32Float,
}

// orDefault returns v, or fallback when v is the zero value. Descriptor fields left at zero take
// the backend default this way.
func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func toWGPUFormat(f Format) wgpu.TextureFormat {
	if tf, ok := wgpuFormats[f]; ok {
		return tf
	}
	return wgpu.TextureFormatUndefined
}

func fromWGPUFormat(tf wgpu.TextureFormat) (Format, bool) {
	for f, w := range wgpuFormats {
		if w == tf {
			return f, true
		}
	}
	return FormatUndefined, false
}

func toWGPUPresentMode(m PresentMode) wgpu.PresentMode {
	switch m {
	case PresentModeMailbox:
		return wgpu.PresentModeMailbox
	case PresentModeImmediate:
		return wgpu.PresentModeImmediate
	default:
		return wgpu.PresentModeFifo
	}
}

func fromWGPUPresentMode(m wgpu.PresentMode) (PresentMode, bool) {
	switch m {
	case wgpu.PresentModeFifo:
		return PresentModeFifo, true
	case wgpu.PresentModeMailbox:
		return PresentModeMailbox, true
	case wgpu.PresentModeImmediate:
		return PresentModeImmediate, true
	}
	return 0, false
}

func toWGPUTextureUsage(u ImageUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&ImageUsageRenderAttachment != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&ImageUsageSampled != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&ImageUsageTransferDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func toWGPUBufferUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	// Every buffer is written through the queue.
	return out | wgpu.BufferUsageCopyDst
}

func toWGPUStages(s ShaderStage) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&StageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&StageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	return out
}

func toWGPUCompare(c CompareFunction) wgpu.CompareFunction {
	switch c {
	case CompareLess:
		return wgpu.CompareFunctionLess
	case CompareLessEqual:
		return wgpu.CompareFunctionLessEqual
	case CompareEqual:
		return wgpu.CompareFunctionEqual
	case CompareGreater:
		return wgpu.CompareFunctionGreater
	case CompareAlways:
		return wgpu.CompareFunctionAlways
	}
	return wgpu.CompareFunctionUndefined
}

func toWGPUCullMode(c CullMode) wgpu.CullMode {
	switch c {
	case CullFront:
		return wgpu.CullModeFront
	case CullNone:
		return wgpu.CullModeNone
	}
	return wgpu.CullModeBack
}

func toWGPUFrontFace(f FrontFace) wgpu.FrontFace {
	if f == FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func toWGPUBlend(b BlendMode) *wgpu.BlendState {
	switch b {
	case BlendAlpha:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	case BlendAdditive:
		add := wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		}
		return &wgpu.BlendState{Color: add, Alpha: add}
	}
	return nil
}

func toWGPUVertexFormat(f VertexFormat) wgpu.VertexFormat {
	switch f {
	case VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case VertexFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4
	case VertexUint32:
		return wgpu.VertexFormatUint32
	}
	return wgpu.VertexFormatFloat32
}

func toWGPUVertexLayouts(v *VertexLayout) []wgpu.VertexBufferLayout {
	if v == nil || len(v.Attributes) == 0 {
		return nil
	}
	attrs := make([]wgpu.VertexAttribute, 0, len(v.Attributes))
	for _, a := range v.Attributes {
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         toWGPUVertexFormat(a.Format),
			Offset:         a.Offset,
			ShaderLocation: a.Location,
		})
	}
	return []wgpu.VertexBufferLayout{{
		ArrayStride: v.Stride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}

func toWGPULoadOp(o LoadOp) wgpu.LoadOp {
	if o == LoadOpLoad {
		return wgpu.LoadOpLoad
	}
	// WebGPU has no don't-care load, clearing is the cheapest defined choice.
	return wgpu.LoadOpClear
}

func toWGPUStoreOp(o StoreOp) wgpu.StoreOp {
	if o == StoreOpStore {
		return wgpu.StoreOpStore
	}
	return wgpu.StoreOpDiscard
}

// toWGPULayoutEntry converts a reflected binding into a bind group layout entry.
func toWGPULayoutEntry(b BindingLayout) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    b.Binding,
		Visibility: toWGPUStages(b.Stages),
	}
	switch b.Kind {
	case BindingUniformBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = b.Size
	case BindingStorageBuffer:
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		entry.Buffer.MinBindingSize = b.Size
	case BindingTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
	case BindingDepthTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
	case BindingCubeTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = wgpu.TextureViewDimensionCube
	case BindingSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case BindingComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	}
	return entry
}

// groupBindings splits a flat binding list by group, sorted by binding within each group.
func groupBindings(bindings []BindingLayout) map[uint32][]BindingLayout {
	groups := make(map[uint32][]BindingLayout)
	for _, b := range bindings {
		groups[b.Group] = append(groups[b.Group], b)
	}
	for g := range groups {
		sort.Slice(groups[g], func(i, j int) bool {
			return groups[g][i].Binding < groups[g][j].Binding
		})
	}
	return groups
}
