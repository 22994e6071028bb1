package pipeline

import (
	"fmt"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/command_recorder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
)

// pipeline is the implementation of the Pipeline interface.
// It holds the device pipeline together with the shader and render target it was built against.
type pipeline struct {
	mu *sync.Mutex

	dev    device.Device
	key    string
	target render_target.RenderTarget
	shader shader.Shader

	handle device.PipelineHandle
	desc   device.PipelineDesc

	// The following properties are used to configure the pipeline during creation and can be set with the builder options.

	depthTestEnabled    bool
	depthWriteEnabled   bool
	depthCompare        device.CompareFunction
	depthBias           int32
	depthBiasSlopeScale float32
	blend               device.BlendMode
	cullMode            device.CullMode
	frontFace           device.FrontFace
	vertexInput         bool
}

// Pipeline is one pass object: a shader bound to a render target with its fixed-function state
// and push constant range. Resource sets for the pipeline are built from LayoutFor.
type Pipeline interface {
	// Label returns the pipeline key, used in diagnostics and MissingBinding errors.
	Label() string

	// Handle returns the device pipeline.
	//
	// Returns:
	//   - device.PipelineHandle: the pipeline, invalid after Release
	Handle() device.PipelineHandle

	// Shader returns the shader the pipeline runs.
	Shader() shader.Shader

	// Target returns the render target the pipeline draws into.
	Target() render_target.RenderTarget

	// Bindings returns every shader-declared binding outside the push constant group.
	//
	// Returns:
	//   - []device.BindingLayout: the reflected bindings
	Bindings() []device.BindingLayout

	// PushConstantSize returns the size of the push constant block in bytes.
	PushConstantSize() uint32

	// LayoutFor returns the binder layout of one bind group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - resource_binder.Layout: the layout to create a resource binder from
	LayoutFor(group uint32) resource_binder.Layout

	// Desc returns the device description the pipeline was created from.
	Desc() device.PipelineDesc

	// Release destroys the device pipeline. The shader and target are not touched.
	Release()
}

var (
	_ Pipeline                  = &pipeline{}
	_ command_recorder.Pipeline = &pipeline{}
)

// New creates a pipeline drawing into target. A shader must be provided with WithShader.
// Fixed-function state defaults to back-face culling, counter-clockwise front faces,
// LessOrEqual depth testing with writes, and no blending. Depth state is ignored for targets
// without a depth attachment.
//
// Parameters:
//   - dev: the device context
//   - key: the unique key for this pipeline
//   - target: the render target the pipeline draws into
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: the pipeline
//   - error: wraps device.ErrResourceCreation when the pipeline could not be created
func New(dev device.Device, key string, target render_target.RenderTarget, opts ...PipelineBuilderOption) (Pipeline, error) {
	p := &pipeline{
		mu:                &sync.Mutex{},
		dev:               dev,
		key:               key,
		target:            target,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		depthCompare:      device.CompareLessEqual,
		blend:             device.BlendNone,
		cullMode:          device.CullBack,
		frontFace:         device.FrontFaceCCW,
		vertexInput:       true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.shader == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no shader", device.ErrResourceCreation, key)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: pipeline %q has no render target", device.ErrResourceCreation, key)
	}
	if !hasDepth(target.Descriptor()) {
		p.depthTestEnabled = false
		p.depthWriteEnabled = false
	}

	p.desc = device.PipelineDesc{
		Label:            key,
		Source:           p.shader.Source(),
		VertexEntry:      p.shader.VertexEntry(),
		FragmentEntry:    p.shader.FragmentEntry(),
		Bindings:         p.shader.Bindings(),
		PushConstantSize: p.shader.PushConstantSize(),
		RenderPass:       target.Handle(),
		Samples:          target.Samples(),
		Cull:             p.cullMode,
		FrontFace:        p.frontFace,
		DepthTest:        p.depthTestEnabled,
		DepthWrite:       p.depthWriteEnabled,
		Blend:            p.blend,
		DepthBias:        p.depthBias,
		DepthBiasSlope:   p.depthBiasSlopeScale,
	}
	if p.depthTestEnabled {
		p.desc.DepthCompare = p.depthCompare
	}
	if p.vertexInput {
		p.desc.Vertex = p.shader.VertexLayout()
	}

	h, err := dev.CreatePipeline(p.desc)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline %q: %w", device.ErrResourceCreation, key, err)
	}
	p.handle = h
	common.Logger().Debug("pipeline built", "key", key, "target", target.Label(), "bindings", len(p.desc.Bindings), "push", p.desc.PushConstantSize)
	return p, nil
}

func hasDepth(desc render_target.Descriptor) bool {
	for _, e := range desc.Entries {
		if e.Role == device.RoleDepth {
			return true
		}
	}
	return false
}

func (p *pipeline) Label() string {
	return p.key
}

func (p *pipeline) Handle() device.PipelineHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) Target() render_target.RenderTarget {
	return p.target
}

func (p *pipeline) Bindings() []device.BindingLayout {
	return p.desc.Bindings
}

func (p *pipeline) PushConstantSize() uint32 {
	return p.desc.PushConstantSize
}

func (p *pipeline) LayoutFor(group uint32) resource_binder.Layout {
	return resource_binder.Layout{
		Pipeline:      p.Handle(),
		PipelineLabel: p.key,
		Group:         group,
		Bindings:      p.shader.Group(group),
	}
}

func (p *pipeline) Desc() device.PipelineDesc {
	return p.desc
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle.Valid() {
		p.dev.DestroyPipeline(p.handle)
		p.handle = device.PipelineHandle{}
	}
}
