package renderer

import (
	"context"
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/pipeline"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_graph"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
)

// Pass names, in the order a frame records them.
const (
	PassDepth       = "depth-prepass"
	PassSSAO        = "ssao"
	PassShadow      = "shadow"
	PassForward     = "forward"
	PassSkyBox      = "skybox"
	PassBloom       = "bloom"
	PassToneMapping = "tonemap"
	PassFinal       = "final"
)

// Shader names, each loaded from <name>.wgsl.
const (
	ShaderDepth   = "depth"
	ShaderSSAO    = "ssao"
	ShaderShadow  = "shadow"
	ShaderForward = "forward"
	ShaderSkyBox  = "skybox"
	ShaderBloom   = "bloom"
	ShaderTonemap = "tonemap"
	ShaderFinal   = "final"
)

// ShaderNames lists every shader the renderer loads.
var ShaderNames = []string{
	ShaderDepth, ShaderSSAO, ShaderShadow, ShaderForward,
	ShaderSkyBox, ShaderBloom, ShaderTonemap, ShaderFinal,
}

// Group 0 binding indices of the pass shaders. Every pass but final reads the frame uniforms at 0.
const (
	bindingFrame = 0

	bindingSSAODepth  = 1
	bindingSSAOKernel = 2

	bindingForwardShadow = 1
	bindingForwardSSAO   = 3

	bindingSkyCube = 1

	bindingTonemapHDR   = 1
	bindingTonemapBloom = 3

	bindingFinalLDR = 0
)

// MaterialGroup is the bind group of the forward pass that materials fill.
const MaterialGroup = 1

// buildTargets creates one render target per pass that draws. The bloom chain owns its own.
func (r *renderer) buildTargets() error {
	descs := []render_target.Descriptor{
		prepassDescriptor(r.images),
		ssaoDescriptor(r.images),
		shadowDescriptor(r.shadowMap),
		forwardDescriptor(r.images, r.settings.ClearColor),
		skyDescriptor(r.images),
		tonemapDescriptor(r.images),
		finalDescriptor(r.sc.Images()),
	}
	for _, desc := range descs {
		rt, err := render_target.Build(r.dev, desc, r.slots)
		if err != nil {
			return fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
		}
		r.targets[desc.Label] = rt
	}
	return nil
}

// buildPipelines creates the pass pipelines against the targets they draw into.
func (r *renderer) buildPipelines(shaders map[string]shader.Shader) error {
	fullScreen := []pipeline.PipelineBuilderOption{pipeline.WithoutVertexInput(), pipeline.WithCullMode(device.CullNone)}
	defs := []struct {
		pass   string
		shader string
		opts   []pipeline.PipelineBuilderOption
	}{
		{PassDepth, ShaderDepth, nil},
		{PassSSAO, ShaderSSAO, fullScreen},
		{PassShadow, ShaderShadow, []pipeline.PipelineBuilderOption{
			pipeline.WithDepthBias(2, 2.0), pipeline.WithCullMode(device.CullFront)}},
		{PassForward, ShaderForward, nil},
		{PassSkyBox, ShaderSkyBox, append([]pipeline.PipelineBuilderOption{
			pipeline.WithDepthWriteEnabled(false), pipeline.WithDepthCompare(device.CompareLessEqual)}, fullScreen...)},
		{PassToneMapping, ShaderTonemap, fullScreen},
		{PassFinal, ShaderFinal, fullScreen},
	}
	for _, def := range defs {
		sh, ok := shaders[def.shader]
		if !ok {
			return fmt.Errorf("%w: shader %q was not loaded", device.ErrResourceCreation, def.shader)
		}
		opts := append([]pipeline.PipelineBuilderOption{pipeline.WithShader(sh)}, def.opts...)
		p, err := pipeline.New(r.dev, def.pass, r.targets[def.pass], opts...)
		if err != nil {
			return err
		}
		r.pipelines[def.pass] = p
	}
	return nil
}

// buildBinders creates the group 0 binder of every pipeline and binds what does not depend on the surface size.
func (r *renderer) buildBinders() error {
	for name, p := range r.pipelines {
		b, err := resource_binder.New(r.dev, name, p.LayoutFor(0), r.slots)
		if err != nil {
			return err
		}
		r.binders[name] = b
		if _, ok := b.Layout().Binding(bindingFrame); ok && name != PassFinal {
			if err := b.BindUniformBuffer(r.frameBuffers, bindingFrame); err != nil {
				return err
			}
		}
	}
	if err := r.binders[PassSSAO].BindUniformBuffer([]device.BufferHandle{r.kernelBuffer}, bindingSSAOKernel); err != nil {
		return err
	}
	if err := r.binders[PassForward].BindImage(r.shadowMap.Handle(), r.shadowSampler, bindingForwardShadow); err != nil {
		return err
	}
	if err := r.binders[PassSkyBox].BindImage(r.sky.Handle(), r.linearSampler, bindingSkyCube); err != nil {
		return err
	}
	return r.bindSized()
}

// bindSized points the binders at the surface-sized images. It runs again after every resize.
func (r *renderer) bindSized() error {
	binds := []struct {
		pass    string
		image   device.ImageHandle
		sampler device.SamplerHandle
		binding uint32
	}{
		{PassSSAO, r.images.depth.Handle(), device.SamplerHandle{}, bindingSSAODepth},
		{PassForward, r.images.ssao.Handle(), r.linearSampler, bindingForwardSSAO},
		{PassToneMapping, r.images.hdr.Handle(), r.linearSampler, bindingTonemapHDR},
		{PassToneMapping, r.bloom.Output().Handle(), r.linearSampler, bindingTonemapBloom},
		{PassFinal, r.images.ldr.Handle(), r.linearSampler, bindingFinalLDR},
	}
	for _, b := range binds {
		if err := r.binders[b.pass].BindImage(b.image, b.sampler, b.binding); err != nil {
			return err
		}
	}
	for name, b := range r.binders {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("pass %q: %w", name, err)
		}
	}
	return nil
}

// buildGraph registers the frame's resources and passes and compiles the graph once.
func (r *renderer) buildGraph() error {
	resources := []struct {
		name     string
		external bool
	}{
		{ResourceDepth, false},
		{ResourceSSAO, false},
		{ResourceShadowMap, false},
		{ResourceHDR, false},
		{ResourceForwardDepth, false},
		{ResourceLDR, false},
		{ResourceBloom, true},
		{ResourceSky, true},
	}
	images := r.graphImages()
	if r.images.hdrMSAA != nil {
		resources = append(resources, struct {
			name     string
			external bool
		}{ResourceHDRMultisample, false})
	}
	for _, res := range resources {
		if _, err := r.graph.AddResource(res.name, images[res.name], res.external); err != nil {
			return err
		}
	}

	scene := []string{ResourceHDR, ResourceForwardDepth}
	if r.images.hdrMSAA != nil {
		scene = append(scene, ResourceHDRMultisample)
	}
	passes := []render_graph.Pass{
		{
			Name:    PassDepth,
			Writes:  []string{ResourceDepth},
			Targets: r.targetsOf(PassDepth),
			Record:  func(context.Context) error { return r.recordGeometry(PassDepth, r.visible) },
		},
		{
			Name:    PassSSAO,
			Reads:   []string{ResourceDepth},
			Writes:  []string{ResourceSSAO},
			Targets: r.targetsOf(PassSSAO),
			Enabled: func() bool { return r.settings.SSAO },
			Record:  func(context.Context) error { return r.recordFullScreen(PassSSAO) },
		},
		{
			Name:    PassShadow,
			Writes:  []string{ResourceShadowMap},
			Targets: r.targetsOf(PassShadow),
			Enabled: func() bool { return r.settings.Shadow },
			Record:  func(context.Context) error { return r.recordGeometry(PassShadow, r.casters) },
		},
		{
			Name:    PassForward,
			Reads:   []string{ResourceSSAO, ResourceShadowMap},
			Writes:  scene,
			Targets: r.targetsOf(PassForward),
			Record:  func(context.Context) error { return r.recordGeometry(PassForward, r.visible) },
		},
		{
			Name:    PassSkyBox,
			Reads:   []string{ResourceSky},
			Writes:  scene,
			Targets: r.targetsOf(PassSkyBox),
			Enabled: func() bool { return r.settings.SkyBox },
			Record:  func(context.Context) error { return r.recordFullScreen(PassSkyBox) },
		},
		{
			Name:    PassBloom,
			Reads:   []string{ResourceHDR},
			Writes:  []string{ResourceBloom},
			Enabled: func() bool { return r.settings.Bloom },
			Record:  func(context.Context) error { return r.bloom.Record(r.rec, r.slot.Index()) },
		},
		{
			Name:    PassToneMapping,
			Reads:   []string{ResourceHDR, ResourceBloom},
			Writes:  []string{ResourceLDR},
			Targets: r.targetsOf(PassToneMapping),
			Record:  func(context.Context) error { return r.recordFullScreen(PassToneMapping) },
		},
		{
			Name:    PassFinal,
			Reads:   []string{ResourceLDR},
			Targets: r.targetsOf(PassFinal),
			Record:  func(context.Context) error { return r.recordFullScreen(PassFinal) },
		},
	}
	for _, p := range passes {
		if err := r.graph.AddPass(p); err != nil {
			return err
		}
	}
	return r.graph.Compile()
}

func (r *renderer) targetsOf(pass string) []render_target.RenderTarget {
	return []render_target.RenderTarget{r.targets[pass]}
}

func (r *renderer) graphImages() map[string]attachment.Attachment {
	images := map[string]attachment.Attachment{
		ResourceShadowMap: r.shadowMap,
		ResourceBloom:     r.bloom.Output(),
		ResourceSky:       r.sky,
	}
	r.images.each(func(name string, a attachment.Attachment) { images[name] = a })
	return images
}

// beginTarget begins the framebuffer of rt that belongs to the current slot, or to the acquired
// image for the present target.
func (r *renderer) beginTarget(rt render_target.RenderTarget) error {
	fb, err := rt.Framebuffer(r.slot.Index(), r.imageIndex)
	if err != nil {
		return err
	}
	ext, _ := rt.FramebufferExtent(fb)
	return r.rec.BeginRenderTarget(rt, fb, ext.Width, ext.Height)
}

// recordGeometry draws items with the pass pipeline. The forward pass also binds each item's material.
func (r *renderer) recordGeometry(pass string, items []DrawItem) error {
	if err := r.beginTarget(r.targets[pass]); err != nil {
		return err
	}
	if err := r.rec.BindPipeline(r.pipelines[pass]); err != nil {
		return err
	}
	if err := r.rec.BindResourceSet(r.binders[pass]); err != nil {
		return err
	}
	slot := r.slot.Index()
	for _, it := range items {
		if pass == PassForward {
			m := it.Material
			if m == nil {
				m = r.defaultMaterial
			}
			if err := m.Sync(slot); err != nil {
				return err
			}
			if err := r.rec.BindResourceSet(m.Binder()); err != nil {
				return err
			}
		}
		if err := r.rec.PushConstants(common.SliceToBytes(it.Model[:])); err != nil {
			return err
		}
		if err := r.rec.BindVertexAndIndexBuffers(it.Mesh.Vertex, it.Mesh.Index); err != nil {
			return err
		}
		if err := r.rec.DrawIndexed(it.Mesh.IndexCount, 1); err != nil {
			return err
		}
	}
	return r.rec.EndRenderTarget()
}

// recordFullScreen draws one full-screen triangle with the pass pipeline.
func (r *renderer) recordFullScreen(pass string) error {
	if err := r.beginTarget(r.targets[pass]); err != nil {
		return err
	}
	if err := r.rec.BindPipeline(r.pipelines[pass]); err != nil {
		return err
	}
	if err := r.rec.BindResourceSet(r.binders[pass]); err != nil {
		return err
	}
	if err := r.rec.DrawFullScreenTriangle(); err != nil {
		return err
	}
	return r.rec.EndRenderTarget()
}

// resizeSized swaps in images of the new surface size and rebuilds everything that refers to them.
// The device is idle when this runs. On failure the new images are released and the renderer
// must be released.
func (r *renderer) resizeSized(images sizedImages) error {
	old := r.images
	r.images = images
	fail := func(err error) error {
		r.images = old
		images.release()
		return err
	}
	rebuilds := []render_target.Descriptor{
		prepassDescriptor(images),
		ssaoDescriptor(images),
		forwardDescriptor(images, r.settings.ClearColor),
		skyDescriptor(images),
		tonemapDescriptor(images),
	}
	for _, desc := range rebuilds {
		if err := r.targets[desc.Label].Rebuild(desc); err != nil {
			return fail(fmt.Errorf("%w: %w", device.ErrResourceCreation, err))
		}
	}
	if err := r.bloom.Resize(images.hdr); err != nil {
		return fail(err)
	}
	if err := r.bindSized(); err != nil {
		return fail(err)
	}
	var err error
	images.each(func(name string, a attachment.Attachment) {
		if err == nil {
			err = r.graph.ReplaceResource(name, a)
		}
	})
	if err != nil {
		return err
	}
	return r.graph.ReplaceResource(ResourceBloom, r.bloom.Output())
}
