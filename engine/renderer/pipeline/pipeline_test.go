package pipeline

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const litSource = `struct Frame { view_proj: mat4x4f, }
struct Push { model: mat4x4f, }
struct VertexInput {
    @location(0) position: vec3f,
    @location(1) uv: vec2f,
}
@group(0) @binding(0) var<uniform> frame: Frame;
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var albedoSampler: sampler;
@group(3) @binding(0) var<uniform> push: Push;

@vertex
fn vs_main(in: VertexInput) -> @builtin(position) vec4f {
    return frame.view_proj * push.model * vec4f(in.position, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return vec4f(1.0);
}
`

const blitSource = `@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var srcSampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4f {
    return vec4f(0.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return vec4f(1.0);
}
`

func loadShader(t *testing.T, name string) shader.Shader {
	t.Helper()
	lib := shader.NewLibrary(fstest.MapFS{
		"lit.wgsl":  {Data: []byte(litSource)},
		"blit.wgsl": {Data: []byte(blitSource)},
	}, shader.WithCompiler(func(string) ([]byte, error) { return []byte{1, 2, 3, 4}, nil }))
	s, err := lib.Load(name)
	require.NoError(t, err)
	return s
}

func buildTarget(t *testing.T, dev device.Device, withDepth bool) render_target.RenderTarget {
	t.Helper()
	color, err := attachment.New(dev, attachment.KindColor, 32, 32, attachment.WithLabel("hdr"), attachment.WithFormat(device.FormatRGBA16Float))
	require.NoError(t, err)
	entries := []render_target.Entry{{Attachment: color, Role: device.RoleColor, Sampled: true}}
	if withDepth {
		depth, err := attachment.New(dev, attachment.KindDepth, 32, 32, attachment.WithLabel("depth"))
		require.NoError(t, err)
		entries = append(entries, render_target.Entry{Attachment: depth, Role: device.RoleDepth})
	}
	desc := render_target.NewDescriptor(true, entries...)
	desc.Label = "forward"
	rt, err := render_target.Build(dev, desc, 2)
	require.NoError(t, err)
	return rt
}

func TestNewDefaults(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, true)
	p, err := New(dev, "forward", rt, WithShader(loadShader(t, "lit")))
	require.NoError(t, err)

	desc, ok := dev.Pipeline(p.Handle())
	require.True(t, ok)
	assert.Equal(t, rt.Handle(), desc.RenderPass)
	assert.Equal(t, device.CullBack, desc.Cull)
	assert.Equal(t, device.FrontFaceCCW, desc.FrontFace)
	assert.True(t, desc.DepthTest)
	assert.True(t, desc.DepthWrite)
	assert.Equal(t, device.CompareLessEqual, desc.DepthCompare)
	assert.Equal(t, device.BlendNone, desc.Blend)
	assert.Equal(t, uint32(64), desc.PushConstantSize)
	require.NotNil(t, desc.Vertex)
	assert.Equal(t, uint64(20), desc.Vertex.Stride)
	assert.Equal(t, "vs_main", desc.VertexEntry)
	assert.Equal(t, "fs_main", desc.FragmentEntry)

	assert.Len(t, p.Bindings(), 3)
	assert.Equal(t, uint32(64), p.PushConstantSize())
	assert.Equal(t, "forward", p.Label())
	assert.Same(t, rt, p.Target())
}

func TestNewOptions(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, true)
	p, err := New(dev, "shadow", rt,
		WithShader(loadShader(t, "lit")),
		WithCullMode(device.CullFront),
		WithFrontFace(device.FrontFaceCW),
		WithDepthCompare(device.CompareLess),
		WithDepthWriteEnabled(false),
		WithDepthBias(4, 1.5),
		WithBlendMode(device.BlendAdditive),
	)
	require.NoError(t, err)
	desc := p.Desc()
	assert.Equal(t, device.CullFront, desc.Cull)
	assert.Equal(t, device.FrontFaceCW, desc.FrontFace)
	assert.Equal(t, device.CompareLess, desc.DepthCompare)
	assert.False(t, desc.DepthWrite)
	assert.Equal(t, int32(4), desc.DepthBias)
	assert.Equal(t, float32(1.5), desc.DepthBiasSlope)
	assert.Equal(t, device.BlendAdditive, desc.Blend)
}

func TestFullScreenWithoutDepth(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, false)
	p, err := New(dev, "blit", rt, WithShader(loadShader(t, "blit")), WithoutVertexInput())
	require.NoError(t, err)
	desc := p.Desc()
	assert.Nil(t, desc.Vertex)
	assert.False(t, desc.DepthTest, "targets without depth disable depth state")
	assert.False(t, desc.DepthWrite)
	assert.Equal(t, device.CompareUndefined, desc.DepthCompare)
	assert.Zero(t, p.PushConstantSize())
}

func TestLayoutForBuildsBinders(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, true)
	p, err := New(dev, "forward", rt, WithShader(loadShader(t, "lit")))
	require.NoError(t, err)

	layout := p.LayoutFor(1)
	assert.Equal(t, p.Handle(), layout.Pipeline)
	assert.Equal(t, "forward", layout.PipelineLabel)
	require.Len(t, layout.Bindings, 2)

	b, err := resource_binder.New(dev, "material", layout, 2)
	require.NoError(t, err)
	err = b.Validate()
	var missing *device.MissingBindingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "forward", missing.Pipeline)
	assert.Equal(t, uint32(1), missing.Group)
}

func TestNewErrors(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, true)

	_, err := New(dev, "none", rt)
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	_, err = New(dev, "no target", nil, WithShader(loadShader(t, "lit")))
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	boom := errors.New("out of memory")
	dev.FailCreate(devicetest.KindPipeline, boom)
	_, err = New(dev, "forward", rt, WithShader(loadShader(t, "lit")))
	assert.ErrorIs(t, err, device.ErrResourceCreation)
	assert.ErrorIs(t, err, boom)
}

func TestRelease(t *testing.T) {
	dev := devicetest.New()
	rt := buildTarget(t, dev, true)
	p, err := New(dev, "forward", rt, WithShader(loadShader(t, "lit")))
	require.NoError(t, err)
	assert.Equal(t, 1, dev.Live(devicetest.KindPipeline))
	p.Release()
	p.Release()
	assert.Equal(t, 0, dev.Live(devicetest.KindPipeline))
	assert.False(t, p.Handle().Valid())
	assert.Equal(t, 1, dev.Live(devicetest.KindRenderPass), "the target outlives its pipelines")
}
