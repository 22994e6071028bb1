package shader

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameChunk = `struct FrameUniforms {
    view_proj: mat4x4f,
    camera_pos: vec4f,
}
@group(0) @binding(0) var<uniform> frame: FrameUniforms;
`

const pushChunk = `struct PushConstants {
    model: mat4x4f,
}
@group(3) @binding(0) var<uniform> push: PushConstants;
`

const forwardSource = `//@renderer:include frame_uniforms
//@renderer:include push_model

struct MaterialProperties {
    roughness: f32,
    reflectance: f32,
}

struct VertexInput {
    @location(0) position: vec3f,
    @location(1) normal: vec3f,
    @location(2) uv: vec2f,
}

struct VertexOutput {
    @builtin(position) clip: vec4f,
    @location(0) uv: vec2f,
}

@group(1) @binding(0) var<uniform> material: MaterialProperties;
@group(1) @binding(1) var albedoTexture: texture_2d<f32>;
@group(1) @binding(2) var albedoSampler: sampler;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = frame.view_proj * push.model * vec4f(in.position, 1.0);
    out.uv = in.uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    return textureSample(albedoTexture, albedoSampler, in.uv) * material.roughness;
}
`

const fullScreenSource = `struct VertexOutput {
    @builtin(position) clip: vec4f,
    @location(0) uv: vec2f,
}

@group(0) @binding(0) var depthTexture: texture_depth_2d;
@group(0) @binding(1) var shadowSampler: sampler_comparison;
@group(0) @binding(2) var sky: texture_cube<f32>;
/* @group(0) @binding(3) var ignored: texture_2d<f32>; */

@vertex
fn vs_full(@builtin(vertex_index) idx: u32) -> VertexOutput {
    var out: VertexOutput;
    return out;
}

@fragment
fn fs_full(in: VertexOutput) -> @location(0) vec4f {
    return vec4f(1.0);
}
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"forward.wgsl":                {Data: []byte(forwardSource)},
		"fullscreen.wgsl":             {Data: []byte(fullScreenSource)},
		"include/frame_uniforms.wgsl": {Data: []byte(frameChunk)},
		"include/push_model.wgsl":     {Data: []byte(pushChunk)},
	}
}

// countingCompiler returns a fake SPIR-V blob derived from the source length.
func countingCompiler(calls *atomic.Int32) CompileFunc {
	return func(source string) ([]byte, error) {
		calls.Add(1)
		return []byte{0x03, 0x02, 0x23, 0x07, byte(len(source))}, nil
	}
}

func TestReflectForward(t *testing.T) {
	pp := NewPreProcessor(testFS(), "include")
	source, err := pp.Process(forwardSource)
	require.NoError(t, err)

	r, err := Reflect(source)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", r.VertexEntry)
	assert.Equal(t, "fs_main", r.FragmentEntry)
	assert.Equal(t, uint32(64), r.PushConstantSize)

	both := device.StageVertex | device.StageFragment
	assert.Equal(t, []device.BindingLayout{
		{Group: 0, Binding: 0, Kind: device.BindingUniformBuffer, Stages: both, Name: "frame", Size: 80},
		{Group: 1, Binding: 0, Kind: device.BindingUniformBuffer, Stages: both, Name: "material", Size: 8},
		{Group: 1, Binding: 1, Kind: device.BindingTexture, Stages: both, Name: "albedoTexture"},
		{Group: 1, Binding: 2, Kind: device.BindingSampler, Stages: both, Name: "albedoSampler"},
	}, r.Bindings)

	require.NotNil(t, r.Vertex)
	assert.Equal(t, uint64(32), r.Vertex.Stride)
	assert.Equal(t, []device.VertexAttribute{
		{Location: 0, Format: device.VertexFloat32x3, Offset: 0},
		{Location: 1, Format: device.VertexFloat32x3, Offset: 12},
		{Location: 2, Format: device.VertexFloat32x2, Offset: 24},
	}, r.Vertex.Attributes)
}

func TestReflectFullScreen(t *testing.T) {
	r, err := Reflect(fullScreenSource)
	require.NoError(t, err)
	assert.Nil(t, r.Vertex, "vertex_index driven shaders take no vertex buffer")
	assert.Zero(t, r.PushConstantSize)
	require.Len(t, r.Bindings, 3, "commented declarations are ignored")
	assert.Equal(t, device.BindingDepthTexture, r.Bindings[0].Kind)
	assert.Equal(t, device.BindingComparisonSampler, r.Bindings[1].Kind)
	assert.Equal(t, device.BindingCubeTexture, r.Bindings[2].Kind)

	bindings, err := ReflectBindings(fullScreenSource)
	require.NoError(t, err)
	assert.Equal(t, r.Bindings, bindings)
}

func TestReflectErrors(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"no vertex entry", `@fragment fn fs() -> @location(0) vec4f { return vec4f(0.0); }`},
		{"duplicate binding", `@group(0) @binding(0) var a: sampler;
@group(0) @binding(0) var b: sampler;
@vertex fn vs() -> @builtin(position) vec4f { return vec4f(0.0); }`},
		{"storage texture", `@group(0) @binding(0) var img: texture_storage_2d<rgba8unorm, write>;
@vertex fn vs() -> @builtin(position) vec4f { return vec4f(0.0); }`},
		{"texture in push group", `@group(3) @binding(0) var t: texture_2d<f32>;
@vertex fn vs() -> @builtin(position) vec4f { return vec4f(0.0); }`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Reflect(tc.source)
			assert.Error(t, err)
		})
	}
}

func TestPreProcessorIncludes(t *testing.T) {
	fsys := fstest.MapFS{
		"inc/a.wgsl": {Data: []byte("//@renderer:include b\nconst A = 1;")},
		"inc/b.wgsl": {Data: []byte("const B = 2;")},
	}
	pp := NewPreProcessor(fsys, "inc")

	out, err := pp.Process("//@renderer:include a\n//@renderer:include b\nconst C = 3;")
	require.NoError(t, err)
	assert.Equal(t, "const B = 2;\nconst A = 1;\nconst C = 3;", out, "b is injected once, ahead of a")
	assert.Equal(t, []string{"b", "a"}, pp.Includes())

	_, err = pp.Process("// a plain comment mentioning nothing\nconst D = 4;")
	require.NoError(t, err)
	assert.Empty(t, pp.Includes(), "includes reset on every call")
}

func TestPreProcessorErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"inc/loop_a.wgsl": {Data: []byte("//@renderer:include loop_b")},
		"inc/loop_b.wgsl": {Data: []byte("//@renderer:include loop_a")},
	}
	pp := NewPreProcessor(fsys, "inc")

	cases := map[string]string{
		"cycle":          "//@renderer:include loop_a",
		"missing chunk":  "//@renderer:include nope",
		"no argument":    "//@renderer:include",
		"unknown type":   "//@renderer:define X",
		"path traversal": "//@renderer:include ../secret",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pp.Process(src)
			assert.Error(t, err)
		})
	}
}

func TestLibraryLoad(t *testing.T) {
	var calls atomic.Int32
	lib := NewLibrary(testFS(), WithCompiler(countingCompiler(&calls)))

	s, err := lib.Load("forward")
	require.NoError(t, err)
	assert.Equal(t, "forward", s.Name())
	assert.Equal(t, []string{"frame_uniforms", "push_model"}, s.Includes())
	assert.Len(t, s.Group(1), 3)
	assert.Empty(t, s.Group(2))
	assert.Equal(t, uint32(64), s.PushConstantSize())
	assert.NotEmpty(t, s.Bytecode())
	assert.NotContains(t, s.Source(), annotationPrefix)

	again, err := lib.Load("forward")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, int32(1), calls.Load())

	_, err = lib.Load("missing")
	assert.ErrorIs(t, err, device.ErrResourceCreation)
}

func TestLibraryLoadAll(t *testing.T) {
	var calls atomic.Int32
	lib := NewLibrary(testFS(), WithCompiler(countingCompiler(&calls)), WithWorkers(2))

	shaders, err := lib.LoadAll("forward", "fullscreen")
	require.NoError(t, err)
	assert.Len(t, shaders, 2)
	assert.Equal(t, "vs_full", shaders["fullscreen"].VertexEntry())
	_, ok := lib.Shader("fullscreen")
	assert.True(t, ok)

	shaders, err = lib.LoadAll("forward", "missing", "gone")
	assert.ErrorIs(t, err, device.ErrResourceCreation)
	assert.Len(t, shaders, 1, "successful loads are still returned")
}

func TestLibraryCompileError(t *testing.T) {
	boom := errors.New("boom")
	lib := NewLibrary(testFS(), WithCompiler(func(string) ([]byte, error) { return nil, boom }))
	_, err := lib.Load("fullscreen")
	assert.ErrorIs(t, err, device.ErrResourceCreation)
	assert.ErrorIs(t, err, boom)
}

func TestLibraryBytecodeCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	var calls atomic.Int32

	first := NewLibrary(testFS(), WithCompiler(countingCompiler(&calls)), WithCacheDir(dir))
	s, err := first.Load("fullscreen")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "fullscreen.spv"))

	second := NewLibrary(testFS(), WithCompiler(countingCompiler(&calls)), WithCacheDir(dir))
	cached, err := second.Load("fullscreen")
	require.NoError(t, err)
	assert.Equal(t, s.Bytecode(), cached.Bytecode())
	assert.Equal(t, int32(1), calls.Load(), "an unchanged source reuses the cached blob")

	changed := testFS()
	changed["fullscreen.wgsl"] = &fstest.MapFile{Data: []byte(fullScreenSource + "\n// edited\n")}
	third := NewLibrary(changed, WithCompiler(countingCompiler(&calls)), WithCacheDir(dir))
	_, err = third.Load("fullscreen")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "a changed source recompiles")

	data, err := os.ReadFile(filepath.Join(dir, "fullscreen.spv"))
	require.NoError(t, err)
	assert.Greater(t, len(data), 32)
}
