package material

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/pipeline"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const materialSource = `struct MaterialProperties {
    roughness: f32,
    reflectance: f32,
    pad0: f32,
    pad1: f32,
}
@group(1) @binding(0) var<uniform> material: MaterialProperties;
@group(1) @binding(1) var albedoTexture: texture_2d<f32>;
@group(1) @binding(2) var albedoSampler: sampler;
@group(1) @binding(3) var specularTexture: texture_2d<f32>;
@group(1) @binding(4) var specularSampler: sampler;
@group(1) @binding(5) var normalTexture: texture_2d<f32>;
@group(1) @binding(6) var normalSampler: sampler;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4f {
    return vec4f(0.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return vec4f(material.roughness);
}
`

type fixture struct {
	dev      *devicetest.Device
	layout   resource_binder.Layout
	defaults [3]attachment.Attachment
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dev := devicetest.New()
	lib := shader.NewLibrary(fstest.MapFS{"forward.wgsl": {Data: []byte(materialSource)}},
		shader.WithCompiler(func(string) ([]byte, error) { return []byte{0}, nil }))
	s, err := lib.Load("forward")
	require.NoError(t, err)

	hdr, err := attachment.New(dev, attachment.KindColor, 8, 8, attachment.WithFormat(device.FormatRGBA16Float))
	require.NoError(t, err)
	rt, err := render_target.Build(dev, render_target.NewDescriptor(true, render_target.Entry{Attachment: hdr, Role: device.RoleColor}), 2)
	require.NoError(t, err)
	p, err := pipeline.New(dev, "forward", rt, pipeline.WithShader(s), pipeline.WithoutVertexInput())
	require.NoError(t, err)

	f := fixture{dev: dev, layout: p.LayoutFor(1)}
	colors := [3][4]byte{{255, 255, 255, 255}, {0, 0, 0, 255}, {128, 128, 255, 255}}
	for i, c := range colors {
		f.defaults[i], err = SolidTexture(dev, "default", c, device.FormatRGBA8Unorm)
		require.NoError(t, err)
	}
	return f
}

func (f fixture) propsOf(t *testing.T, m Material, slot int) []byte {
	t.Helper()
	writes, ok := f.dev.ResourceSetWrites(m.Binder().ResourceSet(slot))
	require.True(t, ok)
	data, ok := f.dev.BufferData(writes[BindingProperties].Buffer)
	require.True(t, ok)
	return data
}

func TestNewComplete(t *testing.T) {
	f := newFixture(t)
	props := Properties{Roughness: 0.5, Reflectance: 0.08}
	m, err := New(f.dev, f.layout, 2, WithName("brick"), WithProperties(props),
		WithAlbedo(f.defaults[0]), WithSpecular(f.defaults[1]), WithNormal(f.defaults[2]))
	require.NoError(t, err)
	require.NoError(t, m.Binder().Validate())

	for slot := 0; slot < 2; slot++ {
		writes, ok := f.dev.ResourceSetWrites(m.Binder().ResourceSet(slot))
		require.True(t, ok)
		assert.Len(t, writes, 7)
		assert.Equal(t, f.defaults[2].Handle(), writes[BindingNormal].Image)
		assert.True(t, writes[BindingNormal+1].Sampler.Valid())
		assert.Equal(t, props.Marshal(), f.propsOf(t, m, slot))
	}
	assert.NotEqual(t,
		mustWrites(t, f, m, 0)[BindingProperties].Buffer,
		mustWrites(t, f, m, 1)[BindingProperties].Buffer,
		"each slot owns its uniform")
}

func mustWrites(t *testing.T, f fixture, m Material, slot int) map[uint32]device.ResourceWrite {
	t.Helper()
	w, ok := f.dev.ResourceSetWrites(m.Binder().ResourceSet(slot))
	require.True(t, ok)
	return w
}

func TestNewMissingTexture(t *testing.T) {
	f := newFixture(t)
	buffers := f.dev.Live(devicetest.KindBuffer)
	sets := f.dev.Live(devicetest.KindResourceSet)

	_, err := New(f.dev, f.layout, 2, WithName("bare"), WithAlbedo(f.defaults[0]), WithSpecular(f.defaults[1]))
	var missing *device.MissingBindingError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, BindingNormal, missing.Binding)
	assert.Equal(t, "normalTexture", missing.Name)
	assert.Equal(t, "forward", missing.Pipeline)

	assert.Equal(t, buffers, f.dev.Live(devicetest.KindBuffer), "a failed material releases its uniforms")
	assert.Equal(t, sets, f.dev.Live(devicetest.KindResourceSet))
	assert.Equal(t, 0, f.dev.Live(devicetest.KindSampler))
}

func TestSyncPerSlot(t *testing.T) {
	f := newFixture(t)
	m, err := New(f.dev, f.layout, 2,
		WithAlbedo(f.defaults[0]), WithSpecular(f.defaults[1]), WithNormal(f.defaults[2]))
	require.NoError(t, err)
	before := f.propsOf(t, m, 1)

	next := Properties{Roughness: 0.2, Reflectance: 0.5}
	m.SetProperties(next)
	assert.Equal(t, next, m.Properties())

	require.NoError(t, m.Sync(0))
	assert.Equal(t, next.Marshal(), f.propsOf(t, m, 0))
	assert.Equal(t, before, f.propsOf(t, m, 1), "slot 1 keeps its values until it syncs")

	require.NoError(t, m.Sync(1))
	assert.Equal(t, next.Marshal(), f.propsOf(t, m, 1))
	require.NoError(t, m.Sync(7), "unknown slots are ignored")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImportedMaterial(t *testing.T) {
	f := newFixture(t)
	images := f.dev.Live(devicetest.KindImage)

	im := &common.ImportedMaterial{
		Name:        "crate",
		Roughness:   0.7,
		Reflectance: 0.02,
		Albedo:      &common.ImportedTexture{Name: "albedo", Data: pngBytes(t, 4, 2)},
	}
	m, err := New(f.dev, f.layout, 2, WithImported(im), WithSpecular(f.defaults[1]), WithNormal(f.defaults[2]))
	require.NoError(t, err)
	assert.Equal(t, "crate", m.Name())
	assert.Equal(t, Properties{Roughness: 0.7, Reflectance: 0.02}, m.Properties())
	require.NotNil(t, m.Albedo())
	assert.Equal(t, uint32(4), m.Albedo().Width())
	assert.Equal(t, device.FormatRGBA8UnormSrgb, m.Albedo().Format())
	assert.Equal(t, device.LayoutShaderReadOnly, m.Albedo().Layout())
	assert.Equal(t, images+1, f.dev.Live(devicetest.KindImage))

	m.Release()
	assert.Equal(t, images, f.dev.Live(devicetest.KindImage), "imported textures are owned, defaults are not")
	assert.Equal(t, 0, f.dev.Live(devicetest.KindSampler))
}

func TestImportedTextureDecodeError(t *testing.T) {
	f := newFixture(t)
	im := &common.ImportedMaterial{Name: "broken", Albedo: &common.ImportedTexture{Data: []byte("not a png")}}
	_, err := New(f.dev, f.layout, 2, WithImported(im))
	assert.ErrorIs(t, err, device.ErrResourceCreation)
}
