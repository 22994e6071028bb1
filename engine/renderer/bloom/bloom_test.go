package bloom

import (
	"encoding/binary"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/command_recorder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bloomSource = `struct BloomPush {
    src_texel: vec2f,
    mode: u32,
    threshold: f32,
    radius: f32,
}
@group(0) @binding(0) var source: texture_2d<f32>;
@group(0) @binding(1) var source_sampler: sampler;
@group(3) @binding(0) var<uniform> push: BloomPush;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4f {
    return vec4f(0.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return textureSample(source, source_sampler, vec2f(push.radius));
}
`

func loadShader(t *testing.T) shader.Shader {
	t.Helper()
	lib := shader.NewLibrary(fstest.MapFS{"bloom.wgsl": {Data: []byte(bloomSource)}},
		shader.WithCompiler(func(string) ([]byte, error) { return []byte{0}, nil }))
	s, err := lib.Load("bloom")
	require.NoError(t, err)
	return s
}

func newInput(t *testing.T, dev device.Device, w, h uint32) attachment.Attachment {
	t.Helper()
	a, err := attachment.New(dev, attachment.KindColor, w, h,
		attachment.WithLabel("hdr-resolve"), attachment.WithFormat(device.FormatRGBA16Float))
	require.NoError(t, err)
	a.SetLayout(device.LayoutShaderReadOnly)
	return a
}

func TestMipSizes(t *testing.T) {
	sizes := MipSizes(1280, 720, 5)
	require.Len(t, sizes, 5)
	assert.Equal(t, device.Extent{Width: 1280, Height: 720}, sizes[0])
	assert.Equal(t, device.Extent{Width: 80, Height: 45}, sizes[4])

	for i := 1; i < len(sizes); i++ {
		assert.Equal(t, max(sizes[i-1].Width/2, 1), sizes[i].Width)
		assert.Equal(t, max(sizes[i-1].Height/2, 1), sizes[i].Height)
	}

	tiny := MipSizes(3, 1, 4)
	assert.Equal(t, device.Extent{Width: 1, Height: 1}, tiny[3], "mips never shrink below one pixel")
}

func TestSteps(t *testing.T) {
	down := DownsampleSteps(5)
	require.Len(t, down, 5)
	assert.Equal(t, Step{Visit: 0, Source: SceneInput, Target: 0, Mode: ModePrefilter}, down[0])
	for i, s := range down[1:] {
		assert.Equal(t, i, s.Source)
		assert.Equal(t, i+1, s.Target)
		assert.Equal(t, ModeDownsample, s.Mode)
	}

	up := UpsampleSteps(5)
	var visits, targets []int
	for _, s := range up {
		visits = append(visits, s.Visit)
		targets = append(targets, s.Target)
		assert.Equal(t, s.Visit-1, s.Source)
		assert.Equal(t, ModeUpsample, s.Mode)
	}
	assert.Equal(t, []int{5, 4, 3, 2}, visits)
	assert.Equal(t, []int{3, 2, 1, 0}, targets)

	assert.Empty(t, UpsampleSteps(1))
}

func TestNewBuildsFixedFramebuffers(t *testing.T) {
	dev := devicetest.New()
	input := newInput(t, dev, 1280, 720)
	b, err := New(dev, loadShader(t), input, 2)
	require.NoError(t, err)

	mips := b.Mips()
	require.Len(t, mips, 5)
	assert.Equal(t, uint32(80), mips[4].Width())
	assert.Equal(t, uint32(45), mips[4].Height())
	assert.Equal(t, mips[0], b.Output())

	for i, m := range mips {
		for _, upsample := range []bool{false, true} {
			fb, ok := dev.Framebuffer(b.Framebuffer(i, upsample))
			require.True(t, ok)
			assert.Equal(t, m.Width(), fb.Width)
			assert.Equal(t, m.Height(), fb.Height)
			assert.Equal(t, []device.ImageHandle{m.Handle()}, fb.Attachments)
		}
	}
	assert.False(t, b.Framebuffer(5, false).Valid())

	// one binder per step, each holding one set per slot
	assert.Equal(t, (5+4)*2, dev.Live(devicetest.KindResourceSet))
	assert.Equal(t, 2, dev.Live(devicetest.KindPipeline))
	assert.Equal(t, 2*5, dev.Live(devicetest.KindFramebuffer))
}

func kinds(cmds []device.Command, kind device.CommandKind) []device.Command {
	var out []device.Command
	for _, c := range cmds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestRecordVisitsChainInOrder(t *testing.T) {
	dev := devicetest.New()
	input := newInput(t, dev, 1280, 720)
	b, err := New(dev, loadShader(t), input, 2)
	require.NoError(t, err)

	rec := command_recorder.New(1)
	require.NoError(t, rec.Begin())
	require.NoError(t, b.Record(rec, 1))
	require.NoError(t, rec.End())
	cmds := rec.Commands()

	begins := kinds(cmds, device.CmdBeginRenderTarget)
	require.Len(t, begins, 5+4)
	mips := b.Mips()
	for i := 0; i < 5; i++ {
		assert.Equal(t, b.Framebuffer(i, false), begins[i].Framebuffer, "downsample %d", i)
		assert.Equal(t, mips[i].Extent(), begins[i].Extent)
	}
	for k, target := range []int{3, 2, 1, 0} {
		assert.Equal(t, b.Framebuffer(target, true), begins[5+k].Framebuffer, "upsample into mip %d", target)
		assert.Equal(t, mips[target].Extent(), begins[5+k].Extent)
	}

	pushes := kinds(cmds, device.CmdPushConstants)
	require.Len(t, pushes, 9)
	for i, p := range pushes {
		require.Len(t, p.Data, PushSize)
		mode := Mode(binary.LittleEndian.Uint32(p.Data[8:12]))
		switch {
		case i == 0:
			assert.Equal(t, ModePrefilter, mode)
		case i < 5:
			assert.Equal(t, ModeDownsample, mode)
		default:
			assert.Equal(t, ModeUpsample, mode)
		}
	}
	assert.Len(t, kinds(cmds, device.CmdDraw), 9)
	for _, m := range mips {
		assert.Equal(t, device.LayoutShaderReadOnly, m.Layout())
	}

	fence, err := dev.CreateFence(false)
	require.NoError(t, err)
	assert.NoError(t, dev.Submit(device.SubmitInfo{Commands: cmds, Fence: fence}))
}

func TestRecordRejectsUnreadableInput(t *testing.T) {
	dev := devicetest.New()
	input := newInput(t, dev, 64, 64)
	b, err := New(dev, loadShader(t), input, 2)
	require.NoError(t, err)

	input.SetLayout(device.LayoutColorAttachment)
	rec := command_recorder.New(0)
	require.NoError(t, rec.Begin())
	err = b.Record(rec, 0)
	var mismatch *device.LayoutMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "hdr-resolve", mismatch.Attachment)
}

func TestResize(t *testing.T) {
	dev := devicetest.New()
	b, err := New(dev, loadShader(t), newInput(t, dev, 1280, 720), 2, WithMipLevels(3))
	require.NoError(t, err)
	images := dev.Live(devicetest.KindImage)
	sets := dev.Live(devicetest.KindResourceSet)

	bigger := newInput(t, dev, 1920, 1080)
	require.NoError(t, b.Resize(bigger))
	assert.Equal(t, images+1, dev.Live(devicetest.KindImage), "old mips are released")
	assert.Equal(t, sets, dev.Live(devicetest.KindResourceSet))
	assert.Equal(t, uint32(480), b.Mips()[2].Width())

	fb, ok := dev.Framebuffer(b.Framebuffer(2, true))
	require.True(t, ok)
	assert.Equal(t, uint32(270), fb.Height)

	rec := command_recorder.New(0)
	require.NoError(t, rec.Begin())
	require.NoError(t, b.Record(rec, 0))
	begins := kinds(rec.Commands(), device.CmdBeginRenderTarget)
	assert.Equal(t, device.Extent{Width: 1920, Height: 1080}, begins[0].Extent)
}

func TestNewErrors(t *testing.T) {
	dev := devicetest.New()
	input := newInput(t, dev, 64, 64)

	_, err := New(dev, nil, input, 2)
	assert.ErrorIs(t, err, device.ErrResourceCreation)

	dev.FailCreate(devicetest.KindFramebuffer, errors.New("out of memory"))
	_, err = New(dev, loadShader(t), input, 2)
	assert.ErrorIs(t, err, device.ErrResourceCreation)
	assert.Equal(t, 1, dev.Live(devicetest.KindImage), "only the input survives a failed chain")
	assert.Equal(t, 0, dev.Live(devicetest.KindRenderPass))
	assert.Equal(t, 0, dev.Live(devicetest.KindSampler))
}

func TestRelease(t *testing.T) {
	dev := devicetest.New()
	input := newInput(t, dev, 64, 64)
	b, err := New(dev, loadShader(t), input, 2)
	require.NoError(t, err)
	b.Release()

	for _, kind := range []string{
		devicetest.KindFramebuffer, devicetest.KindRenderPass, devicetest.KindPipeline,
		devicetest.KindResourceSet, devicetest.KindSampler,
	} {
		assert.Equal(t, 0, dev.Live(kind), kind)
	}
	assert.Equal(t, 1, dev.Live(devicetest.KindImage))
}
