package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/SedenionProj/vulkan-renderer/assets"
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/material"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allPasses = []string{
	PassDepth, PassSSAO, PassShadow, PassForward,
	PassSkyBox, PassBloom, PassToneMapping, PassFinal,
}

// testLibrary reflects the embedded shaders but skips the SPIR-V compile.
func testLibrary() shader.Library {
	return shader.NewLibrary(assets.Shaders, shader.WithDir(assets.ShaderDir),
		shader.WithCompiler(func(string) ([]byte, error) { return []byte{0x03, 0x02, 0x23, 0x07}, nil }))
}

func newTestRenderer(t *testing.T, opts ...RendererBuilderOption) (*devicetest.Device, *renderer) {
	t.Helper()
	dev := devicetest.New()
	r, err := New(dev, 1280, 720, append([]RendererBuilderOption{WithShaderLibrary(testLibrary())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return dev, r.(*renderer)
}

func triangle(t *testing.T, dev device.Device) Mesh {
	t.Helper()
	m, err := UploadMesh(dev, "triangle", []common.Vertex{
		{Position: [3]float32{-1, 0, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0, 0}},
		{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{1, 0}},
		{Position: [3]float32{0, 1, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0.5, 1}},
	}, []uint32{0, 1, 2})
	require.NoError(t, err)
	t.Cleanup(func() { m.Release(dev) })
	return m
}

func translate(x, y, z float32) [16]float32 {
	var m [16]float32
	common.BuildModelMatrix(m[:], x, y, z, 0, 0, 0, 1, 1, 1)
	return m
}

func outOfDate() error {
	return fmt.Errorf("present: %w", device.ErrSurfaceOutOfDate)
}

func TestNewCompilesEveryPass(t *testing.T) {
	dev, r := newTestRenderer(t)

	assert.Equal(t, allPasses, r.Graph().Order())
	assert.Equal(t, 2, r.slots)
	assert.Len(t, r.targets, 7)
	assert.Len(t, r.pipelines, 7)
	assert.Nil(t, r.images.hdrMSAA, "no multisampled image without msaa")

	kernel, ok := dev.BufferData(r.kernelBuffer)
	require.True(t, ok)
	want := NewSSAOKernel(1)
	assert.Equal(t, want.Bytes(), kernel)
}

func TestRenderFrameRotatesSlots(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	var slots []int
	for range 5 {
		require.NoError(t, r.RenderFrame(ctx))
		slots = append(slots, r.Stats().Slot)
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Len(t, dev.Submissions(), 5)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, dev.Acquires())
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, dev.Presents())

	stats := r.Stats()
	assert.Equal(t, uint64(5), stats.Frames)
	assert.Zero(t, stats.SkippedFrames)
	assert.Equal(t, allPasses, stats.Executed)
	assert.Empty(t, stats.Skipped)
	// seven pass targets plus five bloom downsamples and four upsamples
	assert.Equal(t, 7+9, stats.RenderTargets)
}

func TestFrameUniformsFollowSettings(t *testing.T) {
	dev, r := newTestRenderer(t)
	s := r.Settings()
	s.SSAO, s.Bloom = false, false
	s.Exposure = 2.5
	require.NoError(t, r.SetSettings(s))
	assert.False(t, r.Settings().SSAO, "staged settings are reported")

	require.NoError(t, r.BeginFrame(context.Background()))
	data, ok := dev.BufferData(r.frameBuffers[r.slot.Index()])
	require.True(t, ok)
	var got FrameUniforms
	copy(common.StructToBytes(&got), data)
	assert.Equal(t, [4]uint32{0, 0, 1, 1}, got.Toggles)
	assert.InDelta(t, 2.5, got.Params[0], 1e-6)
	assert.Equal(t, [4]float32{1280, 720, 1.0 / 1280, 1.0 / 720}, got.Screen)
	require.NoError(t, r.EndFrame())
}

func TestTogglesSkipPasses(t *testing.T) {
	_, r := newTestRenderer(t)
	s := r.Settings()
	s.SSAO, s.Shadow, s.SkyBox, s.Bloom = false, false, false, false
	require.NoError(t, r.SetSettings(s))

	require.NoError(t, r.RenderFrame(context.Background()))
	stats := r.Stats()
	assert.Equal(t, []string{PassDepth, PassForward, PassToneMapping, PassFinal}, stats.Executed)
	assert.Equal(t, []string{PassSSAO, PassShadow, PassSkyBox, PassBloom}, stats.Skipped)
	assert.Equal(t, 4, stats.RenderTargets)
	assert.Equal(t, 2, stats.Draws, "tone mapping and final")
}

func TestDrawListIsCulled(t *testing.T) {
	dev, r := newTestRenderer(t)
	mesh := triangle(t, dev)
	ctx := context.Background()

	require.NoError(t, r.RenderFrame(ctx))
	empty := r.Stats().Draws

	r.SetDrawList([]DrawItem{
		{Mesh: mesh, Model: translate(0, 0, 0)},
		{Mesh: mesh, Model: translate(5000, 0, 0)},
	})
	require.NoError(t, r.RenderFrame(ctx))
	stats := r.Stats()
	assert.Equal(t, 1, stats.Visible)
	assert.Equal(t, 1, stats.ShadowCasters)
	assert.Equal(t, empty+3, stats.Draws, "depth, shadow and forward draw the visible item")

	last := dev.Submissions()[len(dev.Submissions())-1]
	assert.Equal(t, 3, devicetest.CountCommands(last, device.CmdDrawIndexed))
	assert.Equal(t, 3+9, devicetest.CountCommands(last, device.CmdPushConstants), "three model matrices and nine bloom blocks")
}

func TestMaterialsBindPerItem(t *testing.T) {
	dev, r := newTestRenderer(t)
	mesh := triangle(t, dev)

	m, err := r.NewMaterial(material.WithName("red"), material.WithProperties(material.Properties{Roughness: 0.3, Reflectance: 0.5}))
	require.NoError(t, err)
	defer m.Release()
	r.SetDrawList([]DrawItem{{Mesh: mesh, Material: m, Model: translate(0, 0, 0)}})

	require.NoError(t, r.RenderFrame(context.Background()))
	last := dev.Submissions()[len(dev.Submissions())-1]
	var sets []device.ResourceSetHandle
	for _, c := range last.Commands {
		if c.Kind == device.CmdBindResourceSet && c.Group == MaterialGroup {
			sets = append(sets, c.ResourceSet)
		}
	}
	assert.Equal(t, []device.ResourceSetHandle{m.Binder().ResourceSet(0)}, sets)
}

func TestMaterialWithoutTexturesIsRejected(t *testing.T) {
	dev, r := newTestRenderer(t)
	sets := dev.Live(devicetest.KindResourceSet)

	_, err := material.New(dev, r.MaterialLayout(), r.slots)
	assert.ErrorIs(t, err, device.ErrMissingBinding)
	assert.Equal(t, sets, dev.Live(devicetest.KindResourceSet), "the failed material releases its sets")
}

func TestFailedPassSubmitsEmptyFrame(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	complete := r.binders[PassSSAO]
	empty, err := resource_binder.New(dev, "ssao-empty", r.pipelines[PassSSAO].LayoutFor(0), r.slots)
	require.NoError(t, err)
	r.binders[PassSSAO] = empty

	err = r.RenderFrame(ctx)
	var missing *device.MissingBindingError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.ErrorIs(t, err, device.ErrMissingBinding)
	assert.Equal(t, PassSSAO, missing.Pipeline)

	subs := dev.Submissions()
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].Commands)
	assert.Equal(t, []uint32{0}, dev.Presents(), "the acquired image is still presented")
	assert.Equal(t, []string{PassDepth}, r.Stats().Executed)

	r.binders[PassSSAO] = complete
	empty.Release()
	require.NoError(t, r.RenderFrame(ctx))
	assert.Equal(t, 1, r.Stats().Slot)
}

func TestFailedSubmitStillPresents(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	boom := errors.New("queue lost")
	dev.FailNextSubmit(boom)
	assert.ErrorIs(t, r.RenderFrame(ctx), boom)
	subs := dev.Submissions()
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].Commands, "the rejected recording is replaced by an empty batch")
	assert.Equal(t, []uint32{0}, dev.Presents())
	assert.Zero(t, r.Stats().Frames)
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)

	for range 3 {
		require.NoError(t, r.RenderFrame(ctx))
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, dev.Presents())
	assert.Equal(t, uint64(3), r.Stats().Frames)
	assert.Zero(t, r.Stats().Rebuilds)
}

func TestSubmitRejectedTwiceRebuildsSurface(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	boom := errors.New("queue lost")
	dev.FailNextSubmit(boom)
	dev.FailNextSubmit(boom)
	assert.ErrorIs(t, r.RenderFrame(ctx), boom)
	assert.Empty(t, dev.Submissions())
	assert.Empty(t, dev.Presents())

	require.NoError(t, r.RenderFrame(ctx))
	require.NoError(t, r.RenderFrame(ctx))
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Rebuilds, "the surface rebuild returns the stranded image")
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, []uint32{0, 1}, dev.Presents())
}

func TestReleasedMeshFailsOnlyItsFrame(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	mesh := triangle(t, dev)
	stale := mesh
	mesh.Release(dev)
	r.SetDrawList([]DrawItem{{Mesh: stale, Model: translate(0, 0, 0)}})

	err := r.RenderFrame(ctx)
	assert.ErrorIs(t, err, device.ErrInvalidHandle)
	subs := dev.Submissions()
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].Commands, "the draw fails while recording, not at submit")
	assert.Equal(t, []uint32{0}, dev.Presents())

	r.SetDrawList(nil)
	for range 4 {
		require.NoError(t, r.RenderFrame(ctx))
	}
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, dev.Presents())
	assert.Equal(t, uint64(4), r.Stats().Frames)
}

func TestFrameUniformWriteFailureClosesTheFrame(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	boom := errors.New("staging belt full")
	dev.FailNextWriteBuffer(boom)
	assert.ErrorIs(t, r.BeginFrame(ctx), boom)
	assert.ErrorIs(t, r.EndFrame(), device.ErrInvalidState, "no frame is left open")
	require.Len(t, dev.Submissions(), 1)
	assert.Empty(t, dev.Submissions()[0].Commands)
	assert.Equal(t, []uint32{0}, dev.Presents())
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)

	require.NoError(t, r.Rebuild())
	dev.FailNextWriteBuffer(boom)
	assert.ErrorIs(t, r.RenderFrame(ctx), boom)
	require.NoError(t, r.RenderFrame(ctx))
	assert.Equal(t, uint64(1), r.Stats().Frames)
}

func TestFrameStateErrors(t *testing.T) {
	_, r := newTestRenderer(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.DepthPrePass(), device.ErrInvalidState)
	assert.ErrorIs(t, r.EndFrame(), device.ErrInvalidState)

	require.NoError(t, r.BeginFrame(ctx))
	assert.ErrorIs(t, r.BeginFrame(ctx), device.ErrInvalidState)
	assert.ErrorIs(t, r.Rebuild(), device.ErrInvalidState)
	require.NoError(t, r.SSAOPass(), "a frame may leave passes out")
	assert.ErrorIs(t, r.DepthPrePass(), device.ErrInvalidState, "passes run in order")
	assert.ErrorIs(t, r.ShadowPass(), device.ErrInvalidState, "a failed frame records nothing more")
	require.NoError(t, r.EndFrame())

	require.NoError(t, r.BeginFrame(ctx))
	for _, pass := range []func() error{
		r.DepthPrePass, r.SSAOPass, r.ShadowPass, r.ForwardPass,
		r.SkyBoxPass, r.BloomPass, r.ToneMappingPass, r.FinalPass,
	} {
		require.NoError(t, pass())
	}
	require.NoError(t, r.EndFrame())
}

func TestCancelledContextFailsPasses(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RenderFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, dev.Presents(), 1)
}

func TestAcquireOutOfDateRebuilds(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	dev.FailNextAcquire(outOfDate())
	assert.ErrorIs(t, r.RenderFrame(ctx), device.ErrSurfaceOutOfDate)
	assert.Empty(t, dev.Submissions())
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)

	require.NoError(t, r.RenderFrame(ctx))
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Rebuilds)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Len(t, dev.Configures(), 2)
}

func TestPresentOutOfDateRebuilds(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	dev.FailNextPresent(outOfDate())
	assert.ErrorIs(t, r.RenderFrame(ctx), device.ErrSurfaceOutOfDate)
	assert.Len(t, dev.Submissions(), 1, "the frame was submitted before present failed")
	assert.Zero(t, r.Stats().Frames)

	require.NoError(t, r.RenderFrame(ctx))
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Rebuilds)
	assert.Equal(t, 1, stats.Slot, "present advanced the slot even though it failed")
	assert.Equal(t, []uint32{0}, dev.Presents(), "the surface restarts at image 0")
}

func TestResize(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()
	require.NoError(t, r.RenderFrame(ctx))
	images := dev.Live(devicetest.KindImage)
	framebuffers := dev.Live(devicetest.KindFramebuffer)
	pipelines := dev.Created(devicetest.KindPipeline)

	r.Resize(1920, 1080)
	require.NoError(t, r.RenderFrame(ctx))

	assert.Equal(t, uint32(1920), r.images.hdr.Width())
	assert.Equal(t, uint32(1080), r.sc.Extent().Height)
	assert.Equal(t, uint32(1920), r.bloom.Mips()[0].Width())
	hdr, ok := r.Graph().Resource(ResourceHDR)
	require.True(t, ok)
	assert.Equal(t, r.images.hdr, hdr)
	bloomOut, ok := r.Graph().Resource(ResourceBloom)
	require.True(t, ok)
	assert.Equal(t, r.bloom.Output(), bloomOut)

	assert.Equal(t, images, dev.Live(devicetest.KindImage), "old images are released")
	assert.Equal(t, framebuffers, dev.Live(devicetest.KindFramebuffer))
	assert.Equal(t, pipelines, dev.Created(devicetest.KindPipeline), "pipelines survive a resize")

	last := dev.Submissions()[len(dev.Submissions())-1]
	assert.Equal(t, device.Extent{Width: 1920, Height: 1080}, last.Commands[0].Extent)
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	dev, r := newTestRenderer(t)
	ctx := context.Background()

	r.Resize(0, 0)
	for range 3 {
		assert.ErrorIs(t, r.RenderFrame(ctx), device.ErrSurfaceOutOfDate)
	}
	assert.Empty(t, dev.Acquires())
	assert.Equal(t, uint64(3), r.Stats().SkippedFrames)

	r.Resize(800, 600)
	require.NoError(t, r.RenderFrame(ctx))
	assert.Equal(t, uint32(800), r.images.ldr.Width())
}

func TestDeviceWait(t *testing.T) {
	t.Run("hung device", func(t *testing.T) {
		dev, r := newTestRenderer(t)
		dev.Hung = true
		assert.ErrorIs(t, r.RenderFrame(context.Background()), device.ErrDeviceWait)
		assert.Empty(t, dev.Submissions())

		dev.Hung = false
		assert.NoError(t, r.RenderFrame(context.Background()))
	})

	t.Run("slot still in flight", func(t *testing.T) {
		dev, r := newTestRenderer(t)
		ctx := context.Background()
		dev.ManualCompletion = true
		require.NoError(t, r.RenderFrame(ctx))
		require.NoError(t, r.RenderFrame(ctx))

		assert.ErrorIs(t, r.RenderFrame(ctx), device.ErrDeviceWait, "slot 0 has not finished")
		assert.Len(t, dev.Submissions(), 2)

		dev.Complete()
		require.NoError(t, r.RenderFrame(ctx))
		assert.Equal(t, 0, r.Stats().Slot)
		dev.Complete()
	})
}

func TestSetSettings(t *testing.T) {
	_, r := newTestRenderer(t)

	s := r.Settings()
	s.MSAA = 4
	assert.ErrorIs(t, r.SetSettings(s), device.ErrInvalidState)

	s = r.Settings()
	s.BloomMips = 0
	assert.ErrorIs(t, r.SetSettings(s), device.ErrInvalidDescriptor)

	s = r.Settings()
	s.Bloom = false
	s.BloomStrength = 0.2
	require.NoError(t, r.SetSettings(s))
	assert.True(t, r.settings.Bloom, "applied at the next frame")
	require.NoError(t, r.RenderFrame(context.Background()))
	assert.False(t, r.settings.Bloom)
	assert.Contains(t, r.Stats().Skipped, PassBloom)
}

func TestMultisampling(t *testing.T) {
	s := config.Default()
	s.MSAA = 4
	dev, r := newTestRenderer(t, WithSettings(s))
	require.NotNil(t, r.images.hdrMSAA)
	assert.Equal(t, uint32(4), r.images.hdrMSAA.Samples())
	assert.Equal(t, uint32(4), r.images.forwardDepth.Samples())

	require.NoError(t, r.RenderFrame(context.Background()))
	assert.Len(t, dev.Submissions(), 1)
	_, ok := r.Graph().Resource(ResourceHDRMultisample)
	assert.True(t, ok)
}

func TestSkyBoxFaces(t *testing.T) {
	face := func(c color.RGBA, size int) *common.ImportedTexture {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		return &common.ImportedTexture{Name: "face", Data: buf.Bytes()}
	}
	var faces [6]*common.ImportedTexture
	for i := range faces {
		faces[i] = face(color.RGBA{R: uint8(i * 40), A: 255}, 4+i)
	}
	_, r := newTestRenderer(t, WithSkyBox(faces))
	assert.Equal(t, uint32(4), r.sky.Width(), "faces are scaled to the first")
	assert.NoError(t, r.RenderFrame(context.Background()))

	faces[3] = &common.ImportedTexture{Name: "broken", Data: []byte("not an image")}
	_, err := New(devicetest.New(), 64, 64, WithShaderLibrary(testLibrary()), WithSkyBox(faces))
	assert.ErrorIs(t, err, device.ErrResourceCreation)
}

func TestNewFailureReleasesEverything(t *testing.T) {
	kinds := []string{
		devicetest.KindImage, devicetest.KindBuffer, devicetest.KindSampler, devicetest.KindRenderPass,
		devicetest.KindFramebuffer, devicetest.KindPipeline, devicetest.KindResourceSet,
		devicetest.KindFence, devicetest.KindSemaphore,
	}
	for _, failing := range []string{
		devicetest.KindSampler, devicetest.KindPipeline, devicetest.KindFramebuffer, devicetest.KindResourceSet,
	} {
		t.Run(failing, func(t *testing.T) {
			dev := devicetest.New()
			dev.FailCreate(failing, errors.New("out of memory"))
			_, err := New(dev, 640, 480, WithShaderLibrary(testLibrary()))
			require.Error(t, err)
			for _, kind := range kinds {
				assert.Equal(t, 0, dev.Live(kind), kind)
			}
		})
	}

	s := config.Default()
	s.FramesInFlight = 0
	_, err := New(devicetest.New(), 640, 480, WithSettings(s))
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
}

func TestReleaseDestroysEverything(t *testing.T) {
	dev := devicetest.New()
	r, err := New(dev, 640, 480, WithShaderLibrary(testLibrary()))
	require.NoError(t, err)
	require.NoError(t, r.RenderFrame(context.Background()))
	r.Resize(320, 240)
	require.NoError(t, r.RenderFrame(context.Background()))
	r.Release()

	for _, kind := range []string{
		devicetest.KindImage, devicetest.KindBuffer, devicetest.KindSampler, devicetest.KindRenderPass,
		devicetest.KindFramebuffer, devicetest.KindPipeline, devicetest.KindResourceSet,
		devicetest.KindFence, devicetest.KindSemaphore,
	} {
		assert.Equal(t, 0, dev.Live(kind), kind)
	}
	assert.False(t, dev.Released(), "the device belongs to the caller")
}

func TestLightViewProjCentersTheVolume(t *testing.T) {
	for _, dir := range [][3]float32{{-0.4, -1, -0.3}, {0, -1, 0}, {1, 0, 0}} {
		l := Light{Direction: dir, Center: [3]float32{3, 0, -2}, Extent: 10}
		m := l.viewProj()
		c := common.TransformPoint(m[:], l.Center)
		assert.InDelta(t, 0, c[0], 1e-4, "%v", dir)
		assert.InDelta(t, 0, c[1], 1e-4, "%v", dir)
		assert.True(t, c[2] > -1 && c[2] < 1, "center depth %v inside the volume", c[2])
	}
}
