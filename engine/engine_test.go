package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/SedenionProj/vulkan-renderer/assets"
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeadless(t *testing.T, opts ...EngineBuilderOption) (*devicetest.Device, *engine) {
	t.Helper()
	dev := devicetest.New()
	lib := shader.NewLibrary(assets.Shaders, shader.WithDir(assets.ShaderDir),
		shader.WithCompiler(func(string) ([]byte, error) { return []byte{0x03, 0x02, 0x23, 0x07}, nil }))
	base := []EngineBuilderOption{
		WithDevice(dev),
		WithSize(640, 360),
		WithRendererOptions(renderer.WithShaderLibrary(lib)),
	}
	e, err := NewEngine(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return dev, e.(*engine)
}

func TestHeadlessFrame(t *testing.T) {
	dev, e := newHeadless(t)
	require.NoError(t, e.Frame(context.Background()))

	stats := e.Renderer().Stats()
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Len(t, stats.Executed, 8)
	assert.Len(t, dev.Presents(), 1)
	assert.InDelta(t, 640.0/360.0, e.Camera().Aspect(), 1e-6)

	e.Release()
	assert.False(t, dev.Released(), "a device passed in is left to the caller")
}

func TestFunctionKeysTogglePasses(t *testing.T) {
	_, e := newHeadless(t)

	e.handleKeyDown(common.KeyF2)
	assert.False(t, e.Renderer().Settings().Bloom)
	e.handleKeyDown(common.KeyF2)
	assert.False(t, e.Renderer().Settings().Bloom, "key repeat does not toggle again")

	e.handleKeyUp(common.KeyF2)
	e.handleKeyDown(common.KeyF2)
	assert.True(t, e.Renderer().Settings().Bloom)

	e.handleKeyDown(common.KeyF1)
	e.handleKeyDown(common.KeyF3)
	e.handleKeyDown(common.KeyF4)
	require.NoError(t, e.Frame(context.Background()))
	stats := e.Renderer().Stats()
	assert.Equal(t, []string{renderer.PassSSAO, renderer.PassShadow, renderer.PassSkyBox}, stats.Skipped)
}

func TestToggle(t *testing.T) {
	_, e := newHeadless(t)

	on, err := e.Toggle(ToggleSSAO)
	require.NoError(t, err)
	assert.False(t, on)
	on, err = e.Toggle(ToggleSSAO)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = e.Toggle(Toggle(9))
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
	assert.Equal(t, "Toggle(9)", Toggle(9).String())
}

func TestFrameAbsorbsOutOfDateSurface(t *testing.T) {
	dev, e := newHeadless(t)
	dev.FailNextAcquire(fmt.Errorf("acquire: %w", device.ErrSurfaceOutOfDate))

	require.NoError(t, e.Frame(context.Background()))
	require.NoError(t, e.Frame(context.Background()))
	stats := e.Renderer().Stats()
	assert.Equal(t, uint64(1), stats.SkippedFrames)
	assert.Equal(t, uint64(1), stats.Rebuilds)
	assert.Equal(t, uint64(1), stats.Frames)
}

func TestResize(t *testing.T) {
	dev, e := newHeadless(t)

	e.handleResize(1000, 500)
	assert.InDelta(t, 2.0, e.Camera().Aspect(), 1e-6)
	require.NoError(t, e.Frame(context.Background()))
	configures := dev.Configures()
	assert.Equal(t, uint32(1000), configures[len(configures)-1].Width)

	e.handleResize(0, 0)
	assert.InDelta(t, 2.0, e.Camera().Aspect(), 1e-6, "a minimized window keeps the aspect")
	presents := len(dev.Presents())
	require.NoError(t, e.Frame(context.Background()))
	assert.Len(t, dev.Presents(), presents, "minimized frames are skipped")
}

func TestInputMovesCamera(t *testing.T) {
	_, e := newHeadless(t, WithMoveSpeed(2))
	ctrl := e.Camera().Controller()

	before := e.Camera().RenderCamera()
	e.handleKeyDown(common.KeyD)
	e.tick(0.5)
	x, _, _ := ctrl.Target()
	assert.InDelta(t, 1.0, x, 1e-4, "D pans right at the move speed")
	assert.NotEqual(t, before.View, e.Camera().RenderCamera().View)

	e.handleKeyUp(common.KeyD)
	e.tick(0.5)
	x, _, _ = ctrl.Target()
	assert.InDelta(t, 1.0, x, 1e-4)

	azimuth := ctrl.Azimuth()
	e.handleMouseMove(50, 0)
	assert.Equal(t, azimuth, ctrl.Azimuth(), "moves without a drag are ignored")
	e.setDrag(true, 0, 0)
	e.handleMouseMove(50, 0)
	assert.NotEqual(t, azimuth, ctrl.Azimuth())
	e.setDrag(false, 50, 0)

	radius := ctrl.Radius()
	e.handleScroll(2)
	assert.Less(t, ctrl.Radius(), radius)
}

func TestRunStopsOnQuit(t *testing.T) {
	dev, e := newHeadless(t)
	released := false
	e.SetReleaseCallback(func() { released = true })
	frames := 0
	e.SetRenderCallback(func(float32) {
		frames++
		if frames == 3 {
			e.Quit()
		}
	})
	require.NoError(t, e.Run())
	assert.GreaterOrEqual(t, frames, 3)
	assert.GreaterOrEqual(t, len(dev.Presents()), 3)
	assert.Zero(t, dev.Live(devicetest.KindPipeline), "Run releases the renderer")
	assert.True(t, released)
	e.Quit()
}

func TestRunStopsOnDeviceWait(t *testing.T) {
	dev, e := newHeadless(t)
	dev.Hung = true
	err := e.Run()
	assert.ErrorIs(t, err, device.ErrDeviceWait)
}

func TestNewEngineErrors(t *testing.T) {
	dev := devicetest.New()
	dev.FailCreate(devicetest.KindPipeline, fmt.Errorf("bad shader"))
	lib := shader.NewLibrary(assets.Shaders, shader.WithDir(assets.ShaderDir),
		shader.WithCompiler(func(string) ([]byte, error) { return []byte{0x03, 0x02, 0x23, 0x07}, nil }))
	_, err := NewEngine(WithDevice(dev), WithRendererOptions(renderer.WithShaderLibrary(lib)))
	assert.ErrorIs(t, err, device.ErrResourceCreation)
	assert.Zero(t, dev.Live(devicetest.KindImage))

	s := config.Default()
	s.FramesInFlight = 0
	_, err = NewEngine(WithDevice(devicetest.New()), WithSettings(s), WithRendererOptions(renderer.WithShaderLibrary(lib)))
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
}
