package frame_slot

import (
	"errors"
	"testing"
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acquire signals the slot's image-acquired semaphore the way the swapchain does.
func acquire(t *testing.T, dev *devicetest.Device, s FrameSlot) {
	t.Helper()
	_, err := dev.AcquireNextImage(s.ImageAcquired(), time.Second)
	require.NoError(t, err)
}

func newDevice(t *testing.T) *devicetest.Device {
	t.Helper()
	dev := devicetest.New()
	_, err := dev.ConfigureSurface(device.SurfaceConfig{Width: 8, Height: 8, Format: device.FormatBGRA8UnormSrgb, ImageCount: 2})
	require.NoError(t, err)
	return dev
}

func TestLifecycle(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, dev.FenceSignaled(s.Fence()), "fences start signaled")

	require.NoError(t, s.WaitIdle())
	require.NoError(t, s.BeginRecording())
	assert.Equal(t, StateRecording, s.State())
	assert.ErrorIs(t, s.BeginRecording(), device.ErrInvalidState)

	acquire(t, dev, s)
	require.NoError(t, s.Submit())
	assert.Equal(t, StateSubmitted, s.State())
	assert.True(t, dev.SemaphoreSignaled(s.RenderComplete()))
	assert.False(t, dev.SemaphoreSignaled(s.ImageAcquired()))
	assert.ErrorIs(t, s.BeginRecording(), device.ErrInvalidState, "a submitted slot must be waited first")

	require.NoError(t, s.WaitIdle())
	assert.Equal(t, StateIdle, s.State())
	require.Len(t, dev.Submissions(), 1)
	sub := dev.Submissions()[0]
	assert.Equal(t, []device.SemaphoreHandle{s.ImageAcquired()}, sub.Wait)
	assert.Equal(t, []device.SemaphoreHandle{s.RenderComplete()}, sub.Signal)
	assert.Equal(t, s.Fence(), sub.Fence)
}

func TestSubmitRequiresRecording(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Submit(), device.ErrInvalidState)
	assert.Empty(t, dev.Submissions())
}

func TestSubmitWithoutAcquireIsRejected(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	require.NoError(t, s.BeginRecording())
	assert.ErrorIs(t, s.Submit(), device.ErrInvalidState)
	assert.Empty(t, dev.Submissions())
	assert.Equal(t, StateIdle, s.State(), "a slot the device refused starts over")
	require.NoError(t, s.WaitIdle())
}

func TestFailedSubmitIsReplacedByEmptyBatch(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	require.NoError(t, s.BeginRecording())
	acquire(t, dev, s)

	boom := errors.New("queue lost")
	dev.FailNextSubmit(boom)
	err = s.Submit()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateSubmitted, s.State())
	require.Len(t, dev.Submissions(), 1)
	assert.Empty(t, dev.Submissions()[0].Commands)
	assert.True(t, dev.SemaphoreSignaled(s.RenderComplete()))
	assert.False(t, dev.SemaphoreSignaled(s.ImageAcquired()))

	require.NoError(t, dev.Present(dev.Acquires()[0], []device.SemaphoreHandle{s.RenderComplete()}))
	require.NoError(t, s.WaitIdle())
	require.NoError(t, s.BeginRecording())
	acquire(t, dev, s)
	require.NoError(t, s.Submit())
	assert.Len(t, dev.Submissions(), 2)
}

func TestSubmitRejectedTwiceRenewsSyncObjects(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	oldFence, oldAcquired := s.Fence(), s.ImageAcquired()
	require.NoError(t, s.BeginRecording())
	acquire(t, dev, s)

	boom := errors.New("queue lost")
	dev.FailNextSubmit(boom)
	dev.FailNextSubmit(boom)
	assert.ErrorIs(t, s.Submit(), boom)
	assert.Empty(t, dev.Submissions())
	assert.Equal(t, StateIdle, s.State())

	assert.NotEqual(t, oldFence, s.Fence())
	assert.NotEqual(t, oldAcquired, s.ImageAcquired())
	assert.True(t, dev.FenceSignaled(s.Fence()), "the new fence lets the next wait pass")
	assert.False(t, dev.SemaphoreSignaled(s.ImageAcquired()))
	assert.Equal(t, 2, dev.Live(devicetest.KindSemaphore))
	assert.Equal(t, 1, dev.Live(devicetest.KindFence))

	require.NoError(t, s.WaitIdle())
	require.NoError(t, s.BeginRecording())
}

func TestWaitIdleTimesOutOnHungDevice(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0, WithFenceTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.BeginRecording())
	acquire(t, dev, s)

	dev.Hung = true
	require.NoError(t, s.Submit())
	err = s.WaitIdle()
	assert.ErrorIs(t, err, device.ErrDeviceWait)
	assert.Equal(t, StateSubmitted, s.State())
	assert.ErrorIs(t, s.BeginRecording(), device.ErrInvalidState)

	dev.Hung = false
	dev.Complete()
	require.NoError(t, s.WaitIdle())
	assert.Equal(t, StateIdle, s.State())
}

func TestRecordingIsResetBetweenFrames(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, s.WaitIdle())
		require.NoError(t, s.BeginRecording())
		acquire(t, dev, s)
		require.NoError(t, s.Submit())
		_, err := dev.AcquireNextImage(s.ImageAcquired(), time.Second)
		require.Error(t, err, "the previous image has not been presented")
		require.NoError(t, dev.Present(dev.Acquires()[len(dev.Acquires())-1], []device.SemaphoreHandle{s.RenderComplete()}))
	}
	assert.Len(t, dev.Submissions(), 2)
	assert.Equal(t, 2, dev.FenceWaits())
}

func TestReleaseDestroysSyncObjects(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	s.Release()
	s.Release()
	assert.Equal(t, 0, dev.Live(devicetest.KindSemaphore))
	assert.Equal(t, 0, dev.Live(devicetest.KindFence))
}

func TestDiscardSubmitsAnEmptyRecording(t *testing.T) {
	dev := newDevice(t)
	s, err := New(dev, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Discard(), device.ErrInvalidState)

	require.NoError(t, s.BeginRecording())
	require.NoError(t, s.Discard())
	assert.Equal(t, StateRecording, s.State())

	acquire(t, dev, s)
	require.NoError(t, s.Submit())
	require.Len(t, dev.Submissions(), 1)
	assert.Empty(t, dev.Submissions()[0].Commands)
}
