package frame_slot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/command_recorder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// State is the lifecycle state of a frame slot.
type State int

const (
	// StateIdle means no GPU work of this slot is outstanding.
	StateIdle State = iota
	// StateRecording means the CPU is writing the slot's commands.
	StateRecording
	// StateSubmitted means the GPU may still be executing the slot's commands.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// frameSlot is the implementation of the FrameSlot interface.
type frameSlot struct {
	mu *sync.Mutex

	dev      device.Device
	index    int
	state    State
	recorder command_recorder.CommandRecorder

	imageAcquired  device.SemaphoreHandle
	renderComplete device.SemaphoreHandle
	fence          device.FenceHandle

	fenceTimeout time.Duration
	lastWait     time.Duration
}

// FrameSlot is one of the rotating CPU/GPU synchronization contexts. It owns a command recorder,
// an image-acquired semaphore, a render-complete semaphore and a fence.
//
// The CPU never touches the recorder of a submitted slot until WaitIdle has observed its fence.
type FrameSlot interface {
	// Index returns the slot index.
	Index() int

	// State returns the lifecycle state.
	State() State

	// Recorder returns the slot's command recorder.
	Recorder() command_recorder.CommandRecorder

	// ImageAcquired returns the semaphore signaled when the presentable image is ready.
	ImageAcquired() device.SemaphoreHandle

	// RenderComplete returns the semaphore signaled when the slot's commands finish.
	RenderComplete() device.SemaphoreHandle

	// Fence returns the fence signaled when the slot's commands finish.
	Fence() device.FenceHandle

	// WaitIdle waits, bounded, for the previous submission of this slot to finish.
	//
	// Returns:
	//   - error: wraps device.ErrDeviceWait if the fence did not signal in time
	WaitIdle() error

	// LastWait returns how long the last WaitIdle blocked.
	LastWait() time.Duration

	// BeginRecording resets the recorder and starts a new recording.
	//
	// Returns:
	//   - error: ErrInvalidState unless the slot is idle
	BeginRecording() error

	// Submit finishes the recording and submits it, waiting on ImageAcquired and signaling
	// RenderComplete and the fence.
	//
	// When the device rejects the recording, the slot submits an empty batch in its place so the
	// semaphores and fence still cycle. The slot then ends in StateSubmitted and the acquired image
	// can be presented. If the empty batch is rejected as well, the semaphores and fence are
	// recreated and the slot ends in StateIdle, with the acquired image left to a surface rebuild.
	//
	// Returns:
	//   - error: ErrInvalidState unless the slot is recording, or the device submit error
	Submit() error

	// Discard drops everything recorded so far and starts an empty recording, keeping the
	// slot in StateRecording. A frame whose pass failed is submitted empty so its semaphores
	// and fence stay balanced.
	//
	// Returns:
	//   - error: ErrInvalidState unless the slot is recording
	Discard() error

	// Release destroys the semaphores and the fence. The slot must be idle.
	Release()
}

var _ FrameSlot = &frameSlot{}

// New creates a frame slot with a signaled fence so the first WaitIdle returns at once.
//
// Parameters:
//   - dev: the device context
//   - index: the slot index
//   - opts: optional configuration
//
// Returns:
//   - FrameSlot: the idle slot
//   - error: wraps device.ErrResourceCreation on failure
func New(dev device.Device, index int, opts ...FrameSlotBuilderOption) (FrameSlot, error) {
	s := &frameSlot{
		mu:           &sync.Mutex{},
		dev:          dev,
		index:        index,
		recorder:     command_recorder.New(index, command_recorder.WithBufferCheck(dev)),
		fenceTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.imageAcquired, err = dev.CreateSemaphore(); err != nil {
		return nil, fmt.Errorf("frame slot %d: %w", index, err)
	}
	if s.renderComplete, err = dev.CreateSemaphore(); err != nil {
		s.Release()
		return nil, fmt.Errorf("frame slot %d: %w", index, err)
	}
	if s.fence, err = dev.CreateFence(true); err != nil {
		s.Release()
		return nil, fmt.Errorf("frame slot %d: %w", index, err)
	}
	return s, nil
}

func (s *frameSlot) Index() int {
	return s.index
}

func (s *frameSlot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *frameSlot) Recorder() command_recorder.CommandRecorder {
	return s.recorder
}

func (s *frameSlot) ImageAcquired() device.SemaphoreHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageAcquired
}

func (s *frameSlot) RenderComplete() device.SemaphoreHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderComplete
}

func (s *frameSlot) Fence() device.FenceHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fence
}

func (s *frameSlot) WaitIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.dev.WaitFence(s.fence, s.fenceTimeout)
	s.lastWait = time.Since(start)
	if err != nil {
		return fmt.Errorf("frame slot %d: %w", s.index, err)
	}
	if s.state == StateSubmitted {
		s.state = StateIdle
	}
	return nil
}

func (s *frameSlot) LastWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWait
}

func (s *frameSlot) BeginRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w: frame slot %d is %s", device.ErrInvalidState, s.index, s.state)
	}
	s.recorder.Reset()
	if err := s.recorder.Begin(); err != nil {
		return err
	}
	s.state = StateRecording
	return nil
}

func (s *frameSlot) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return fmt.Errorf("%w: frame slot %d is %s", device.ErrInvalidState, s.index, s.state)
	}
	if err := s.recorder.End(); err != nil {
		return err
	}
	// Reset only right before the submit that signals it again: a frame skipped after
	// WaitIdle must leave the fence signaled.
	if err := s.dev.ResetFence(s.fence); err != nil {
		return fmt.Errorf("frame slot %d: %w", s.index, err)
	}
	err := s.submit()
	if err == nil {
		s.state = StateSubmitted
		common.Logger().Debug("frame slot submitted", "slot", s.index, "commands", len(s.recorder.Commands()))
		return nil
	}
	err = fmt.Errorf("frame slot %d submit: %w", s.index, err)

	s.recorder.Reset()
	if s.recorder.Begin() == nil && s.recorder.End() == nil && s.submit() == nil {
		s.state = StateSubmitted
		common.Logger().Warn("frame slot submitted empty", "slot", s.index, "error", err)
		return err
	}

	s.recorder.Reset()
	s.state = StateIdle
	if renewErr := s.renewSync(); renewErr != nil {
		return errors.Join(err, renewErr)
	}
	common.Logger().Warn("frame slot sync objects recreated", "slot", s.index, "error", err)
	return err
}

func (s *frameSlot) submit() error {
	return s.dev.Submit(device.SubmitInfo{
		Commands: s.recorder.Commands(),
		Wait:     []device.SemaphoreHandle{s.imageAcquired},
		Signal:   []device.SemaphoreHandle{s.renderComplete},
		Fence:    s.fence,
	})
}

// renewSync replaces the semaphores and the fence after no batch could consume them. The new
// fence starts signaled, like the one New creates.
func (s *frameSlot) renewSync() error {
	s.destroySync()
	var err error
	if s.imageAcquired, err = s.dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("frame slot %d: %w", s.index, err)
	}
	if s.renderComplete, err = s.dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("frame slot %d: %w", s.index, err)
	}
	if s.fence, err = s.dev.CreateFence(true); err != nil {
		return fmt.Errorf("frame slot %d: %w", s.index, err)
	}
	return nil
}

func (s *frameSlot) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return fmt.Errorf("%w: frame slot %d is %s", device.ErrInvalidState, s.index, s.state)
	}
	s.recorder.Reset()
	return s.recorder.Begin()
}

func (s *frameSlot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroySync()
	s.recorder.Reset()
}

func (s *frameSlot) destroySync() {
	if s.imageAcquired.Valid() {
		s.dev.DestroySemaphore(s.imageAcquired)
		s.imageAcquired = device.SemaphoreHandle{}
	}
	if s.renderComplete.Valid() {
		s.dev.DestroySemaphore(s.renderComplete)
		s.renderComplete = device.SemaphoreHandle{}
	}
	if s.fence.Valid() {
		s.dev.DestroyFence(s.fence)
		s.fence = device.FenceHandle{}
	}
}
