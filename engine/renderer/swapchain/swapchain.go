package swapchain

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/frame_slot"
)

// swapchain is the implementation of the Swapchain interface.
type swapchain struct {
	mu *sync.Mutex

	dev device.Device

	framesInFlight  int
	preferredFormat device.Format
	preferredMode   device.PresentMode
	fenceTimeout    time.Duration
	acquireTimeout  time.Duration

	format      device.Format
	presentMode device.PresentMode
	extent      device.Extent
	images      []attachment.Attachment

	slots       []frame_slot.FrameSlot
	current     int
	imageIndex  uint32
	acquired    bool
	frameCount  uint64
	lastAcquire time.Duration
}

// Swapchain owns the presentable images and the frame slots, and drives the per-frame
// acquire, submit and present protocol:
//
//  1. AcquireNext waits for the current slot's fence, then acquires an image signaling the slot's ImageAcquired semaphore
//  2. The caller records into CurrentSlot() and submits it
//  3. Present waits on the slot's RenderComplete semaphore and rotates to the next slot
type Swapchain interface {
	// AcquireNext waits, bounded, for the current slot to be idle and acquires the next presentable image.
	//
	// Returns:
	//   - uint32: the acquired image index
	//   - error: wraps device.ErrSurfaceOutOfDate when the surface must be recreated, or device.ErrDeviceWait
	AcquireNext() (uint32, error)

	// Present queues the acquired image for display and rotates to the next frame slot.
	// The slot rotates even when the present fails, since its commands were submitted.
	//
	// Returns:
	//   - error: wraps device.ErrSurfaceOutOfDate when the surface must be recreated
	Present() error

	// CurrentSlot returns the frame slot of the frame being built.
	CurrentSlot() frame_slot.FrameSlot

	// CurrentSlotIndex returns the index of the current frame slot.
	CurrentSlotIndex() int

	// Slots returns every frame slot in index order.
	Slots() []frame_slot.FrameSlot

	// ImageIndex returns the index of the last acquired image.
	ImageIndex() uint32

	// Images returns the swapchain-backed attachments in image index order.
	Images() []attachment.Attachment

	// ImageCount returns the number of presentable images.
	ImageCount() int

	// Format returns the chosen surface format.
	Format() device.Format

	// PresentMode returns the chosen present mode.
	PresentMode() device.PresentMode

	// Extent returns the surface size.
	Extent() device.Extent

	// FrameCount returns the number of frames presented or attempted.
	FrameCount() uint64

	// LastAcquireWait returns how long the last AcquireNext blocked, fence wait included.
	LastAcquireWait() time.Duration

	// Recreate waits for the device, then reconfigures the surface at a new size. The previous
	// swapchain-backed attachments are released without destroying their images.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: wraps device.ErrDeviceWait or device.ErrResourceCreation
	Recreate(width, height uint32) error

	// Release waits for the device and destroys every frame slot.
	Release()
}

var _ Swapchain = &swapchain{}

// New configures the surface and creates the frame slots.
//
// Parameters:
//   - dev: the device context
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//   - opts: optional configuration
//
// Returns:
//   - Swapchain: the swapchain
//   - error: wraps device.ErrResourceCreation on failure
func New(dev device.Device, width, height uint32, opts ...SwapchainBuilderOption) (Swapchain, error) {
	s := &swapchain{
		mu:              &sync.Mutex{},
		dev:             dev,
		framesInFlight:  2,
		preferredFormat: device.FormatBGRA8UnormSrgb,
		preferredMode:   device.PresentModeMailbox,
		fenceTimeout:    time.Second,
		acquireTimeout:  time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.configure(width, height); err != nil {
		return nil, err
	}
	for i := range s.framesInFlight {
		slot, err := frame_slot.New(dev, i, frame_slot.WithFenceTimeout(s.fenceTimeout))
		if err != nil {
			s.releaseSlots()
			return nil, fmt.Errorf("swapchain: %w", err)
		}
		s.slots = append(s.slots, slot)
	}
	return s, nil
}

// ChooseFormat picks the preferred format when supported, else BGRA8 sRGB, else the first reported format.
//
// Parameters:
//   - caps: the surface capabilities
//   - preferred: the preferred format
//
// Returns:
//   - device.Format: the chosen format
func ChooseFormat(caps device.SurfaceCapabilities, preferred device.Format) device.Format {
	if slices.Contains(caps.Formats, preferred) {
		return preferred
	}
	if slices.Contains(caps.Formats, device.FormatBGRA8UnormSrgb) {
		return device.FormatBGRA8UnormSrgb
	}
	if len(caps.Formats) > 0 {
		return caps.Formats[0]
	}
	return preferred
}

// ChoosePresentMode picks the preferred mode when supported, else FIFO, which every surface supports.
//
// Parameters:
//   - caps: the surface capabilities
//   - preferred: the preferred present mode
//
// Returns:
//   - device.PresentMode: the chosen mode
func ChoosePresentMode(caps device.SurfaceCapabilities, preferred device.PresentMode) device.PresentMode {
	if slices.Contains(caps.PresentModes, preferred) {
		return preferred
	}
	return device.PresentModeFifo
}

// ChooseImageCount requests one image more than the minimum, clamped to the maximum when there is one.
//
// Parameters:
//   - caps: the surface capabilities
//
// Returns:
//   - uint32: the image count
func ChooseImageCount(caps device.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func (s *swapchain) configure(width, height uint32) error {
	caps := s.dev.SurfaceCapabilities()
	if caps.CurrentExtent.Width != 0 && caps.CurrentExtent.Height != 0 {
		width, height = caps.CurrentExtent.Width, caps.CurrentExtent.Height
	}
	cfg := device.SurfaceConfig{
		Width:       width,
		Height:      height,
		Format:      ChooseFormat(caps, s.preferredFormat),
		PresentMode: ChoosePresentMode(caps, s.preferredMode),
		ImageCount:  ChooseImageCount(caps),
	}
	handles, err := s.dev.ConfigureSurface(cfg)
	if err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}

	for _, img := range s.images {
		img.Release()
	}
	s.images = make([]attachment.Attachment, len(handles))
	for i, h := range handles {
		s.images[i] = attachment.NewSwapchainBacked(s.dev, h, cfg.Width, cfg.Height, cfg.Format)
	}
	s.format = cfg.Format
	s.presentMode = cfg.PresentMode
	s.extent = device.Extent{Width: cfg.Width, Height: cfg.Height}
	s.acquired = false
	common.Logger().Info("surface configured",
		"width", cfg.Width, "height", cfg.Height, "format", cfg.Format.String(),
		"present_mode", cfg.PresentMode.String(), "images", len(handles))
	return nil
}

func (s *swapchain) AcquireNext() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired {
		return 0, fmt.Errorf("%w: image %d is still acquired", device.ErrInvalidState, s.imageIndex)
	}
	start := time.Now()
	slot := s.slots[s.current]
	if err := slot.WaitIdle(); err != nil {
		s.lastAcquire = time.Since(start)
		return 0, err
	}
	index, err := s.dev.AcquireNextImage(slot.ImageAcquired(), s.acquireTimeout)
	s.lastAcquire = time.Since(start)
	if err != nil {
		if errors.Is(err, device.ErrSurfaceOutOfDate) {
			common.Logger().Warn("acquire: surface out of date", "slot", s.current)
		}
		return 0, fmt.Errorf("swapchain acquire: %w", err)
	}
	s.imageIndex = index
	s.acquired = true
	return index, nil
}

func (s *swapchain) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acquired {
		return fmt.Errorf("%w: present without an acquired image", device.ErrInvalidState)
	}
	slot := s.slots[s.current]
	err := s.dev.Present(s.imageIndex, []device.SemaphoreHandle{slot.RenderComplete()})
	s.acquired = false
	s.current = (s.current + 1) % len(s.slots)
	s.frameCount++
	if err != nil {
		if errors.Is(err, device.ErrSurfaceOutOfDate) {
			common.Logger().Warn("present: surface out of date", "image", s.imageIndex)
		}
		return fmt.Errorf("swapchain present: %w", err)
	}
	return nil
}

func (s *swapchain) CurrentSlot() frame_slot.FrameSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[s.current]
}

func (s *swapchain) CurrentSlotIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *swapchain) Slots() []frame_slot.FrameSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.slots)
}

func (s *swapchain) ImageIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageIndex
}

func (s *swapchain) Images() []attachment.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.images)
}

func (s *swapchain) ImageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

func (s *swapchain) Format() device.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *swapchain) PresentMode() device.PresentMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presentMode
}

func (s *swapchain) Extent() device.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *swapchain) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

func (s *swapchain) LastAcquireWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAcquire
}

// drain waits for every submitted slot so none is left in flight.
func (s *swapchain) drain() error {
	if err := s.dev.WaitIdle(s.fenceTimeout); err != nil {
		return fmt.Errorf("swapchain: %w", err)
	}
	for _, slot := range s.slots {
		if slot.State() == frame_slot.StateSubmitted {
			if err := slot.WaitIdle(); err != nil {
				return fmt.Errorf("swapchain: %w", err)
			}
		}
	}
	return nil
}

func (s *swapchain) Recreate(width, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drain(); err != nil {
		return err
	}
	return s.configure(width, height)
}

func (s *swapchain) releaseSlots() {
	for _, slot := range s.slots {
		slot.Release()
	}
	s.slots = nil
}

func (s *swapchain) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drain(); err != nil {
		common.Logger().Error("swapchain release: device did not go idle", "error", err)
	}
	for _, img := range s.images {
		img.Release()
	}
	s.images = nil
	s.releaseSlots()
}
