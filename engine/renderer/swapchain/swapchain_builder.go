package swapchain

import (
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// SwapchainBuilderOption is a functional option used to configure a Swapchain during construction.
type SwapchainBuilderOption func(*swapchain)

// WithFramesInFlight sets the number of frame slots.
//
// Parameters:
//   - n: the slot count, ignored when below 1
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the slot count
func WithFramesInFlight(n int) SwapchainBuilderOption {
	return func(s *swapchain) {
		if n > 0 {
			s.framesInFlight = n
		}
	}
}

// WithPresentMode sets the preferred present mode. FIFO is used when the surface does not support it.
//
// Parameters:
//   - mode: the preferred mode
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the preferred present mode
func WithPresentMode(mode device.PresentMode) SwapchainBuilderOption {
	return func(s *swapchain) {
		s.preferredMode = mode
	}
}

// WithPreferredFormat sets the preferred surface format.
//
// Parameters:
//   - format: the preferred format
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the preferred format
func WithPreferredFormat(format device.Format) SwapchainBuilderOption {
	return func(s *swapchain) {
		s.preferredFormat = format
	}
}

// WithFenceTimeout bounds the frame slot fence waits and the idle waits before recreation.
//
// Parameters:
//   - timeout: the wait bound, ignored when not positive
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the fence timeout
func WithFenceTimeout(timeout time.Duration) SwapchainBuilderOption {
	return func(s *swapchain) {
		if timeout > 0 {
			s.fenceTimeout = timeout
		}
	}
}

// WithAcquireTimeout bounds how long AcquireNext waits for a presentable image.
//
// Parameters:
//   - timeout: the wait bound, ignored when not positive
//
// Returns:
//   - SwapchainBuilderOption: a function that sets the acquire timeout
func WithAcquireTimeout(timeout time.Duration) SwapchainBuilderOption {
	return func(s *swapchain) {
		if timeout > 0 {
			s.acquireTimeout = timeout
		}
	}
}
