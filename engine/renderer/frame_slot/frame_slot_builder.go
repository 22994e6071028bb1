package frame_slot

import "time"

// FrameSlotBuilderOption is a functional option used to configure a FrameSlot during construction.
type FrameSlotBuilderOption func(*frameSlot)

// WithFenceTimeout bounds how long WaitIdle blocks on the slot's fence.
//
// Parameters:
//   - timeout: the wait bound, ignored when not positive
//
// Returns:
//   - FrameSlotBuilderOption: a function that sets the fence timeout
func WithFenceTimeout(timeout time.Duration) FrameSlotBuilderOption {
	return func(s *frameSlot) {
		if timeout > 0 {
			s.fenceTimeout = timeout
		}
	}
}
