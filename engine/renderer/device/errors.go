package device

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceCreation is returned when an image, buffer, pipeline or render target could not be built.
	ErrResourceCreation = errors.New("resource creation failed")
	// ErrSurfaceOutOfDate is returned by acquire and present when the surface no longer matches the window.
	ErrSurfaceOutOfDate = errors.New("surface out of date")
	// ErrDeviceWait is returned when the GPU did not respond within the wait bound.
	ErrDeviceWait = errors.New("device wait timed out")
	// ErrMissingBinding is returned when a shader-declared binding was never populated.
	ErrMissingBinding = errors.New("missing binding")
	// ErrLayoutMismatch is returned when an attachment is not in the layout a render target expects on entry.
	ErrLayoutMismatch = errors.New("attachment layout mismatch")
	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidHandle is returned for stale or zero handles.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrInvalidDescriptor is returned for descriptors that break their structural rules.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// MissingBindingError reports which binding of which resource set was left empty.
type MissingBindingError struct {
	Pipeline string
	Group    uint32
	Binding  uint32
	// Slot is the frame slot whose copy is incomplete.
	Slot int
	Name string
}

func (e *MissingBindingError) Error() string {
	name := e.Name
	if name == "" {
		name = "?"
	}
	return fmt.Sprintf("missing binding: pipeline %q group %d binding %d (%s) slot %d", e.Pipeline, e.Group, e.Binding, name, e.Slot)
}

func (e *MissingBindingError) Unwrap() error {
	return ErrMissingBinding
}

// LayoutMismatchError reports an attachment whose layout does not match what a pass expects.
type LayoutMismatchError struct {
	Attachment string
	Pass       string
	Have       Layout
	Want       Layout
}

func (e *LayoutMismatchError) Error() string {
	return fmt.Sprintf("attachment %q entering %q: layout is %s, want %s", e.Attachment, e.Pass, e.Have, e.Want)
}

func (e *LayoutMismatchError) Unwrap() error {
	return ErrLayoutMismatch
}
