package command_recorder

import "github.com/SedenionProj/vulkan-renderer/engine/renderer/device"

// BufferChecker tells live buffers from released ones. device.Device satisfies it.
type BufferChecker interface {
	BufferAlive(h device.BufferHandle) bool
}

// CommandRecorderBuilderOption is a functional option used to configure a CommandRecorder during construction.
type CommandRecorderBuilderOption func(*commandRecorder)

// WithBufferCheck makes BindVertexAndIndexBuffers reject buffers that were already destroyed.
// Without it only zero handles are rejected.
//
// Parameters:
//   - check: the liveness source, usually the device
//
// Returns:
//   - CommandRecorderBuilderOption: a function that sets the buffer check
func WithBufferCheck(check BufferChecker) CommandRecorderBuilderOption {
	return func(r *commandRecorder) {
		r.bufferCheck = check
	}
}
