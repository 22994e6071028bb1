package device

// WGPUDeviceBuilderOption is a functional option applied to the WebGPU device during construction via NewWGPUDevice.
type WGPUDeviceBuilderOption func(*wgpuDevice)

// WithForceFallbackAdapter forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the option to a device
func WithForceFallbackAdapter(force bool) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithPushConstantSlots sets how many push constant blocks a single submission may carry.
// Each slot occupies 256 bytes of the push constant ring buffer.
//
// Parameters:
//   - slots: the ring capacity, defaults to 4096
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the option to a device
func WithPushConstantSlots(slots int) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		if slots > 0 {
			d.pushSlots = slots
		}
	}
}

// WithDeviceLabel sets the label reported to the driver for the device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the option to a device
func WithDeviceLabel(label string) WGPUDeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.label = label
	}
}
