package engine

import (
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/camera"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/light"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables the periodic frame statistics log.
//
// Parameters:
//   - enabled: if true, enables profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 are treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit caps the render loop. Pass 0 to uncap it (default).
//
// Parameters:
//   - fps: maximum render frames per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow uses a configured window rather than creating one.
//
// Parameters:
//   - w: the window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithDevice renders with an existing device. The engine does not release it. Without a window
// the engine is headless and renders at the size given by WithSize.
//
// Parameters:
//   - dev: the device
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(dev device.Device) EngineBuilderOption {
	return func(e *engine) {
		e.dev = dev
	}
}

// WithSize sets the initial window or headless surface size.
//
// Parameters:
//   - width, height: the size in pixels
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSize(width, height uint32) EngineBuilderOption {
	return func(e *engine) {
		e.width, e.height = width, height
	}
}

// WithSettings sets the renderer settings. WithSettingsFile takes precedence.
func WithSettings(s config.Settings) EngineBuilderOption {
	return func(e *engine) {
		e.settings = s
	}
}

// WithSettingsFile loads the renderer settings from a TOML file. A missing file means defaults.
func WithSettingsFile(path string) EngineBuilderOption {
	return func(e *engine) {
		e.settingsPath = path
	}
}

// WithCamera sets the camera. The default orbits the origin.
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithSun sets the directional light.
func WithSun(s light.Sun) EngineBuilderOption {
	return func(e *engine) {
		e.sun = s
	}
}

// WithMoveSpeed sets how fast the held movement keys pan the camera, in world units per second.
func WithMoveSpeed(speed float32) EngineBuilderOption {
	return func(e *engine) {
		e.moveSpeed = speed
	}
}

// WithRendererOptions passes extra options to renderer.New, such as a sky box.
//
// Parameters:
//   - opts: renderer options, applied after the engine's own
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(opts ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOpts = append(e.rendererOpts, opts...)
	}
}
