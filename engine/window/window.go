// Package window opens the GLFW window the renderer presents to and forwards its events as callbacks.
package window

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// Callbacks receive window events on the goroutine running ProcessMessages. Nil fields are skipped.
type Callbacks struct {
	// Update runs once per message loop iteration, after events were dispatched.
	Update func()
	// Resize reports the framebuffer size in pixels. A minimized window reports zero.
	Resize func(width, height uint32)
	// Scroll reports wheel movement, positive away from the user.
	Scroll func(delta float32)
	// KeyDown fires on press and on repeat; KeyUp on release. Codes match common.Key*.
	KeyDown func(key uint32)
	KeyUp   func(key uint32)
	// MiddleMouse reports the middle button with the cursor position.
	MiddleMouse func(pressed bool, x, y int32)
	MouseMove   func(x, y int32)
}

// Window is a platform window with a WebGPU surface.
type Window interface {
	// SetCallbacks replaces every event callback.
	SetCallbacks(cb Callbacks)

	// SurfaceDescriptor returns the platform surface of the window for the device.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil once the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is open and no close was requested.
	IsRunning() bool

	// RequestClose asks the message loop to stop after the current iteration. The window stays
	// alive until Close.
	RequestClose()

	// Close destroys the window.
	//
	// Returns:
	//   - error: error if the window is already closed
	Close() error

	// ProcessMessages dispatches events until the window is closed or a close is requested.
	// It must run on the goroutine that created the window.
	ProcessMessages()

	// Size returns the framebuffer size in pixels, zero while minimized.
	Size() (width, height uint32)

	// SetTitle replaces the title bar text.
	SetTitle(title string)
}

// engineWindow holds the configuration and the GLFW state of a Window.
type engineWindow struct {
	title     string
	width     int
	height    int
	minSize   [2]int
	maxSize   [2]int
	resizable bool

	callbacks Callbacks
	platform  *glfwWindow
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread and
// must run ProcessMessages.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "Renderer",
		width:     1280,
		height:    720,
		minSize:   [2]int{320, 200},
		maxSize:   [2]int{3840, 2160},
		resizable: true,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *engineWindow) SetCallbacks(cb Callbacks) {
	w.callbacks = cb
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	platformRequestClose(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for platformProcessMessages(w) {
		if w.callbacks.Update != nil {
			w.callbacks.Update()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (width, height uint32) {
	return uint32(max(w.width, 0)), uint32(max(w.height, 0))
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}
