package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

var errClosed = errors.New("window is closed")

// glfwWindow is the GLFW side of an engineWindow.
type glfwWindow struct {
	window *glfw.Window
}

// newPlatformWindow creates the GLFW window without a client API, since WebGPU owns the surface,
// and routes its events to the window callbacks.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("initialize GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfwBool(w.resizable))

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("create GLFW window: %w", err)
	}
	win.SetSizeLimits(w.minSize[0], w.minSize[1], w.maxSize[0], w.maxSize[1])
	w.platform = &glfwWindow{window: win}

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			return
		}
		switch {
		case action == glfw.Release && w.callbacks.KeyUp != nil:
			w.callbacks.KeyUp(uint32(key))
		case action != glfw.Release && w.callbacks.KeyDown != nil:
			w.callbacks.KeyDown(uint32(key))
		}
	})
	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.callbacks.Scroll != nil {
			w.callbacks.Scroll(float32(yoff))
		}
	})
	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonMiddle || w.callbacks.MiddleMouse == nil {
			return
		}
		x, y := win.GetCursorPos()
		w.callbacks.MiddleMouse(action == glfw.Press, int32(x), int32(y))
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if w.callbacks.MouseMove != nil {
			w.callbacks.MouseMove(int32(x), int32(y))
		}
	})

	// The framebuffer size is in pixels, which is what the surface needs; it differs from the
	// window size on high-DPI displays. Some platforms keep the old size while minimized.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(width, height)
	})
	win.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		if iconified {
			w.resized(0, 0)
			return
		}
		w.resized(win.GetFramebufferSize())
	})

	w.width, w.height = win.GetFramebufferSize()
	common.Logger().Info("window created", "title", w.title, "width", w.width, "height", w.height)
	return nil
}

func glfwBool(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

// resized stores the new framebuffer size and forwards it when it changed.
func (w *engineWindow) resized(width, height int) {
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	if w.callbacks.Resize != nil {
		w.callbacks.Resize(w.Size())
	}
}

// platformGetSurfaceDescriptor asks the wgpuglfw bridge for the native surface (HWND, X11,
// Wayland or Metal layer) of the window.
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(w.platform.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	return w.platform != nil && !w.platform.window.ShouldClose()
}

func platformRequestClose(w *engineWindow) {
	if w.platform != nil {
		w.platform.window.SetShouldClose(true)
	}
}

func platformSetTitle(w *engineWindow, title string) {
	if w.platform != nil {
		w.platform.window.SetTitle(title)
	}
}

// platformCloseWindow destroys the GLFW window and terminates the library.
func platformCloseWindow(w *engineWindow) error {
	if w.platform == nil {
		return errClosed
	}
	w.platform.window.Destroy()
	glfw.Terminate()
	w.platform = nil
	return nil
}

// platformProcessMessages polls pending events without blocking.
//
// Returns:
//   - bool: whether the loop should continue
func platformProcessMessages(w *engineWindow) bool {
	if !platformIsRunningCheck(w) {
		return false
	}
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
