package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/camera"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/light"
	"github.com/SedenionProj/vulkan-renderer/engine/profiler"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/window"
)

// Toggle names an optional pass that can be switched at runtime.
type Toggle int

const (
	ToggleSSAO Toggle = iota
	ToggleBloom
	ToggleShadow
	ToggleSkyBox
)

func (t Toggle) String() string {
	switch t {
	case ToggleSSAO:
		return "ssao"
	case ToggleBloom:
		return "bloom"
	case ToggleShadow:
		return "shadow"
	case ToggleSkyBox:
		return "skybox"
	}
	return fmt.Sprintf("Toggle(%d)", int(t))
}

// keyToggles maps the function keys to the passes they switch.
var keyToggles = map[uint32]Toggle{
	common.KeyF1: ToggleSSAO,
	common.KeyF2: ToggleBloom,
	common.KeyF3: ToggleShadow,
	common.KeyF4: ToggleSkyBox,
}

// engine implements the Engine interface.
// Coordinates the tick and render goroutines with the window's message loop on the main thread.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once
	fatal       error

	window     window.Window
	dev        device.Device
	ownsDevice bool
	renderer   renderer.Renderer
	camera     camera.Camera
	sun        light.Sun

	settings     config.Settings
	settingsPath string
	width        uint32
	height       uint32
	rendererOpts []renderer.RendererBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration
	releaseCallback  func()

	keysDown  map[uint32]bool
	dragging  bool
	lastMouse [2]int32
	moveSpeed float32
}

// Engine is the main entry point. It owns the window, the device and the renderer, drives
// the frame loop and turns window input into camera movement and pass toggles.
type Engine interface {
	// Window returns the window, or nil for a headless engine.
	Window() window.Window

	// Device returns the device meshes are uploaded to.
	Device() device.Device

	// Renderer returns the renderer.
	Renderer() renderer.Renderer

	// Camera returns the camera whose matrices each frame is drawn with.
	Camera() camera.Camera

	// Sun returns the directional light.
	Sun() light.Sun

	// EnableProfiler enables the periodic frame statistics log.
	EnableProfiler()

	// DisableProfiler disables the periodic frame statistics log.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after the camera moved.
	//
	// Parameters:
	//   - callback: receives the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: receives the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetReleaseCallback registers the function Release calls before destroying the renderer and
	// the device. Meshes and materials created on the engine's device are released there.
	//
	// Parameters:
	//   - callback: function to call once
	SetReleaseCallback(callback func())

	// SetRenderFrameLimit caps the render loop. Pass 0 to uncap it.
	//
	// Parameters:
	//   - fps: maximum frames per second
	SetRenderFrameLimit(fps float64)

	// SetDrawList replaces what the next frames draw.
	//
	// Parameters:
	//   - items: the draw items
	SetDrawList(items []renderer.DrawItem)

	// Toggle switches an optional pass on or off from the next frame on.
	//
	// Parameters:
	//   - t: the pass to switch
	//
	// Returns:
	//   - bool: whether the pass is now enabled
	//   - error: a settings error from the renderer
	Toggle(t Toggle) (bool, error)

	// Frame renders one frame with the current camera and sun. An out-of-date or minimized
	// surface is not an error: the frame is skipped and the surface rebuilt on the next one.
	//
	// Parameters:
	//   - ctx: cancels pass recording
	//
	// Returns:
	//   - error: a missing binding, resource creation or device wait error
	Frame(ctx context.Context) error

	// Run starts the tick and render goroutines and pumps window messages until the window closes
	// or Quit is called. The device, renderer and window are released before it returns.
	//
	// Returns:
	//   - error: the error that stopped the render loop, if any
	Run() error

	// Quit signals all engine goroutines to stop. Safe to call multiple times.
	Quit()

	// Release destroys the renderer, the device when the engine created it, and the window.
	// Run calls it; use it directly for engines that never ran.
	Release()
}

var _ Engine = &engine{}

// NewEngine builds the window, the device and the renderer. Settings come from the file given
// with WithSettingsFile, or the defaults.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a settings, window, device or renderer error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		settings:        config.Default(),
		width:           1280,
		height:          720,
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
		keysDown:        make(map[uint32]bool),
		moveSpeed:       5,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.settingsPath != "" {
		s, err := config.Load(e.settingsPath)
		if err != nil {
			return nil, err
		}
		e.settings = s
	}

	if err := e.init(); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

// init creates whatever the options did not provide and wires the window callbacks.
func (e *engine) init() error {
	if e.dev == nil {
		if e.window == nil {
			w, err := window.NewWindow(window.WithSize(int(e.width), int(e.height)))
			if err != nil {
				return err
			}
			e.window = w
		}
		dev, err := device.NewWGPUDevice(e.window.SurfaceDescriptor())
		if err != nil {
			return err
		}
		e.dev = dev
		e.ownsDevice = true
	}
	if e.window != nil {
		e.width, e.height = e.window.Size()
	}

	if e.camera == nil {
		e.camera = camera.NewCamera(camera.WithController(camera.NewCameraController()))
	}
	if e.height > 0 {
		e.camera.SetAspect(float32(e.width) / float32(e.height))
	}
	e.camera.Update()
	if e.sun == nil {
		e.sun = light.NewSun(light.WithShadowVolume(light.DefaultShadowHalfExtent, e.settings.ShadowMapSize))
	}

	opts := append([]renderer.RendererBuilderOption{
		renderer.WithSettings(e.settings),
		renderer.WithCamera(e.camera.RenderCamera()),
		renderer.WithLight(e.sun.RenderLight()),
	}, e.rendererOpts...)
	r, err := renderer.New(e.dev, e.width, e.height, opts...)
	if err != nil {
		return err
	}
	e.renderer = r

	if e.window != nil {
		e.window.SetCallbacks(window.Callbacks{
			Update:      e.handleUpdate,
			Resize:      e.handleResize,
			Scroll:      e.handleScroll,
			KeyDown:     e.handleKeyDown,
			KeyUp:       e.handleKeyUp,
			MiddleMouse: e.setDrag,
			MouseMove:   e.handleMouseMove,
		})
	}
	return nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Device() device.Device {
	return e.dev
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Sun() light.Sun {
	return e.sun
}

func (e *engine) SetDrawList(items []renderer.DrawItem) {
	e.renderer.SetDrawList(items)
}

func (e *engine) Toggle(t Toggle) (bool, error) {
	s := e.renderer.Settings()
	var flag *bool
	switch t {
	case ToggleSSAO:
		flag = &s.SSAO
	case ToggleBloom:
		flag = &s.Bloom
	case ToggleShadow:
		flag = &s.Shadow
	case ToggleSkyBox:
		flag = &s.SkyBox
	default:
		return false, fmt.Errorf("%w: unknown toggle %v", device.ErrInvalidDescriptor, t)
	}
	*flag = !*flag
	if err := e.renderer.SetSettings(s); err != nil {
		return !*flag, err
	}
	common.Logger().Info("pass toggled", "pass", t.String(), "enabled", *flag)
	return *flag, nil
}

func (e *engine) Frame(ctx context.Context) error {
	if ctrl := e.camera.Controller(); ctrl != nil {
		e.sun.Follow(ctrl.Target())
	}
	e.renderer.SetCamera(e.camera.RenderCamera())
	e.renderer.SetLight(e.sun.RenderLight())

	err := e.renderer.RenderFrame(ctx)
	if errors.Is(err, device.ErrSurfaceOutOfDate) {
		common.Logger().Debug("frame skipped", "err", err)
		err = nil
	}

	e.mu.Lock()
	profiling := e.profilingEnabled
	e.mu.Unlock()
	if profiling {
		e.profiler.Tick(e.renderer.Stats())
	}
	return err
}

func (e *engine) Run() error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()

	if e.window != nil {
		e.window.ProcessMessages()
	} else {
		<-e.quitChannel
	}
	e.signalQuit()
	e.wg.Wait()
	e.Release()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(e.quitChannel)
	})
}

func (e *engine) Release() {
	e.mu.Lock()
	callback := e.releaseCallback
	e.releaseCallback = nil
	e.mu.Unlock()
	if callback != nil {
		callback()
	}
	if e.renderer != nil {
		e.renderer.Release()
		e.renderer = nil
	}
	if e.dev != nil && e.ownsDevice {
		e.dev.Release()
		e.dev = nil
	}
	if e.window != nil {
		// Close only fails when the window is already destroyed.
		_ = e.window.Close()
	}
}

// handleEngine runs the fixed-rate tick loop: camera movement, then the tick callback.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	e.mu.Lock()
	rate := e.engineTickRate
	e.mu.Unlock()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		}
	}
}

// tick moves the camera from the held keys and runs the tick callback.
func (e *engine) tick(dt float32) {
	e.mu.Lock()
	held := func(k uint32) float32 {
		if e.keysDown[k] {
			return 1
		}
		return 0
	}
	right := held(common.KeyD) - held(common.KeyA)
	up := held(common.KeyE) - held(common.KeyQ)
	forward := held(common.KeyW) - held(common.KeyS)
	step := e.moveSpeed * dt
	callback := e.tickCallback
	e.mu.Unlock()

	if ctrl := e.camera.Controller(); ctrl != nil && (right != 0 || up != 0 || forward != 0) {
		ctrl.Pan(right*step, up*step, forward*step)
	}
	e.camera.Update()

	if callback != nil {
		callback(dt)
	}
}

// handleRender runs the render loop until quit. Fatal errors and panics stop the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("render goroutine panicked: %v", r))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.quitChannel
		cancel()
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if err := e.Frame(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			common.Logger().Error("frame failed", "err", err)
			if errors.Is(err, device.ErrDeviceWait) {
				e.fail(err)
				return
			}
		}

		e.mu.Lock()
		callback := e.renderCallback
		limit := e.renderFrameLimit
		e.mu.Unlock()
		if callback != nil {
			callback(dt)
		}

		if limit > 0 {
			if remaining := limit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// fail records the first fatal error and quits.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.fatal == nil {
		e.fatal = err
	}
	e.mu.Unlock()
	common.Logger().Error("engine stopping", "err", err)
	e.signalQuit()
}

// handleUpdate stops the message loop once the engine quits.
func (e *engine) handleUpdate() {
	select {
	case <-e.quitChannel:
		e.window.RequestClose()
	default:
	}
}

func (e *engine) handleResize(width, height uint32) {
	e.renderer.Resize(width, height)
	if height > 0 {
		e.camera.SetAspect(float32(width) / float32(height))
	}
}

func (e *engine) handleKeyDown(code uint32) {
	if t, ok := keyToggles[code]; ok {
		e.mu.Lock()
		repeat := e.keysDown[code]
		e.keysDown[code] = true
		e.mu.Unlock()
		if repeat {
			return
		}
		if _, err := e.Toggle(t); err != nil {
			common.Logger().Warn("toggle failed", "pass", t.String(), "err", err)
		}
		return
	}
	e.mu.Lock()
	e.keysDown[code] = true
	e.mu.Unlock()
}

func (e *engine) handleKeyUp(code uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.keysDown, code)
}

func (e *engine) handleScroll(delta float32) {
	if ctrl := e.camera.Controller(); ctrl != nil {
		ctrl.Zoom(delta)
	}
}

func (e *engine) setDrag(on bool, x, y int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dragging = on
	e.lastMouse = [2]int32{x, y}
}

func (e *engine) handleMouseMove(x, y int32) {
	e.mu.Lock()
	if !e.dragging {
		e.mu.Unlock()
		return
	}
	dx, dy := x-e.lastMouse[0], y-e.lastMouse[1]
	e.lastMouse = [2]int32{x, y}
	e.mu.Unlock()

	if ctrl := e.camera.Controller(); ctrl != nil {
		ctrl.Drag(dx, dy)
	}
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate. If the engine is running the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	e.engineTickRate = newRate
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	// Replace a pending update rather than block.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetReleaseCallback(callback func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
