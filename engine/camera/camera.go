// Package camera provides the orbit camera that supplies view and projection matrices to the renderer.
package camera

import (
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
	"github.com/chewxy/math32"
)

// Camera turns a controller's eye and target plus a perspective lens into the matrices of a frame.
// Matrices only change in Update, so a frame never sees a half-moved camera.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns width / height.
	Aspect() float32

	// ClipPlanes returns the near and far plane distances.
	ClipPlanes() (near, far float32)

	// SetFov sets the vertical field of view in radians.
	SetFov(fov float32)

	// SetAspect sets width / height. Zero, negative and non-finite ratios, as reported by a
	// minimized window, are ignored.
	//
	// Parameters:
	//   - aspect: the ratio
	SetAspect(aspect float32)

	// SetClipPlanes sets the near and far plane distances.
	//
	// Parameters:
	//   - near: distance to the near plane, greater than zero
	//   - far: distance to the far plane
	SetClipPlanes(near, far float32)

	// ViewMatrix returns the column-major world-to-view matrix of the last Update.
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the column-major projection of the last Update. Depth maps to [0, 1].
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns ProjectionMatrix * ViewMatrix.
	ViewProjectionMatrix() [16]float32

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// SetController attaches a controller. Matrices follow it from the next Update.
	SetController(ctrl CameraController)

	// Update reads the controller and recomputes the matrices. Without a controller it does nothing.
	Update()

	// RenderCamera returns the matrices and eye position the renderer draws the next frame with.
	//
	// Returns:
	//   - renderer.Camera: the camera snapshot
	RenderCamera() renderer.Camera
}

type lens struct {
	fov    float32
	aspect float32
	near   float32
	far    float32
}

type cameraImpl struct {
	mu *sync.Mutex

	lens       lens
	controller CameraController

	position [3]float32
	view     [16]float32
	proj     [16]float32
	viewProj [16]float32
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera with a 45 degree lens. The matrices are identity until a controller
// is attached and Update runs; NewCamera runs it once when WithController is given.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:   &sync.Mutex{},
		lens: lens{fov: math32.Pi / 4, aspect: 16.0 / 9.0, near: 0.1, far: 500},
	}
	common.Identity(c.view[:])
	common.Identity(c.proj[:])
	common.Identity(c.viewProj[:])
	for _, option := range options {
		option(c)
	}
	c.update()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens.aspect
}

func (c *cameraImpl) ClipPlanes() (near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens.near, c.lens.far
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lens.fov = fov
}

func (c *cameraImpl) SetAspect(aspect float32) {
	if aspect <= 0 || math32.IsNaN(aspect) || math32.IsInf(aspect, 0) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lens.aspect = aspect
}

func (c *cameraImpl) SetClipPlanes(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lens.near, c.lens.far = near, far
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proj
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProj
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update()
}

func (c *cameraImpl) RenderCamera() renderer.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return renderer.Camera{View: c.view, Projection: c.proj, Position: c.position}
}

// update recomputes every matrix from the controller. Caller must hold the mutex.
func (c *cameraImpl) update() {
	if c.controller == nil {
		return
	}
	eye := [3]float32{}
	eye[0], eye[1], eye[2] = c.controller.Position()
	tx, ty, tz := c.controller.Target()
	c.position = eye

	common.LookAt(c.view[:], eye[0], eye[1], eye[2], tx, ty, tz, 0, 1, 0)
	common.Perspective(c.proj[:], c.lens.fov, c.lens.aspect, c.lens.near, c.lens.far)
	common.Mul4(c.viewProj[:], c.proj[:], c.view[:])
}
