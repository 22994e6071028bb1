package camera

// CameraBuilderOption is a functional option applied to a camera by NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithFov sets the vertical field of view in radians.
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.fov = fov
	}
}

// WithAspect sets the initial width / height ratio. The engine keeps it in sync with the window.
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.aspect = aspect
	}
}

// WithClipPlanes sets the near and far plane distances.
//
// Parameters:
//   - near: distance to the near plane
//   - far: distance to the far plane
//
// Returns:
//   - CameraBuilderOption: option function to apply
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lens.near, c.lens.far = near, far
	}
}

// WithController attaches the controller the camera follows.
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
