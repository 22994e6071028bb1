package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: the distance, clamped to the radius bounds
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAngles sets the initial azimuth and elevation.
//
// Parameters:
//   - azimuth: radians around the Y axis
//   - elevation: radians above the horizontal plane
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithAngles(azimuth, elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth, cc.elevation = azimuth, elevation
	}
}

// WithTarget sets the orbit center.
//
// Parameters:
//   - x, y, z: world-space coordinates
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = [3]float32{x, y, z}
	}
}

// WithRadiusBounds limits how far Zoom can move the eye.
//
// Parameters:
//   - lo: the closest distance
//   - hi: the farthest distance
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadiusBounds(lo, hi float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.minRadius, cc.maxRadius = lo, hi
	}
}

// WithSpeeds sets the mouse, zoom and pan multipliers.
//
// Parameters:
//   - mouse: radians per dragged pixel
//   - zoom: distance per zoom step
//   - pan: distance per pan unit
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithSpeeds(mouse, zoom, pan float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.mouseSensitivity, cc.zoomSpeed, cc.panSpeed = mouse, zoom, pan
	}
}
