package camera

// CameraController owns the eye position of an orbit camera: a point on a sphere around a
// target, given by radius, azimuth and elevation. Camera reads it each Update.
type CameraController interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - x, y, z: the eye position
	Position() (x, y, z float32)

	// Target returns the point the camera orbits and looks at.
	//
	// Returns:
	//   - x, y, z: the target position
	Target() (x, y, z float32)

	// SetTarget moves the orbit center, keeping the angles and radius.
	//
	// Parameters:
	//   - x, y, z: world-space coordinates
	SetTarget(x, y, z float32)

	// Zoom moves the eye toward the target. Positive delta zooms in.
	//
	// Parameters:
	//   - delta: zoom steps, scaled by the zoom speed
	Zoom(delta float32)

	// Orbit turns the eye around the target. Elevation is clamped to the configured bounds.
	//
	// Parameters:
	//   - azimuth: radians around the Y axis
	//   - elevation: radians above the horizontal plane
	Orbit(azimuth, elevation float32)

	// Drag orbits by a mouse movement in pixels, scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx, dy: the cursor movement
	Drag(dx, dy int32)

	// Pan translates eye and target together along the camera's right, up and forward axes.
	//
	// Parameters:
	//   - right, up, forward: the distances, scaled by the pan speed
	Pan(right, up, forward float32)

	// Radius returns the distance between eye and target.
	Radius() float32

	// Azimuth returns the horizontal angle in radians, 0 looking down -Z.
	Azimuth() float32

	// Elevation returns the vertical angle in radians.
	Elevation() float32
}
