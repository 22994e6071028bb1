package camera

import (
	"sync"

	"github.com/chewxy/math32"
)

type cameraControllerImpl struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32

	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller looking at the origin from eight units away.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:               &sync.Mutex{},
		radius:           8,
		elevation:        math32.Pi / 8,
		minRadius:        1,
		maxRadius:        200,
		minElevation:     -math32.Pi/2 + 0.05,
		maxElevation:     math32.Pi/2 - 0.05,
		mouseSensitivity: 0.005,
		zoomSpeed:        0.5,
		panSpeed:         1,
	}
	for _, option := range options {
		option(cc)
	}
	cc.radius = clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}

// updatePosition places the eye on the orbit sphere. Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	sinElev, cosElev := math32.Sincos(cc.elevation)
	sinAzim, cosAzim := math32.Sincos(cc.azimuth)
	cc.position = [3]float32{
		cc.target[0] + cc.radius*cosElev*sinAzim,
		cc.target[1] + cc.radius*sinElev,
		cc.target[2] + cc.radius*cosElev*cosAzim,
	}
}

// axes returns the right, up and forward vectors of the view, matching LookAt with a +Y up vector.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) axes() (right, up, forward [3]float32) {
	var back [3]float32
	for i := range 3 {
		back[i] = cc.position[i] - cc.target[i]
	}
	bl := math32.Sqrt(back[0]*back[0] + back[1]*back[1] + back[2]*back[2])
	if bl < 1e-8 {
		return
	}
	for i := range 3 {
		back[i] /= bl
	}
	rl := math32.Hypot(back[2], back[0])
	if rl < 1e-8 {
		return
	}
	right = [3]float32{back[2] / rl, 0, -back[0] / rl}
	up = [3]float32{
		back[1]*right[2] - back[2]*right[1],
		back[2]*right[0] - back[0]*right[2],
		back[0]*right[1] - back[1]*right[0],
	}
	forward = [3]float32{-back[0], -back[1], -back[2]}
	return
}

func (cc *cameraControllerImpl) Position() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position[0], cc.position[1], cc.position[2]
}

func (cc *cameraControllerImpl) Target() (x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target[0], cc.target[1], cc.target[2]
}

func (cc *cameraControllerImpl) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = [3]float32{x, y, z}
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(azimuth, elevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = math32.Remainder(cc.azimuth+azimuth, 2*math32.Pi)
	cc.elevation = clamp(cc.elevation+elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Drag(dx, dy int32) {
	s := cc.sensitivity()
	cc.Orbit(-float32(dx)*s, float32(dy)*s)
}

func (cc *cameraControllerImpl) sensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.mouseSensitivity
}

func (cc *cameraControllerImpl) Pan(right, up, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	r, u, f := cc.axes()
	for i := range 3 {
		offset := (r[i]*right + u[i]*up + f[i]*forward) * cc.panSpeed
		cc.target[i] += offset
		cc.position[i] += offset
	}
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}
