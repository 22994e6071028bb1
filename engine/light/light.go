// Package light models the sun: the single directional light that shades the forward pass
// and casts the shadow map.
package light

import (
	"sync"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
	"github.com/chewxy/math32"
)

// DefaultShadowHalfExtent is the half-size in world units of the box the shadow map covers.
const DefaultShadowHalfExtent float32 = 20.0

// sunImpl is the implementation of the Sun interface.
type sunImpl struct {
	mu *sync.Mutex

	azimuth   float32
	elevation float32
	color     [3]float32
	intensity float32
	enabled   bool

	center        [3]float32
	extent        float32
	shadowMapSize uint32
}

// Sun is a directional light placed by two angles. The shadow volume follows a point of
// interest, usually the camera target, and moves in whole shadow-map texels so that static
// shadows do not shimmer while the camera pans.
type Sun interface {
	// Direction returns the normalized direction the light travels, from the sky into the scene.
	//
	// Returns:
	//   - [3]float32: the direction as (x, y, z)
	Direction() [3]float32

	// Color returns the RGB color of the light.
	Color() [3]float32

	// Intensity returns the scalar intensity multiplier.
	Intensity() float32

	// Enabled reports whether the sun contributes light. A disabled sun renders with zero intensity.
	Enabled() bool

	// SetEnabled switches the sun on or off.
	SetEnabled(enabled bool)

	// SetAngles places the sun in the sky.
	//
	// Parameters:
	//   - azimuth: radians around the Y axis, 0 toward -Z
	//   - elevation: radians above the horizon, clamped to (0, Pi/2]
	SetAngles(azimuth, elevation float32)

	// SetColor sets the RGB color and intensity.
	//
	// Parameters:
	//   - r, g, b: the color
	//   - intensity: the intensity multiplier
	SetColor(r, g, b, intensity float32)

	// Follow recenters the shadow volume on a world-space point, snapped to the shadow-map texel grid.
	//
	// Parameters:
	//   - x, y, z: the point to center on
	Follow(x, y, z float32)

	// RenderLight returns the light the renderer draws the next frame with.
	//
	// Returns:
	//   - renderer.Light: the light snapshot
	RenderLight() renderer.Light
}

var _ Sun = &sunImpl{}

// NewSun creates a white sun high in the south-west sky.
//
// Parameters:
//   - options: functional options to configure the sun
//
// Returns:
//   - Sun: the newly created sun
func NewSun(options ...SunBuilderOption) Sun {
	s := &sunImpl{
		mu:            &sync.Mutex{},
		azimuth:       math32.Pi / 5,
		elevation:     math32.Pi / 3,
		color:         [3]float32{1, 1, 1},
		intensity:     3,
		enabled:       true,
		extent:        DefaultShadowHalfExtent,
		shadowMapSize: 2048,
	}
	for _, option := range options {
		option(s)
	}
	s.elevation = clampElevation(s.elevation)
	return s
}

func clampElevation(e float32) float32 {
	return math32.Min(math32.Max(e, 0.01), math32.Pi/2)
}

// direction converts the angles to a unit vector pointing away from the sun. Caller must hold the mutex.
func (s *sunImpl) direction() [3]float32 {
	sinElev, cosElev := math32.Sincos(s.elevation)
	sinAzim, cosAzim := math32.Sincos(s.azimuth)
	return [3]float32{cosElev * sinAzim, -sinElev, -cosElev * cosAzim}
}

func (s *sunImpl) Direction() [3]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction()
}

func (s *sunImpl) Color() [3]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *sunImpl) Intensity() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intensity
}

func (s *sunImpl) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *sunImpl) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *sunImpl) SetAngles(azimuth, elevation float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.azimuth = azimuth
	s.elevation = clampElevation(elevation)
}

func (s *sunImpl) SetColor(r, g, b, intensity float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = [3]float32{r, g, b}
	s.intensity = intensity
}

func (s *sunImpl) Follow(x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	texel := 2 * s.extent / float32(max(s.shadowMapSize, 1))
	snap := func(v float32) float32 { return math32.Round(v/texel) * texel }
	s.center = [3]float32{snap(x), snap(y), snap(z)}
}

func (s *sunImpl) RenderLight() renderer.Light {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := renderer.Light{
		Direction: s.direction(),
		Color:     s.color,
		Intensity: s.intensity,
		Center:    s.center,
		Extent:    s.extent,
	}
	if !s.enabled {
		l.Intensity = 0
	}
	return l
}
