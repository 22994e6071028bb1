package light

// SunBuilderOption is a function that configures a Sun during construction.
type SunBuilderOption func(*sunImpl)

// WithAngles sets where the sun sits in the sky.
//
// Parameters:
//   - azimuth: radians around the Y axis
//   - elevation: radians above the horizon
//
// Returns:
//   - SunBuilderOption: a function that applies the angles to a sunImpl
func WithAngles(azimuth, elevation float32) SunBuilderOption {
	return func(s *sunImpl) {
		s.azimuth, s.elevation = azimuth, elevation
	}
}

// WithColor sets the RGB color and intensity multiplier.
//
// Parameters:
//   - r, g, b: the color
//   - intensity: the intensity multiplier
//
// Returns:
//   - SunBuilderOption: a function that applies the color to a sunImpl
func WithColor(r, g, b, intensity float32) SunBuilderOption {
	return func(s *sunImpl) {
		s.color = [3]float32{r, g, b}
		s.intensity = intensity
	}
}

// WithShadowVolume sets the half-size of the shadowed box and the shadow-map resolution
// that Follow snaps to. The resolution should match the renderer's shadow map size.
//
// Parameters:
//   - extent: the half-size in world units
//   - mapSize: the shadow map width and height in texels
//
// Returns:
//   - SunBuilderOption: a function that applies the shadow volume to a sunImpl
func WithShadowVolume(extent float32, mapSize uint32) SunBuilderOption {
	return func(s *sunImpl) {
		if extent > 0 {
			s.extent = extent
		}
		if mapSize > 0 {
			s.shadowMapSize = mapSize
		}
	}
}
