// Package config holds the renderer settings and their TOML file format.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a Go duration string ("1s", "250ms") in TOML.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Settings configures the renderer. The pass toggles may change between frames; the other
// fields are read when the renderer is built.
type Settings struct {
	SSAO   bool `toml:"ssao"`
	Bloom  bool `toml:"bloom"`
	Shadow bool `toml:"shadow"`
	SkyBox bool `toml:"skybox"`

	FramesInFlight int    `toml:"frames_in_flight"`
	BloomMips      int    `toml:"bloom_mips"`
	ShadowMapSize  uint32 `toml:"shadow_map_size"`
	// MSAA is the sample count of the forward and sky box passes, 1 or 4.
	MSAA uint32 `toml:"msaa"`

	FenceTimeout   Duration `toml:"fence_timeout"`
	AcquireTimeout Duration `toml:"acquire_timeout"`
	// PresentMode is the preferred present mode: "mailbox", "fifo" or "immediate".
	PresentMode string `toml:"present_mode"`

	ClearColor    [4]float32 `toml:"clear_color"`
	Exposure      float32    `toml:"exposure"`
	BloomStrength float32    `toml:"bloom_strength"`
	SSAORadius    float32    `toml:"ssao_radius"`
	SSAOBias      float32    `toml:"ssao_bias"`

	// ShaderDir overrides the embedded shaders with a directory on disk when set.
	ShaderDir string `toml:"shader_dir"`
}

// Default returns the settings used when no file is given.
//
// Returns:
//   - Settings: every pass enabled, two frames in flight, five bloom mips and 1s waits
func Default() Settings {
	return Settings{
		SSAO:           true,
		Bloom:          true,
		Shadow:         true,
		SkyBox:         true,
		FramesInFlight: 2,
		BloomMips:      5,
		ShadowMapSize:  2048,
		MSAA:           1,
		FenceTimeout:   Duration(time.Second),
		AcquireTimeout: Duration(time.Second),
		PresentMode:    "mailbox",
		ClearColor:     [4]float32{0, 0, 0, 1},
		Exposure:       1,
		BloomStrength:  0.04,
		SSAORadius:     0.5,
		SSAOBias:       0.025,
	}
}

// Validate reports settings the renderer cannot build with.
//
// Returns:
//   - error: wraps device.ErrInvalidDescriptor
func (s Settings) Validate() error {
	var errs []error
	if s.FramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be at least 1, got %d", s.FramesInFlight))
	}
	if s.BloomMips < 1 {
		errs = append(errs, fmt.Errorf("bloom_mips must be at least 1, got %d", s.BloomMips))
	}
	if s.ShadowMapSize == 0 {
		errs = append(errs, errors.New("shadow_map_size must be positive"))
	}
	if s.MSAA != 1 && s.MSAA != 4 {
		errs = append(errs, fmt.Errorf("msaa must be 1 or 4, got %d", s.MSAA))
	}
	if s.FenceTimeout <= 0 || s.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if _, err := s.Present(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: settings: %w", device.ErrInvalidDescriptor, errors.Join(errs...))
	}
	return nil
}

// Present parses PresentMode. An empty string selects mailbox.
//
// Returns:
//   - device.PresentMode: the preferred present mode
//   - error: for an unknown name
func (s Settings) Present() (device.PresentMode, error) {
	switch s.PresentMode {
	case "", "mailbox":
		return device.PresentModeMailbox, nil
	case "fifo":
		return device.PresentModeFifo, nil
	case "immediate":
		return device.PresentModeImmediate, nil
	}
	return device.PresentModeFifo, fmt.Errorf("unknown present_mode %q", s.PresentMode)
}

// Load reads a settings file over the defaults, so a file only needs the keys it changes.
// A missing file yields the defaults.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Settings: the merged settings
//   - error: a read, decode or validation error
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("settings %q: %w", path, err)
	}
	if err := Decode(data, &s); err != nil {
		return Default(), fmt.Errorf("settings %q: %w", path, err)
	}
	return s, nil
}

// Decode unmarshals TOML into s and validates the result. Keys not present keep their value in s.
//
// Parameters:
//   - data: the TOML document
//   - s: the settings to update
//
// Returns:
//   - error: a decode or validation error
func Decode(data []byte, s *Settings) error {
	if err := toml.Unmarshal(data, s); err != nil {
		return err
	}
	return s.Validate()
}

// Save writes the settings as TOML.
//
// Parameters:
//   - path: the destination file
//   - s: the settings
//
// Returns:
//   - error: an encode or write error
func Save(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settings %q: %w", path, err)
	}
	return nil
}
