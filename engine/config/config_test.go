package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, 2, s.FramesInFlight)
	assert.Equal(t, 5, s.BloomMips)
	assert.Equal(t, Duration(time.Second), s.FenceTimeout)
	mode, err := s.Present()
	require.NoError(t, err)
	assert.Equal(t, device.PresentModeMailbox, mode)
}

func TestDecodeKeepsUnsetKeys(t *testing.T) {
	s := Default()
	doc := `
ssao = false
bloom_mips = 3
fence_timeout = "250ms"
present_mode = "fifo"
`
	require.NoError(t, Decode([]byte(doc), &s))
	assert.False(t, s.SSAO)
	assert.True(t, s.Bloom)
	assert.Equal(t, 3, s.BloomMips)
	assert.Equal(t, Duration(250*time.Millisecond), s.FenceTimeout)
	assert.Equal(t, Duration(time.Second), s.AcquireTimeout)
	mode, err := s.Present()
	require.NoError(t, err)
	assert.Equal(t, device.PresentModeFifo, mode)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"msaa":         "msaa = 2",
		"frames":       "frames_in_flight = 0",
		"present mode": `present_mode = "vsync"`,
		"timeout":      `acquire_timeout = "0s"`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			s := Default()
			assert.ErrorIs(t, Decode([]byte(doc), &s), device.ErrInvalidDescriptor)
		})
	}

	s := Default()
	assert.Error(t, Decode([]byte(`fence_timeout = "soon"`), &s))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderer.toml")
	s := Default()
	s.Shadow = false
	s.MSAA = 4
	s.ClearColor = [4]float32{0.1, 0.2, 0.3, 1}
	require.NoError(t, Save(path, s))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}
