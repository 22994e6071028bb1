package material

import (
	"encoding/binary"
	"math"
)

// Binding indices of the material bind group. Every texture is followed by its sampler.
const (
	BindingProperties uint32 = 0
	BindingAlbedo     uint32 = 1
	BindingSpecular   uint32 = 3
	BindingNormal     uint32 = 5
)

// PropertiesSize is the size of the MaterialProperties uniform in bytes.
const PropertiesSize = 16

// Properties are the scalar surface parameters of a material.
// Matches the WGSL MaterialProperties struct: roughness, reflectance and two padding floats (16 bytes).
type Properties struct {
	Roughness   float32
	Reflectance float32
}

// Marshal serializes the properties into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (p Properties) Marshal() []byte {
	buf := make([]byte, PropertiesSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.Roughness))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.Reflectance))
	return buf
}
