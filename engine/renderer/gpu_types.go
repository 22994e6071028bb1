package renderer

import (
	"math/rand/v2"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/chewxy/math32"
)

// FrameUniformsSize is the size of the FrameUniforms uniform in bytes.
const FrameUniformsSize = 480

// PushModelSize is the size of the per-draw model matrix push block.
const PushModelSize = 64

// SSAOKernelSize is the number of hemisphere samples in the SSAO kernel.
const SSAOKernelSize = 16

// Toggle indices into FrameUniforms.Toggles.
const (
	ToggleSSAO = iota
	ToggleBloom
	ToggleShadow
	ToggleSkyBox
)

// FrameUniforms is the per-frame uniform shared by every pass at group 0, binding 0.
// Matches the WGSL FrameUniforms struct (480 bytes): six matrices followed by six 16-byte vectors.
type FrameUniforms struct {
	ViewProj      [16]float32
	View          [16]float32
	Proj          [16]float32
	InvProj       [16]float32
	InvViewProj   [16]float32
	LightViewProj [16]float32
	// CameraPosition is xyz plus padding.
	CameraPosition [4]float32
	// LightDirection points from the light into the scene.
	LightDirection [4]float32
	// LightColor is rgb with the intensity in w.
	LightColor [4]float32
	// Screen is width, height, 1/width, 1/height.
	Screen [4]float32
	// Params is exposure, bloom strength, SSAO radius and SSAO bias.
	Params [4]float32
	// Toggles is 1 for each enabled optional pass, indexed by ToggleSSAO and friends.
	Toggles [4]uint32
}

// Bytes returns the uniform as it is laid out in GPU memory.
func (u *FrameUniforms) Bytes() []byte {
	return common.StructToBytes(u)
}

// SSAOKernel is the hemisphere sample kernel, one vec4 per sample with w unused.
type SSAOKernel struct {
	Samples [SSAOKernelSize][4]float32
}

// Bytes returns the kernel as it is laid out in GPU memory.
func (k *SSAOKernel) Bytes() []byte {
	return common.StructToBytes(k)
}

// NewSSAOKernel builds a deterministic hemisphere kernel oriented along +z. Samples are
// scaled so they cluster near the origin.
//
// Parameters:
//   - seed: the random seed
//
// Returns:
//   - SSAOKernel: the kernel
func NewSSAOKernel(seed uint64) SSAOKernel {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var k SSAOKernel
	for i := range k.Samples {
		v := common.Normalize3([3]float32{
			rng.Float32()*2 - 1,
			rng.Float32()*2 - 1,
			rng.Float32(),
		})
		t := float32(i) / SSAOKernelSize
		scale := math32.Max(lerp(0.1, 1, t*t), 0.1) * rng.Float32()
		k.Samples[i] = [4]float32{v[0] * scale, v[1] * scale, v[2] * scale, 0}
	}
	return k
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
