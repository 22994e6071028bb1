package shader

import (
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// shader is the implementation of the Shader interface.
// It holds all of the persistent shader data required for pipeline creation and resource binding.
type shader struct {
	name     string
	source   string
	reflect  Reflection
	bytecode []byte
	includes []string
}

// Shader is a loaded, pre-processed and reflected WGSL module holding the vertex and
// fragment entry points of one pass.
type Shader interface {
	// Name retrieves the library name of the shader, the file name without extension.
	//
	// Returns:
	//   - string: the shader's name
	Name() string

	// Source retrieves the pre-processed WGSL source handed to the device.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// Bindings retrieves the reflected resource bindings, excluding the push constant group.
	//
	// Returns:
	//   - []device.BindingLayout: the bindings sorted by group then binding
	Bindings() []device.BindingLayout

	// Group retrieves the reflected bindings of one bind group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - []device.BindingLayout: the group's bindings, nil if the shader declares none
	Group(group uint32) []device.BindingLayout

	// PushConstantSize retrieves the size of the push constant block in bytes.
	//
	// Returns:
	//   - uint32: the block size, zero if the shader has none
	PushConstantSize() uint32

	// VertexLayout retrieves the layout of the vertex input struct.
	//
	// Returns:
	//   - *device.VertexLayout: the layout, or nil for shaders that generate their own vertices
	VertexLayout() *device.VertexLayout

	// VertexEntry returns the @vertex entry point name.
	VertexEntry() string

	// FragmentEntry returns the @fragment entry point name, empty for depth-only shaders.
	FragmentEntry() string

	// Bytecode returns the compiled SPIR-V blob of the shader.
	//
	// Returns:
	//   - []byte: the SPIR-V words in little-endian byte order
	Bytecode() []byte

	// Includes returns the chunks injected by the pre-processor.
	Includes() []string
}

var _ Shader = &shader{}

func (s *shader) Name() string {
	return s.name
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Bindings() []device.BindingLayout {
	return s.reflect.Bindings
}

func (s *shader) Group(group uint32) []device.BindingLayout {
	var out []device.BindingLayout
	for _, b := range s.reflect.Bindings {
		if b.Group == group {
			out = append(out, b)
		}
	}
	return out
}

func (s *shader) PushConstantSize() uint32 {
	return s.reflect.PushConstantSize
}

func (s *shader) VertexLayout() *device.VertexLayout {
	return s.reflect.Vertex
}

func (s *shader) VertexEntry() string {
	return s.reflect.VertexEntry
}

func (s *shader) FragmentEntry() string {
	return s.reflect.FragmentEntry
}

func (s *shader) Bytecode() []byte {
	return s.bytecode
}

func (s *shader) Includes() []string {
	return s.includes
}
