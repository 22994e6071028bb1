package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Host-shareable layout rules: https://www.w3.org/TR/WGSL/#alignment-and-size

func alignUp(value, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// scalarSize returns the byte size of a scalar given by its full or suffix name.
func scalarSize(name string) (uint64, bool) {
	switch name {
	case "f32", "i32", "u32", "bool", "f", "i", "u":
		return 4, true
	case "f16", "h":
		return 2, true
	}
	return 0, false
}

// vectorLayout resolves vecN<T> and the vecNf shorthands. A vec3 is aligned like a vec4.
func vectorLayout(name string) (wgslTypeLayout, bool) {
	if len(name) < 5 || !strings.HasPrefix(name, "vec") {
		return wgslTypeLayout{}, false
	}
	n := uint64(name[3] - '0')
	if n < 2 || n > 4 {
		return wgslTypeLayout{}, false
	}
	elem := name[4:]
	if strings.HasPrefix(elem, "<") && strings.HasSuffix(elem, ">") {
		elem = strings.TrimSpace(elem[1 : len(elem)-1])
	}
	s, ok := scalarSize(elem)
	if !ok {
		return wgslTypeLayout{}, false
	}
	align := n * s
	if n == 3 {
		align = 4 * s
	}
	return wgslTypeLayout{size: n * s, align: align}, true
}

// matrixLayout resolves matCxR<T> and matCxRf: C columns, each a vecR padded to its alignment.
func matrixLayout(name string) (wgslTypeLayout, bool) {
	if len(name) < 7 || !strings.HasPrefix(name, "mat") || name[4] != 'x' {
		return wgslTypeLayout{}, false
	}
	cols := uint64(name[3] - '0')
	if cols < 2 || cols > 4 {
		return wgslTypeLayout{}, false
	}
	column, ok := vectorLayout("vec" + name[5:])
	if !ok {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{size: cols * alignUp(column.size, column.align), align: column.align}, true
}

// typeLayout resolves a type name against the built-in types and the already-resolved structs.
// A runtime-sized array resolves to one element, the smallest useful binding.
func typeLayout(name string, structs map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	name = strings.TrimSpace(name)
	if s, ok := scalarSize(name); ok && len(name) > 1 {
		return wgslTypeLayout{size: s, align: s}, true
	}
	if l, ok := vectorLayout(name); ok {
		return l, true
	}
	if l, ok := matrixLayout(name); ok {
		return l, true
	}
	if l, ok := structs[name]; ok {
		return l, true
	}
	if !strings.HasPrefix(name, "array<") || !strings.HasSuffix(name, ">") {
		return wgslTypeLayout{}, false
	}

	parts := splitTopLevel(name[len("array<") : len(name)-1])
	elem, ok := typeLayout(parts[0], structs)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := alignUp(elem.size, elem.align)
	count := uint64(1)
	if len(parts) == 2 {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return wgslTypeLayout{}, false
		}
		count = n
	}
	return wgslTypeLayout{size: count * stride, align: elem.align}, true
}

func isRuntimeArray(name string) bool {
	return strings.HasPrefix(name, "array<") && len(splitTopLevel(name[len("array<"):len(name)-1])) == 1
}

// structLayout lays the non-builtin fields out in order. A trailing runtime-sized array does not
// count toward the size, unless it is the only member.
func structLayout(ps parsedStruct, structs map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		l, ok := typeLayout(f.typeName, structs)
		if !ok {
			return wgslTypeLayout{}, false
		}
		align = max(align, l.align)
		if isRuntimeArray(f.typeName) && offset > 0 {
			return wgslTypeLayout{size: alignUp(offset, align), align: align}, true
		}
		offset = alignUp(offset, l.align) + l.size
	}
	return wgslTypeLayout{size: alignUp(offset, align), align: align}, true
}

// structLayouts resolves every struct, repeating passes until structs nested in others resolve.
// Structs that reference unknown types are left out.
func structLayouts(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		var left []parsedStruct
		for _, ps := range pending {
			if l, ok := structLayout(ps, resolved); ok {
				resolved[ps.name] = l
			} else {
				left = append(left, ps)
			}
		}
		if len(left) == len(pending) {
			break
		}
		pending = left
	}
	return resolved
}

// bindingKind maps a resource declaration to a device binding. Buffers are told apart by address
// space, handle types by their base name.
func bindingKind(addressSpace, typeName string) (device.BindingKind, error) {
	switch {
	case addressSpace == "uniform":
		return device.BindingUniformBuffer, nil
	case strings.HasPrefix(addressSpace, "storage"):
		return device.BindingStorageBuffer, nil
	case addressSpace != "":
		return 0, fmt.Errorf("unsupported address space %q", addressSpace)
	}

	base, _, _ := strings.Cut(typeName, "<")
	switch base {
	case "sampler":
		return device.BindingSampler, nil
	case "sampler_comparison":
		return device.BindingComparisonSampler, nil
	case "texture_2d":
		return device.BindingTexture, nil
	case "texture_depth_2d":
		return device.BindingDepthTexture, nil
	case "texture_cube":
		return device.BindingCubeTexture, nil
	}
	return 0, fmt.Errorf("unsupported resource type %q", typeName)
}

// stripComments removes line comments and nested block comments, keeping line breaks.
func stripComments(src string) string {
	var sb strings.Builder
	sb.Grow(len(src))
	depth := 0
	for i := 0; i < len(src); i++ {
		rest := src[i:]
		switch {
		case strings.HasPrefix(rest, "/*"):
			depth++
			i++
		case depth > 0 && strings.HasPrefix(rest, "*/"):
			depth--
			i++
		case depth > 0:
			if src[i] == '\n' {
				sb.WriteByte('\n')
			}
		case strings.HasPrefix(rest, "//"):
			nl := strings.IndexByte(rest, '\n')
			if nl < 0 {
				return sb.String()
			}
			i += nl - 1
		default:
			sb.WriteByte(src[i])
		}
	}
	return sb.String()
}

// isVertexInput reports whether a struct only carries @location fields. Vertex outputs also
// carry @builtin(position) and are rejected.
func isVertexInput(ps parsedStruct) bool {
	located := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		located = located || f.location >= 0
	}
	return located
}

// vertexLayoutOf packs the fields of a vertex input struct tightly in declaration order.
func vertexLayoutOf(ps parsedStruct) (device.VertexLayout, bool) {
	var layout device.VertexLayout
	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return device.VertexLayout{}, false
		}
		layout.Attributes = append(layout.Attributes, device.VertexAttribute{
			Location: uint32(f.location),
			Format:   info.format,
			Offset:   layout.Stride,
		})
		layout.Stride += info.size
	}
	return layout, true
}

// splitTopLevel splits at commas outside angle brackets, so array<vec4f, 16> stays whole.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, ch := range s {
		switch {
		case ch == '<':
			depth++
		case ch == '>' && depth > 0:
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
