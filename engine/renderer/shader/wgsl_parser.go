package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding device vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {device.VertexFloat32, 4},
	"vec2f":     {device.VertexFloat32x2, 8},
	"vec2<f32>": {device.VertexFloat32x2, 8},
	"vec3f":     {device.VertexFloat32x3, 12},
	"vec3<f32>": {device.VertexFloat32x3, 12},
	"vec4f":     {device.VertexFloat32x4, 16},
	"vec4<f32>": {device.VertexFloat32x4, 16},
	"u32":       {device.VertexUint32, 4},
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)\s*\(`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> frame: FrameUniforms;
	// or handle types: @group(1) @binding(2) var albedoTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// Reflection is everything a pipeline needs to know about a WGSL module.
type Reflection struct {
	// Bindings are sorted by group then binding and exclude the push constant group.
	Bindings []device.BindingLayout
	// PushConstantSize is the size of the block declared at group device.PushConstantGroup, zero for none.
	PushConstantSize uint32
	// Vertex is nil when the vertex entry point takes no vertex buffer input.
	Vertex        *device.VertexLayout
	VertexEntry   string
	FragmentEntry string
}

// Reflect parses a WGSL module and extracts its entry points, bindings, push constant block
// and vertex input layout. Every binding is visible to both stages, since one module carries
// the vertex and fragment entry points of a pass.
//
// Parameters:
//   - source: the pre-processed WGSL source
//
// Returns:
//   - Reflection: the reflected interface of the module
//   - error: an error if the module declares a resource the device cannot bind
func Reflect(source string) (Reflection, error) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)
	sizes := structLayouts(structs)

	var r Reflection
	r.VertexEntry = parseEntryPoint(cleaned, vertexEntryRegex)
	r.FragmentEntry = parseEntryPoint(cleaned, fragmentEntryRegex)
	if r.VertexEntry == "" {
		return Reflection{}, fmt.Errorf("no @vertex entry point")
	}

	seen := make(map[[2]uint32]string)
	for _, d := range parseDecls(cleaned) {
		key := [2]uint32{d.group, d.binding}
		if prev, dup := seen[key]; dup {
			return Reflection{}, fmt.Errorf("group %d binding %d declared by both %q and %q", d.group, d.binding, prev, d.name)
		}
		seen[key] = d.name

		kind, err := bindingKind(d.addressSpace, d.typeName)
		if err != nil {
			return Reflection{}, fmt.Errorf("%s: %w", d.name, err)
		}

		var size uint64
		if kind.IsBuffer() {
			if layout, ok := typeLayout(d.typeName, sizes); ok {
				size = layout.size
			}
		}

		if d.group == device.PushConstantGroup {
			if d.binding != 0 || kind != device.BindingUniformBuffer {
				return Reflection{}, fmt.Errorf("%s: group %d is reserved for one uniform push constant block at binding 0", d.name, device.PushConstantGroup)
			}
			r.PushConstantSize = uint32(size)
			continue
		}

		r.Bindings = append(r.Bindings, device.BindingLayout{
			Group:   d.group,
			Binding: d.binding,
			Kind:    kind,
			Stages:  device.StageVertex | device.StageFragment,
			Name:    d.name,
			Size:    size,
		})
	}
	sort.Slice(r.Bindings, func(i, j int) bool {
		if r.Bindings[i].Group != r.Bindings[j].Group {
			return r.Bindings[i].Group < r.Bindings[j].Group
		}
		return r.Bindings[i].Binding < r.Bindings[j].Binding
	})

	if layout, ok := parseVertexLayout(cleaned, structs, r.VertexEntry); ok {
		r.Vertex = &layout
	}
	return r, nil
}

// ReflectBindings returns the resource bindings a WGSL module declares, excluding the push constant group.
//
// Parameters:
//   - source: the pre-processed WGSL source
//
// Returns:
//   - []device.BindingLayout: the bindings sorted by group then binding
//   - error: an error if the module cannot be reflected
func ReflectBindings(source string) ([]device.BindingLayout, error) {
	r, err := Reflect(source)
	if err != nil {
		return nil, err
	}
	return r.Bindings, nil
}

// parseDecls extracts all @group(N) @binding(M) resource declarations in source order.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedDecl: the declarations found
func parseDecls(source string) []parsedDecl {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(source, -1)
	decls := make([]parsedDecl, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		decls = append(decls, parsedDecl{
			group:        uint32(group),
			binding:      uint32(binding),
			addressSpace: strings.TrimSpace(match[3]),
			name:         strings.TrimSpace(match[4]),
			typeName:     strings.TrimSpace(match[5]),
		})
	}
	return decls
}

// parseVertexLayout finds the vertex input struct taken by the vertex entry point and
// converts it into a device.VertexLayout. Entry points that only take builtins, such as
// full-screen triangles driven by vertex_index, have no layout.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//   - structs: the struct blocks parsed from source
//   - entry: the vertex entry point name
//
// Returns:
//   - device.VertexLayout: the vertex layout
//   - bool: false if the entry point takes no vertex input struct
func parseVertexLayout(source string, structs []parsedStruct, entry string) (device.VertexLayout, bool) {
	params := entryParams(source, entry)
	if params == "" {
		return device.VertexLayout{}, false
	}
	for _, p := range splitTopLevel(params) {
		fm := fieldRegex.FindStringSubmatch(strings.TrimSpace(p))
		if fm == nil {
			continue
		}
		typeName := strings.TrimSpace(fm[2])
		for _, ps := range structs {
			if ps.name != typeName || !isVertexInput(ps) {
				continue
			}
			return vertexLayoutOf(ps)
		}
	}
	return device.VertexLayout{}, false
}

// entryParams returns the text between the parentheses of the named function's parameter list.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//   - name: the function name
//
// Returns:
//   - string: the parameter list, or empty if the function was not found
func entryParams(source, name string) string {
	loc := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(name) + `\s*\(`).FindStringIndex(source)
	if loc == nil {
		return ""
	}
	depth := 1
	for i := loc[1]; i < len(source); i++ {
		switch source[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return source[loc[1]:i]
			}
		}
	}
	return ""
}

// parseEntryPoint extracts the entry point function name matched by re.
// Returns an empty string if no matching entry point annotation is found.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//   - re: vertexEntryRegex or fragmentEntryRegex
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, re *regexp.Regexp) string {
	if match := re.FindStringSubmatch(source); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration
//
// Returns:
//   - []parsedField: all fields found in the struct body
func parseStructFields(body string) []parsedField {
	lines := splitTopLevel(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
