package shader

import "github.com/SedenionProj/vulkan-renderer/engine/renderer/device"

// vertexFormatInfo holds the device vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format device.VertexFormat
	size   uint64
}

// wgslTypeLayout holds the host-shareable byte size and alignment of a WGSL type.
// Used to compute the minimum size of buffer bindings and the push constant block.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedDecl is one @group/@binding variable declaration.
type parsedDecl struct {
	group        uint32
	binding      uint32
	addressSpace string
	name         string
	typeName     string
}
