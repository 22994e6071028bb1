// annotations.go defines the annotation syntax understood by the WGSL pre-processor.
// Annotations are single-line WGSL comments prefixed with @renderer: that pull shared
// WGSL chunks (uniform structs, the push constant block, full-screen helpers) into a
// pass shader before it is reflected and compiled.
package shader

import (
	"fmt"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@renderer:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source of a shared chunk at the annotation site.
	// Chunks live in the include directory of the shader library and are injected at most
	// once per shader.
	//
	// Syntax: //@renderer:include <chunk>
	//
	// Example: //@renderer:include frame_uniforms
	AnnotationTypeInclude AnnotationType = "include"
)

// Annotation represents a single parsed annotation from a WGSL shader source line.
type Annotation struct {
	Type AnnotationType
	// Args holds the annotation's arguments. For include, [0] is the chunk name.
	Args []string
	// Line is the 1-based line number in the source where this annotation was found.
	Line int
}

// parseAnnotation attempts to parse a single line of WGSL source as an annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: include annotation requires exactly one argument", lineNum)
		}
		if strings.ContainsAny(args[1], `/\.`) {
			return nil, fmt.Errorf("line %d: include chunk %q must be a bare name", lineNum, args[1])
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: args[1:],
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown annotation type %q", lineNum, args[0])
	}
}
