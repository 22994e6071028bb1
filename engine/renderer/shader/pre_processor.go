package shader

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	fsys fs.FS
	// dir is the directory inside fsys holding the include chunks.
	dir string
	// includes accumulates the chunk names injected during the last Process call.
	includes []string
}

// PreProcessor expands include annotations in WGSL source against a directory of shared chunks.
type PreProcessor interface {
	// Process expands every include annotation in source. Chunks may include other chunks.
	// A chunk already injected is skipped, and an include cycle is an error.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the processed WGSL shader source code
	//   - error: an error if an annotation is malformed, a chunk is missing or includes form a cycle
	Process(source string) (string, error)

	// Includes returns the chunk names injected during the most recent Process call, in injection order.
	//
	// Returns:
	//   - []string: the injected chunk names
	Includes() []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that resolves chunks as <dir>/<name>.wgsl inside fsys.
//
// Parameters:
//   - fsys: the file system holding the chunks
//   - dir: the chunk directory inside fsys
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(fsys fs.FS, dir string) PreProcessor {
	return &preProcessor{fsys: fsys, dir: dir}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.includes = p.includes[:0]
	done := make(map[string]bool)
	return p.expand(source, done, nil)
}

func (p *preProcessor) Includes() []string {
	return p.includes
}

// expand processes one source text. stack holds the chunks currently being expanded.
func (p *preProcessor) expand(source string, done map[string]bool, stack []string) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", withChunk(stack, err)
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		name := a.Args[0]
		for _, open := range stack {
			if open == name {
				return "", withChunk(stack, fmt.Errorf("line %d: include cycle through %q", i+1, name))
			}
		}
		if done[name] {
			continue
		}

		data, err := fs.ReadFile(p.fsys, path.Join(p.dir, name+".wgsl"))
		if err != nil {
			return "", withChunk(stack, fmt.Errorf("line %d: include %q: %w", i+1, name, err))
		}
		expanded, err := p.expand(string(data), done, append(stack, name))
		if err != nil {
			return "", err
		}
		done[name] = true
		p.includes = append(p.includes, name)
		out = append(out, expanded)
	}
	return strings.Join(out, "\n"), nil
}

func withChunk(stack []string, err error) error {
	if len(stack) == 0 {
		return err
	}
	return fmt.Errorf("chunk %q: %w", stack[len(stack)-1], err)
}
