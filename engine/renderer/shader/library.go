package shader

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/gogpu/naga"
)

// CompileFunc compiles WGSL source into a SPIR-V blob.
type CompileFunc func(source string) ([]byte, error)

// library is the implementation of the Library interface.
type library struct {
	fsys       fs.FS
	dir        string
	includeDir string
	cacheDir   string
	workers    int
	compile    CompileFunc

	pool worker.DynamicWorkerPool

	shaders map[string]Shader
	mu      *sync.Mutex
}

// Library loads pass shaders from a fixed asset directory. Each load reads <dir>/<name>.wgsl,
// expands include annotations, reflects the bindings and compiles the module to SPIR-V.
// Compiled blobs are persisted in the cache directory and reused while the source is unchanged.
type Library interface {
	// Load returns the named shader, loading it on first use.
	//
	// Parameters:
	//   - name: the shader file name without the .wgsl extension
	//
	// Returns:
	//   - Shader: the loaded shader
	//   - error: wraps device.ErrResourceCreation when the shader cannot be read, reflected or compiled
	Load(name string) (Shader, error)

	// LoadAll loads the named shaders in parallel on the library's worker pool and blocks
	// until every load has finished.
	//
	// Parameters:
	//   - names: the shader names
	//
	// Returns:
	//   - map[string]Shader: the loaded shaders keyed by name
	//   - error: the joined errors of every failed load
	LoadAll(names ...string) (map[string]Shader, error)

	// Shader returns a shader that was already loaded.
	//
	// Parameters:
	//   - name: the shader name
	//
	// Returns:
	//   - Shader: the shader, nil if it was never loaded
	//   - bool: true if the shader is loaded
	Shader(name string) (Shader, bool)
}

var _ Library = &library{}

// NewLibrary creates a shader Library reading from fsys.
//
// Parameters:
//   - fsys: the file system holding the shader directory
//   - opts: optional LibraryBuilderOption values
//
// Returns:
//   - Library: the shader library
func NewLibrary(fsys fs.FS, opts ...LibraryBuilderOption) Library {
	l := &library{
		fsys:       fsys,
		dir:        ".",
		includeDir: "include",
		workers:    4,
		compile:    naga.Compile,
		shaders:    make(map[string]Shader),
		mu:         &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pool = worker.NewDynamicWorkerPool(l.workers, 256, 1*time.Second)
	return l
}

func (l *library) Shader(name string) (Shader, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.shaders[name]
	return s, ok
}

func (l *library) Load(name string) (Shader, error) {
	if s, ok := l.Shader(name); ok {
		return s, nil
	}
	s, err := l.load(name)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.shaders[name]; ok {
		return prev, nil
	}
	l.shaders[name] = s
	return s, nil
}

func (l *library) LoadAll(names ...string) (map[string]Shader, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	out := make(map[string]Shader, len(names))

	for i, name := range names {
		wg.Add(1)
		n := name
		l.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				s, err := l.Load(n)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return nil, err
				}
				out[n] = s
				return s, nil
			},
		})
	}
	wg.Wait()

	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

// load reads, pre-processes, reflects and compiles one shader.
func (l *library) load(name string) (*shader, error) {
	start := time.Now()
	data, err := fs.ReadFile(l.fsys, path.Join(l.dir, name+".wgsl"))
	if err != nil {
		return nil, fmt.Errorf("%w: shader %q: %w", device.ErrResourceCreation, name, err)
	}

	pp := NewPreProcessor(l.fsys, path.Join(l.dir, l.includeDir))
	source, err := pp.Process(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: shader %q: %w", device.ErrResourceCreation, name, err)
	}

	r, err := Reflect(source)
	if err != nil {
		return nil, fmt.Errorf("%w: shader %q: %w", device.ErrResourceCreation, name, err)
	}

	code, cached, err := l.bytecode(name, source)
	if err != nil {
		return nil, fmt.Errorf("%w: shader %q: %w", device.ErrResourceCreation, name, err)
	}

	common.Logger().Debug("shader loaded", "name", name, "bindings", len(r.Bindings), "push", r.PushConstantSize, "cached", cached, "elapsed", time.Since(start))
	return &shader{
		name:     name,
		source:   source,
		reflect:  r,
		bytecode: code,
		includes: append([]string(nil), pp.Includes()...),
	}, nil
}

// bytecode returns the SPIR-V blob for source, reusing the cache file when its source hash matches.
// A cache file is the 32-byte SHA-256 of the source followed by the blob.
func (l *library) bytecode(name, source string) ([]byte, bool, error) {
	sum := sha256.Sum256([]byte(source))

	var file string
	if l.cacheDir != "" {
		file = filepath.Join(l.cacheDir, name+".spv")
		if data, err := os.ReadFile(file); err == nil && len(data) > len(sum) && bytes.Equal(data[:len(sum)], sum[:]) {
			return data[len(sum):], true, nil
		}
	}

	code, err := l.compile(source)
	if err != nil {
		return nil, false, fmt.Errorf("compile: %w", err)
	}

	if file != "" {
		if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
			common.Logger().Warn("shader cache unavailable", "dir", l.cacheDir, "err", err)
			return code, false, nil
		}
		blob := make([]byte, 0, len(sum)+len(code))
		blob = append(blob, sum[:]...)
		blob = append(blob, code...)
		if err := os.WriteFile(file, blob, 0o644); err != nil {
			common.Logger().Warn("shader cache write failed", "file", file, "err", err)
		}
	}
	return code, false, nil
}
