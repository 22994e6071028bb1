package shader

// LibraryBuilderOption is a functional option applied to the shader library during construction via NewLibrary.
type LibraryBuilderOption func(*library)

// WithDir sets the directory inside the library file system that holds the pass shaders.
//
// Parameters:
//   - dir: the shader directory, defaults to the file system root
//
// Returns:
//   - LibraryBuilderOption: a function that applies the option to a library
func WithDir(dir string) LibraryBuilderOption {
	return func(l *library) {
		l.dir = dir
	}
}

// WithIncludeDir sets the chunk directory, relative to the shader directory.
//
// Parameters:
//   - dir: the include directory, defaults to "include"
//
// Returns:
//   - LibraryBuilderOption: a function that applies the option to a library
func WithIncludeDir(dir string) LibraryBuilderOption {
	return func(l *library) {
		l.includeDir = dir
	}
}

// WithCacheDir enables the on-disk SPIR-V cache in dir. The cache is disabled when dir is empty.
//
// Parameters:
//   - dir: the cache directory on the host file system
//
// Returns:
//   - LibraryBuilderOption: a function that applies the option to a library
func WithCacheDir(dir string) LibraryBuilderOption {
	return func(l *library) {
		l.cacheDir = dir
	}
}

// WithWorkers sets the maximum number of concurrent loads in LoadAll.
//
// Parameters:
//   - n: the worker count, defaults to 4
//
// Returns:
//   - LibraryBuilderOption: a function that applies the option to a library
func WithWorkers(n int) LibraryBuilderOption {
	return func(l *library) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithCompiler replaces the WGSL to SPIR-V compiler, naga by default.
//
// Parameters:
//   - compile: the compiler
//
// Returns:
//   - LibraryBuilderOption: a function that applies the option to a library
func WithCompiler(compile CompileFunc) LibraryBuilderOption {
	return func(l *library) {
		if compile != nil {
			l.compile = compile
		}
	}
}
