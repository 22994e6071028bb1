// Package assets embeds the WGSL sources of the renderer's passes.
package assets

import "embed"

// ShaderDir is the directory of Shaders holding the pass shaders. Shared chunks live in its
// include subdirectory and are pulled in with //@renderer:include <chunk>.
const ShaderDir = "shaders"

// Shaders holds every pass shader and include chunk.
//
//go:embed shaders
var Shaders embed.FS
