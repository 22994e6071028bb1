// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is the pixel data in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	Width  uint32
	Height uint32
}

// Vertex is the interleaved vertex layout of every mesh drawn by the geometry passes.
// Matches the WGSL VertexInput struct: position at location 0, normal at 1, uv at 2 (32 bytes).
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// ImportedMaterial represents material properties handed to the renderer by an asset loader.
type ImportedMaterial struct {
	// Name is the material identifier.
	Name string

	// Roughness factor (0.0 = smooth, 1.0 = rough).
	Roughness float32

	// Reflectance is the specular reflectance at normal incidence.
	Reflectance float32

	// Albedo, Specular and Normal hold the texture images, nil when the material uses the defaults.
	Albedo   *ImportedTexture
	Specular *ImportedTexture
	Normal   *ImportedTexture
}

// ImportedTexture represents texture data handed over by an asset loader.
// For embedded textures, the Data field contains raw image bytes.
// For external textures, the Path field contains the file path.
type ImportedTexture struct {
	// Name is an identifier for this texture (e.g., "albedo", "normal").
	Name string

	// Path is the file path for external textures (empty for embedded).
	Path string

	// Data contains raw image bytes for embedded textures (PNG/JPEG).
	Data []byte

	// Width is the texture width in pixels (populated after Decode).
	Width int

	// Height is the texture height in pixels (populated after Decode).
	Height int
}

// Decode decodes the texture to raw RGBA pixel data.
// Uses either embedded Data bytes or loads from Path on disk.
// Supports PNG and JPEG formats.
//
// Returns:
//   - []byte: raw RGBA pixel data (4 bytes per pixel, row-major order)
//   - uint32: texture width in pixels
//   - uint32: texture height in pixels
//   - error: error if decoding fails
func (t *ImportedTexture) Decode() ([]byte, uint32, uint32, error) {
	img, err := t.image()
	if err != nil {
		return nil, 0, 0, err
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	t.Width = bounds.Dx()
	t.Height = bounds.Dy()

	return rgba.Pix, uint32(t.Width), uint32(t.Height), nil
}

// DecodeSized decodes the texture and scales it to the requested size with bilinear filtering.
// Cubemap faces use this to bring every face to a common size.
//
// Parameters:
//   - width: the target width in pixels
//   - height: the target height in pixels
//
// Returns:
//   - TextureStagingData: the scaled RGBA pixels
//   - error: error if decoding fails or the size is zero
func (t *ImportedTexture) DecodeSized(width, height uint32) (TextureStagingData, error) {
	if width == 0 || height == 0 {
		return TextureStagingData{}, fmt.Errorf("texture %q: zero target size", t.Label())
	}
	img, err := t.image()
	if err != nil {
		return TextureStagingData{}, err
	}

	bounds := img.Bounds()
	t.Width = bounds.Dx()
	t.Height = bounds.Dy()

	rgba := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if uint32(t.Width) == width && uint32(t.Height) == height {
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, bounds, draw.Src, nil)
	}
	return TextureStagingData{Pixels: rgba.Pix, Width: width, Height: height}, nil
}

// Label names the texture in logs and GPU labels: its Name, else its Path.
func (t *ImportedTexture) Label() string {
	switch {
	case t == nil:
		return "<nil>"
	case t.Name != "":
		return t.Name
	}
	return t.Path
}

func (t *ImportedTexture) image() (image.Image, error) {
	if t == nil {
		return nil, fmt.Errorf("texture is nil")
	}

	switch {
	case len(t.Data) > 0:
		img, _, err := image.Decode(bytes.NewReader(t.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedded image %q: %w", t.Label(), err)
		}
		return img, nil
	case t.Path != "":
		file, err := os.Open(t.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open texture file %s: %w", t.Path, err)
		}
		defer file.Close()

		img, _, err := image.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decode texture file %s: %w", t.Path, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("texture %q has neither data nor path", t.Label())
}
