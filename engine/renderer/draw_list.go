package renderer

import (
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/material"
	"github.com/chewxy/math32"
)

// DrawItem is one mesh drawn by the geometry passes.
type DrawItem struct {
	Mesh Mesh
	// Material binds group 1 of the forward pass. Nil selects the renderer's default material.
	Material material.Material
	// Model is the column-major object-to-world matrix, pushed before each draw.
	Model [16]float32
}

// worldBounds moves the mesh bounding sphere into world space.
func (d DrawItem) worldBounds() ([3]float32, float32) {
	return common.TransformPoint(d.Model[:], d.Mesh.Center), d.Mesh.Radius * common.MaxScale(d.Model[:])
}

// cull returns the items whose bounding sphere intersects the frustum of viewProj.
// Meshes without bounds are always kept.
func cull(items []DrawItem, viewProj [16]float32) []DrawItem {
	f := common.ExtractFrustumFromMatrix(viewProj[:])
	out := make([]DrawItem, 0, len(items))
	for _, it := range items {
		if it.Mesh.Radius <= 0 {
			out = append(out, it)
			continue
		}
		c, r := it.worldBounds()
		if f.IntersectsSphere(c, r) {
			out = append(out, it)
		}
	}
	return out
}

func sqrt32(v float32) float32 {
	return math32.Sqrt(v)
}
