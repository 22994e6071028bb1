package renderer

import (
	"fmt"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
)

// Mesh is an uploaded vertex and index buffer pair plus its object-space bounding sphere.
type Mesh struct {
	Label      string
	Vertex     device.BufferHandle
	Index      device.BufferHandle
	IndexCount uint32
	// Center and Radius bound the vertices in object space.
	Center [3]float32
	Radius float32
}

// UploadMesh creates the vertex and index buffers of a mesh and computes its bounding sphere.
//
// Parameters:
//   - dev: the device context
//   - label: the debug label
//   - vertices: the interleaved vertices
//   - indices: triangle list indices into vertices
//
// Returns:
//   - Mesh: the uploaded mesh, released with Mesh.Release
//   - error: wraps device.ErrResourceCreation
func UploadMesh(dev device.Device, label string, vertices []common.Vertex, indices []uint32) (Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return Mesh{}, fmt.Errorf("%w: mesh %q is empty", device.ErrResourceCreation, label)
	}
	m := Mesh{Label: label, IndexCount: uint32(len(indices))}
	m.Center, m.Radius = boundingSphere(vertices)

	vb := common.SliceToBytes(vertices)
	ib := common.SliceToBytes(indices)
	var err error
	m.Vertex, err = dev.CreateBuffer(device.BufferDesc{
		Label: label + " Vertices",
		Size:  uint64(len(vb)),
		Usage: device.BufferUsageVertex | device.BufferUsageTransferDst,
	})
	if err != nil {
		return Mesh{}, fmt.Errorf("%w: mesh %q: %w", device.ErrResourceCreation, label, err)
	}
	m.Index, err = dev.CreateBuffer(device.BufferDesc{
		Label: label + " Indices",
		Size:  uint64(len(ib)),
		Usage: device.BufferUsageIndex | device.BufferUsageTransferDst,
	})
	if err != nil {
		m.Release(dev)
		return Mesh{}, fmt.Errorf("%w: mesh %q: %w", device.ErrResourceCreation, label, err)
	}
	if err := dev.WriteBuffer(m.Vertex, 0, vb); err != nil {
		m.Release(dev)
		return Mesh{}, fmt.Errorf("%w: mesh %q: %w", device.ErrResourceCreation, label, err)
	}
	if err := dev.WriteBuffer(m.Index, 0, ib); err != nil {
		m.Release(dev)
		return Mesh{}, fmt.Errorf("%w: mesh %q: %w", device.ErrResourceCreation, label, err)
	}
	return m, nil
}

// Release destroys the buffers of the mesh.
func (m *Mesh) Release(dev device.Device) {
	if m.Vertex.Valid() {
		dev.DestroyBuffer(m.Vertex)
		m.Vertex = device.BufferHandle{}
	}
	if m.Index.Valid() {
		dev.DestroyBuffer(m.Index)
		m.Index = device.BufferHandle{}
	}
}

// boundingSphere centers the sphere on the vertex bounding box.
func boundingSphere(vertices []common.Vertex) ([3]float32, float32) {
	lo, hi := vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	center := [3]float32{(lo[0] + hi[0]) / 2, (lo[1] + hi[1]) / 2, (lo[2] + hi[2]) / 2}
	var r2 float32
	for _, v := range vertices {
		dx, dy, dz := v.Position[0]-center[0], v.Position[1]-center[1], v.Position[2]-center[2]
		r2 = max(r2, dx*dx+dy*dy+dz*dz)
	}
	return center, sqrt32(r2)
}
