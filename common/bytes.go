package common

import "unsafe"

// SliceToBytes views the backing array of a slice as bytes, for buffer uploads.
// The result aliases data and must not outlive it.
//
// Parameters:
//   - data: the elements to view
//
// Returns:
//   - []byte: the byte view, or nil for an empty slice
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*int(unsafe.Sizeof(data[0])))
}

// StructToBytes views the memory of *v as bytes. The struct must have no Go pointers and a layout
// that matches its shader-side counterpart.
func StructToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
