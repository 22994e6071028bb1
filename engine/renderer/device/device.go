package device

import "time"

// BackendType identifies the GPU backend implementation behind a Device.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU BackendType = iota
)

// Device is the explicit device context handed to every renderer constructor.
// All GPU objects are owned by the Device and referenced through typed handles.
// A Device is driven from a single thread but guards its arenas so handles can be
// resolved from loader goroutines.
type Device interface {
	// CreateImage allocates an image.
	//
	// Parameters:
	//   - desc: the image description
	//
	// Returns:
	//   - ImageHandle: the new image
	//   - error: wraps ErrResourceCreation on failure
	CreateImage(desc ImageDesc) (ImageHandle, error)

	// WriteImage uploads tightly packed texel data into mip 0 of one array layer.
	//
	// Parameters:
	//   - h: the destination image
	//   - layer: the array layer to write, 0 for non-array images
	//   - data: the texels, width*height*bytesPerPixel bytes
	//
	// Returns:
	//   - error: ErrInvalidHandle for a stale handle
	WriteImage(h ImageHandle, layer uint32, data []byte) error

	// DestroyImage releases an image. Swapchain images are owned by the surface and are ignored.
	DestroyImage(h ImageHandle)

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer description
	//
	// Returns:
	//   - BufferHandle: the new buffer
	//   - error: wraps ErrResourceCreation on failure
	CreateBuffer(desc BufferDesc) (BufferHandle, error)

	// WriteBuffer copies data into a buffer at offset through the queue.
	//
	// Parameters:
	//   - h: the destination buffer
	//   - offset: byte offset in the buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrInvalidHandle for a stale handle
	WriteBuffer(h BufferHandle, offset uint64, data []byte) error

	DestroyBuffer(h BufferHandle)

	// BufferAlive reports whether h still names a buffer that has not been destroyed.
	BufferAlive(h BufferHandle) bool

	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	DestroySampler(h SamplerHandle)

	// CreateRenderPass builds the hardware render target shape from derived attachment rules.
	//
	// Parameters:
	//   - desc: attachments, the subpass and its dependencies
	//
	// Returns:
	//   - RenderPassHandle: the new render pass
	//   - error: wraps ErrResourceCreation on failure
	CreateRenderPass(desc RenderPassDesc) (RenderPassHandle, error)
	DestroyRenderPass(h RenderPassHandle)

	// CreateFramebuffer binds concrete images to a render pass.
	//
	// Parameters:
	//   - desc: the render pass, images in attachment order and the size
	//
	// Returns:
	//   - FramebufferHandle: the new framebuffer
	//   - error: wraps ErrResourceCreation on failure
	CreateFramebuffer(desc FramebufferDesc) (FramebufferHandle, error)
	DestroyFramebuffer(h FramebufferHandle)

	// CreatePipeline compiles a shader and fixed-function state into a graphics pipeline.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - PipelineHandle: the new pipeline
	//   - error: wraps ErrResourceCreation on failure
	CreatePipeline(desc PipelineDesc) (PipelineHandle, error)
	DestroyPipeline(h PipelineHandle)

	// CreateResourceSet allocates an empty resource set for one bind group of a pipeline.
	//
	// Parameters:
	//   - desc: the pipeline, group and the bindings it declares
	//
	// Returns:
	//   - ResourceSetHandle: the new resource set
	//   - error: wraps ErrResourceCreation on failure
	CreateResourceSet(desc ResourceSetDesc) (ResourceSetHandle, error)

	// UpdateResourceSet writes bindings into a resource set. Later writes to the same binding win.
	//
	// Parameters:
	//   - h: the resource set
	//   - writes: the bindings to fill
	//
	// Returns:
	//   - error: ErrInvalidHandle for a stale handle, ErrInvalidDescriptor for an undeclared binding
	UpdateResourceSet(h ResourceSetHandle, writes []ResourceWrite) error
	DestroyResourceSet(h ResourceSetHandle)

	// CreateFence creates a CPU/GPU fence.
	//
	// Parameters:
	//   - signaled: the initial state
	//
	// Returns:
	//   - FenceHandle: the new fence
	//   - error: wraps ErrResourceCreation on failure
	CreateFence(signaled bool) (FenceHandle, error)

	// WaitFence blocks until the fence is signaled or the timeout expires.
	//
	// Parameters:
	//   - h: the fence
	//   - timeout: the wait bound
	//
	// Returns:
	//   - error: wraps ErrDeviceWait on timeout
	WaitFence(h FenceHandle, timeout time.Duration) error

	// ResetFence moves a signaled fence back to unsignaled.
	ResetFence(h FenceHandle) error

	// FenceSignaled reports the fence state without blocking.
	FenceSignaled(h FenceHandle) bool
	DestroyFence(h FenceHandle)

	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(h SemaphoreHandle)

	// Submit queues recorded commands for execution.
	//
	// Parameters:
	//   - info: the commands plus the semaphores and fence to wait on and signal
	//
	// Returns:
	//   - error: ErrInvalidState if a wait semaphore is unsignaled or the fence is already pending
	Submit(info SubmitInfo) error

	// WaitIdle blocks until all submitted work has finished or the timeout expires.
	//
	// Returns:
	//   - error: wraps ErrDeviceWait on timeout
	WaitIdle(timeout time.Duration) error

	// SurfaceCapabilities reports formats, present modes and image count limits of the surface.
	SurfaceCapabilities() SurfaceCapabilities

	// ConfigureSurface (re)configures the presentation surface. Images from a previous
	// configuration become invalid.
	//
	// Parameters:
	//   - cfg: the chosen configuration
	//
	// Returns:
	//   - []ImageHandle: one swapchain-backed image per presentable image
	//   - error: wraps ErrResourceCreation on failure
	ConfigureSurface(cfg SurfaceConfig) ([]ImageHandle, error)

	// AcquireNextImage obtains the next presentable image and signals a semaphore when it is ready.
	//
	// Parameters:
	//   - signal: the semaphore to signal, must be unsignaled
	//   - timeout: the wait bound
	//
	// Returns:
	//   - uint32: the index of the acquired image
	//   - error: wraps ErrSurfaceOutOfDate or ErrDeviceWait
	AcquireNextImage(signal SemaphoreHandle, timeout time.Duration) (uint32, error)

	// Present queues an acquired image for display after the wait semaphores are signaled.
	//
	// Parameters:
	//   - imageIndex: the index returned by AcquireNextImage
	//   - wait: semaphores to wait on, unsignaled by the present
	//
	// Returns:
	//   - error: wraps ErrSurfaceOutOfDate when the surface no longer matches the window
	Present(imageIndex uint32, wait []SemaphoreHandle) error

	// Release destroys every object the device still owns and then the device itself.
	Release()
}
