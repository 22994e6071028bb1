package command_recorder

import (
	"fmt"
	"slices"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
)

// State is the recording state of a command recorder.
type State int

const (
	// StateInitial holds no commands. Begin moves to StateRecording.
	StateInitial State = iota
	// StateRecording accepts commands.
	StateRecording
	// StateExecutable holds a finished command list ready for submission. Only Reset leaves it.
	StateExecutable
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRecording:
		return "recording"
	case StateExecutable:
		return "executable"
	}
	return "unknown"
}

// Pipeline is the part of a pipeline the recorder needs to validate draws.
type Pipeline interface {
	Label() string
	Handle() device.PipelineHandle
	// Bindings returns every shader-declared binding outside the push constant group.
	Bindings() []device.BindingLayout
	PushConstantSize() uint32
}

// Stats counts what one recording contains.
type Stats struct {
	RenderTargets int
	Draws         int
}

// commandRecorder is the implementation of the CommandRecorder interface.
type commandRecorder struct {
	mu *sync.Mutex

	slot     int
	state    State
	commands []device.Command
	stats    Stats

	// target and framebuffer are set between BeginRenderTarget and EndRenderTarget.
	target      render_target.RenderTarget
	framebuffer device.FramebufferHandle

	pipeline Pipeline
	bound    map[uint32]resource_binder.ResourceBinder
	buffers  bool

	bufferCheck BufferChecker
}

// CommandRecorder records the linear command list of one frame slot. Each pass is scoped by
// BeginRenderTarget and EndRenderTarget. Draws are validated against the bound pipeline, so a
// draw whose shader declares a binding that was never populated fails with a MissingBindingError
// instead of reaching the device.
type CommandRecorder interface {
	// Slot returns the frame slot index the recorder belongs to.
	Slot() int

	// State returns the recording state.
	State() State

	// Begin starts a recording.
	//
	// Returns:
	//   - error: ErrInvalidState unless the recorder is in StateInitial
	Begin() error

	// Reset discards every recorded command and returns to StateInitial.
	Reset()

	// BeginRenderTarget begins a render target and sets a full-size viewport and scissor.
	//
	// Parameters:
	//   - rt: the render target
	//   - fb: the framebuffer of rt to render into
	//   - width: the render area width
	//   - height: the render area height
	//
	// Returns:
	//   - error: ErrInvalidState outside a recording or inside another target, or a
	//     *device.LayoutMismatchError when a loaded image is not in the expected layout
	BeginRenderTarget(rt render_target.RenderTarget, fb device.FramebufferHandle, width, height uint32) error

	// SetViewport overrides the viewport inside a render target.
	SetViewport(v device.Viewport) error

	// SetScissor overrides the scissor rectangle inside a render target.
	SetScissor(r device.Rect) error

	// BindPipeline binds a pipeline. Resource sets bound for a previous pipeline are forgotten.
	//
	// Parameters:
	//   - p: the pipeline
	//
	// Returns:
	//   - error: ErrInvalidState outside a render target
	BindPipeline(p Pipeline) error

	// BindResourceSet binds the current slot's copy of a binder at the binder's group.
	//
	// Parameters:
	//   - b: the binder
	//
	// Returns:
	//   - error: a *device.MissingBindingError if the slot's copy is incomplete
	BindResourceSet(b resource_binder.ResourceBinder) error

	// PushConstants records a small per-draw constant block for the bound pipeline.
	//
	// Parameters:
	//   - data: the bytes, at most the pipeline's push constant size
	//
	// Returns:
	//   - error: ErrInvalidState without a pipeline that declares push constants
	PushConstants(data []byte) error

	// BindVertexAndIndexBuffers binds the vertex buffer and its 32-bit index buffer.
	//
	// Parameters:
	//   - vertex: the vertex buffer
	//   - index: the index buffer
	//
	// Returns:
	//   - error: ErrInvalidHandle for a zero handle, or for a destroyed one when the recorder
	//     was built WithBufferCheck
	BindVertexAndIndexBuffers(vertex, index device.BufferHandle) error

	// DrawIndexed draws indexed geometry.
	//
	// Parameters:
	//   - indexCount: the number of indices
	//   - instanceCount: the number of instances, 0 is treated as 1
	//
	// Returns:
	//   - error: a *device.MissingBindingError if a group the pipeline declares has no resource set
	DrawIndexed(indexCount, instanceCount uint32) error

	// DrawFullScreenTriangle draws the 3-vertex triangle used by full-screen passes.
	//
	// Returns:
	//   - error: a *device.MissingBindingError if a group the pipeline declares has no resource set
	DrawFullScreenTriangle() error

	// EndRenderTarget ends the current render target and records the final layouts of its images.
	EndRenderTarget() error

	// End finishes the recording.
	//
	// Returns:
	//   - error: ErrInvalidState outside a recording or with a render target still open
	End() error

	// Commands returns a copy of the recorded commands.
	Commands() []device.Command

	// Stats returns the counts of the current recording.
	Stats() Stats
}

var _ CommandRecorder = &commandRecorder{}

// New creates an empty recorder for a frame slot.
//
// Parameters:
//   - slot: the frame slot index
//   - opts: optional configuration
//
// Returns:
//   - CommandRecorder: the recorder in StateInitial
func New(slot int, opts ...CommandRecorderBuilderOption) CommandRecorder {
	r := &commandRecorder{
		mu:    &sync.Mutex{},
		slot:  slot,
		bound: make(map[uint32]resource_binder.ResourceBinder),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *commandRecorder) Slot() int {
	return r.slot
}

func (r *commandRecorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *commandRecorder) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInitial {
		return fmt.Errorf("%w: slot %d recorder is %s, reset it before recording", device.ErrInvalidState, r.slot, r.state)
	}
	r.state = StateRecording
	return nil
}

func (r *commandRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateInitial
	r.commands = r.commands[:0]
	r.stats = Stats{}
	r.target = nil
	r.framebuffer = device.FramebufferHandle{}
	r.unbind()
}

func (r *commandRecorder) unbind() {
	r.pipeline = nil
	clear(r.bound)
	r.buffers = false
}

func (r *commandRecorder) requireTarget(op string) error {
	if r.state != StateRecording {
		return fmt.Errorf("%w: %s on slot %d recorder in state %s", device.ErrInvalidState, op, r.slot, r.state)
	}
	if r.target == nil {
		return fmt.Errorf("%w: %s outside a render target", device.ErrInvalidState, op)
	}
	return nil
}

func (r *commandRecorder) BeginRenderTarget(rt render_target.RenderTarget, fb device.FramebufferHandle, width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return fmt.Errorf("%w: begin render target on slot %d recorder in state %s", device.ErrInvalidState, r.slot, r.state)
	}
	if r.target != nil {
		return fmt.Errorf("%w: render target %q is still open", device.ErrInvalidState, r.target.Label())
	}
	if err := rt.Enter(fb); err != nil {
		return err
	}
	r.target = rt
	r.framebuffer = fb
	r.commands = append(r.commands,
		device.Command{
			Kind:        device.CmdBeginRenderTarget,
			RenderPass:  rt.Handle(),
			Framebuffer: fb,
			Extent:      device.Extent{Width: width, Height: height},
			Clear:       rt.ClearValues(),
		},
		device.Command{
			Kind:     device.CmdSetViewport,
			Viewport: device.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1},
		},
		device.Command{
			Kind:    device.CmdSetScissor,
			Scissor: device.Rect{Width: width, Height: height},
		},
	)
	r.stats.RenderTargets++
	return nil
}

func (r *commandRecorder) SetViewport(v device.Viewport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("set viewport"); err != nil {
		return err
	}
	r.commands = append(r.commands, device.Command{Kind: device.CmdSetViewport, Viewport: v})
	return nil
}

func (r *commandRecorder) SetScissor(rect device.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("set scissor"); err != nil {
		return err
	}
	r.commands = append(r.commands, device.Command{Kind: device.CmdSetScissor, Scissor: rect})
	return nil
}

func (r *commandRecorder) BindPipeline(p Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("bind pipeline"); err != nil {
		return err
	}
	if !p.Handle().Valid() {
		return fmt.Errorf("%w: pipeline %q", device.ErrInvalidHandle, p.Label())
	}
	clear(r.bound)
	r.pipeline = p
	r.commands = append(r.commands, device.Command{Kind: device.CmdBindPipeline, Pipeline: p.Handle()})
	return nil
}

func (r *commandRecorder) BindResourceSet(b resource_binder.ResourceBinder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("bind resource set"); err != nil {
		return err
	}
	if r.pipeline == nil {
		return fmt.Errorf("%w: bind resource set %q without a pipeline", device.ErrInvalidState, b.Label())
	}
	if err := b.ValidateSlot(r.slot); err != nil {
		return err
	}
	r.bound[b.Group()] = b
	r.commands = append(r.commands, device.Command{
		Kind:        device.CmdBindResourceSet,
		Pipeline:    r.pipeline.Handle(),
		Group:       b.Group(),
		ResourceSet: b.ResourceSet(r.slot),
	})
	return nil
}

func (r *commandRecorder) PushConstants(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("push constants"); err != nil {
		return err
	}
	if r.pipeline == nil || r.pipeline.PushConstantSize() == 0 {
		return fmt.Errorf("%w: push constants without a pipeline that declares them", device.ErrInvalidState)
	}
	if uint32(len(data)) > r.pipeline.PushConstantSize() {
		return fmt.Errorf("%w: %d bytes pushed to pipeline %q, limit %d",
			device.ErrInvalidDescriptor, len(data), r.pipeline.Label(), r.pipeline.PushConstantSize())
	}
	r.commands = append(r.commands, device.Command{
		Kind:     device.CmdPushConstants,
		Pipeline: r.pipeline.Handle(),
		Data:     slices.Clone(data),
	})
	return nil
}

func (r *commandRecorder) BindVertexAndIndexBuffers(vertex, index device.BufferHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("bind vertex buffers"); err != nil {
		return err
	}
	if !vertex.Valid() || !index.Valid() {
		return fmt.Errorf("%w: vertex or index buffer", device.ErrInvalidHandle)
	}
	if r.bufferCheck != nil {
		for _, h := range []device.BufferHandle{vertex, index} {
			if !r.bufferCheck.BufferAlive(h) {
				return fmt.Errorf("%w: buffer %s was released", device.ErrInvalidHandle, h)
			}
		}
	}
	r.buffers = true
	r.commands = append(r.commands, device.Command{
		Kind:         device.CmdBindVertexAndIndexBuffers,
		VertexBuffer: vertex,
		IndexBuffer:  index,
	})
	return nil
}

// checkDraw requires a pipeline and a bound resource set for every group the pipeline declares.
func (r *commandRecorder) checkDraw(op string) error {
	if err := r.requireTarget(op); err != nil {
		return err
	}
	if r.pipeline == nil {
		return fmt.Errorf("%w: %s without a pipeline", device.ErrInvalidState, op)
	}
	for _, b := range r.pipeline.Bindings() {
		if _, ok := r.bound[b.Group]; !ok {
			return &device.MissingBindingError{
				Pipeline: r.pipeline.Label(),
				Group:    b.Group,
				Binding:  b.Binding,
				Slot:     r.slot,
				Name:     b.Name,
			}
		}
	}
	return nil
}

func (r *commandRecorder) DrawIndexed(indexCount, instanceCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDraw("draw indexed"); err != nil {
		return err
	}
	if !r.buffers {
		return fmt.Errorf("%w: draw indexed without vertex and index buffers", device.ErrInvalidState)
	}
	r.commands = append(r.commands, device.Command{
		Kind:          device.CmdDrawIndexed,
		Count:         indexCount,
		InstanceCount: max(instanceCount, 1),
	})
	r.stats.Draws++
	return nil
}

func (r *commandRecorder) DrawFullScreenTriangle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDraw("draw full-screen triangle"); err != nil {
		return err
	}
	r.commands = append(r.commands, device.Command{Kind: device.CmdDraw, Count: 3, InstanceCount: 1})
	r.stats.Draws++
	return nil
}

func (r *commandRecorder) EndRenderTarget() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireTarget("end render target"); err != nil {
		return err
	}
	r.target.Leave(r.framebuffer)
	r.commands = append(r.commands, device.Command{Kind: device.CmdEndRenderTarget})
	r.target = nil
	r.framebuffer = device.FramebufferHandle{}
	r.unbind()
	return nil
}

func (r *commandRecorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return fmt.Errorf("%w: end on slot %d recorder in state %s", device.ErrInvalidState, r.slot, r.state)
	}
	if r.target != nil {
		return fmt.Errorf("%w: render target %q is still open", device.ErrInvalidState, r.target.Label())
	}
	r.state = StateExecutable
	return nil
}

func (r *commandRecorder) Commands() []device.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

func (r *commandRecorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
