package device

// CommandKind tags a recorded Command.
type CommandKind int

const (
	CmdBeginRenderTarget CommandKind = iota
	CmdEndRenderTarget
	CmdSetViewport
	CmdSetScissor
	CmdBindPipeline
	CmdBindResourceSet
	CmdPushConstants
	CmdBindVertexAndIndexBuffers
	CmdDrawIndexed
	CmdDraw
)

var commandNames = [...]string{
	CmdBeginRenderTarget:         "begin-render-target",
	CmdEndRenderTarget:           "end-render-target",
	CmdSetViewport:               "set-viewport",
	CmdSetScissor:                "set-scissor",
	CmdBindPipeline:              "bind-pipeline",
	CmdBindResourceSet:           "bind-resource-set",
	CmdPushConstants:             "push-constants",
	CmdBindVertexAndIndexBuffers: "bind-vertex-and-index-buffers",
	CmdDrawIndexed:               "draw-indexed",
	CmdDraw:                      "draw",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command is one recorded GPU command. Only the fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// CmdBeginRenderTarget
	RenderPass  RenderPassHandle
	Framebuffer FramebufferHandle
	Extent      Extent
	Clear       []ClearValue

	// CmdSetViewport, CmdSetScissor
	Viewport Viewport
	Scissor  Rect

	// CmdBindPipeline, and the pipeline in effect for CmdBindResourceSet and CmdPushConstants
	Pipeline PipelineHandle

	// CmdBindResourceSet
	Group       uint32
	ResourceSet ResourceSetHandle

	// CmdPushConstants
	Data []byte

	// CmdBindVertexAndIndexBuffers
	VertexBuffer BufferHandle
	IndexBuffer  BufferHandle

	// CmdDrawIndexed, CmdDraw
	Count         uint32
	InstanceCount uint32
	First         uint32
	VertexOffset  int32
}
