package command_recorder

import (
	"testing"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	label    string
	handle   device.PipelineHandle
	bindings []device.BindingLayout
	push     uint32
}

func (p *fakePipeline) Label() string                    { return p.label }
func (p *fakePipeline) Handle() device.PipelineHandle    { return p.handle }
func (p *fakePipeline) Bindings() []device.BindingLayout { return p.bindings }
func (p *fakePipeline) PushConstantSize() uint32         { return p.push }

type fixture struct {
	dev      *devicetest.Device
	color    attachment.Attachment
	target   render_target.RenderTarget
	pipeline *fakePipeline
	binder   resource_binder.ResourceBinder
	uniform  device.BufferHandle
	texture  device.ImageHandle
	sampler  device.SamplerHandle
}

// newFixture builds a pipeline declaring a uniform buffer at binding 0 and a texture with its
// sampler at bindings 1 and 2. Only the uniform buffer is bound.
func newFixture(t *testing.T, push uint32) fixture {
	t.Helper()
	dev := devicetest.New()
	color, err := attachment.New(dev, attachment.KindColor, 64, 32, attachment.WithLabel("ldr"))
	require.NoError(t, err)
	desc := render_target.NewDescriptor(true, render_target.Entry{Attachment: color, Role: device.RoleColor, Sampled: true})
	desc.Label = "tonemap"
	rt, err := render_target.Build(dev, desc, 2)
	require.NoError(t, err)

	bindings := []device.BindingLayout{
		{Group: 0, Binding: 0, Kind: device.BindingUniformBuffer, Name: "params"},
		{Group: 0, Binding: 1, Kind: device.BindingTexture, Name: "hdr"},
		{Group: 0, Binding: 2, Kind: device.BindingSampler, Name: "hdr_sampler"},
	}
	ph, err := dev.CreatePipeline(device.PipelineDesc{
		Label: "tonemap", Source: "src", VertexEntry: "vs_main", RenderPass: rt.Handle(),
		Bindings: bindings, PushConstantSize: push,
	})
	require.NoError(t, err)
	p := &fakePipeline{label: "tonemap", handle: ph, bindings: bindings, push: push}

	binder, err := resource_binder.New(dev, "tonemap", resource_binder.Layout{Pipeline: ph, PipelineLabel: "tonemap", Group: 0, Bindings: bindings}, 2)
	require.NoError(t, err)
	uniform, err := dev.CreateBuffer(device.BufferDesc{Size: 16, Usage: device.BufferUsageUniform})
	require.NoError(t, err)
	require.NoError(t, binder.BindUniformBuffer([]device.BufferHandle{uniform}, 0))

	texture, err := dev.CreateImage(device.ImageDesc{Width: 64, Height: 32, Format: device.FormatRGBA16Float})
	require.NoError(t, err)
	sampler, err := dev.CreateSampler(device.SamplerDesc{})
	require.NoError(t, err)

	return fixture{dev: dev, color: color, target: rt, pipeline: p, binder: binder, uniform: uniform, texture: texture, sampler: sampler}
}

func (f fixture) begin(t *testing.T, r CommandRecorder) {
	t.Helper()
	fb, err := f.target.Framebuffer(r.Slot(), 0)
	require.NoError(t, err)
	require.NoError(t, r.BeginRenderTarget(f.target, fb, 64, 32))
}

func kinds(cmds []device.Command) []device.CommandKind {
	out := make([]device.CommandKind, len(cmds))
	for i, c := range cmds {
		out[i] = c.Kind
	}
	return out
}

func TestFullScreenPassSequence(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.binder.BindImage(f.texture, f.sampler, 1))

	r := New(1)
	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.BindPipeline(f.pipeline))
	require.NoError(t, r.BindResourceSet(f.binder))
	require.NoError(t, r.DrawFullScreenTriangle())
	require.NoError(t, r.EndRenderTarget())
	require.NoError(t, r.End())

	cmds := r.Commands()
	assert.Equal(t, []device.CommandKind{
		device.CmdBeginRenderTarget, device.CmdSetViewport, device.CmdSetScissor,
		device.CmdBindPipeline, device.CmdBindResourceSet, device.CmdDraw, device.CmdEndRenderTarget,
	}, kinds(cmds))
	assert.Equal(t, device.Extent{Width: 64, Height: 32}, cmds[0].Extent)
	assert.Equal(t, float32(64), cmds[1].Viewport.Width)
	assert.Equal(t, uint32(32), cmds[2].Scissor.Height)
	assert.Equal(t, f.binder.ResourceSet(1), cmds[4].ResourceSet, "slot 1 binds its own copy")
	assert.Equal(t, uint32(3), cmds[5].Count)
	assert.Equal(t, Stats{RenderTargets: 1, Draws: 1}, r.Stats())
	assert.Equal(t, device.LayoutShaderReadOnly, f.color.Layout())

	fence, err := f.dev.CreateFence(false)
	require.NoError(t, err)
	assert.NoError(t, f.dev.Submit(device.SubmitInfo{Commands: cmds, Fence: fence}))
}

func TestDrawBeforeTextureBindFailsWithMissingBinding(t *testing.T) {
	f := newFixture(t, 0)
	r := New(0)
	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.BindPipeline(f.pipeline))

	var missing *device.MissingBindingError
	require.ErrorAs(t, r.BindResourceSet(f.binder), &missing)
	assert.Equal(t, "tonemap", missing.Pipeline)
	assert.Equal(t, uint32(1), missing.Binding)
	assert.Equal(t, "hdr", missing.Name)

	require.ErrorAs(t, r.DrawFullScreenTriangle(), &missing)
	assert.Equal(t, uint32(0), missing.Group)
	assert.ErrorIs(t, r.DrawFullScreenTriangle(), device.ErrMissingBinding)

	for _, c := range r.Commands() {
		assert.NotEqual(t, device.CmdDraw, c.Kind, "an invalid draw must never be recorded")
		assert.NotEqual(t, device.CmdBindResourceSet, c.Kind)
	}
}

func TestResetDiscardsPreviousRecording(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.binder.BindImage(f.texture, f.sampler, 1))
	r := New(0)

	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.BindPipeline(f.pipeline))
	require.NoError(t, r.BindResourceSet(f.binder))
	require.NoError(t, r.DrawFullScreenTriangle())
	require.NoError(t, r.DrawFullScreenTriangle())
	require.NoError(t, r.EndRenderTarget())
	require.NoError(t, r.End())

	assert.ErrorIs(t, r.Begin(), device.ErrInvalidState, "re-recording without reset is rejected")

	r.Reset()
	assert.Equal(t, StateInitial, r.State())
	assert.Empty(t, r.Commands())
	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.EndRenderTarget())
	require.NoError(t, r.End())

	assert.Equal(t, []device.CommandKind{
		device.CmdBeginRenderTarget, device.CmdSetViewport, device.CmdSetScissor, device.CmdEndRenderTarget,
	}, kinds(r.Commands()))
	assert.Equal(t, Stats{RenderTargets: 1}, r.Stats())
}

func TestResetMidRecordingForgetsBoundState(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.binder.BindImage(f.texture, f.sampler, 1))
	r := New(0)
	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.BindPipeline(f.pipeline))
	require.NoError(t, r.BindResourceSet(f.binder))

	r.Reset()
	require.NoError(t, r.Begin())
	f.begin(t, r)
	require.NoError(t, r.BindPipeline(f.pipeline))
	assert.ErrorIs(t, r.DrawFullScreenTriangle(), device.ErrMissingBinding)
}

func TestStateMachineRejectsMisuse(t *testing.T) {
	f := newFixture(t, 0)
	r := New(0)

	fb, err := f.target.Framebuffer(0, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, r.BeginRenderTarget(f.target, fb, 64, 32), device.ErrInvalidState)
	assert.ErrorIs(t, r.End(), device.ErrInvalidState)

	require.NoError(t, r.Begin())
	assert.ErrorIs(t, r.Begin(), device.ErrInvalidState)
	assert.ErrorIs(t, r.BindPipeline(f.pipeline), device.ErrInvalidState)
	assert.ErrorIs(t, r.EndRenderTarget(), device.ErrInvalidState)

	require.NoError(t, r.BeginRenderTarget(f.target, fb, 64, 32))
	assert.ErrorIs(t, r.BeginRenderTarget(f.target, fb, 64, 32), device.ErrInvalidState)
	assert.ErrorIs(t, r.End(), device.ErrInvalidState)
	assert.ErrorIs(t, r.BindResourceSet(f.binder), device.ErrInvalidState, "no pipeline yet")
	assert.ErrorIs(t, r.DrawFullScreenTriangle(), device.ErrInvalidState)
	require.NoError(t, r.BindPipeline(f.pipeline))
	require.NoError(t, f.binder.BindImage(f.texture, f.sampler, 1))
	require.NoError(t, r.BindResourceSet(f.binder))
	assert.ErrorIs(t, r.DrawIndexed(36, 1), device.ErrInvalidState, "no vertex buffers bound")
	require.NoError(t, r.EndRenderTarget())
	assert.NoError(t, r.End())
}

func TestPushConstantsRespectPipelineBlock(t *testing.T) {
	f := newFixture(t, 64)
	require.NoError(t, f.binder.BindImage(f.texture, f.sampler, 1))
	r := New(0)
	require.NoError(t, r.Begin())
	f.begin(t, r)

	assert.ErrorIs(t, r.PushConstants(make([]byte, 16)), device.ErrInvalidState)
	require.NoError(t, r.BindPipeline(f.pipeline))
	require.NoError(t, r.BindResourceSet(f.binder))

	data := make([]byte, 64)
	data[0] = 7
	require.NoError(t, r.PushConstants(data))
	data[0] = 9
	assert.Equal(t, byte(7), r.Commands()[5].Data[0], "pushed data is copied")
	assert.ErrorIs(t, r.PushConstants(make([]byte, 65)), device.ErrInvalidDescriptor)

	vb, err := f.dev.CreateBuffer(device.BufferDesc{Size: 64, Usage: device.BufferUsageVertex})
	require.NoError(t, err)
	ib, err := f.dev.CreateBuffer(device.BufferDesc{Size: 64, Usage: device.BufferUsageIndex})
	require.NoError(t, err)
	require.NoError(t, r.BindVertexAndIndexBuffers(vb, ib))
	require.NoError(t, r.DrawIndexed(6, 0))
	cmds := r.Commands()
	assert.Equal(t, uint32(1), cmds[len(cmds)-1].InstanceCount)
}

func TestReleasedBuffersAreRejectedAtBind(t *testing.T) {
	f := newFixture(t, 0)
	vb, err := f.dev.CreateBuffer(device.BufferDesc{Size: 64, Usage: device.BufferUsageVertex})
	require.NoError(t, err)
	ib, err := f.dev.CreateBuffer(device.BufferDesc{Size: 64, Usage: device.BufferUsageIndex})
	require.NoError(t, err)
	f.dev.DestroyBuffer(ib)

	unchecked := New(0)
	require.NoError(t, unchecked.Begin())
	f.begin(t, unchecked)
	assert.NoError(t, unchecked.BindVertexAndIndexBuffers(vb, ib), "without a check only zero handles fail")

	r := New(0, WithBufferCheck(f.dev))
	require.NoError(t, r.Begin())
	f.begin(t, r)
	before := len(r.Commands())
	assert.ErrorIs(t, r.BindVertexAndIndexBuffers(vb, ib), device.ErrInvalidHandle)
	assert.Len(t, r.Commands(), before, "nothing is recorded")
	assert.ErrorIs(t, r.BindVertexAndIndexBuffers(vb, device.BufferHandle{}), device.ErrInvalidHandle)

	live, err := f.dev.CreateBuffer(device.BufferDesc{Size: 64, Usage: device.BufferUsageIndex})
	require.NoError(t, err)
	assert.NoError(t, r.BindVertexAndIndexBuffers(vb, live))
}

func TestBeginRenderTargetReportsLayoutMismatch(t *testing.T) {
	f := newFixture(t, 0)
	desc := render_target.NewDescriptor(false, render_target.Entry{Attachment: f.color, Role: device.RoleColor})
	desc.Label = "overlay"
	overlay, err := render_target.Build(f.dev, desc, 1)
	require.NoError(t, err)
	fb, err := overlay.Framebuffer(0, 0)
	require.NoError(t, err)

	r := New(0)
	require.NoError(t, r.Begin())
	err = r.BeginRenderTarget(overlay, fb, 64, 32)
	assert.ErrorIs(t, err, device.ErrLayoutMismatch)
	assert.Empty(t, r.Commands())
}
