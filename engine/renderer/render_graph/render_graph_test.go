package render_graph

import (
	"context"
	"errors"
	"testing"

	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device/devicetest"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImage(t *testing.T, dev device.Device, label string, kind attachment.Kind) attachment.Attachment {
	t.Helper()
	opts := []attachment.AttachmentBuilderOption{attachment.WithLabel(label)}
	if kind == attachment.KindColor {
		opts = append(opts, attachment.WithFormat(device.FormatRGBA16Float))
	}
	a, err := attachment.New(dev, kind, 16, 16, opts...)
	require.NoError(t, err)
	return a
}

func buildTarget(t *testing.T, dev device.Device, label string, clear bool, entries ...render_target.Entry) render_target.RenderTarget {
	t.Helper()
	desc := render_target.NewDescriptor(clear, entries...)
	desc.Label = label
	rt, err := render_target.Build(dev, desc, 2)
	require.NoError(t, err)
	return rt
}

func noop(context.Context) error { return nil }

// scene mirrors the renderer's shape: a depth pre-pass, a forward pass loading that depth,
// an optional sky pass loading the forward color, and a tone mapping pass sampling it.
type scene struct {
	dev   *devicetest.Device
	graph RenderGraph
	sky   bool
	log   []string
}

func newScene(t *testing.T) *scene {
	t.Helper()
	s := &scene{dev: devicetest.New(), graph: New(), sky: true}
	depth := newImage(t, s.dev, "depth", attachment.KindDepth)
	hdr := newImage(t, s.dev, "hdr", attachment.KindColor)
	ldr := newImage(t, s.dev, "ldr", attachment.KindColor)
	for name, img := range map[string]attachment.Attachment{"depth": depth, "hdr": hdr, "ldr": ldr} {
		_, err := s.graph.AddResource(name, img, false)
		require.NoError(t, err)
	}

	prepass := buildTarget(t, s.dev, "depth-prepass", true,
		render_target.Entry{Attachment: depth, Role: device.RoleDepth, Retain: true})
	forward := buildTarget(t, s.dev, "forward", true,
		render_target.Entry{Attachment: hdr, Role: device.RoleColor, Sampled: true})
	sky := buildTarget(t, s.dev, "skybox", false,
		render_target.Entry{Attachment: hdr, Role: device.RoleColor, Sampled: true},
		render_target.Entry{Attachment: depth, Role: device.RoleDepth})
	tonemap := buildTarget(t, s.dev, "tonemap", true,
		render_target.Entry{Attachment: ldr, Role: device.RoleColor, Sampled: true})

	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			s.log = append(s.log, name)
			return nil
		}
	}
	passes := []Pass{
		{Name: "depth", Writes: []string{"depth"}, Targets: []render_target.RenderTarget{prepass}, Record: record("depth")},
		{Name: "forward", Writes: []string{"hdr"}, Targets: []render_target.RenderTarget{forward}, Record: record("forward")},
		{Name: "skybox", Writes: []string{"hdr"}, Targets: []render_target.RenderTarget{sky}, Record: record("skybox"),
			Enabled: func() bool { return s.sky }},
		{Name: "tonemap", Reads: []string{"hdr"}, Writes: []string{"ldr"}, Targets: []render_target.RenderTarget{tonemap}, Record: record("tonemap")},
	}
	for _, p := range passes {
		require.NoError(t, s.graph.AddPass(p))
	}
	return s
}

func TestCompileAndExecute(t *testing.T) {
	s := newScene(t)
	require.NoError(t, s.graph.Compile())
	assert.Equal(t, []string{"depth", "forward", "skybox", "tonemap"}, s.graph.Order())

	ctx := context.Background()
	for _, name := range s.graph.Order() {
		require.NoError(t, s.graph.Execute(ctx, name))
	}
	assert.Equal(t, []string{"depth", "forward", "skybox", "tonemap"}, s.log)
	assert.Equal(t, s.log, s.graph.Executed())

	s.graph.Reset()
	s.log = nil
	s.sky = false
	for _, name := range s.graph.Order() {
		require.NoError(t, s.graph.Execute(ctx, name), "disabled passes are no-ops")
	}
	assert.Equal(t, []string{"depth", "forward", "tonemap"}, s.log)
	assert.Equal(t, []string{"skybox"}, s.graph.Skipped())
}

func TestExecuteEnforcesOrder(t *testing.T) {
	s := newScene(t)
	ctx := context.Background()
	assert.ErrorIs(t, s.graph.Execute(ctx, "depth"), device.ErrInvalidState, "execute before compile")

	require.NoError(t, s.graph.Compile())
	require.NoError(t, s.graph.Execute(ctx, "forward"))
	assert.ErrorIs(t, s.graph.Execute(ctx, "depth"), device.ErrInvalidState)
	assert.ErrorIs(t, s.graph.Execute(ctx, "forward"), device.ErrInvalidState, "a pass runs once per frame")
	assert.ErrorIs(t, s.graph.Execute(ctx, "missing"), device.ErrInvalidState)

	s.graph.Reset()
	assert.NoError(t, s.graph.Execute(ctx, "depth"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.graph.Execute(cancelled, "forward"), context.Canceled)
}

func TestExecuteWrapsPassErrors(t *testing.T) {
	g := New()
	boom := errors.New("boom")
	require.NoError(t, g.AddPass(Pass{Name: "final", Record: func(context.Context) error { return boom }}))
	require.NoError(t, g.Compile())
	err := g.Execute(context.Background(), "final")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `pass "final"`)
}

func TestCompileRejectsReadBeforeWrite(t *testing.T) {
	dev := devicetest.New()
	g := New()
	_, err := g.AddResource("ssao", newImage(t, dev, "ssao", attachment.KindColor), false)
	require.NoError(t, err)
	require.NoError(t, g.AddPass(Pass{Name: "forward", Reads: []string{"ssao"}, Record: noop}))
	require.NoError(t, g.AddPass(Pass{Name: "ssao", Writes: []string{"ssao"}, Record: noop}))

	err = g.Compile()
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
	assert.Contains(t, err.Error(), `"forward" reads "ssao"`)
}

func TestCompileExternalResourcesNeedNoWriter(t *testing.T) {
	dev := devicetest.New()
	g := New()
	_, err := g.AddResource("skybox-cubemap", newImage(t, dev, "sky", attachment.KindCubemap), true)
	require.NoError(t, err)
	require.NoError(t, g.AddPass(Pass{Name: "skybox", Reads: []string{"skybox-cubemap"}, Record: noop}))
	assert.NoError(t, g.Compile())
}

func TestCompileDetectsCycles(t *testing.T) {
	dev := devicetest.New()
	g := New()
	for _, name := range []string{"a", "b"} {
		_, err := g.AddResource(name, newImage(t, dev, name, attachment.KindColor), false)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddPass(Pass{Name: "first", Reads: []string{"b"}, Writes: []string{"a"}, Record: noop}))
	require.NoError(t, g.AddPass(Pass{Name: "second", Reads: []string{"a"}, Writes: []string{"b"}, Record: noop}))

	err := g.Compile()
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
	assert.Contains(t, err.Error(), "first, second")
}

func TestCompileRejectsUnknownResources(t *testing.T) {
	g := New()
	require.NoError(t, g.AddPass(Pass{Name: "bloom", Reads: []string{"hdr"}, Record: noop}))
	assert.ErrorIs(t, g.Compile(), device.ErrInvalidDescriptor)
}

func TestCompileChecksLoadLayouts(t *testing.T) {
	dev := devicetest.New()
	hdr := newImage(t, dev, "hdr", attachment.KindColor)
	g := New()
	_, err := g.AddResource("hdr", hdr, false)
	require.NoError(t, err)

	// forward leaves hdr as a color attachment, but the sky target expects to sample-load it
	forward := buildTarget(t, dev, "forward", true, render_target.Entry{Attachment: hdr, Role: device.RoleColor})
	sky := buildTarget(t, dev, "skybox", false, render_target.Entry{Attachment: hdr, Role: device.RoleColor, Sampled: true})
	require.NoError(t, g.AddPass(Pass{Name: "forward", Writes: []string{"hdr"}, Targets: []render_target.RenderTarget{forward}, Record: noop}))
	require.NoError(t, g.AddPass(Pass{Name: "skybox", Writes: []string{"hdr"}, Targets: []render_target.RenderTarget{sky}, Record: noop}))

	err = g.Compile()
	var mismatch *device.LayoutMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "hdr", mismatch.Attachment)
	assert.Equal(t, "skybox", mismatch.Pass)
	assert.Equal(t, device.LayoutColorAttachment, mismatch.Have)
	assert.Equal(t, device.LayoutShaderReadOnly, mismatch.Want)
}

func TestCompileChecksLayoutsWithOptionalPassesSkipped(t *testing.T) {
	dev := devicetest.New()
	depth := newImage(t, dev, "depth", attachment.KindDepth)
	g := New()
	_, err := g.AddResource("depth", depth, false)
	require.NoError(t, err)

	prepass := buildTarget(t, dev, "depth-prepass", true, render_target.Entry{Attachment: depth, Role: device.RoleDepth, Retain: true})
	forward := buildTarget(t, dev, "forward", false, render_target.Entry{Attachment: depth, Role: device.RoleDepth})
	require.NoError(t, g.AddPass(Pass{Name: "depth", Writes: []string{"depth"}, Targets: []render_target.RenderTarget{prepass},
		Enabled: func() bool { return true }, Record: noop}))
	require.NoError(t, g.AddPass(Pass{Name: "forward", Writes: []string{"depth"}, Targets: []render_target.RenderTarget{forward}, Record: noop}))

	err = g.Compile()
	var mismatch *device.LayoutMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Contains(t, err.Error(), `with pass "depth" disabled`)
	assert.Equal(t, device.LayoutUndefined, mismatch.Have)
}

func TestResources(t *testing.T) {
	dev := devicetest.New()
	g := New()
	hdr := newImage(t, dev, "hdr", attachment.KindColor)
	h, err := g.AddResource("hdr", hdr, false)
	require.NoError(t, err)
	assert.Equal(t, h, g.Handle("hdr"))

	_, err = g.AddResource("hdr", hdr, false)
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)
	_, err = g.AddResource("nil", nil, false)
	assert.ErrorIs(t, err, device.ErrInvalidDescriptor)

	resized := newImage(t, dev, "hdr", attachment.KindColor)
	require.NoError(t, g.ReplaceResource("hdr", resized))
	got, ok := g.Get(h)
	require.True(t, ok, "handles survive replacement")
	assert.Equal(t, resized, got)
	assert.Equal(t, 1, dev.Live(devicetest.KindImage), "the replaced image is released")
	assert.ErrorIs(t, g.ReplaceResource("missing", resized), device.ErrInvalidHandle)

	cube := newImage(t, dev, "sky", attachment.KindCubemap)
	_, err = g.AddResource("sky", cube, true)
	require.NoError(t, err)
	g.Release()
	assert.Equal(t, 1, dev.Live(devicetest.KindImage), "external images outlive the graph")
	_, ok = g.Resource("hdr")
	assert.False(t, ok)
	_, ok = g.Get(h)
	assert.False(t, ok)
}
