package renderer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SedenionProj/vulkan-renderer/assets"
	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/config"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/bloom"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/command_recorder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/frame_slot"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/material"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/pipeline"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_graph"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/swapchain"
	"github.com/chewxy/math32"
)

// Camera is the view the scene is rendered from. Matrices are column-major.
type Camera struct {
	View       [16]float32
	Projection [16]float32
	Position   [3]float32
}

// Light is the directional light that also casts the shadow map.
type Light struct {
	// Direction points from the light into the scene.
	Direction [3]float32
	Color     [3]float32
	Intensity float32
	// Center and Extent bound the orthographic shadow volume: a box of half-size Extent around Center.
	Center [3]float32
	Extent float32
}

// viewProj returns the orthographic light-space transform of the shadow pass.
func (l Light) viewProj() [16]float32 {
	dir := common.Normalize3(l.Direction)
	extent := max(l.Extent, 1)
	eye := [3]float32{
		l.Center[0] - dir[0]*extent*2,
		l.Center[1] - dir[1]*extent*2,
		l.Center[2] - dir[2]*extent*2,
	}
	up := [3]float32{0, 1, 0}
	if math32.Abs(dir[1]) > 0.99 {
		up = [3]float32{0, 0, 1}
	}
	var view, proj, out [16]float32
	common.LookAt(view[:], eye[0], eye[1], eye[2], l.Center[0], l.Center[1], l.Center[2], up[0], up[1], up[2])
	common.Ortho(proj[:], -extent, extent, -extent, extent, 0, extent*4)
	common.Mul4(out[:], proj[:], view[:])
	return out
}

// Stats describes the last frame.
type Stats struct {
	// Frames counts frames presented with their recorded passes.
	Frames uint64
	// SkippedFrames counts frames dropped because the surface was out of date or minimized, and
	// frames presented empty because recording or submission failed.
	SkippedFrames uint64
	// Rebuilds counts surface rebuilds.
	Rebuilds uint64
	// Slot and ImageIndex are the frame slot and swapchain image of the last BeginFrame.
	Slot       int
	ImageIndex uint32
	// AcquireWait is how long the last BeginFrame blocked on the slot fence and image acquire.
	AcquireWait   time.Duration
	RenderTargets int
	Draws         int
	// Visible and ShadowCasters count the draw items left after culling.
	Visible       int
	ShadowCasters int
	Executed      []string
	Skipped       []string
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	dev      device.Device
	settings config.Settings
	// pending holds settings staged by SetSettings until the next BeginFrame.
	pending    *config.Settings
	library    shader.Library
	skyFaces   *[6]*common.ImportedTexture
	skyColor   [4]byte
	kernelSeed uint64

	sc    swapchain.Swapchain
	slots int

	width, height               uint32
	pendingWidth, pendingHeight uint32
	needsRebuild                bool

	images    sizedImages
	shadowMap attachment.Attachment
	sky       attachment.Attachment

	linearSampler   device.SamplerHandle
	materialSampler device.SamplerHandle
	shadowSampler   device.SamplerHandle

	frameBuffers []device.BufferHandle
	kernelBuffer device.BufferHandle

	defaultTextures [3]attachment.Attachment
	defaultMaterial material.Material

	targets   map[string]render_target.RenderTarget
	pipelines map[string]pipeline.Pipeline
	binders   map[string]resource_binder.ResourceBinder
	bloom     bloom.Bloom
	graph     render_graph.RenderGraph

	camera     Camera
	userCamera bool
	light      Light
	items      []DrawItem
	visible    []DrawItem
	casters    []DrawItem

	frameOpen   bool
	frameFailed bool
	ctx         context.Context
	rec         command_recorder.CommandRecorder
	slot        frame_slot.FrameSlot
	imageIndex  uint32

	stats Stats
}

// Renderer is the multi-pass frame renderer. A frame is BeginFrame, the eight pass calls in
// order, then EndFrame:
//
//	depth pre-pass, SSAO, shadow, forward, sky box, bloom, tone mapping, final
//
// The SSAO, shadow, sky box and bloom passes are no-ops while their setting is off.
type Renderer interface {
	// BeginFrame waits for the current frame slot, acquires a swapchain image, writes the frame
	// uniforms and starts recording. A pending resize is applied first.
	//
	// Parameters:
	//   - ctx: cancels the pass calls of this frame
	//
	// Returns:
	//   - error: wraps device.ErrSurfaceOutOfDate when the frame was skipped and the surface will
	//     be rebuilt, device.ErrDeviceWait when the GPU did not finish in time, or
	//     device.ErrInvalidState when a frame is already open
	BeginFrame(ctx context.Context) error

	// DepthPrePass renders the visible items into the depth image SSAO samples.
	DepthPrePass() error

	// SSAOPass computes ambient occlusion from the pre-pass depth.
	SSAOPass() error

	// ShadowPass renders the shadow casters into the shadow map from the light.
	ShadowPass() error

	// ForwardPass shades the visible items into the HDR image.
	ForwardPass() error

	// SkyBoxPass draws the sky cubemap behind the scene.
	SkyBoxPass() error

	// BloomPass runs the bloom mip chain over the HDR image.
	BloomPass() error

	// ToneMappingPass combines the HDR image and bloom into the LDR image.
	ToneMappingPass() error

	// FinalPass copies the LDR image into the acquired swapchain image.
	FinalPass() error

	// EndFrame submits the frame and presents it. A frame whose pass failed is submitted empty.
	//
	// Returns:
	//   - error: wraps device.ErrSurfaceOutOfDate when the surface will be rebuilt before the next frame
	EndFrame() error

	// RenderFrame records a whole frame: BeginFrame, every pass, EndFrame.
	RenderFrame(ctx context.Context) error

	// Resize schedules a surface rebuild at the next BeginFrame. A zero size skips frames until
	// the window has an area again.
	Resize(width, height uint32)

	// Rebuild recreates the surface and every size-dependent resource now. The frame must be closed.
	//
	// Returns:
	//   - error: wraps device.ErrDeviceWait or device.ErrResourceCreation
	Rebuild() error

	// SetDrawList replaces the items drawn from the next BeginFrame on.
	SetDrawList(items []DrawItem)

	// SetCamera sets the view of the next frames.
	SetCamera(c Camera)

	// SetLight sets the directional light of the next frames.
	SetLight(l Light)

	// Settings returns the settings the next frame will use.
	Settings() config.Settings

	// SetSettings stages settings for the next BeginFrame. Only the pass toggles and the shading
	// parameters may change after New.
	//
	// Parameters:
	//   - s: the settings
	//
	// Returns:
	//   - error: wraps device.ErrInvalidDescriptor for invalid settings, or device.ErrInvalidState
	//     when a field fixed at construction changed
	SetSettings(s config.Settings) error

	// NewMaterial creates a material for the forward pass. Textures left unset use the renderer's
	// white albedo, black specular and flat normal textures.
	//
	// Parameters:
	//   - opts: material options
	//
	// Returns:
	//   - material.Material: the material, released by the caller
	//   - error: wraps device.ErrResourceCreation
	NewMaterial(opts ...material.MaterialBuilderOption) (material.Material, error)

	// MaterialLayout returns the layout of the forward pass material group.
	MaterialLayout() resource_binder.Layout

	// Graph returns the compiled frame graph.
	Graph() render_graph.RenderGraph

	// Stats returns the statistics of the last frame.
	Stats() Stats

	// Release waits for the device and destroys everything the renderer created. The device itself
	// is left to the caller.
	Release()
}

var _ Renderer = &renderer{}

// New builds the surface, every pass target, pipeline and binder, and compiles the frame graph.
// Any failure releases what was created.
//
// Parameters:
//   - dev: the device context, with a surface
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//   - opts: variadic list of RendererBuilderOption functions to configure the renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: wraps device.ErrResourceCreation or device.ErrInvalidDescriptor
func New(dev device.Device, width, height uint32, opts ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:         &sync.Mutex{},
		dev:        dev,
		settings:   config.Default(),
		skyColor:   [4]byte{120, 160, 210, 255},
		kernelSeed: 1,
		light: Light{
			Direction: common.Normalize3([3]float32{-0.4, -1, -0.3}),
			Color:     [3]float32{1, 1, 1},
			Intensity: 3,
			Extent:    20,
		},
		targets:   make(map[string]render_target.RenderTarget),
		pipelines: make(map[string]pipeline.Pipeline),
		binders:   make(map[string]resource_binder.ResourceBinder),
		graph:     render_graph.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.settings.Validate(); err != nil {
		return nil, err
	}
	if err := r.init(width, height); err != nil {
		r.Release()
		return nil, err
	}
	common.Logger().Info("renderer ready",
		"width", r.width, "height", r.height, "slots", r.slots, "msaa", r.settings.MSAA,
		"passes", r.graph.Order())
	return r, nil
}

func (r *renderer) init(width, height uint32) error {
	mode, _ := r.settings.Present()
	sc, err := swapchain.New(r.dev, width, height,
		swapchain.WithFramesInFlight(r.settings.FramesInFlight),
		swapchain.WithPresentMode(mode),
		swapchain.WithFenceTimeout(time.Duration(r.settings.FenceTimeout)),
		swapchain.WithAcquireTimeout(time.Duration(r.settings.AcquireTimeout)),
	)
	if err != nil {
		return err
	}
	r.sc = sc
	r.slots = len(sc.Slots())
	ext := sc.Extent()
	r.width, r.height = ext.Width, ext.Height
	r.pendingWidth, r.pendingHeight = ext.Width, ext.Height
	if !r.userCamera {
		r.camera = defaultCamera(r.width, r.height)
	}

	shaders, err := r.loadShaders()
	if err != nil {
		return err
	}
	steps := []func() error{
		r.createSamplers,
		r.createBuffers,
		r.createImages,
		r.buildTargets,
		func() error { return r.buildPipelines(shaders) },
		func() error { return r.createBloom(shaders[ShaderBloom]) },
		r.buildBinders,
		r.createDefaultMaterial,
		r.buildGraph,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// loadShaders compiles every pass shader, from ShaderDir when set and the embedded sources otherwise.
func (r *renderer) loadShaders() (map[string]shader.Shader, error) {
	if r.library == nil {
		if dir := r.settings.ShaderDir; dir != "" {
			r.library = shader.NewLibrary(os.DirFS(dir), shader.WithCacheDir(filepath.Join(dir, ".cache")))
		} else {
			r.library = shader.NewLibrary(assets.Shaders, shader.WithDir(assets.ShaderDir))
		}
	}
	return r.library.LoadAll(ShaderNames...)
}

func (r *renderer) createSamplers() error {
	descs := []struct {
		dst  *device.SamplerHandle
		desc device.SamplerDesc
	}{
		{&r.linearSampler, device.SamplerDesc{Label: "Linear Clamp", Filter: device.FilterLinear, Address: device.AddressClampToEdge}},
		{&r.materialSampler, device.SamplerDesc{Label: "Material", Filter: device.FilterLinear, Address: device.AddressRepeat}},
		{&r.shadowSampler, device.SamplerDesc{Label: "Shadow Compare", Filter: device.FilterLinear,
			Address: device.AddressClampToEdge, Compare: device.CompareLessEqual}},
	}
	for _, d := range descs {
		s, err := r.dev.CreateSampler(d.desc)
		if err != nil {
			return fmt.Errorf("%w: sampler %q: %w", device.ErrResourceCreation, d.desc.Label, err)
		}
		*d.dst = s
	}
	return nil
}

// createBuffers allocates one frame uniform buffer per slot and the SSAO kernel.
func (r *renderer) createBuffers() error {
	for i := range r.slots {
		buf, err := r.dev.CreateBuffer(device.BufferDesc{
			Label: fmt.Sprintf("Frame Uniforms %d", i),
			Size:  FrameUniformsSize,
			Usage: device.BufferUsageUniform | device.BufferUsageTransferDst,
		})
		if err != nil {
			return fmt.Errorf("%w: frame uniforms: %w", device.ErrResourceCreation, err)
		}
		r.frameBuffers = append(r.frameBuffers, buf)
	}
	kernel := NewSSAOKernel(r.kernelSeed)
	data := kernel.Bytes()
	buf, err := r.dev.CreateBuffer(device.BufferDesc{
		Label: "SSAO Kernel",
		Size:  uint64(len(data)),
		Usage: device.BufferUsageUniform | device.BufferUsageTransferDst,
	})
	if err != nil {
		return fmt.Errorf("%w: ssao kernel: %w", device.ErrResourceCreation, err)
	}
	r.kernelBuffer = buf
	if err := r.dev.WriteBuffer(buf, 0, data); err != nil {
		return fmt.Errorf("%w: ssao kernel: %w", device.ErrResourceCreation, err)
	}
	return nil
}

// createImages allocates the surface-sized images, the shadow map and the sky cubemap.
func (r *renderer) createImages() error {
	images, err := createSizedImages(r.dev, r.width, r.height, r.settings.MSAA)
	if err != nil {
		return err
	}
	r.images = images

	size := r.settings.ShadowMapSize
	r.shadowMap, err = attachment.New(r.dev, attachment.KindDepth, size, size, attachment.WithLabel("Shadow Map"))
	if err != nil {
		return err
	}

	if r.skyFaces != nil {
		r.sky, err = uploadSkyBox(r.dev, *r.skyFaces)
	} else {
		r.sky, err = createSkyCubemap(r.dev, r.skyColor)
	}
	return err
}

func (r *renderer) createBloom(sh shader.Shader) error {
	b, err := bloom.New(r.dev, sh, r.images.hdr, r.slots, bloom.WithMipLevels(r.settings.BloomMips))
	if err != nil {
		return err
	}
	r.bloom = b
	return nil
}

// createDefaultMaterial uploads the fallback textures and the material drawn for items without one.
func (r *renderer) createDefaultMaterial() error {
	solids := []struct {
		label  string
		rgba   [4]byte
		format device.Format
	}{
		{"Default Albedo", [4]byte{255, 255, 255, 255}, device.FormatRGBA8UnormSrgb},
		{"Default Specular", [4]byte{0, 0, 0, 255}, device.FormatRGBA8Unorm},
		{"Default Normal", [4]byte{128, 128, 255, 255}, device.FormatRGBA8Unorm},
	}
	for i, s := range solids {
		tex, err := material.SolidTexture(r.dev, s.label, s.rgba, s.format)
		if err != nil {
			return err
		}
		r.defaultTextures[i] = tex
	}
	m, err := r.newMaterial(material.WithName("default"))
	if err != nil {
		return err
	}
	r.defaultMaterial = m
	return nil
}

func (r *renderer) newMaterial(opts ...material.MaterialBuilderOption) (material.Material, error) {
	all := append([]material.MaterialBuilderOption{
		material.WithAlbedo(r.defaultTextures[0]),
		material.WithSpecular(r.defaultTextures[1]),
		material.WithNormal(r.defaultTextures[2]),
		material.WithSampler(r.materialSampler),
	}, opts...)
	return material.New(r.dev, r.pipelines[PassForward].LayoutFor(MaterialGroup), r.slots, all...)
}

func defaultCamera(width, height uint32) Camera {
	c := Camera{Position: [3]float32{0, 2, 6}}
	common.LookAt(c.View[:], 0, 2, 6, 0, 0, 0, 0, 1, 0)
	common.Perspective(c.Projection[:], math32.Pi/4, float32(width)/float32(max(height, 1)), 0.1, 5000)
	return c
}

func (r *renderer) BeginFrame(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frameOpen {
		return fmt.Errorf("%w: frame already open", device.ErrInvalidState)
	}
	if r.needsRebuild {
		if r.pendingWidth == 0 || r.pendingHeight == 0 {
			r.stats.SkippedFrames++
			return fmt.Errorf("%w: surface has no area", device.ErrSurfaceOutOfDate)
		}
		if err := r.rebuild(); err != nil {
			return err
		}
	}
	if r.pending != nil {
		r.settings = *r.pending
		r.pending = nil
	}

	index, err := r.sc.AcquireNext()
	r.stats.AcquireWait = r.sc.LastAcquireWait()
	if err != nil {
		if errors.Is(err, device.ErrSurfaceOutOfDate) {
			r.needsRebuild = true
			r.stats.SkippedFrames++
		}
		return err
	}
	slot := r.sc.CurrentSlot()
	if err := slot.BeginRecording(); err != nil {
		// Recreating the surface returns the acquired image.
		r.needsRebuild = true
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.slot, r.rec, r.imageIndex = slot, slot.Recorder(), index
	r.ctx = ctx
	r.frameOpen, r.frameFailed = true, false
	r.stats.Slot, r.stats.ImageIndex = slot.Index(), index
	r.graph.Reset()

	uniforms := r.frameUniforms()
	if err := r.dev.WriteBuffer(r.frameBuffers[slot.Index()], 0, uniforms.Bytes()); err != nil {
		// Close the frame here: the image is presented empty and the slot cycles.
		r.frameFailed = true
		return errors.Join(fmt.Errorf("frame uniforms: %w", err), r.endFrame())
	}
	r.visible = cull(r.items, uniforms.ViewProj)
	r.casters = nil
	if r.settings.Shadow {
		r.casters = cull(r.items, uniforms.LightViewProj)
	}
	r.stats.Visible, r.stats.ShadowCasters = len(r.visible), len(r.casters)
	return nil
}

// frameUniforms gathers the camera, light and settings of the frame being recorded.
func (r *renderer) frameUniforms() FrameUniforms {
	u := FrameUniforms{
		View:          r.camera.View,
		Proj:          r.camera.Projection,
		LightViewProj: r.light.viewProj(),
	}
	common.Mul4(u.ViewProj[:], u.Proj[:], u.View[:])
	common.Invert4(u.InvProj[:], u.Proj[:])
	common.Invert4(u.InvViewProj[:], u.ViewProj[:])
	u.CameraPosition = [4]float32{r.camera.Position[0], r.camera.Position[1], r.camera.Position[2], 1}
	dir := common.Normalize3(r.light.Direction)
	u.LightDirection = [4]float32{dir[0], dir[1], dir[2], 0}
	u.LightColor = [4]float32{r.light.Color[0], r.light.Color[1], r.light.Color[2], r.light.Intensity}
	w, h := float32(r.width), float32(r.height)
	u.Screen = [4]float32{w, h, 1 / w, 1 / h}
	s := r.settings
	u.Params = [4]float32{s.Exposure, s.BloomStrength, s.SSAORadius, s.SSAOBias}
	for i, on := range []bool{s.SSAO, s.Bloom, s.Shadow, s.SkyBox} {
		if on {
			u.Toggles[i] = 1
		}
	}
	return u
}

func (r *renderer) DepthPrePass() error    { return r.runPass(PassDepth) }
func (r *renderer) SSAOPass() error        { return r.runPass(PassSSAO) }
func (r *renderer) ShadowPass() error      { return r.runPass(PassShadow) }
func (r *renderer) ForwardPass() error     { return r.runPass(PassForward) }
func (r *renderer) SkyBoxPass() error      { return r.runPass(PassSkyBox) }
func (r *renderer) BloomPass() error       { return r.runPass(PassBloom) }
func (r *renderer) ToneMappingPass() error { return r.runPass(PassToneMapping) }
func (r *renderer) FinalPass() error       { return r.runPass(PassFinal) }

// runPass records one graph pass into the open frame. A failure marks the frame so EndFrame
// submits it empty.
func (r *renderer) runPass(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frameOpen {
		return fmt.Errorf("%w: pass %q outside a frame", device.ErrInvalidState, name)
	}
	if r.frameFailed {
		return fmt.Errorf("%w: pass %q after a failed pass", device.ErrInvalidState, name)
	}
	if err := r.graph.Execute(r.ctx, name); err != nil {
		r.frameFailed = true
		return err
	}
	return nil
}

func (r *renderer) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frameOpen {
		return fmt.Errorf("%w: no frame open", device.ErrInvalidState)
	}
	return r.endFrame()
}

// endFrame submits the open frame, empty when it failed, and presents it.
func (r *renderer) endFrame() error {
	r.frameOpen = false
	failed := r.frameFailed
	if failed {
		common.Logger().Warn("submitting failed frame empty", "slot", r.slot.Index(), "executed", r.graph.Executed())
		if err := r.slot.Discard(); err != nil {
			return err
		}
	}
	stats := r.rec.Stats()
	r.stats.RenderTargets, r.stats.Draws = stats.RenderTargets, stats.Draws
	r.stats.Executed, r.stats.Skipped = r.graph.Executed(), r.graph.Skipped()

	submitErr := r.slot.Submit()
	if failed || submitErr != nil {
		r.stats.SkippedFrames++
	}
	if submitErr != nil && r.slot.State() != frame_slot.StateSubmitted {
		// Nothing signaled the render-complete semaphore. Recreating the surface returns the
		// acquired image.
		r.needsRebuild = true
		return submitErr
	}
	if err := r.sc.Present(); err != nil {
		if errors.Is(err, device.ErrSurfaceOutOfDate) {
			r.needsRebuild = true
			if !failed && submitErr == nil {
				r.stats.SkippedFrames++
			}
		}
		return errors.Join(submitErr, err)
	}
	if submitErr != nil {
		return submitErr
	}
	if !failed {
		r.stats.Frames++
	}
	return nil
}

func (r *renderer) RenderFrame(ctx context.Context) error {
	if err := r.BeginFrame(ctx); err != nil {
		return err
	}
	passes := []func() error{
		r.DepthPrePass, r.SSAOPass, r.ShadowPass, r.ForwardPass,
		r.SkyBoxPass, r.BloomPass, r.ToneMappingPass, r.FinalPass,
	}
	for _, pass := range passes {
		if err := pass(); err != nil {
			return errors.Join(err, r.EndFrame())
		}
	}
	return r.EndFrame()
}

func (r *renderer) Resize(width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingWidth, r.pendingHeight = width, height
	r.needsRebuild = true
}

func (r *renderer) Rebuild() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frameOpen {
		return fmt.Errorf("%w: rebuild inside a frame", device.ErrInvalidState)
	}
	return r.rebuild()
}

// rebuild recreates the swapchain, then the images and targets that follow its size.
// Pipelines survive: their targets keep the same formats and sample counts.
func (r *renderer) rebuild() error {
	if err := r.sc.Recreate(r.pendingWidth, r.pendingHeight); err != nil {
		return err
	}
	ext := r.sc.Extent()
	if ext.Width != r.width || ext.Height != r.height {
		images, err := createSizedImages(r.dev, ext.Width, ext.Height, r.settings.MSAA)
		if err != nil {
			return err
		}
		if err := r.resizeSized(images); err != nil {
			return err
		}
		r.width, r.height = ext.Width, ext.Height
		if !r.userCamera {
			r.camera = defaultCamera(r.width, r.height)
		}
	}
	if err := r.targets[PassFinal].Rebuild(finalDescriptor(r.sc.Images())); err != nil {
		return fmt.Errorf("%w: %w", device.ErrResourceCreation, err)
	}
	r.needsRebuild = false
	r.stats.Rebuilds++
	common.Logger().Info("surface rebuilt", "width", r.width, "height", r.height, "rebuilds", r.stats.Rebuilds)
	return nil
}

func (r *renderer) SetDrawList(items []DrawItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
}

func (r *renderer) SetCamera(c Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera = c
	r.userCamera = true
}

func (r *renderer) SetLight(l Light) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.light = l
}

func (r *renderer) Settings() config.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		return *r.pending
	}
	return r.settings
}

func (r *renderer) SetSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if structural(s) != structural(r.settings) {
		return fmt.Errorf("%w: only pass toggles and shading parameters change after construction", device.ErrInvalidState)
	}
	r.pending = &s
	return nil
}

// structural zeroes the settings that may change between frames.
func structural(s config.Settings) config.Settings {
	s.SSAO, s.Bloom, s.Shadow, s.SkyBox = false, false, false, false
	s.Exposure, s.BloomStrength, s.SSAORadius, s.SSAOBias = 0, 0, 0, 0
	return s
}

func (r *renderer) NewMaterial(opts ...material.MaterialBuilderOption) (material.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newMaterial(opts...)
}

func (r *renderer) MaterialLayout() resource_binder.Layout {
	return r.pipelines[PassForward].LayoutFor(MaterialGroup)
}

func (r *renderer) Graph() render_graph.RenderGraph {
	return r.graph
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.dev.WaitIdle(time.Duration(r.settings.FenceTimeout)); err != nil {
		common.Logger().Error("renderer release: device did not go idle", "error", err)
	}
	if r.defaultMaterial != nil {
		r.defaultMaterial.Release()
		r.defaultMaterial = nil
	}
	for i, tex := range r.defaultTextures {
		if tex != nil {
			tex.Release()
			r.defaultTextures[i] = nil
		}
	}
	for name, b := range r.binders {
		b.Release()
		delete(r.binders, name)
	}
	for name, p := range r.pipelines {
		p.Release()
		delete(r.pipelines, name)
	}
	for name, rt := range r.targets {
		rt.Release()
		delete(r.targets, name)
	}
	if r.bloom != nil {
		r.bloom.Release()
		r.bloom = nil
	}

	// Images registered with the graph are released by it. Releasing an image twice is a no-op,
	// which covers a graph that was only partly built.
	r.graph.Release()
	r.images.release()
	if r.shadowMap != nil {
		r.shadowMap.Release()
	}
	r.images, r.shadowMap = sizedImages{}, nil
	if r.sky != nil {
		r.sky.Release()
		r.sky = nil
	}

	for _, buf := range r.frameBuffers {
		r.dev.DestroyBuffer(buf)
	}
	r.frameBuffers = nil
	if r.kernelBuffer.Valid() {
		r.dev.DestroyBuffer(r.kernelBuffer)
		r.kernelBuffer = device.BufferHandle{}
	}
	for _, s := range []*device.SamplerHandle{&r.linearSampler, &r.materialSampler, &r.shadowSampler} {
		if s.Valid() {
			r.dev.DestroySampler(*s)
			*s = device.SamplerHandle{}
		}
	}
	if r.sc != nil {
		r.sc.Release()
		r.sc = nil
	}
}
