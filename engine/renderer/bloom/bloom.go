package bloom

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/command_recorder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/pipeline"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/resource_binder"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/shader"
)

// Mode selects the filter the bloom shader runs for one step.
type Mode uint32

const (
	// ModePrefilter downsamples the scene and keeps only the energy above the threshold.
	ModePrefilter Mode = iota
	// ModeDownsample is the 13-tap downsample between two mips.
	ModeDownsample
	// ModeUpsample is the tent upsample that is blended additively into the larger mip.
	ModeUpsample
)

// Binding indices of the bloom source group.
const (
	BindingSource  uint32 = 0
	BindingSampler uint32 = 1
)

// PushSize is the size of the BloomPush uniform: source texel size, mode, threshold and radius.
const PushSize = 24

// SceneInput is the Source of the first downsample step, which reads the scene instead of a mip.
const SceneInput = -1

// Step is one full-screen draw of the mip chain.
type Step struct {
	// Visit is the loop index. Downsample visit i writes mip i; upsample visit i writes mip i-2.
	Visit int
	// Source is the mip read by the step, or SceneInput.
	Source int
	// Target is the mip whose framebuffer the step renders into.
	Target int
	Mode   Mode
}

// MipSizes returns the extent of every mip. Mip 0 matches the base and each further mip halves
// the previous one, clamped to one pixel.
//
// Parameters:
//   - width: the base width
//   - height: the base height
//   - levels: the number of mips
//
// Returns:
//   - []device.Extent: one extent per mip
func MipSizes(width, height uint32, levels int) []device.Extent {
	out := make([]device.Extent, 0, levels)
	w, h := max(width, 1), max(height, 1)
	for range levels {
		out = append(out, device.Extent{Width: w, Height: h})
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return out
}

// DownsampleSteps lists the downsample loop: visit i reads mip i-1, the scene for i = 0, and writes mip i.
//
// Parameters:
//   - levels: the number of mips
//
// Returns:
//   - []Step: the steps in recording order
func DownsampleSteps(levels int) []Step {
	steps := make([]Step, 0, levels)
	for i := range levels {
		s := Step{Visit: i, Source: i - 1, Target: i, Mode: ModeDownsample}
		if i == 0 {
			s.Source, s.Mode = SceneInput, ModePrefilter
		}
		steps = append(steps, s)
	}
	return steps
}

// UpsampleSteps lists the upsample loop: visit i runs from levels down to 2, reads mip i-1 and
// blends into the framebuffer of mip i-2.
//
// Parameters:
//   - levels: the number of mips
//
// Returns:
//   - []Step: the steps in recording order
func UpsampleSteps(levels int) []Step {
	var steps []Step
	for i := levels; i >= 2; i-- {
		steps = append(steps, Step{Visit: i, Source: i - 1, Target: i - 2, Mode: ModeUpsample})
	}
	return steps
}

// bloom is the implementation of the Bloom interface.
type bloom struct {
	mu *sync.Mutex

	dev    device.Device
	shader shader.Shader
	slots  int

	levels    int
	format    device.Format
	threshold float32
	radius    float32

	input   attachment.Attachment
	mips    []attachment.Attachment
	sampler device.SamplerHandle

	down, up       render_target.RenderTarget
	downFBs, upFBs []device.FramebufferHandle
	downPipeline   pipeline.Pipeline
	upPipeline     pipeline.Pipeline
	downSteps      []Step
	upSteps        []Step
	downBinders    []resource_binder.ResourceBinder
	upBinders      []resource_binder.ResourceBinder
}

// Bloom is the downsample and upsample chain that turns the bright parts of the scene into a glow.
// Every mip owns a fixed-size framebuffer and every step owns a resource binder built for all frame slots,
// so recording a frame creates nothing.
type Bloom interface {
	// Record records the whole chain into a recorder.
	//
	// Parameters:
	//   - rec: a recorder in the recording state, outside any render target
	//   - slot: the frame slot being recorded, selects the resource sets
	//
	// Returns:
	//   - error: a *device.LayoutMismatchError if the input was not left readable, or a recorder error
	Record(rec command_recorder.CommandRecorder, slot int) error

	// Output returns mip 0, which holds the composited glow after Record.
	Output() attachment.Attachment

	// Mips returns every mip, largest first.
	Mips() []attachment.Attachment

	// DownsampleSteps returns the downsample loop the chain records.
	DownsampleSteps() []Step

	// UpsampleSteps returns the upsample loop the chain records.
	UpsampleSteps() []Step

	// Framebuffer returns the framebuffer of one mip.
	//
	// Parameters:
	//   - mip: the mip index
	//   - upsample: the loading framebuffer of the upsample loop instead of the clearing one
	//
	// Returns:
	//   - device.FramebufferHandle: the framebuffer, invalid for out-of-range mips
	Framebuffer(mip int, upsample bool) device.FramebufferHandle

	// Resize recreates the mips and their framebuffers for a new scene input.
	//
	// Parameters:
	//   - input: the scene image the chain reads, already resized
	//
	// Returns:
	//   - error: wraps device.ErrResourceCreation on failure
	Resize(input attachment.Attachment) error

	// Release destroys every resource the chain owns. The input is not touched.
	Release()
}

var _ Bloom = &bloom{}

// New builds a bloom chain reading from the scene input.
//
// Parameters:
//   - dev: the device context
//   - sh: the bloom shader, declaring the source texture and sampler at group 0 and a BloomPush uniform
//   - input: the resolved scene image
//   - slots: the number of frame slots
//   - opts: variadic list of BloomBuilderOption functions
//
// Returns:
//   - Bloom: the chain
//   - error: wraps device.ErrResourceCreation, or a *device.MissingBindingError if the shader lacks the source group
func New(dev device.Device, sh shader.Shader, input attachment.Attachment, slots int, opts ...BloomBuilderOption) (Bloom, error) {
	b := &bloom{
		mu:        &sync.Mutex{},
		dev:       dev,
		shader:    sh,
		slots:     max(slots, 1),
		levels:    5,
		format:    device.FormatRGBA16Float,
		threshold: 1,
		radius:    0.005,
	}
	for _, opt := range opts {
		opt(b)
	}
	if sh == nil || input == nil {
		return nil, fmt.Errorf("%w: bloom needs a shader and an input", device.ErrResourceCreation)
	}
	b.downSteps = DownsampleSteps(b.levels)
	b.upSteps = UpsampleSteps(b.levels)
	if err := b.init(input); err != nil {
		b.Release()
		return nil, err
	}
	common.Logger().Debug("bloom created", "levels", b.levels, "width", input.Width(), "height", input.Height())
	return b, nil
}

func (b *bloom) init(input attachment.Attachment) error {
	s, err := b.dev.CreateSampler(device.SamplerDesc{
		Label:   "Bloom Sampler",
		Filter:  device.FilterLinear,
		Address: device.AddressClampToEdge,
	})
	if err != nil {
		return fmt.Errorf("%w: bloom sampler: %w", device.ErrResourceCreation, err)
	}
	b.sampler = s

	if err := b.createMips(input); err != nil {
		return err
	}

	b.down, err = render_target.Build(b.dev, b.descriptor(true), b.slots, render_target.WithManualFramebuffers())
	if err != nil {
		return err
	}
	b.up, err = render_target.Build(b.dev, b.descriptor(false), b.slots, render_target.WithManualFramebuffers())
	if err != nil {
		return err
	}

	b.downPipeline, err = pipeline.New(b.dev, "bloom-downsample", b.down,
		pipeline.WithShader(b.shader),
		pipeline.WithoutVertexInput(),
		pipeline.WithCullMode(device.CullNone),
	)
	if err != nil {
		return err
	}
	b.upPipeline, err = pipeline.New(b.dev, "bloom-upsample", b.up,
		pipeline.WithShader(b.shader),
		pipeline.WithoutVertexInput(),
		pipeline.WithCullMode(device.CullNone),
		pipeline.WithBlendMode(device.BlendAdditive),
	)
	if err != nil {
		return err
	}
	return b.createViews()
}

// descriptor shapes both targets after mip 0. The downsample target clears; the upsample target
// loads the mip it blends into, which the downsample loop left readable.
func (b *bloom) descriptor(clear bool) render_target.Descriptor {
	e := render_target.Entry{Attachment: b.mips[0], Role: device.RoleColor, Sampled: true}
	desc := render_target.NewDescriptor(clear, e)
	desc.Label = "bloom-downsample"
	if !clear {
		desc.Entries[0].EntryLayout = device.LayoutShaderReadOnly
		desc.Label = "bloom-upsample"
	}
	desc.ClearColor = [4]float32{0, 0, 0, 0}
	return desc
}

func (b *bloom) createMips(input attachment.Attachment) error {
	b.input = input
	for i, ext := range MipSizes(input.Width(), input.Height(), b.levels) {
		m, err := attachment.New(b.dev, attachment.KindColor, ext.Width, ext.Height,
			attachment.WithLabel(fmt.Sprintf("Bloom Mip %d", i)),
			attachment.WithFormat(b.format),
		)
		if err != nil {
			return fmt.Errorf("bloom mip %d: %w", i, err)
		}
		b.mips = append(b.mips, m)
	}
	return nil
}

// createViews builds the per-mip framebuffers and the per-step binders.
func (b *bloom) createViews() error {
	for i, m := range b.mips {
		fb, err := b.down.NewFramebuffer(fmt.Sprintf("Bloom Downsample %d", i), m)
		if err != nil {
			return err
		}
		b.downFBs = append(b.downFBs, fb)
		fb, err = b.up.NewFramebuffer(fmt.Sprintf("Bloom Upsample %d", i), m)
		if err != nil {
			return err
		}
		b.upFBs = append(b.upFBs, fb)
	}

	var err error
	if b.downBinders, err = b.createBinders(b.downPipeline, b.downSteps); err != nil {
		return err
	}
	b.upBinders, err = b.createBinders(b.upPipeline, b.upSteps)
	return err
}

func (b *bloom) createBinders(p pipeline.Pipeline, steps []Step) ([]resource_binder.ResourceBinder, error) {
	binders := make([]resource_binder.ResourceBinder, 0, len(steps))
	for _, s := range steps {
		rb, err := resource_binder.New(b.dev, fmt.Sprintf("%s:%d", p.Label(), s.Visit), p.LayoutFor(0), b.slots)
		if err != nil {
			releaseBinders(binders)
			return nil, err
		}
		binders = append(binders, rb)
		if err := rb.BindImage(b.source(s).Handle(), b.sampler, BindingSource); err != nil {
			releaseBinders(binders)
			return nil, err
		}
		if err := rb.Validate(); err != nil {
			releaseBinders(binders)
			return nil, fmt.Errorf("bloom: %w", err)
		}
	}
	return binders, nil
}

func releaseBinders(binders []resource_binder.ResourceBinder) {
	for _, rb := range binders {
		rb.Release()
	}
}

func (b *bloom) source(s Step) attachment.Attachment {
	if s.Source == SceneInput {
		return b.input
	}
	return b.mips[s.Source]
}

// push encodes BloomPush: source texel size, mode, threshold and upsample radius.
func (b *bloom) push(s Step) []byte {
	src := b.source(s)
	buf := make([]byte, PushSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(1/float32(src.Width())))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(1/float32(src.Height())))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.Mode))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(b.threshold))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(b.radius))
	return buf
}

func (b *bloom) Record(rec command_recorder.CommandRecorder, slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if have := b.input.Layout(); have != device.LayoutShaderReadOnly {
		return &device.LayoutMismatchError{Attachment: b.input.Label(), Pass: "bloom", Have: have, Want: device.LayoutShaderReadOnly}
	}
	for i, s := range b.downSteps {
		if err := b.draw(rec, b.down, b.downFBs[s.Target], b.downPipeline, b.downBinders[i], s); err != nil {
			return fmt.Errorf("bloom downsample %d: %w", s.Visit, err)
		}
	}
	for i, s := range b.upSteps {
		if err := b.draw(rec, b.up, b.upFBs[s.Target], b.upPipeline, b.upBinders[i], s); err != nil {
			return fmt.Errorf("bloom upsample %d: %w", s.Visit, err)
		}
	}
	return nil
}

func (b *bloom) draw(rec command_recorder.CommandRecorder, rt render_target.RenderTarget, fb device.FramebufferHandle,
	p pipeline.Pipeline, rb resource_binder.ResourceBinder, s Step) error {
	dst := b.mips[s.Target]
	if err := rec.BeginRenderTarget(rt, fb, dst.Width(), dst.Height()); err != nil {
		return err
	}
	if err := rec.BindPipeline(p); err != nil {
		return err
	}
	if err := rec.BindResourceSet(rb); err != nil {
		return err
	}
	if err := rec.PushConstants(b.push(s)); err != nil {
		return err
	}
	if err := rec.DrawFullScreenTriangle(); err != nil {
		return err
	}
	return rec.EndRenderTarget()
}

func (b *bloom) Output() attachment.Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mips[0]
}

func (b *bloom) Mips() []attachment.Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]attachment.Attachment(nil), b.mips...)
}

func (b *bloom) DownsampleSteps() []Step {
	return append([]Step(nil), b.downSteps...)
}

func (b *bloom) UpsampleSteps() []Step {
	return append([]Step(nil), b.upSteps...)
}

func (b *bloom) Framebuffer(mip int, upsample bool) device.FramebufferHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	fbs := b.downFBs
	if upsample {
		fbs = b.upFBs
	}
	if mip < 0 || mip >= len(fbs) {
		return device.FramebufferHandle{}
	}
	return fbs[mip]
}

func (b *bloom) Resize(input attachment.Attachment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseViews()
	if err := b.createMips(input); err != nil {
		return err
	}
	// Rebuild drops the manual framebuffers; formats and samples are unchanged so the pipelines stay compatible.
	if err := b.down.Rebuild(b.descriptor(true)); err != nil {
		return err
	}
	if err := b.up.Rebuild(b.descriptor(false)); err != nil {
		return err
	}
	if err := b.createViews(); err != nil {
		return err
	}
	common.Logger().Debug("bloom resized", "width", input.Width(), "height", input.Height())
	return nil
}

// releaseViews destroys what depends on the input size: binders, mips and the framebuffer lists.
func (b *bloom) releaseViews() {
	releaseBinders(b.downBinders)
	releaseBinders(b.upBinders)
	b.downBinders, b.upBinders = nil, nil
	b.downFBs, b.upFBs = nil, nil
	for _, m := range b.mips {
		m.Release()
	}
	b.mips = nil
}

func (b *bloom) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseViews()
	for _, p := range []pipeline.Pipeline{b.downPipeline, b.upPipeline} {
		if p != nil {
			p.Release()
		}
	}
	b.downPipeline, b.upPipeline = nil, nil
	for _, rt := range []render_target.RenderTarget{b.down, b.up} {
		if rt != nil {
			rt.Release()
		}
	}
	b.down, b.up = nil, nil
	if b.sampler.Valid() {
		b.dev.DestroySampler(b.sampler)
		b.sampler = device.SamplerHandle{}
	}
}
