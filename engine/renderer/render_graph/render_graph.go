package render_graph

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/attachment"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/device"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer/render_target"
)

type resourceTag struct{}

// ResourceHandle is a stable reference to a named image owned by a graph.
// It survives ReplaceResource, so binders can be rebuilt from it after a resize.
type ResourceHandle = device.Handle[resourceTag]

type resource struct {
	name  string
	image attachment.Attachment
	// external images are produced outside the graph and are never released by it.
	external bool
}

// Pass is one node of the graph. Pass order is the order passes are added; the graph checks that
// order instead of deriving one.
type Pass struct {
	Name string
	// Reads names the resources the pass samples as textures.
	Reads []string
	// Writes names the resources the pass renders into.
	Writes []string
	// Targets lists the render targets the pass begins, in recording order.
	Targets []render_target.RenderTarget
	// Enabled reports whether the pass runs this frame. A nil Enabled always runs.
	Enabled func() bool
	// Record records the pass.
	Record func(ctx context.Context) error
}

func (p *Pass) enabled() bool {
	return p.Enabled == nil || p.Enabled()
}

// renderGraph is the implementation of the RenderGraph interface.
type renderGraph struct {
	mu *sync.Mutex

	resources device.Arena[resourceTag, *resource]
	byName    map[string]ResourceHandle

	passes   []*Pass
	index    map[string]int
	compiled bool

	// frame state, cleared by Reset
	last     int
	executed []string
	skipped  []string
}

// RenderGraph owns the images passed between passes, the declared pass order and the read and write
// sets of every pass. Compile checks the order once; Execute records passes and enforces the order at runtime.
type RenderGraph interface {
	// AddResource registers a named image.
	//
	// Parameters:
	//   - name: the unique resource name
	//   - image: the image
	//   - external: true for images the graph must not release, such as uploaded textures
	//
	// Returns:
	//   - ResourceHandle: the stable handle
	//   - error: ErrInvalidDescriptor for duplicate names or nil images
	AddResource(name string, image attachment.Attachment, external bool) (ResourceHandle, error)

	// ReplaceResource swaps the image behind a resource, releasing the old one if the graph owns it.
	//
	// Parameters:
	//   - name: the resource name
	//   - image: the new image
	//
	// Returns:
	//   - error: ErrInvalidHandle for unknown names
	ReplaceResource(name string, image attachment.Attachment) error

	// Resource looks up an image by name.
	//
	// Parameters:
	//   - name: the resource name
	//
	// Returns:
	//   - attachment.Attachment: the image
	//   - bool: false for unknown names
	Resource(name string) (attachment.Attachment, bool)

	// Handle returns the handle of a named resource, invalid for unknown names.
	Handle(name string) ResourceHandle

	// Get resolves a resource handle.
	//
	// Parameters:
	//   - h: the handle
	//
	// Returns:
	//   - attachment.Attachment: the image
	//   - bool: false for stale or unknown handles
	Get(h ResourceHandle) (attachment.Attachment, bool)

	// AddPass appends a pass. Passes run in the order they are added.
	//
	// Parameters:
	//   - p: the pass
	//
	// Returns:
	//   - error: ErrInvalidDescriptor for duplicate or empty names, or a pass without Record
	AddPass(p Pass) error

	// Compile checks the graph: every resource named by a pass exists, the dependency graph has no
	// cycle, every read comes after a write of the same resource, and every loading target finds its
	// images in the layout it expects. The layout check runs with every optional pass enabled and
	// again with each optional pass skipped.
	//
	// Returns:
	//   - error: ErrInvalidDescriptor, or a *device.LayoutMismatchError
	Compile() error

	// Reset starts a new frame. Call it once per BeginFrame.
	Reset()

	// Execute records one pass. Disabled passes are skipped without error.
	//
	// Parameters:
	//   - ctx: cancels the frame before the pass records
	//   - name: the pass name
	//
	// Returns:
	//   - error: ErrInvalidState before Compile or for passes run out of order, or the pass's own error
	Execute(ctx context.Context, name string) error

	// Order returns the pass names in execution order.
	Order() []string

	// Executed returns the passes recorded since the last Reset.
	Executed() []string

	// Skipped returns the disabled passes met since the last Reset.
	Skipped() []string

	// Release releases every image the graph owns.
	Release()
}

var _ RenderGraph = &renderGraph{}

// New creates an empty graph.
//
// Returns:
//   - RenderGraph: the graph
func New() RenderGraph {
	return &renderGraph{
		mu:     &sync.Mutex{},
		byName: make(map[string]ResourceHandle),
		index:  make(map[string]int),
		last:   -1,
	}
}

func (g *renderGraph) AddResource(name string, image attachment.Attachment, external bool) (ResourceHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if name == "" || image == nil {
		return ResourceHandle{}, fmt.Errorf("%w: resource %q needs a name and an image", device.ErrInvalidDescriptor, name)
	}
	if _, ok := g.byName[name]; ok {
		return ResourceHandle{}, fmt.Errorf("%w: resource %q already exists", device.ErrInvalidDescriptor, name)
	}
	h := g.resources.Insert(&resource{name: name, image: image, external: external})
	g.byName[name] = h
	g.compiled = false
	return h, nil
}

func (g *renderGraph) ReplaceResource(name string, image attachment.Attachment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources.Get(g.byName[name])
	if !ok {
		return fmt.Errorf("%w: unknown resource %q", device.ErrInvalidHandle, name)
	}
	if image == nil {
		return fmt.Errorf("%w: resource %q replaced with nil", device.ErrInvalidDescriptor, name)
	}
	if !r.external && r.image != image {
		r.image.Release()
	}
	r.image = image
	return nil
}

func (g *renderGraph) Resource(name string) (attachment.Attachment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources.Get(g.byName[name])
	if !ok {
		return nil, false
	}
	return r.image, true
}

func (g *renderGraph) Handle(name string) ResourceHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byName[name]
}

func (g *renderGraph) Get(h ResourceHandle) (attachment.Attachment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources.Get(h)
	if !ok {
		return nil, false
	}
	return r.image, true
}

func (g *renderGraph) AddPass(p Pass) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.Name == "" || p.Record == nil {
		return fmt.Errorf("%w: pass %q needs a name and a Record function", device.ErrInvalidDescriptor, p.Name)
	}
	if _, ok := g.index[p.Name]; ok {
		return fmt.Errorf("%w: pass %q already exists", device.ErrInvalidDescriptor, p.Name)
	}
	g.index[p.Name] = len(g.passes)
	g.passes = append(g.passes, &p)
	g.compiled = false
	return nil
}

func (g *renderGraph) Compile() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.compiled = false

	for _, p := range g.passes {
		for _, name := range slices.Concat(p.Reads, p.Writes) {
			if _, ok := g.byName[name]; !ok {
				return fmt.Errorf("%w: pass %q names unknown resource %q", device.ErrInvalidDescriptor, p.Name, name)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return err
	}
	if err := g.checkReadsFollowWrites(); err != nil {
		return err
	}
	if err := g.checkLayouts(-1); err != nil {
		return err
	}
	for i, p := range g.passes {
		if p.Enabled == nil {
			continue
		}
		if err := g.checkLayouts(i); err != nil {
			return fmt.Errorf("with pass %q disabled: %w", p.Name, err)
		}
	}
	g.compiled = true
	common.Logger().Debug("render graph compiled", "passes", len(g.passes), "resources", len(g.byName))
	return nil
}

// checkAcyclic runs Kahn's algorithm over writer -> reader edges.
func (g *renderGraph) checkAcyclic() error {
	writers := make(map[string][]int)
	for i, p := range g.passes {
		for _, w := range p.Writes {
			writers[w] = append(writers[w], i)
		}
	}
	edges := make([][]int, len(g.passes))
	inDegree := make([]int, len(g.passes))
	for k, p := range g.passes {
		seen := make(map[int]bool)
		for _, r := range p.Reads {
			for _, j := range writers[r] {
				if j == k || seen[j] {
					continue
				}
				seen[j] = true
				edges[j] = append(edges[j], k)
				inDegree[k]++
			}
		}
	}

	var queue []int
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, m := range edges[n] {
			if inDegree[m]--; inDegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if visited == len(g.passes) {
		return nil
	}
	var cycle []string
	for i, d := range inDegree {
		if d > 0 {
			cycle = append(cycle, g.passes[i].Name)
		}
	}
	return fmt.Errorf("%w: passes %s depend on each other", device.ErrInvalidDescriptor, strings.Join(cycle, ", "))
}

// checkReadsFollowWrites rejects a pass that samples a graph-produced resource before any earlier pass writes it.
func (g *renderGraph) checkReadsFollowWrites() error {
	written := make(map[string]bool)
	for _, p := range g.passes {
		for _, r := range p.Reads {
			res, _ := g.resources.Get(g.byName[r])
			if res.external || written[r] {
				continue
			}
			return fmt.Errorf("%w: pass %q reads %q before any earlier pass writes it", device.ErrInvalidDescriptor, p.Name, r)
		}
		for _, w := range p.Writes {
			written[w] = true
		}
	}
	return nil
}

// checkLayouts simulates the layouts every target leaves behind and checks each loading target
// against them. The pass at index skip is left out; -1 keeps every pass.
func (g *renderGraph) checkLayouts(skip int) error {
	layouts := make(map[device.ImageHandle]device.Layout)
	for i, p := range g.passes {
		if i == skip {
			continue
		}
		for _, rt := range p.Targets {
			desc := rt.Descriptor()
			for _, e := range desc.Entries {
				img := entryImage(e)
				if img == nil || desc.Clear || e.Role == device.RoleResolve || e.Role == device.RolePresent {
					continue
				}
				want := render_target.ExpectedEntryLayout(e)
				have, ok := layouts[img.Handle()]
				if !ok {
					return &device.LayoutMismatchError{Attachment: img.Label(), Pass: p.Name, Have: device.LayoutUndefined, Want: want}
				}
				if have != want {
					return &device.LayoutMismatchError{Attachment: img.Label(), Pass: p.Name, Have: have, Want: want}
				}
			}
			for _, e := range desc.Entries {
				if img := entryImage(e); img != nil {
					layouts[img.Handle()] = render_target.FinalLayout(e)
				}
			}
		}
	}
	return nil
}

func entryImage(e render_target.Entry) attachment.Attachment {
	if e.Attachment != nil {
		return e.Attachment
	}
	if len(e.PerImage) > 0 {
		return e.PerImage[0]
	}
	return nil
}

func (g *renderGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = -1
	g.executed = g.executed[:0]
	g.skipped = g.skipped[:0]
}

func (g *renderGraph) Execute(ctx context.Context, name string) error {
	g.mu.Lock()
	if !g.compiled {
		g.mu.Unlock()
		return fmt.Errorf("%w: execute %q before Compile", device.ErrInvalidState, name)
	}
	i, ok := g.index[name]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: unknown pass %q", device.ErrInvalidState, name)
	}
	if i <= g.last {
		g.mu.Unlock()
		return fmt.Errorf("%w: pass %q runs after %q", device.ErrInvalidState, name, g.passes[g.last].Name)
	}
	p := g.passes[i]
	g.last = i
	if !p.enabled() {
		g.skipped = append(g.skipped, name)
		g.mu.Unlock()
		common.Logger().Debug("pass skipped", "pass", name)
		return nil
	}
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pass %q: %w", name, err)
	}
	// Record runs unlocked so a pass may look up resources.
	if err := p.Record(ctx); err != nil {
		return fmt.Errorf("pass %q: %w", name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.executed = append(g.executed, name)
	common.Logger().Debug("pass recorded", "pass", name)
	return nil
}

func (g *renderGraph) Order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.passes))
	for i, p := range g.passes {
		out[i] = p.Name
	}
	return out
}

func (g *renderGraph) Executed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.executed)
}

func (g *renderGraph) Skipped() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.skipped)
}

func (g *renderGraph) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, h := range g.byName {
		if r, ok := g.resources.Remove(h); ok && !r.external {
			r.image.Release()
		}
		delete(g.byName, name)
	}
	g.compiled = false
}
