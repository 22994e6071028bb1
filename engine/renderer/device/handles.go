package device

import "fmt"

// Handle is a stable, generation-checked reference into an Arena. The zero Handle is invalid.
// The type parameter is a phantom tag that keeps handles of different resource kinds apart.
type Handle[K any] struct {
	index      uint32
	generation uint32
}

// Valid reports whether the handle was ever issued by an Arena.
//
// Returns:
//   - bool: false for the zero Handle
func (h Handle[K]) Valid() bool {
	return h.generation != 0
}

// Index returns the slot index of the handle inside its arena.
//
// Returns:
//   - uint32: the arena slot index
func (h Handle[K]) Index() uint32 {
	return h.index
}

func (h Handle[K]) String() string {
	if !h.Valid() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d#%d)", h.index, h.generation)
}

// Phantom tags naming each device object kind. They are exported so other packages can
// keep their own arenas of device handles.
type (
	ImageTag       struct{}
	BufferTag      struct{}
	SamplerTag     struct{}
	RenderPassTag  struct{}
	FramebufferTag struct{}
	PipelineTag    struct{}
	ResourceSetTag struct{}
	FenceTag       struct{}
	SemaphoreTag   struct{}
)

// Typed handles for every device object kind.
type (
	ImageHandle       = Handle[ImageTag]
	BufferHandle      = Handle[BufferTag]
	SamplerHandle     = Handle[SamplerTag]
	RenderPassHandle  = Handle[RenderPassTag]
	FramebufferHandle = Handle[FramebufferTag]
	PipelineHandle    = Handle[PipelineTag]
	ResourceSetHandle = Handle[ResourceSetTag]
	FenceHandle       = Handle[FenceTag]
	SemaphoreHandle   = Handle[SemaphoreTag]
)

type arenaEntry[V any] struct {
	value      V
	generation uint32
	live       bool
}

// Arena owns values by index and hands out generation-checked handles to them.
// Removing a value bumps the slot generation so stale handles stop resolving.
// Arena is not safe for concurrent use; owners guard it with their own mutex.
type Arena[K any, V any] struct {
	entries []arenaEntry[V]
	free    []uint32
	live    int
}

// Insert stores v and returns its handle.
//
// Parameters:
//   - v: the value to own
//
// Returns:
//   - Handle[K]: the handle referencing v
func (a *Arena[K, V]) Insert(v V) Handle[K] {
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		e := &a.entries[idx]
		e.value = v
		e.live = true
		return Handle[K]{index: idx, generation: e.generation}
	}
	a.entries = append(a.entries, arenaEntry[V]{value: v, generation: 1, live: true})
	return Handle[K]{index: uint32(len(a.entries) - 1), generation: 1}
}

// Get resolves a handle.
//
// Parameters:
//   - h: the handle to resolve
//
// Returns:
//   - V: the stored value, or the zero value when h is stale or invalid
//   - bool: true if h resolved to a live value
func (a *Arena[K, V]) Get(h Handle[K]) (V, bool) {
	var zero V
	if !h.Valid() || int(h.index) >= len(a.entries) {
		return zero, false
	}
	e := a.entries[h.index]
	if !e.live || e.generation != h.generation {
		return zero, false
	}
	return e.value, true
}

// Set replaces the value behind a live handle.
//
// Parameters:
//   - h: the handle to update
//   - v: the new value
//
// Returns:
//   - bool: false if h is stale or invalid
func (a *Arena[K, V]) Set(h Handle[K], v V) bool {
	if _, ok := a.Get(h); !ok {
		return false
	}
	a.entries[h.index].value = v
	return true
}

// Remove deletes the value behind h and invalidates every copy of the handle.
//
// Parameters:
//   - h: the handle to remove
//
// Returns:
//   - V: the removed value
//   - bool: false if h was already stale or invalid
func (a *Arena[K, V]) Remove(h Handle[K]) (V, bool) {
	v, ok := a.Get(h)
	if !ok {
		return v, false
	}
	e := &a.entries[h.index]
	var zero V
	e.value = zero
	e.live = false
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	a.free = append(a.free, h.index)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[K, V]) Len() int {
	return a.live
}

// Each calls fn for every live value in index order.
//
// Parameters:
//   - fn: the visitor, receiving each handle and value
func (a *Arena[K, V]) Each(fn func(Handle[K], V)) {
	for i, e := range a.entries {
		if e.live {
			fn(Handle[K]{index: uint32(i), generation: e.generation}, e.value)
		}
	}
}
