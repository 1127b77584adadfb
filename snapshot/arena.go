// Copyright © 2025 The DraftPad authors

package snapshot

// Handle is an opaque per-hit identifier for a live object. Handles
// are 1-based indexes into an Arena and become invalid when the
// breakpoint hit resolves and the arena resets. Zero means no handle.
type Handle int

// Arena owns the live object references exposed to the remote
// inspector during one breakpoint suspension. It is a generation
// table, not a cache: Reset drops everything wholesale.
//
// An arena is scoped to a single breakpoint hit serviced end-to-end
// on one goroutine; it is not safe for concurrent use.
type Arena struct {
	objects []any
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Put registers an object and returns its handle.
func (a *Arena) Put(obj any) Handle {
	a.objects = append(a.objects, obj)
	return Handle(len(a.objects))
}

// Get returns the object behind a handle, or false for a handle that
// was never issued or belongs to a previous generation.
func (a *Arena) Get(h Handle) (any, bool) {
	if h < 1 || int(h) > len(a.objects) {
		return nil, false
	}
	return a.objects[h-1], true
}

// Len reports the number of live handles.
func (a *Arena) Len() int {
	return len(a.objects)
}

// Reset invalidates every handle issued since the last reset.
func (a *Arena) Reset() {
	a.objects = a.objects[:0]
}
