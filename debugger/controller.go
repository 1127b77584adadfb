// Copyright © 2025 The DraftPad authors

package debugger

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// SyncCallback is invoked with the captured breakpoint state while the
// hitting goroutine blocks. Its return value is the new suppression
// state for the breakpoint's offset: true means ignore further hits
// there for the rest of the process run.
type SyncCallback func(*BreakpointInfo) bool

// AsyncCallback is the awaitable counterpart; suspension happens at a
// wait point inside the callback, so it is safe on any goroutine.
type AsyncCallback func(context.Context, *BreakpointInfo) (bool, error)

// GuardFunc reports whether the current goroutine must not block.
// The synchronous handler no-ops when the guard fires.
type GuardFunc func() bool

// Controller owns the per-session breakpoint suspension state: the
// suppression map keyed by source offset and the blocking guard.
// One controller is constructed per editor/debugger session; there are
// no ambient globals.
type Controller struct {
	mu         sync.Mutex
	suppressed map[int]bool

	guard GuardFunc
	log   logrus.FieldLogger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithGuard installs the execution-context capability check consulted
// by synchronous handlers. See GoroutineGuard.
func WithGuard(g GuardFunc) ControllerOption {
	return func(c *Controller) {
		c.guard = g
	}
}

// WithLogger sets the controller's logger.
func WithLogger(log logrus.FieldLogger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController returns a controller with an empty suppression map.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		suppressed: make(map[int]bool),
		log:        logrus.StandardLogger().WithField("component", "debugger"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Suppressed reports whether hits at the given source offset are
// ignored. Offsets start Active and become Suppressed when a handler
// callback returns true; nothing transitions them back short of a
// process restart.
func (c *Controller) Suppressed(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed[offset]
}

func (c *Controller) setSuppressed(offset int, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v {
		c.suppressed[offset] = true
	}
}

// SyncHandler builds the synchronous shim hook for a surface callback.
// The hook checks suppression, refuses to run on a guarded goroutine,
// and otherwise blocks the caller until the callback returns.
func (c *Controller) SyncHandler(cb SyncCallback) SyncHook {
	return func(offset int, names []string, metas []string, values []any) {
		if c.guard != nil && c.guard() {
			// Blocking here would deadlock the surface that must
			// render this very breakpoint.
			c.log.WithField("offset", offset).Debug("breakpoint hit on guarded goroutine, skipping")
			return
		}
		if c.Suppressed(offset) {
			return
		}
		info := &BreakpointInfo{
			Offset: offset,
			Names:  names,
			Metas:  DecodeMetas(names, metas),
			Values: values,
		}
		c.setSuppressed(offset, cb(info))
	}
}

// AsyncHandler builds the asynchronous shim hook for a surface
// callback. The guard is not consulted: suspension happens at a wait
// point inside the callback rather than by blocking this goroutine,
// so the hook is safe anywhere, including the UI goroutine.
func (c *Controller) AsyncHandler(cb AsyncCallback) AsyncHook {
	return func(ctx context.Context, offset int, names []string, metas []string, values []any) error {
		if c.Suppressed(offset) {
			return nil
		}
		info := &BreakpointInfo{
			Offset: offset,
			Names:  names,
			Metas:  DecodeMetas(names, metas),
			Values: values,
		}
		suppress, err := cb(ctx, info)
		if err != nil {
			return err
		}
		c.setSuppressed(offset, suppress)
		return nil
	}
}

// Hooks builds the bound handler pair for a shim unit in one call.
func (c *Controller) Hooks(sync SyncCallback, async AsyncCallback) Hooks {
	h := Hooks{}
	if sync != nil {
		h.Sync = c.SyncHandler(sync)
	}
	if async != nil {
		h.Async = c.AsyncHandler(async)
	}
	return h
}
