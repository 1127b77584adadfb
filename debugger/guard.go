// Copyright © 2025 The DraftPad authors

package debugger

import "github.com/petermattis/goid"

// GoroutineGuard captures the identity of the calling goroutine and
// returns a guard that fires on that goroutine only. Call it from the
// goroutine that owns the UI surface and pass the result to
// WithGuard; synchronous breakpoint handlers will then no-op instead
// of blocking the surface's event loop.
func GoroutineGuard() GuardFunc {
	ui := goid.Get()
	return func() bool {
		return goid.Get() == ui
	}
}
