// Copyright © 2025 The DraftPad authors

// Package debugger implements the in-process breakpoint suspension
// controller.
//
// Instrumented code calls into generated shim hook slots; the
// controller builds the concrete handlers those slots are bound to.
// A synchronous handler blocks the goroutine that hit the breakpoint
// until the surface callback returns; the asynchronous variant runs
// under the caller's context so suspension happens at a wait point
// inside the callback instead of a blocking call on the hot goroutine.
//
// Concurrency model: any goroutine of the instrumented program may hit
// a breakpoint. The synchronous handler therefore refuses to engage on
// the goroutine that owns the UI surface; blocking it would deadlock
// the very widgets meant to display the breakpoint and collect the
// resume signal.
package debugger

import (
	"context"
	"encoding/json"
)

// SyncHook is the synchronous shim hook signature: instrumented code
// passes the breakpoint's source offset, the captured variable names,
// their display metadata (JSON, one string per variable), and the
// live values.
type SyncHook func(offset int, names []string, metas []string, values []any)

// AsyncHook is the asynchronous shim hook signature, used at call
// sites inside functions that carry a context.
type AsyncHook func(ctx context.Context, offset int, names []string, metas []string, values []any) error

// Hooks pairs the two handlers bound into a generated shim unit.
type Hooks struct {
	Sync  SyncHook
	Async AsyncHook
}

// VarMeta is the display metadata generated per captured variable at
// instrumentation time. It crosses the wire as an individually
// JSON-encoded string nested inside the payload.
type VarMeta struct {
	Name string `json:"name"`
	// Type is the declared type text, empty for inferred declarations.
	Type string `json:"type,omitempty"`
}

// EncodeMeta renders metadata to its wire string.
func EncodeMeta(m VarMeta) string {
	b, _ := json.Marshal(m)
	return string(b)
}

// DecodeMetas decodes the metadata strings of one breakpoint hit.
// A malformed entry decodes to a bare name so a display problem never
// turns into a debugger failure.
func DecodeMetas(names, metas []string) []VarMeta {
	out := make([]VarMeta, len(metas))
	for i, s := range metas {
		if err := json.Unmarshal([]byte(s), &out[i]); err != nil && i < len(names) {
			out[i] = VarMeta{Name: names[i]}
		}
	}
	return out
}

// BreakpointInfo is the captured state of one breakpoint hit, handed
// to the surface callback while the hitting goroutine is suspended.
type BreakpointInfo struct {
	// Offset is the breakpoint's statement offset in the source.
	Offset int
	Names  []string
	Metas  []VarMeta
	// Values holds the live variable values, index-aligned with Names.
	Values []any
}
