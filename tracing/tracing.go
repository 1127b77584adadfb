// Copyright © 2025 The DraftPad authors

// Package tracing annotates breakpoint suspensions with trace spans.
//
// Two interchangeable annotators are provided, one for OpenTelemetry
// and one for OpenCensus, so the debug core plugs into whichever
// tracing stack the embedding host already runs.
package tracing

import "context"

// Annotator receives the lifecycle of one breakpoint suspension and
// of each remote inspection request serviced during it. Both methods
// return a completion func ending the span.
type Annotator interface {
	// Session opens a span covering one breakpoint suspension.
	Session(ctx context.Context, offset int) (context.Context, func())
	// Request opens a child span for one inspection request
	// (GetItems, GetProperty, Resume).
	Request(ctx context.Context, kind string) func()
}

// Nop is the default annotator: it records nothing.
type Nop struct{}

// Session implements Annotator.
func (Nop) Session(ctx context.Context, offset int) (context.Context, func()) {
	return ctx, func() {}
}

// Request implements Annotator.
func (Nop) Request(ctx context.Context, kind string) func() {
	return func() {}
}
