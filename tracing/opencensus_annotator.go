// Copyright © 2025 The DraftPad authors

package tracing

import (
	"context"
	"strconv"

	"go.opencensus.io/trace"
)

type ocAnnotator struct {
	parent context.Context
}

var _ Annotator = &ocAnnotator{}

// NewOpenCensusAnnotator returns an annotator emitting OpenCensus
// spans parented on the given context.
func NewOpenCensusAnnotator(parent context.Context) Annotator {
	if parent == nil {
		parent = context.Background()
	}
	return &ocAnnotator{parent: parent}
}

func (a *ocAnnotator) Session(ctx context.Context, offset int) (context.Context, func()) {
	if ctx == nil {
		ctx = a.parent
	}
	ctx, span := trace.StartSpan(ctx, "breakpoint.suspend")
	span.AddAttributes(trace.StringAttribute("draftpad.breakpoint.offset", strconv.Itoa(offset)))
	return ctx, func() { span.End() }
}

func (a *ocAnnotator) Request(ctx context.Context, kind string) func() {
	if ctx == nil {
		ctx = a.parent
	}
	_, span := trace.StartSpan(ctx, "breakpoint.request")
	span.AddAttributes(trace.StringAttribute("draftpad.request.kind", kind))
	return func() { span.End() }
}
