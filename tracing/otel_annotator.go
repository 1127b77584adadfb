// Copyright © 2025 The DraftPad authors

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContextOtelTracerKey looks up a parent tracer name from a context
// key, letting the embedding host route spans to its own tracer.
const ContextOtelTracerKey = "otelParentTracer"

type otelAnnotator struct {
	parent context.Context
}

var _ Annotator = &otelAnnotator{}

// NewOpenTelemetryAnnotator returns an annotator emitting
// OpenTelemetry spans parented on the given context.
func NewOpenTelemetryAnnotator(parent context.Context) Annotator {
	if parent == nil {
		parent = context.Background()
	}
	return &otelAnnotator{parent: parent}
}

func contextTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(ContextOtelTracerKey).(string)
	if !ok {
		tracerName = "draftpad"
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

func (a *otelAnnotator) Session(ctx context.Context, offset int) (context.Context, func()) {
	if ctx == nil {
		ctx = a.parent
	}
	ctx, span := contextTracer(ctx).Start(ctx, "breakpoint.suspend")
	span.SetAttributes(attribute.Int("draftpad.breakpoint.offset", offset))
	return ctx, func() { span.End() }
}

func (a *otelAnnotator) Request(ctx context.Context, kind string) func() {
	if ctx == nil {
		ctx = a.parent
	}
	_, span := contextTracer(ctx).Start(ctx, "breakpoint.request")
	span.SetAttributes(attribute.String("draftpad.request.kind", kind))
	return func() { span.End() }
}
