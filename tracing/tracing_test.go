package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	octrace "go.opencensus.io/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/draftpad/draftpad/tracing"
)

func TestNewOpenTelemetryAnnotator(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithSampler(trace.AlwaysSample()),
	)
	t.Cleanup(func() {
		err := tp.Shutdown(context.Background())
		assert.NoError(t, err, "TracerProvider shutdown")
	})
	otel.SetTracerProvider(tp)

	a := tracing.NewOpenTelemetryAnnotator(context.Background())

	ctx, endSession := a.Session(context.Background(), 42)
	endItems := a.Request(ctx, "GetItems")
	endItems()
	endResume := a.Request(ctx, "Resume")
	endResume()
	endSession()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	// Children end before the session span.
	assert.Equal(t, "breakpoint.request", spans[0].Name)
	assert.Equal(t, "breakpoint.request", spans[1].Name)
	assert.Equal(t, "breakpoint.suspend", spans[2].Name)
	assert.Equal(t, spans[2].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestNewOpenTelemetryAnnotator_NilContext(t *testing.T) {
	a := tracing.NewOpenTelemetryAnnotator(nil)
	ctx, end := a.Session(nil, 0)
	assert.NotNil(t, ctx)
	end()
	a.Request(nil, "Resume")()
}

func TestNewOpenCensusAnnotator(t *testing.T) {
	a := tracing.NewOpenCensusAnnotator(context.Background())

	ctx, endSession := a.Session(context.Background(), 7)
	require.NotNil(t, ctx)
	span := octrace.FromContext(ctx)
	require.NotNil(t, span)

	end := a.Request(ctx, "GetProperty")
	end()
	endSession()
}

func TestNop(t *testing.T) {
	var a tracing.Annotator = tracing.Nop{}
	ctx, end := a.Session(context.Background(), 1)
	assert.Equal(t, context.Background(), ctx)
	end()
	a.Request(ctx, "Resume")()
}
