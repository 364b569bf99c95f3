package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "crowdbiz"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewExporter_UnsupportedProtocol(t *testing.T) {
	_, err := newExporter(context.Background(), Config{Protocol: "udp"})
	assert.ErrorContains(t, err, `unsupported otlp protocol "udp"`)
}

func TestSpans(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartBatchSpan(context.Background(), "commit", "b1", "person")
	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracer(provider.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })

	ctx, span = StartBatchSpan(context.Background(), "commit", "b1", "person")
	assert.Len(t, GetTraceID(ctx), 32)
	RecordError(span, errors.New("connection refused"))
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "commit", ended[0].Name())
	assert.Equal(t, "connection refused", ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
}
