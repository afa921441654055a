package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestStartSpanWithoutTracer(t *testing.T) {
	SetTracer(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	assert.Empty(t, GetTraceID(ctx))
	Fail(span, errors.New("ignored"))
}

func TestStartSpanWithTracer(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() {
		SetTracer(nil)
		_ = provider.Shutdown(context.Background())
	})
	SetTracer(provider.Tracer("test"))

	ctx, span := StartSpan(context.Background(), "import")
	defer span.End()
	assert.True(t, span.IsRecording())
	assert.Len(t, GetTraceID(ctx), 32)
	Fail(span, errors.New("write failed"))
}
