package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPublishSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	d := newTestDispatcher(WithTracer(tp.Tracer("test")))
	_, _ = d.Subscribe("click", Func(func(any) {}))
	_, _ = d.Subscribe("click", FuncE(func(any) error { return errors.New("nope") }).Named("failing"))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, d.PublishContext(ctx, "click", nil))
	parent.End()

	require.NoError(t, d.Publish("quiet", nil))

	// invalid publishes do not open spans
	require.Error(t, d.Publish("", nil))

	spans := sr.Ended()
	require.Len(t, spans, 3)

	click := spans[0]
	assert.Equal(t, "publish", click.Name())
	assert.Equal(t, parent.SpanContext().SpanID(), click.Parent().SpanID())
	assert.Contains(t, click.Attributes(), attribute.String("event.name", "click"))
	assert.Contains(t, click.Attributes(), attribute.Int("event.handlers", 2))
	assert.Equal(t, codes.Error, click.Status().Code)
	require.Len(t, click.Events(), 1)
	assert.Equal(t, "exception", click.Events()[0].Name)

	quiet := spans[2]
	assert.Equal(t, "publish", quiet.Name())
	assert.Contains(t, quiet.Attributes(), attribute.Int("event.handlers", 0))
	assert.Equal(t, codes.Unset, quiet.Status().Code)
}
