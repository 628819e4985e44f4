package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func record(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestStartEnd(t *testing.T) {
	sr := record(t)
	ctx := context.Background()

	_, ok := Start(ctx, "ok", attribute.String("program", "worker"))
	End(ok, nil)
	_, bad := Start(ctx, "bad")
	End(bad, errors.New("boom"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ok", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("program", "worker"))
	assert.Equal(t, "bad", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, prev, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupInstallsExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// the exporter dials lazily, so nothing needs to listen here
	shutdown, err := Setup(context.Background(), "127.0.0.1:4318", true)
	require.NoError(t, err)
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}
