package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/architeacher/svc-pubsub/internal/config"
)

func TestInitGlobalTracer_Stdout(t *testing.T) {
	tel := config.Telemetry{
		ExporterType: config.ExporterStdout,
		Traces:       config.Traces{Enabled: true, SamplerRatio: 1},
	}

	shutdown, err := InitGlobalTracer(context.Background(), tel, config.AppConfig{ServiceName: "svc-pubsub"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := otel.Tracer("test").Start(context.Background(), "emit")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	assert.NoError(t, shutdown(context.Background()))
}
