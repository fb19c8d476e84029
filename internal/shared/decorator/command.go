package decorator

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/infrastructure"
)

type CommandHandler[C any, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// ApplyCommandDecorators wraps handler so every command is logged, timed and traced.
func ApplyCommandDecorators[C any, R any](
	handler CommandHandler[C, R],
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient MetricsClient,
) CommandHandler[C, R] {
	return commandLoggingDecorator[C, R]{
		base: commandMetricsDecorator[C, R]{
			base: commandTracingDecorator[C, R]{
				base:   handler,
				tracer: tracerOf(tracerProvider),
			},
			client: metricsClient,
		},
		logger: logger,
	}
}
