package usecases

import (
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
	"github.com/architeacher/svc-pubsub/internal/usecases/commands"
)

type (
	ListenerApplication struct {
		Commands ListenerCommands
	}

	ListenerCommands struct {
		RecordMessageCommandHandler commands.RecordMessageCommandHandler
	}
)

func NewListenerApplication(
	subscriberService service.SubscriberService,
	logger infrastructure.Logger,
	tracerProvider otelTrace.TracerProvider,
	metricsClient decorator.MetricsClient,
) *ListenerApplication {
	return &ListenerApplication{
		Commands: ListenerCommands{
			RecordMessageCommandHandler: commands.NewRecordMessageCommandHandler(
				subscriberService,
				logger,
				tracerProvider,
				metricsClient,
			),
		},
	}
}
