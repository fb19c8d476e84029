package commands

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
)

type (
	RecordMessageCommand struct {
		Message *domain.ReceivedMessage
	}

	RecordMessageCommandHandler decorator.CommandHandler[RecordMessageCommand, *domain.RecordResult]

	recordMessageCommandHandler struct {
		subscriberService service.SubscriberService
	}
)

func NewRecordMessageCommandHandler(
	subscriberService service.SubscriberService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) RecordMessageCommandHandler {
	return decorator.ApplyCommandDecorators[RecordMessageCommand, *domain.RecordResult](
		recordMessageCommandHandler{
			subscriberService: subscriberService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h recordMessageCommandHandler) Handle(ctx context.Context, cmd RecordMessageCommand) (*domain.RecordResult, error) {
	return h.subscriberService.RecordMessage(ctx, cmd.Message)
}
