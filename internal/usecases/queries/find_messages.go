package queries

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
)

type (
	FindMessagesQuery struct {
		Topic string
	}

	FindMessagesQueryHandler decorator.QueryHandler[FindMessagesQuery, []*domain.ReceivedMessage]

	findMessagesQueryHandler struct {
		appService service.ApplicationService
	}
)

func NewFindMessagesQueryHandler(
	appService service.ApplicationService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) FindMessagesQueryHandler {
	return decorator.ApplyQueryDecorators[FindMessagesQuery, []*domain.ReceivedMessage](
		findMessagesQueryHandler{
			appService: appService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h findMessagesQueryHandler) Execute(ctx context.Context, q FindMessagesQuery) ([]*domain.ReceivedMessage, error) {
	return h.appService.FindMessages(ctx, domain.MessageFilter{Topic: q.Topic})
}
