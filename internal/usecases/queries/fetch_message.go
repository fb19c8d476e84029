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
	FetchMessageQuery struct {
		ID string
	}

	FetchMessageQueryHandler decorator.QueryHandler[FetchMessageQuery, *domain.ReceivedMessage]

	fetchMessageQueryHandler struct {
		appService service.ApplicationService
	}
)

func NewFetchMessageQueryHandler(
	appService service.ApplicationService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) FetchMessageQueryHandler {
	return decorator.ApplyQueryDecorators[FetchMessageQuery, *domain.ReceivedMessage](
		fetchMessageQueryHandler{
			appService: appService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h fetchMessageQueryHandler) Execute(ctx context.Context, q FetchMessageQuery) (*domain.ReceivedMessage, error) {
	return h.appService.FetchMessage(ctx, q.ID)
}
