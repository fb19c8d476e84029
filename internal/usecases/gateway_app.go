package usecases

import (
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
	"github.com/architeacher/svc-pubsub/internal/usecases/commands"
	"github.com/architeacher/svc-pubsub/internal/usecases/queries"
)

type (
	// GatewayApplication serves emitters: the HTTP gateway and queuectl emit.
	GatewayApplication struct {
		Commands GatewayCommands
		Queries  GatewayQueries
	}

	GatewayCommands struct {
		EmitMessageCommandHandler commands.EmitMessageCommandHandler
	}

	GatewayQueries struct {
		FetchMessageQueryHandler      queries.FetchMessageQueryHandler
		FindMessagesQueryHandler      queries.FindMessagesQueryHandler
		FetchHealthReportQueryHandler queries.FetchHealthReportQueryHandler
	}
)

func NewGatewayApplication(
	appService service.ApplicationService,
	logger infrastructure.Logger,
	tracerProvider otelTrace.TracerProvider,
	metricsClient decorator.MetricsClient,
) *GatewayApplication {
	return &GatewayApplication{
		Commands: GatewayCommands{
			EmitMessageCommandHandler: commands.NewEmitMessageCommandHandler(
				appService, logger, tracerProvider, metricsClient,
			),
		},
		Queries: GatewayQueries{
			FetchMessageQueryHandler: queries.NewFetchMessageQueryHandler(
				appService, logger, tracerProvider, metricsClient,
			),
			FindMessagesQueryHandler: queries.NewFindMessagesQueryHandler(
				appService, logger, tracerProvider, metricsClient,
			),
			FetchHealthReportQueryHandler: queries.NewFetchHealthReportQueryHandler(
				appService, logger, tracerProvider, metricsClient,
			),
		},
	}
}
