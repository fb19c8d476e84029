package commands

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
)

type (
	EmitMessageCommand struct {
		Topic string
		Args  []json.RawMessage
	}

	EmitMessageCommandHandler decorator.CommandHandler[EmitMessageCommand, *domain.EmitReceipt]

	emitMessageCommandHandler struct {
		appService service.ApplicationService
	}
)

func NewEmitMessageCommandHandler(
	appService service.ApplicationService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) EmitMessageCommandHandler {
	return decorator.ApplyCommandDecorators[EmitMessageCommand, *domain.EmitReceipt](
		emitMessageCommandHandler{
			appService: appService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h emitMessageCommandHandler) Handle(ctx context.Context, cmd EmitMessageCommand) (*domain.EmitReceipt, error) {
	return h.appService.EmitMessage(ctx, cmd.Topic, cmd.Args)
}
