package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/usecases/commands"
)

// EmitterCtx publishes a single message and exits.
type EmitterCtx struct {
	cfg     *config.ServiceConfig
	options []DependencyOption
}

func NewEmitter(cfg *config.ServiceConfig, opt ...EmitterOption) *EmitterCtx {
	eCtx := &EmitterCtx{cfg: cfg}

	for i := range opt {
		opt[i](eCtx)
	}

	return eCtx
}

// Emit returns once the message left the process. The connection is closed
// before returning, which flushes pending writes.
func (c *EmitterCtx) Emit(ctx context.Context, topic string, args []json.RawMessage) (*domain.EmitReceipt, error) {
	opts := append([]DependencyOption{
		WithValidator(),
		WithQueue(ctx, infrastructure.EmitOnly),
	}, c.options...)
	opts = append(opts, WithGateway())

	deps, err := initializeDependencies(ctx, c.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	defer deps.release(context.WithoutCancel(ctx))

	receipt, err := deps.Apps.Gateway.Commands.EmitMessageCommandHandler.Handle(ctx, commands.EmitMessageCommand{
		Topic: topic,
		Args:  args,
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}
