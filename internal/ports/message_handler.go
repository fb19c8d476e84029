package ports

import (
	"context"

	"github.com/architeacher/svc-pubsub/pkg/queue"
)

// MessageHandler processes one received message and settles its delivery.
type MessageHandler interface {
	ProcessMessage(ctx context.Context, msg queue.Message) error
}
