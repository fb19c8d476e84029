package queue

import (
	"context"
	"fmt"
)

const (
	backendAMQP  = "amqp"
	backendRedis = "redis"
)

// Queue is the broker-agnostic publish/subscribe surface shared by every backend.
type Queue interface {
	// Connect establishes the transport state of every configured direction.
	Connect(ctx context.Context) error
	// Emit serializes args and publishes them under topic. Delivery is not confirmed.
	Emit(ctx context.Context, topic string, args ...any) error
	// On registers handler for every message received on topic.
	On(topic string, handler Handler) error
	// Close releases the transport resources owned by the queue.
	Close() error
}

// Handler processes one received message. The handlers registered on one queue
// are invoked sequentially in delivery order.
type Handler func(ctx context.Context, msg Message)

var (
	_ Queue = NopQueue{}
	_ Queue = (*AMQPQueue)(nil)
	_ Queue = (*RedisQueue)(nil)
)

// NopQueue accepts every call without touching a transport.
type NopQueue struct{}

func (NopQueue) Connect(context.Context) error { return nil }

func (NopQueue) Emit(context.Context, string, ...any) error { return nil }

func (NopQueue) On(string, Handler) error { return nil }

func (NopQueue) Close() error { return nil }

func (NopQueue) Ping(context.Context) error { return nil }

// dispatch runs every handler on msg and reports whether one of them panicked.
// A panicking handler is logged and does not stop the remaining handlers nor
// the consumer loop.
func dispatch(ctx context.Context, logger Logger, handlers []Handler, msg Message) (panicked bool) {
	for _, fn := range handlers {
		if !invoke(ctx, logger, fn, msg) {
			panicked = true
		}
	}

	return panicked
}

func invoke(ctx context.Context, logger Logger, fn Handler, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("topic", msg.Topic).
				Str("panic", fmt.Sprint(r)).
				Msg("message handler panicked")

			ok = false
		}
	}()

	fn(ctx, msg)

	return true
}
