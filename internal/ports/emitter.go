package ports

import "context"

// Emitter publishes ordered arguments under a topic.
type Emitter interface {
	Emit(ctx context.Context, topic string, args ...any) error
}
