package infrastructure

import (
	"context"
	"net/http"
	"time"

	"github.com/architeacher/svc-pubsub/pkg/queue"
)

type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordHTTPRequest(_ context.Context, _, _ string, _ int, _ time.Duration, _, _ int64) {
}

func (n *NoOpMetrics) RecordEmit(_ context.Context, _ string, _ time.Duration, _ bool) {
}

func (n *NoOpMetrics) RecordMessageProcessed(_ context.Context, _, _ string, _ time.Duration) {
}

func (n *NoOpMetrics) RecordCommand(_ context.Context, _ string, _ time.Duration, _ bool) {
}

// QueueMetrics returns nil, which the queue library treats as disabled.
func (n *NoOpMetrics) QueueMetrics() *queue.Metrics {
	return nil
}

func (n *NoOpMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (n *NoOpMetrics) Shutdown(_ context.Context) error {
	return nil
}
