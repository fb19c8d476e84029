package adapters

import (
	"context"
	"time"

	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/shared/decorator"
)

type MetricsAdapter struct {
	metrics infrastructure.Metrics
}

func NewMetricsAdapter(metrics infrastructure.Metrics) decorator.MetricsClient {
	return &MetricsAdapter{
		metrics: metrics,
	}
}

func (m *MetricsAdapter) ObserveAction(ctx context.Context, action string, duration time.Duration, err error) {
	m.metrics.RecordCommand(ctx, action, duration, err == nil)
}
