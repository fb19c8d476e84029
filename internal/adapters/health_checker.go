package adapters

import (
	"context"
	"time"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const defaultCheckTimeout = 2 * time.Second

// HealthChecker pings the queue and, when configured, the message store.
type HealthChecker struct {
	queue        ports.Pinger
	storage      ports.Pinger
	checkTimeout time.Duration
	startTime    time.Time
	now          func() time.Time
}

// NewHealthChecker creates a checker. A nil storage is reported as disabled.
func NewHealthChecker(queue, storage ports.Pinger) *HealthChecker {
	return &HealthChecker{
		queue:        queue,
		storage:      storage,
		checkTimeout: defaultCheckTimeout,
		startTime:    time.Now(),
		now:          time.Now,
	}
}

var _ ports.HealthChecker = (*HealthChecker)(nil)

func (h *HealthChecker) CheckHealth(ctx context.Context) *domain.HealthResult {
	queueStatus := h.check(ctx, h.queue)
	storageStatus := h.check(ctx, h.storage)

	return &domain.HealthResult{
		OverallStatus: overallStatus(queueStatus, storageStatus),
		Queue:         queueStatus,
		Storage:       storageStatus,
		Uptime:        float32(h.now().Sub(h.startTime).Seconds()),
	}
}

// overallStatus treats the queue as critical. A failing store only degrades
// the service since emitting keeps working without it.
func overallStatus(queue, storage domain.DependencyStatus) domain.HealthResponseStatus {
	if queue.Status == domain.DependencyCheckStatusUnhealthy {
		return domain.HealthResponseStatusUnhealthy
	}

	if storage.Status == domain.DependencyCheckStatusUnhealthy {
		return domain.HealthResponseStatusDegraded
	}

	return domain.HealthResponseStatusHealthy
}

func (h *HealthChecker) check(ctx context.Context, dep ports.Pinger) domain.DependencyStatus {
	if dep == nil {
		return domain.DependencyStatus{
			Status:      domain.DependencyCheckStatusDisabled,
			LastChecked: h.now(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	start := h.now()
	err := dep.Ping(ctx)

	status := domain.DependencyStatus{
		Status:       domain.DependencyCheckStatusHealthy,
		ResponseTime: float32(h.now().Sub(start).Microseconds()) / 1000,
		LastChecked:  h.now(),
	}

	if err != nil {
		status.Status = domain.DependencyCheckStatusUnhealthy
		status.Error = err.Error()
	}

	return status
}
