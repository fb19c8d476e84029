package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	t.Parallel()

	healthy := pingFunc(func(context.Context) error { return nil })
	failing := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	hanging := pingFunc(func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})

	tests := []struct {
		name        string
		queue       ports.Pinger
		storage     ports.Pinger
		wantOverall domain.HealthResponseStatus
		wantQueue   domain.DependencyCheckStatus
		wantStorage domain.DependencyCheckStatus
	}{
		{
			name:        "all healthy",
			queue:       healthy,
			storage:     healthy,
			wantOverall: domain.HealthResponseStatusHealthy,
			wantQueue:   domain.DependencyCheckStatusHealthy,
			wantStorage: domain.DependencyCheckStatusHealthy,
		},
		{
			name:        "storage disabled",
			queue:       healthy,
			wantOverall: domain.HealthResponseStatusHealthy,
			wantQueue:   domain.DependencyCheckStatusHealthy,
			wantStorage: domain.DependencyCheckStatusDisabled,
		},
		{
			name:        "storage down",
			queue:       healthy,
			storage:     failing,
			wantOverall: domain.HealthResponseStatusDegraded,
			wantQueue:   domain.DependencyCheckStatusHealthy,
			wantStorage: domain.DependencyCheckStatusUnhealthy,
		},
		{
			name:        "queue down",
			queue:       failing,
			storage:     healthy,
			wantOverall: domain.HealthResponseStatusUnhealthy,
			wantQueue:   domain.DependencyCheckStatusUnhealthy,
			wantStorage: domain.DependencyCheckStatusHealthy,
		},
		{
			name:        "queue hangs",
			queue:       hanging,
			wantOverall: domain.HealthResponseStatusUnhealthy,
			wantQueue:   domain.DependencyCheckStatusUnhealthy,
			wantStorage: domain.DependencyCheckStatusDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewHealthChecker(tt.queue, tt.storage)
			checker.checkTimeout = 20 * time.Millisecond

			result := checker.CheckHealth(t.Context())

			assert.Equal(t, tt.wantOverall, result.OverallStatus)
			assert.Equal(t, tt.wantQueue, result.Queue.Status)
			assert.Equal(t, tt.wantStorage, result.Storage.Status)
			assert.False(t, result.Queue.LastChecked.IsZero())

			if tt.wantQueue == domain.DependencyCheckStatusUnhealthy {
				assert.NotEmpty(t, result.Queue.Error)
			}
		})
	}
}
