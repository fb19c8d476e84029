package ports

import (
	"context"

	"github.com/architeacher/svc-pubsub/internal/domain"
)

type (
	HealthChecker interface {
		CheckHealth(ctx context.Context) *domain.HealthResult
	}

	// Pinger reports whether a dependency answers.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
