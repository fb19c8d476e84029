package refresher

import (
	"context"
	"sync"
	"time"

	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const DefaultInterval = 5 * time.Minute

var _ ports.BackgroundProcessor = (*Processor)(nil)

type (
	// Task is one unit of periodic work.
	Task struct {
		Name string
		Run  func(ctx context.Context) error
	}

	// Processor runs its tasks concurrently on every tick. A failing task is
	// logged and retried on the next tick.
	Processor struct {
		interval time.Duration
		tasks    []Task
		logger   infrastructure.Logger
	}
)

func NewProcessor(interval time.Duration, logger infrastructure.Logger, tasks ...Task) *Processor {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Processor{
		interval: interval,
		tasks:    tasks,
		logger:   logger.Component("refresher"),
	}
}

// KeyRefreshTask reloads the token verification key ahead of its cache expiry.
func KeyRefreshTask(keyService ports.KeyService) Task {
	return Task{
		Name: "paseto_key",
		Run:  keyService.RefreshKey,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Int("tasks", len(p.tasks)).
		Msg("starting background refresher")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("background refresher shutting down")

			return ctx.Err()

		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Processor) runOnce(ctx context.Context) {
	var wg sync.WaitGroup

	for _, task := range p.tasks {
		wg.Go(func() {
			if err := task.Run(ctx); err != nil {
				p.logger.Error().
					Err(err).
					Str("task", task.Name).
					Msg("background task failed")

				return
			}

			p.logger.Debug().Str("task", task.Name).Msg("background task completed")
		})
	}

	wg.Wait()
}
