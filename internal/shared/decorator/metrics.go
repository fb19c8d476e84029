package decorator

import (
	"context"
	"time"
)

type (
	// MetricsClient receives the outcome of every decorated command and query.
	MetricsClient interface {
		ObserveAction(ctx context.Context, action string, duration time.Duration, err error)
	}

	commandMetricsDecorator[C any, R any] struct {
		base   CommandHandler[C, R]
		client MetricsClient
	}

	queryMetricsDecorator[Q any, R any] struct {
		base   QueryHandler[Q, R]
		client MetricsClient
	}
)

func (d commandMetricsDecorator[C, R]) Handle(ctx context.Context, cmd C) (result R, err error) {
	if d.client == nil {
		return d.base.Handle(ctx, cmd)
	}

	start := time.Now()

	defer func() {
		d.client.ObserveAction(ctx, actionName(cmd), time.Since(start), err)
	}()

	return d.base.Handle(ctx, cmd)
}

func (d queryMetricsDecorator[Q, R]) Execute(ctx context.Context, q Q) (result R, err error) {
	if d.client == nil {
		return d.base.Execute(ctx, q)
	}

	start := time.Now()

	defer func() {
		d.client.ObserveAction(ctx, actionName(q), time.Since(start), err)
	}()

	return d.base.Execute(ctx, q)
}
