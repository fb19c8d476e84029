package infrastructure

import (
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"

	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/pkg/queue"
)

type Queue = queue.Queue

// Directions selects which halves of the queue a process opens.
type Directions struct {
	RX bool
	TX bool
}

var (
	EmitOnly   = Directions{TX: true}
	ListenOnly = Directions{RX: true}
)

// NewQueue builds the configured backend without connecting it. Empty URLs
// resolve from the backend's well-known environment variables.
func NewQueue(cfg config.QueueConfig, dirs Directions, logger Logger, extra ...queue.Option) (Queue, error) {
	qc := QueueConfig(cfg, dirs)

	opts := []queue.Option{
		queue.WithLogger(logger.QueueLogger()),
		queue.WithConnectionTimeout(cfg.ConnectTimeout),
		queue.WithPublishingTimeout(cfg.PublishTimeout),
		queue.WithPrefetch(cfg.PrefetchCount),
		queue.WithMaxReconnectAttempts(cfg.MaxReconnectAttempts),
		queue.WithTracerProvider(otel.GetTracerProvider()),
	}

	if cfg.CircuitBreaker.Enabled {
		opts = append(opts, queue.WithPublishBreaker(breakerSettings(cfg)))
	}

	opts = append(opts, extra...)

	switch strings.ToLower(cfg.Backend) {
	case config.BackendAMQP:
		return queue.NewAMQPQueue(qc, opts...), nil
	case config.BackendRedis:
		return queue.NewRedisQueue(qc, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", cfg.Backend)
	}
}

// QueueConfig maps the service settings onto the library configuration.
func QueueConfig(cfg config.QueueConfig, dirs Directions) queue.Config {
	qc := queue.Config{
		Name:         cfg.Name,
		Type:         cfg.Type,
		ExchangeName: cfg.ExchangeName,
		Queue: queue.QueueOptions{
			Durable:     cfg.Durable,
			AutoDelete:  cfg.AutoDelete,
			Exclusive:   cfg.ServerNamed,
			ServerNamed: cfg.ServerNamed,
		},
		Exchange: queue.ExchangeOptions{
			Durable:    cfg.Durable,
			AutoDelete: cfg.AutoDelete,
		},
		AutoAck: cfg.AutoAck,
	}

	if dirs.RX {
		qc.RX = endpoint(cfg.RxURL)
	}

	if dirs.TX {
		qc.TX = endpoint(cfg.TxURL)
	}

	return qc
}

func endpoint(url string) queue.Endpoint {
	if url == "" {
		return queue.FromEnv()
	}

	return queue.Address(url)
}

func breakerSettings(cfg config.QueueConfig) gobreaker.Settings {
	maxFailures := cfg.CircuitBreaker.MaxFailures

	return gobreaker.Settings{
		Name:        "queue-publish-" + cfg.Name,
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
}
