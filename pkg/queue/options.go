package queue

import (
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub/pkg/backoff"
)

const (
	publishingTimeout           = 3 * time.Second
	connectionTimeout           = 30 * time.Second
	defaultMaxReconnectAttempts = 5
	instrumentationName         = "github.com/architeacher/svc-pubsub/pkg/queue"
)

type options struct {
	logger               Logger
	lookupEnv            EnvLookup
	reconnect            backoff.Strategy
	maxReconnectAttempts int
	connectionTimeout    time.Duration
	publishingTimeout    time.Duration
	prefetchCount        int
	metrics              *Metrics
	tracer               trace.Tracer
	breaker              *gobreaker.CircuitBreaker
	dial                 dialer
}

// Option configures a queue at construction time.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:               nopLogger{},
		lookupEnv:            defaultEnvLookup(),
		reconnect:            backoff.NewExponentialStrategy(backoff.DefaultConfig()),
		maxReconnectAttempts: defaultMaxReconnectAttempts,
		connectionTimeout:    connectionTimeout,
		publishingTimeout:    publishingTimeout,
		tracer:               otel.Tracer(instrumentationName),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.dial == nil {
		o.dial = amqpDialer(o.connectionTimeout)
	}

	return o
}

// WithLogger sets the logger used for connection and delivery events.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEnvironment replaces os.LookupEnv when resolving FromEnv endpoints.
func WithEnvironment(lookup EnvLookup) Option {
	return func(o *options) {
		if lookup != nil {
			o.lookupEnv = lookup
		}
	}
}

// WithReconnectBackoff sets the delay strategy between reconnection attempts.
func WithReconnectBackoff(s backoff.Strategy) Option {
	return func(o *options) {
		if s != nil {
			o.reconnect = s
		}
	}
}

// WithReconnectDelay waits the same delay between every reconnection attempt.
func WithReconnectDelay(delay time.Duration) Option {
	return WithReconnectBackoff(backoff.Constant(delay))
}

// WithMaxReconnectAttempts bounds the attempts made per close notification.
// One attempt reproduces the single-shot supervisor.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxReconnectAttempts = n
		}
	}
}

// WithConnectionTimeout sets the timeout used when dialing the broker.
func WithConnectionTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectionTimeout = timeout
	}
}

// WithPublishingTimeout sets the timeout of a single publish.
func WithPublishingTimeout(d time.Duration) Option {
	return func(o *options) {
		o.publishingTimeout = d
	}
}

// WithPrefetch applies a QoS prefetch count on the RX channel.
func WithPrefetch(count int) Option {
	return func(o *options) {
		o.prefetchCount = count
	}
}

// WithMetrics records queue activity on the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerProvider sets the provider used for emit and delivery spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithPublishBreaker guards publishes with a circuit breaker so a broken
// transport fails fast instead of timing out on every emit.
func WithPublishBreaker(settings gobreaker.Settings) Option {
	return func(o *options) {
		o.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

func withDialer(d dialer) Option {
	return func(o *options) {
		o.dial = d
	}
}

func (o options) publish(fn func() error) error {
	if o.breaker == nil {
		return fn()
	}

	_, err := o.breaker.Execute(func() (any, error) {
		return nil, fn()
	})

	return err
}
