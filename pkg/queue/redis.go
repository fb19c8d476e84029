package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// RedisQueue implements Queue on Redis pub/sub. Messages are fire-and-forget:
// subscribers that are not connected miss them and nothing is acknowledged.
type RedisQueue struct {
	cfg  Config
	opts options
	subs *registry

	mu     sync.Mutex
	rx     *redis.Client
	tx     *redis.Client
	pubsub *redis.PubSub
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisQueue resolves the configured endpoints and returns an unconnected queue.
func NewRedisQueue(cfg Config, opts ...Option) *RedisQueue {
	o := buildOptions(opts)

	cfg = cfg.withDefaults()
	cfg.RX = cfg.RX.resolve(o.lookupEnv, RedisRxURLEnv, RedisURLEnv)
	cfg.TX = cfg.TX.resolve(o.lookupEnv, RedisTxURLEnv, RedisURLEnv)

	ctx, cancel := context.WithCancel(context.Background())

	return &RedisQueue{
		cfg:    cfg,
		opts:   o,
		subs:   newRegistry(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect creates the receiving and transmitting clients. Clients dial lazily,
// so an unreachable server surfaces on the first command rather than here.
// Only a missing or malformed address fails.
func (q *RedisQueue) Connect(ctx context.Context) error {
	var rx, tx *redis.Client

	for _, dir := range []Direction{RX, TX} {
		ep := q.cfg.endpoint(dir)
		if !ep.IsSet() {
			continue
		}

		client, err := newRedisClient(dir, ep.Addr())
		if err != nil {
			closeClients(rx)

			return err
		}

		if dir == RX {
			rx = client
		} else {
			tx = client
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		closeClients(rx, tx)

		return ErrClosed
	}

	oldPubSub, oldRx, oldTx := q.pubsub, q.rx, q.tx
	q.rx, q.tx, q.pubsub = rx, tx, nil

	var pubsub *redis.PubSub
	if rx != nil {
		pubsub = rx.Subscribe(q.ctx)
		q.pubsub = pubsub

		go q.dispatchLoop(pubsub.Channel())
	}
	q.mu.Unlock()

	if oldPubSub != nil {
		_ = oldPubSub.Close()
	}

	// Topics registered against the old pubsub are in the registry by now.
	if pubsub != nil {
		if topics := q.subs.topics(); len(topics) > 0 {
			if err := pubsub.Subscribe(ctx, topics...); err != nil {
				q.opts.logger.Warn().Err(err).Msg("failed to restore subscriptions")
			}
		}
	}

	closeClients(oldRx, oldTx)

	if rx == nil && tx == nil {
		q.opts.logger.Warn().Str("queue", q.cfg.Name).Msg("neither rx nor tx endpoint is configured")
	}

	return nil
}

// Emit publishes args on the channel named topic.
func (q *RedisQueue) Emit(ctx context.Context, topic string, args ...any) error {
	ctx, span := startSpan(ctx, q.opts.tracer, "publish", backendRedis, topic, trace.SpanKindProducer)

	err := q.emit(ctx, topic, args)

	endSpan(span, err)
	q.opts.metrics.recordPublish(backendRedis, err)

	return err
}

func (q *RedisQueue) emit(ctx context.Context, topic string, args []any) error {
	body, err := Encode(args...)
	if err != nil {
		return &SerializationError{Topic: topic, Err: err}
	}

	q.mu.Lock()
	tx, closed := q.tx, q.closed
	q.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case tx == nil:
		return fmt.Errorf("%s: %w", TX, ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, q.opts.publishingTimeout)
	defer cancel()

	err = q.opts.publish(func() error {
		return tx.Publish(ctx, topic, body).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish on topic %q: %w", topic, err)
	}

	return nil
}

// On subscribes the receiving client to topic. All subscriptions share one
// dispatch loop that routes by the channel each message arrived on. The
// subscribe round trip runs without holding the queue lock.
func (q *RedisQueue) On(topic string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()

		return ErrClosed
	case q.pubsub == nil:
		q.mu.Unlock()

		return fmt.Errorf("%s: %w", RX, ErrNotConnected)
	}

	sub := q.subs.add(topic, handler)
	pubsub := q.pubsub
	q.mu.Unlock()

	if err := pubsub.Subscribe(q.ctx, topic); err != nil {
		// Connect restores every registered topic on the pubsub replacing this one.
		if q.replaced(pubsub) {
			return nil
		}

		q.subs.remove(sub)

		return fmt.Errorf("failed to subscribe to topic %q: %w", topic, err)
	}

	return nil
}

func (q *RedisQueue) replaced(pubsub *redis.PubSub) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return !q.closed && q.pubsub != nil && q.pubsub != pubsub
}

// Close terminates both clients. Closing an already closed queue is a no-op.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	pubsub, rx, tx := q.pubsub, q.rx, q.tx
	q.pubsub, q.rx, q.tx = nil, nil, nil
	q.mu.Unlock()

	q.cancel()

	var errs []error

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, c := range []*redis.Client{rx, tx} {
		if c == nil {
			continue
		}

		if err := c.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}

	q.opts.logger.Info().Str("queue", q.cfg.Name).Msg("queue closed")

	return errors.Join(errs...)
}

// Ping round-trips a PING on every connected client.
func (q *RedisQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	rx, tx, closed := q.rx, q.tx, q.closed
	q.mu.Unlock()

	if closed {
		return ErrClosed
	}

	if rx == nil && tx == nil {
		return ErrNotConnected
	}

	for _, c := range []*redis.Client{rx, tx} {
		if c == nil {
			continue
		}

		if err := c.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	return nil
}

func (q *RedisQueue) dispatchLoop(messages <-chan *redis.Message) {
	for m := range messages {
		ctx, span := startSpan(q.ctx, q.opts.tracer, "process", backendRedis, m.Channel, trace.SpanKindConsumer)

		msg, err := decodeMessage(m.Channel, []byte(m.Payload))
		if err != nil {
			q.opts.metrics.recordDecodeFailure(backendRedis)
			q.opts.logger.Error().Err(err).Str("topic", m.Channel).Msg("dropping undecodable message")
			endSpan(span, err)

			continue
		}

		handlers := q.subs.match("", m.Channel)
		if len(handlers) == 0 {
			q.opts.metrics.recordUnrouted(backendRedis)
		} else {
			q.opts.metrics.recordDelivery(backendRedis)
			dispatch(ctx, q.opts.logger, handlers, msg)
		}

		span.End()
	}
}

func newRedisClient(dir Direction, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, newConnectionError(dir, "", ErrNoEndpoint)
	}

	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, newConnectionError(dir, addr, err)
	}

	return redis.NewClient(opts), nil
}

func closeClients(clients ...*redis.Client) {
	for _, c := range clients {
		if c != nil {
			_ = c.Close()
		}
	}
}
