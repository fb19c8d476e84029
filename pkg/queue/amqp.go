package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// AMQPQueue implements Queue on top of an AMQP 0-9-1 broker. Receiving and
// transmitting use independent connections, each created only when its
// endpoint is configured.
type AMQPQueue struct {
	cfg  Config
	opts options
	subs *registry

	mu         sync.Mutex
	handles    map[Direction]*channelHandle
	generation uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAMQPQueue resolves the configured endpoints and returns an unconnected queue.
func NewAMQPQueue(cfg Config, opts ...Option) *AMQPQueue {
	o := buildOptions(opts)

	cfg = cfg.withDefaults()
	cfg.RX = cfg.RX.resolve(o.lookupEnv, AMQPRxURLEnv)
	cfg.TX = cfg.TX.resolve(o.lookupEnv, AMQPTxURLEnv)

	ctx, cancel := context.WithCancel(context.Background())

	return &AMQPQueue{
		cfg:     cfg,
		opts:    o,
		subs:    newRegistry(),
		handles: make(map[Direction]*channelHandle, 2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect opens every configured direction: connection, channel, queue and
// exchange declarations, then the close listener. Calling it again replaces
// the existing connections.
func (q *AMQPQueue) Connect(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return ErrClosed
	}

	previous := q.detachAllLocked()
	q.mu.Unlock()

	for _, h := range previous {
		if err := h.shutdown(); err != nil {
			q.opts.logger.Warn().Err(err).Str("direction", string(h.direction)).Msg("failed to release previous connection")
		}
	}

	directions := q.configuredDirections()
	if len(directions) == 0 {
		q.opts.logger.Warn().Str("queue", q.cfg.Name).Msg("neither rx nor tx endpoint is configured")

		return nil
	}

	opened := make([]*channelHandle, len(directions))

	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range directions {
		g.Go(func() error {
			h, err := q.open(gctx, dir)
			if err != nil {
				return err
			}

			opened[i] = h

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		shutdownAll(opened)

		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		shutdownAll(opened)

		return ErrClosed
	}

	var pending []string
	for _, h := range opened {
		q.installLocked(h)

		if h.direction == RX {
			pending = q.subs.topics()
		}
	}
	q.mu.Unlock()

	for _, h := range opened {
		go q.supervise(h)

		q.opts.logger.Info().
			Str("queue", q.cfg.Name).
			Str("direction", string(h.direction)).
			Str("endpoint", redact(h.url)).
			Msg("connected to broker")

		if h.direction == RX {
			if err := q.replay(h, pending); err != nil {
				return err
			}
		}
	}

	return nil
}

// Emit binds the queue to the exchange under topic and publishes args as a
// persistent message routed by topic.
func (q *AMQPQueue) Emit(ctx context.Context, topic string, args ...any) error {
	ctx, span := startSpan(ctx, q.opts.tracer, "publish", backendAMQP, topic, trace.SpanKindProducer)

	err := q.emit(ctx, topic, args)

	endSpan(span, err)
	q.opts.metrics.recordPublish(backendAMQP, err)

	return err
}

func (q *AMQPQueue) emit(ctx context.Context, topic string, args []any) error {
	body, err := Encode(args...)
	if err != nil {
		return &SerializationError{Topic: topic, Err: err}
	}

	h, err := q.current(TX)
	if err != nil {
		return err
	}

	if !q.cfg.Queue.ServerNamed {
		if err := h.ch.bind(h.queueName, topic, q.cfg.ExchangeName); err != nil {
			return err
		}
	}

	headers := amqp.Table{}
	injectHeaders(ctx, headers)

	publishing := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, q.opts.publishingTimeout)
	defer cancel()

	err = q.opts.publish(func() error {
		return h.ch.publish(ctx, q.cfg.ExchangeName, topic, publishing)
	})
	if err != nil {
		return fmt.Errorf("failed to publish on topic %q: %w", topic, err)
	}

	return nil
}

// On binds the queue to the exchange under topic and routes matching
// deliveries to handler. The receiving connection runs a single consumer, so
// handlers are invoked one at a time in delivery order. The subscription is
// replayed after the receiving connection is re-established.
func (q *AMQPQueue) On(topic string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	q.mu.Lock()
	h, err := q.currentLocked(RX)
	if err != nil {
		q.mu.Unlock()

		return err
	}

	sub := q.subs.add(topic, handler)
	q.mu.Unlock()

	return q.attach(h, sub)
}

// attach subscribes a registered sub on h. When h was replaced in the
// meantime the failure is expected and the successor's replay covers sub, so
// it stays registered.
func (q *AMQPQueue) attach(h *channelHandle, sub *subscription) error {
	err := q.subscribe(h, sub.topic)
	if err == nil {
		return nil
	}

	if q.superseded(h) {
		q.opts.logger.Debug().
			Err(err).
			Str("topic", sub.topic).
			Msg("receiving connection replaced during subscribe, deferring to replay")

		return nil
	}

	q.subs.remove(sub)

	return err
}

// Ack acknowledges the delivery carried by msg.
func (q *AMQPQueue) Ack(msg Message) error {
	if msg.Delivery == nil {
		return ErrNoDelivery
	}

	return msg.Delivery.Ack()
}

// Nack rejects the delivery carried by msg, optionally requeueing it.
func (q *AMQPQueue) Nack(msg Message, requeue bool) error {
	if msg.Delivery == nil {
		return ErrNoDelivery
	}

	return msg.Delivery.Nack(requeue)
}

// Close releases both directions and stops the reconnect supervisor. Closing
// an already closed queue is a no-op.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.opts.logger.Debug().Str("queue", q.cfg.Name).Msg("queue already closed")

		return nil
	}

	q.closed = true
	handles := q.detachAllLocked()
	q.mu.Unlock()

	q.cancel()

	var errs []error
	for _, h := range handles {
		if err := h.shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s connection: %w", h.direction, err))
		}
	}

	q.opts.logger.Info().Str("queue", q.cfg.Name).Msg("queue closed")

	return errors.Join(errs...)
}

// Ping reports whether every configured direction holds a live channel.
func (q *AMQPQueue) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, dir := range q.configuredDirections() {
		h, err := q.current(dir)
		if err != nil {
			return err
		}

		if h.ch.isClosed() {
			return fmt.Errorf("%s: %w", dir, ErrTransportClosed)
		}
	}

	return nil
}

func (q *AMQPQueue) configuredDirections() []Direction {
	var dirs []Direction

	for _, dir := range []Direction{RX, TX} {
		if q.cfg.endpoint(dir).IsSet() {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// open runs the setup sequence of one direction.
func (q *AMQPQueue) open(ctx context.Context, dir Direction) (*channelHandle, error) {
	addr := q.cfg.endpoint(dir).Addr()
	if addr == "" {
		return nil, newConnectionError(dir, "", ErrNoEndpoint)
	}

	if err := ctx.Err(); err != nil {
		return nil, newConnectionError(dir, addr, err)
	}

	conn, err := q.opts.dial(addr)
	if err != nil {
		return nil, newConnectionError(dir, addr, err)
	}

	raw, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, newConnectionError(dir, addr, fmt.Errorf("failed to open channel: %w", err))
	}

	h := &channelHandle{
		direction: dir,
		url:       addr,
		conn:      conn,
		ch:        newChannelWrapper(raw),
	}

	if err := q.declare(h); err != nil {
		_ = h.shutdown()

		return nil, err
	}

	h.notify = h.ch.notifyClose()

	return h, nil
}

func (q *AMQPQueue) declare(h *channelHandle) error {
	if h.direction == RX && q.opts.prefetchCount > 0 {
		if err := h.ch.qos(q.opts.prefetchCount); err != nil {
			return fmt.Errorf("failed to set prefetch count: %w", err)
		}
	}

	// A broker-named queue belongs to the receiving connection only.
	if !(h.direction == TX && q.cfg.Queue.ServerNamed) {
		name := q.cfg.Name
		if q.cfg.Queue.ServerNamed {
			name = ""
		}

		declared, err := h.ch.declareQueue(name, q.cfg.Queue)
		if err != nil {
			return err
		}

		h.queueName = declared.Name
	}

	return h.ch.declareExchange(q.cfg.ExchangeName, q.cfg.Type, q.cfg.Exchange)
}

func (q *AMQPQueue) installLocked(h *channelHandle) {
	q.generation++
	h.generation = q.generation
	q.handles[h.direction] = h
}

func (q *AMQPQueue) detachAllLocked() []*channelHandle {
	var out []*channelHandle

	for _, dir := range []Direction{RX, TX} {
		if h, ok := q.handles[dir]; ok {
			out = append(out, h)
			delete(q.handles, dir)
		}
	}

	return out
}

func (q *AMQPQueue) current(dir Direction) (*channelHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.currentLocked(dir)
}

func (q *AMQPQueue) currentLocked(dir Direction) (*channelHandle, error) {
	if q.closed {
		return nil, ErrClosed
	}

	h, ok := q.handles[dir]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotConnected)
	}

	return h, nil
}

func (q *AMQPQueue) connected(dir Direction) bool {
	_, err := q.current(dir)

	return err == nil
}

// superseded reports whether h is no longer the live receiving handle while the
// queue itself is still open.
func (q *AMQPQueue) superseded(h *channelHandle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	cur, ok := q.handles[h.direction]

	return !ok || cur.generation != h.generation
}

// subscribe binds topic on h and makes sure h has its consumer running.
func (q *AMQPQueue) subscribe(h *channelHandle, topic string) error {
	if err := h.ch.bind(h.queueName, topic, q.cfg.ExchangeName); err != nil {
		return err
	}

	return q.startConsumer(h)
}

// startConsumer registers the one consumer of h. A failed attempt leaves h
// without a consumer so the next subscription retries.
func (q *AMQPQueue) startConsumer(h *channelHandle) error {
	h.consumeMu.Lock()
	defer h.consumeMu.Unlock()

	if h.consuming {
		return nil
	}

	tag := fmt.Sprintf("%s-%s", q.cfg.Name, uuid.NewString())

	deliveries, err := h.ch.consume(h.queueName, tag)
	if err != nil {
		return fmt.Errorf("failed to consume from queue %q: %w", h.queueName, err)
	}

	h.consuming = true

	q.opts.logger.Debug().
		Str("queue", h.queueName).
		Str("consumer", tag).
		Msg("consumer registered")

	go q.consume(deliveries)

	return nil
}

func (q *AMQPQueue) replay(h *channelHandle, topics []string) error {
	for _, topic := range topics {
		if err := q.subscribe(h, topic); err != nil {
			return fmt.Errorf("failed to restore subscription on topic %q: %w", topic, err)
		}
	}

	if len(topics) > 0 {
		q.opts.logger.Info().Int("topics", len(topics)).Msg("subscriptions restored")
	}

	return nil
}

// consume drains one consumer until its channel is closed.
func (q *AMQPQueue) consume(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		q.deliver(d)
	}
}

func (q *AMQPQueue) deliver(d amqp.Delivery) {
	ctx := extractHeaders(q.ctx, d.Headers)

	ctx, span := startSpan(ctx, q.opts.tracer, "process", backendAMQP, d.RoutingKey, trace.SpanKindConsumer)
	defer span.End()

	settle := newDelivery(&amqpDeliveryAdapter{Delivery: d})

	if q.cfg.AutoAck {
		if err := settle.Ack(); err != nil {
			q.opts.logger.Warn().Err(err).Str("topic", d.RoutingKey).Msg("failed to auto-acknowledge delivery")
		}
	}

	msg, err := decodeMessage(d.RoutingKey, d.Body)
	if err != nil {
		q.opts.metrics.recordDecodeFailure(backendAMQP)
		q.opts.logger.Error().Err(err).Str("topic", d.RoutingKey).Msg("dropping undecodable message")
		span.RecordError(err)
		q.reject(settle, false)

		return
	}

	msg.Delivery = settle

	handlers := q.subs.match(q.cfg.Type, d.RoutingKey)
	if len(handlers) == 0 {
		q.opts.metrics.recordUnrouted(backendAMQP)
		q.opts.logger.Debug().Str("topic", d.RoutingKey).Msg("no handler registered for topic")
		// Another consumer of the shared queue may own the topic; give it one chance.
		q.reject(settle, !d.Redelivered)

		return
	}

	q.opts.metrics.recordDelivery(backendAMQP)

	if dispatch(ctx, q.opts.logger, handlers, msg) {
		q.reject(settle, !d.Redelivered)
	}
}

// reject nacks a delivery nobody settled when acknowledgement is manual.
func (q *AMQPQueue) reject(d *settleOnce, requeue bool) {
	if q.cfg.AutoAck || d.isSettled() {
		return
	}

	if err := d.Nack(requeue); err != nil && !errors.Is(err, ErrAlreadySettled) {
		q.opts.logger.Warn().Err(err).Msg("failed to reject delivery")
	}
}

// supervise waits for the close notification of h and rebuilds its direction
// when the broker closed it. Closures we initiated deliver no error.
func (q *AMQPQueue) supervise(h *channelHandle) {
	amqpErr, ok := <-h.notify
	if !ok || amqpErr == nil {
		return
	}

	if !q.detach(h) {
		return
	}

	q.opts.logger.Warn().
		Str("direction", string(h.direction)).
		Int("code", amqpErr.Code).
		Str("reason", amqpErr.Reason).
		Msg("channel closed by broker, reconnecting")

	_ = h.shutdown()

	q.reconnect(h.direction)
}

// detach removes h if it is still the live handle of its direction. A stale
// generation means a newer connection already replaced it.
func (q *AMQPQueue) detach(h *channelHandle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	cur, ok := q.handles[h.direction]
	if !ok || cur.generation != h.generation {
		return false
	}

	delete(q.handles, h.direction)

	return true
}

func (q *AMQPQueue) reconnect(dir Direction) {
	var lastErr error

	for attempt := 0; attempt < q.opts.maxReconnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(q.opts.reconnect.Backoff(attempt - 1)):
			}
		}

		h, err := q.open(q.ctx, dir)
		q.opts.metrics.recordReconnect(dir, err)

		if err != nil {
			lastErr = err
			q.opts.logger.Warn().Err(err).Str("direction", string(dir)).Int("attempt", attempt+1).Msg("reconnect attempt failed")

			continue
		}

		q.mu.Lock()
		if _, taken := q.handles[dir]; taken || q.closed {
			q.mu.Unlock()
			_ = h.shutdown()

			return
		}

		q.installLocked(h)

		var pending []string
		if dir == RX {
			pending = q.subs.topics()
		}
		q.mu.Unlock()

		go q.supervise(h)

		q.opts.logger.Info().Str("direction", string(dir)).Int("attempt", attempt+1).Msg("reconnected to broker")

		if dir == RX {
			if err := q.replay(h, pending); err != nil {
				q.opts.logger.Error().Err(err).Msg("failed to restore subscriptions after reconnect")
			}
		}

		return
	}

	q.opts.logger.Error().Err(lastErr).Str("direction", string(dir)).Msg("giving up reconnecting")
}

func shutdownAll(handles []*channelHandle) {
	for _, h := range handles {
		if h != nil {
			_ = h.shutdown()
		}
	}
}
