package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker is an in-memory AMQP broker good enough to exercise routing,
// acknowledgement and forced closes without a server.
type fakeBroker struct {
	mu sync.Mutex

	exchanges map[string]*fakeExchange
	queues    map[string]*fakeQueue
	unacked   map[uint64]*fakePending
	conns     []*fakeConn
	dials     []string

	dialErr    error
	failDials  int
	publishErr error

	nextQueue int
	nextTag   uint64
}

type fakeExchange struct {
	kind     string
	durable  bool
	bindings []fakeBinding
}

type fakeBinding struct {
	queue string
	key   string
}

type fakeQueue struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
	owner      *fakeChannel
	ready      []amqp.Delivery
	consumers  []*fakeConsumer
	next       int
}

type fakeConsumer struct {
	tag     string
	autoAck bool
	ch      *fakeChannel
	out     chan amqp.Delivery
}

type fakePending struct {
	queue    string
	ch       *fakeChannel
	delivery amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: make(map[string]*fakeExchange),
		queues:    make(map[string]*fakeQueue),
		unacked:   make(map[uint64]*fakePending),
	}
}

func (b *fakeBroker) dial(url string) (amqpConnection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials = append(b.dials, url)

	if b.dialErr != nil {
		return nil, b.dialErr
	}

	if b.failDials > 0 {
		b.failDials--

		return nil, fmt.Errorf("dial %s: connection refused", url)
	}

	conn := &fakeConn{broker: b, url: url}
	b.conns = append(b.conns, conn)

	return conn, nil
}

func (b *fakeBroker) dialCount(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, d := range b.dials {
		if d == url {
			n++
		}
	}

	return n
}

func (b *fakeBroker) connections() []*fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*fakeConn, len(b.conns))
	copy(out, b.conns)

	return out
}

func (b *fakeBroker) setFailDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failDials = n
}

func (b *fakeBroker) setPublishErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.publishErr = err
}

// kill force-closes every open connection dialed to url the way a broker
// restart would: listeners receive an error before their channel closes.
func (b *fakeBroker) kill(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, conn := range b.conns {
		if conn.url != url || conn.closed {
			continue
		}

		conn.closed = true

		for _, ch := range conn.channels {
			b.closeChannelLocked(ch, &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED - broker forced connection closure", Server: true})
		}
	}
}

func (b *fakeBroker) queue(name string) (fakeQueue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return fakeQueue{}, false
	}

	return *q, true
}

func (b *fakeBroker) exchange(name string) (fakeExchange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ex, ok := b.exchanges[name]
	if !ok {
		return fakeExchange{}, false
	}

	return *ex, true
}

func (b *fakeBroker) readyCount(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return 0
	}

	return len(q.ready)
}

func (b *fakeBroker) unackedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.unacked)
}

// publish injects a raw message as if another client sent it.
func (b *fakeBroker) publish(exchange, key string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.routeLocked(exchange, key, amqp.Publishing{Body: body})
}

func (b *fakeBroker) routeLocked(exchange, key string, msg amqp.Publishing) {
	var targets []string

	if exchange == "" {
		targets = []string{key}
	} else if ex, ok := b.exchanges[exchange]; ok {
		seen := make(map[string]bool)

		for _, bd := range ex.bindings {
			if seen[bd.queue] {
				continue
			}

			matched := false

			switch ex.kind {
			case amqp.ExchangeFanout:
				matched = true
			case amqp.ExchangeTopic:
				matched = topicMatches(bd.key, key)
			default:
				matched = bd.key == key
			}

			if matched {
				seen[bd.queue] = true
				targets = append(targets, bd.queue)
			}
		}
	}

	for _, name := range targets {
		q, ok := b.queues[name]
		if !ok {
			continue
		}

		q.ready = append(q.ready, amqp.Delivery{
			Headers:      msg.Headers,
			ContentType:  msg.ContentType,
			DeliveryMode: msg.DeliveryMode,
			Timestamp:    msg.Timestamp,
			Exchange:     exchange,
			RoutingKey:   key,
			Body:         msg.Body,
		})

		b.pumpLocked(q)
	}
}

func (b *fakeBroker) pumpLocked(q *fakeQueue) {
	for len(q.ready) > 0 && len(q.consumers) > 0 {
		d := q.ready[0]
		q.ready = q.ready[1:]

		c := q.consumers[q.next%len(q.consumers)]
		q.next++

		b.nextTag++
		d.DeliveryTag = b.nextTag
		d.ConsumerTag = c.tag
		d.Acknowledger = c.ch

		if !c.autoAck {
			b.unacked[d.DeliveryTag] = &fakePending{queue: q.name, ch: c.ch, delivery: d}
		}

		c.out <- d
	}
}

func (b *fakeBroker) requeueLocked(p *fakePending) {
	q, ok := b.queues[p.queue]
	if !ok {
		return
	}

	d := p.delivery
	d.Redelivered = true
	d.Acknowledger = nil
	q.ready = append([]amqp.Delivery{d}, q.ready...)

	b.pumpLocked(q)
}

// closeChannelLocked tears a channel down. A nil reason is a client-initiated
// close: listeners see their channel closed without an error.
func (b *fakeBroker) closeChannelLocked(ch *fakeChannel, reason *amqp.Error) {
	if ch.closed {
		return
	}

	ch.closed = true

	for _, q := range b.queues {
		kept := q.consumers[:0]

		for _, c := range q.consumers {
			if c.ch == ch {
				close(c.out)

				continue
			}

			kept = append(kept, c)
		}

		q.consumers = kept
	}

	for tag, p := range b.unacked {
		if p.ch == ch {
			delete(b.unacked, tag)
			b.requeueLocked(p)
		}
	}

	for name, q := range b.queues {
		if q.owner == ch && q.exclusive {
			delete(b.queues, name)
			b.unbindLocked(name)
		}
	}

	for _, n := range ch.notify {
		if reason != nil {
			select {
			case n <- reason:
			default:
			}
		}

		close(n)
	}

	ch.notify = nil
}

func (b *fakeBroker) unbindLocked(queue string) {
	for _, ex := range b.exchanges {
		kept := ex.bindings[:0]

		for _, bd := range ex.bindings {
			if bd.queue != queue {
				kept = append(kept, bd)
			}
		}

		ex.bindings = kept
	}
}

type fakeConn struct {
	broker   *fakeBroker
	url      string
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (amqpChannel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}

	ch := &fakeChannel{broker: c.broker, conn: c}
	c.channels = append(c.channels, ch)

	return ch, nil
}

func (c *fakeConn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return amqp.ErrClosed
	}

	c.closed = true

	for _, ch := range c.channels {
		c.broker.closeChannelLocked(ch, nil)
	}

	return nil
}

func (c *fakeConn) IsClosed() bool {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	return c.closed
}

type fakeChannel struct {
	broker *fakeBroker
	conn   *fakeConn
	closed bool
	notify []chan *amqp.Error
	qos    int
}

var (
	_ amqpChannel       = (*fakeChannel)(nil)
	_ amqp.Acknowledger = (*fakeChannel)(nil)
)

func (ch *fakeChannel) Close() error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	ch.broker.closeChannelLocked(ch, nil)

	return nil
}

// fail closes the channel with a channel-level exception, as the broker does
// on a precondition failure.
func (ch *fakeChannel) failLocked(code int, reason string) error {
	err := &amqp.Error{Code: code, Reason: reason, Server: true}
	ch.broker.closeChannelLocked(ch, err)

	return err
}

func (ch *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	if ch.closed {
		close(c)

		return c
	}

	ch.notify = append(ch.notify, c)

	return c
}

func (ch *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()

	ch.qos = prefetchCount

	return nil
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if ex, ok := b.exchanges[name]; ok {
		if ex.kind != kind || ex.durable != durable {
			return ch.failLocked(amqp.PreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg 'type' for exchange '%s'", name))
		}

		return nil
	}

	b.exchanges[name] = &fakeExchange{kind: kind, durable: durable}

	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}

	if name == "" {
		b.nextQueue++
		name = fmt.Sprintf("amq.gen-%d", b.nextQueue)
	}

	if q, ok := b.queues[name]; ok {
		if q.durable != durable || q.exclusive != exclusive {
			return amqp.Queue{}, ch.failLocked(amqp.PreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg 'durable' for queue '%s'", name))
		}

		return amqp.Queue{Name: name, Messages: len(q.ready), Consumers: len(q.consumers)}, nil
	}

	b.queues[name] = &fakeQueue{
		name:       name,
		durable:    durable,
		autoDelete: autoDelete,
		exclusive:  exclusive,
		owner:      ch,
	}

	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	ex, ok := b.exchanges[exchange]
	if !ok {
		return ch.failLocked(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s'", exchange))
	}

	if _, ok := b.queues[name]; !ok {
		return ch.failLocked(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", name))
	}

	for _, bd := range ex.bindings {
		if bd.queue == name && bd.key == key {
			return nil
		}
	}

	ex.bindings = append(ex.bindings, fakeBinding{queue: name, key: key})

	return nil
}

func (ch *fakeChannel) Consume(queue, consumer string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return nil, amqp.ErrClosed
	}

	q, ok := b.queues[queue]
	if !ok {
		return nil, ch.failLocked(amqp.NotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", queue))
	}

	c := &fakeConsumer{tag: consumer, autoAck: autoAck, ch: ch, out: make(chan amqp.Delivery, 1024)}
	q.consumers = append(q.consumers, c)

	b.pumpLocked(q)

	return c.out, nil
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	if b.publishErr != nil {
		return b.publishErr
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.routeLocked(exchange, key, msg)

	return nil
}

func (ch *fakeChannel) Ack(tag uint64, _ bool) error {
	return ch.settle(tag, func(*fakePending) {})
}

func (ch *fakeChannel) Nack(tag uint64, _ bool, requeue bool) error {
	return ch.settle(tag, func(p *fakePending) {
		if requeue {
			ch.broker.requeueLocked(p)
		}
	})
}

func (ch *fakeChannel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}

func (ch *fakeChannel) settle(tag uint64, fn func(*fakePending)) error {
	b := ch.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	p, ok := b.unacked[tag]
	if !ok || p.ch != ch {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: fmt.Sprintf("PRECONDITION_FAILED - unknown delivery tag %d", tag)}
	}

	delete(b.unacked, tag)
	fn(p)

	return nil
}
