package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is used mainly to be able to generate mocks for the AMQP behavior.
type amqpChannel interface {
	io.Closer

	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
}

// amqpConnection is the part of *amqp.Connection the queue relies on.
type amqpConnection interface {
	io.Closer

	Channel() (amqpChannel, error)
	IsClosed() bool
}

type dialer func(url string) (amqpConnection, error)

type connectionAdapter struct {
	*amqp.Connection
}

func (c connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func amqpDialer(timeout time.Duration) dialer {
	return func(url string) (amqpConnection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial: amqp.DefaultDial(timeout),
		})
		if err != nil {
			return nil, err
		}

		return connectionAdapter{Connection: conn}, nil
	}
}

// ChannelWrapper serializes access to one amqp091-go channel and remembers
// whether it was closed on purpose.
type ChannelWrapper struct {
	amqpChan amqpChannel

	mutex  sync.Mutex
	closed atomic.Bool
}

func newChannelWrapper(ch amqpChannel) *ChannelWrapper {
	return &ChannelWrapper{amqpChan: ch}
}

// Close is a wrapper around amqp091-go.Channel.Close method, which closes a channel.
func (ch *ChannelWrapper) Close() error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if ch.isClosed() {
		return amqp.ErrClosed
	}

	ch.closed.Store(true)

	return ch.amqpChan.Close()
}

func (ch *ChannelWrapper) isClosed() bool {
	return ch.closed.Load()
}

func (ch *ChannelWrapper) notifyClose() chan *amqp.Error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.amqpChan.NotifyClose(make(chan *amqp.Error, 1))
}

func (ch *ChannelWrapper) qos(prefetchCount int) error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.amqpChan.Qos(prefetchCount, 0, false)
}

func (ch *ChannelWrapper) declareQueue(name string, opts QueueOptions) (amqp.Queue, error) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	exclusive := opts.Exclusive || opts.ServerNamed
	autoDelete := opts.AutoDelete || opts.ServerNamed

	q, err := ch.amqpChan.QueueDeclare(name, opts.Durable, autoDelete, exclusive, false, opts.Args)
	if err != nil {
		return amqp.Queue{}, &TopologyError{Entity: "queue", Name: name, Err: err}
	}

	return q, nil
}

func (ch *ChannelWrapper) declareExchange(name, kind string, opts ExchangeOptions) error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	err := ch.amqpChan.ExchangeDeclare(name, kind, opts.Durable, opts.AutoDelete, opts.Internal, false, opts.Args)
	if err != nil {
		return &TopologyError{Entity: "exchange", Name: name, Err: err}
	}

	return nil
}

func (ch *ChannelWrapper) bind(queue, key, exchange string) error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if err := ch.amqpChan.QueueBind(queue, key, exchange, false, nil); err != nil {
		return &TopologyError{Entity: "binding", Name: queue + "->" + exchange + ":" + key, Err: err}
	}

	return nil
}

func (ch *ChannelWrapper) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	err := ch.amqpChan.PublishWithContext(ctx, exchange, key, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		return errors.Join(ErrTransportClosed, err)
	}

	return err
}

// consume never asks the broker to auto-acknowledge; AutoAck is applied by the
// consumer loop so every delivery goes through the same settlement path.
func (ch *ChannelWrapper) consume(queue, consumer string) (<-chan amqp.Delivery, error) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.amqpChan.Consume(queue, consumer, false, false, false, false, nil)
}

// channelHandle owns the connection and channel of one direction.
type channelHandle struct {
	direction  Direction
	url        string
	generation uint64
	conn       amqpConnection
	ch         *ChannelWrapper
	queueName  string
	notify     chan *amqp.Error

	consumeMu sync.Mutex
	consuming bool
}

// shutdown releases the channel then the connection. Already-closed resources
// are not reported.
func (h *channelHandle) shutdown() error {
	var errs []error

	if h.ch != nil {
		if err := h.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	if h.conn != nil && !h.conn.IsClosed() {
		if err := h.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
