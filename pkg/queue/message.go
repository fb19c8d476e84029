package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// delivery interface for testing purposes
type delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	GetHeaders() amqp.Table
	IsRedelivered() bool
	GetDeliveryTag() uint64
}

// amqpDeliveryAdapter adapts amqp.Delivery to our delivery interface
type amqpDeliveryAdapter struct {
	amqp.Delivery
}

func (a *amqpDeliveryAdapter) GetHeaders() amqp.Table {
	return a.Headers
}

func (a *amqpDeliveryAdapter) IsRedelivered() bool {
	return a.Redelivered
}

func (a *amqpDeliveryAdapter) GetDeliveryTag() uint64 {
	return a.DeliveryTag
}

// Delivery is the handle of a received message that has not been settled yet.
type Delivery interface {
	Ack() error
	Nack(requeue bool) error
	Tag() uint64
	Redelivered() bool
}

// settleOnce makes sure a delivery is acknowledged at most once even when
// several handlers share it. A second settlement would close the channel.
type settleOnce struct {
	d       delivery
	mu      sync.Mutex
	settled bool
}

func newDelivery(d delivery) *settleOnce {
	return &settleOnce{d: d}
}

func (s *settleOnce) Ack() error {
	return s.settle(func() error { return s.d.Ack(false) })
}

func (s *settleOnce) Nack(requeue bool) error {
	return s.settle(func() error { return s.d.Nack(false, requeue) })
}

func (s *settleOnce) Tag() uint64 {
	return s.d.GetDeliveryTag()
}

func (s *settleOnce) Redelivered() bool {
	return s.d.IsRedelivered()
}

func (s *settleOnce) isSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settled
}

func (s *settleOnce) settle(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return ErrAlreadySettled
	}

	if err := fn(); err != nil {
		return err
	}

	s.settled = true

	return nil
}

// Message is one received emission: the topic it was routed by and the
// arguments restored in their original order.
type Message struct {
	Topic string
	Args  []any
	// Delivery is nil for transports without acknowledgement.
	Delivery Delivery

	raw []json.RawMessage
}

// Len returns the number of arguments.
func (m Message) Len() int {
	return len(m.Args)
}

// Bind parses argument i and stores the result in the value pointed to by target.
func (m Message) Bind(i int, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}

	if i < 0 || i >= len(m.Args) {
		return fmt.Errorf("argument %d out of range [0,%d)", i, len(m.Args))
	}

	data := []byte(nil)
	if i < len(m.raw) {
		data = m.raw[i]
	} else {
		var err error
		if data, err = json.Marshal(m.Args[i]); err != nil {
			return fmt.Errorf("could not marshal argument %d: %w", i, err)
		}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("could not unmarshal into target: %w", err)
	}

	return nil
}

// RawArgs returns every argument as it appeared on the wire. Arguments of a
// Message built in memory are marshalled on demand.
func (m Message) RawArgs() ([]json.RawMessage, error) {
	if len(m.raw) == len(m.Args) && m.raw != nil {
		out := make([]json.RawMessage, len(m.raw))
		copy(out, m.raw)

		return out, nil
	}

	out := make([]json.RawMessage, len(m.Args))
	for i, arg := range m.Args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("could not marshal argument %d: %w", i, err)
		}

		out[i] = data
	}

	return out, nil
}
