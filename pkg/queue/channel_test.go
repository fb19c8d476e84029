package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChannelWrapper_Close(t *testing.T) {
	t.Parallel()

	mockChannel := &MockamqpChannel{}
	mockChannel.On("Close").Return(nil).Once()

	wrapper := newChannelWrapper(mockChannel)

	err := wrapper.Close()
	require.NoError(t, err)
	assert.True(t, wrapper.isClosed())

	err = wrapper.Close()
	assert.Equal(t, amqp.ErrClosed, err)

	mockChannel.AssertExpectations(t)
}

func TestChannelWrapper_DeclareQueue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		queue          string
		opts           QueueOptions
		wantAutoDelete bool
		wantExclusive  bool
	}{
		{
			name:  "durable named queue",
			queue: "jobs",
			opts:  QueueOptions{Durable: true},
		},
		{
			name:           "server named queue is exclusive",
			queue:          "",
			opts:           QueueOptions{ServerNamed: true},
			wantAutoDelete: true,
			wantExclusive:  true,
		},
		{
			name:          "explicit exclusive",
			queue:         "mine",
			opts:          QueueOptions{Exclusive: true},
			wantExclusive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expected := amqp.Queue{Name: tt.queue}
			if expected.Name == "" {
				expected.Name = "amq.gen-abc"
			}

			mockChannel := &MockamqpChannel{}
			mockChannel.On("QueueDeclare", tt.queue, tt.opts.Durable, tt.wantAutoDelete, tt.wantExclusive, false, amqp.Table(nil)).
				Return(expected, nil)

			queue, err := newChannelWrapper(mockChannel).declareQueue(tt.queue, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, expected, queue)

			mockChannel.AssertExpectations(t)
		})
	}
}

func TestChannelWrapper_DeclareExchange_Error(t *testing.T) {
	t.Parallel()

	conflict := &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED"}

	mockChannel := &MockamqpChannel{}
	mockChannel.On("ExchangeDeclare", "events", amqp.ExchangeTopic, true, false, false, false, amqp.Table(nil)).
		Return(conflict)

	err := newChannelWrapper(mockChannel).declareExchange("events", amqp.ExchangeTopic, ExchangeOptions{Durable: true})

	var topoErr *TopologyError
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, "exchange", topoErr.Entity)
	assert.Equal(t, "events", topoErr.Name)
	require.ErrorIs(t, err, conflict)

	mockChannel.AssertExpectations(t)
}

func TestChannelWrapper_Bind(t *testing.T) {
	t.Parallel()

	mockChannel := &MockamqpChannel{}
	mockChannel.On("QueueBind", "jobs", "job.created", "events", false, amqp.Table(nil)).Return(nil).Once()
	mockChannel.On("QueueBind", "jobs", "job.deleted", "events", false, amqp.Table(nil)).Return(errors.New("not found")).Once()

	wrapper := newChannelWrapper(mockChannel)

	require.NoError(t, wrapper.bind("jobs", "job.created", "events"))

	var topoErr *TopologyError
	require.ErrorAs(t, wrapper.bind("jobs", "job.deleted", "events"), &topoErr)
	assert.Equal(t, "binding", topoErr.Entity)

	mockChannel.AssertExpectations(t)
}

func TestChannelWrapper_Publish(t *testing.T) {
	t.Parallel()

	publishing := amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(`["test"]`),
	}

	mockChannel := &MockamqpChannel{}
	mockChannel.On("PublishWithContext", mock.Anything, "events", "test.key", false, false, publishing).Return(nil).Once()
	mockChannel.On("PublishWithContext", mock.Anything, "events", "closed.key", false, false, publishing).Return(amqp.ErrClosed).Once()

	wrapper := newChannelWrapper(mockChannel)

	require.NoError(t, wrapper.publish(context.Background(), "events", "test.key", publishing))

	err := wrapper.publish(context.Background(), "events", "closed.key", publishing)
	require.ErrorIs(t, err, ErrTransportClosed)
	require.ErrorIs(t, err, amqp.ErrClosed)

	mockChannel.AssertExpectations(t)
}

func TestChannelWrapper_ConsumeNeverAutoAcks(t *testing.T) {
	t.Parallel()

	deliveries := make(chan amqp.Delivery)

	mockChannel := &MockamqpChannel{}
	mockChannel.On("Consume", "jobs", "jobs-1", false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	got, err := newChannelWrapper(mockChannel).consume("jobs", "jobs-1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	mockChannel.AssertExpectations(t)
}

func TestChannelHandle_Shutdown(t *testing.T) {
	t.Parallel()

	t.Run("already closed resources are ignored", func(t *testing.T) {
		t.Parallel()

		b := newFakeBroker()
		conn, err := b.dial(rxURL)
		require.NoError(t, err)

		raw, err := conn.Channel()
		require.NoError(t, err)

		h := &channelHandle{conn: conn, ch: newChannelWrapper(raw)}

		require.NoError(t, h.shutdown())
		require.NoError(t, h.shutdown())
		assert.True(t, conn.IsClosed())
	})

	t.Run("channel failure is reported", func(t *testing.T) {
		t.Parallel()

		mockChannel := &MockamqpChannel{}
		mockChannel.On("Close").Return(errors.New("frame error"))

		h := &channelHandle{ch: newChannelWrapper(mockChannel)}

		require.EqualError(t, h.shutdown(), "frame error")
	})
}

type MockamqpChannel struct {
	mock.Mock
}

func (m *MockamqpChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockamqpChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	callArgs := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	return callArgs.Get(0).(<-chan amqp.Delivery), callArgs.Error(1)
}

func (m *MockamqpChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	callArgs := m.Called(name, kind, durable, autoDelete, internal, noWait, args)
	return callArgs.Error(0)
}

func (m *MockamqpChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	args := m.Called(c)
	return args.Get(0).(chan *amqp.Error)
}

func (m *MockamqpChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	callArgs := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return callArgs.Error(0)
}

func (m *MockamqpChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	callArgs := m.Called(name, key, exchange, noWait, args)
	return callArgs.Error(0)
}

func (m *MockamqpChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	callArgs := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return callArgs.Get(0).(amqp.Queue), callArgs.Error(1)
}

func (m *MockamqpChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	callArgs := m.Called(prefetchCount, prefetchSize, global)
	return callArgs.Error(0)
}
