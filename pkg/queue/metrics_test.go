package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	assert.NotPanics(t, func() {
		m.recordPublish(backendAMQP, nil)
		m.recordDelivery(backendAMQP)
		m.recordDecodeFailure(backendAMQP)
		m.recordUnrouted(backendAMQP)
		m.recordReconnect(RX, errors.New("x"))
	})
}

func TestAMQPQueue_RecordsMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newFakeBroker()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	sender := newTestAMQP(t, b, Config{TX: Address(txURL)}, WithMetrics(m))
	receiver := newTestAMQP(t, b, Config{RX: Address(rxURL), AutoAck: true}, WithMetrics(m))

	require.NoError(t, sender.Connect(ctx))
	require.NoError(t, receiver.Connect(ctx))

	rec := &recorder{}
	require.NoError(t, receiver.On("greet", rec.handle))

	require.NoError(t, sender.Emit(ctx, "greet", "hello"))
	require.Error(t, sender.Emit(ctx, "greet", make(chan int)))
	b.publish(DefaultName, "greet", []byte("garbage"))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.decodeFailures.WithLabelValues(backendAMQP)) == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	assert.InDelta(t, 1, testutil.ToFloat64(m.published.WithLabelValues(backendAMQP, outcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.published.WithLabelValues(backendAMQP, outcomeFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.delivered.WithLabelValues(backendAMQP)), 0)

	b.kill(rxURL)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.reconnects.WithLabelValues(string(RX), outcomeSuccess)) == 1
	}, waitFor, tick)
}
