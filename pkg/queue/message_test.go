package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Bind(t *testing.T) {
	t.Parallel()

	msg, err := decodeMessage("user.created", []byte(`[{"name":"test","age":25}, 7]`))
	require.NoError(t, err)

	var user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	require.NoError(t, msg.Bind(0, &user))
	assert.Equal(t, "test", user.Name)
	assert.Equal(t, 25, user.Age)

	var n int64
	require.NoError(t, msg.Bind(1, &n))
	assert.Equal(t, int64(7), n)

	require.Error(t, msg.Bind(2, &n), "out of range")
	require.Error(t, msg.Bind(0, user), "target must be a pointer")
	require.Error(t, msg.Bind(1, &user), "type mismatch")
}

func TestMessage_BindWithoutRawPayload(t *testing.T) {
	t.Parallel()

	msg := Message{Topic: "t", Args: []any{map[string]any{"name": "test"}}}

	var target map[string]string
	require.NoError(t, msg.Bind(0, &target))
	assert.Equal(t, map[string]string{"name": "test"}, target)
}

func TestMessage_RawArgs(t *testing.T) {
	t.Parallel()

	decoded, err := decodeMessage("t", []byte(`[{"b":1,"a":2}, "x"]`))
	require.NoError(t, err)

	raw, err := decoded.RawArgs()
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.JSONEq(t, `{"b":1,"a":2}`, string(raw[0]))
	assert.Equal(t, `"x"`, string(raw[1]))

	built := Message{Topic: "t", Args: []any{map[string]int{"n": 1}, true}}

	raw, err = built.RawArgs()
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(raw[0]))
	assert.Equal(t, `true`, string(raw[1]))

	_, err = Message{Args: []any{make(chan int)}}.RawArgs()
	require.Error(t, err)
}

func TestSettleOnce(t *testing.T) {
	t.Parallel()

	t.Run("ack once", func(t *testing.T) {
		t.Parallel()

		mockDelivery := &MockDelivery{}
		mockDelivery.On("Ack", false).Return(nil).Once()

		d := newDelivery(mockDelivery)

		require.NoError(t, d.Ack())
		assert.True(t, d.isSettled())
		require.ErrorIs(t, d.Ack(), ErrAlreadySettled)
		require.ErrorIs(t, d.Nack(true), ErrAlreadySettled)

		mockDelivery.AssertExpectations(t)
	})

	t.Run("nack with requeue", func(t *testing.T) {
		t.Parallel()

		mockDelivery := &MockDelivery{}
		mockDelivery.On("Nack", false, true).Return(nil).Once()

		d := newDelivery(mockDelivery)

		require.NoError(t, d.Nack(true))
		assert.True(t, d.isSettled())

		mockDelivery.AssertExpectations(t)
	})

	t.Run("failed ack can be retried", func(t *testing.T) {
		t.Parallel()

		mockDelivery := &MockDelivery{}
		mockDelivery.On("Ack", false).Return(errors.New("channel closed")).Once()
		mockDelivery.On("Ack", false).Return(nil).Once()

		d := newDelivery(mockDelivery)

		require.Error(t, d.Ack())
		assert.False(t, d.isSettled())
		require.NoError(t, d.Ack())

		mockDelivery.AssertExpectations(t)
	})

	t.Run("delivery metadata", func(t *testing.T) {
		t.Parallel()

		mockDelivery := &MockDelivery{}
		mockDelivery.On("GetDeliveryTag").Return(uint64(12))
		mockDelivery.On("IsRedelivered").Return(true)

		d := newDelivery(mockDelivery)

		assert.Equal(t, uint64(12), d.Tag())
		assert.True(t, d.Redelivered())
	})
}
