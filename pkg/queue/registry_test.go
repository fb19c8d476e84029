package queue

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{pattern: "orders.created", key: "orders.created", want: true},
		{pattern: "orders.created", key: "orders.deleted", want: false},
		{pattern: "orders.*", key: "orders.created", want: true},
		{pattern: "orders.*", key: "orders", want: false},
		{pattern: "orders.*", key: "orders.eu.created", want: false},
		{pattern: "orders.#", key: "orders", want: true},
		{pattern: "orders.#", key: "orders.eu.created", want: true},
		{pattern: "#", key: "anything.at.all", want: true},
		{pattern: "#.created", key: "orders.eu.created", want: true},
		{pattern: "#.created", key: "orders.eu.deleted", want: false},
		{pattern: "*.eu.*", key: "orders.eu.created", want: true},
		{pattern: "*.eu.*", key: "orders.us.created", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, topicMatches(tt.pattern, tt.key))
		})
	}
}

func TestRegistry_Match(t *testing.T) {
	t.Parallel()

	r := newRegistry()

	var calls []string
	handler := func(name string) Handler {
		return func(context.Context, Message) { calls = append(calls, name) }
	}

	r.add("orders.created", handler("exact"))
	r.add("orders.*", handler("wildcard"))
	r.add("orders.created", handler("exact-again"))

	for _, h := range r.match(amqp.ExchangeDirect, "orders.created") {
		h(context.Background(), Message{})
	}

	assert.Equal(t, []string{"exact", "exact-again"}, calls, "direct routing ignores wildcards")

	calls = nil
	for _, h := range r.match(amqp.ExchangeTopic, "orders.created") {
		h(context.Background(), Message{})
	}

	assert.Equal(t, []string{"exact", "wildcard", "exact-again"}, calls, "handlers keep registration order")
	assert.Empty(t, r.match(amqp.ExchangeDirect, "payments.created"))
}

func TestRegistry_RemoveAndTopics(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	noop := func(context.Context, Message) {}

	a := r.add("a", noop)
	r.add("b", noop)
	r.add("a", noop)

	assert.Equal(t, []string{"a", "b"}, r.topics())
	assert.Len(t, r.match("", "a"), 2)

	r.remove(a)

	assert.Len(t, r.match("", "a"), 1)
	assert.Equal(t, []string{"b", "a"}, r.topics())

	r.remove(a)
	assert.Len(t, r.match("", "a"), 1, "removing twice is a no-op")
}
