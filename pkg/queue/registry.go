package queue

import (
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type subscription struct {
	topic   string
	handler Handler
}

// registry maps topics to their handlers in registration order. It survives
// reconnects so subscriptions can be replayed on a fresh channel.
type registry struct {
	mu   sync.RWMutex
	subs []*subscription
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) add(topic string, h Handler) *subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscription{topic: topic, handler: h}
	r.subs = append(r.subs, sub)

	return sub
}

func (r *registry) remove(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s == sub {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)

			return
		}
	}
}

// topics returns the distinct subscribed topics in first-registration order.
func (r *registry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.subs))
	out := make([]string, 0, len(r.subs))

	for _, s := range r.subs {
		if _, ok := seen[s.topic]; ok {
			continue
		}

		seen[s.topic] = struct{}{}
		out = append(out, s.topic)
	}

	return out
}

// match returns the handlers whose topic routes key. Topic exchanges honour
// the AMQP wildcards, every other kind matches the key exactly.
func (r *registry) match(kind, key string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handler

	for _, s := range r.subs {
		if s.topic == key || (kind == amqp.ExchangeTopic && topicMatches(s.topic, key)) {
			out = append(out, s.handler)
		}
	}

	return out
}

// topicMatches implements AMQP topic binding semantics: words are separated by
// dots, "*" matches exactly one word and "#" matches zero or more words.
func topicMatches(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}

			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}

			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}

		pattern, key = pattern[1:], key[1:]
	}

	return len(key) == 0
}
