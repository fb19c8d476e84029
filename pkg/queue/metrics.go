package queue

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "pubsub"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the queue collectors. A nil *Metrics records nothing.
type Metrics struct {
	published      *prometheus.CounterVec
	delivered      *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	unrouted       *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_published_total",
			Help:      "Total number of emitted messages.",
		}, []string{"backend", "outcome"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages handed to handlers.",
		}, []string{"backend"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_failures_total",
			Help:      "Total number of received payloads that could not be decoded.",
		}, []string{"backend"}),
		unrouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_unrouted_total",
			Help:      "Total number of received messages without a matching handler.",
		}, []string{"backend"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnects_total",
			Help:      "Total number of reconnection attempts by direction and outcome.",
		}, []string{"direction", "outcome"}),
	}

	for _, c := range []prometheus.Collector{m.published, m.delivered, m.decodeFailures, m.unrouted, m.reconnects} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register queue metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) recordPublish(backend string, err error) {
	if m == nil {
		return
	}

	m.published.WithLabelValues(backend, outcome(err)).Inc()
}

func (m *Metrics) recordDelivery(backend string) {
	if m == nil {
		return
	}

	m.delivered.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordDecodeFailure(backend string) {
	if m == nil {
		return
	}

	m.decodeFailures.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordUnrouted(backend string) {
	if m == nil {
		return
	}

	m.unrouted.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordReconnect(dir Direction, err error) {
	if m == nil {
		return
	}

	m.reconnects.WithLabelValues(string(dir), outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}

	return outcomeSuccess
}
