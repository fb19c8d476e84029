package domain

import (
	"encoding/json"
	"time"
)

// Outcome is how a listener settled one received message.
type Outcome string

const (
	// OutcomeAccepted messages passed validation and were not stored.
	OutcomeAccepted Outcome = "accepted"
	OutcomeStored   Outcome = "stored"
	// OutcomeRejected messages failed validation and are dropped.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed messages could not be stored and are handed back to the broker.
	OutcomeFailed Outcome = "failed"
)

type (
	// RecordResult describes what happened to one received message.
	RecordResult struct {
		Outcome  Outcome `json:"outcome"`
		ObjectID string  `json:"id,omitempty"`
		Reason   string  `json:"reason,omitempty"`
	}

	// EmitReceipt acknowledges that a message left the gateway. It does not
	// imply any subscriber received it.
	EmitReceipt struct {
		Topic     string    `json:"topic"`
		ArgCount  int       `json:"arg_count"`
		EmittedAt time.Time `json:"emitted_at"`
	}

	// MessageFilter narrows a search over stored messages.
	MessageFilter struct {
		Topic string
	}
)

// Requeue reports whether the broker should redeliver a message that ended with o.
func (o Outcome) Requeue() bool {
	return o == OutcomeFailed
}

// Settled reports whether a message that ended with o should be acknowledged.
func (o Outcome) Settled() bool {
	return o == OutcomeAccepted || o == OutcomeStored
}

// NewReceivedMessage copies args so the record does not alias a transport buffer.
func NewReceivedMessage(topic string, args []json.RawMessage, redelivered bool, receivedAt time.Time) *ReceivedMessage {
	copied := make([]json.RawMessage, len(args))
	for i, arg := range args {
		copied[i] = append(json.RawMessage(nil), arg...)
	}

	return &ReceivedMessage{
		Topic:       topic,
		Args:        copied,
		Redelivered: redelivered,
		ReceivedAt:  receivedAt,
	}
}

// Fields returns the filter understood by the mapper.
func (f MessageFilter) Fields() map[string]any {
	fields := make(map[string]any)
	if f.Topic != "" {
		fields["topic"] = f.Topic
	}

	return fields
}
