package domain

import (
	"encoding/json"
	"time"
)

const messagesCollection = "messages"

// ReceivedMessage is the stored record of one delivery seen by a listener.
type ReceivedMessage struct {
	ID          string            `json:"id,omitempty"`
	Topic       string            `json:"topic"`
	Args        []json.RawMessage `json:"args"`
	Redelivered bool              `json:"redelivered"`
	ReceivedAt  time.Time         `json:"received_at"`

	validationErr error
}

func (m *ReceivedMessage) ObjectID() string {
	return m.ID
}

func (m *ReceivedMessage) SetObjectID(id string) {
	m.ID = id
}

func (m *ReceivedMessage) CollectionName() string {
	return messagesCollection
}

// SchemaName validates each message against the schema registered for its topic.
func (m *ReceivedMessage) SchemaName() string {
	return m.Topic
}

// ValidationPayload validates the argument list only, so a topic schema
// describes a JSON array.
func (m *ReceivedMessage) ValidationPayload() any {
	return m.Args
}

func (m *ReceivedMessage) SetValidationError(err error) {
	m.validationErr = err
}

func (m *ReceivedMessage) ValidationError() error {
	return m.validationErr
}
