package queue

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrNotConnected    = errors.New("queue is not connected")
	ErrNoEndpoint      = errors.New("endpoint address is not configured")
	ErrClosed          = errors.New("queue is closed")
	ErrTransportClosed = errors.New("transport closed")
	ErrNoDelivery      = errors.New("message carries no delivery handle")
	ErrAlreadySettled  = errors.New("delivery already acknowledged")
	ErrNilHandler      = errors.New("handler must not be nil")
)

type (
	// ConnectionError reports an unreachable, unauthorized or malformed endpoint.
	ConnectionError struct {
		Direction Direction
		Endpoint  string
		Err       error
	}

	// TopologyError reports a failed queue, exchange or binding assertion.
	TopologyError struct {
		Entity string
		Name   string
		Err    error
	}

	// SerializationError reports a payload that cannot be encoded or decoded.
	SerializationError struct {
		Topic string
		Err   error
	}
)

func newConnectionError(dir Direction, endpoint string, err error) *ConnectionError {
	return &ConnectionError{
		Direction: dir,
		Endpoint:  redact(endpoint),
		Err:       err,
	}
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s connection failed: %v", e.Direction, e.Err)
	}

	return fmt.Sprintf("%s connection to %s failed: %v", e.Direction, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("failed to assert %s %q: %v", e.Entity, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("invalid payload on topic %q: %v", e.Topic, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// redact hides credentials before an address ends up in logs or errors.
func redact(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "<malformed>"
	}

	return u.Redacted()
}
