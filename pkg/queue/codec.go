package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errNotArray = errors.New("payload is not a JSON array")

// Encode serializes the ordered argument list into the wire payload.
func Encode(args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("could not marshal arguments: %w", err)
	}

	return body, nil
}

// Decode restores the argument list carried by a wire payload.
func Decode(body []byte) ([]any, error) {
	raw, err := decodeRaw(body)
	if err != nil {
		return nil, err
	}

	return decodeArgs(raw)
}

func decodeRaw(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNotArray
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("could not unmarshal payload: %w", err)
	}

	return raw, nil
}

func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &args[i]); err != nil {
			return nil, fmt.Errorf("could not unmarshal argument %d: %w", i, err)
		}
	}

	return args, nil
}

func decodeMessage(topic string, body []byte) (Message, error) {
	raw, err := decodeRaw(body)
	if err != nil {
		return Message{}, &SerializationError{Topic: topic, Err: err}
	}

	args, err := decodeArgs(raw)
	if err != nil {
		return Message{}, &SerializationError{Topic: topic, Err: err}
	}

	return Message{Topic: topic, Args: args, raw: raw}, nil
}
