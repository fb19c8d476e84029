package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrObjectNotFound      = errors.New("object not found")
	ErrInvalidObject       = errors.New("invalid object")
	ErrMapperNotConnected  = errors.New("mapper is not connected")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrQueueUnavailable    = errors.New("queue unavailable")
	ErrInternalServerError = errors.New("internal server error")
	ErrStorageDisabled     = errors.New("message storage is disabled")
)

type (
	DomainError struct {
		Code       string
		Message    string
		StatusCode int
		Cause      error
		Details    map[string]any
	}

	// ValidationError carries the schema violation of one object.
	ValidationError struct {
		Schema string
		Cause  error
	}
)

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}

	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func NewDomainError(code, message string, statusCode int, cause error) *DomainError {
	return &DomainError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
		Details:    make(map[string]any),
	}
}

func (e *DomainError) WithDetails(key string, value any) *DomainError {
	e.Details[key] = value

	return e
}

func NewInvalidRequestError(message string, cause error) *DomainError {
	if cause == nil {
		cause = ErrInvalidRequest
	}

	return NewDomainError("INVALID_REQUEST", message, http.StatusBadRequest, cause)
}

func NewUnauthorizedError(message string) *DomainError {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, ErrUnauthorized)
}

func NewRateLimitError(message string) *DomainError {
	return NewDomainError("RATE_LIMIT_EXCEEDED", message, http.StatusTooManyRequests, ErrRateLimitExceeded)
}

func NewQueueUnavailableError(topic string, cause error) *DomainError {
	return NewDomainError(
		"QUEUE_UNAVAILABLE",
		fmt.Sprintf("unable to emit on topic %s", topic),
		http.StatusServiceUnavailable,
		errors.Join(ErrQueueUnavailable, cause),
	).WithDetails("topic", topic)
}

func NewInternalServerError(message string, cause error) *DomainError {
	return NewDomainError("INTERNAL_SERVER_ERROR", message, http.StatusInternalServerError, cause)
}

func NewStorageDisabledError() *DomainError {
	return NewDomainError("STORAGE_DISABLED", "stored messages are not available", http.StatusNotImplemented, ErrStorageDisabled)
}

func NewObjectNotFoundError(collection, id string) *DomainError {
	return NewDomainError(
		"OBJECT_NOT_FOUND",
		fmt.Sprintf("object %s not found in %s", id, collection),
		http.StatusNotFound,
		ErrObjectNotFound,
	).WithDetails("collection", collection).WithDetails("id", id)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("object does not match schema %s: %v", e.Schema, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
