package queue

import (
	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the queue Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger tags every entry with the queue component.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l.With().Str("component", "queue").Logger()}
}

func (l *ZerologLogger) Debug() LogEvent { return &zerologEvent{event: l.logger.Debug()} }
func (l *ZerologLogger) Info() LogEvent { return &zerologEvent{event: l.logger.Info()} }
func (l *ZerologLogger) Warn() LogEvent { return &zerologEvent{event: l.logger.Warn()} }
func (l *ZerologLogger) Error() LogEvent { return &zerologEvent{event: l.logger.Error()} }

// zerologEvent wraps a possibly nil *zerolog.Event; zerolog returns nil for
// disabled levels and all of its methods are nil-safe.
type zerologEvent struct {
	event *zerolog.Event
}

func (e *zerologEvent) Msg(msg string) {
	e.event.Msg(msg)
}

func (e *zerologEvent) Err(err error) LogEvent {
	e.event = e.event.Err(err)

	return e
}

func (e *zerologEvent) Str(key, value string) LogEvent {
	e.event = e.event.Str(key, value)

	return e
}

func (e *zerologEvent) Int(key string, value int) LogEvent {
	e.event = e.event.Int(key, value)

	return e
}
