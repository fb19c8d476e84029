package runtime

import (
	"io"
	"os"
)

type (
	ServiceOption func(*ServiceCtx)

	ListenerOption func(*ListenerCtx)

	EmitterOption func(*EmitterCtx)
)

func WithServiceTermination(ch chan os.Signal) ServiceOption {
	return func(ctx *ServiceCtx) {
		ctx.shutdownChannel = ch
	}
}

func WithWaitingForServer() ServiceOption {
	return func(ctx *ServiceCtx) {
		ctx.serverReady = make(chan struct{})
	}
}

func WithListenerTermination(ch chan os.Signal) ListenerOption {
	return func(ctx *ListenerCtx) {
		ctx.shutdownChannel = ch
	}
}

// WithOutput prints every received message to w. A nil w keeps the listener quiet.
func WithOutput(w io.Writer) ListenerOption {
	return func(ctx *ListenerCtx) {
		ctx.out = w
	}
}

// WithValidation checks received messages against the registered schemas.
func WithValidation(enabled bool) ListenerOption {
	return func(ctx *ListenerCtx) {
		ctx.validate = enabled
	}
}

// WithProbes serves health and metrics on the configured HTTP address.
func WithProbes(enabled bool) ListenerOption {
	return func(ctx *ListenerCtx) {
		ctx.probes = enabled
	}
}

// WithEmitterDependencies appends dependency options applied before the
// gateway is wired.
func WithEmitterDependencies(opts ...DependencyOption) EmitterOption {
	return func(ctx *EmitterCtx) {
		ctx.options = append(ctx.options, opts...)
	}
}
