package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
	"github.com/architeacher/svc-pubsub/internal/usecases"
	"github.com/architeacher/svc-pubsub/internal/usecases/commands"
	"github.com/architeacher/svc-pubsub/pkg/queue"
)

var _ ports.MessageHandler = (*ListenWorker)(nil)

type (
	// ListenWorker records every received message, prints it as one JSON
	// line and settles its delivery according to the outcome.
	ListenWorker struct {
		app     *usecases.ListenerApplication
		metrics infrastructure.Metrics
		logger  infrastructure.Logger
		now     func() time.Time

		mu  sync.Mutex
		enc *json.Encoder
	}

	// printedMessage is the line written for each delivery.
	printedMessage struct {
		Topic       string            `json:"topic"`
		Args        []json.RawMessage `json:"args"`
		Redelivered bool              `json:"redelivered,omitempty"`
		ReceivedAt  time.Time         `json:"received_at"`
		Outcome     domain.Outcome    `json:"outcome"`
		ID          string            `json:"id,omitempty"`
		Reason      string            `json:"reason,omitempty"`
	}
)

// NewListenWorker writes to out; a nil out disables printing.
func NewListenWorker(
	app *usecases.ListenerApplication,
	metrics infrastructure.Metrics,
	out io.Writer,
	logger infrastructure.Logger,
) *ListenWorker {
	w := &ListenWorker{
		app:     app,
		metrics: metrics,
		logger:  logger.Component("listen_worker"),
		now:     time.Now,
	}

	if out != nil {
		w.enc = json.NewEncoder(out)
	}

	return w
}

// Handle adapts the worker to a queue subscription.
func (w *ListenWorker) Handle(ctx context.Context, msg queue.Message) {
	if err := w.ProcessMessage(ctx, msg); err != nil {
		w.logger.Error().Err(err).Str("topic", msg.Topic).Msg("failed to process message")
	}
}

func (w *ListenWorker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	start := w.now()

	args, err := msg.RawArgs()
	if err != nil {
		w.metrics.RecordMessageProcessed(ctx, msg.Topic, string(domain.OutcomeRejected), time.Since(start))

		return errors.Join(fmt.Errorf("unreadable arguments: %w", err), settle(msg, domain.OutcomeRejected))
	}

	redelivered := msg.Delivery != nil && msg.Delivery.Redelivered()
	received := domain.NewReceivedMessage(msg.Topic, args, redelivered, start.UTC())

	result, err := w.app.Commands.RecordMessageCommandHandler.Handle(ctx, commands.RecordMessageCommand{
		Message: received,
	})
	if err != nil {
		w.metrics.RecordMessageProcessed(ctx, msg.Topic, string(domain.OutcomeFailed), time.Since(start))

		return errors.Join(err, settle(msg, domain.OutcomeFailed))
	}

	w.print(received, result)
	w.metrics.RecordMessageProcessed(ctx, msg.Topic, string(result.Outcome), time.Since(start))

	return settle(msg, result.Outcome)
}

func (w *ListenWorker) print(msg *domain.ReceivedMessage, result *domain.RecordResult) {
	if w.enc == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(printedMessage{
		Topic:       msg.Topic,
		Args:        msg.Args,
		Redelivered: msg.Redelivered,
		ReceivedAt:  msg.ReceivedAt,
		Outcome:     result.Outcome,
		ID:          result.ObjectID,
		Reason:      result.Reason,
	}); err != nil {
		w.logger.Warn().Err(err).Msg("failed to print message")
	}
}

// settle acknowledges kept messages, drops rejected ones and hands failed
// ones back to the broker. Transports without acknowledgement are skipped.
func settle(msg queue.Message, outcome domain.Outcome) error {
	if msg.Delivery == nil {
		return nil
	}

	var err error
	if outcome.Settled() {
		err = msg.Delivery.Ack()
	} else {
		err = msg.Delivery.Nack(outcome.Requeue())
	}

	if errors.Is(err, queue.ErrAlreadySettled) {
		return nil
	}

	return err
}
