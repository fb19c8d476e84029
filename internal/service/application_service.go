package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

type (
	ApplicationService interface {
		EmitMessage(ctx context.Context, topic string, args []json.RawMessage) (*domain.EmitReceipt, error)
		FetchMessage(ctx context.Context, id string) (*domain.ReceivedMessage, error)
		FindMessages(ctx context.Context, filter domain.MessageFilter) ([]*domain.ReceivedMessage, error)
		FetchHealthReport(ctx context.Context) (*domain.HealthResult, error)
	}

	appService struct {
		emitter       ports.Emitter
		finder        ports.ObjectFinder
		validator     ports.Validator
		healthChecker ports.HealthChecker
		metrics       infrastructure.Metrics
		logger        infrastructure.Logger
		now           func() time.Time
	}
)

// NewApplicationService wires the gateway operations. finder and validator
// are optional: without a finder stored messages cannot be read, without a
// validator outgoing arguments are emitted unchecked.
func NewApplicationService(
	emitter ports.Emitter,
	finder ports.ObjectFinder,
	validator ports.Validator,
	healthChecker ports.HealthChecker,
	metrics infrastructure.Metrics,
	logger infrastructure.Logger,
) ApplicationService {
	return &appService{
		emitter:       emitter,
		finder:        finder,
		validator:     validator,
		healthChecker: healthChecker,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *appService) EmitMessage(ctx context.Context, topic string, args []json.RawMessage) (*domain.EmitReceipt, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, domain.NewInvalidRequestError("topic must not be empty", nil)
	}

	if s.validator != nil {
		candidate := domain.NewReceivedMessage(topic, args, false, s.now())
		if err := s.validator.Validate(candidate); err != nil {
			return nil, domain.NewInvalidRequestError("arguments do not match the topic schema", err).
				WithDetails("topic", topic)
		}
	}

	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = arg
	}

	start := s.now()
	err := s.emitter.Emit(ctx, topic, values...)
	s.metrics.RecordEmit(ctx, topic, time.Since(start), err == nil)

	if err != nil {
		return nil, domain.NewQueueUnavailableError(topic, err)
	}

	s.logger.Debug().
		Str("topic", topic).
		Int("args", len(args)).
		Msg("emitted message")

	return &domain.EmitReceipt{
		Topic:     topic,
		ArgCount:  len(args),
		EmittedAt: start.UTC(),
	}, nil
}

func (s *appService) FetchMessage(ctx context.Context, id string) (*domain.ReceivedMessage, error) {
	if s.finder == nil {
		return nil, domain.NewStorageDisabledError()
	}

	obj, err := s.finder.GetObject(ctx, id, &domain.ReceivedMessage{})
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, domain.NewObjectNotFoundError(domain.CollectionName(&domain.ReceivedMessage{}), id)
		}

		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	msg, ok := obj.(*domain.ReceivedMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected stored object %T: %w", obj, domain.ErrInvalidObject)
	}

	return msg, nil
}

func (s *appService) FindMessages(ctx context.Context, filter domain.MessageFilter) ([]*domain.ReceivedMessage, error) {
	if s.finder == nil {
		return nil, domain.NewStorageDisabledError()
	}

	objs, err := s.finder.FindObjects(ctx, &domain.ReceivedMessage{}, filter.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}

	messages := make([]*domain.ReceivedMessage, 0, len(objs))
	for _, obj := range objs {
		msg, ok := obj.(*domain.ReceivedMessage)
		if !ok {
			return nil, fmt.Errorf("unexpected stored object %T: %w", obj, domain.ErrInvalidObject)
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *appService) FetchHealthReport(ctx context.Context) (*domain.HealthResult, error) {
	return s.healthChecker.CheckHealth(ctx), nil
}
