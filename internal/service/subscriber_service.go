package service

import (
	"context"
	"errors"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

type (
	SubscriberService interface {
		RecordMessage(ctx context.Context, msg *domain.ReceivedMessage) (*domain.RecordResult, error)
	}

	subscriberService struct {
		validator ports.Validator
		saver     ports.ObjectSaver
		logger    infrastructure.Logger
	}
)

// NewSubscriberService builds the listener pipeline. A nil validator accepts
// every message and a nil saver leaves accepted messages unstored.
func NewSubscriberService(
	validator ports.Validator,
	saver ports.ObjectSaver,
	logger infrastructure.Logger,
) SubscriberService {
	return &subscriberService{
		validator: validator,
		saver:     saver,
		logger:    logger,
	}
}

// RecordMessage never returns an error for a message it could classify; the
// outcome says how the delivery must be settled.
func (s *subscriberService) RecordMessage(ctx context.Context, msg *domain.ReceivedMessage) (*domain.RecordResult, error) {
	if msg == nil {
		return nil, domain.NewInvalidRequestError("message is required", domain.ErrInvalidObject)
	}

	if s.validator != nil && !s.validator.IsValid(msg) {
		reason := "validation failed"
		if err := msg.ValidationError(); err != nil {
			reason = err.Error()
		}

		s.logger.Warn().
			Str("topic", msg.Topic).
			Str("reason", reason).
			Msg("rejected message")

		return &domain.RecordResult{Outcome: domain.OutcomeRejected, Reason: reason}, nil
	}

	if s.saver == nil {
		return &domain.RecordResult{Outcome: domain.OutcomeAccepted}, nil
	}

	saved, err := s.saver.SaveObject(ctx, msg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		s.logger.Error().Err(err).
			Str("topic", msg.Topic).
			Msg("failed to store message")

		return &domain.RecordResult{Outcome: domain.OutcomeFailed, Reason: err.Error()}, nil
	}

	s.logger.Debug().
		Str("topic", msg.Topic).
		Str("id", saved.ObjectID()).
		Msg("stored message")

	return &domain.RecordResult{Outcome: domain.OutcomeStored, ObjectID: saved.ObjectID()}, nil
}
