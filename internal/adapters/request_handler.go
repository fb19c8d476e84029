package adapters

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/handlers"
	"github.com/architeacher/svc-pubsub/internal/adapters/http/mappers"
	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/usecases"
	"github.com/architeacher/svc-pubsub/internal/usecases/commands"
	"github.com/architeacher/svc-pubsub/internal/usecases/queries"
)

const maxEmitBodyBytes = 1 << 20

type (
	RequestHandler struct {
		app    *usecases.GatewayApplication
		logger infrastructure.Logger
	}

	messageList struct {
		Messages []*domain.ReceivedMessage `json:"messages"`
		Count    int                       `json:"count"`
	}
)

var _ handlers.ServerInterface = (*RequestHandler)(nil)

func NewRequestHandler(app *usecases.GatewayApplication, logger infrastructure.Logger) *RequestHandler {
	return &RequestHandler{
		app:    app,
		logger: logger.Component("request_handler"),
	}
}

// EmitMessage implements ServerInterface.EmitMessage
func (h *RequestHandler) EmitMessage(w http.ResponseWriter, r *http.Request, topic string) {
	args, err := decodeArgs(http.MaxBytesReader(w, r.Body, maxEmitBodyBytes))
	if err != nil {
		h.writeError(w, r, domain.NewInvalidRequestError("request body must be a JSON array of arguments", err))

		return
	}

	receipt, err := h.app.Commands.EmitMessageCommandHandler.Handle(r.Context(), commands.EmitMessageCommand{
		Topic: topic,
		Args:  args,
	})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	mappers.WriteJSON(w, http.StatusAccepted, receipt)
}

// FindMessages implements ServerInterface.FindMessages
func (h *RequestHandler) FindMessages(w http.ResponseWriter, r *http.Request, topic string) {
	messages, err := h.app.Queries.FindMessagesQueryHandler.Execute(r.Context(), queries.FindMessagesQuery{Topic: topic})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	if messages == nil {
		messages = []*domain.ReceivedMessage{}
	}

	mappers.WriteJSON(w, http.StatusOK, messageList{Messages: messages, Count: len(messages)})
}

// FetchMessage implements ServerInterface.FetchMessage
func (h *RequestHandler) FetchMessage(w http.ResponseWriter, r *http.Request, id string) {
	message, err := h.app.Queries.FetchMessageQueryHandler.Execute(r.Context(), queries.FetchMessageQuery{ID: id})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	mappers.WriteJSON(w, http.StatusOK, message)
}

// GetHealth implements ServerInterface.GetHealth
func (h *RequestHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Queries.FetchHealthReportQueryHandler.Execute(r.Context(), queries.FetchHealthReportQuery{})
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	mappers.WriteJSON(w, mappers.HealthStatusToHTTP(report.OverallStatus), report)
}

func (h *RequestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, body := mappers.DomainErrorToResponse(err)

	event := h.logger.Warn()
	if statusCode >= http.StatusInternalServerError {
		event = h.logger.Error()
	}

	event.Err(err).
		Str("path", r.URL.Path).
		Str("code", body.Error.Code).
		Int("status_code", statusCode).
		Msg("request failed")

	mappers.WriteJSON(w, statusCode, body)
}

// decodeArgs reads exactly one JSON array. A null body or trailing data is
// rejected.
func decodeArgs(body io.Reader) ([]json.RawMessage, error) {
	decoder := json.NewDecoder(body)

	var args []json.RawMessage
	if err := decoder.Decode(&args); err != nil {
		return nil, err
	}

	if args == nil {
		return nil, errors.New("arguments must be an array")
	}

	if decoder.More() {
		return nil, errors.New("unexpected data after arguments")
	}

	return args, nil
}
