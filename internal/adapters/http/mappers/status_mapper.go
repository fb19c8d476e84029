package mappers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/architeacher/svc-pubsub/internal/domain"
)

const contentTypeJSON = "application/json"

type (
	ErrorDetail struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}

	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}
)

// DomainErrorToResponse maps err to a status and body. Anything that is not a
// DomainError is reported as an internal error without leaking its text.
func DomainErrorToResponse(err error) (int, ErrorResponse) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		domainErr = domain.NewInternalServerError("internal server error", err)
	}

	body := ErrorResponse{
		Error: ErrorDetail{
			Code:    domainErr.Code,
			Message: domainErr.Message,
		},
	}

	if len(domainErr.Details) > 0 {
		body.Error.Details = domainErr.Details
	}

	return domainErr.StatusCode, body
}

// HealthStatusToHTTP keeps degraded instances in rotation.
func HealthStatusToHTTP(status domain.HealthResponseStatus) int {
	switch status {
	case domain.HealthResponseStatusHealthy, domain.HealthResponseStatusDegraded:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, err error) {
	statusCode, body := DomainErrorToResponse(err)

	WriteJSON(w, statusCode, body)
}
