package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/mappers"
	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
)

type (
	ErrorHandler func(w http.ResponseWriter, message string, statusCode int)

	RequestValidatorOptions struct {
		Options               openapi3filter.Options
		ErrorHandler          ErrorHandler
		SilenceServersWarning bool
	}
)

// OapiRequestValidatorWithOptions checks requests against the API document
// before they reach a handler.
func OapiRequestValidatorWithOptions(
	logger infrastructure.Logger,
	swagger *openapi3.T,
	options *RequestValidatorOptions,
) (func(http.Handler) http.Handler, error) {
	if options == nil {
		options = &RequestValidatorOptions{}
	}

	if len(swagger.Servers) > 0 && !options.SilenceServersWarning {
		logger.Warn().Msg("API document declares servers, requests must match their host and base path")
	}

	if options.ErrorHandler == nil {
		options.ErrorHandler = RequestValidationErrHandler
	}

	if options.Options.AuthenticationFunc == nil {
		options.Options.AuthenticationFunc = openapi3filter.NoopAuthenticationFunc
	}

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("failed to build request validation router: %w", err)
	}

	log := logger.Component("request_validator")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if statusCode, err := validateRequest(r, router, &options.Options); err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("request failed validation")

				options.ErrorHandler(w, err.Error(), statusCode)

				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func validateRequest(r *http.Request, router routers.Router, options *openapi3filter.Options) (int, error) {
	route, pathParams, err := router.FindRoute(r)
	if err != nil {
		if errors.Is(err, routers.ErrMethodNotAllowed) {
			return http.StatusMethodNotAllowed, err
		}

		return http.StatusNotFound, err
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options:    options,
	}

	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		var securityErr *openapi3filter.SecurityRequirementsError
		if errors.As(err, &securityErr) {
			return http.StatusUnauthorized, err
		}

		return http.StatusBadRequest, err
	}

	return http.StatusOK, nil
}

// RequestValidationErrHandler renders validation failures as domain errors.
func RequestValidationErrHandler(w http.ResponseWriter, message string, statusCode int) {
	var err *domain.DomainError

	switch statusCode {
	case http.StatusUnauthorized:
		err = domain.NewUnauthorizedError(message)
	case http.StatusNotFound:
		err = domain.NewDomainError("ROUTE_NOT_FOUND", message, statusCode, nil)
	case http.StatusMethodNotAllowed:
		err = domain.NewDomainError("METHOD_NOT_ALLOWED", message, statusCode, nil)
	default:
		err = domain.NewInvalidRequestError(message, nil)
	}

	mappers.WriteError(w, err)
}
