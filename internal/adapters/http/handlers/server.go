package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	TopicPath    = "/v1/topics/{topic}/messages"
	MessagePath  = "/v1/messages/{id}"
	HealthPath   = "/v1/health"
	DocumentPath = "/v1/openapi.yaml"
)

type (
	// ServerInterface is implemented by the gateway request handler.
	ServerInterface interface {
		// EmitMessage (POST /v1/topics/{topic}/messages)
		EmitMessage(w http.ResponseWriter, r *http.Request, topic string)
		// FindMessages (GET /v1/topics/{topic}/messages)
		FindMessages(w http.ResponseWriter, r *http.Request, topic string)
		// FetchMessage (GET /v1/messages/{id})
		FetchMessage(w http.ResponseWriter, r *http.Request, id string)
		// GetHealth (GET /v1/health)
		GetHealth(w http.ResponseWriter, r *http.Request)
	}

	MiddlewareFunc func(http.Handler) http.Handler

	ChiServerOptions struct {
		BaseURL     string
		BaseRouter  chi.Router
		Middlewares []MiddlewareFunc
	}
)

// HandlerWithOptions mounts the API routes. Middlewares run after routing so
// they see the matched route pattern.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}

	r.Get(options.BaseURL+DocumentPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(apiDocument)
	})

	r.Group(func(r chi.Router) {
		for _, mw := range options.Middlewares {
			r.Use(mw)
		}

		r.Post(options.BaseURL+TopicPath, func(w http.ResponseWriter, req *http.Request) {
			si.EmitMessage(w, req, chi.URLParam(req, "topic"))
		})

		r.Get(options.BaseURL+TopicPath, func(w http.ResponseWriter, req *http.Request) {
			si.FindMessages(w, req, chi.URLParam(req, "topic"))
		})

		r.Get(options.BaseURL+MessagePath, func(w http.ResponseWriter, req *http.Request) {
			si.FetchMessage(w, req, chi.URLParam(req, "id"))
		})

		r.Get(options.BaseURL+HealthPath, si.GetHealth)
	})

	return r
}
