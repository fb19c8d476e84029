package middleware

import (
	"context"
	"net/http"
)

var defaultHealthEndpoints = []string{
	"/v1/health",
	"/v1/ready",
	"/v1/live",
	"/v1/readiness",
	"/health",
	"/ready",
	"/live",
	"/healthz",
	"/readyz",
	"/livez",
}

// HealthCheckFilter marks probe requests so the access logger stays quiet.
type HealthCheckFilter struct {
	healthEndpoints map[string]struct{}
	logHealthChecks bool
}

func NewHealthCheckFilter(logHealthChecks bool, endpoints ...string) *HealthCheckFilter {
	if len(endpoints) == 0 {
		endpoints = defaultHealthEndpoints
	}

	set := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		set[endpoint] = struct{}{}
	}

	return &HealthCheckFilter{
		healthEndpoints: set,
		logHealthChecks: logHealthChecks,
	}
}

func (h *HealthCheckFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.logHealthChecks {
			next.ServeHTTP(w, r)

			return
		}

		if _, ok := h.healthEndpoints[r.URL.Path]; ok {
			ctx := context.WithValue(r.Context(), skipAccessLogKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))

			return
		}

		next.ServeHTTP(w, r)
	})
}
