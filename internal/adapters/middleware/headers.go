package middleware

import (
	"net/http"
)

const headerAPIVersion = "API-Version"

type (
	APIVersionMiddleware struct {
		version string
	}

	SecurityHeadersMiddleware struct {
		headers map[string]string
	}
)

func NewAPIVersionMiddleware(version string) APIVersionMiddleware {
	return APIVersionMiddleware{
		version: version,
	}
}

func (mw APIVersionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mw.version != "" {
			w.Header().Set(headerAPIVersion, mw.version)
		}

		next.ServeHTTP(w, r)
	})
}

func NewSecurityHeadersMiddleware() SecurityHeadersMiddleware {
	return SecurityHeadersMiddleware{
		headers: map[string]string{
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "no-referrer",
			"Cache-Control":                "no-store",
			"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
			"Access-Control-Allow-Headers": "Authorization, Content-Type, X-Request-ID",
		},
	}
}

// Middleware answers CORS preflight requests itself.
func (mw SecurityHeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range mw.headers {
			w.Header().Set(name, value)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}
