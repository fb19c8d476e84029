package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aidanwoods.dev/go-paseto/v2"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/mappers"
	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const (
	claimsKey contextKey = "auth_claims"

	bearerPrefix = "Bearer "
)

var (
	errMissingToken  = errors.New("missing bearer token")
	errInvalidIssuer = errors.New("token issuer is not trusted")
)

type (
	// Claims are the verified facts of the caller's token.
	Claims struct {
		Issuer  string
		Subject string
	}

	PasetoAuthMiddleware struct {
		enabled    bool
		logger     infrastructure.Logger
		keyService ports.KeyService
		skipPaths  map[string]struct{}
		issuers    map[string]struct{}
	}
)

func NewPasetoAuthMiddleware(cfg config.AuthConfig, logger infrastructure.Logger, keyService ports.KeyService) *PasetoAuthMiddleware {
	return &PasetoAuthMiddleware{
		enabled:    cfg.Enabled,
		logger:     logger.Component("auth"),
		keyService: keyService,
		skipPaths:  toSet(cfg.SkipPaths),
		issuers:    toSet(cfg.ValidIssuers),
	}
}

func (m *PasetoAuthMiddleware) Middleware(next http.Handler) http.Handler {
	if !m.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := m.skipPaths[r.URL.Path]; skip {
			next.ServeHTTP(w, r)

			return
		}

		claims, err := m.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Msg("request authentication failed")

			mappers.WriteError(w, domain.NewUnauthorizedError("invalid or missing access token"))

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// Authenticate verifies a v4.public token from an Authorization header value.
func (m *PasetoAuthMiddleware) Authenticate(ctx context.Context, header string) (Claims, error) {
	tainted, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || strings.TrimSpace(tainted) == "" {
		return Claims{}, errMissingToken
	}

	key, err := m.keyService.GetPublicKey(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("failed to get public key: %w", err)
	}

	parser := paseto.NewParser()
	parser.AddRule(paseto.NotExpired())

	token, err := parser.ParseV4Public(key, strings.TrimSpace(tainted), nil)
	if err != nil {
		return Claims{}, fmt.Errorf("failed to verify token: %w", err)
	}

	issuer, err := token.GetIssuer()
	if err != nil {
		return Claims{}, fmt.Errorf("failed to read token issuer: %w", err)
	}

	if len(m.issuers) > 0 {
		if _, trusted := m.issuers[issuer]; !trusted {
			return Claims{}, fmt.Errorf("%w: %s", errInvalidIssuer, issuer)
		}
	}

	subject, _ := token.GetSubject()

	return Claims{Issuer: issuer, Subject: subject}, nil
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)

	return claims, ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))

	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			set[value] = struct{}{}
		}
	}

	return set
}
