package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/mappers"
	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
)

// ThrottledRateLimitingMiddleware applies a GCRA limit per client address.
type ThrottledRateLimitingMiddleware struct {
	limiter   *throttled.HTTPRateLimiterCtx
	skipPaths map[string]struct{}
}

func NewThrottledRateLimitingMiddleware(cfg config.RateLimitingConfig, logger infrastructure.Logger) (*ThrottledRateLimitingMiddleware, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.RequestsPerSecond)
	}

	store, err := memstore.NewCtx(cfg.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	quota := throttled.RateQuota{
		MaxRate:  throttled.PerSec(cfg.RequestsPerSecond),
		MaxBurst: max(cfg.BurstSize-1, 0),
	}

	rateLimiter, err := throttled.NewGCRARateLimiterCtx(store, quota)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	log := logger.Component("rate_limiter")

	return &ThrottledRateLimitingMiddleware{
		limiter: &throttled.HTTPRateLimiterCtx{
			RateLimiter: rateLimiter,
			VaryBy:      &throttled.VaryBy{Custom: clientKey},
			DeniedHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				log.Warn().
					Str("client", clientKey(r)).
					Str("path", r.URL.Path).
					Msg("rate limit exceeded")

				mappers.WriteError(w, domain.NewRateLimitError("too many requests"))
			}),
			Error: func(w http.ResponseWriter, _ *http.Request, err error) {
				log.Error().Err(err).Msg("rate limiter failed")

				mappers.WriteError(w, domain.NewInternalServerError("rate limiter failure", err))
			},
		},
		skipPaths: toSet(cfg.SkipPaths),
	}, nil
}

func (m *ThrottledRateLimitingMiddleware) Middleware(next http.Handler) http.Handler {
	limited := m.limiter.RateLimit(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := m.skipPaths[r.URL.Path]; skip {
			next.ServeHTTP(w, r)

			return
		}

		limited.ServeHTTP(w, r)
	})
}

// clientKey drops the port so one client maps to one bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
