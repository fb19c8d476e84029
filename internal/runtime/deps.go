package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/handlers"
	"github.com/architeacher/svc-pubsub/internal/adapters/middleware"
	"github.com/architeacher/svc-pubsub/internal/adapters/queue"
	"github.com/architeacher/svc-pubsub/internal/adapters/validator"
	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
	"github.com/architeacher/svc-pubsub/internal/usecases"
)

const metricsPath = "/metrics"

type (
	Applications struct {
		Gateway  *usecases.GatewayApplication
		Listener *usecases.ListenerApplication
	}

	ApplicationWorkers struct {
		Refresher    ports.BackgroundProcessor
		ListenWorker *queue.ListenWorker
	}

	TracerShutdownFunc func(ctx context.Context) error

	InfrastructureDeps struct {
		HTTPServer          *http.Server
		SecretStorageClient *api.Client
		StorageClient       *infrastructure.Storage
		QueueClient         infrastructure.Queue
		Metrics             infrastructure.Metrics
	}

	Services struct {
		Validator     *validator.SchemaValidator
		KeyService    *infrastructure.PasetoKeyService
		HealthChecker ports.HealthChecker
	}

	Repos struct {
		SecretStorageRepo ports.SecretsRepository
		Mapper            ports.Mapper
	}

	Dependencies struct {
		Apps    Applications
		Workers ApplicationWorkers

		cfg          *config.ServiceConfig
		configLoader *config.Loader

		logger infrastructure.Logger

		Infra    InfrastructureDeps
		Services Services
		Repos    Repos

		tracerShutdownFunc TracerShutdownFunc
		secretVersion      uint
	}
)

func initializeDependencies(ctx context.Context, cfg *config.ServiceConfig, opts ...DependencyOption) (*Dependencies, error) {
	appLogger := infrastructure.New(config.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	appLogger.Debug().Msg("initializing dependencies...")

	deps := &Dependencies{
		cfg:    cfg,
		logger: appLogger,
	}

	// Start with default options and append any additional options.
	options := append(defaultOptions(ctx), opts...)

	for _, opt := range options {
		if err := opt(deps); err != nil {
			deps.release(ctx)

			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	deps.logger.Debug().Msg("dependencies initialized successfully")

	return deps, nil
}

// release closes whatever was opened, in reverse order of acquisition.
func (d *Dependencies) release(ctx context.Context) {
	if d.Infra.QueueClient != nil {
		if err := d.Infra.QueueClient.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close queue")
		}
	}

	if d.Repos.Mapper != nil {
		if err := d.Repos.Mapper.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close mapper")
		}
	}

	if d.Infra.StorageClient != nil {
		if err := d.Infra.StorageClient.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close storage")
		}
	}

	if d.Infra.Metrics != nil {
		if err := d.Infra.Metrics.Shutdown(ctx); err != nil {
			d.logger.Error().Err(err).Msg("failed to shutdown metrics")
		}
	}

	if d.tracerShutdownFunc != nil {
		if err := d.tracerShutdownFunc(ctx); err != nil {
			d.logger.Error().Err(err).Msg("failed to shutdown tracer")
		}
	}
}

func initHTTPServer(
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	reqHandler handlers.ServerInterface,
	keyService ports.KeyService,
) (*http.Server, error) {
	logger.Info().Msg("creating HTTP server...")

	router := chi.NewRouter()

	middlewares, err := initMiddlewares(cfg, logger, metrics, keyService)
	if err != nil {
		return nil, err
	}

	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.NewSecurityHeadersMiddleware().Middleware,
	)

	if cfg.Telemetry.Metrics.Enabled {
		router.Method(http.MethodGet, metricsPath, metrics.Handler())
	}

	handlers.HandlerWithOptions(reqHandler, handlers.ChiServerOptions{
		BaseURL:     "",
		BaseRouter:  router,
		Middlewares: middlewares,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTPServer.Host, strconv.Itoa(cfg.HTTPServer.Port)),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	logger.Info().Str("addr", server.Addr).Msg("HTTP server created")

	return server, nil
}

// initMiddlewares orders the per-route chain: observe first, then guard, then
// validate.
func initMiddlewares(
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	keyService ports.KeyService,
) ([]handlers.MiddlewareFunc, error) {
	swagger, err := handlers.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("error loading API document: %w", err)
	}

	swagger.Servers = nil

	requestValidator, err := middleware.OapiRequestValidatorWithOptions(logger, swagger, &middleware.RequestValidatorOptions{
		Options: openapi3filter.Options{
			MultiError:         false,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
		ErrorHandler:          middleware.RequestValidationErrHandler,
		SilenceServersWarning: true,
	})
	if err != nil {
		return nil, err
	}

	middlewares := []handlers.MiddlewareFunc{
		middleware.Tracer(otel.GetTracerProvider()),
		middleware.NewAPIVersionMiddleware(cfg.AppConfig.APIVersion).Middleware,
	}

	if cfg.Telemetry.Metrics.Enabled {
		metricsMiddleware := middleware.NewMetricsMiddleware(metrics)
		middlewares = append(middlewares, metricsMiddleware.Middleware)
		logger.Info().Msg("HTTP metrics collection enabled")
	}

	if cfg.Logging.AccessLog.Enabled {
		healthFilter := middleware.NewHealthCheckFilter(cfg.Logging.AccessLog.LogHealthChecks, handlers.HealthPath)
		accessLogger := middleware.NewAccessLogger(logger.Logger)

		middlewares = append(middlewares, healthFilter.Middleware, accessLogger.Middleware)
		logger.Info().
			Bool("log_health_checks", cfg.Logging.AccessLog.LogHealthChecks).
			Msg("structured access logging enabled")
	}

	if cfg.RateLimiting.Enabled {
		rateLimitMiddleware, err := middleware.NewThrottledRateLimitingMiddleware(cfg.RateLimiting, logger)
		if err != nil {
			return nil, err
		}

		middlewares = append(middlewares, rateLimitMiddleware.Middleware)
		logger.Info().Msg("rate limiting enabled")
	}

	if cfg.Auth.Enabled {
		middlewares = append(middlewares, middleware.NewPasetoAuthMiddleware(cfg.Auth, logger, keyService).Middleware)
		logger.Info().Msg("authentication is enabled")
	}

	middlewares = append(middlewares,
		chimiddleware.Timeout(cfg.HTTPServer.WriteTimeout),
		requestValidator,
	)

	return middlewares, nil
}
