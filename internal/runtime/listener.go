package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/architeacher/svc-pubsub/internal/adapters/http/handlers"
	"github.com/architeacher/svc-pubsub/internal/adapters/http/mappers"
	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

// ListenerCtx subscribes to a set of topics and records what arrives until it
// is told to stop.
type ListenerCtx struct {
	cfg    *config.ServiceConfig
	topics []string
	deps   *Dependencies

	out      io.Writer
	validate bool
	probes   bool

	shutdownChannel chan os.Signal
}

func NewListener(cfg *config.ServiceConfig, topics []string, opt ...ListenerOption) *ListenerCtx {
	lCtx := &ListenerCtx{
		cfg:             cfg,
		topics:          topics,
		out:             os.Stdout,
		shutdownChannel: make(chan os.Signal, 1),
	}

	for i := range opt {
		opt[i](lCtx)
	}

	return lCtx
}

func (c *ListenerCtx) Run(ctx context.Context) error {
	if len(c.topics) == 0 {
		return errors.New("at least one topic is required")
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	opts := []DependencyOption{WithStorage(runCtx)}
	if c.validate {
		opts = append(opts, WithValidator())
	}

	opts = append(opts,
		WithQueue(runCtx, infrastructure.ListenOnly),
		WithListener(c.out),
	)

	deps, err := initializeDependencies(runCtx, c.cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	c.deps = deps

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	defer c.deps.release(shutdownCtx)

	if err := c.subscribe(); err != nil {
		return err
	}

	var probeServer *http.Server
	if c.probes {
		probeServer = newProbeServer(c.cfg, c.deps.Infra.Metrics, c.deps.Services.HealthChecker)

		go func() {
			if err := probeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.deps.logger.Error().Err(err).Msg("probe server stopped")
				stop()
			}
		}()
	}

	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c.shutdownChannel)

	select {
	case <-runCtx.Done():
	case <-c.shutdownChannel:
	}

	c.deps.logger.Info().Msg("listener shutting down")

	if probeServer != nil {
		if err := probeServer.Shutdown(shutdownCtx); err != nil {
			c.deps.logger.Error().Err(err).Msg("unable to gracefully shutdown probe server")
		}
	}

	return nil
}

func (c *ListenerCtx) subscribe() error {
	worker := c.deps.Workers.ListenWorker

	for _, topic := range c.topics {
		if err := c.deps.Infra.QueueClient.On(topic, worker.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to %q: %w", topic, err)
		}

		c.deps.logger.Info().Str("topic", topic).Msg("listening")
	}

	return nil
}

// newProbeServer exposes health and metrics for a listener running as a
// long-lived worker.
func newProbeServer(cfg *config.ServiceConfig, metrics infrastructure.Metrics, checker ports.HealthChecker) *http.Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	router.Get(handlers.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		report := checker.CheckHealth(r.Context())
		mappers.WriteJSON(w, mappers.HealthStatusToHTTP(report.OverallStatus), report)
	})

	if cfg.Telemetry.Metrics.Enabled {
		router.Method(http.MethodGet, metricsPath, metrics.Handler())
	}

	return &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTPServer.Host, strconv.Itoa(cfg.HTTPServer.Port)),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
}
