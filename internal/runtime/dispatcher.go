package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
)

// ServiceCtx runs the gateway: the HTTP API in front of the emitting half of
// the queue.
type ServiceCtx struct {
	cfg  *config.ServiceConfig
	deps *Dependencies

	shutdownChannel chan os.Signal

	serverCtx      context.Context
	serverStopFunc context.CancelFunc
	serverErrors   chan error

	serverReady chan struct{}
}

func New(cfg *config.ServiceConfig, opt ...ServiceOption) *ServiceCtx {
	sCtx := &ServiceCtx{
		cfg:             cfg,
		shutdownChannel: make(chan os.Signal, 1),
		serverErrors:    make(chan error, 1),
	}

	for i := range opt {
		opt[i](sCtx)
	}

	return sCtx
}

func (c *ServiceCtx) Run(ctx context.Context) error {
	if err := c.build(ctx); err != nil {
		return err
	}

	c.startService()
	c.startWorkers()
	c.monitorConfigChanges()
	c.shutdownHook()

	return c.shutdown()
}

// build initializes the service components
func (c *ServiceCtx) build(ctx context.Context) error {
	c.serverCtx, c.serverStopFunc = context.WithCancel(ctx)

	deps, err := initializeDependencies(c.serverCtx, c.cfg,
		WithStorage(c.serverCtx),
		WithValidator(),
		WithQueue(c.serverCtx, infrastructure.EmitOnly),
		WithHTTPServer(),
	)
	if err != nil {
		c.serverStopFunc()

		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	c.deps = deps

	return nil
}

// startService starts the HTTP server
func (c *ServiceCtx) startService() {
	go func() {
		c.deps.logger.Info().
			Str("address", c.deps.Infra.HTTPServer.Addr).
			Msg("service starting up")

		if c.serverReady != nil {
			c.serverReady <- struct{}{}
		}

		if err := c.deps.Infra.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.deps.logger.Error().Err(err).Msg("unable to start http server")
			c.serverErrors <- err
			c.serverStopFunc()
		}
	}()
}

func (c *ServiceCtx) startWorkers() {
	if c.deps.Workers.Refresher == nil {
		return
	}

	go func() {
		if err := c.deps.Workers.Refresher.Start(c.serverCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.deps.logger.Error().Err(err).Msg("refresher stopped")
		}
	}()
}

func (c *ServiceCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *ServiceCtx) monitorConfigChanges() {
	reloadErrors := c.deps.configLoader.WatchConfigSignals(c.serverCtx)

	go func() {
		for err := range reloadErrors {
			if err != nil {
				c.deps.logger.Error().Err(err).Msg("failed to reload config")
				continue
			}

			c.deps.logger.Info().Msg("config reloaded successfully")
		}

		c.deps.logger.Info().Msg("stopping config monitor")
	}()
}

func (c *ServiceCtx) shutdown() error {
	// Waits for one of the following shutdown conditions to happen.
	select {
	case <-c.serverCtx.Done():
	case <-c.shutdownChannel:
	}

	signal.Stop(c.shutdownChannel)

	c.deps.logger.Info().Msg("received shutdown signal")

	// Cancel context that underlying processes would start cleanup.
	c.serverStopFunc()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	c.cleanup(shutdownCtx)

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		return errors.New("graceful shutdown timed out")
	}

	c.deps.logger.Info().Msg("HTTP server shutdown completed")

	select {
	case err := <-c.serverErrors:
		return err
	default:
		return nil
	}
}

// WaitForServer blocks until the http server is running.
// If you want to be notified when the server is running,
// make sure you instantiate your server with WithWaitingForServer.
//
// Example:
//
//	srv := runtime.New(cfg, WithWaitingForServer())
//	go func() {
//		_ = srv.Run(ctx)
//	}()
//
//	srv.WaitForServer()
func (c *ServiceCtx) WaitForServer() {
	if c.serverReady != nil {
		<-c.serverReady
		close(c.serverReady)
	}
}

func (c *ServiceCtx) cleanup(shutdownCtx context.Context) {
	c.deps.logger.Info().Msg("cleaning up resources...")

	// Stop accepting requests before the queue goes away under them.
	if err := c.deps.Infra.HTTPServer.Shutdown(shutdownCtx); err != nil {
		c.deps.logger.Error().Err(err).Msg("unable to gracefully shutdown http server")
	}

	c.deps.release(shutdownCtx)

	c.deps.logger.Info().Msg("cleanup completed")
}
