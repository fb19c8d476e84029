package runtime

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"

	"github.com/architeacher/svc-pubsub/internal/adapters"
	"github.com/architeacher/svc-pubsub/internal/adapters/queue"
	"github.com/architeacher/svc-pubsub/internal/adapters/refresher"
	"github.com/architeacher/svc-pubsub/internal/adapters/repos"
	"github.com/architeacher/svc-pubsub/internal/adapters/validator"
	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/infrastructure"
	"github.com/architeacher/svc-pubsub/internal/ports"
	"github.com/architeacher/svc-pubsub/internal/service"
	"github.com/architeacher/svc-pubsub/internal/usecases"
	pkgqueue "github.com/architeacher/svc-pubsub/pkg/queue"
)

type (
	DependencyOption func(*Dependencies) error
)

func defaultOptions(ctx context.Context) []DependencyOption {
	return []DependencyOption{
		WithSecretStorage(),
		WithSecretStorageRepo(),
		WithConfigLoader(ctx),
		WithMetrics(ctx),
		WithTracing(ctx),
	}
}

// WithSecretStorage initializes the Vault client using ENV config.
func WithSecretStorage() DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.SecretStorage.Enabled {
			return nil
		}

		client, err := repos.NewVaultClient(d.cfg.SecretStorage)
		if err != nil {
			return err
		}

		d.Infra.SecretStorageClient = client

		return nil
	}
}

func WithSecretStorageRepo() DependencyOption {
	return func(d *Dependencies) error {
		if d.Infra.SecretStorageClient == nil {
			return nil
		}

		d.Repos.SecretStorageRepo = repos.NewVaultRepository(d.Infra.SecretStorageClient)

		return nil
	}
}

func WithConfigLoader(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		d.configLoader = config.NewLoader(d.cfg, d.Repos.SecretStorageRepo, d.secretVersion)

		if !d.cfg.SecretStorage.Enabled {
			d.logger.Debug().Msg("secret storage is disabled, skipping vault configuration loading")

			return nil
		}

		version, err := d.configLoader.Load(ctx, d.cfg)
		if err != nil {
			return fmt.Errorf("unable to load service configuration: %w", err)
		}

		d.secretVersion = version

		return nil
	}
}

func WithMetrics(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		metrics, err := infrastructure.NewMetrics(ctx, *d.cfg, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}

		d.Infra.Metrics = metrics

		return nil
	}
}

func WithTracing(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Telemetry.Traces.Enabled {
			d.tracerShutdownFunc = func(_ context.Context) error {
				return nil
			}

			return nil
		}

		tracerShutdownFunc, err := infrastructure.InitGlobalTracer(ctx, d.cfg.Telemetry, d.cfg.AppConfig)
		if err != nil {
			d.logger.Error().Err(err).Msg("failed to initialize global tracer")

			return err
		}

		d.tracerShutdownFunc = tracerShutdownFunc

		return nil
	}
}

// WithStorage opens the document store when storage is enabled. The mapper
// creates its table on connect.
func WithStorage(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Storage.Enabled {
			d.logger.Info().Msg("message storage is disabled")

			return nil
		}

		storage, err := infrastructure.NewStorage(d.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}

		d.Infra.StorageClient = storage

		mapper := repos.NewDocumentMapper(storage)
		if err := mapper.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect document mapper: %w", err)
		}

		d.Repos.Mapper = mapper
		d.logger.Info().Msg("message storage connected")

		return nil
	}
}

// WithValidator registers the topic schemas found in the configured directory.
func WithValidator() DependencyOption {
	return func(d *Dependencies) error {
		schemaValidator := validator.NewSchemaValidator(d.logger)

		if dir := d.cfg.Validation.SchemaDir; dir != "" {
			if err := schemaValidator.LoadDir(dir); err != nil {
				return fmt.Errorf("failed to load schemas: %w", err)
			}
		}

		d.Services.Validator = schemaValidator

		return nil
	}
}

// WithQueue builds and connects the configured backend in the given directions.
func WithQueue(ctx context.Context, dirs infrastructure.Directions) DependencyOption {
	return func(d *Dependencies) error {
		var extra []pkgqueue.Option
		if qm := d.Infra.Metrics.QueueMetrics(); qm != nil {
			extra = append(extra, pkgqueue.WithMetrics(qm))
		}

		queueClient, err := infrastructure.NewQueue(d.cfg.Queue, dirs, d.logger, extra...)
		if err != nil {
			return fmt.Errorf("failed to initialize queue: %w", err)
		}

		if err := queueClient.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to queue: %w", err)
		}

		d.Infra.QueueClient = queueClient
		d.Services.HealthChecker = adapters.NewHealthChecker(pingerOf(queueClient), d.storagePinger())

		return nil
	}
}

// WithGateway wires the emit and read side of the service.
func WithGateway() DependencyOption {
	return func(d *Dependencies) error {
		if d.Infra.QueueClient == nil {
			return fmt.Errorf("gateway requires a connected queue")
		}

		appService := service.NewApplicationService(
			d.Infra.QueueClient,
			d.objectFinder(),
			d.portsValidator(),
			d.Services.HealthChecker,
			d.Infra.Metrics,
			d.logger,
		)

		d.Apps.Gateway = usecases.NewGatewayApplication(
			appService,
			d.logger,
			otel.GetTracerProvider(),
			adapters.NewMetricsAdapter(d.Infra.Metrics),
		)

		return nil
	}
}

func WithHTTPServer() DependencyOption {
	return func(d *Dependencies) error {
		if err := WithGateway()(d); err != nil {
			return err
		}

		if d.cfg.Auth.UseVaultKeys && d.Repos.SecretStorageRepo == nil {
			return fmt.Errorf("vault keys require secret storage to be enabled")
		}

		d.Services.KeyService = infrastructure.NewPasetoKeyService(
			d.cfg.Auth,
			d.Repos.SecretStorageRepo,
			d.logger,
		)

		if d.cfg.Auth.Enabled && d.cfg.Auth.UseVaultKeys {
			d.Workers.Refresher = refresher.NewProcessor(
				d.cfg.Auth.KeyCacheTTL/2,
				d.logger,
				refresher.KeyRefreshTask(d.Services.KeyService),
			)
		}

		requestHandler := adapters.NewRequestHandler(d.Apps.Gateway, d.logger)

		httpServer, err := initHTTPServer(d.cfg, d.logger, d.Infra.Metrics, requestHandler, d.Services.KeyService)
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}

		d.Infra.HTTPServer = httpServer

		return nil
	}
}

// WithListener wires the record side. Received messages are printed to out
// when it is not nil.
func WithListener(out io.Writer) DependencyOption {
	return func(d *Dependencies) error {
		var saver ports.ObjectSaver
		if d.Repos.Mapper != nil {
			saver = d.Repos.Mapper
		}

		subscriberService := service.NewSubscriberService(d.portsValidator(), saver, d.logger)

		d.Apps.Listener = usecases.NewListenerApplication(
			subscriberService,
			d.logger,
			otel.GetTracerProvider(),
			adapters.NewMetricsAdapter(d.Infra.Metrics),
		)

		d.Workers.ListenWorker = queue.NewListenWorker(d.Apps.Listener, d.Infra.Metrics, out, d.logger)

		return nil
	}
}

// The helpers below avoid handing typed nils to optional collaborators.

func (d *Dependencies) objectFinder() ports.ObjectFinder {
	if d.Repos.Mapper == nil {
		return nil
	}

	return d.Repos.Mapper
}

func (d *Dependencies) portsValidator() ports.Validator {
	if d.Services.Validator == nil {
		return nil
	}

	return d.Services.Validator
}

func (d *Dependencies) storagePinger() ports.Pinger {
	if d.Repos.Mapper == nil {
		return nil
	}

	return d.Repos.Mapper
}

func pingerOf(q infrastructure.Queue) ports.Pinger {
	if p, ok := q.(ports.Pinger); ok {
		return p
	}

	return nil
}
