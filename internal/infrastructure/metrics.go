package infrastructure

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/pkg/queue"
)

const (
	metricsNamespace = "svc_pubsub"
)

type (
	Metrics interface {
		RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64)
		RecordEmit(ctx context.Context, topic string, duration time.Duration, success bool)
		RecordMessageProcessed(ctx context.Context, topic, outcome string, duration time.Duration)
		RecordCommand(ctx context.Context, name string, duration time.Duration, success bool)
		QueueMetrics() *queue.Metrics
		Handler() http.Handler
		Shutdown(ctx context.Context) error
	}

	// OTELMetrics records service instruments through OpenTelemetry and
	// serves the queue library collectors from a Prometheus registry.
	OTELMetrics struct {
		meterProvider *sdkmetric.MeterProvider
		meter         metric.Meter
		registry      *prometheus.Registry
		queueMetrics  *queue.Metrics
		logger        Logger

		httpRequestTotal         metric.Int64Counter
		httpRequestDuration      metric.Float64Histogram
		httpRequestSize          metric.Int64Histogram
		httpResponseSize         metric.Int64Histogram
		emitTotal                metric.Int64Counter
		emitDuration             metric.Float64Histogram
		messagesProcessedTotal   metric.Int64Counter
		messageProcessedDuration metric.Float64Histogram
		commandTotal             metric.Int64Counter
		commandDuration          metric.Float64Histogram
	}
)

var _ Metrics = (*OTELMetrics)(nil)
var _ Metrics = (*NoOpMetrics)(nil)

func NewMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (Metrics, error) {
	if !cfg.Telemetry.Metrics.Enabled {
		logger.Info().Msg("metrics disabled, using NoOp implementation")

		return &NoOpMetrics{}, nil
	}

	return NewOTELMetrics(ctx, cfg, logger)
}

func NewOTELMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*OTELMetrics, error) {
	reader, err := newMetricReader(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	return newOTELMetrics(ctx, cfg.AppConfig, reader, logger)
}

// newMetricReader pushes to the collector when OTLP export is on. Otherwise
// instruments are kept in a manual reader and only queue collectors are served.
func newMetricReader(ctx context.Context, tel config.Telemetry) (sdkmetric.Reader, error) {
	if !tel.Metrics.OTLPEnabled {
		return sdkmetric.NewManualReader(), nil
	}

	endpoint := net.JoinHostPort(tel.OtelGRPCHost, tel.OtelGRPCPort)

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter), nil
}

func newOTELMetrics(ctx context.Context, app config.AppConfig, reader sdkmetric.Reader, logger Logger) (*OTELMetrics, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(app.ServiceName),
			semconv.ServiceVersionKey.String(app.ServiceVersion),
			semconv.ServiceInstanceIDKey.String(app.CommitSHA),
			semconv.DeploymentEnvironmentKey.String(app.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	queueMetrics, err := queue.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	provider := &OTELMetrics{
		meterProvider: meterProvider,
		meter: meterProvider.Meter(
			metricsNamespace,
			metric.WithInstrumentationVersion(app.ServiceVersion),
		),
		registry:     registry,
		queueMetrics: queueMetrics,
		logger:       logger.Component("metrics"),
	}

	if err := provider.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	provider.logger.Info().Msg("metrics provider initialized successfully")

	return provider, nil
}

func (om *OTELMetrics) initializeMetrics() error {
	var err error

	om.httpRequestTotal, err = om.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	om.httpRequestDuration, err = om.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	om.httpRequestSize, err = om.meter.Int64Histogram(
		"http_request_size_bytes",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_size_bytes histogram: %w", err)
	}

	om.httpResponseSize, err = om.meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_response_size_bytes histogram: %w", err)
	}

	om.emitTotal, err = om.meter.Int64Counter(
		"emits_total",
		metric.WithDescription("Total number of messages emitted through the service"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create emits_total counter: %w", err)
	}

	om.emitDuration, err = om.meter.Float64Histogram(
		"emit_duration_seconds",
		metric.WithDescription("Time spent emitting one message in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create emit_duration_seconds histogram: %w", err)
	}

	om.messagesProcessedTotal, err = om.meter.Int64Counter(
		"messages_processed_total",
		metric.WithDescription("Total number of received messages by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create messages_processed_total counter: %w", err)
	}

	om.messageProcessedDuration, err = om.meter.Float64Histogram(
		"message_processing_seconds",
		metric.WithDescription("Time spent processing one received message in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create message_processing_seconds histogram: %w", err)
	}

	om.commandTotal, err = om.meter.Int64Counter(
		"commands_total",
		metric.WithDescription("Total number of executed application commands and queries"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create commands_total counter: %w", err)
	}

	om.commandDuration, err = om.meter.Float64Histogram(
		"command_duration_seconds",
		metric.WithDescription("Application command and query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create command_duration_seconds histogram: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	withStatus := metric.WithAttributes(
		HTTPMethodAttr(method),
		HTTPPathAttr(path),
		HTTPStatusCodeAttr(statusCode),
	)

	om.httpRequestTotal.Add(ctx, 1, withStatus)
	om.httpRequestDuration.Record(ctx, duration.Seconds(), withStatus)
	om.httpRequestSize.Record(ctx, requestSize,
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
		),
	)
	om.httpResponseSize.Record(ctx, responseSize, withStatus)
}

func (om *OTELMetrics) RecordEmit(ctx context.Context, topic string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(TopicAttr(topic), StatusAttr(statusOf(success)))

	om.emitTotal.Add(ctx, 1, attrs)
	om.emitDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) RecordMessageProcessed(ctx context.Context, topic, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(TopicAttr(topic), OutcomeAttr(outcome))

	om.messagesProcessedTotal.Add(ctx, 1, attrs)
	om.messageProcessedDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) RecordCommand(ctx context.Context, name string, duration time.Duration, success bool) {
	attrs := metric.WithAttributes(CommandAttr(name), StatusAttr(statusOf(success)))

	om.commandTotal.Add(ctx, 1, attrs)
	om.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) QueueMetrics() *queue.Metrics {
	return om.queueMetrics
}

func (om *OTELMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(om.registry, promhttp.HandlerOpts{Registry: om.registry})
}

func (om *OTELMetrics) Shutdown(ctx context.Context) error {
	if err := om.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	return nil
}
