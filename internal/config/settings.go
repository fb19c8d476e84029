package config

import (
	"time"

	"github.com/architeacher/svc-pubsub/pkg/backoff"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
	APIVersion     string
)

const (
	BackendAMQP  = "amqp"
	BackendRedis = "redis"
)

const (
	ExporterGRPC   = "grpc"
	ExporterStdout = "stdout"
)

type (
	ServiceConfig struct {
		AppConfig     AppConfig           `json:"app_config"`
		Logging       LoggingConfig       `json:"logging"`
		Telemetry     Telemetry           `json:"telemetry"`
		SecretStorage SecretStorageConfig `json:"secret_storage"`
		HTTPServer    HTTPServerConfig    `json:"http_server"`
		Storage       StorageConfig       `json:"storage"`
		Queue         QueueConfig         `json:"queue"`
		Validation    ValidationConfig    `json:"validation"`
		RateLimiting  RateLimitingConfig  `json:"rate_limiting"`
		Backoff       backoff.Config      `json:"backoff"`
		Auth          AuthConfig          `json:"auth"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"svc-pubsub" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		APIVersion     string `envconfig:"APP_API_VERSION" default:"v1" json:"api_version"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level     string          `envconfig:"LOGGING_LEVEL" default:"info" json:"level"`
		Format    string          `envconfig:"LOGGING_FORMAT" default:"json" json:"format"`
		AccessLog AccessLogConfig `json:"access_log"`
	}

	AccessLogConfig struct {
		Enabled         bool `envconfig:"ACCESS_LOG_ENABLED" default:"true" json:"enabled"`
		LogHealthChecks bool `envconfig:"ACCESS_LOG_HEALTH_CHECKS" default:"false" json:"log_health_checks"`
	}

	Telemetry struct {
		ExporterType string `envconfig:"OTEL_EXPORTER" default:"grpc" json:"exporter_type"`

		OtelGRPCHost string `envconfig:"OTEL_HOST" json:"otel_grpc_host"`
		OtelGRPCPort string `envconfig:"OTEL_PORT" default:"4317" json:"otel_grpc_port"`

		Metrics Metrics `json:"metrics"`
		Traces  Traces  `json:"traces"`
	}

	Metrics struct {
		Enabled bool `envconfig:"METRICS_ENABLED" default:"false" json:"enabled"`
		// OTLPEnabled pushes HTTP metrics to the collector in addition to the
		// Prometheus endpoint.
		OTLPEnabled bool `envconfig:"METRICS_OTLP_ENABLED" default:"false" json:"otlp_enabled"`
	}

	Traces struct {
		Enabled      bool    `envconfig:"TRACES_ENABLED" default:"false" json:"enabled"`
		SamplerRatio float64 `envconfig:"TRACES_SAMPLER_RATIO" default:"1" json:"sampler_ratio"`
	}

	SecretStorageConfig struct {
		Enabled       bool          `envconfig:"VAULT_ENABLED" default:"false" json:"enabled"`
		Address       string        `envconfig:"VAULT_ADDRESS" default:"http://vault:8200" json:"address"`
		Token         string        `envconfig:"VAULT_TOKEN" json:"token,omitempty"`
		RoleID        string        `envconfig:"VAULT_ROLE_ID" json:"role_id,omitempty"`
		SecretID      string        `envconfig:"VAULT_SECRET_ID" json:"secret_id,omitempty"`
		AuthMethod    string        `envconfig:"VAULT_AUTH_METHOD" default:"token" json:"auth_method"`
		MountPath     string        `envconfig:"VAULT_MOUNT_PATH" default:"svc-pubsub" json:"mount_path"`
		Namespace     string        `envconfig:"VAULT_NAMESPACE" json:"namespace,omitempty"`
		Timeout       time.Duration `envconfig:"VAULT_TIMEOUT" default:"30s" json:"timeout"`
		MaxRetries    int           `envconfig:"VAULT_MAX_RETRIES" default:"3" json:"max_retries"`
		TLSSkipVerify bool          `envconfig:"VAULT_TLS_SKIP_VERIFY" default:"false" json:"tls_skip_verify"`
		PollInterval  time.Duration `envconfig:"VAULT_POLL_INTERVAL" default:"24h" json:"poll_interval"`
	}

	HTTPServerConfig struct {
		Port            int           `envconfig:"HTTP_SERVER_PORT" default:"8088" json:"port"`
		Host            string        `envconfig:"HTTP_SERVER_HOST" default:"0.0.0.0" json:"host"`
		ReadTimeout     time.Duration `envconfig:"HTTP_SERVER_READ_TIMEOUT" default:"30s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"HTTP_SERVER_WRITE_TIMEOUT" default:"30s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"HTTP_SERVER_IDLE_TIMEOUT" default:"120s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SERVER_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
	}

	StorageConfig struct {
		Enabled         bool          `envconfig:"POSTGRES_ENABLED" default:"false" json:"enabled"`
		Host            string        `envconfig:"POSTGRES_HOST" default:"postgres" json:"host"`
		Port            int           `envconfig:"POSTGRES_PORT" default:"5432" json:"port"`
		Database        string        `envconfig:"POSTGRES_DATABASE" default:"pubsub" json:"database"`
		Username        string        `envconfig:"POSTGRES_USERNAME" default:"postgres" json:"username"`
		Password        string        `envconfig:"POSTGRES_PASSWORD" json:"password,omitempty"`
		SSLMode         string        `envconfig:"POSTGRES_SSL_MODE" default:"disable" json:"ssl_mode"`
		MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25" json:"max_open_conns"`
		MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5" json:"max_idle_conns"`
		ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"5m" json:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"5m" json:"conn_max_idle_time"`
		ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		QueryTimeout    time.Duration `envconfig:"POSTGRES_QUERY_TIMEOUT" default:"30s" json:"query_timeout"`
	}

	// QueueConfig selects a backend and tunes it. Empty URLs fall back to the
	// backend's well-known environment variables.
	QueueConfig struct {
		Backend              string               `envconfig:"QUEUE_BACKEND" default:"amqp" json:"backend"`
		Name                 string               `envconfig:"QUEUE_NAME" default:"queue" json:"name"`
		Type                 string               `envconfig:"QUEUE_EXCHANGE_TYPE" default:"direct" json:"type"`
		ExchangeName         string               `envconfig:"QUEUE_EXCHANGE_NAME" json:"exchange_name"`
		RxURL                string               `envconfig:"QUEUE_RX_URL" json:"rx_url,omitempty"`
		TxURL                string               `envconfig:"QUEUE_TX_URL" json:"tx_url,omitempty"`
		Durable              bool                 `envconfig:"QUEUE_DURABLE" default:"true" json:"durable"`
		AutoDelete           bool                 `envconfig:"QUEUE_AUTO_DELETE" default:"false" json:"auto_delete"`
		ServerNamed          bool                 `envconfig:"QUEUE_SERVER_NAMED" default:"false" json:"server_named"`
		AutoAck              bool                 `envconfig:"QUEUE_AUTO_ACK" default:"false" json:"auto_ack"`
		PrefetchCount        int                  `envconfig:"QUEUE_PREFETCH_COUNT" default:"10" json:"prefetch_count"`
		ConnectTimeout       time.Duration        `envconfig:"QUEUE_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
		PublishTimeout       time.Duration        `envconfig:"QUEUE_PUBLISH_TIMEOUT" default:"3s" json:"publish_timeout"`
		MaxReconnectAttempts int                  `envconfig:"QUEUE_MAX_RECONNECT_ATTEMPTS" default:"5" json:"max_reconnect_attempts"`
		CircuitBreaker       CircuitBreakerConfig `json:"circuit_breaker"`
	}

	CircuitBreakerConfig struct {
		Enabled     bool          `envconfig:"QUEUE_BREAKER_ENABLED" default:"false" json:"enabled"`
		MaxRequests uint32        `envconfig:"QUEUE_BREAKER_MAX_REQUESTS" default:"3" json:"max_requests"`
		Interval    time.Duration `envconfig:"QUEUE_BREAKER_INTERVAL" default:"10s" json:"interval"`
		Timeout     time.Duration `envconfig:"QUEUE_BREAKER_TIMEOUT" default:"60s" json:"timeout"`
		MaxFailures uint32        `envconfig:"QUEUE_BREAKER_MAX_FAILURES" default:"5" json:"max_failures"`
	}

	// ValidationConfig points at JSON schema files registered by name, one
	// file per payload type, e.g. greeting.json registers "greeting".
	ValidationConfig struct {
		SchemaDir string `envconfig:"VALIDATION_SCHEMA_DIR" json:"schema_dir"`
	}

	RateLimitingConfig struct {
		Enabled           bool     `envconfig:"RATE_LIMITING_ENABLED" default:"true" json:"enabled"`
		RequestsPerSecond int      `envconfig:"RATE_LIMITING_REQUESTS_PER_SECOND" default:"50" json:"requests_per_second"`
		BurstSize         int      `envconfig:"RATE_LIMITING_BURST_SIZE" default:"100" json:"burst_size"`
		MaxKeys           int      `envconfig:"RATE_LIMITING_MAX_KEYS" default:"65536" json:"max_keys"`
		SkipPaths         []string `envconfig:"RATE_LIMITING_SKIP_PATHS" default:"/v1/health,/metrics" json:"skip_paths"`
	}

	AuthConfig struct {
		Enabled        bool          `envconfig:"AUTH_ENABLED" default:"true" json:"enabled"`
		ValidIssuers   []string      `envconfig:"AUTH_VALID_ISSUERS" default:"svc-pubsub,auth-service" json:"valid_issuers"`
		SkipPaths      []string      `envconfig:"AUTH_SKIP_PATHS" default:"/v1/health,/metrics" json:"skip_paths"`
		PasetoKeyPath  string        `envconfig:"AUTH_PASETO_KEY_PATH" default:"secret/data/paseto/public-key" json:"paseto_key_path"`
		UseVaultKeys   bool          `envconfig:"AUTH_USE_VAULT_KEYS" default:"false" json:"use_vault_keys"`
		KeyCacheTTL    time.Duration `envconfig:"AUTH_KEY_CACHE_TTL" default:"1h" json:"key_cache_ttl"`
		FallbackKeyHex string        `envconfig:"AUTH_FALLBACK_KEY_HEX" json:"fallback_key_hex,omitempty"`
	}
)
