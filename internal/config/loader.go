package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/kelseyhightower/envconfig"

	"github.com/architeacher/svc-pubsub/internal/ports"
)

const (
	vaultDataKey     = "data"
	vaultMetadataKey = "metadata"
	vaultVersionKey  = "version"
)

var errSecretStorageDisabled = errors.New("secret storage is not enabled")

// secretTargets maps secret keys to config fields. Every key is also exported
// to the process environment, so queue endpoints declared FromEnv resolve to
// the broker URLs kept in Vault.
var secretTargets = map[string]func(cfg *ServiceConfig, value string){
	"POSTGRES_USERNAME": func(cfg *ServiceConfig, v string) { cfg.Storage.Username = v },
	"POSTGRES_PASSWORD": func(cfg *ServiceConfig, v string) { cfg.Storage.Password = v },
	"POSTGRES_HOST":     func(cfg *ServiceConfig, v string) { cfg.Storage.Host = v },
	"POSTGRES_DATABASE": func(cfg *ServiceConfig, v string) { cfg.Storage.Database = v },
	"QUEUE_RX_URL":      func(cfg *ServiceConfig, v string) { cfg.Queue.RxURL = v },
	"QUEUE_TX_URL":      func(cfg *ServiceConfig, v string) { cfg.Queue.TxURL = v },
	"AUTH_FALLBACK_KEY_HEX": func(cfg *ServiceConfig, v string) {
		cfg.Auth.FallbackKeyHex = v
	},
}

// Loader handles configuration loading and reloading.
type Loader struct {
	cfg              *ServiceConfig
	secretsRepo      ports.SecretsRepository
	configSignalChan chan os.Signal
	reloadErrors     chan error
	ticker           *time.Ticker
	lastVersion      uint
	out              io.Writer
}

// NewLoader creates a new config loader instance.
func NewLoader(cfg *ServiceConfig, secretsRepo ports.SecretsRepository, initialVersion uint) *Loader {
	return &Loader{
		cfg:              cfg,
		secretsRepo:      secretsRepo,
		configSignalChan: make(chan os.Signal, 1),
		reloadErrors:     make(chan error, 1),
		lastVersion:      initialVersion,
		out:              os.Stdout,
	}
}

// Init config from environment variables.
func Init() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service configuration: %w", err)
	}

	if len(ServiceVersion) != 0 {
		cfg.AppConfig.ServiceVersion = ServiceVersion
	}

	if len(CommitSHA) != 0 {
		cfg.AppConfig.CommitSHA = CommitSHA
	}

	if len(APIVersion) != 0 {
		cfg.AppConfig.APIVersion = APIVersion
	}

	return cfg, nil
}

// WatchConfigSignals monitors for SIGHUP (reload) and SIGUSR1 (dump) signals.
// When secret storage is enabled a ticker triggers periodic reloads as well.
// Reload outcomes are reported on the returned channel.
func (l *Loader) WatchConfigSignals(ctx context.Context) <-chan error {
	signal.Notify(l.configSignalChan, syscall.SIGHUP, syscall.SIGUSR1)

	if l.cfg.SecretStorage.Enabled && l.cfg.SecretStorage.PollInterval > 0 {
		l.ticker = time.NewTicker(l.cfg.SecretStorage.PollInterval)
	}

	go func() {
		defer signal.Stop(l.configSignalChan)
		defer close(l.reloadErrors)

		var reloadTickerChan <-chan time.Time
		if l.ticker != nil {
			defer l.ticker.Stop()

			reloadTickerChan = l.ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return

			case <-reloadTickerChan:
				l.handleConfigReload(ctx)

			case sig := <-l.configSignalChan:
				switch sig {
				case syscall.SIGHUP:
					l.handleConfigReload(ctx)

				case syscall.SIGUSR1:
					l.DumpConfig()
				}
			}
		}
	}()

	return l.reloadErrors
}

// DumpConfig writes the current configuration as JSON. Secrets are tagged
// omitempty but still printed when set, so only use it on trusted terminals.
func (l *Loader) DumpConfig() {
	configJSON, err := json.MarshalIndent(l.cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(l.out, "Error marshaling config: %v\n", err)

		return
	}

	fmt.Fprintf(l.out, "\n=== Configuration Dump ===\n%s\n=== End Configuration ===\n\n", string(configJSON))
}

// Load applies the secrets stored in Vault to cfg and returns their version.
func (l *Loader) Load(ctx context.Context, cfg *ServiceConfig) (uint, error) {
	if !cfg.SecretStorage.Enabled {
		return 0, errSecretStorageDisabled
	}

	if err := authenticate(ctx, l.secretsRepo, cfg.SecretStorage); err != nil {
		return 0, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	data, version, err := l.readSecrets(ctx, cfg.SecretStorage)
	if err != nil {
		return 0, fmt.Errorf("failed to load secrets from Vault: %w", err)
	}

	if err := applySecrets(cfg, data); err != nil {
		return 0, fmt.Errorf("failed to apply secrets to config: %w", err)
	}

	return version, nil
}

func (l *Loader) handleConfigReload(ctx context.Context) {
	if !l.cfg.SecretStorage.Enabled {
		fresh, err := Init()
		if err != nil {
			l.reportReloadStatus(err)

			return
		}

		l.cfg.Logging = fresh.Logging
		l.reportReloadStatus(nil)

		return
	}

	_, version, err := l.readSecrets(ctx, l.cfg.SecretStorage)
	if err != nil {
		l.reportReloadStatus(fmt.Errorf("failed to read secret version: %w", err))

		return
	}

	if version == l.lastVersion {
		return
	}

	version, err = l.Load(ctx, l.cfg)
	if err != nil {
		l.reportReloadStatus(err)

		return
	}

	l.lastVersion = version
	l.reportReloadStatus(nil)
}

func authenticate(ctx context.Context, client ports.SecretsRepository, cfg SecretStorageConfig) error {
	switch strings.ToLower(cfg.AuthMethod) {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth method")
		}

		client.SetToken(cfg.Token)

		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for approle auth method")
		}

		resp, err := client.WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("failed to authenticate via approle: %w", err)
		}

		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("no auth info returned from Vault")
		}

		client.SetToken(resp.Auth.ClientToken)

		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// readSecrets reads the KV v2 entry of the service. The payload carries both
// the secret values and their metadata.
func (l *Loader) readSecrets(ctx context.Context, cfg SecretStorageConfig) (map[string]any, uint, error) {
	path := fmt.Sprintf("apps/%s/%s", vaultDataKey, cfg.MountPath)

	secret, err := readWithRetry(ctx, l.secretsRepo, path, cfg)
	if err != nil {
		return nil, 0, err
	}

	if secret == nil || secret.Data == nil {
		return nil, 0, nil
	}

	data, ok := secret.Data[vaultDataKey].(map[string]any)
	if !ok {
		return nil, 0, fmt.Errorf("invalid secret format at path %s, missing '%s' key", path, vaultDataKey)
	}

	metadata, _ := secret.Data[vaultMetadataKey].(map[string]any)

	version, err := secretVersion(metadata)
	if err != nil {
		return nil, 0, err
	}

	return data, version, nil
}

func readWithRetry(ctx context.Context, repo ports.SecretsRepository, path string, cfg SecretStorageConfig) (*api.Secret, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var (
		secret *api.Secret
		err    error
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		secret, err = repo.GetSecrets(ctx, path)
		if err == nil {
			return secret, nil
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to read from path %s: %w", path, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to read from path %s after %d retries: %w", path, cfg.MaxRetries, err)
}

func secretVersion(metadata map[string]any) (uint, error) {
	raw, ok := metadata[vaultVersionKey]
	if !ok {
		return 0, nil
	}

	switch v := raw.(type) {
	case float64:
		return uint(v), nil
	case int:
		return uint(v), nil
	case uint:
		return v, nil
	case json.Number:
		version, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to parse version: %w", err)
		}

		return uint(version), nil
	default:
		return 0, fmt.Errorf("unexpected version type: %T", raw)
	}
}

func applySecrets(cfg *ServiceConfig, data map[string]any) error {
	for key, value := range data {
		str, ok := value.(string)
		if !ok || str == "" {
			continue
		}

		if err := os.Setenv(key, str); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", key, err)
		}

		if set, ok := secretTargets[key]; ok {
			set(cfg, str)
		}
	}

	return nil
}

// reportReloadStatus never blocks when nobody listens.
func (l *Loader) reportReloadStatus(err error) {
	select {
	case l.reloadErrors <- err:
	default:
	}
}
