package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aidanwoods.dev/go-paseto/v2"

	"github.com/architeacher/svc-pubsub/internal/config"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const (
	vaultKeyDataField    = "data"
	vaultKeyField        = "public_key"
	vaultKeyVersionField = "version"
	unknownKeyVersion    = "unknown"
)

var (
	errEmptyKeySecret = errors.New("vault secret data is nil")
	errKeyNotFound    = errors.New("public_key field not found or empty")
)

type (
	// PasetoKeyService resolves the public key used to verify gateway tokens.
	// Keys read from Vault are cached for the configured TTL, and any failure
	// to read them falls back to the configured key.
	PasetoKeyService struct {
		config      config.AuthConfig
		secretsRepo ports.SecretsRepository
		logger      Logger
		now         func() time.Time

		mu        sync.RWMutex
		cachedKey *paseto.V4AsymmetricPublicKey
		expiry    time.Time
	}
)

var _ ports.KeyService = (*PasetoKeyService)(nil)

func NewPasetoKeyService(
	cfg config.AuthConfig,
	secretsRepo ports.SecretsRepository,
	logger Logger,
) *PasetoKeyService {
	return &PasetoKeyService{
		config:      cfg,
		secretsRepo: secretsRepo,
		logger:      logger.Component("paseto_keys"),
		now:         time.Now,
	}
}

func (s *PasetoKeyService) GetPublicKey(ctx context.Context) (paseto.V4AsymmetricPublicKey, error) {
	if !s.config.UseVaultKeys {
		return s.loadFallbackKey()
	}

	if key, ok := s.cached(); ok {
		return key, nil
	}

	return s.refresh(ctx, false)
}

// RefreshKey drops the cached key and reads it again from Vault.
func (s *PasetoKeyService) RefreshKey(ctx context.Context) error {
	s.logger.Info().Msg("forcing PASETO key refresh from Vault")

	_, err := s.refresh(ctx, true)

	return err
}

func (s *PasetoKeyService) cached() (paseto.V4AsymmetricPublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cachedKey == nil || !s.now().Before(s.expiry) {
		return paseto.V4AsymmetricPublicKey{}, false
	}

	return *s.cachedKey, true
}

func (s *PasetoKeyService) refresh(ctx context.Context, force bool) (paseto.V4AsymmetricPublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have loaded it while we waited for the lock.
	if !force && s.cachedKey != nil && s.now().Before(s.expiry) {
		return *s.cachedKey, nil
	}

	key, version, err := s.readVaultKey(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("path", s.config.PasetoKeyPath).
			Msg("failed to load PASETO key from Vault, using fallback key")

		return s.loadFallbackKey()
	}

	s.cachedKey = &key
	s.expiry = s.now().Add(s.config.KeyCacheTTL)

	s.logger.Info().
		Str("key_version", version).
		Time("expiry", s.expiry).
		Msg("cached PASETO public key from Vault")

	return key, nil
}

func (s *PasetoKeyService) readVaultKey(ctx context.Context) (paseto.V4AsymmetricPublicKey, string, error) {
	secret, err := s.secretsRepo.GetSecrets(ctx, s.config.PasetoKeyPath)
	if err != nil {
		return paseto.V4AsymmetricPublicKey{}, "", err
	}

	if secret == nil || secret.Data == nil {
		return paseto.V4AsymmetricPublicKey{}, "", errEmptyKeySecret
	}

	data, ok := secret.Data[vaultKeyDataField].(map[string]any)
	if !ok {
		return paseto.V4AsymmetricPublicKey{}, "", fmt.Errorf("vault secret is missing the %q wrapper", vaultKeyDataField)
	}

	publicKeyHex, _ := data[vaultKeyField].(string)
	if publicKeyHex == "" {
		return paseto.V4AsymmetricPublicKey{}, "", errKeyNotFound
	}

	version, _ := data[vaultKeyVersionField].(string)
	if version == "" {
		version = unknownKeyVersion
	}

	key, err := paseto.NewV4AsymmetricPublicKeyFromHex(publicKeyHex)
	if err != nil {
		return paseto.V4AsymmetricPublicKey{}, version, fmt.Errorf("failed to parse public key version %s: %w", version, err)
	}

	return key, version, nil
}

func (s *PasetoKeyService) loadFallbackKey() (paseto.V4AsymmetricPublicKey, error) {
	key, err := paseto.NewV4AsymmetricPublicKeyFromHex(s.config.FallbackKeyHex)
	if err != nil {
		return paseto.V4AsymmetricPublicKey{}, fmt.Errorf("failed to create fallback PASETO public key: %w", err)
	}

	s.logger.Debug().Msg("using fallback PASETO public key")

	return key, nil
}
