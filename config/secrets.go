package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SecretStore abstracts secret retrieval so deployments can swap in a
// vault-backed implementation without touching config loading.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct{}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{}
}

func (s *EnvironmentSecretStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret %s not found", key)
	}
	return value, nil
}

// GetWithDefault returns the secret value, or fallback when unset.
func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, fallback string) string {
	if value, err := s.Get(ctx, key); err == nil {
		return value
	}
	return fallback
}

// LoadSecretsFromEnv overlays secret values onto an already loaded config.
// Secrets are kept out of config files so they never land on disk.
func LoadSecretsFromEnv(ctx context.Context, cfg *Config) error {
	store := NewEnvironmentSecretStore()

	if dsn := store.GetWithDefault(ctx, "LOYALTYKIT_STORAGE_SQL_DSN", ""); dsn != "" {
		cfg.Storage.SQL.DSN = dsn
	}
	if password := store.GetWithDefault(ctx, "LOYALTYKIT_STORAGE_REDIS_PASSWORD", ""); password != "" {
		cfg.Storage.Redis.Password = password
	}
	if keys := store.GetWithDefault(ctx, "LOYALTYKIT_SECURITY_API_KEYS", ""); keys != "" {
		parts := strings.Split(keys, ",")
		cfg.Security.APIKeys = cfg.Security.APIKeys[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Security.APIKeys = append(cfg.Security.APIKeys, p)
			}
		}
	}

	return cfg.Security.Validate()
}
