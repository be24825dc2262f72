package secrets

import (
	"context"
	"fmt"
	"os"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "TOLLGATE_SECRET_"

// EnvProvider reads secrets from environment variables.
//
// The secret "redis-password" is read from TOLLGATE_SECRET_REDIS_PASSWORD
// with the default prefix.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment provider. An empty prefix uses
// DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{Prefix: prefix}
}

// GetSecret implements Provider.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envVar := p.Prefix + normalizeName(name)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrSecretNotFound, name, envVar)
	}
	return value, nil
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }
