package secrets

import (
	"context"
	"errors"
	"strings"
)

// ErrSecretNotFound is returned when no provider holds the requested secret.
var ErrSecretNotFound = errors.New("secret not found")

// Provider looks up a secret value by name.
type Provider interface {
	// GetSecret returns the value or an error wrapping ErrSecretNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the provider in logs.
	Name() string
}

// normalizeName maps "redis-password" and "redis.password" to "REDIS_PASSWORD".
func normalizeName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return strings.ToUpper(r.Replace(strings.TrimSpace(name)))
}
