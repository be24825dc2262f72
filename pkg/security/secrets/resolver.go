package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"tollgate-hq/tollgate/pkg/config"
)

var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver expands ${secret:name} references using an ordered provider list.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
}

// NewResolver creates a resolver. Providers are consulted in order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		logger:    slog.Default().With("component", "security.secrets"),
	}
}

// GetSecret returns the value from the first provider that has it.
func (r *Resolver) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, p := range r.providers {
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			r.logger.Debug("secret resolved", "provider", p.Name(), "name", redactSecretName(name))
			return value, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s (no providers configured)", ErrSecretNotFound, name)
	}
	return "", errors.Join(errs...)
}

// Resolve replaces every reference in input. Strings without references are
// returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	var errs []error
	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := r.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("secret %q: %w", name, err))
			return match
		}
		return value
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return output, nil
}

// ResolveConfig expands references in the secret-bearing fields of cfg in place.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"keys.encryption_key", &cfg.Keys.EncryptionKey},
		{"keys.redis.password", &cfg.Keys.Redis.Password},
	}
	for _, f := range fields {
		value, err := r.Resolve(ctx, *f.ptr)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.ptr = value
	}
	return nil
}

// HasReference reports whether s contains a ${secret:...} reference.
func HasReference(s string) bool {
	return secretRefRegex.MatchString(s)
}

func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
