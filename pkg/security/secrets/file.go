package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxSecretFileSize bounds how much of a secret file is read.
const maxSecretFileSize = 64 * 1024

// FileProvider reads secrets from files in a directory.
//
// The secret "redis-password" is looked up as <dir>/redis-password and, failing
// that, <dir>/REDIS_PASSWORD. Trailing whitespace is trimmed.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// GetSecret implements Provider.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	for _, candidate := range []string{name, normalizeName(name)} {
		path := filepath.Join(p.dir, candidate)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to stat secret file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if info.Size() > maxSecretFileSize {
			return "", fmt.Errorf("secret file %s exceeds %d bytes", path, maxSecretFileSize)
		}

		data, err := os.ReadFile(path) // #nosec G304 - path is confined to the configured directory
		if err != nil {
			return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
		}
		value := strings.TrimRight(string(data), " \t\r\n")
		if value == "" {
			return "", fmt.Errorf("%w: %s (file %s is empty)", ErrSecretNotFound, name, path)
		}
		return value, nil
	}

	return "", fmt.Errorf("%w: %s (dir %s)", ErrSecretNotFound, name, p.dir)
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }
