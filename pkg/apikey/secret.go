package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// DefaultSecretPrefix marks Tollgate secrets so they are recognizable in
	// logs and by secret scanners.
	DefaultSecretPrefix = "tg_"

	// DefaultSecretBytes is the amount of entropy in a generated secret.
	DefaultSecretBytes = 32
)

// Generator produces secrets: Bytes random bytes from Reader encoded with
// unpadded base64url and prefixed with Prefix. Every secret of a generator
// has the same length.
type Generator struct {
	Prefix string
	Bytes  int
	Reader io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand. Values below
// DefaultSecretBytes are raised to it.
func NewGenerator(prefix string, n int) *Generator {
	if n < DefaultSecretBytes {
		n = DefaultSecretBytes
	}
	return &Generator{Prefix: prefix, Bytes: n, Reader: rand.Reader}
}

// Generate returns a new secret.
func (g *Generator) Generate() (string, error) {
	r := g.Reader
	if r == nil {
		r = rand.Reader
	}
	n := g.Bytes
	if n <= 0 {
		n = DefaultSecretBytes
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return g.Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Len returns the length of every secret this generator produces.
func (g *Generator) Len() int {
	n := g.Bytes
	if n <= 0 {
		n = DefaultSecretBytes
	}
	return len(g.Prefix) + base64.RawURLEncoding.EncodedLen(n)
}

// HashSecret returns the hex SHA-256 digest used to index secrets.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
