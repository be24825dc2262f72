package apikey

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed secret format versions. The first byte of a sealed secret selects
// the format so that enabling encryption later does not strand existing keys.
const (
	sealPlain   byte = 0x00
	sealXChaCha byte = 0x01
)

// ErrSealed is returned when a sealed secret is read without a key.
var ErrSealed = errors.New("secret is sealed; configure keys.encryption_key")

// Sealer protects secrets at rest. The key id is bound to the sealed value so
// that a sealed secret cannot be moved to another record.
type Sealer interface {
	Seal(id, secret string) ([]byte, error)
	Open(id string, sealed []byte) (string, error)
}

// PlainSealer stores secrets as issued.
type PlainSealer struct{}

// Seal implements Sealer.
func (PlainSealer) Seal(_ string, secret string) ([]byte, error) {
	return append([]byte{sealPlain}, secret...), nil
}

// Open implements Sealer.
func (PlainSealer) Open(_ string, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", fmt.Errorf("empty sealed secret")
	}
	switch sealed[0] {
	case sealPlain:
		return string(sealed[1:]), nil
	case sealXChaCha:
		return "", ErrSealed
	default:
		return "", fmt.Errorf("unknown sealed secret format 0x%02x", sealed[0])
	}
}

// AEADSealer seals secrets with XChaCha20-Poly1305 under a 32-byte key.
type AEADSealer struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// NewAEADSealer returns an AEADSealer for key.
func NewAEADSealer(key []byte) (*AEADSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize XChaCha20-Poly1305: %w", err)
	}
	return &AEADSealer{aead: aead, nonce: rand.Reader}, nil
}

// Seal implements Sealer. The output is version || nonce || ciphertext.
func (s *AEADSealer) Seal(id, secret string) ([]byte, error) {
	out := make([]byte, 1+s.aead.NonceSize(), 1+s.aead.NonceSize()+len(secret)+s.aead.Overhead())
	out[0] = sealXChaCha
	nonce := out[1:]
	if _, err := io.ReadFull(s.nonce, nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	return s.aead.Seal(out, nonce, []byte(secret), []byte(id)), nil
}

// Open implements Sealer. Plain secrets written before encryption was
// enabled are returned as-is.
func (s *AEADSealer) Open(id string, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", fmt.Errorf("empty sealed secret")
	}
	switch sealed[0] {
	case sealPlain:
		return string(sealed[1:]), nil
	case sealXChaCha:
	default:
		return "", fmt.Errorf("unknown sealed secret format 0x%02x", sealed[0])
	}

	ns := s.aead.NonceSize()
	if len(sealed) < 1+ns+s.aead.Overhead() {
		return "", fmt.Errorf("sealed secret too short")
	}
	plain, err := s.aead.Open(nil, sealed[1:1+ns], sealed[1+ns:], []byte(id))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed secret: %w", err)
	}
	return string(plain), nil
}
