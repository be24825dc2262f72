package apikey

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
)

var secretPattern = regexp.MustCompile(`^tg_[A-Za-z0-9_-]{43}$`)

func TestGenerator_Generate(t *testing.T) {
	gen := NewGenerator(DefaultSecretPrefix, DefaultSecretBytes)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		secret, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if !secretPattern.MatchString(secret) {
			t.Errorf("Secret %q does not match expected format", secret)
		}
		if len(secret) != gen.Len() {
			t.Errorf("Expected length %d, got %d", gen.Len(), len(secret))
		}
		if seen[secret] {
			t.Fatalf("Duplicate secret generated: %s", secret)
		}
		seen[secret] = true
	}
}

func TestGenerator_Len(t *testing.T) {
	gen := NewGenerator("tg_", 32)
	if gen.Len() != 46 {
		t.Errorf("Expected 46, got %d", gen.Len())
	}

	// Below-minimum entropy is raised.
	gen = NewGenerator("tg_", 8)
	if gen.Bytes != DefaultSecretBytes {
		t.Errorf("Expected bytes raised to %d, got %d", DefaultSecretBytes, gen.Bytes)
	}
}

func TestGenerator_DeterministicReader(t *testing.T) {
	gen := &Generator{Prefix: "tg_", Bytes: 32, Reader: bytes.NewReader(make([]byte, 32))}
	secret, err := gen.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if secret != "tg_"+strings.Repeat("A", 43) {
		t.Errorf("Unexpected secret for zero reader: %s", secret)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerator_ReaderError(t *testing.T) {
	gen := &Generator{Prefix: "tg_", Bytes: 32, Reader: failingReader{}}
	if _, err := gen.Generate(); err == nil {
		t.Error("Expected error from failing reader")
	}
}

func TestHashSecret(t *testing.T) {
	a := HashSecret("tg_one")
	b := HashSecret("tg_one")
	c := HashSecret("tg_two")

	if a != b {
		t.Error("Expected same digest for same secret")
	}
	if a == c {
		t.Error("Expected different digest for different secrets")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}
