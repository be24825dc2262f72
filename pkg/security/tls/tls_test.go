package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/config"
)

// writeCert writes a self-signed pair valid from notBefore to notAfter and
// returns the file paths.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{"localhost"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func leafCN(t *testing.T, r *CertificateReloader) string {
	t.Helper()
	cert, _ := r.GetCertificate(nil)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestNewServerConfig(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "tollgate", now.Add(-time.Hour), now.Add(90*24*time.Hour))

	tests := []struct {
		name        string
		cfg         *config.TLSConfig
		wantNil     bool
		wantErr     bool
		wantVersion uint16
	}{
		{name: "nil", cfg: nil, wantNil: true},
		{name: "disabled", cfg: &config.TLSConfig{}, wantNil: true},
		{name: "missing files", cfg: &config.TLSConfig{Enabled: true}, wantErr: true},
		{name: "bad version", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.1"}, wantErr: true},
		{name: "default version", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, wantVersion: tls.VersionTLS12},
		{name: "tls 1.3", cfg: &config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"}, wantVersion: tls.VersionTLS13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, reloader, err := NewServerConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewServerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if cfg != nil || reloader != nil {
					t.Error("expected nil config when TLS is disabled")
				}
				return
			}
			if cfg.MinVersion != tt.wantVersion {
				t.Errorf("expected min version %x, got %x", tt.wantVersion, cfg.MinVersion)
			}
			cert, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
			if err != nil || cert == nil {
				t.Errorf("expected certificate, got %v / %v", cert, err)
			}
		})
	}
}

func TestValidateCertificate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   bool
	}{
		{"valid", now.Add(-time.Hour), now.Add(time.Hour), false},
		{"expired", now.Add(-48 * time.Hour), now.Add(-24 * time.Hour), true},
		{"not yet valid", now.Add(24 * time.Hour), now.Add(48 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := writeCert(t, t.TempDir(), "x", tt.notBefore, tt.notAfter)
			pair, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := ValidateCertificate(&pair, now); (err != nil) != tt.wantErr {
				t.Errorf("ValidateCertificate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := ValidateCertificate(&tls.Certificate{}, now); err == nil {
		t.Error("expected error for empty chain")
	}
}

func TestCertificateReloader_Rotation(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first", now.Add(-time.Hour), now.Add(time.Hour))

	r, err := NewCertificateReloader(certFile, keyFile, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCertificateReloader failed: %v", err)
	}
	if cn := leafCN(t, r); cn != "first" {
		t.Fatalf("expected first certificate, got %q", cn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	writeCert(t, dir, "second", now.Add(-time.Hour), now.Add(time.Hour))
	future := now.Add(time.Minute)
	if err := os.Chtimes(certFile, future, future); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if leafCN(t, r) == "second" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected rotated certificate to be served")
}

func TestCertificateReloader_KeepsOldOnBadRotation(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, "first", now.Add(-time.Hour), now.Add(time.Hour))

	r, err := NewCertificateReloader(certFile, keyFile, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.reload(); err == nil {
		t.Fatal("expected reload error for garbage certificate")
	}
	if cn := leafCN(t, r); cn != "first" {
		t.Errorf("expected previous certificate kept, got %q", cn)
	}
}

func TestNewCertificateReloader_MissingFiles(t *testing.T) {
	if _, err := NewCertificateReloader("/nonexistent.crt", "/nonexistent.key", 0); err == nil {
		t.Error("expected error for missing files")
	}
}
