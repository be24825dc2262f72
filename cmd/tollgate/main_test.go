package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
	"tollgate-hq/tollgate/pkg/telemetry"
	"tollgate-hq/tollgate/pkg/usage"
)

// useConfig installs a configuration backed by SQLite files in a temp dir.
func useConfig(t *testing.T, modify func(*config.Config)) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Keys.Backend = "sqlite"
	cfg.Keys.SQLite.Path = filepath.Join(dir, "keys.db")
	cfg.Keys.MaxUses = 5
	cfg.Usage.Backend = "sqlite"
	cfg.Usage.SQLite.Path = filepath.Join(dir, "usage.db")
	cfg.Usage.Retention.ArchivePath = filepath.Join(dir, "archives")
	if modify != nil {
		modify(cfg)
	}

	config.SetConfig(cfg)
	t.Cleanup(func() { config.SetConfig(nil) })
	return cfg
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	keysFlags.name, keysFlags.output, keysFlags.noConfirm = "", "text", false
	usageFlags = struct {
		keyID      string
		since      string
		until      string
		success    string
		limit      int
		desc       bool
		output     string
		format     string
		outFile    string
		pretty     bool
		days       int
		maxRecords int64
	}{output: "text", format: "json", days: -1, maxRecords: -1}
	metricsFlags.perKey = false
	runFlags.listenAddress, runFlags.logLevel, runFlags.dryRun = "", "", false

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func decodeRecords(t *testing.T, out string) []map[string]string {
	t.Helper()
	var records []map[string]string
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	return records
}

func TestKeysLifecycle(t *testing.T) {
	useConfig(t, nil)

	out, err := execute(t, "", "keys", "create", "--name", "ci", "-o", "json")
	if err != nil {
		t.Fatalf("keys create failed: %v", err)
	}
	created := decodeRecords(t, out)
	if len(created) != 1 || !strings.HasPrefix(created[0]["secret"], apikey.DefaultSecretPrefix) {
		t.Fatalf("unexpected create output %v", created)
	}
	id, secret := created[0]["id"], created[0]["secret"]
	if created[0]["usage"] != "0/5" {
		t.Errorf("expected usage 0/5, got %q", created[0]["usage"])
	}

	out, err = execute(t, "", "keys", "list", "-o", "json")
	if err != nil {
		t.Fatalf("keys list failed: %v", err)
	}
	listed := decodeRecords(t, out)
	if len(listed) != 1 || listed[0]["id"] != id {
		t.Fatalf("unexpected list output %v", listed)
	}
	if listed[0]["secret"] == secret || listed[0]["secret"] != apikey.Mask(secret) {
		t.Errorf("expected masked secret, got %q", listed[0]["secret"])
	}
	if listed[0]["actual"] != "0" {
		t.Errorf("expected actual usage 0, got %q", listed[0]["actual"])
	}

	out, err = execute(t, "", "keys", "reveal", id)
	if err != nil {
		t.Fatalf("keys reveal failed: %v", err)
	}
	if strings.TrimSpace(out) != secret {
		t.Errorf("reveal printed %q, want the issued secret", out)
	}

	if _, err := execute(t, "", "keys", "rename", id, "--name", "nightly"); err != nil {
		t.Fatalf("keys rename failed: %v", err)
	}
	out, err = execute(t, "", "keys", "get", id, "-o", "csv")
	if err != nil {
		t.Fatalf("keys get failed: %v", err)
	}
	if !strings.Contains(out, ",nightly,") {
		t.Errorf("expected renamed key in output, got %q", out)
	}

	if _, err := execute(t, "", "keys", "delete", id, "--yes"); err != nil {
		t.Fatalf("keys delete failed: %v", err)
	}
	_, err = execute(t, "", "keys", "get", id)
	if !errors.Is(err, apikey.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("expected exit code %d, got %d", cli.ExitFailure, cli.ExitCode(err))
	}
}

func TestKeysDelete_Declined(t *testing.T) {
	useConfig(t, nil)

	out, err := execute(t, "", "keys", "create", "--name", "keep", "-o", "json")
	if err != nil {
		t.Fatalf("keys create failed: %v", err)
	}
	id := decodeRecords(t, out)[0]["id"]

	out, err = execute(t, "n\n", "keys", "delete", id)
	if err != nil {
		t.Fatalf("keys delete failed: %v", err)
	}
	if !strings.Contains(out, "Aborted") {
		t.Errorf("expected abort message, got %q", out)
	}
	if _, err := execute(t, "", "keys", "get", id); err != nil {
		t.Errorf("expected key to survive a declined delete, got %v", err)
	}
}

func TestKeys_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		args   []string
	}{
		{"create without name", nil, []string{"keys", "create"}},
		{"rename without name", nil, []string{"keys", "rename", "some-id"}},
		{"bad output format", nil, []string{"keys", "list", "-o", "yaml"}},
		{"memory backend", func(c *config.Config) { c.Keys.Backend = "memory" }, []string{"keys", "list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, tt.modify)
			_, err := execute(t, "", tt.args...)
			if got := cli.ExitCode(err); got != cli.ExitConfig {
				t.Errorf("expected exit code %d, got %d (%v)", cli.ExitConfig, got, err)
			}
		})
	}
}

func seedEvents(t *testing.T, cfg *config.Config, events ...*usage.Event) {
	t.Helper()
	storage, err := openUsageStorage(&cfg.Usage)
	if err != nil {
		t.Fatalf("openUsageStorage failed: %v", err)
	}
	defer storage.Close()
	for _, ev := range events {
		if err := storage.Append(context.Background(), ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func ms(v int64) *int64 { return &v }

func TestUsageCommands(t *testing.T) {
	cfg := useConfig(t, nil)
	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)
	seedEvents(t, cfg,
		&usage.Event{ID: "e1", KeyID: "k1", Sequence: 1, Timestamp: old, ResponseTimeMs: ms(12), Success: true},
		&usage.Event{ID: "e2", KeyID: "k2", Sequence: 1, Timestamp: old, Success: false},
		&usage.Event{ID: "e3", KeyID: "k1", Sequence: 2, Timestamp: now, ResponseTimeMs: ms(30), Success: true},
	)

	out, err := execute(t, "", "usage", "query", "--key", "k1", "-o", "json")
	if err != nil {
		t.Fatalf("usage query failed: %v", err)
	}
	records := decodeRecords(t, out)
	if len(records) != 2 || records[0]["id"] != "e1" || records[1]["sequence"] != "2" {
		t.Errorf("unexpected query result %v", records)
	}

	out, err = execute(t, "", "usage", "query", "--success", "false", "-o", "json")
	if err != nil {
		t.Fatalf("usage query failed: %v", err)
	}
	if records := decodeRecords(t, out); len(records) != 1 || records[0]["id"] != "e2" {
		t.Errorf("unexpected failed-only result %v", records)
	}

	exportPath := filepath.Join(t.TempDir(), "usage.csv")
	if _, err := execute(t, "", "usage", "export", "--format", "csv", "--output", exportPath, "--since", "24h"); err != nil {
		t.Fatalf("usage export failed: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 || !strings.Contains(lines[1], "e3") {
		t.Errorf("expected header plus one recent event, got %q", data)
	}

	out, err = execute(t, "", "usage", "prune", "--days", "7")
	if err != nil {
		t.Fatalf("usage prune failed: %v", err)
	}
	if !strings.Contains(out, "Pruned 2 events") {
		t.Errorf("unexpected prune output %q", out)
	}
}

func TestUsagePrune_NothingConfigured(t *testing.T) {
	useConfig(t, nil)
	_, err := execute(t, "", "usage", "prune")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{"24h", now.Add(-24 * time.Hour), false},
		{"2026-10-01", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), false},
		{"2026-10-01T08:30:00+02:00", time.Date(2026, 10, 1, 6, 30, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseTimeFlag("since", tt.value, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTimeFlag() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseTimeFlag() = %v, want %v", got, tt.want)
			}
		})
	}

	if got, err := parseTimeFlag("since", "", now); got != nil || err != nil {
		t.Errorf("expected nil for empty value, got %v, %v", got, err)
	}
}

func TestMetricsCommand(t *testing.T) {
	cfg := useConfig(t, nil)
	now := time.Now().UTC()
	seedEvents(t, cfg,
		&usage.Event{ID: "e1", KeyID: "k1", Sequence: 1, Timestamp: now, ResponseTimeMs: ms(10), Success: true},
		&usage.Event{ID: "e2", KeyID: "k1", Sequence: 2, Timestamp: now, ResponseTimeMs: ms(30), Success: false},
	)

	out, err := execute(t, "", "metrics", "--per-key")
	if err != nil {
		t.Fatalf("metrics failed: %v", err)
	}

	var got struct {
		TotalRequests     int64 `json:"totalRequests"`
		RequestsToday     int64 `json:"requestsToday"`
		AvgResponseTimeMs int64 `json:"avgResponseTimeMs"`
		UsageByDay        []struct {
			Date  string `json:"date"`
			Count int64  `json:"count"`
		} `json:"usageByDay"`
		KeyUsage map[string]int64 `json:"keyUsage"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.TotalRequests != 2 || got.RequestsToday != 2 || got.AvgResponseTimeMs != 20 {
		t.Errorf("unexpected metrics %+v", got)
	}
	if len(got.UsageByDay) != 7 || got.UsageByDay[6].Count != 2 {
		t.Errorf("expected 7 days ending today with 2 events, got %+v", got.UsageByDay)
	}
	if got.KeyUsage["k1"] != 2 {
		t.Errorf("expected per-key usage, got %v", got.KeyUsage)
	}
}

func TestRunDryRun(t *testing.T) {
	useConfig(t, nil)

	out, err := execute(t, "", "run", "--dry-run", "--listen", "127.0.0.1:9999")
	if err != nil {
		t.Fatalf("run --dry-run failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("unexpected output %q", out)
	}

	_, err = execute(t, "", "run", "--dry-run", "--log-level", "chatty")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("expected config error for bad log level, got %v", err)
	}
}

func TestBuildApp(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfg := config.Default()
	cfg.Keys.Backend = "memory"
	cfg.Usage.Backend = "memory"
	cfg.Usage.Recorder.AsyncBuffer = 0
	cfg.Telemetry.Logging.Level = "error"

	tel, err := telemetry.New(&cfg.Telemetry, cfg.Keys.SecretPrefix, versionInfo())
	if err != nil {
		t.Fatalf("telemetry.New failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	a, err := buildApp(context.Background(), cfg, tel)
	if err != nil {
		t.Fatalf("buildApp failed: %v", err)
	}
	defer a.Close()

	handler := a.server.Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api-keys", strings.NewReader(`{"name":"app"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from POST /api-keys, got %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected ready, got %d: %s", rec.Code, rec.Body)
	}

	reloaded := *cfg
	reloaded.Telemetry.Logging.Level = "debug"
	reloaded.Security.RateLimit.Enabled = true
	a.reload(&reloaded)
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected reload to apply the log level")
	}
}

func TestBuildApp_BadTLS(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cfg := config.Default()
	cfg.Keys.Backend = "memory"
	cfg.Usage.Backend = "memory"
	cfg.Security.TLS.Enabled = true
	cfg.Security.TLS.CertFile = filepath.Join(t.TempDir(), "missing.crt")
	cfg.Security.TLS.KeyFile = filepath.Join(t.TempDir(), "missing.key")

	tel, err := telemetry.New(&cfg.Telemetry, cfg.Keys.SecretPrefix, versionInfo())
	if err != nil {
		t.Fatalf("telemetry.New failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if _, err := buildApp(context.Background(), cfg, tel); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("expected TLS config error, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := confirm(strings.NewReader(tt.in), &bytes.Buffer{}, "Delete?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Tollgate "+Version) || !strings.Contains(out, "Go Version:") {
		t.Errorf("unexpected version output %q", out)
	}
	if info := versionInfo(); info.Version != Version || info.GoVersion == "" {
		t.Errorf("unexpected version info %+v", info)
	}
}
