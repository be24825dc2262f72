package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/usage"
	"tollgate-hq/tollgate/pkg/usage/storage"
)

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func seedAges(t *testing.T, s usage.Storage, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		ev := &usage.Event{
			ID:        fmt.Sprintf("e%d", i),
			KeyID:     "k",
			Sequence:  int64(i + 1),
			Timestamp: now.Add(-age),
			Success:   true,
		}
		if err := s.Append(context.Background(), ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func newTestPruner(s usage.Storage, cfg *Config) *Pruner {
	p := NewPruner(s, cfg)
	p.now = func() time.Time { return now }
	return p
}

func TestPruner_ByAge(t *testing.T) {
	s := storage.NewMemoryStorage()
	day := 24 * time.Hour
	seedAges(t, s, 40*day, 31*day, 29*day, time.Hour)

	deleted, err := newTestPruner(s, &Config{Days: 30}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}
	if n, _ := s.Count(context.Background(), nil); n != 2 {
		t.Errorf("Expected 2 remaining, got %d", n)
	}
}

func TestPruner_ByCount(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedAges(t, s, 5*time.Hour, 4*time.Hour, 3*time.Hour, 2*time.Hour, time.Hour)

	deleted, err := newTestPruner(s, &Config{MaxRecords: 3}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	remaining, _ := s.Query(context.Background(), nil)
	if len(remaining) != 3 || remaining[0].ID != "e2" {
		t.Errorf("Expected the 3 newest events to remain, got %d starting at %v", len(remaining), remaining)
	}
}

func TestPruner_KeepForever(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedAges(t, s, 1000*24*time.Hour)

	deleted, err := newTestPruner(s, &Config{}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected nothing deleted, got %d", deleted)
	}
}

func TestPruner_ArchiveBeforeDelete(t *testing.T) {
	s := storage.NewMemoryStorage()
	seedAges(t, s, 10*24*time.Hour, time.Hour)
	dir := filepath.Join(t.TempDir(), "archives")

	_, err := newTestPruner(s, &Config{Days: 7, ArchiveBeforeDelete: true, ArchivePath: dir}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 archive file, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if len(data) == 0 {
		t.Error("Expected archive content")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := storage.NewMemoryStorage()
	p := newTestPruner(s, &Config{Days: 30, PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !p.scheduler.IsRunning() {
		t.Error("Expected scheduler running")
	}
	if p.NextPruning() == nil {
		t.Error("Expected next pruning time")
	}

	p.Stop()
	if p.scheduler.IsRunning() {
		t.Error("Expected scheduler stopped")
	}
	p.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	p := newTestPruner(storage.NewMemoryStorage(), &Config{Days: 1, PruneSchedule: "not a cron"})
	if err := p.Start(context.Background()); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestScheduler_DisabledPolicy(t *testing.T) {
	p := newTestPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "0 3 * * *"})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if p.scheduler.IsRunning() {
		t.Error("Expected scheduler not to run when retention keeps everything")
	}
}
