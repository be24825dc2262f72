package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tollgate-hq/tollgate/pkg/usage"
)

type storageFactory func(t *testing.T) usage.Storage

func storages() map[string]storageFactory {
	return map[string]storageFactory{
		"memory": func(t *testing.T) usage.Storage {
			return NewMemoryStorage()
		},
		"sqlite": func(t *testing.T) usage.Storage {
			s, err := NewSQLiteStorage(&SQLiteConfig{
				Path:         filepath.Join(t.TempDir(), "usage.db"),
				MaxOpenConns: 1,
				WALMode:      true,
			})
			if err != nil {
				t.Fatalf("NewSQLiteStorage failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

var base = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func ms(v int64) *int64 { return &v }

func seed(t *testing.T, s usage.Storage) {
	t.Helper()
	events := []*usage.Event{
		{ID: "e1", KeyID: "a", Sequence: 1, Timestamp: base.Add(-48 * time.Hour), ResponseTimeMs: ms(100), Success: true},
		{ID: "e2", KeyID: "a", Sequence: 2, Timestamp: base.Add(-24 * time.Hour), ResponseTimeMs: ms(200), Success: false},
		{ID: "e3", KeyID: "b", Sequence: 1, Timestamp: base, Success: true},
		{ID: "e4", KeyID: "a", Sequence: 3, Timestamp: base.Add(time.Hour), ResponseTimeMs: ms(300), Success: true},
	}
	for _, ev := range events {
		if err := s.Append(context.Background(), ev); err != nil {
			t.Fatalf("Append %s failed: %v", ev.ID, err)
		}
	}
}

func TestStorage_QueryFilters(t *testing.T) {
	yes := true
	start := base.Add(-24 * time.Hour)
	end := base.Add(time.Hour)

	tests := []struct {
		name  string
		query *usage.Query
		want  []string
	}{
		{"all", &usage.Query{}, []string{"e1", "e2", "e3", "e4"}},
		{"nil query", nil, []string{"e1", "e2", "e3", "e4"}},
		{"by key", &usage.Query{KeyID: "a"}, []string{"e1", "e2", "e4"}},
		{"half-open range", &usage.Query{StartTime: &start, EndTime: &end}, []string{"e2", "e3"}},
		{"success only", &usage.Query{Success: &yes}, []string{"e1", "e3", "e4"}},
		{"descending", &usage.Query{SortOrder: usage.SortDesc}, []string{"e4", "e3", "e2", "e1"}},
		{"paginated", &usage.Query{Limit: 2, Offset: 1}, []string{"e2", "e3"}},
		{"offset beyond end", &usage.Query{Offset: 10}, []string{}},
	}

	for name, factory := range storages() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			seed(t, s)

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					events, err := s.Query(context.Background(), tt.query)
					if err != nil {
						t.Fatalf("Query failed: %v", err)
					}
					got := make([]string, len(events))
					for i, ev := range events {
						got[i] = ev.ID
					}
					if fmt.Sprint(got) != fmt.Sprint(tt.want) {
						t.Errorf("Expected %v, got %v", tt.want, got)
					}
				})
			}
		})
	}
}

func TestStorage_RoundTripFields(t *testing.T) {
	for name, factory := range storages() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			seed(t, s)

			events, err := s.Query(context.Background(), &usage.Query{KeyID: "b"})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("Expected 1 event, got %d", len(events))
			}
			ev := events[0]
			if !ev.Timestamp.Equal(base) || ev.Sequence != 1 || !ev.Success || ev.ResponseTimeMs != nil {
				t.Errorf("Unexpected event %+v", ev)
			}
		})
	}
}

func TestStorage_CountAndStats(t *testing.T) {
	for name, factory := range storages() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seed(t, s)

			count, err := s.Count(ctx, &usage.Query{KeyID: "a"})
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != 3 {
				t.Errorf("Expected 3, got %d", count)
			}

			stats, err := s.Stats(ctx, &usage.Query{})
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			want := usage.Stats{Total: 4, Successful: 3, Timed: 3, TotalResponseMs: 600}
			if *stats != want {
				t.Errorf("Expected %+v, got %+v", want, *stats)
			}

			byKey, err := s.CountByKey(ctx)
			if err != nil {
				t.Fatalf("CountByKey failed: %v", err)
			}
			if byKey["a"] != 3 || byKey["b"] != 1 || len(byKey) != 2 {
				t.Errorf("Unexpected per-key counts %v", byKey)
			}
		})
	}
}

func TestStorage_EmptyStats(t *testing.T) {
	for name, factory := range storages() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			stats, err := s.Stats(context.Background(), nil)
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if *stats != (usage.Stats{}) {
				t.Errorf("Expected zero stats, got %+v", *stats)
			}
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for name, factory := range storages() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seed(t, s)

			cutoff := base
			deleted, err := s.Delete(ctx, &usage.Query{EndTime: &cutoff})
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("Expected 2 deleted, got %d", deleted)
			}

			remaining, _ := s.Count(ctx, &usage.Query{})
			if remaining != 2 {
				t.Errorf("Expected 2 remaining, got %d", remaining)
			}
		})
	}
}

func TestStorage_PingAndClose(t *testing.T) {
	s := NewMemoryStorage()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to fail after Close")
	}
	if err := s.Append(context.Background(), &usage.Event{ID: "x"}); err == nil {
		t.Error("Expected Append to fail after Close")
	}
}

func TestSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage(&SQLiteConfig{}); err == nil {
		t.Error("Expected error for empty path")
	}
}
