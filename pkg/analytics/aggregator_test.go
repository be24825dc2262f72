package analytics

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"tollgate-hq/tollgate/pkg/usage"
	"tollgate-hq/tollgate/pkg/usage/storage"
)

var now = time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

func appendEvent(t *testing.T, s usage.Storage, keyID string, at time.Time, rt *int64, success bool) {
	t.Helper()
	ev := &usage.Event{
		ID:             fmt.Sprintf("%s-%d", keyID, at.UnixNano()),
		KeyID:          keyID,
		Sequence:       1,
		Timestamp:      at,
		ResponseTimeMs: rt,
		Success:        success,
	}
	if err := s.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func ms(v int64) *int64 { return &v }

func TestZero(t *testing.T) {
	m := Zero(now)

	want := []string{"2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09", "2025-03-10"}
	if len(m.UsageByDay) != len(want) {
		t.Fatalf("Expected %d days, got %d", len(want), len(m.UsageByDay))
	}
	for i, d := range m.UsageByDay {
		if d.Date != want[i] || d.Count != 0 {
			t.Errorf("Day %d: expected {%s 0}, got %+v", i, want[i], d)
		}
	}
	if m.TotalRequests != 0 || m.RequestsToday != 0 || m.SuccessRate != 0 || m.AvgResponseTimeMs != 0 {
		t.Errorf("Expected zero counters, got %+v", m)
	}
}

func TestZero_NonUTCReference(t *testing.T) {
	// 01:00 on the 11th in UTC+2 is still the 10th in UTC.
	loc := time.FixedZone("UTC+2", 2*60*60)
	m := Zero(time.Date(2025, 3, 11, 1, 0, 0, 0, loc))

	if got := m.UsageByDay[Days-1].Date; got != "2025-03-10" {
		t.Errorf("Expected last day 2025-03-10, got %s", got)
	}
}

func TestCompute_Empty(t *testing.T) {
	a := New(storage.NewMemoryStorage(), nil)
	m := a.Compute(context.Background(), now)

	if m.TotalRequests != 0 || m.SuccessRate != 0 || m.AvgResponseTimeMs != 0 {
		t.Errorf("Expected zero metrics, got %+v", m)
	}
	if len(m.UsageByDay) != Days {
		t.Errorf("Expected %d days, got %d", Days, len(m.UsageByDay))
	}
}

func TestCompute(t *testing.T) {
	s := storage.NewMemoryStorage()
	today := midnight(now)

	appendEvent(t, s, "a", today.Add(time.Hour), ms(100), true)
	appendEvent(t, s, "a", today.Add(2*time.Hour), ms(201), true)
	appendEvent(t, s, "b", today.Add(-time.Minute), nil, false)
	appendEvent(t, s, "b", today.AddDate(0, 0, -6), ms(50), true)
	// Outside the window but counted in the totals.
	appendEvent(t, s, "c", today.AddDate(0, 0, -7).Add(-time.Nanosecond), nil, true)
	// After today ends: counted as today, outside every day bucket.
	appendEvent(t, s, "c", today.AddDate(0, 0, 1), nil, true)

	m := New(s, nil).Compute(context.Background(), now)

	if m.TotalRequests != 6 {
		t.Errorf("Expected 6 total requests, got %d", m.TotalRequests)
	}
	if m.RequestsToday != 3 {
		t.Errorf("Expected 3 requests today, got %d", m.RequestsToday)
	}
	// 5 of 6 successful.
	if m.SuccessRate != 83.3 {
		t.Errorf("Expected success rate 83.3, got %v", m.SuccessRate)
	}
	// (100+201+50)/3 = 117
	if m.AvgResponseTimeMs != 117 {
		t.Errorf("Expected average 117, got %d", m.AvgResponseTimeMs)
	}

	wantCounts := []int64{1, 0, 0, 0, 0, 1, 2}
	for i, d := range m.UsageByDay {
		if d.Count != wantCounts[i] {
			t.Errorf("Day %s: expected %d, got %d", d.Date, wantCounts[i], d.Count)
		}
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		successful int64
		want       float64
	}{
		{"empty", 0, 0, 0},
		{"all", 4, 4, 100},
		{"none", 4, 0, 0},
		{"two thirds", 3, 2, 66.7},
		{"one third", 3, 1, 33.3},
		{"half up", 8, 1, 12.5},
		{"rounds away from zero", 2000, 1, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := successRate(&usage.Stats{Total: tt.total, Successful: tt.successful})
			if got != tt.want {
				t.Errorf("successRate(%d/%d) = %v, want %v", tt.successful, tt.total, got, tt.want)
			}
		})
	}
}

func TestAvgResponseTime(t *testing.T) {
	tests := []struct {
		timed int64
		sum   int64
		want  int64
	}{
		{0, 0, 0},
		{2, 3, 2},
		{3, 4, 1},
		{1, 250, 250},
	}

	for _, tt := range tests {
		got := avgResponseTime(&usage.Stats{Timed: tt.timed, TotalResponseMs: tt.sum})
		if got != tt.want {
			t.Errorf("avgResponseTime(%d/%d) = %d, want %d", tt.sum, tt.timed, got, tt.want)
		}
	}
}

// failingStorage fails every read.
type failingStorage struct {
	usage.Storage
	calls atomic.Int64
}

var errUnavailable = errors.New("storage unavailable")

func (f *failingStorage) Query(context.Context, *usage.Query) ([]*usage.Event, error) {
	f.calls.Add(1)
	return nil, errUnavailable
}

func (f *failingStorage) Stats(context.Context, *usage.Query) (*usage.Stats, error) {
	f.calls.Add(1)
	return nil, errUnavailable
}

func (f *failingStorage) CountByKey(context.Context) (map[string]int64, error) {
	f.calls.Add(1)
	return nil, errUnavailable
}

type stateRecorder struct {
	states []int
}

func (s *stateRecorder) ObserveBreakerState(_ string, state int) {
	s.states = append(s.states, state)
}

func TestCompute_FailSoft(t *testing.T) {
	s := &failingStorage{}
	a := New(s, &Config{BreakerFailures: 3, BreakerTimeout: time.Hour})
	obs := &stateRecorder{}
	a.SetObserver(obs)

	want := Zero(now)
	for i := 0; i < 5; i++ {
		m := a.Compute(context.Background(), now)
		if m.TotalRequests != 0 || len(m.UsageByDay) != Days || m.UsageByDay[0].Date != want.UsageByDay[0].Date {
			t.Fatalf("Expected zeroed metrics, got %+v", m)
		}
	}

	if a.State() != gobreaker.StateOpen {
		t.Errorf("Expected breaker open, got %s", a.State())
	}
	if got := s.calls.Load(); got != 3 {
		t.Errorf("Expected storage to be read 3 times before the breaker opened, got %d", got)
	}
	if len(obs.states) != 1 || obs.states[0] != int(gobreaker.StateOpen) {
		t.Errorf("Expected one transition to open, got %v", obs.states)
	}
}

func TestKeyUsage(t *testing.T) {
	s := storage.NewMemoryStorage()
	appendEvent(t, s, "a", now, nil, true)
	appendEvent(t, s, "a", now.Add(time.Second), nil, false)
	appendEvent(t, s, "b", now, nil, true)

	counts := New(s, nil).KeyUsage(context.Background())
	if counts["a"] != 2 || counts["b"] != 1 || len(counts) != 2 {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestKeyUsage_FailSoft(t *testing.T) {
	counts := New(&failingStorage{}, nil).KeyUsage(context.Background())
	if counts == nil || len(counts) != 0 {
		t.Errorf("Expected empty map, got %v", counts)
	}
}

func newSQLiteEvents(t *testing.T) usage.Storage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "usage.db"),
		MaxOpenConns: 1,
		WALMode:      true,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCompute_CancelledCallerKeepsBreakerClosed(t *testing.T) {
	s := newSQLiteEvents(t)
	appendEvent(t, s, "a", now, ms(10), true)
	a := New(s, &Config{BreakerFailures: 2, BreakerTimeout: time.Hour})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		a.Compute(cancelled, now)
		a.KeyUsage(cancelled)
	}

	if a.State() != gobreaker.StateClosed {
		t.Fatalf("Expected breaker closed, got %s", a.State())
	}
	if m := a.Compute(context.Background(), now); m.TotalRequests != 1 || m.RequestsToday != 1 {
		t.Errorf("Expected 1 total and 1 today, got %+v", m)
	}
	if counts := a.KeyUsage(context.Background()); counts["a"] != 1 {
		t.Errorf("Expected 1 event for key a, got %v", counts)
	}
}

// hangupStorage cancels the caller while a read is in flight.
type hangupStorage struct {
	usage.Storage
	cancel context.CancelFunc
}

func (h *hangupStorage) Query(ctx context.Context, _ *usage.Query) ([]*usage.Event, error) {
	h.cancel()
	<-ctx.Done()
	return nil, usage.NewStorageError("test", "query", ctx.Err())
}

func TestCompute_CallerGoneMidQuery(t *testing.T) {
	events := storage.NewMemoryStorage()
	appendEvent(t, events, "a", now, nil, true)
	h := &hangupStorage{Storage: events}
	a := New(h, &Config{BreakerFailures: 1, BreakerTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		if m := a.Compute(ctx, now); m.TotalRequests != 0 {
			t.Errorf("Expected zeroed metrics for an abandoned request, got %+v", m)
		}
	}

	if a.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker closed, got %s", a.State())
	}
}

// lateAppendStorage appends one event right after serving a query.
type lateAppendStorage struct {
	usage.Storage
	t *testing.T
}

func (l *lateAppendStorage) Query(ctx context.Context, q *usage.Query) ([]*usage.Event, error) {
	found, err := l.Storage.Query(ctx, q)
	appendEvent(l.t, l.Storage, "late", now.Add(time.Duration(len(found))*time.Millisecond), nil, true)
	return found, err
}

func TestCompute_ConsistentWithConcurrentAppends(t *testing.T) {
	events := storage.NewMemoryStorage()
	appendEvent(t, events, "a", now.Add(-time.Hour), nil, true)
	appendEvent(t, events, "a", now.AddDate(0, 0, -3), nil, true)

	m := New(&lateAppendStorage{Storage: events, t: t}, nil).Compute(context.Background(), now)

	var inWindow int64
	for _, d := range m.UsageByDay {
		inWindow += d.Count
	}
	if inWindow != 2 {
		t.Errorf("Expected 2 events in the window, got %d", inWindow)
	}
	if m.TotalRequests < inWindow {
		t.Errorf("Total %d does not cover the %d events in the window", m.TotalRequests, inWindow)
	}
	if m.RequestsToday != m.UsageByDay[Days-1].Count {
		t.Errorf("Expected requests today %d to match the last day, got %d", m.UsageByDay[Days-1].Count, m.RequestsToday)
	}
}

func TestDayIndex(t *testing.T) {
	starts := dayStarts(now)
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before window", starts[0].Add(-time.Nanosecond), -1},
		{"first day start", starts[0], 0},
		{"last second of first day", starts[1].Add(-time.Second), 0},
		{"today", now, Days - 1},
		{"tomorrow", starts[Days-1].AddDate(0, 0, 1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dayIndex(starts, tt.at); got != tt.want {
				t.Errorf("dayIndex(%s) = %d, want %d", tt.at, got, tt.want)
			}
		})
	}
}
