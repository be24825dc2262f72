package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tollgate-hq/tollgate/pkg/usage"
)

// MemoryStorage implements usage.Storage in memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []*usage.Event
	closed bool
}

// NewMemoryStorage creates an empty in-memory event log.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Append implements usage.Storage.
func (m *MemoryStorage) Append(ctx context.Context, ev *usage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return usage.NewStorageError("memory", "append", errors.New("storage closed"))
	}
	c := *ev
	m.events = append(m.events, &c)
	return nil
}

// Query implements usage.Storage.
func (m *MemoryStorage) Query(ctx context.Context, q *usage.Query) ([]*usage.Event, error) {
	m.mu.RLock()
	matched := m.match(q)
	m.mu.RUnlock()

	desc := q != nil && q.SortOrder == usage.SortDesc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.KeyID != b.KeyID {
			return a.KeyID < b.KeyID
		}
		if desc {
			return a.Sequence > b.Sequence
		}
		return a.Sequence < b.Sequence
	})

	if q != nil {
		if q.Offset > 0 {
			if q.Offset >= len(matched) {
				return []*usage.Event{}, nil
			}
			matched = matched[q.Offset:]
		}
		if q.Limit > 0 && q.Limit < len(matched) {
			matched = matched[:q.Limit]
		}
	}

	out := make([]*usage.Event, len(matched))
	for i, ev := range matched {
		c := *ev
		out[i] = &c
	}
	return out, nil
}

// Count implements usage.Storage.
func (m *MemoryStorage) Count(ctx context.Context, q *usage.Query) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.match(q))), nil
}

// Stats implements usage.Storage.
func (m *MemoryStorage) Stats(ctx context.Context, q *usage.Query) (*usage.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &usage.Stats{}
	for _, ev := range m.match(q) {
		stats.Total++
		if ev.Success {
			stats.Successful++
		}
		if ev.ResponseTimeMs != nil {
			stats.Timed++
			stats.TotalResponseMs += *ev.ResponseTimeMs
		}
	}
	return stats, nil
}

// CountByKey implements usage.Storage.
func (m *MemoryStorage) CountByKey(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, ev := range m.events {
		counts[ev.KeyID]++
	}
	return counts, nil
}

// Delete implements usage.Storage.
func (m *MemoryStorage) Delete(ctx context.Context, q *usage.Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var deleted int64
	for _, ev := range m.events {
		if q.Matches(ev) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(m.events); i++ {
		m.events[i] = nil
	}
	m.events = kept
	return deleted, nil
}

// Ping implements usage.Storage.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return usage.NewStorageError("memory", "ping", errors.New("storage closed"))
	}
	return nil
}

// Close implements usage.Storage.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// match returns the events matching q. Callers hold the lock.
func (m *MemoryStorage) match(q *usage.Query) []*usage.Event {
	matched := make([]*usage.Event, 0, len(m.events))
	for _, ev := range m.events {
		if q.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	return matched
}
