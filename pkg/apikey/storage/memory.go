package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tollgate-hq/tollgate/pkg/apikey"
)

// MemoryBackend implements apikey.Backend in memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	byID     map[string]*apikey.Record
	bySecret map[string]string
	order    []string
	closed   bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byID:     make(map[string]*apikey.Record),
		bySecret: make(map[string]string),
	}
}

// Insert implements apikey.Backend.
func (m *MemoryBackend) Insert(ctx context.Context, rec *apikey.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[rec.ID]; ok {
		return apikey.Conflict("memory.Insert", fmt.Errorf("id %q already exists", rec.ID))
	}
	if _, ok := m.bySecret[rec.SecretHash]; ok {
		return apikey.Conflict("memory.Insert", fmt.Errorf("secret digest already indexed"))
	}

	m.byID[rec.ID] = rec.Clone()
	m.bySecret[rec.SecretHash] = rec.ID
	m.order = append(m.order, rec.ID)
	return nil
}

// Get implements apikey.Backend.
func (m *MemoryBackend) Get(ctx context.Context, id string) (*apikey.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, apikey.NotFound("memory.Get", id)
	}
	return rec.Clone(), nil
}

// GetBySecretHash implements apikey.Backend.
func (m *MemoryBackend) GetBySecretHash(ctx context.Context, hash string) (*apikey.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySecret[hash]
	if !ok {
		return nil, &apikey.Error{Kind: apikey.ErrNotFound, Op: "memory.GetBySecretHash", Message: "Invalid API key"}
	}
	return m.byID[id].Clone(), nil
}

// Rename implements apikey.Backend.
func (m *MemoryBackend) Rename(ctx context.Context, id, name string) (*apikey.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return nil, apikey.NotFound("memory.Rename", id)
	}
	rec.Name = name
	return rec.Clone(), nil
}

// Touch implements apikey.Backend.
func (m *MemoryBackend) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return apikey.NotFound("memory.Touch", id)
	}
	if rec.LastUsedAt == nil || at.After(*rec.LastUsedAt) {
		t := at.UTC()
		rec.LastUsedAt = &t
	}
	return nil
}

// IncrementUsage implements apikey.Backend. The check and the increment
// happen under the write lock.
func (m *MemoryBackend) IncrementUsage(ctx context.Context, id string) (apikey.Increment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return apikey.Increment{}, apikey.NotFound("memory.IncrementUsage", id)
	}
	if rec.UsageCount >= rec.MaxUses {
		return apikey.Increment{UsageCount: rec.UsageCount, MaxUses: rec.MaxUses}, nil
	}
	rec.UsageCount++
	return apikey.Increment{Applied: true, UsageCount: rec.UsageCount, MaxUses: rec.MaxUses}, nil
}

// Delete implements apikey.Backend.
func (m *MemoryBackend) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	delete(m.byID, id)
	delete(m.bySecret, rec.SecretHash)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// List implements apikey.Backend.
func (m *MemoryBackend) List(ctx context.Context) ([]*apikey.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*apikey.Record, 0, len(m.order))
	for _, id := range m.order {
		recs = append(recs, m.byID[id].Clone())
	}
	return recs, nil
}

// Ping implements apikey.Backend.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return apikey.Internal("memory.Ping", fmt.Errorf("backend closed"))
	}
	return nil
}

// Close implements apikey.Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
