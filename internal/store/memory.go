package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vulnverified/posture/internal/engine"
)

// Memory keeps everything in process. Only the latest snapshot per domain is
// kept, stored encoded so callers can't mutate the archive through a pointer.
type Memory struct {
	mu        sync.RWMutex
	cache     map[string]CacheEntry
	snapshots map[string]archived
}

type archived struct {
	completedAt time.Time
	body        []byte
}

func NewMemory() *Memory {
	return &Memory{
		cache:     make(map[string]CacheEntry),
		snapshots: make(map[string]archived),
	}
}

func (m *Memory) GetCacheEntry(_ context.Context, key string) (CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[key]
	if !ok {
		return CacheEntry{}, ErrNotFound
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return e, nil
}

func (m *Memory) PutCacheEntry(_ context.Context, e CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Payload = append([]byte(nil), e.Payload...)
	m.cache[e.Key] = e
	return nil
}

func (m *Memory) DeleteCacheEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *Memory) SaveSnapshot(_ context.Context, s *engine.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.snapshots[s.Domain]; ok && s.CompletedAt.Before(prev.completedAt) {
		return nil
	}
	m.snapshots[s.Domain] = archived{completedAt: s.CompletedAt, body: body}
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, domain string) (*engine.Snapshot, error) {
	m.mu.RLock()
	a, ok := m.snapshots[domain]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s engine.Snapshot
	if err := json.Unmarshal(a.body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Memory) Close() error { return nil }
