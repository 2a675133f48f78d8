package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type window struct {
	start time.Time
	count int
}

// Memory is the default in-process Store. Expired entries are evicted on
// read rather than swept in the background; the working set is small enough
// that lazy eviction is sufficient.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	windows map[string]window
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		windows: make(map[string]window),
		now:     time.Now,
	}
}

// NewMemoryWithClock returns a store with an injectable clock for tests.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry since the read.
		if cur, ok := m.entries[key]; ok && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) RateLimit(_ context.Context, key string, max int, windowDur time.Duration) Decision {
	if max <= 0 {
		return Decision{OK: false, Remaining: 0}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		m.windows[key] = window{start: now, count: 1}
		return Decision{OK: true, Remaining: max - 1}
	}
	if w.count >= max {
		return Decision{OK: false, Remaining: 0}
	}
	w.count++
	m.windows[key] = w
	return Decision{OK: true, Remaining: max - w.count}
}
