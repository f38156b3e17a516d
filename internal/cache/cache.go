package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// DefaultTTL is how long a computed analytics result is served.
const DefaultTTL = 30 * time.Second

// Cache stores analytics results per token and window.
// Entries are replaced whole; the last write wins.
type Cache interface {
	Get(ctx context.Context, token string, window time.Duration) (model.Analytics, bool, error)
	Put(ctx context.Context, token string, window time.Duration, value model.Analytics) error
	// Invalidate drops every window cached for token.
	Invalidate(ctx context.Context, token string) error
}

// Entry is a cached analytics payload and when it was written.
type Entry struct {
	Payload   model.Analytics `json:"payload"`
	WrittenAt time.Time       `json:"written_at"`
}

func (e Entry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.WrittenAt) < ttl
}

// Key normalizes a token address for cache lookups.
func Key(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Memory is a process-wide TTL cache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	entries   map[string]map[time.Duration]Entry
	lastSweep time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]map[time.Duration]Entry),
	}
}

// WithClock replaces the clock, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get returns a fresh entry for token and window.
func (m *Memory) Get(_ context.Context, token string, window time.Duration) (model.Analytics, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[Key(token)][window]
	m.mu.RUnlock()
	if !ok || !entry.fresh(m.now(), m.ttl) {
		return model.Analytics{}, false, nil
	}
	return entry.Payload, true, nil
}

// Put stores value for token and window.
func (m *Memory) Put(_ context.Context, token string, window time.Duration, value model.Analytics) error {
	key := Key(token)
	m.mu.Lock()
	defer m.mu.Unlock()
	windows, ok := m.entries[key]
	if !ok {
		windows = make(map[time.Duration]Entry)
		m.entries[key] = windows
	}
	now := m.now()
	pruneWindows(windows, now, m.ttl)
	windows[window] = Entry{Payload: value, WrittenAt: now}
	if now.Sub(m.lastSweep) >= m.ttl {
		m.sweepLocked(now)
	}
	return nil
}

// Invalidate drops all entries for token.
func (m *Memory) Invalidate(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.entries, Key(token))
	m.mu.Unlock()
	return nil
}

// sweepLocked removes expired entries of every token. Put runs it at most
// once per TTL so the map does not grow with every token ever queried.
func (m *Memory) sweepLocked(now time.Time) {
	m.lastSweep = now
	for key, windows := range m.entries {
		pruneWindows(windows, now, m.ttl)
		if len(windows) == 0 {
			delete(m.entries, key)
		}
	}
}

func pruneWindows(windows map[time.Duration]Entry, now time.Time, ttl time.Duration) {
	for window, entry := range windows {
		if !entry.fresh(now, ttl) {
			delete(windows, window)
		}
	}
}
