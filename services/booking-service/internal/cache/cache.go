// Package cache stores computed month availability. Entries are keyed by the
// config version and by block and booking counters that every write bumps,
// so a write makes older entries unreachable instead of deleting them.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Scope string

const (
	ScopeBlocks   Scope = "blocks"
	ScopeBookings Scope = "bookings"
)

type Versions struct {
	Blocks   int64
	Bookings int64
}

type MonthCache interface {
	// TTL is how long an entry may be served. Zero disables caching.
	TTL() time.Duration
	// Versions returns the current counters; ok is false when they cannot be read.
	Versions(ctx context.Context) (v Versions, ok bool)
	Get(ctx context.Context, key string) ([]string, bool)
	Put(ctx context.Context, key string, dates []string)
	Bump(ctx context.Context, scope Scope)
}

func MonthKey(year int, month time.Month, configVersion int64, v Versions) string {
	return fmt.Sprintf("avail:month:%04d-%02d:c%d:b%d:k%d", year, int(month), configVersion, v.Blocks, v.Bookings)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) TTL() time.Duration { return 0 }
func (Noop) Versions(context.Context) (Versions, bool) { return Versions{}, false }
func (Noop) Get(context.Context, string) ([]string, bool) { return nil, false }
func (Noop) Put(context.Context, string, []string) {}
func (Noop) Bump(context.Context, Scope) {}

// Memory is a process-local MonthCache for single-replica deployments.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	versions Versions
	entries  map[string]memoryEntry
}

type memoryEntry struct {
	dates   []string
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (m *Memory) TTL() time.Duration { return m.ttl }

func (m *Memory) Versions(context.Context) (Versions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions, true
}

func (m *Memory) Get(_ context.Context, key string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expires) {
		return nil, false
	}
	return append([]string(nil), e.dates...), true
}

func (m *Memory) Put(_ context.Context, key string, dates []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{dates: append([]string(nil), dates...), expires: now.Add(m.ttl)}
}

func (m *Memory) Bump(_ context.Context, scope Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch scope {
	case ScopeBlocks:
		m.versions.Blocks++
	case ScopeBookings:
		m.versions.Bookings++
	}
}
