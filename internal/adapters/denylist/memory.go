// Package denylist keeps revoked portal credential IDs until their natural
// expiry.
package denylist

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is a process-local denylist.
type Memory struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemory creates an empty denylist. A nil clock means wall time.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

// Revoke denylists tokenID for ttl. Expired entries are swept on the way.
func (m *Memory) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, id)
		}
	}
	m.entries[tokenID] = now.Add(ttl)
	return nil
}

// IsRevoked reports whether tokenID is still denylisted.
func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	until, ok := m.entries[tokenID]
	return ok && m.clock.Now().Before(until), nil
}

// Len returns the number of entries, including ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
