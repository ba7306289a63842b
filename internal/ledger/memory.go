package ledger

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process ledger backed by a concurrent map. State does not
// survive a restart; use the sqlite or redis engines when persistence across
// sessions matters.
type Memory struct {
	name    string
	ttl     time.Duration
	entries *xsync.MapOf[string, int64]
}

// NewMemory creates an in-memory ledger
func NewMemory(name string, ttl time.Duration) *Memory {
	return &Memory{
		name:    name,
		ttl:     ttl,
		entries: xsync.NewMapOf[string, int64](),
	}
}

// Name identifies the ledger
func (m *Memory) Name() string {
	return m.name
}

// Get returns the recorded timestamp for key
func (m *Memory) Get(ctx context.Context, key string) (time.Time, bool, error) {
	ns, ok := m.entries.Load(key)
	if !ok {
		return time.Time{}, false, nil
	}
	return time.Unix(0, ns), true, nil
}

// Record creates or refreshes the entry for key
func (m *Memory) Record(ctx context.Context, key string, at time.Time) error {
	m.entries.Store(key, at.UnixNano())
	return nil
}

// Delete removes the entry for key
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Sweep removes all entries older than the TTL
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.ttl).UnixNano()
	removed := 0

	m.entries.Range(func(key string, ns int64) bool {
		if ns <= cutoff {
			m.entries.Delete(key)
			removed++
		}
		return true
	})

	return removed, nil
}
