// Package ledger provides a generic key→timestamp store with TTL expiry.
// It backs the view-count throttle, the visited-note markers and any other
// "did this happen recently" bookkeeping, replacing the scattered per-feature
// timestamp maps that tend to accrete in clients.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/storage"
)

// Ledger records the last time a qualifying event happened for a key.
// Entries older than the ledger's TTL are removed by Sweep; Get may still
// return an expired entry on backends without native expiry, so callers
// must compare the returned timestamp against their own window.
type Ledger interface {
	// Name identifies the ledger (e.g. "views", "visited").
	Name() string

	// Get returns the recorded timestamp for key. The boolean is false
	// when no entry exists.
	Get(ctx context.Context, key string) (time.Time, bool, error)

	// Record creates or refreshes the entry for key.
	Record(ctx context.Context, key string, at time.Time) error

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error

	// Sweep removes all entries older than the TTL and returns how many
	// were removed. Backends with native expiry may report zero.
	Sweep(ctx context.Context) (int, error)
}

// New creates a ledger with the configured backend engine
func New(name string, ttl time.Duration, cfg *config.Ledger, st *storage.Storage) (Ledger, error) {
	switch cfg.Engine {
	case "memory":
		return NewMemory(name, ttl), nil
	case "redis":
		return NewRedis(name, ttl, cfg.RedisURL)
	case "sqlite":
		if st == nil {
			return nil, fmt.Errorf("sqlite ledger requires storage")
		}
		return NewSQLite(name, ttl, st), nil
	default:
		return nil, fmt.Errorf("unsupported ledger engine: %s", cfg.Engine)
	}
}
