package ledger

import (
	"context"
	"time"

	"github.com/koffeedonut/notesync/internal/storage"
)

// SQLite is a ledger persisted in the local state database, so throttle
// windows survive restarts the same way the original client's localStorage
// maps survived page reloads.
type SQLite struct {
	name string
	ttl  time.Duration
	st   *storage.Storage
}

// NewSQLite creates a storage-backed ledger
func NewSQLite(name string, ttl time.Duration, st *storage.Storage) *SQLite {
	return &SQLite{
		name: name,
		ttl:  ttl,
		st:   st,
	}
}

// Name identifies the ledger
func (s *SQLite) Name() string {
	return s.name
}

// Get returns the recorded timestamp for key
func (s *SQLite) Get(ctx context.Context, key string) (time.Time, bool, error) {
	ts, ok, err := s.st.GetLedgerEntry(ctx, s.name, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0), true, nil
}

// Record creates or refreshes the entry for key
func (s *SQLite) Record(ctx context.Context, key string, at time.Time) error {
	return s.st.PutLedgerEntry(ctx, s.name, key, at.Unix())
}

// Delete removes the entry for key
func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.st.DeleteLedgerEntry(ctx, s.name, key)
}

// Sweep removes all entries older than the TTL
func (s *SQLite) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.ttl).Unix()
	return s.st.SweepLedger(ctx, s.name, cutoff)
}
