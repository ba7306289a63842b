// Package views throttles view-count increments and tracks visited notes.
// A note's view counter is bumped at most once per TTL window per client,
// no matter how many times the item is opened or re-rendered.
package views

import (
	"context"
	"time"

	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/ledger"
	"github.com/koffeedonut/notesync/internal/ops"
)

// Incrementer is the remote side of a view-count increment
type Incrementer interface {
	IncrementView(ctx context.Context, noteID string) error
}

// Throttle gates view-count increments behind a TTL ledger
type Throttle struct {
	views      ledger.Ledger
	visited    ledger.Ledger
	viewTTL    time.Duration
	visitedTTL time.Duration
	remote     Incrementer
	log        *ops.Logger
}

// NewThrottle creates a view throttle over the given ledgers
func NewThrottle(views, visited ledger.Ledger, cfg *config.Views, remote Incrementer, logger *ops.Logger) *Throttle {
	return &Throttle{
		views:      views,
		visited:    visited,
		viewTTL:    cfg.TTL(),
		visitedTTL: cfg.VisitedTTL(),
		remote:     remote,
		log:        logger.WithComponent("views"),
	}
}

// ShouldIncrementView reports whether a view-count increment should be sent
// for noteID: true iff no ledger entry exists or the last one is at least a
// full TTL window old.
func (t *Throttle) ShouldIncrementView(ctx context.Context, noteID string) (bool, error) {
	ts, ok, err := t.views.Get(ctx, noteID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return time.Since(ts) >= t.viewTTL, nil
}

// RecordView refreshes the ledger entry for noteID. Callers invoke this only
// after the remote increment succeeded, so a failed call does not burn the
// window.
func (t *Throttle) RecordView(ctx context.Context, noteID string, at time.Time) error {
	return t.views.Record(ctx, noteID, at)
}

// MaybeRecordView sends a view increment if the throttle allows one and
// records it on success. Returns whether an increment was sent.
func (t *Throttle) MaybeRecordView(ctx context.Context, noteID string) (bool, error) {
	should, err := t.ShouldIncrementView(ctx, noteID)
	if err != nil {
		return false, err
	}
	if !should {
		t.log.LogViewIncrement(noteID, false)
		return false, nil
	}

	if err := t.remote.IncrementView(ctx, noteID); err != nil {
		return false, err
	}

	if err := t.RecordView(ctx, noteID, time.Now()); err != nil {
		// The increment went out; a failed ledger write only risks one
		// extra increment next time.
		t.log.Warn("failed to record view timestamp", "note_id", noteID, "error", err)
	}

	t.log.LogViewIncrement(noteID, true)
	return true, nil
}

// MarkVisited records that the user opened noteID
func (t *Throttle) MarkVisited(ctx context.Context, noteID string) error {
	return t.visited.Record(ctx, noteID, time.Now())
}

// IsVisited reports whether noteID was opened within the visited TTL
func (t *Throttle) IsVisited(ctx context.Context, noteID string) (bool, error) {
	ts, ok, err := t.visited.Get(ctx, noteID)
	if err != nil || !ok {
		return false, err
	}
	return time.Since(ts) < t.visitedTTL, nil
}

// SweepExpired removes expired entries from both ledgers. Intended to run
// opportunistically, e.g. on engine startup.
func (t *Throttle) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	for _, l := range []ledger.Ledger{t.views, t.visited} {
		removed, err := l.Sweep(ctx)
		t.log.LogLedgerSweep(l.Name(), removed, err)
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}
