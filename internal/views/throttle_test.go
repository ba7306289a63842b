package views

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/ledger"
	"github.com/koffeedonut/notesync/internal/ops"
)

// fakeIncrementer records increment calls and can fail on demand
type fakeIncrementer struct {
	calls []string
	err   error
}

func (f *fakeIncrementer) IncrementView(ctx context.Context, noteID string) error {
	f.calls = append(f.calls, noteID)
	return f.err
}

func setupThrottle(t *testing.T) (*Throttle, *fakeIncrementer, ledger.Ledger) {
	t.Helper()

	cfg := &config.Views{TTLMinutes: 30, VisitedTTLHours: 2}
	viewLedger := ledger.NewMemory("views", cfg.TTL())
	visitedLedger := ledger.NewMemory("visited", cfg.VisitedTTL())
	remote := &fakeIncrementer{}
	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})

	return NewThrottle(viewLedger, visitedLedger, cfg, remote, logger), remote, viewLedger
}

func TestShouldIncrementViewFirstTime(t *testing.T) {
	throttle, _, _ := setupThrottle(t)

	should, err := throttle.ShouldIncrementView(context.Background(), "n1")
	if err != nil {
		t.Fatalf("ShouldIncrementView() error = %v", err)
	}
	if !should {
		t.Error("Expected increment allowed for an unseen note")
	}
}

func TestShouldIncrementViewWithinWindow(t *testing.T) {
	throttle, _, viewLedger := setupThrottle(t)
	ctx := context.Background()

	// Seen 29 minutes ago: still throttled.
	if err := viewLedger.Record(ctx, "n1", time.Now().Add(-29*time.Minute)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	should, err := throttle.ShouldIncrementView(ctx, "n1")
	if err != nil {
		t.Fatalf("ShouldIncrementView() error = %v", err)
	}
	if should {
		t.Error("Expected increment suppressed inside the window")
	}
}

func TestShouldIncrementViewAfterWindow(t *testing.T) {
	throttle, _, viewLedger := setupThrottle(t)
	ctx := context.Background()

	if err := viewLedger.Record(ctx, "n1", time.Now().Add(-31*time.Minute)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	should, err := throttle.ShouldIncrementView(ctx, "n1")
	if err != nil {
		t.Fatalf("ShouldIncrementView() error = %v", err)
	}
	if !should {
		t.Error("Expected increment allowed after the window elapsed")
	}
}

func TestMaybeRecordViewSendsOncePerWindow(t *testing.T) {
	throttle, remote, _ := setupThrottle(t)
	ctx := context.Background()

	sent, err := throttle.MaybeRecordView(ctx, "n1")
	if err != nil {
		t.Fatalf("MaybeRecordView() error = %v", err)
	}
	if !sent {
		t.Fatal("Expected first view to send an increment")
	}

	// Immediate repeats are swallowed.
	for i := 0; i < 3; i++ {
		sent, err = throttle.MaybeRecordView(ctx, "n1")
		if err != nil {
			t.Fatalf("MaybeRecordView() error = %v", err)
		}
		if sent {
			t.Fatal("Expected repeat view suppressed")
		}
	}

	if len(remote.calls) != 1 {
		t.Errorf("Expected exactly 1 remote increment, got %d", len(remote.calls))
	}
}

func TestMaybeRecordViewFailureDoesNotBurnWindow(t *testing.T) {
	throttle, remote, _ := setupThrottle(t)
	ctx := context.Background()

	remote.err = errors.New("network down")
	if _, err := throttle.MaybeRecordView(ctx, "n1"); err == nil {
		t.Fatal("Expected error from failed increment")
	}

	// The failed attempt left no ledger entry, so a retry goes out.
	remote.err = nil
	sent, err := throttle.MaybeRecordView(ctx, "n1")
	if err != nil {
		t.Fatalf("MaybeRecordView() retry error = %v", err)
	}
	if !sent {
		t.Error("Expected retry to send after a failed increment")
	}
	if len(remote.calls) != 2 {
		t.Errorf("Expected 2 remote calls, got %d", len(remote.calls))
	}
}

func TestVisitedMarkers(t *testing.T) {
	throttle, _, _ := setupThrottle(t)
	ctx := context.Background()

	visited, err := throttle.IsVisited(ctx, "n1")
	if err != nil {
		t.Fatalf("IsVisited() error = %v", err)
	}
	if visited {
		t.Error("Expected unvisited note")
	}

	if err := throttle.MarkVisited(ctx, "n1"); err != nil {
		t.Fatalf("MarkVisited() error = %v", err)
	}

	visited, err = throttle.IsVisited(ctx, "n1")
	if err != nil {
		t.Fatalf("IsVisited() error = %v", err)
	}
	if !visited {
		t.Error("Expected visited note")
	}
}

func TestSweepExpired(t *testing.T) {
	throttle, _, viewLedger := setupThrottle(t)
	ctx := context.Background()

	if err := viewLedger.Record(ctx, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := viewLedger.Record(ctx, "new", time.Now()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	removed, err := throttle.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
}
