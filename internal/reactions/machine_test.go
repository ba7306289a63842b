package reactions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/koffeedonut/notesync/internal/api"
	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
)

// fakeMutator records mutations and returns a canned note or error
type fakeMutator struct {
	mu    sync.Mutex
	calls []string
	err   error
	note  *models.NoteSummary

	// When set, MutateReaction blocks until released.
	block chan struct{}
}

func (f *fakeMutator) MutateReaction(ctx context.Context, noteID, userID string, direction models.ReactionDirection) (*models.NoteSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, noteID+"/"+string(direction))
	block := f.block
	err := f.err
	note := f.note
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (f *fakeMutator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupMachine(t *testing.T) (*Machine, *fakeMutator) {
	t.Helper()

	remote := &fakeMutator{}
	session := &config.Session{UserID: "u1", Username: "alice"}
	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	return NewMachine(session, remote, logger), remote
}

// settle waits for the in-flight mutation behind a Result to finish
func settle(t *testing.T, res *Result) error {
	t.Helper()
	return <-res.Settle
}

func TestLikeRequiresUser(t *testing.T) {
	remote := &fakeMutator{}
	session := &config.Session{}
	logger := ops.NewLogger(&config.Logging{Level: "error", Format: "text"})
	m := NewMachine(session, remote, logger)

	if _, err := m.Like(context.Background(), "n1"); !errors.Is(err, api.ErrUnauthenticated) {
		t.Fatalf("Expected ErrUnauthenticated, got %v", err)
	}
	if remote.callCount() != 0 {
		t.Error("Expected no remote call for anonymous reaction")
	}
}

func TestLikeOptimisticThenCommit(t *testing.T) {
	m, _ := setupMachine(t)

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 5})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	// The optimistic overlay is visible immediately.
	if res.State != StatePending {
		t.Errorf("Expected pending state, got %s", res.State)
	}
	if !res.Overlay.Liked || res.Overlay.DisplayedCount != 6 {
		t.Errorf("Expected liked count 6, got %+v", res.Overlay)
	}
	if res.Overlay.Committed {
		t.Error("Expected overlay uncommitted while pending")
	}

	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}

	overlay, state, ok := m.Overlay("n1")
	if !ok {
		t.Fatal("Expected overlay after commit")
	}
	if state != StateCommitted && state != StateIdle {
		t.Errorf("Expected committed or reconciled state, got %s", state)
	}
	if !overlay.Committed {
		t.Error("Expected overlay committed after settle")
	}
}

func TestLikeRollbackRestoresExactState(t *testing.T) {
	m, remote := setupMachine(t)
	remote.err = errors.New("boom")

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 5, DislikedBy: []string{"u1"}})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	// Cross-switch from dislike to like: +2 optimistically.
	if !res.Overlay.Liked || res.Overlay.Disliked || res.Overlay.DisplayedCount != 7 {
		t.Errorf("Expected liked count 7, got %+v", res.Overlay)
	}

	if err := settle(t, res); err == nil {
		t.Fatal("Expected rollback error")
	}

	overlay, state, ok := m.Overlay("n1")
	if !ok {
		t.Fatal("Expected overlay after rollback")
	}
	if state != StateRolledBack {
		t.Errorf("Expected rolled_back state, got %s", state)
	}
	if overlay.Liked || !overlay.Disliked || overlay.DisplayedCount != 5 {
		t.Errorf("Expected pre-mutation state restored, got %+v", overlay)
	}
}

func TestLikeToggleOff(t *testing.T) {
	m, _ := setupMachine(t)

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 5, LikedBy: []string{"u1"}})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	if res.Overlay.Liked || res.Overlay.DisplayedCount != 4 {
		t.Errorf("Expected like toggled off with count 4, got %+v", res.Overlay)
	}
	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}
}

func TestDislikeAfterLikeMovesCountByTwo(t *testing.T) {
	m, _ := setupMachine(t)

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 5, LikedBy: []string{"u1"}})

	res, err := m.Dislike(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Dislike() error = %v", err)
	}
	if res.Overlay.Liked || !res.Overlay.Disliked || res.Overlay.DisplayedCount != 3 {
		t.Errorf("Expected disliked count 3, got %+v", res.Overlay)
	}
	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}
}

func TestBaselineSourceSeedsFirstReaction(t *testing.T) {
	m, _ := setupMachine(t)

	m.SetBaselineSource(func(noteID string) (*models.NoteSummary, bool) {
		if noteID != "n1" {
			return nil, false
		}
		return &models.NoteSummary{ID: "n1", Likes: 10}, true
	})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	if res.Overlay.DisplayedCount != 11 {
		t.Errorf("Expected count 11 from baseline 10, got %d", res.Overlay.DisplayedCount)
	}
	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}
}

func TestCommitInvalidatesAndReconciles(t *testing.T) {
	m, remote := setupMachine(t)
	remote.note = &models.NoteSummary{ID: "n1", Likes: 42, LikedBy: []string{"u1"}}

	var mu sync.Mutex
	var invalidated []string
	m.SetInvalidator(func(noteID string) {
		mu.Lock()
		invalidated = append(invalidated, noteID)
		mu.Unlock()
	})

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 5})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invalidated) != 1 || invalidated[0] != "n1" {
		t.Errorf("Expected invalidation of n1, got %v", invalidated)
	}

	// The server's authoritative count replaces the optimistic one.
	overlay, _, ok := m.Overlay("n1")
	if !ok {
		t.Fatal("Expected overlay after reconcile")
	}
	if overlay.DisplayedCount != 42 || !overlay.Liked {
		t.Errorf("Expected reconciled server state, got %+v", overlay)
	}
}

func TestSameNoteReactionsSerialize(t *testing.T) {
	m, remote := setupMachine(t)
	remote.block = make(chan struct{})

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 0})

	ctx := context.Background()
	first, err := m.Like(ctx, "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	// The second reaction must wait for the first to settle.
	secondDone := make(chan *Result, 1)
	go func() {
		res, err := m.Like(ctx, "n1")
		if err != nil {
			t.Errorf("Second Like() error = %v", err)
		}
		secondDone <- res
	}()

	select {
	case <-secondDone:
		t.Fatal("Second reaction applied before first settled")
	default:
	}

	close(remote.block)
	if err := settle(t, first); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}

	second := <-secondDone
	// The second like toggles the first one off.
	if second.Overlay.Liked || second.Overlay.DisplayedCount != 0 {
		t.Errorf("Expected toggle back to 0, got %+v", second.Overlay)
	}
	if err := settle(t, second); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}

	if got := remote.callCount(); got != 2 {
		t.Errorf("Expected 2 remote calls, got %d", got)
	}
}

func TestDifferentNotesProceedIndependently(t *testing.T) {
	m, remote := setupMachine(t)
	remote.block = make(chan struct{})

	ctx := context.Background()
	m.Seed(&models.NoteSummary{ID: "n1", Likes: 0})
	m.Seed(&models.NoteSummary{ID: "n2", Likes: 0})

	first, err := m.Like(ctx, "n1")
	if err != nil {
		t.Fatalf("Like(n1) error = %v", err)
	}

	// n2 is not blocked by n1's in-flight mutation.
	second, err := m.Like(ctx, "n2")
	if err != nil {
		t.Fatalf("Like(n2) error = %v", err)
	}
	if !second.Overlay.Liked || second.Overlay.DisplayedCount != 1 {
		t.Errorf("Expected immediate optimistic like on n2, got %+v", second.Overlay)
	}

	close(remote.block)
	if err := settle(t, first); err != nil {
		t.Fatalf("Expected commit for n1, got %v", err)
	}
	if err := settle(t, second); err != nil {
		t.Fatalf("Expected commit for n2, got %v", err)
	}
}

func TestSeedSkippedWhilePending(t *testing.T) {
	m, remote := setupMachine(t)
	remote.block = make(chan struct{})

	m.Seed(&models.NoteSummary{ID: "n1", Likes: 0})

	res, err := m.Like(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Like() error = %v", err)
	}

	// A feed merge delivering stale server data must not clobber the
	// pending optimistic value.
	m.Seed(&models.NoteSummary{ID: "n1", Likes: 0})

	overlay, state, _ := m.Overlay("n1")
	if state != StatePending {
		t.Errorf("Expected pending state, got %s", state)
	}
	if !overlay.Liked || overlay.DisplayedCount != 1 {
		t.Errorf("Expected optimistic value preserved, got %+v", overlay)
	}

	close(remote.block)
	if err := settle(t, res); err != nil {
		t.Fatalf("Expected commit, got %v", err)
	}
}
