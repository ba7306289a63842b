// Package reactions applies like/dislike mutations optimistically: the local
// overlay changes immediately, the remote mutation runs in the background,
// and a failure restores the exact pre-mutation state.
package reactions

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/koffeedonut/notesync/internal/api"
	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
)

// Mutator is the remote side of a reaction mutation
type Mutator interface {
	MutateReaction(ctx context.Context, noteID, userID string, direction models.ReactionDirection) (*models.NoteSummary, error)
}

// State is the lifecycle of a note's optimistic reaction
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Overlay is the locally displayed reaction state for one note. While a
// mutation is pending or committed-but-unconfirmed, the overlay supersedes
// whatever the cached NoteSummary says.
type Overlay struct {
	Liked          bool
	Disliked       bool
	DisplayedCount int
	Committed      bool
}

// snapshot captures the overlay before an optimistic transition so rollback
// is a single assignment instead of inverse arithmetic.
type snapshot struct {
	liked    bool
	disliked bool
	count    int
}

// Result is returned from Like/Dislike: the displayed state right after the
// optimistic transition plus a settle channel that yields the remote outcome
// (nil on commit, the mutation error on rollback).
type Result struct {
	Overlay Overlay
	State   State
	Settle  <-chan error
}

// noteState holds one note's overlay. Its mutex guards the fields; the
// inflight channel serializes mutations per note. Reactions on different
// notes proceed independently.
type noteState struct {
	mu          sync.Mutex
	overlay     Overlay
	state       State
	initialized bool
	inflight    chan struct{}
}

// Machine is the optimistic reaction state machine for all notes
type Machine struct {
	session *config.Session
	remote  Mutator
	notes   *xsync.MapOf[string, *noteState]
	log     *ops.Logger

	// Optional collaborators wired after construction.
	baseline   func(noteID string) (*models.NoteSummary, bool)
	invalidate func(noteID string)
}

// NewMachine creates a reaction state machine for the given session
func NewMachine(session *config.Session, remote Mutator, logger *ops.Logger) *Machine {
	return &Machine{
		session: session,
		remote:  remote,
		notes:   xsync.NewMapOf[string, *noteState](),
		log:     logger.WithComponent("reactions"),
	}
}

// SetBaselineSource wires a lookup for the cached NoteSummary, used to seed
// an overlay on the first reaction click.
func (m *Machine) SetBaselineSource(fn func(noteID string) (*models.NoteSummary, bool)) {
	m.baseline = fn
}

// SetInvalidator wires the feed cache's invalidate hook, called after a
// mutation commits so the next read re-fetches the note's detail.
func (m *Machine) SetInvalidator(fn func(noteID string)) {
	m.invalidate = fn
}

// Like applies an optimistic like (or un-like toggle) to noteID
func (m *Machine) Like(ctx context.Context, noteID string) (*Result, error) {
	return m.react(ctx, noteID, models.ReactionLike)
}

// Dislike applies an optimistic dislike (or un-dislike toggle) to noteID
func (m *Machine) Dislike(ctx context.Context, noteID string) (*Result, error) {
	return m.react(ctx, noteID, models.ReactionDislike)
}

// Overlay returns the current displayed reaction state for noteID
func (m *Machine) Overlay(noteID string) (Overlay, State, bool) {
	ns, ok := m.notes.Load(noteID)
	if !ok {
		return Overlay{}, StateIdle, false
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	if !ns.initialized {
		return Overlay{}, StateIdle, false
	}
	return ns.overlay, ns.state, true
}

// Seed reconciles a note's overlay with a fresh server NoteSummary. A
// pending mutation keeps its optimistic value (provisionally authoritative);
// otherwise the server value wins and any committed overlay is retired.
func (m *Machine) Seed(note *models.NoteSummary) {
	ns := m.note(note.ID)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.inflight != nil {
		return
	}

	ns.overlay = Overlay{
		Liked:          note.LikedByUser(m.session.UserID),
		Disliked:       note.DislikedByUser(m.session.UserID),
		DisplayedCount: note.Likes,
		Committed:      true,
	}
	ns.state = StateIdle
	ns.initialized = true
}

func (m *Machine) note(noteID string) *noteState {
	ns, _ := m.notes.LoadOrCompute(noteID, func() *noteState {
		return &noteState{}
	})
	return ns
}

// react runs one transition: snapshot, optimistic apply, async remote
// mutation, then commit or rollback.
func (m *Machine) react(ctx context.Context, noteID string, dir models.ReactionDirection) (*Result, error) {
	userID := m.session.UserID
	if userID == "" {
		return nil, fmt.Errorf("%w: reaction requires a signed-in user", api.ErrUnauthenticated)
	}

	ns := m.note(noteID)

	// Settle any in-flight mutation for this note before starting the next
	// transition, so responses for the same note can never land out of order.
	for {
		ns.mu.Lock()
		if ns.inflight == nil {
			break
		}
		wait := ns.inflight
		ns.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ns.initialized {
		if m.baseline != nil {
			if note, ok := m.baseline(noteID); ok {
				ns.overlay = Overlay{
					Liked:          note.LikedByUser(userID),
					Disliked:       note.DislikedByUser(userID),
					DisplayedCount: note.Likes,
				}
			}
		}
		ns.initialized = true
	}

	snap := snapshot{
		liked:    ns.overlay.Liked,
		disliked: ns.overlay.Disliked,
		count:    ns.overlay.DisplayedCount,
	}

	applyTransition(&ns.overlay, dir)
	ns.overlay.Committed = false
	ns.state = StatePending

	done := make(chan struct{})
	settle := make(chan error, 1)
	ns.inflight = done
	displayed := ns.overlay
	ns.mu.Unlock()

	go func() {
		note, err := m.remote.MutateReaction(ctx, noteID, userID, dir)

		ns.mu.Lock()
		if err != nil {
			// Restore the snapshot exactly.
			ns.overlay = Overlay{
				Liked:          snap.liked,
				Disliked:       snap.disliked,
				DisplayedCount: snap.count,
			}
			ns.state = StateRolledBack
		} else {
			ns.state = StateCommitted
			ns.overlay.Committed = true
		}
		ns.inflight = nil
		state := ns.state
		ns.mu.Unlock()

		m.log.LogReaction(noteID, string(dir), state.String(), err)

		if err == nil {
			if m.invalidate != nil {
				m.invalidate(noteID)
			}
			// The authoritative summary retires the overlay unless another
			// mutation started in the meantime.
			if note != nil {
				m.Seed(note)
			}
		}

		settle <- err
		close(done)
	}()

	return &Result{Overlay: displayed, State: StatePending, Settle: settle}, nil
}

// applyTransition mutates the overlay per the reaction transition table.
// Count deltas are relative; switching direction moves the count by two
// (one reaction removed, the opposite one added).
func applyTransition(o *Overlay, dir models.ReactionDirection) {
	switch dir {
	case models.ReactionLike:
		switch {
		case o.Liked:
			// Toggle off.
			o.Liked = false
			o.DisplayedCount--
		case o.Disliked:
			o.Liked = true
			o.Disliked = false
			o.DisplayedCount += 2
		default:
			o.Liked = true
			o.DisplayedCount++
		}
	case models.ReactionDislike:
		switch {
		case o.Disliked:
			// Toggle off.
			o.Disliked = false
			o.DisplayedCount++
		case o.Liked:
			o.Disliked = true
			o.Liked = false
			o.DisplayedCount -= 2
		default:
			o.Disliked = true
			o.DisplayedCount--
		}
	}
}
