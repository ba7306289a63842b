// Package feed maintains the client-side cache of the three feed views.
// Each view keeps an ordered, deduplicated list of note ids plus paging
// state; pages merge in server order and a fetch that yields nothing novel
// stops pagination so the engine can never loop on a stuck cursor.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
	"github.com/koffeedonut/notesync/internal/storage"
)

// ErrFetchInFlight is returned when a load is requested for a view that is
// already fetching. The caller should treat it as "already happening".
var ErrFetchInFlight = errors.New("fetch already in flight for view")

// Fetcher is the remote side of a feed load
type Fetcher interface {
	FetchNotes(ctx context.Context, view models.FeedView, page, limit int) (*models.NotesPage, error)
}

// Snapshot is a read-only copy of one view's cache state
type Snapshot struct {
	View      models.FeedView
	Items     []string
	IsLoading bool
	HasMore   bool
	Stale     bool
	Err       error
}

// viewState is the mutable cache for one feed view. Guarded by Engine.mu.
type viewState struct {
	items     []string
	index     map[string]struct{}
	page      int
	hasMore   bool
	isLoading bool
	stale     bool
	err       error
}

func newViewState() *viewState {
	return &viewState{
		index: make(map[string]struct{}),
	}
}

// Engine owns the cached state of all feed views and the shared note table
type Engine struct {
	remote   Fetcher
	store    *storage.Storage
	log      *ops.Logger
	pageSize int

	mu     sync.Mutex
	active models.FeedView
	views  map[models.FeedView]*viewState

	// Shared across views; a note appearing in several feeds has one entry.
	notes *xsync.MapOf[string, *models.NoteSummary]

	persist func(f func())
	onNote  func(note *models.NoteSummary)
}

// NewEngine creates a feed engine. store may be nil for a purely in-memory
// cache; when set, previously persisted view snapshots are restored.
func NewEngine(ctx context.Context, remote Fetcher, store *storage.Storage, cfg *config.Feeds, logger *ops.Logger) (*Engine, error) {
	e := &Engine{
		remote:   remote,
		store:    store,
		log:      logger.WithComponent("feed"),
		pageSize: cfg.PageSize,
		active:   models.ViewRecent,
		views:    make(map[models.FeedView]*viewState),
		notes:    xsync.NewMapOf[string, *models.NoteSummary](),
		persist:  debounce.New(cfg.PersistDebounce()),
	}

	for _, v := range models.AllViews() {
		e.views[v] = newViewState()
	}

	if store != nil {
		if err := e.restore(ctx); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// SetNoteObserver wires a hook invoked for every NoteSummary merged into the
// cache, used to reconcile optimistic reaction overlays.
func (e *Engine) SetNoteObserver(fn func(note *models.NoteSummary)) {
	e.onNote = fn
}

// restore reloads persisted view snapshots. Restored ids have no note bodies,
// so each restored view is marked stale and refetches on first activation.
func (e *Engine) restore(ctx context.Context) error {
	for _, v := range models.AllViews() {
		snap, err := e.store.GetFeedSnapshot(ctx, string(v))
		if err != nil {
			return fmt.Errorf("failed to restore %s view: %w", v, err)
		}
		if snap == nil {
			continue
		}

		vs := e.views[v]
		for _, id := range snap.Items {
			if _, seen := vs.index[id]; seen {
				continue
			}
			vs.index[id] = struct{}{}
			vs.items = append(vs.items, id)
		}
		vs.page = snap.Page
		vs.hasMore = v.Paged() && snap.HasMore
		vs.stale = true

		e.log.Debug("restored feed snapshot",
			"view", v,
			"items", len(vs.items),
			"page", vs.page)
	}
	return nil
}

// ActiveView returns the currently displayed view
func (e *Engine) ActiveView() models.FeedView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// View returns a read-only snapshot of the named view's cache state
func (e *Engine) View(view models.FeedView) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(view)
}

func (e *Engine) snapshotLocked(view models.FeedView) Snapshot {
	vs, ok := e.views[view]
	if !ok {
		return Snapshot{View: view}
	}
	items := make([]string, len(vs.items))
	copy(items, vs.items)
	return Snapshot{
		View:      view,
		Items:     items,
		IsLoading: vs.isLoading,
		HasMore:   vs.hasMore,
		Stale:     vs.stale,
		Err:       vs.err,
	}
}

// Note returns the cached NoteSummary for id, if any view has seen it
func (e *Engine) Note(id string) (*models.NoteSummary, bool) {
	return e.notes.Load(id)
}

// SwitchView makes view the active one and loads it if its cache is empty or
// stale. The view being left keeps its items, page and hasMore untouched.
func (e *Engine) SwitchView(ctx context.Context, view models.FeedView) (Snapshot, error) {
	if !view.Valid() {
		return Snapshot{}, fmt.Errorf("unknown view %q", view)
	}

	e.mu.Lock()
	e.active = view
	vs := e.views[view]
	needsLoad := len(vs.items) == 0 || vs.stale
	e.mu.Unlock()

	if needsLoad {
		if err := e.LoadInitial(ctx, view); err != nil && !errors.Is(err, ErrFetchInFlight) {
			return e.View(view), err
		}
	}
	return e.View(view), nil
}

// LoadInitial fetches page 1 of a view and replaces its cache. A call while
// the view is already fetching returns ErrFetchInFlight and does nothing.
func (e *Engine) LoadInitial(ctx context.Context, view models.FeedView) error {
	if !view.Valid() {
		return fmt.Errorf("unknown view %q", view)
	}

	e.mu.Lock()
	vs := e.views[view]
	if vs.isLoading {
		e.mu.Unlock()
		return ErrFetchInFlight
	}
	vs.isLoading = true
	vs.err = nil
	e.mu.Unlock()

	page, err := e.fetch(ctx, view, 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	vs.isLoading = false
	if err != nil {
		// Keep the stale items on screen; only the error flag changes.
		vs.err = err
		return err
	}

	vs.items = vs.items[:0]
	vs.index = make(map[string]struct{})
	vs.page = 1
	vs.stale = false

	novel := e.mergeLocked(vs, page.Notes)
	if view.Paged() {
		vs.hasMore = page.Page < page.TotalPages
	} else {
		vs.hasMore = false
	}

	e.log.LogMerge(string(view), len(page.Notes), novel, len(vs.items))
	e.persistLocked(view, vs)
	return nil
}

// LoadMore fetches the next page of a paged view and appends its novel notes.
// It is a no-op when the view has no further pages, and returns
// ErrFetchInFlight while a fetch is running.
func (e *Engine) LoadMore(ctx context.Context, view models.FeedView) error {
	if !view.Paged() {
		return nil
	}

	e.mu.Lock()
	vs := e.views[view]
	if vs.isLoading {
		e.mu.Unlock()
		return ErrFetchInFlight
	}
	if !vs.hasMore {
		e.mu.Unlock()
		return nil
	}
	next := vs.page + 1
	vs.isLoading = true
	vs.err = nil
	e.mu.Unlock()

	page, err := e.fetch(ctx, view, next)

	e.mu.Lock()
	defer e.mu.Unlock()
	vs.isLoading = false
	if err != nil {
		vs.err = err
		return err
	}

	novel := e.mergeLocked(vs, page.Notes)
	vs.page = next
	vs.hasMore = next < page.TotalPages

	// A page that adds nothing new means the server is re-serving known
	// notes; stop paginating rather than spin on the same cursor.
	if novel == 0 {
		vs.hasMore = false
	}

	e.log.LogMerge(string(view), len(page.Notes), novel, len(vs.items))
	e.persistLocked(view, vs)
	return nil
}

// Refresh re-fetches the active view from page 1
func (e *Engine) Refresh(ctx context.Context) error {
	return e.LoadInitial(ctx, e.ActiveView())
}

// Invalidate marks every view containing noteID as stale, so the next
// activation of those views re-fetches. Item order is untouched; the note
// does not move or disappear before fresh data arrives.
func (e *Engine) Invalidate(noteID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for v, vs := range e.views {
		if _, ok := vs.index[noteID]; ok {
			vs.stale = true
			e.log.Debug("view invalidated", "view", v, "note_id", noteID)
		}
	}
}

// InvalidateAll marks every view stale, e.g. after creating or deleting a note
func (e *Engine) InvalidateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, vs := range e.views {
		vs.stale = true
	}
}

// fetch performs the remote load outside the engine lock
func (e *Engine) fetch(ctx context.Context, view models.FeedView, page int) (*models.NotesPage, error) {
	start := time.Now()
	result, err := e.remote.FetchNotes(ctx, view, page, e.pageSize)
	count := 0
	if result != nil {
		count = len(result.Notes)
	}
	e.log.LogFetch(string(view), page, count, time.Since(start), err)
	return result, err
}

// mergeLocked appends notes the view has not seen, preserving server order,
// and refreshes the shared note table for every incoming note (novel or not).
// Returns how many ids were new to the view.
func (e *Engine) mergeLocked(vs *viewState, notes []models.NoteSummary) int {
	novel := 0
	for i := range notes {
		note := notes[i]
		e.notes.Store(note.ID, &note)
		if e.onNote != nil {
			e.onNote(&note)
		}

		if _, seen := vs.index[note.ID]; seen {
			continue
		}
		vs.index[note.ID] = struct{}{}
		vs.items = append(vs.items, note.ID)
		novel++
	}
	return novel
}

// persistLocked schedules a debounced snapshot write for the view. Rapid
// merge bursts (e.g. scroll-driven LoadMore) collapse into one write.
func (e *Engine) persistLocked(view models.FeedView, vs *viewState) {
	if e.store == nil {
		return
	}

	snap := &storage.FeedSnapshot{
		View:    string(view),
		Page:    vs.page,
		Items:   make([]string, len(vs.items)),
		HasMore: vs.hasMore,
	}
	copy(snap.Items, vs.items)

	e.persist(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := e.store.SaveFeedSnapshot(ctx, snap)
		e.log.LogStorageOperation("save_feed_snapshot", time.Since(start), err)
	})
}

// Flush persists every view's snapshot immediately, bypassing the debounce.
// Intended for shutdown.
func (e *Engine) Flush(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	snaps := make([]*storage.FeedSnapshot, 0, len(e.views))
	for v, vs := range e.views {
		if len(vs.items) == 0 {
			continue
		}
		snap := &storage.FeedSnapshot{
			View:    string(v),
			Page:    vs.page,
			Items:   make([]string, len(vs.items)),
			HasMore: vs.hasMore,
		}
		copy(snap.Items, vs.items)
		snaps = append(snaps, snap)
	}
	e.mu.Unlock()

	for _, snap := range snaps {
		if err := e.store.SaveFeedSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("failed to flush %s snapshot: %w", snap.View, err)
		}
	}
	return nil
}
