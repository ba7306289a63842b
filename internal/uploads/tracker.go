// Package uploads tracks speculatively uploaded media so orphans can be
// reclaimed. Media is uploaded while a note is still being composed; if the
// note is never saved, the uploads would otherwise leak on the remote store.
package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/koffeedonut/notesync/internal/content"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
)

// MediaDeleter is the remote side of a batch media delete
type MediaDeleter interface {
	DeleteMedia(ctx context.Context, urls []string) error
}

// Store is the persistence needed by the tracker
type Store interface {
	AddPendingUpload(ctx context.Context, url string, createdAt time.Time) error
	RemovePendingUploads(ctx context.Context, urls []string) error
	ListPendingUploads(ctx context.Context) ([]models.PendingUpload, error)
}

// Tracker records speculative uploads and reconciles or deletes orphans.
// Cleanup is at-least-once: a failed batch delete leaves the list intact so
// the next trigger point retries it in full.
type Tracker struct {
	store  Store
	remote MediaDeleter
	log    *ops.Logger

	// Serializes cleanup runs so two trigger points cannot double-delete.
	mu sync.Mutex
}

// NewTracker creates an upload tracker
func NewTracker(store Store, remote MediaDeleter, logger *ops.Logger) *Tracker {
	return &Tracker{
		store:  store,
		remote: remote,
		log:    logger.WithComponent("uploads"),
	}
}

// RecordPendingUpload appends a speculative upload to the pending list.
// Re-adding an existing URL is a no-op.
func (t *Tracker) RecordPendingUpload(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return t.store.AddPendingUpload(ctx, url, time.Now())
}

// Commit removes every entry whose URL is in urls from the pending list
// without deleting the remote object; the note referencing them has been
// persisted.
func (t *Tracker) Commit(ctx context.Context, urls []string) error {
	return t.store.RemovePendingUploads(ctx, urls)
}

// CleanupAbandoned issues one batch remote delete for all pending URLs and
// clears the list on success. Returns how many URLs were deleted.
func (t *Tracker) CleanupAbandoned(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending, err := t.store.ListPendingUploads(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	urls := make([]string, 0, len(pending))
	for _, p := range pending {
		urls = append(urls, p.URL)
	}

	if err := t.remote.DeleteMedia(ctx, urls); err != nil {
		// Leave the list intact; the next trigger point retries in full.
		t.log.LogUploadCleanup(len(urls), err)
		return 0, err
	}

	if err := t.store.RemovePendingUploads(ctx, urls); err != nil {
		// Remote objects are gone; a retried delete for missing media is
		// harmless, so surface the store error but don't undo anything.
		return len(urls), err
	}

	t.log.LogUploadCleanup(len(urls), nil)
	return len(urls), nil
}

// DeleteReferenced queues media URLs referenced by a just-deleted note and
// runs a cleanup immediately. The URLs are recorded first so a failed batch
// delete is retried at the next trigger point.
func (t *Tracker) DeleteReferenced(ctx context.Context, urls []string) (int, error) {
	for _, url := range urls {
		if err := t.RecordPendingUpload(ctx, url); err != nil {
			return 0, err
		}
	}
	return t.CleanupAbandoned(ctx)
}

// DeleteNoteMedia extracts the uploaded media URLs from a deleted note's
// editor document and reclaims them. Only URLs under mediaBase are ours to
// delete; third-party embeds are left alone.
func (t *Tracker) DeleteNoteMedia(ctx context.Context, document, mediaBase string) (int, error) {
	return t.DeleteReferenced(ctx, content.UploadedMediaURLs(document, mediaBase))
}
