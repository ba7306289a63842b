package models

import "time"

// FeedView identifies one of the three independent feed presentations.
type FeedView string

const (
	ViewRecent    FeedView = "recent"
	ViewTrending  FeedView = "trending"
	ViewFollowing FeedView = "following"
)

// Valid reports whether v names a known feed view.
func (v FeedView) Valid() bool {
	switch v {
	case ViewRecent, ViewTrending, ViewFollowing:
		return true
	}
	return false
}

// Paged reports whether the view supports incremental pagination.
// Trending and following are single-shot snapshots.
func (v FeedView) Paged() bool {
	return v == ViewRecent
}

// AllViews lists every feed view in display order.
func AllViews() []FeedView {
	return []FeedView{ViewRecent, ViewTrending, ViewFollowing}
}

// ReactionDirection is the direction of a like/dislike mutation.
type ReactionDirection string

const (
	ReactionLike    ReactionDirection = "like"
	ReactionDislike ReactionDirection = "dislike"
)

// NoteSummary is the feed-level projection of a note as returned by the
// remote API. The feed cache owns these; other components receive copies.
type NoteSummary struct {
	ID         string    `json:"_id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Title      string    `json:"title" db:"title"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	Likes      int       `json:"likes" db:"likes"`
	LikedBy    []string  `json:"likedBy"`
	DislikedBy []string  `json:"dislikedBy"`
	Views      int       `json:"views" db:"views"`
	ImageURL   string    `json:"imageURL,omitempty" db:"image_url"`
}

// LikedByUser reports whether userID is in the note's likedBy set.
func (n *NoteSummary) LikedByUser(userID string) bool {
	for _, id := range n.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// DislikedByUser reports whether userID is in the note's dislikedBy set.
func (n *NoteSummary) DislikedByUser(userID string) bool {
	for _, id := range n.DislikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NotesPage is one page of feed results. TotalPages is only meaningful for
// paged views; snapshot views return a single page with TotalPages == 1.
type NotesPage struct {
	Notes      []NoteSummary `json:"notes"`
	Page       int           `json:"currentPage"`
	TotalPages int           `json:"totalPages"`
	TotalNotes int           `json:"totalNotes"`
}

// PendingUpload records a speculatively uploaded media object that is not
// yet referenced by a persisted note.
type PendingUpload struct {
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
}
