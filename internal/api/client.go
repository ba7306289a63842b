package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/models"
	"github.com/koffeedonut/notesync/internal/ops"
)

// Client provides a high-level interface to the remote notes API
type Client struct {
	baseURL  string
	http     *http.Client
	backoff  []time.Duration
	session  *config.Session
	clientID string
	log      *ops.Logger
}

// New creates a new API client with the given configuration
func New(cfg *config.Remote, session *config.Session, logger *ops.Logger) *Client {
	backoff := make([]time.Duration, 0, len(cfg.BackoffMs))
	for _, ms := range cfg.BackoffMs {
		backoff = append(backoff, time.Duration(ms)*time.Millisecond)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout()},
		backoff:  backoff,
		session:  session,
		clientID: uuid.NewString(),
		log:      logger.WithComponent("api"),
	}
}

// ClientID returns the per-process client instance id sent with every request
func (c *Client) ClientID() string {
	return c.clientID
}

// FetchNotes fetches one page of a feed view. Recent is paged; trending and
// following return a single snapshot page with TotalPages == 1.
func (c *Client) FetchNotes(ctx context.Context, view models.FeedView, page, limit int) (*models.NotesPage, error) {
	if !view.Valid() {
		return nil, fmt.Errorf("%w: unknown view %q", ErrValidation, view)
	}

	switch view {
	case models.ViewRecent:
		return c.fetchRecent(ctx, page, limit)
	case models.ViewTrending:
		return c.fetchSnapshot(ctx, "/notes/trending")
	default:
		if c.session.Username == "" {
			return nil, fmt.Errorf("%w: following feed requires a signed-in user", ErrUnauthenticated)
		}
		return c.fetchSnapshot(ctx, "/notes/following/"+url.PathEscape(c.session.Username))
	}
}

func (c *Client) fetchRecent(ctx context.Context, page, limit int) (*models.NotesPage, error) {
	path := fmt.Sprintf("/notes?page=%d&limit=%d", page, limit)

	var result models.NotesPage
	if err := c.getWithRetry(ctx, path, &result); err != nil {
		return nil, err
	}

	// A paged response without page-count metadata would make hasMore
	// undecidable, so reject it outright.
	if result.TotalPages <= 0 {
		return nil, fmt.Errorf("%w: paged response missing totalPages", ErrValidation)
	}
	if result.Page == 0 {
		result.Page = page
	}

	return &result, nil
}

func (c *Client) fetchSnapshot(ctx context.Context, path string) (*models.NotesPage, error) {
	var notes []models.NoteSummary
	if err := c.getWithRetry(ctx, path, &notes); err != nil {
		return nil, err
	}

	return &models.NotesPage{
		Notes:      notes,
		Page:       1,
		TotalPages: 1,
		TotalNotes: len(notes),
	}, nil
}

// MutateReaction applies a like or dislike to a note on behalf of userID
// and returns the server's authoritative NoteSummary.
func (c *Client) MutateReaction(ctx context.Context, noteID, userID string, direction models.ReactionDirection) (*models.NoteSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: reaction requires a user id", ErrUnauthenticated)
	}

	path := fmt.Sprintf("/notes/%s/%s", url.PathEscape(noteID), direction)
	body := map[string]string{"userId": userID}

	var note models.NoteSummary
	if err := c.do(ctx, http.MethodPatch, path, body, &note); err != nil {
		return nil, err
	}

	return &note, nil
}

// IncrementView asks the server to bump a note's view counter. Throttling
// is the caller's job; this call is unconditional.
func (c *Client) IncrementView(ctx context.Context, noteID string) error {
	path := fmt.Sprintf("/notes/%s/view", url.PathEscape(noteID))
	return c.do(ctx, http.MethodPatch, path, nil, nil)
}

// DeleteMedia issues one batch delete for the given media URLs.
func (c *Client) DeleteMedia(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	body := map[string][]string{"urls": urls}
	return c.do(ctx, http.MethodDelete, "/media", body, nil)
}

// getWithRetry performs a GET, retrying transient failures on the
// configured backoff schedule.
func (c *Client) getWithRetry(ctx context.Context, path string, out any) error {
	err := c.do(ctx, http.MethodGet, path, nil, out)
	for attempt := 0; Retryable(err) && attempt < len(c.backoff); attempt++ {
		select {
		case <-time.After(c.backoff[attempt]):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		}
		c.log.Debug("retrying fetch", "path", path, "attempt", attempt+1)
		err = c.do(ctx, http.MethodGet, path, nil, out)
	}
	return err
}

// do performs a single JSON request against the remote API
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-ID", c.clientID)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrValidation, err)
		}
	}

	return nil
}
