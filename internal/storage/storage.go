package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/koffeedonut/notesync/internal/config"
	"github.com/koffeedonut/notesync/internal/models"
)

// Storage persists the engine's client-local state: feed snapshots, TTL
// ledger rows and the pending-upload list.
type Storage struct {
	db     *sqlx.DB
	config *config.Storage
}

// New creates a new Storage instance with the given configuration
func New(ctx context.Context, cfg *config.Storage) (*Storage, error) {
	s := &Storage{
		config: cfg,
	}

	switch cfg.Driver {
	case "sqlite":
		if err := s.initSQLite(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	if err := s.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// initSQLite opens the sqlite database, creating its directory if needed
func (s *Storage) initSQLite(ctx context.Context) error {
	if dir := filepath.Dir(s.config.SQLitePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", s.config.SQLitePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// runMigrations creates the local-state tables
func (s *Storage) runMigrations(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feed_snapshots (
		view       TEXT PRIMARY KEY,
		page       INTEGER NOT NULL,
		items      TEXT NOT NULL,
		has_more   INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		ledger TEXT NOT NULL,
		key    TEXT NOT NULL,
		ts     INTEGER NOT NULL,
		PRIMARY KEY (ledger, key)
	);

	CREATE TABLE IF NOT EXISTS pending_uploads (
		url        TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// DB returns the underlying database handle
func (s *Storage) DB() *sqlx.DB {
	return s.db
}

// Close closes the storage connections
func (s *Storage) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// FeedSnapshot is the persisted form of one feed view's cached state
type FeedSnapshot struct {
	View      string
	Page      int
	Items     []string
	HasMore   bool
	UpdatedAt int64
}

// SaveFeedSnapshot upserts a feed view snapshot
func (s *Storage) SaveFeedSnapshot(ctx context.Context, snap *FeedSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feed_snapshots (view, page, items, has_more, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(view) DO UPDATE SET
			page = excluded.page,
			items = excluded.items,
			has_more = excluded.has_more,
			updated_at = excluded.updated_at`,
		snap.View, snap.Page, string(items), snap.HasMore, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save feed snapshot: %w", err)
	}

	return nil
}

// GetFeedSnapshot loads the snapshot for a view. Returns (nil, nil) when no
// snapshot has been saved yet.
func (s *Storage) GetFeedSnapshot(ctx context.Context, view string) (*FeedSnapshot, error) {
	var row struct {
		View      string `db:"view"`
		Page      int    `db:"page"`
		Items     string `db:"items"`
		HasMore   bool   `db:"has_more"`
		UpdatedAt int64  `db:"updated_at"`
	}

	err := s.db.GetContext(ctx, &row,
		`SELECT view, page, items, has_more, updated_at FROM feed_snapshots WHERE view = ?`, view)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feed snapshot: %w", err)
	}

	snap := &FeedSnapshot{
		View:      row.View,
		Page:      row.Page,
		HasMore:   row.HasMore,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Items), &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot items: %w", err)
	}

	return snap, nil
}

// GetLedgerEntry returns the timestamp recorded for key in the named ledger.
// The second return value is false when no entry exists.
func (s *Storage) GetLedgerEntry(ctx context.Context, ledger, key string) (int64, bool, error) {
	var ts int64
	err := s.db.GetContext(ctx, &ts,
		`SELECT ts FROM ledger_entries WHERE ledger = ? AND key = ?`, ledger, key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	return ts, true, nil
}

// PutLedgerEntry creates or refreshes a ledger entry
func (s *Storage) PutLedgerEntry(ctx context.Context, ledger, key string, ts int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (ledger, key, ts)
		VALUES (?, ?, ?)
		ON CONFLICT(ledger, key) DO UPDATE SET ts = excluded.ts`,
		ledger, key, ts)
	if err != nil {
		return fmt.Errorf("failed to put ledger entry: %w", err)
	}
	return nil
}

// DeleteLedgerEntry removes a single ledger entry
func (s *Storage) DeleteLedgerEntry(ctx context.Context, ledger, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE ledger = ? AND key = ?`, ledger, key)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

// SweepLedger deletes entries at or below the cutoff timestamp and returns
// how many were removed.
func (s *Storage) SweepLedger(ctx context.Context, ledger string, cutoff int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE ledger = ? AND ts <= ?`, ledger, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep ledger: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept ledger entries: %w", err)
	}
	return int(n), nil
}

// AddPendingUpload records a speculative upload. Re-adding an existing URL
// is a no-op.
func (s *Storage) AddPendingUpload(ctx context.Context, url string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_uploads (url, created_at)
		VALUES (?, ?)
		ON CONFLICT(url) DO NOTHING`,
		url, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to add pending upload: %w", err)
	}
	return nil
}

// RemovePendingUploads deletes the given URLs from the pending list
func (s *Storage) RemovePendingUploads(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(urls)), ",")
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_uploads WHERE url IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to remove pending uploads: %w", err)
	}
	return nil
}

// ListPendingUploads returns all tracked uploads, oldest first
func (s *Storage) ListPendingUploads(ctx context.Context) ([]models.PendingUpload, error) {
	var rows []struct {
		URL       string `db:"url"`
		CreatedAt int64  `db:"created_at"`
	}

	err := s.db.SelectContext(ctx, &rows,
		`SELECT url, created_at FROM pending_uploads ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}

	uploads := make([]models.PendingUpload, 0, len(rows))
	for _, r := range rows {
		uploads = append(uploads, models.PendingUpload{
			URL:       r.URL,
			CreatedAt: time.Unix(r.CreatedAt, 0),
		})
	}
	return uploads, nil
}
