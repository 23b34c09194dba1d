package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const postColumns = "id, author, content, flagged, timestamp, likes, replies"

// ReputationSnapshot records an author's score at a point in time.
type ReputationSnapshot struct {
	ID        int64        `db:"id" json:"-"`
	Author    feed.Address `db:"author" json:"author"`
	Score     int          `db:"score" json:"score"`
	CheckedAt time.Time    `db:"checked_at" json:"checkedAt"`
}

// SyncRun is one pass of copying posts from the ledger into the index.
type SyncRun struct {
	ID         string     `db:"id" json:"id"`
	FromID     uint64     `db:"from_id" json:"fromId"`
	ToID       uint64     `db:"to_id" json:"toId"`
	Fetched    int        `db:"fetched" json:"fetched"`
	Skipped    int        `db:"skipped" json:"skipped"`
	Error      string     `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}

// ListOpts controls post listing.
type ListOpts struct {
	Author feed.Address
	Since  time.Time
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	UpsertPosts(ctx context.Context, posts []feed.Post) error
	GetPost(ctx context.Context, id uint64) (*feed.Post, error)
	ListPosts(ctx context.Context, opts ListOpts) ([]feed.Post, error)
	MaxPostID(ctx context.Context) (uint64, error)
	CountPosts(ctx context.Context) (int, error)

	AddReputationSnapshot(ctx context.Context, author feed.Address, score int) error
	LatestReputation(ctx context.Context, author feed.Address) (*ReputationSnapshot, error)
	ReputationHistory(ctx context.Context, author feed.Address, since time.Time) ([]ReputationSnapshot, error)

	StartSyncRun(ctx context.Context, from, to uint64) (*SyncRun, error)
	FinishSyncRun(ctx context.Context, run *SyncRun) error
	LastSyncRun(ctx context.Context) (*SyncRun, error)

	AlertedPosts(ctx context.Context, ids []uint64) (map[uint64]bool, error)
	MarkAlerted(ctx context.Context, postID uint64, score float64) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertPosts stores posts in one transaction. Existing rows keep their
// content and author; only the mutable counters and the flag are refreshed.
func (s *SQLiteStore) UpsertPosts(ctx context.Context, posts []feed.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range posts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, author, content, flagged, timestamp, likes, replies, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				flagged = excluded.flagged,
				likes = excluded.likes,
				replies = excluded.replies,
				synced_at = excluded.synced_at
		`, p.ID, p.Author, p.Content, p.Flagged, p.Timestamp, p.Likes, p.Replies, now)
		if err != nil {
			return fmt.Errorf("upsert post %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetPost(ctx context.Context, id uint64) (*feed.Post, error) {
	var p feed.Post
	err := s.db.GetContext(ctx, &p, "SELECT "+postColumns+" FROM posts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return &p, nil
}

// ListPosts returns posts newest first. A zero Limit returns every match.
func (s *SQLiteStore) ListPosts(ctx context.Context, opts ListOpts) ([]feed.Post, error) {
	query := "SELECT " + postColumns + " FROM posts WHERE 1=1"
	var args []any

	if opts.Author != "" {
		query += " AND author = ?"
		args = append(args, opts.Author)
	}
	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since.Unix())
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	posts := []feed.Post{}
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// MaxPostID returns the highest indexed post id, or 0 for an empty index.
func (s *SQLiteStore) MaxPostID(ctx context.Context) (uint64, error) {
	var id sql.NullInt64
	if err := s.db.GetContext(ctx, &id, "SELECT MAX(id) FROM posts"); err != nil {
		return 0, fmt.Errorf("max post id: %w", err)
	}
	return uint64(id.Int64), nil
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) AddReputationSnapshot(ctx context.Context, author feed.Address, score int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation_snapshots (author, score, checked_at)
		VALUES (?, ?, ?)
	`, author, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add reputation snapshot %s: %w", author, err)
	}
	return nil
}

func (s *SQLiteStore) LatestReputation(ctx context.Context, author feed.Address) (*ReputationSnapshot, error) {
	var snap ReputationSnapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT id, author, score, checked_at FROM reputation_snapshots
		WHERE author = ? ORDER BY checked_at DESC, id DESC LIMIT 1
	`, author)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reputation of %s: %w", author, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest reputation %s: %w", author, err)
	}
	return &snap, nil
}

func (s *SQLiteStore) ReputationHistory(ctx context.Context, author feed.Address, since time.Time) ([]ReputationSnapshot, error) {
	snaps := []ReputationSnapshot{}
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT id, author, score, checked_at FROM reputation_snapshots
		WHERE author = ? AND checked_at >= ? ORDER BY checked_at, id
	`, author, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("reputation history %s: %w", author, err)
	}
	return snaps, nil
}

// StartSyncRun records the beginning of a sync over post ids from..to.
func (s *SQLiteStore) StartSyncRun(ctx context.Context, from, to uint64) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.NewString(),
		FromID:    from,
		ToID:      to,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sync_runs (id, from_id, to_id, started_at)
		VALUES (:id, :from_id, :to_id, :started_at)
	`, run)
	if err != nil {
		return nil, fmt.Errorf("start sync run: %w", err)
	}
	return run, nil
}

// FinishSyncRun stores the outcome of run and stamps its finish time.
func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *SyncRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE sync_runs
		SET fetched = :fetched, skipped = :skipped, error = :error, finished_at = :finished_at
		WHERE id = :id
	`, run)
	if err != nil {
		return fmt.Errorf("finish sync run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LastSyncRun(ctx context.Context) (*SyncRun, error) {
	var run SyncRun
	err := s.db.GetContext(ctx, &run, `
		SELECT id, from_id, to_id, fetched, skipped, error, started_at, finished_at
		FROM sync_runs ORDER BY started_at DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("last sync run: %w", err)
	}
	return &run, nil
}

// AlertedPosts reports which of ids already triggered a trending alert.
func (s *SQLiteStore) AlertedPosts(ctx context.Context, ids []uint64) (map[uint64]bool, error) {
	out := make(map[uint64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In("SELECT post_id FROM trending_alerts WHERE post_id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("alerted posts: %w", err)
	}
	var alerted []uint64
	if err := s.db.SelectContext(ctx, &alerted, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("alerted posts: %w", err)
	}
	for _, id := range alerted {
		out[id] = true
	}
	return out, nil
}

func (s *SQLiteStore) MarkAlerted(ctx context.Context, postID uint64, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trending_alerts (post_id, score, alerted_at) VALUES (?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING
	`, postID, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark alerted %d: %w", postID, err)
	}
	return nil
}
