// Package history keeps a local journal of submitted analysis runs so past
// results survive restarts and offline starts of the executor.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"video-insights/internal/domain"
)

// Store journals runs in a local SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the journal at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the journal table when missing.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		video_url TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		submitted_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_submitted_at ON runs(submitted_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordSubmitted journals a newly accepted job.
func (s *Store) RecordSubmitted(ctx context.Context, jobID, videoURL string) error {
	query := `
		INSERT INTO runs (id, video_url, status, submitted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, jobID, videoURL, domain.JobStatusQueued, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// RecordOutcome journals a terminal outcome. It is idempotent and is applied
// again when an authoritative poll corrects a stream-declared outcome.
func (s *Store) RecordOutcome(ctx context.Context, jobID string, status domain.JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("refusing to record non-terminal outcome %s", status)
	}

	query := `
		UPDATE runs
		SET status = ?, message = ?, finished_at = COALESCE(finished_at, ?)
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query, status, message, time.Now().Unix(), jobID)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit journaled runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, video_url, status, message, submitted_at, finished_at
		FROM runs
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			rec         domain.RunRecord
			submittedAt int64
			finishedAt  sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.VideoURL, &rec.Status, &rec.Message, &submittedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		rec.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0).UTC()
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}
