// Package history keeps the most recent answer so it can be shown again
// without re-running the pipeline.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Entry is the last completed question and its structured answer.
type Entry struct {
	CycleID   string    `json:"cycleId"`
	Question  string    `json:"question"`
	Query     string    `json:"query"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
}

type entryRow struct {
	CycleID   string `db:"cycle_id"`
	Question  string `db:"question"`
	Query     string `db:"query"`
	Result    string `db:"result"`
	CreatedAt int64  `db:"created_at"`
}

// Store persists the last answer in SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SaveLast replaces the stored entry.
func (s *Store) SaveLast(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	const query = `
		INSERT OR REPLACE INTO last_answer (id, cycle_id, question, query, result, created_at)
		VALUES (1, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, e.CycleID, e.Question, e.Query, e.Result, e.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("saving last answer: %w", err)
	}
	return nil
}

// Last returns the stored entry; ok is false when nothing is stored.
func (s *Store) Last(ctx context.Context) (Entry, bool, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row,
		"SELECT cycle_id, question, query, result, created_at FROM last_answer WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading last answer: %w", err)
	}
	return Entry{
		CycleID:   row.CycleID,
		Question:  row.Question,
		Query:     row.Query,
		Result:    row.Result,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}, true, nil
}

// Clear removes the stored entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM last_answer"); err != nil {
		return fmt.Errorf("clearing last answer: %w", err)
	}
	return nil
}
