// Package store persists run history in SQLite. Recording is best-effort:
// callers log failures and never let them change the run's exit status.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/stackward/stackward/internal/check"
)

// Store is a SQLite-backed run history.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Run is one recorded validation, health or backup run.
type Run struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Verdict   string
	Passed    int
	Failed    int
	Warned    int
	Score     int
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record persists a finished report.
func (s *Store) Record(ctx context.Context, report *check.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, timestamp, verdict, passed, failed, warned, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Kind, report.Timestamp.UTC().Format(time.RFC3339),
		string(report.Verdict()), report.Passed, report.Failed, report.Warned, report.Score())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns the newest n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, timestamp, verdict, passed, failed, warned, score
		 FROM runs ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &r.Kind, &ts, &r.Verdict, &r.Passed, &r.Failed, &r.Warned, &r.Score); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			log.Warn().Str("run", r.ID).Str("timestamp", ts).Msg("run has unparseable timestamp")
		}
		r.Timestamp = t
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
