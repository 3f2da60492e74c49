// Package audit records applied level changes in a SQLite database.
//
// The trail is history only: nothing reads it back to restore thresholds when
// a target restarts.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaSQL string

// Entry is one applied level change.
type Entry struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	AppliedAt time.Time `json:"applied_at"`
	Logger    string    `json:"logger"`
	OldLevel  string    `json:"old_level"`
	NewLevel  string    `json:"new_level"`
	// Created is true when the logger did not exist before the change.
	Created bool `json:"created"`
	// Source names the channel the change came through (script, level-set, signal).
	Source  string `json:"source"`
	PeerPID int    `json:"peer_pid,omitempty"`
	// PeerUID is -1 when unknown.
	PeerUID int `json:"peer_uid"`
}

// Store is a SQLite-backed audit trail. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit: empty database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	// Writes come from a single goroutine; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("audit: nil db")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return nil, fmt.Errorf("audit: pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends e. A zero AppliedAt is replaced with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.AppliedAt.IsZero() {
		e.AppliedAt = time.Now()
	}
	created := 0
	if e.Created {
		created = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO level_changes (id, applied_at, logger, old_level, new_level, created, source, peer_pid, peer_uid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AppliedAt.UnixNano(), e.Logger, e.OldLevel, e.NewLevel, created, e.Source, e.PeerPID, e.PeerUID,
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", e.ID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means 100.
// A non-empty logger restricts the result to that logger.
func (s *Store) List(ctx context.Context, logger string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT seq, id, applied_at, logger, old_level, new_level, created, source, peer_pid, peer_uid
	      FROM level_changes`
	args := []any{}
	if logger != "" {
		q += ` WHERE logger = ?`
		args = append(args, logger)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			at      int64
			created int
		)
		if err := rows.Scan(&e.Seq, &e.ID, &at, &e.Logger, &e.OldLevel, &e.NewLevel, &created, &e.Source, &e.PeerPID, &e.PeerUID); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.AppliedAt = time.Unix(0, at)
		e.Created = created != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
