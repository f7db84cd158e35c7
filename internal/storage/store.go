// Package storage implements the folder, content and user repositories on
// SQLite through sqlx and the pure-Go modernc.org/sqlite driver.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/folders"
	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so stored timestamps compare lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Options configures Open.
type Options struct {
	// Path is the database file, or ":memory:".
	Path        string
	BusyTimeout time.Duration
}

// Store is the SQLite-backed repository set.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ folders.FolderRepository  = (*Store)(nil)
	_ folders.LinkRepository    = (*Store)(nil)
	_ folders.ContentRepository = (*Store)(nil)
	_ folders.UserRepository    = (*Store)(nil)
)

// Open opens (creating if needed) the database and applies the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: storage path is required", folders.ErrInvalidInput)
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	memory := opts.Path == ":memory:"
	if !memory {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", opts.Path, busy.Milliseconds())
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}

// storageErr tags err as a retryable storage failure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, folders.ErrStorageFailure, err)
}

// notFound maps sql.ErrNoRows to sentinel, everything else to storageErr.
func notFound(op string, err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return storageErr(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// blob encodes v for a BLOB column, binding NULL for an absent vector.
func blob(v []float64) interface{} {
	if len(v) == 0 {
		return nil
	}
	return vecmath.Encode(v)
}
