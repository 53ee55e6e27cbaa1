package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS options (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLite is a Store backed by a SQLite database file. Values are stored as
// JSON so booleans, numbers and strings round-trip.
type SQLite struct {
	db   *sql.DB
	path string
	watchers

	// seen is the last state this process knows of, used to diff writes made
	// by other processes.
	mu   sync.Mutex
	seen map[string]any
}

// OpenSQLite creates or opens the option database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return initSQLite(db, path)
}

// OpenSQLiteMemory opens an in-memory database, useful for testing.
func OpenSQLiteMemory() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:")
}

func initSQLite(db *sql.DB, path string) (*SQLite, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	s := &SQLite{db: db, path: path}
	seen, err := s.All(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.seen = seen
	return s, nil
}

// Path returns the database location.
func (s *SQLite) Path() string { return s.path }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, key string) (any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM options WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults[key], nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading option %s: %w", key, err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decoding option %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value any) error {
	return s.SetMany(ctx, map[string]any{key: value})
}

func (s *SQLite) SetMany(ctx context.Context, values map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	cs := make(ChangeSet)
	for key, value := range values {
		old, err := getTx(ctx, tx, key)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding option %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO options (key, value, updated_at) VALUES (?, ?, datetime('now'))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, string(encoded)); err != nil {
			return fmt.Errorf("writing option %s: %w", key, err)
		}
		if !equalValues(old, value) {
			cs[key] = Change{Old: old, New: value}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.mu.Lock()
	for key, value := range values {
		s.seen[key] = value
	}
	s.mu.Unlock()
	s.notify(cs)
	return nil
}

func getTx(ctx context.Context, tx *sql.Tx, key string) (any, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM options WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults[key], nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading option %s: %w", key, err)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decoding option %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Watch(fn func(ChangeSet)) func() { return s.add(fn) }
