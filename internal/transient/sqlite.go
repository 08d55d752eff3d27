package transient

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

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transients (
	id         TEXT PRIMARY KEY,
	contacts   TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transients_updated ON transients(updated_at);
`

// SQLiteStore persists records in a SQLite database so multi-page forms
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open transient database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate transient database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get retrieves a record by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var contacts string
	var updated time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT contacts, updated_at FROM transients WHERE id = ?`, id,
	).Scan(&contacts, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transient %s: %w", id, err)
	}

	rec := &Record{ID: id, UpdatedAt: updated, Contacts: make(map[string]int)}
	if err := json.Unmarshal([]byte(contacts), &rec.Contacts); err != nil {
		return nil, fmt.Errorf("failed to decode transient %s: %w", id, err)
	}
	return rec, nil
}

// Save upserts the record
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("transient record must have an ID")
	}
	contacts, err := json.Marshal(rec.Contacts)
	if err != nil {
		return fmt.Errorf("failed to encode transient %s: %w", rec.ID, err)
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transients (id, contacts, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET contacts = excluded.contacts, updated_at = excluded.updated_at`,
		rec.ID, string(contacts), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transient %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a record
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transient %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Purge removes records not updated since before
func (s *SQLiteStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE updated_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge transients: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
