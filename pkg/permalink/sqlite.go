package permalink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
	id         TEXT PRIMARY KEY,
	search     TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLiteStore keeps links in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("permalink: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("permalink: create %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError("open sqlite", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, storeError("create schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, search string) (Link, error) {
	link := newLink(search)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (id, search, created_at) VALUES (?, ?, ?)`,
		link.ID, link.Search, link.CreatedAt.UnixMilli())
	if err != nil {
		return Link{}, storeError("insert link", err)
	}
	return link, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Link, error) {
	var (
		link    = Link{ID: id}
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT search, created_at FROM links WHERE id = ?`, id).
		Scan(&link.Search, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, storeError("select link", err)
	}
	link.CreatedAt = time.UnixMilli(created).UTC()
	return link, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
