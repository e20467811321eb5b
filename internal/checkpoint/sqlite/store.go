// Package sqlite stores manifests in a SQLite database, one row per key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/harvest"
)

const schema = `
CREATE TABLE IF NOT EXISTS manifests (
	key        TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store is a SQLite-backed checkpoint.Store.
type Store struct {
	db     *sql.DB
	key    string
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and prepares the schema.
func Open(ctx context.Context, path, key string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if key == "" {
		key = checkpoint.DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &harvest.FilesystemError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=FULL", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite: %w", err)
		}
	}
	return &Store{db: db, key: key, logger: logger}, nil
}

// Load returns the manifest stored under the store's key.
func (s *Store) Load(ctx context.Context) (checkpoint.Manifest, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM manifests WHERE key = ?`, s.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Manifest{}, false, nil
	}
	if err != nil {
		return checkpoint.Manifest{}, false, fmt.Errorf("select manifest: %w", err)
	}
	m, err := checkpoint.Decode([]byte(body))
	if err != nil {
		return checkpoint.Manifest{}, false, err
	}
	m.Repair(s.logger)
	return m, true, nil
}

// Save upserts the manifest in a single statement.
func (s *Store) Save(ctx context.Context, m checkpoint.Manifest) error {
	data, err := checkpoint.Encode(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO manifests (key, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		s.key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &harvest.FilesystemError{Op: "save manifest", Path: "sqlite:" + s.key, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
