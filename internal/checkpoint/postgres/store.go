// Package postgres stores manifests in a Postgres table with a JSONB body.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table.
type Config struct {
	DSN             string
	Table           string
	Key             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store is a Postgres-backed checkpoint.Store.
type Store struct {
	pool   pool
	table  string
	key    string
	logger *zap.Logger
}

// New connects to Postgres and creates the table when missing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("checkpoint.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table, cfg.Key, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a store on an existing pool (primarily for testing).
func NewWithPool(p pool, table, key string, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "manifests"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if key == "" {
		key = checkpoint.DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, table: table, key: key, logger: logger}, nil
}

// EnsureSchema creates the manifest table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create manifest table: %w", err)
	}
	return nil
}

// Load returns the manifest stored under the store's key.
func (s *Store) Load(ctx context.Context) (checkpoint.Manifest, bool, error) {
	var body []byte
	query := fmt.Sprintf(`SELECT body FROM %s WHERE key = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, s.key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checkpoint.Manifest{}, false, nil
		}
		return checkpoint.Manifest{}, false, fmt.Errorf("select manifest: %w", err)
	}
	m, err := checkpoint.Decode(body)
	if err != nil {
		return checkpoint.Manifest{}, false, err
	}
	m.Repair(s.logger)
	return m, true, nil
}

// Save upserts the manifest.
func (s *Store) Save(ctx context.Context, m checkpoint.Manifest) error {
	data, err := checkpoint.Encode(m)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (key, body, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, s.key, data, time.Now().UTC()); err != nil {
		return &harvest.FilesystemError{Op: "save manifest", Path: "postgres:" + s.table + "/" + s.key, Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
