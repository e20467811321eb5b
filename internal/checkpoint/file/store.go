// Package file stores the manifest as a JSON document on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// DefaultName is the manifest file name inside the output directory.
const DefaultName = "manifest.json"

// Store keeps the manifest at a fixed path. Saves go through a temporary file,
// fsync and rename, so a crash leaves either the old or the new manifest.
type Store struct {
	path   string
	logger *zap.Logger
}

// New prepares a Store at path, creating its directory.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("manifest path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &harvest.FilesystemError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the manifest location.
func (s *Store) Path() string { return s.path }

// Load reads the manifest if it exists.
func (s *Store) Load(_ context.Context) (checkpoint.Manifest, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return checkpoint.Manifest{}, false, nil
	}
	if err != nil {
		return checkpoint.Manifest{}, false, &harvest.FilesystemError{Op: "read", Path: s.path, Err: err}
	}
	m, err := checkpoint.Decode(data)
	if err != nil {
		return checkpoint.Manifest{}, false, fmt.Errorf("load %s: %w", s.path, err)
	}
	m.Repair(s.logger)
	return m, true, nil
}

// Save atomically replaces the manifest.
func (s *Store) Save(_ context.Context, m checkpoint.Manifest) error {
	data, err := checkpoint.Encode(m)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return &harvest.FilesystemError{Op: "save manifest", Path: s.path, Err: err}
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if d, dirErr := os.Open(dir); dirErr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
