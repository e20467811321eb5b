// Package storage holds helpers shared by the blob store backends.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// Mirror writes every object to a primary store and copies it to a
// secondary one. The primary decides success; secondary failures are logged.
type Mirror struct {
	primary   harvest.BlobStore
	secondary harvest.BlobStore
	logger    *zap.Logger
}

// NewMirror pairs primary with secondary.
func NewMirror(primary, secondary harvest.BlobStore, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{primary: primary, secondary: secondary, logger: logger}
}

// PutObject writes to the primary, then the secondary. The primary location
// is returned.
func (m *Mirror) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	location, err := m.primary.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	mirrored, err := m.secondary.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		m.logger.Warn("mirror write failed", zap.String("path", path), zap.Error(err))
		return location, nil
	}
	m.logger.Debug("mirrored object", zap.String("path", path), zap.String("location", mirrored))
	return location, nil
}

// DeleteObject removes path from both stores.
func (m *Mirror) DeleteObject(ctx context.Context, path string) error {
	if err := m.primary.DeleteObject(ctx, path); err != nil {
		return err
	}
	if err := m.secondary.DeleteObject(ctx, path); err != nil {
		m.logger.Warn("mirror delete failed", zap.String("path", path), zap.Error(err))
	}
	return nil
}
