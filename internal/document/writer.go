package document

import (
	"bytes"
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// ContentType of rendered documents.
const ContentType = "text/markdown; charset=utf-8"

// Writer stores rendered documents in a blob store.
type Writer struct {
	store  harvest.BlobStore
	logger *zap.Logger
}

// NewWriter wraps store.
func NewWriter(store harvest.BlobStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger}
}

// Write stores data at rel and returns its location. Failures are reported as
// *harvest.FilesystemError.
func (w *Writer) Write(ctx context.Context, rel string, data []byte) (string, error) {
	loc, err := w.store.PutObject(ctx, rel, ContentType, bytes.NewReader(data))
	if err != nil {
		return "", asFilesystemError("write", rel, err)
	}
	w.logger.Debug("document written", zap.String("path", rel), zap.String("location", loc))
	return loc, nil
}

// Remove deletes the document at rel.
func (w *Writer) Remove(ctx context.Context, rel string) error {
	if err := w.store.DeleteObject(ctx, rel); err != nil {
		return asFilesystemError("remove", rel, err)
	}
	return nil
}

func asFilesystemError(op, rel string, err error) error {
	var fsErr *harvest.FilesystemError
	if errors.As(err, &fsErr) {
		return fsErr
	}
	return &harvest.FilesystemError{Op: op, Path: rel, Err: err}
}
