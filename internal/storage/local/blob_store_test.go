// Package local_test tests the filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "out", "nested")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.True(t, filepath.IsAbs(store.BaseDir()))
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutAndDeleteObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "example.com/docs/intro.md", "text/markdown", strings.NewReader("first"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, "example.com/docs/intro.md"))

	_, err = store.PutObject(ctx, "example.com/docs/intro.md", "text/markdown", strings.NewReader("second"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "example.com", "docs", "intro.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "example.com", "docs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, store.DeleteObject(ctx, "example.com/docs/intro.md"))
	assert.NoFileExists(t, filepath.Join(dir, "example.com", "docs", "intro.md"))
	require.NoError(t, store.DeleteObject(ctx, "example.com/docs/intro.md"))
}

func TestRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.md", "", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	assert.Error(t, err)
	assert.Error(t, store.DeleteObject(context.Background(), "../../etc/passwd"))
}
