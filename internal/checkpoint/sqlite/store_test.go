package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/checkpoint/sqlite"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "harvest.db")
	s, err := sqlite.Open(ctx, path, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	m := checkpoint.Manifest{
		PagesProcessed: 1,
		Files:          []string{"example.com/a.md"},
		CategoryPool:   []string{"Cloud"},
		PendingCursor:  checkpoint.StringPtr("https://api/next"),
	}
	require.NoError(t, s.Save(ctx, m))
	m.Files = append(m.Files, "example.com/b.md")
	m.PagesProcessed = 2
	m.PendingCursor = nil
	m.Done = true
	require.NoError(t, s.Save(ctx, m))

	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.PagesProcessed)
	assert.Nil(t, got.PendingCursor)
	assert.True(t, got.Done)
	assert.Equal(t, []string{"Cloud"}, got.CategoryPool)
}

func TestSQLiteStoreKeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "harvest.db")
	a, err := sqlite.Open(ctx, path, "site-a", nil)
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx, checkpoint.Manifest{StartURL: "https://a"}))
	require.NoError(t, a.Close())

	b, err := sqlite.Open(ctx, path, "site-b", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
