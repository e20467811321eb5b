package memory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "example.com/page.md", "text/markdown", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://example.com/page.md", uri)

	payload[0] = 'C'
	got, ok := store.Get("example.com/page.md")
	require.True(t, ok)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, _ := store.Get("example.com/page.md")
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreDeleteAndCounts(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, p := range []string{"b.md", "a.md", "a.md"} {
		_, err := store.PutObject(ctx, p, "", strings.NewReader(p))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Puts())
	assert.Equal(t, []string{"a.md", "b.md"}, store.Paths())

	require.NoError(t, store.DeleteObject(ctx, "a.md"))
	_, ok := store.Get("a.md")
	assert.False(t, ok)
	assert.Equal(t, []string{"b.md"}, store.Paths())
}

func TestBlobStoreFailPuts(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	boom := errors.New("disk full")
	store.FailPuts(func(path string) error {
		if path == "bad.md" {
			return boom
		}
		return nil
	})

	_, err := store.PutObject(context.Background(), "bad.md", "", strings.NewReader("x"))
	require.ErrorIs(t, err, boom)
	_, err = store.PutObject(context.Background(), "good.md", "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"good.md"}, store.Paths())
}
