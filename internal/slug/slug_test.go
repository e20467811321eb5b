package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		max   int
		want  string
	}{
		{name: "simple", title: "Hello World", max: 30, want: "hello-world.html"},
		{name: "punctuation", title: "  Go: 1.25 -- Released!  ", max: 30, want: "go-125-released.html"},
		{name: "empty", title: "", max: 30, want: "index.html"},
		{name: "only symbols", title: "日本語 ???", max: 30, want: "index.html"},
		{name: "truncated", title: "a very long title that keeps going and going", max: 30, want: "a-very-long-title-that-ke.html"},
		{name: "trailing hyphen trimmed", title: "abcd efgh", max: 10, want: "abcd.html"},
		{name: "suffix exceeds budget", title: "anything", max: 4, want: "inde"},
		{name: "default budget", title: "x", max: 0, want: "x.html"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Base(tc.title, tc.max)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBaseStaysWithinBudget(t *testing.T) {
	t.Parallel()

	titles := []string{
		strings.Repeat("word ", 40),
		"ümlaut and accents éé",
		"MiXeD CaSe 123 456 789 000 111 222",
	}
	for _, title := range titles {
		got := Base(title, DefaultMaxBytes)
		assert.LessOrEqual(t, len(got), DefaultMaxBytes, title)
		assert.True(t, strings.HasSuffix(got, Suffix))
		assert.False(t, strings.HasPrefix(got, "-"))
	}
}

func TestAllocateCollisions(t *testing.T) {
	t.Parallel()

	a := NewAllocator(NewSet([]string{"news.html"}), DefaultMaxBytes)
	assert.Equal(t, "news-2.html", a.Allocate("News"))
	assert.Equal(t, "news-3.html", a.Allocate("news"))
	assert.Equal(t, "other.html", a.Allocate("Other"))
	assert.Equal(t, 4, a.Used().Len())
}

func TestAllocateUniqueAcrossMany(t *testing.T) {
	t.Parallel()

	a := NewAllocator(nil, DefaultMaxBytes)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		got := a.Allocate("same title")
		require.False(t, seen[got], "duplicate slug %s", got)
		seen[got] = true
	}
}

func TestSetRemoveAndSorted(t *testing.T) {
	t.Parallel()

	s := NewSet([]string{"b.html", "a.html"})
	s.Add("c.html")
	s.Remove("b.html")
	assert.Equal(t, []string{"a.html", "c.html"}, s.Sorted())
	assert.False(t, s.Contains("b.html"))
}
