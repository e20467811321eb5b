package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtOffsets(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	s := New(start, 50, 3)

	tests := []struct {
		index int
		days  int
	}{
		{0, 0}, {49, 0}, {50, 1}, {51, 1}, {52, 1}, {53, 2}, {55, 2}, {56, 3},
	}
	for _, tc := range tests {
		assert.Equal(t, start.AddDate(0, 0, tc.days), s.At(tc.index), "index %d", tc.index)
	}
	assert.Equal(t, "2024-03-02 09:30:00", s.Format(50))
}

func TestAtMonotonic(t *testing.T) {
	t.Parallel()

	s := New(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), 0, 0)
	prev := s.At(0)
	for i := 1; i < 500; i++ {
		cur := s.At(i)
		require.False(t, cur.Before(prev), "index %d went backwards", i)
		prev = cur
	}
	assert.Equal(t, s.Start(), s.At(DefaultThreshold-1))
}
