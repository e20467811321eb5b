package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

type scriptedTransport struct {
	responses []response
	calls     int
	cursors   []string
}

type response struct {
	batch harvest.PageBatch
	err   error
}

func (s *scriptedTransport) Status(_ context.Context, _ harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	s.cursors = append(s.cursors, cursor)
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r.batch, r.err
}

type recordingObserver struct {
	attempts []bool
}

func (o *recordingObserver) PollAttempt(_ int, complete bool, _ error) {
	o.attempts = append(o.attempts, complete)
}

func noSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total, completed int
		want             bool
	}{
		{1, 1, true},
		{0, 0, false},
		{1, 0, false},
		{5, 1, false},
		{5, 2, true},
		{5, 5, true},
		{2, 2, true},
		{-1, 3, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Complete(tc.total, tc.completed), "total=%d completed=%d", tc.total, tc.completed)
	}
}

func TestWaitPollsUntilComplete(t *testing.T) {
	t.Parallel()

	primary := &scriptedTransport{responses: []response{
		{batch: harvest.PageBatch{Total: 0, Completed: 0, Status: "scraping"}},
		{batch: harvest.PageBatch{Total: 5, Completed: 1, Status: "scraping"}},
		{batch: harvest.PageBatch{Total: 5, Completed: 5, Status: "completed", Items: []harvest.RawEntry{{SourceURL: "u"}}}},
	}}
	var slept []time.Duration
	obs := &recordingObserver{}
	p := New(primary, nil, Config{MinDelay: time.Second}, zap.NewNop(), WithSleep(noSleep(&slept)), WithObserver(obs))

	batch, err := p.Wait(context.Background(), harvest.CrawlJob{ID: "j"})
	require.NoError(t, err)
	assert.Len(t, batch.Items, 1)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
	assert.Equal(t, []bool{false, false, true}, obs.attempts)
}

func TestSecondaryUsedWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := &scriptedTransport{responses: []response{{err: errors.New("sdk down")}}}
	secondary := &scriptedTransport{responses: []response{{batch: harvest.PageBatch{Total: 1, Completed: 1}}}}
	var slept []time.Duration
	p := New(primary, secondary, Config{}, nil, WithSleep(noSleep(&slept)))

	_, err := p.Next(context.Background(), harvest.CrawlJob{ID: "j"}, "https://api/next?skip=10")
	require.NoError(t, err)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, []string{"https://api/next?skip=10"}, secondary.cursors)
	assert.Empty(t, slept)
	assert.Equal(t, DefaultMinDelay, p.MinDelay())
}

func TestBothTransportsFailingCountsAsEmptyAttempt(t *testing.T) {
	t.Parallel()

	primary := &scriptedTransport{responses: []response{
		{err: errors.New("a")},
		{batch: harvest.PageBatch{Total: 1, Completed: 1}},
	}}
	secondary := &scriptedTransport{responses: []response{{err: errors.New("b")}}}
	var slept []time.Duration
	p := New(primary, secondary, Config{MinDelay: time.Millisecond}, nil, WithSleep(noSleep(&slept)))

	_, err := p.Wait(context.Background(), harvest.CrawlJob{ID: "j"})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Len(t, slept, 1)
}

func TestUnavailableServiceStopsPolling(t *testing.T) {
	t.Parallel()

	primary := &scriptedTransport{responses: []response{
		{err: &harvest.ServiceUnavailableError{Service: "local", Err: errors.New("start page 404")}},
		{batch: harvest.PageBatch{Total: 1, Completed: 1}},
	}}
	var slept []time.Duration
	obs := &recordingObserver{}
	p := New(primary, nil, Config{MinDelay: time.Second, MaxAttempts: 10}, nil,
		WithSleep(noSleep(&slept)), WithObserver(obs))

	_, err := p.Wait(context.Background(), harvest.CrawlJob{ID: "j"})
	var unavailable *harvest.ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	var timeout *PollTimeoutError
	assert.False(t, errors.As(err, &timeout))
	assert.Equal(t, 1, primary.calls)
	assert.Empty(t, slept)
	assert.Equal(t, []bool{false}, obs.attempts)
}

func TestMaxAttemptsBound(t *testing.T) {
	t.Parallel()

	cause := errors.New("unreachable")
	primary := &scriptedTransport{responses: []response{{err: cause}}}
	var slept []time.Duration
	p := New(primary, nil, Config{MinDelay: time.Second, MaxAttempts: 4}, nil, WithSleep(noSleep(&slept)))

	_, err := p.Wait(context.Background(), harvest.CrawlJob{ID: "j"})
	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, slept, 3)
}

func TestMaxWaitBound(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sleep := func(_ context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}
	primary := &scriptedTransport{responses: []response{{batch: harvest.PageBatch{Total: 0}}}}
	p := New(primary, nil, Config{MinDelay: 10 * time.Second, MaxWait: 35 * time.Second}, nil,
		WithSleep(sleep), WithClock(clock))

	_, err := p.Wait(context.Background(), harvest.CrawlJob{ID: "j"})
	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	assert.Equal(t, 30*time.Second, timeout.Elapsed)
	assert.Nil(t, timeout.LastErr)
	assert.Contains(t, timeout.Error(), "4 attempts")
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &scriptedTransport{responses: []response{{batch: harvest.PageBatch{}}}}
	p := New(primary, nil, Config{MinDelay: time.Hour}, nil)

	_, err := p.Wait(ctx, harvest.CrawlJob{ID: "j"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestObserverFunc(t *testing.T) {
	t.Parallel()

	var got []int
	var obs Observer = ObserverFunc(func(attempt int, complete bool, _ error) {
		if complete {
			got = append(got, attempt)
		}
	})
	obs.PollAttempt(1, false, nil)
	obs.PollAttempt(2, true, nil)
	assert.Equal(t, []int{2}, got)
}
