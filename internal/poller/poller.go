// Package poller waits for crawl status pages to become complete.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

// DefaultMinDelay is the pause between status attempts.
const DefaultMinDelay = 3 * time.Second

// Complete is the completion predicate for a status page: a single-page job is
// done once its page is done, a larger job once more than one page is done.
// A total below one keeps the caller waiting.
func Complete(total, completed int) bool {
	return (total == 1 && completed == 1) || (total > 1 && completed > 1)
}

// Config bounds polling. MaxAttempts and MaxWait both zero means unbounded.
type Config struct {
	MinDelay    time.Duration
	MaxAttempts int
	MaxWait     time.Duration
}

// Observer is told about every attempt.
type Observer interface {
	PollAttempt(attempt int, complete bool, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(attempt int, complete bool, err error)

// PollAttempt calls f.
func (f ObserverFunc) PollAttempt(attempt int, complete bool, err error) { f(attempt, complete, err) }

// PollTimeoutError is returned when the bounds are exhausted before a complete page arrives.
type PollTimeoutError struct {
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *PollTimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("poll gave up after %d attempts in %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastErr)
	}
	return fmt.Sprintf("poll gave up after %d attempts in %s", e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *PollTimeoutError) Unwrap() error {
	return e.LastErr
}

// Poller queries a primary transport, then a secondary one, until a complete page arrives.
type Poller struct {
	primary   harvest.StatusTransport
	secondary harvest.StatusTransport
	cfg       Config
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// Option customizes a Poller.
type Option func(*Poller)

// WithObserver reports attempts to o.
func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observer = o }
}

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New builds a Poller. secondary may be nil.
func New(primary, secondary harvest.StatusTransport, cfg Config, logger *zap.Logger, opts ...Option) *Poller {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinDelay returns the configured delay between attempts.
func (p *Poller) MinDelay() time.Duration { return p.cfg.MinDelay }

// Wait polls the first status page of job until it is complete. A
// *harvest.ServiceUnavailableError from a transport ends polling at once.
func (p *Poller) Wait(ctx context.Context, job harvest.CrawlJob) (harvest.PageBatch, error) {
	return p.poll(ctx, job, "")
}

// Next polls the page behind cursor until it is complete.
func (p *Poller) Next(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	return p.poll(ctx, job, cursor)
}

func (p *Poller) poll(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	start := p.now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		batch, err := p.attempt(ctx, job, cursor)
		done := err == nil && Complete(batch.Total, batch.Completed)
		if p.observer != nil {
			p.observer.PollAttempt(attempt, done, err)
		}
		if done {
			return batch, nil
		}
		var unavailable *harvest.ServiceUnavailableError
		if errors.As(err, &unavailable) {
			return harvest.PageBatch{}, err
		}
		if err != nil {
			lastErr = err
			p.logger.Warn("status attempt failed",
				zap.String("job_id", job.ID),
				zap.String("cursor", cursor),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else {
			p.logger.Debug("crawl not complete yet",
				zap.String("job_id", job.ID),
				zap.String("status", batch.Status),
				zap.Int("total", batch.Total),
				zap.Int("completed", batch.Completed),
				zap.Int("attempt", attempt),
			)
		}

		elapsed := p.now().Sub(start)
		if p.exhausted(attempt, elapsed) {
			return harvest.PageBatch{}, &PollTimeoutError{Attempts: attempt, Elapsed: elapsed, LastErr: lastErr}
		}
		if err := p.sleep(ctx, p.cfg.MinDelay); err != nil {
			return harvest.PageBatch{}, fmt.Errorf("poll interrupted: %w", err)
		}
	}
}

func (p *Poller) exhausted(attempt int, elapsed time.Duration) bool {
	if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
		return true
	}
	return p.cfg.MaxWait > 0 && elapsed+p.cfg.MinDelay > p.cfg.MaxWait
}

func (p *Poller) attempt(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error) {
	batch, err := p.primary.Status(ctx, job, cursor)
	if err == nil {
		return batch, nil
	}
	if p.secondary == nil || ctx.Err() != nil {
		return harvest.PageBatch{}, err
	}
	p.logger.Debug("primary status transport failed", zap.String("job_id", job.ID), zap.Error(err))
	batch, secErr := p.secondary.Status(ctx, job, cursor)
	if secErr != nil {
		return harvest.PageBatch{}, errors.Join(err, secErr)
	}
	return batch, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
