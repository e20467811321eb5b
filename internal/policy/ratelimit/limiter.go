// Package ratelimit paces calls to external services with one token bucket
// per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the pacing applied to every key.
type Config struct {
	// Interval is the minimum spacing between calls for one key. Zero disables pacing.
	Interval time.Duration
	Burst    int
	// OnDelay, when set, is told how long a Wait blocked.
	OnDelay func(key string, waited time.Duration)
}

// Limiter hands out per-key token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	onDelay  func(string, time.Duration)
}

// New builds a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		onDelay:  cfg.OnDelay,
	}
}

// Wait blocks until key may proceed or ctx ends. URL keys share a bucket per
// hostname; other keys are used verbatim.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	key = Key(key)
	start := time.Now()
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	if waited := time.Since(start); l.onDelay != nil && waited > time.Millisecond {
		l.onDelay(key, waited)
	}
	return nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Key normalizes raw to the bucket it is paced under.
func Key(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if raw == "" {
		return "unknown"
	}
	return raw
}
