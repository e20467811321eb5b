package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const maxRobotsBytes = 1 << 20

// Robots answers robots.txt questions per host and caches each host's rules
// for the life of the Robots value.
type Robots struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	cache     sync.Map
}

// NewRobots builds a Robots that fetches through transport.
func NewRobots(transport http.RoundTripper, userAgent string, logger *zap.Logger) *Robots {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return &Robots{
		client:    &http.Client{Transport: transport, Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed reports whether target may be crawled. An unreachable robots.txt
// allows everything.
func (r *Robots) Allowed(ctx context.Context, target *url.URL) bool {
	data, err := r.load(ctx, target)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing access", zap.String("host", target.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	return group.Test(target.Path)
}

func (r *Robots) load(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	robotsURL := url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	r.cache.Store(key, data)
	return data, nil
}

// Blocklist matches hosts against exact names and "*.suffix" or ".suffix"
// wildcards.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist parses patterns. It returns nil when no pattern is usable; a
// nil Blocklist blocks nothing.
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.ToLower(strings.TrimSpace(raw))
		value = strings.TrimPrefix(value, "*")
		switch {
		case value == "" || value == ".":
			continue
		case strings.HasPrefix(value, "."):
			b.addSuffix(value[1:])
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches a pattern.
func (b *Blocklist) Blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
