package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const defaultNavigationTimeout = 45 * time.Second

// Renderer produces the post-JavaScript DOM of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// BrowserConfig controls the headless renderer.
type BrowserConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle is how long to wait after the body is ready before reading the DOM.
	Settle time.Duration
}

// Browser renders pages with headless Chrome through chromedp.
type Browser struct {
	cfg         BrowserConfig
	slots       chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewBrowser prepares an exec allocator. Chrome is started lazily on the
// first Render.
func NewBrowser(cfg BrowserConfig) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{cfg: cfg, slots: slots, allocator: allocCtx, allocCancel: cancel}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.allocCancel()
}

// Render navigates to url and returns the outer HTML of the document.
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()

	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	// Propagate the caller's cancellation into the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		b.setup(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle()),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (b *Browser) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (b *Browser) settle() time.Duration {
	if b.cfg.Settle > 0 {
		return b.cfg.Settle
	}
	return 500 * time.Millisecond
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.slots == nil {
		return nil
	}
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for render slot: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.slots == nil {
		return
	}
	select {
	case <-b.slots:
	default:
	}
}
