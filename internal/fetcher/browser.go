package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/keibastalk/internal/config"
	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// BrowserFetcher renders JavaScript-populated listing pages in a headless
// Chromium driven by Rod. The browser is launched on first use.
type BrowserFetcher struct {
	cfg       *config.BrowserConfig
	userAgent string
	throttle  *Throttle
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a browser fetcher. No process is started until
// the first call to Links.
func NewBrowserFetcher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		cfg:       &cfg.Browser,
		userAgent: cfg.Fetcher.UserAgent,
		throttle:  NewThrottle(cfg.Fetcher.Delay),
		metrics:   metrics,
		logger:    logger.With("component", "browser_fetcher"),
	}
}

// connect launches Chromium and connects to it once.
func (bf *BrowserFetcher) connect() (*rod.Browser, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.browser != nil {
		return bf.browser, nil
	}

	l := launcher.New().
		Headless(bf.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if bf.cfg.Bin != "" {
		l = l.Bin(bf.cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.logger.Info("browser ready", "headless", bf.cfg.Headless, "stealth", bf.cfg.Stealth)
	return browser, nil
}

func (bf *BrowserFetcher) newPage(browser *rod.Browser) (*rod.Page, error) {
	if bf.cfg.Stealth {
		page, err := stealth.Page(browser)
		if err != nil {
			return nil, fmt.Errorf("stealth page: %w", err)
		}
		return page, nil
	}
	return browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// Links navigates to rawURL, waits for at least one element matching
// itemSelector and returns the resolved href of the first anchor inside
// each matching element, in document order. Elements without an anchor
// are skipped.
func (bf *BrowserFetcher) Links(ctx context.Context, rawURL, itemSelector string) ([]string, error) {
	defer bf.throttle.Wait(ctx)

	links, err := bf.links(ctx, rawURL, itemSelector)
	if err != nil {
		bf.metrics.FetchFailures.Add(1)
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	bf.metrics.PagesFetched.Add(1)
	bf.logger.Debug("listing rendered", "url", rawURL, "links", len(links))
	return links, nil
}

func (bf *BrowserFetcher) links(ctx context.Context, rawURL, itemSelector string) ([]string, error) {
	browser, err := bf.connect()
	if err != nil {
		return nil, err
	}

	page, err := bf.newPage(browser)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	page = page.Context(ctx)
	if bf.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: bf.userAgent}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	timeout := bf.cfg.NavigationTimeout
	if err := page.Timeout(timeout).Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	// Wait for the listing to be populated before collecting.
	if _, err := page.Timeout(timeout).Element(itemSelector); err != nil {
		return nil, fmt.Errorf("wait for %q: %w", itemSelector, err)
	}

	items, err := page.Elements(itemSelector)
	if err != nil {
		return nil, fmt.Errorf("select %q: %w", itemSelector, err)
	}

	var hrefs []string
	for _, item := range items {
		anchors, err := item.Elements("a")
		if err != nil || len(anchors) == 0 {
			continue
		}
		href, err := anchors.First().Property("href")
		if err != nil {
			continue
		}
		if s := href.Str(); s != "" {
			hrefs = append(hrefs, s)
		}
	}
	return hrefs, nil
}

// Close shuts down the browser if it was started.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.browser == nil {
		return nil
	}
	err := bf.browser.Close()
	bf.browser = nil
	return err
}
