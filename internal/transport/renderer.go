package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// challengeMarkers are the body signatures that indicate an interstitial
// challenge page is still being shown after navigation.
var challengeMarkers = []string{"captcha", "datadome", "cloudflare", "challenge"}

// RenderConfig configures the Chrome rendering session.
type RenderConfig struct {
	// Headless off lets a human solve a challenge in the visible window.
	Headless bool
	// NavigateTimeout bounds a single page render (default 90s).
	NavigateTimeout time.Duration
	// ChallengeWait bounds how long to wait for a challenge page to clear
	// (default 60s). Polled in steps with light scrolling in between.
	ChallengeWait time.Duration
	UserAgent     string
	Logger        *slog.Logger
}

// ChromeRenderer renders pages in a shared Chrome session. One renderer is
// owned by one scrape invocation and must be closed when it completes,
// including on abort paths.
type ChromeRenderer struct {
	cfg         RenderConfig
	allocCtx    context.Context
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelBrows context.CancelFunc
	logger      *slog.Logger
}

// ensure ChromeRenderer satisfies the fetcher's Renderer contract
var _ Renderer = (*ChromeRenderer)(nil)

// NewChromeRenderer starts the browser session.
func NewChromeRenderer(cfg RenderConfig) (*ChromeRenderer, error) {
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 90 * time.Second
	}
	if cfg.ChallengeWait <= 0 {
		cfg.ChallengeWait = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrows := chromedp.NewContext(allocCtx)

	// Eagerly start the browser so an unavailable Chrome binary surfaces as
	// an initialization error instead of failing the first page mid-scrape.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrows()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &ChromeRenderer{
		cfg:         cfg,
		allocCtx:    allocCtx,
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelBrows: cancelBrows,
		logger:      cfg.Logger,
	}, nil
}

// Render navigates to targetURL in a fresh tab, waits out any challenge
// page, scrolls to trigger lazy loading, and returns the settled HTML.
func (r *ChromeRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.cfg.NavigateTimeout)
	defer cancelTimeout()

	// Honor the caller's cancellation alongside the tab timeout.
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-tabCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if hasChallengeMarkers(html) {
		r.logger.Info("challenge page detected, waiting for it to clear",
			"url", targetURL, "max_wait", r.cfg.ChallengeWait)
		html, err = r.waitOutChallenge(tabCtx, html)
		if err != nil {
			return "", err
		}
	}

	// Scroll in stages to trigger lazy-loaded review cards.
	err = chromedp.Run(tabCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight/2);`, nil),
		chromedp.Sleep(1*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("settle page: %w", err)
	}

	return html, nil
}

// waitOutChallenge polls until the challenge markers disappear or the wait
// budget runs out. In a non-headless session this is the window for a human
// to solve the CAPTCHA. The page HTML as last seen is returned either way;
// the block detectors downstream decide whether it is still a challenge.
func (r *ChromeRenderer) waitOutChallenge(tabCtx context.Context, html string) (string, error) {
	deadline := time.Now().Add(r.cfg.ChallengeWait)
	for time.Now().Before(deadline) {
		err := chromedp.Run(tabCtx,
			chromedp.Sleep(5*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight/3);`, nil),
			chromedp.Sleep(1*time.Second),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return "", fmt.Errorf("challenge wait: %w", err)
		}
		if !hasChallengeMarkers(html) {
			r.logger.Info("challenge cleared")
			return html, nil
		}
	}
	r.logger.Warn("challenge did not clear within wait budget")
	return html, nil
}

// Close tears down the browser session.
func (r *ChromeRenderer) Close() {
	r.cancelBrows()
	r.cancelAlloc()
}

func hasChallengeMarkers(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
