// Package transport fetches review listing pages, either statically or
// through a JavaScript-capable renderer, with retry, backoff, and bot-block
// classification. Components here hold no per-call mutable state beyond the
// session page counter; one Fetcher serves exactly one scrape invocation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/FranksOps/critic/internal/bypass"
	"github.com/FranksOps/critic/internal/fingerprint"
	"github.com/FranksOps/critic/internal/metrics"
	"github.com/FranksOps/critic/internal/storage"
	"github.com/FranksOps/critic/pkg/httpclient"
	"github.com/FranksOps/critic/pkg/proxy"
	"github.com/FranksOps/critic/pkg/useragent"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Status classifies the outcome of one Fetch call.
type Status string

const (
	StatusOK           Status = "ok"
	StatusBlocked      Status = "blocked"
	StatusNetworkError Status = "network_error"
	StatusEmpty        Status = "empty"
)

// Result is the outcome of one Fetch call. Document is non-nil only when the
// body parsed as HTML; it is consumed immediately by the adapter and not
// retained across pages.
type Result struct {
	Status      Status
	StatusCode  int
	Document    *goquery.Document
	RawHTML     string
	BlockVendor string
	Attempts    int
	Err         string // last transport-level error, for logs and the archive
}

// Renderer is a JavaScript-capable fetch path. Render blocks until the page
// content settles or the challenge wait expires.
type Renderer interface {
	Render(ctx context.Context, targetURL string) (html string, err error)
}

// reviewMarkers is the markup a review listing page is expected to carry.
// A 200 response matching none of these is classified StatusEmpty.
var reviewMarkers = []string{
	"[data-review-id]",
	"[itemprop='review']",
	"article[class*='review']",
	"div[class*='review']",
	"section[class*='review']",
	"li[class*='review']",
	"script[type='application/ld+json']",
}

// Config configures a Fetcher for one scrape invocation.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	Fingerprint  fingerprint.Profile
	UAPool       *useragent.Pool
	ProxyPool    *proxy.Pool

	// MaxAttempts caps attempts per Fetch call (default 3). Backoff between
	// attempts starts at BackoffBase and doubles, capped at BackoffCap.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Renderer enables the JavaScript-capable path; on renderer failure the
	// call degrades to a static fetch instead of failing.
	Renderer Renderer

	// Archive, if set, receives a FetchRecord per attempt. Write failures are
	// logged and ignored; the archive never affects control flow.
	Archive storage.Backend

	// Company and Source label archive records and metrics.
	Company string
	Source  string

	Detectors []bypass.Detector
	Logger    *slog.Logger
}

// Fetcher performs page fetches for a single scrape session.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
	page   atomic.Int64 // pages fetched this session, for archive records
}

// NewFetcher initializes a Fetcher. A single client is held across requests
// so the cookie jar, when configured, persists for the session.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 8 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Per-request proxy rotation: the proxy URL travels in the request
	// context so the shared transport stays immutable.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	rt, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    rt,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{cfg: cfg, client: client, logger: cfg.Logger}, nil
}

// Fetch retrieves targetURL and classifies the outcome. With render set and a
// Renderer configured, the JavaScript path is tried first and degrades to a
// static fetch on renderer failure. Static fetches retry transient failures
// up to MaxAttempts with exponential backoff; a blocked classification stops
// retrying immediately.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, render bool) *Result {
	page := int(f.page.Add(1))

	if err := validateURL(targetURL); err != nil {
		return &Result{Status: StatusNetworkError, Err: err.Error()}
	}

	if render && f.cfg.Renderer != nil {
		res := f.fetchRendered(ctx, targetURL, page)
		if res != nil {
			return res
		}
		f.logger.Warn("renderer failed, degrading to static fetch", "url", targetURL)
	}

	var last *Result
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		res, retryable := f.fetchStatic(ctx, targetURL, page, attempt)
		res.Attempts = attempt
		last = res

		if !retryable {
			return res
		}
		if attempt == f.cfg.MaxAttempts {
			break
		}

		delay := f.backoff(attempt)
		f.logger.Debug("transient fetch failure, backing off",
			"url", targetURL, "attempt", attempt, "delay", delay, "err", res.Err)
		select {
		case <-ctx.Done():
			last.Err = ctx.Err().Error()
			return last
		case <-time.After(delay):
		}
	}

	last.Status = StatusNetworkError
	return last
}

// backoff returns the delay before the given attempt's retry, doubling each
// time and capped.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.cfg.BackoffBase << (attempt - 1)
	if d > f.cfg.BackoffCap {
		d = f.cfg.BackoffCap
	}
	return d
}

// fetchRendered runs the renderer path. A nil return means the renderer
// itself failed and the caller should degrade to a static fetch.
func (f *Fetcher) fetchRendered(ctx context.Context, targetURL string, page int) *Result {
	start := time.Now()
	html, err := f.cfg.Renderer.Render(ctx, targetURL)
	duration := time.Since(start)

	if err != nil {
		f.logger.Warn("render error", "url", targetURL, "err", err)
		f.archive(ctx, &storage.FetchRecord{
			ID:        uuid.New().String(),
			URL:       targetURL,
			Company:   f.cfg.Company,
			Source:    f.cfg.Source,
			Page:      page,
			Attempt:   1,
			Rendered:  true,
			Status:    string(StatusNetworkError),
			Duration:  duration,
			CreatedAt: start.UTC(),
			Error:     err.Error(),
		})
		return nil
	}

	res := f.classify(http.StatusOK, http.Header{}, []byte(html))
	res.Attempts = 1
	metrics.RecordFetch(f.cfg.Source, http.StatusOK, true, duration)
	f.archive(ctx, &storage.FetchRecord{
		ID:          uuid.New().String(),
		URL:         targetURL,
		Company:     f.cfg.Company,
		Source:      f.cfg.Source,
		Page:        page,
		Attempt:     1,
		Rendered:    true,
		StatusCode:  res.StatusCode,
		Status:      string(res.Status),
		BlockVendor: res.BlockVendor,
		Body:        []byte(html),
		Duration:    duration,
		CreatedAt:   start.UTC(),
	})
	if res.Status == StatusBlocked {
		metrics.BlockedTotal.WithLabelValues(f.cfg.Source, res.BlockVendor).Inc()
	}
	return res
}

// fetchStatic performs one plain HTTP attempt. The second return value
// reports whether the failure is worth retrying.
func (f *Fetcher) fetchStatic(ctx context.Context, targetURL string, page, attempt int) (*Result, bool) {
	start := time.Now()

	rec := &storage.FetchRecord{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Company:   f.cfg.Company,
		Source:    f.cfg.Source,
		Page:      page,
		Attempt:   attempt,
		CreatedAt: start.UTC(),
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		activeProxy = f.cfg.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		rec.Status = string(StatusNetworkError)
		rec.Error = err.Error()
		rec.Duration = time.Since(start)
		f.archive(ctx, rec)
		return &Result{Status: StatusNetworkError, Err: err.Error()}, false
	}

	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.cfg.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
		}
		rec.Status = string(StatusNetworkError)
		rec.Error = err.Error()
		rec.Duration = time.Since(start)
		f.archive(ctx, rec)
		metrics.RecordFetch(f.cfg.Source, 0, false, rec.Duration)
		return &Result{Status: StatusNetworkError, Err: err.Error()}, true
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	body, readErr := io.ReadAll(resp.Body)
	duration := time.Since(start)
	metrics.RecordFetch(f.cfg.Source, resp.StatusCode, false, duration)

	res := f.classify(resp.StatusCode, resp.Header, body)

	rec.StatusCode = resp.StatusCode
	rec.Status = string(res.Status)
	rec.BlockVendor = res.BlockVendor
	rec.Headers = resp.Header
	rec.Body = body
	rec.Duration = duration
	if readErr != nil {
		rec.Error = readErr.Error()
	}
	f.archive(ctx, rec)

	if res.Status == StatusBlocked {
		metrics.BlockedTotal.WithLabelValues(f.cfg.Source, res.BlockVendor).Inc()
		return res, false
	}

	if retryableStatus(resp.StatusCode) {
		res.Status = StatusNetworkError
		res.Err = fmt.Sprintf("transient status %d", resp.StatusCode)
		return res, true
	}

	return res, false
}

// classify turns a raw response into a Result. Block detection runs before
// anything else: a ban page must not be mistaken for an empty listing.
func (f *Fetcher) classify(statusCode int, header http.Header, body []byte) *Result {
	res := &Result{StatusCode: statusCode}

	if detected, vendor := bypass.Detect(statusCode, header, body, f.cfg.Detectors); detected {
		res.Status = StatusBlocked
		res.BlockVendor = vendor
		return res
	}
	if statusCode == http.StatusForbidden {
		res.Status = StatusBlocked
		res.BlockVendor = "Unknown"
		return res
	}
	if statusCode == http.StatusNotFound {
		// Wrong slug guess from a best-effort company name. Not an error.
		res.Status = StatusEmpty
		return res
	}
	if statusCode >= 400 {
		res.Status = StatusNetworkError
		res.Err = fmt.Sprintf("status %d", statusCode)
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		res.Status = StatusEmpty
		res.Err = err.Error()
		return res
	}

	res.Document = doc
	res.RawHTML = string(body)

	for _, marker := range reviewMarkers {
		if doc.Find(marker).Length() > 0 {
			res.Status = StatusOK
			return res
		}
	}
	res.Status = StatusEmpty
	return res
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("url must be absolute http(s)")
	}
	return nil
}

// archive persists the record and swallows failures.
func (f *Fetcher) archive(ctx context.Context, rec *storage.FetchRecord) {
	if f.cfg.Archive == nil {
		return
	}
	if err := f.cfg.Archive.Save(ctx, rec); err != nil {
		f.logger.Debug("archive write failed", "url", rec.URL, "err", err)
	}
}
