package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsGate checks robots.txt before the paginator touches a listing.
// Only consulted in polite mode; review sites that serve CAPTCHAs rarely
// reward politeness, but operators scraping their own listings want it.
type RobotsGate struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsGate creates a gate sharing the session's fetcher.
func NewRobotsGate(fetcher *Fetcher, logger *slog.Logger) *RobotsGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsGate{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether the URL is allowed for the given User-Agent.
// Fetch or parse failures fail open: an unreadable robots.txt never stops a
// scrape on its own.
func (g *RobotsGate) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := g.getOrFetch(ctx, host)
	if err != nil {
		g.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	return data.FindGroup(userAgent).Test(u.Path), nil
}

func (g *RobotsGate) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	g.mu.RLock()
	data, exists := g.cache[host]
	g.mu.RUnlock()
	if exists {
		return data, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if data, exists = g.cache[host]; exists {
		return data, nil
	}

	res := g.fetcher.Fetch(ctx, host+"/robots.txt", false)
	if res.Status == StatusNetworkError {
		g.cache[host] = nil
		return nil, fmt.Errorf("fetch error: %s", res.Err)
	}
	if res.StatusCode >= 400 || res.RawHTML == "" {
		g.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes([]byte(res.RawHTML))
	if err != nil {
		g.cache[host] = nil
		return nil, fmt.Errorf("parse error: %w", err)
	}

	g.cache[host] = parsed
	return parsed, nil
}
