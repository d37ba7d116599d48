// Package proxy manages a rotating pool of egress proxies with basic health
// tracking. Proxies that keep failing are benched for a cooldown period.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// entry is a single proxy endpoint with health counters.
type entry struct {
	url           *url.URL
	failures      int
	disabled      bool
	disabledUntil time.Time
}

// Pool manages a collection of proxies.
type Pool struct {
	mu          sync.Mutex
	proxies     []*entry
	current     int
	maxFailures int
	cooldown    time.Duration
}

// Config defines settings for the proxy pool.
type Config struct {
	// MaxFailures before benching a proxy temporarily.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
}

// NewPool creates a new proxy pool with defaults for zero config values.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Add parses and registers a proxy URL.
func (p *Pool) Add(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy url %q: missing scheme or host", raw)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.proxies = append(p.proxies, &entry{url: u})
	return nil
}

// LoadFile reads proxies from a file, one URL per line. Empty lines and lines
// starting with '#' are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.Add(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Size returns the number of registered proxies, healthy or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the next healthy proxy URL in round-robin order, reviving
// benched proxies whose cooldown expired. Returns nil when none are healthy.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	now := time.Now()
	start := p.current
	for {
		e := p.proxies[p.current]
		p.current = (p.current + 1) % len(p.proxies)

		if e.disabled && now.After(e.disabledUntil) {
			e.disabled = false
			e.failures = 0
		}
		if !e.disabled {
			return e.url
		}
		if p.current == start {
			return nil
		}
	}
}

// MarkSuccess records a successful request through the given proxy.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		if e.failures > 0 {
			e.failures--
		}
	})
}

// MarkFailure records a failure; the proxy is benched once failures reach the
// configured maximum.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.disabled = true
			e.disabledUntil = time.Now().Add(p.cooldown)
		}
	})
}

func (p *Pool) mark(proxyURL *url.URL, fn func(*entry)) error {
	if proxyURL == nil {
		return errors.New("proxy url cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := proxyURL.String()
	for _, e := range p.proxies {
		if e.url.String() == target {
			fn(e)
			return nil
		}
	}
	return errors.New("proxy not found in pool")
}
