// Package pipeline walks a company's review listing page by page, filters
// the parsed records by date window, and decides between live results and
// synthetic fallback data.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/FranksOps/critic/internal/adapter"
	"github.com/FranksOps/critic/internal/metrics"
	"github.com/FranksOps/critic/internal/review"
	"github.com/FranksOps/critic/internal/sample"
	"github.com/FranksOps/critic/internal/transport"
	"github.com/FranksOps/critic/pkg/pacing"
)

// Fetcher is the transport dependency, narrowed for mocking.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, render bool) *transport.Result
}

// RobotsChecker gates fetches in polite mode.
type RobotsChecker interface {
	IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error)
}

// DebugSink receives the first page's raw HTML. Failures are swallowed; the
// dump is diagnostics only.
type DebugSink interface {
	DumpHTML(company string, page int, html string) error
}

// Outcome is the pipeline's terminal result: either all records are live or
// all are synthetic, never a mixture.
type Outcome interface {
	Records() []review.Review
	IsFallback() bool
}

// Live is a result set extracted from the target site.
type Live struct {
	Reviews []review.Review
	Pages   int
}

func (l Live) Records() []review.Review { return l.Reviews }
func (Live) IsFallback() bool           { return false }

// Fallback is a synthetic result set, with the reason live extraction was
// unusable.
type Fallback struct {
	Reviews []review.Review
	Reason  string // "blocked", "empty", "network_error", "no_reviews_in_range"
}

func (f Fallback) Records() []review.Review { return f.Reviews }
func (Fallback) IsFallback() bool           { return true }

// Config tunes one pipeline invocation.
type Config struct {
	// MaxPages bounds pagination against misbehaving next-page links
	// (default 100).
	MaxPages int

	// StopBeforeRange stops paginating once a parsed review predates the
	// range start. Off by default: it assumes listings are sorted newest
	// first, which not every view guarantees.
	StopBeforeRange bool

	// FallbackCount is the synthetic record count when falling back
	// (default sample.DefaultCount).
	FallbackCount int

	// Render asks the transport for the JavaScript path on every page.
	Render bool

	// Pacer, if set, spaces out successive page fetches.
	Pacer *pacing.Pacer

	// Robots, if set, is consulted for the listing URL before any page is
	// fetched; a disallow aborts to fallback.
	Robots    RobotsChecker
	UserAgent string

	// Debug, if set, receives the first fetched page's raw HTML.
	Debug DebugSink

	Logger *slog.Logger
}

// Pipeline runs one company/source scrape.
type Pipeline struct {
	fetcher Fetcher
	adapter adapter.Adapter
	cfg     Config
	logger  *slog.Logger
}

// New assembles a pipeline. The fetcher and adapter are stateless per call;
// session-scoped resources (browser, archive) live inside the fetcher and
// are owned by the caller.
func New(fetcher Fetcher, adp adapter.Adapter, cfg Config) *Pipeline {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.FallbackCount <= 0 {
		cfg.FallbackCount = sample.DefaultCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, adapter: adp, cfg: cfg, logger: cfg.Logger}
}

// session accumulates state for one invocation and is discarded with it.
type session struct {
	company     string
	collected   []review.Review
	currentURL  string
	page        int
	usablePages int
	abortReason string
}

// Run walks the listing and returns the terminal outcome. The error return
// is reserved for context cancellation; "no reviews" and "blocked" are
// absorbed into the fallback path.
func (p *Pipeline) Run(ctx context.Context, company string, dr review.DateRange) (Outcome, error) {
	src := p.adapter.Source()
	s := &session{company: company, currentURL: p.adapter.ResolveCompanyURL(company)}

	p.logger.Info("starting scrape",
		"company", company, "source", src, "url", s.currentURL,
		"start", dr.Start.Format("2006-01-02"), "end", dr.End.Format("2006-01-02"))

	if p.cfg.Robots != nil {
		allowed, err := p.cfg.Robots.IsAllowed(ctx, s.currentURL, p.cfg.UserAgent)
		if err == nil && !allowed {
			p.logger.Warn("listing disallowed by robots.txt, using fallback", "url", s.currentURL)
			return p.fallback(company, src, dr, "blocked"), nil
		}
	}

	if err := p.paginate(ctx, s, dr); err != nil {
		return nil, err
	}

	inRange := review.FilterInRange(s.collected, dr)
	p.logger.Info("scrape finished",
		"pages", s.page, "parsed", len(s.collected), "in_range", len(inRange))

	if s.abortReason != "" && s.usablePages == 0 {
		return p.fallback(company, src, dr, s.abortReason), nil
	}
	if len(inRange) == 0 {
		return p.fallback(company, src, dr, "no_reviews_in_range"), nil
	}
	return Live{Reviews: inRange, Pages: s.page}, nil
}

// paginate drives the fetch-parse loop until the adapter runs out of pages,
// an abort condition fires, or the page ceiling is hit.
func (p *Pipeline) paginate(ctx context.Context, s *session, dr review.DateRange) error {
	for s.currentURL != "" && s.page < p.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.page > 0 && p.cfg.Pacer != nil {
			if err := p.cfg.Pacer.Wait(ctx); err != nil {
				return err
			}
		}
		s.page++

		p.logger.Debug("fetching page", "page", s.page, "url", s.currentURL)
		res := p.fetcher.Fetch(ctx, s.currentURL, p.cfg.Render)

		if s.page == 1 && p.cfg.Debug != nil && res.RawHTML != "" {
			if err := p.cfg.Debug.DumpHTML(s.company, s.page, res.RawHTML); err != nil {
				p.logger.Debug("debug dump failed", "err", err)
			}
		}

		switch res.Status {
		case transport.StatusBlocked:
			p.logger.Warn("fetch blocked", "page", s.page, "vendor", res.BlockVendor)
			s.abortReason = "blocked"
			return nil
		case transport.StatusNetworkError:
			p.logger.Warn("fetch failed after retries", "page", s.page, "err", res.Err)
			s.abortReason = "network_error"
			return nil
		case transport.StatusEmpty:
			if res.Document == nil || !p.parsePage(s, res) {
				p.logger.Info("no review markup on page", "page", s.page)
				s.abortReason = "empty"
				return nil
			}
		default:
			if !p.parsePage(s, res) {
				s.abortReason = "empty"
				return nil
			}
		}

		if p.cfg.StopBeforeRange && p.pastRangeStart(s, dr) {
			p.logger.Info("reached reviews older than range start, stopping early")
			return nil
		}

		s.currentURL = p.adapter.NextPageURL(res.Document, s.currentURL)
	}

	if s.page >= p.cfg.MaxPages {
		p.logger.Warn("page ceiling reached", "max_pages", p.cfg.MaxPages)
	}
	return nil
}

// parsePage extracts and parses one page's review blocks, falling back to
// embedded JSON-LD when the selectors find nothing. Malformed blocks are
// skipped at single-element granularity. Returns false when the page
// contributed no records at all.
func (p *Pipeline) parsePage(s *session, res *transport.Result) bool {
	src := p.adapter.Source()
	parsed := 0

	for _, el := range p.adapter.FindReviewElements(res.Document) {
		r := p.adapter.ParseReview(el)
		if r == nil {
			continue
		}
		s.collected = append(s.collected, *r)
		parsed++
	}

	if parsed == 0 {
		embedded := adapter.ExtractJSONLD(res.Document, src)
		if len(embedded) > 0 {
			p.logger.Debug("extracted reviews from embedded JSON-LD", "count", len(embedded))
			s.collected = append(s.collected, embedded...)
			parsed = len(embedded)
		}
	}

	if parsed == 0 {
		return false
	}

	metrics.ReviewsParsedTotal.WithLabelValues(string(src)).Add(float64(parsed))
	s.usablePages++
	return true
}

// pastRangeStart reports whether the newest parsed records have moved past
// the window start, assuming a newest-first listing.
func (p *Pipeline) pastRangeStart(s *session, dr review.DateRange) bool {
	if len(s.collected) == 0 {
		return false
	}
	last := s.collected[len(s.collected)-1]
	return last.Date != nil && last.Date.Before(dr.Start)
}

func (p *Pipeline) fallback(company string, src review.Source, dr review.DateRange, reason string) Outcome {
	p.logger.Info("live extraction unusable, generating sample data",
		"reason", reason, "count", p.cfg.FallbackCount)
	metrics.FallbackRunsTotal.WithLabelValues(string(src), reason).Inc()
	return Fallback{
		Reviews: sample.Generate(company, src, dr, p.cfg.FallbackCount),
		Reason:  reason,
	}
}
