//go:build integration

package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/FranksOps/critic/internal/adapter"
	"github.com/FranksOps/critic/internal/fingerprint"
	"github.com/FranksOps/critic/internal/pipeline"
	"github.com/FranksOps/critic/internal/report"
	"github.com/FranksOps/critic/internal/review"
	"github.com/FranksOps/critic/internal/storage"
	"github.com/FranksOps/critic/internal/transport"
	"github.com/FranksOps/critic/pkg/useragent"
)

// localAdapter reuses the shared extraction heuristics but resolves company
// URLs against a local test server.
type localAdapter struct {
	adapter.G2
	baseURL string
}

func (a localAdapter) ResolveCompanyURL(company string) string {
	return a.baseURL + "/products/" + adapter.Slugify(company) + "/reviews"
}

// memBackend is an in-memory storage.Backend for verifying archive writes.
type memBackend struct {
	mu      sync.Mutex
	records []*storage.FetchRecord
}

func (m *memBackend) Save(ctx context.Context, rec *storage.FetchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *memBackend) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listingPage(dates []string, next string) string {
	page := "<html><body>"
	for i, d := range dates {
		page += fmt.Sprintf(`<div data-review-id="%d">
			<h3>Review number %d</h3>
			<time datetime="%s">%s</time>
			<a class="reviewer-name">Reviewer %d</a>
			<div class="rating">%d stars</div>
			<p class="review-body">A body long enough to clear the extraction length threshold.</p>
		</div>`, i, i, d, d, i, (i%5)+1)
	}
	if next != "" {
		page += fmt.Sprintf(`<a rel="next" href="%s">Next</a>`, next)
	}
	return page + "</body></html>"
}

func TestIntegration_LiveScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products/slack/reviews", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, listingPage([]string{"2024-02-01", "2024-01-15"}, ""))
			return
		}
		fmt.Fprint(w, listingPage(
			[]string{"2024-05-01", "2024-04-10", "2024-03-20"},
			"/products/slack/reviews?page=2"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	archive := &memBackend{}
	fetcher, err := transport.NewFetcher(transport.Config{
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
		Archive:     archive,
		Company:     "slack",
		Source:      "g2",
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	adp := localAdapter{baseURL: ts.URL}
	p := pipeline.New(fetcher, adp, pipeline.Config{Logger: discardLogger()})

	dr, err := review.ParseDateRange("2024-01-01", "2024-06-30")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	out, err := p.Run(context.Background(), "slack", dr)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.IsFallback() {
		t.Fatal("expected live outcome")
	}
	if got := len(out.Records()); got != 5 {
		t.Errorf("records = %d, want 5 across both pages", got)
	}

	env := report.Build("slack", review.SourceG2, dr, out.Records())
	if env.TotalReviews != 5 {
		t.Errorf("total_reviews = %d", env.TotalReviews)
	}
	if env.Reviews[0].Date != "2024-05-01" {
		t.Errorf("first review date = %q", env.Reviews[0].Date)
	}

	recs, _ := archive.Query(context.Background(), storage.Filter{})
	if len(recs) != 2 {
		t.Errorf("archive holds %d records, want one per page fetch", len(recs))
	}
	for _, rec := range recs {
		if rec.Status != "ok" || rec.Company != "slack" {
			t.Errorf("archive record: %+v", rec)
		}
	}
}

func TestIntegration_BlockedScrapeFallsBack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "cf-browser-verification")
	}))
	defer ts.Close()

	fetcher, err := transport.NewFetcher(transport.Config{
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	adp := localAdapter{baseURL: ts.URL}
	p := pipeline.New(fetcher, adp, pipeline.Config{Logger: discardLogger()})

	dr, _ := review.ParseDateRange("2024-01-01", "2024-06-30")
	out, err := p.Run(context.Background(), "slack", dr)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	fb, ok := out.(pipeline.Fallback)
	if !ok {
		t.Fatalf("outcome type = %T, want Fallback", out)
	}
	if fb.Reason != "blocked" {
		t.Errorf("reason = %q", fb.Reason)
	}
	if len(out.Records()) != 10 {
		t.Errorf("fallback records = %d, want 10", len(out.Records()))
	}
	for _, r := range out.Records() {
		if r.Date == nil || !dr.Contains(*r.Date) {
			t.Errorf("synthetic review dated outside the requested range: %v", r.Date)
		}
	}
}
