package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/critic/internal/fingerprint"
	"github.com/FranksOps/critic/pkg/useragent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool([]string{"TestBrowser/1.0"})
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	f, err := NewFetcher(cfg)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

const reviewPage = `<html><body>
	<div class="review-card" data-review-id="1">
		<h3>Solid tool</h3><p>Works well for our team.</p>
	</div>
</body></html>`

func TestFetch_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(reviewPage))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusOK {
		t.Fatalf("status = %s, want ok (err: %s)", res.Status, res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", res.StatusCode)
	}
	if res.Document == nil {
		t.Errorf("expected parsed document")
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestFetch_BlockedStopsRetrying(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("cf-browser-verification"))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusBlocked {
		t.Fatalf("status = %s, want blocked", res.Status)
	}
	if res.BlockVendor != "Cloudflare" {
		t.Errorf("vendor = %q, want Cloudflare", res.BlockVendor)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, block must not be retried", got)
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(reviewPage))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusOK {
		t.Fatalf("status = %s, want ok after recovery", res.Status)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestFetch_RetryCap(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusNetworkError {
		t.Fatalf("status = %s, want network_error", res.Status)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want exactly 3 attempts", got)
	}
}

func TestFetch_NotFoundIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusEmpty {
		t.Errorf("status = %s, want empty for 404", res.Status)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, 404 must not be retried", res.Attempts)
	}
}

func TestFetch_NoReviewMarkersIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>About us</h1></body></html>`))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), ts.URL, false)

	if res.Status != StatusEmpty {
		t.Errorf("status = %s, want empty for page without review markup", res.Status)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher(t, Config{})
	res := f.Fetch(context.Background(), "not a url", false)
	if res.Status != StatusNetworkError {
		t.Errorf("status = %s, want network_error for invalid URL", res.Status)
	}
}

// failingRenderer always errors, exercising the degrade-to-static path.
type failingRenderer struct{}

func (failingRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	return "", errors.New("browser crashed")
}

func TestFetch_RendererDegradesToStatic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(reviewPage))
	}))
	defer ts.Close()

	f := newTestFetcher(t, Config{Renderer: failingRenderer{}})
	res := f.Fetch(context.Background(), ts.URL, true)

	if res.Status != StatusOK {
		t.Fatalf("status = %s, want ok via static fallback", res.Status)
	}
}

// stubRenderer returns fixed HTML, exercising the rendered classification.
type stubRenderer struct{ html string }

func (s stubRenderer) Render(ctx context.Context, targetURL string) (string, error) {
	return s.html, nil
}

func TestFetch_RenderedChallengePageIsBlocked(t *testing.T) {
	f := newTestFetcher(t, Config{
		Renderer: stubRenderer{html: `<html><div class="g-recaptcha"></div></html>`},
	})
	res := f.Fetch(context.Background(), "https://example.com/reviews", true)

	if res.Status != StatusBlocked {
		t.Fatalf("status = %s, want blocked for rendered challenge page", res.Status)
	}
	if res.BlockVendor != "Challenge" {
		t.Errorf("vendor = %q, want Challenge", res.BlockVendor)
	}
}
