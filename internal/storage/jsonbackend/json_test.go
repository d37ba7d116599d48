package jsonbackend

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/critic/internal/storage"
)

func testRecord(id, url, status string, created time.Time) *storage.FetchRecord {
	return &storage.FetchRecord{
		ID:         id,
		URL:        url,
		Company:    "slack",
		Source:     "g2",
		Page:       1,
		Attempt:    1,
		StatusCode: 200,
		Status:     status,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("<html>ok</html>"),
		Duration:   125 * time.Millisecond,
		CreatedAt:  created,
	}
}

func TestSaveAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.ndjson")
	backend, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{"ok", "blocked", "ok"} {
		rec := testRecord(
			string(rune('a'+i)), "https://example.com/reviews", status,
			base.Add(time.Duration(i)*time.Minute))
		if err := backend.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	all, err := backend.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("first record ID = %q, want newest first", all[0].ID)
	}

	got := all[0]
	if got.Duration != 125*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}
	if string(got.Body) != "<html>ok</html>" {
		t.Errorf("body = %q", got.Body)
	}
	if http.Header(got.Headers).Get("Content-Type") != "text/html" {
		t.Errorf("headers = %v", got.Headers)
	}
	if !got.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("created_at = %v", got.CreatedAt)
	}
}

func TestQuery_Filters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.ndjson")
	backend, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = backend.Save(ctx, testRecord("a", "https://a.example/reviews", "ok", base))
	_ = backend.Save(ctx, testRecord("b", "https://b.example/reviews", "blocked", base.Add(time.Hour)))

	blocked := true
	got, err := backend.Query(ctx, storage.Filter{Blocked: &blocked})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("blocked filter returned %d records", len(got))
	}

	since := base.Add(30 * time.Minute)
	got, err = backend.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("since filter returned %d records", len(got))
	}

	got, err = backend.Query(ctx, storage.Filter{URL: "https://a.example/reviews"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("url filter returned %d records", len(got))
	}

	got, err = backend.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("limit/offset returned %v", got)
	}

	got, err = backend.Query(ctx, storage.Filter{Offset: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("out-of-range offset returned %d records", len(got))
	}
}

func TestSave_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.ndjson")
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = first.Save(ctx, testRecord("a", "https://example.com", "ok", base))
	_ = first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	_ = second.Save(ctx, testRecord("b", "https://example.com", "ok", base.Add(time.Minute)))

	got, err := second.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records after reopen, want 2", len(got))
	}
}
