// Package storage archives every page fetch a scrape performs. The archive
// is a side channel for post-mortems on blocked or empty runs; writes never
// influence the pipeline's outcome.
package storage

import (
	"context"
	"time"
)

// FetchRecord captures one fetch attempt against a review listing page.
type FetchRecord struct {
	ID          string
	URL         string
	Company     string
	Source      string
	Page        int
	Attempt     int
	Rendered    bool
	StatusCode  int
	Status      string // ok, blocked, network_error, empty
	BlockVendor string // e.g. "DataDome", "Cloudflare"
	Headers     map[string][]string
	Body        []byte
	Duration    time.Duration
	CreatedAt   time.Time
	Error       string // non-empty if the fetch failed before an HTTP response
}

// Filter selects FetchRecords in queries.
type Filter struct {
	URL     string
	Company string
	Source  string
	Blocked *bool // matches status == "blocked" when set
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend stores and queries fetch records.
type Backend interface {
	Save(ctx context.Context, rec *FetchRecord) error
	Query(ctx context.Context, filter Filter) ([]*FetchRecord, error)
	Close() error
}
