// Package review defines the normalized review record shared by every
// source adapter, plus the date-window logic used to filter live results.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source identifies the review site a record was extracted from.
type Source string

const (
	SourceG2         Source = "g2"
	SourceCapterra   Source = "capterra"
	SourceTrustpilot Source = "trustpilot"
)

// ErrUnknownSource is returned for source names outside the supported set.
var ErrUnknownSource = errors.New("unknown source")

// ErrInvalidRange is returned when a date range has start after end.
var ErrInvalidRange = errors.New("start date must be before or equal to end date")

// ParseSource validates a free-text source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceG2:
		return SourceG2, nil
	case SourceCapterra:
		return SourceCapterra, nil
	case SourceTrustpilot:
		return SourceTrustpilot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Review is a single normalized product review. A nil Date and empty
// Reviewer/Rating mean the source page did not expose those fields; they are
// never fabricated outside the sample generator.
type Review struct {
	Title      string
	ReviewText string
	Date       *time.Time
	Reviewer   string
	Rating     string
	Source     Source
}

// Viable reports whether the record carries the minimum field set worth
// keeping: at least a title or body text.
func (r Review) Viable() bool {
	return r.Title != "" || r.ReviewText != ""
}

// DateRange is a closed interval [Start, End] at day granularity.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange validates the start <= end invariant.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.After(end) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange builds a range from two YYYY-MM-DD strings.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse("2006-01-02", strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: use YYYY-MM-DD", start)
	}
	e, err := time.Parse("2006-01-02", strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: use YYYY-MM-DD", end)
	}
	return NewDateRange(s, e)
}

// Contains reports whether t falls inside the range, bounds inclusive.
func (dr DateRange) Contains(t time.Time) bool {
	return !t.Before(dr.Start) && !t.After(dr.End)
}

// Days returns the span of the range in whole days.
func (dr DateRange) Days() int {
	return int(dr.End.Sub(dr.Start).Hours() / 24)
}

// FilterInRange keeps the reviews whose date is present and inside dr.
// Filtering an already-filtered slice with the same range is a no-op.
func FilterInRange(reviews []Review, dr DateRange) []Review {
	out := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if r.Date != nil && dr.Contains(*r.Date) {
			out = append(out, r)
		}
	}
	return out
}

// dateFormats covers the display formats the three sites use, tried in order.
var dateFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a review date in any of the known display formats.
// Returns nil when no format matches; callers keep the record without a date.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.Truncate(24 * time.Hour)
			return &t
		}
	}
	return nil
}
