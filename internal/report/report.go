// Package report renders the final result set as a JSON or CSV document.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/FranksOps/critic/internal/review"
)

// Entry is one review on the wire. Dates are rendered as YYYY-MM-DD;
// unknown fields are empty strings, never null.
type Entry struct {
	Title      string `json:"title"`
	ReviewText string `json:"review_text"`
	Date       string `json:"review_date"`
	Reviewer   string `json:"reviewer"`
	Rating     string `json:"rating"`
}

// Envelope is the top-level output document.
type Envelope struct {
	Company      string  `json:"company"`
	Source       string  `json:"source"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	TotalReviews int     `json:"total_reviews"`
	Reviews      []Entry `json:"reviews"`
}

// Build assembles the envelope from a result set. TotalReviews always
// equals len(Reviews); the slice is never nil so the JSON field renders
// as [] rather than null.
func Build(company string, src review.Source, dr review.DateRange, reviews []review.Review) Envelope {
	entries := make([]Entry, 0, len(reviews))
	for _, r := range reviews {
		entries = append(entries, toEntry(r))
	}
	return Envelope{
		Company:      company,
		Source:       string(src),
		StartDate:    dr.Start.Format("2006-01-02"),
		EndDate:      dr.End.Format("2006-01-02"),
		TotalReviews: len(entries),
		Reviews:      entries,
	}
}

func toEntry(r review.Review) Entry {
	var date string
	if r.Date != nil {
		date = r.Date.Format("2006-01-02")
	}
	return Entry{
		Title:      r.Title,
		ReviewText: r.ReviewText,
		Date:       date,
		Reviewer:   r.Reviewer,
		Rating:     r.Rating,
	}
}

// WriteJSON renders the envelope with two-space indentation.
func WriteJSON(w io.Writer, env Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteCSV renders the review rows only; envelope metadata belongs to the
// filename and the log output.
func WriteCSV(w io.Writer, env Envelope) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"title", "review_text", "review_date", "reviewer", "rating"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, e := range env.Reviews {
		if err := cw.Write([]string{e.Title, e.ReviewText, e.Date, e.Reviewer, e.Rating}); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// DefaultFilename derives the output path from the invocation parameters,
// e.g. "output_slack_g2.json".
func DefaultFilename(company string, src review.Source) string {
	slug := strings.ReplaceAll(strings.TrimSpace(company), " ", "_")
	return fmt.Sprintf("output_%s_%s.json", slug, src)
}

// SaveJSON writes the envelope to path, creating or truncating the file.
func SaveJSON(path string, env Envelope) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteJSON(f, env); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
