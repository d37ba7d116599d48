// Package adapter implements the per-site review extraction contract.
// Each site gets one adapter: it derives the listing URL for a company,
// locates review blocks in a parsed page, parses one block into a normalized
// record, and finds the next listing page. Adapters hold no mutable state.
package adapter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/FranksOps/critic/internal/review"
	"github.com/PuerkitoBio/goquery"
)

// Adapter is the capability set the pagination driver needs from a site.
type Adapter interface {
	// Source identifies the site; stamped into every record produced.
	Source() review.Source

	// ResolveCompanyURL derives the review listing URL from a free-text
	// company name. Deterministic, no network; the guess can be wrong and
	// downstream stages must tolerate the resulting 404 or empty page.
	ResolveCompanyURL(company string) string

	// FindReviewElements locates candidate review blocks on one page.
	// An empty result is a valid outcome, not an error.
	FindReviewElements(doc *goquery.Document) []*goquery.Selection

	// ParseReview extracts one block into a record. Returns nil when the
	// block lacks both a title and body text; missing optional fields
	// (reviewer, rating, date) stay absent.
	ParseReview(sel *goquery.Selection) *review.Review

	// NextPageURL returns the absolute URL of the next listing page, or ""
	// when pagination is exhausted.
	NextPageURL(doc *goquery.Document, currentURL string) string
}

// ForSource returns the adapter for a source identifier.
func ForSource(s review.Source) (Adapter, error) {
	switch s {
	case review.SourceG2:
		return &G2{}, nil
	case review.SourceCapterra:
		return &Capterra{}, nil
	case review.SourceTrustpilot:
		return &Trustpilot{}, nil
	}
	return nil, fmt.Errorf("%w: %q", review.ErrUnknownSource, s)
}

// Slugify turns a company name into a URL slug the way the review sites
// build theirs: lowercase, spaces to hyphens, "&" spelled out, punctuation
// stripped.
func Slugify(company string) string {
	s := strings.ToLower(strings.TrimSpace(company))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, ".", "")

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var inlineDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`[A-Z][a-z]+ \d{1,2}, \d{4}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
}

var ratingNumberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// findTitle picks the first heading-like text in the block.
func findTitle(sel *goquery.Selection) string {
	for _, selector := range []string{"h2", "h3", "h4", "h5", "[class*='title']"} {
		if el := sel.Find(selector).First(); el.Length() > 0 {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// findBody picks the longest substantial text block, skipping strings that
// look like dates or ratings.
func findBody(sel *goquery.Selection) string {
	var longest string
	selectors := []string{
		"p[class*='review']", "div[class*='review-text']", "div[class*='content']",
		"div[class*='body']", "span[class*='review']", "p",
	}
	for _, selector := range selectors {
		sel.Find(selector).Each(func(_ int, el *goquery.Selection) {
			t := strings.TrimSpace(el.Text())
			if len(t) <= len(longest) || len(t) < 30 {
				return
			}
			if ratingNumberRe.MatchString(t) && len(t) < 40 && strings.Contains(strings.ToLower(t), "star") {
				return
			}
			longest = t
		})
		if longest != "" {
			break
		}
	}
	return longest
}

// findDate looks for a <time> element, then date-classed nodes, then inline
// date patterns in the block's text. Returns the raw string for ParseDate.
func findDate(sel *goquery.Selection) string {
	if el := sel.Find("time").First(); el.Length() > 0 {
		if dt, ok := el.Attr("datetime"); ok && dt != "" {
			return dt
		}
		if t := strings.TrimSpace(el.Text()); t != "" {
			return t
		}
	}
	if el := sel.Find("[class*='date']").First(); el.Length() > 0 {
		if t := strings.TrimSpace(el.Text()); t != "" {
			return t
		}
	}
	text := sel.Text()
	for _, re := range inlineDatePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// findReviewer looks for author-ish nodes.
func findReviewer(sel *goquery.Selection) string {
	selectors := []string{
		"a[class*='user']", "a[class*='author']", "a[class*='reviewer']",
		"span[class*='user']", "span[class*='author']", "span[class*='reviewer']",
		"div[class*='author']",
	}
	for _, selector := range selectors {
		if el := sel.Find(selector).First(); el.Length() > 0 {
			if t := strings.TrimSpace(el.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// findRating reads a numeric rating, falling back to counting filled stars.
func findRating(sel *goquery.Selection) string {
	el := sel.Find("[class*='rating']").First()
	if el.Length() == 0 {
		return ""
	}
	if m := ratingNumberRe.FindString(el.Text()); m != "" {
		return m
	}

	filled := 0
	el.Find("svg, i, span").Each(func(_ int, star *goquery.Selection) {
		class, _ := star.Attr("class")
		lower := strings.ToLower(class)
		if strings.Contains(lower, "star") &&
			(strings.Contains(lower, "filled") || strings.Contains(lower, "full") || strings.Contains(lower, "active")) {
			filled++
		}
	})
	if filled > 0 {
		return fmt.Sprintf("%d", filled)
	}
	return ""
}

// parseCommon assembles a record from the shared heuristics. Returns nil
// when the block has neither title nor body text.
func parseCommon(sel *goquery.Selection, src review.Source) *review.Review {
	r := review.Review{
		Title:      findTitle(sel),
		ReviewText: findBody(sel),
		Reviewer:   findReviewer(sel),
		Rating:     findRating(sel),
		Source:     src,
	}
	if raw := findDate(sel); raw != "" {
		r.Date = review.ParseDate(raw)
	}
	if !r.Viable() {
		return nil
	}
	return &r
}

// nextPageLink finds a "next" pagination link and resolves it against the
// current URL. Checks rel=next first, then aria-labels and class names.
func nextPageLink(doc *goquery.Document, currentURL string) string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return ""
	}

	var href string
	if el := doc.Find("a[rel='next']").First(); el.Length() > 0 {
		href, _ = el.Attr("href")
	}
	if href == "" {
		doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			label, _ := a.Attr("aria-label")
			class, _ := a.Attr("class")
			text := strings.TrimSpace(a.Text())
			if strings.Contains(strings.ToLower(label), "next") ||
				strings.Contains(strings.ToLower(class), "next") ||
				strings.EqualFold(text, "next") {
				if h, ok := a.Attr("href"); ok && h != "" && h != "#" {
					href = h
					return false
				}
			}
			return true
		})
	}
	if href == "" {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// selectElements runs the given selectors in order and returns the matches
// of the first one that finds a plausible set of review blocks.
func selectElements(doc *goquery.Document, selectors []string) []*goquery.Selection {
	for _, selector := range selectors {
		var found []*goquery.Selection
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			found = append(found, s)
		})
		if len(found) > 0 {
			return found
		}
	}
	return nil
}
