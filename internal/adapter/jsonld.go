package adapter

import (
	"encoding/json"
	"strings"

	"github.com/FranksOps/critic/internal/review"
	"github.com/PuerkitoBio/goquery"
)

// ExtractJSONLD pulls review records out of JSON-LD script blocks. Modern
// listings often embed their first page of reviews as structured data even
// when the visible cards are rendered client-side, so this runs as a
// secondary element source when the CSS selectors come up empty.
func ExtractJSONLD(doc *goquery.Document, src review.Source) []review.Review {
	var out []review.Review

	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		var node any
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			return // malformed block, skip it
		}
		collectLDReviews(node, src, &out)
	})

	return out
}

// collectLDReviews walks a decoded JSON-LD tree picking up Review objects,
// whether top-level, in an @graph, or nested under a Product's "review" key.
func collectLDReviews(node any, src review.Source, out *[]review.Review) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			collectLDReviews(item, src, out)
		}
	case map[string]any:
		if t, _ := v["@type"].(string); strings.EqualFold(t, "Review") {
			if r := parseLDReview(v, src); r != nil {
				*out = append(*out, *r)
			}
			return
		}
		for _, key := range []string{"@graph", "review", "reviews"} {
			if child, ok := v[key]; ok {
				collectLDReviews(child, src, out)
			}
		}
	}
}

func parseLDReview(m map[string]any, src review.Source) *review.Review {
	r := review.Review{Source: src}

	if s, _ := m["name"].(string); s != "" {
		r.Title = strings.TrimSpace(s)
	}
	if s, _ := m["reviewBody"].(string); s != "" {
		r.ReviewText = strings.TrimSpace(s)
	}
	if s, _ := m["datePublished"].(string); s != "" {
		r.Date = review.ParseDate(s)
	}

	switch author := m["author"].(type) {
	case string:
		r.Reviewer = strings.TrimSpace(author)
	case map[string]any:
		if s, _ := author["name"].(string); s != "" {
			r.Reviewer = strings.TrimSpace(s)
		}
	}

	if rating, ok := m["reviewRating"].(map[string]any); ok {
		switch val := rating["ratingValue"].(type) {
		case string:
			r.Rating = val
		case float64:
			r.Rating = jsonNumber(val)
		}
	}

	if !r.Viable() {
		return nil
	}
	return &r
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
