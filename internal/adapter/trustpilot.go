package adapter

import (
	"fmt"

	"github.com/FranksOps/critic/internal/review"
	"github.com/PuerkitoBio/goquery"
)

// Trustpilot scrapes trustpilot.com company review listings.
type Trustpilot struct{}

var _ Adapter = (*Trustpilot)(nil)

func (Trustpilot) Source() review.Source { return review.SourceTrustpilot }

// ResolveCompanyURL guesses the Trustpilot listing from the company name.
// Trustpilot keys listings by domain, so the slug gets a ".com" appended.
// Format: https://www.trustpilot.com/review/{slug}.com
func (Trustpilot) ResolveCompanyURL(company string) string {
	return fmt.Sprintf("https://www.trustpilot.com/review/%s.com", Slugify(company))
}

// Trustpilot renders reviews as article elements.
var trustpilotSelectors = []string{
	"article[class*='review']",
	"article[data-service-review-card-paper]",
	"div[class*='review']",
	"section[class*='review']",
}

func (Trustpilot) FindReviewElements(doc *goquery.Document) []*goquery.Selection {
	return selectElements(doc, trustpilotSelectors)
}

func (Trustpilot) ParseReview(sel *goquery.Selection) *review.Review {
	return parseCommon(sel, review.SourceTrustpilot)
}

func (Trustpilot) NextPageURL(doc *goquery.Document, currentURL string) string {
	return nextPageLink(doc, currentURL)
}
