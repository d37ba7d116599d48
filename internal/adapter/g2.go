package adapter

import (
	"fmt"

	"github.com/FranksOps/critic/internal/review"
	"github.com/PuerkitoBio/goquery"
)

// G2 scrapes g2.com product review listings.
type G2 struct{}

var _ Adapter = (*G2)(nil)

func (G2) Source() review.Source { return review.SourceG2 }

// ResolveCompanyURL guesses the G2 listing from the company name.
// Format: https://www.g2.com/products/{slug}/reviews
func (G2) ResolveCompanyURL(company string) string {
	return fmt.Sprintf("https://www.g2.com/products/%s/reviews", Slugify(company))
}

// g2Selectors are tried in order; G2 has cycled through several card
// layouts, the data attributes are the most stable.
var g2Selectors = []string{
	"[data-review-id]",
	"div[class*='review-card']",
	"div[itemprop='review']",
	"article[class*='review']",
	"div[class*='review-item']",
	"li[class*='review']",
}

func (G2) FindReviewElements(doc *goquery.Document) []*goquery.Selection {
	return selectElements(doc, g2Selectors)
}

func (G2) ParseReview(sel *goquery.Selection) *review.Review {
	return parseCommon(sel, review.SourceG2)
}

func (G2) NextPageURL(doc *goquery.Document, currentURL string) string {
	return nextPageLink(doc, currentURL)
}
