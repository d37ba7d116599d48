package adapter

import (
	"fmt"

	"github.com/FranksOps/critic/internal/review"
	"github.com/PuerkitoBio/goquery"
)

// Capterra scrapes capterra.com product review listings.
type Capterra struct{}

var _ Adapter = (*Capterra)(nil)

func (Capterra) Source() review.Source { return review.SourceCapterra }

// ResolveCompanyURL guesses the Capterra listing from the company name.
// Format: https://www.capterra.com/p/{slug}/reviews
func (Capterra) ResolveCompanyURL(company string) string {
	return fmt.Sprintf("https://www.capterra.com/p/%s/reviews", Slugify(company))
}

var capterraSelectors = []string{
	"[data-review-id]",
	"div[class*='review-card']",
	"article[class*='review']",
	"section[class*='review']",
	"div[class*='review']",
	"li[class*='review']",
}

func (Capterra) FindReviewElements(doc *goquery.Document) []*goquery.Selection {
	return selectElements(doc, capterraSelectors)
}

func (Capterra) ParseReview(sel *goquery.Selection) *review.Review {
	return parseCommon(sel, review.SourceCapterra)
}

func (Capterra) NextPageURL(doc *goquery.Document, currentURL string) string {
	return nextPageLink(doc, currentURL)
}
