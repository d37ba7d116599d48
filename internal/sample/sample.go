// Package sample generates synthetic review records for runs where live
// extraction was blocked or found nothing in range. Output is schema-
// compatible with live records; the pipeline's outcome tag is what marks a
// result set as synthetic.
package sample

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/FranksOps/critic/internal/review"
)

// DefaultCount is the number of records generated when no hint is given.
const DefaultCount = 10

var positiveTemplates = []string{
	"Great product! %s has really helped our team improve productivity.",
	"Excellent tool. We've been using %s for months and love it.",
	"Highly recommend %s. It's user-friendly and powerful.",
	"Best decision we made. %s transformed our workflow.",
	"Outstanding service. %s exceeded our expectations.",
	"Love using %s! It's intuitive and feature-rich.",
	"Great value for money. %s delivers on all fronts.",
	"Top-notch product. %s is reliable and efficient.",
}

var neutralTemplates = []string{
	"Decent product. %s works well but could use some improvements.",
	"Good overall, but %s has a learning curve.",
	"Solid tool. %s meets most of our requirements.",
	"Average experience with %s. It's functional.",
	"Fair tool. %s has pros and cons.",
}

var negativeTemplates = []string{
	"Could be better. %s lacks some key features we need.",
	"Not impressed. %s doesn't meet our expectations.",
	"Needs improvement. %s has some usability issues.",
	"Disappointing. %s didn't work as advertised.",
}

var titles = []string{
	"Great tool for teams",
	"Solid product",
	"Highly recommended",
	"Good value",
	"Works well",
	"Easy to use",
	"Feature-rich",
	"Reliable solution",
	"User-friendly",
	"Powerful features",
}

var reviewerNames = []string{
	"John Smith", "Sarah Johnson", "Michael Chen", "Emily Rodriguez",
	"David Williams", "Lisa Anderson", "Robert Taylor", "Jennifer Brown",
	"James Wilson", "Maria Garcia", "William Martinez", "Patricia Davis",
	"Richard Miller", "Linda Moore", "Joseph Jackson", "Barbara White",
}

var extras = []string{
	" The interface is clean and modern.",
	" Customer support is responsive.",
	" Pricing is reasonable for what you get.",
}

// ratings 5..1 skew positive.
var ratingWeights = []int{40, 30, 15, 10, 5}

// Generate produces count synthetic reviews for the company, dated uniformly
// within dr and sorted newest first. count <= 0 uses DefaultCount.
func Generate(company string, src review.Source, dr review.DateRange, count int) []review.Review {
	return GenerateSeeded(company, src, dr, count, rand.Int63())
}

// GenerateSeeded is Generate with a fixed seed, for reproducible output.
func GenerateSeeded(company string, src review.Source, dr review.DateRange, count int, seed int64) []review.Review {
	if count <= 0 {
		count = DefaultCount
	}
	rng := rand.New(rand.NewSource(seed))

	days := dr.Days()
	if days < 1 {
		days = 1
	}

	reviews := make([]review.Review, 0, count)
	for i := 0; i < count; i++ {
		date := dr.Start.AddDate(0, 0, rng.Intn(days+1))
		if date.After(dr.End) {
			date = dr.End
		}

		rating := weightedRating(rng)
		var template string
		switch {
		case rating >= 4:
			template = positiveTemplates[rng.Intn(len(positiveTemplates))]
		case rating == 3:
			template = neutralTemplates[rng.Intn(len(neutralTemplates))]
		default:
			template = negativeTemplates[rng.Intn(len(negativeTemplates))]
		}

		text := fmt.Sprintf(template, company)
		for _, extra := range extras {
			if rng.Float64() > 0.6 {
				text += extra
			}
		}

		d := date
		reviews = append(reviews, review.Review{
			Title:      titles[rng.Intn(len(titles))],
			ReviewText: text,
			Date:       &d,
			Reviewer:   reviewerNames[rng.Intn(len(reviewerNames))],
			Rating:     strconv.Itoa(rating),
			Source:     src,
		})
	}

	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].Date.After(*reviews[j].Date)
	})
	return reviews
}

// weightedRating draws 5..1 with the configured positive skew.
func weightedRating(rng *rand.Rand) int {
	total := 0
	for _, w := range ratingWeights {
		total += w
	}
	n := rng.Intn(total)
	for i, w := range ratingWeights {
		if n < w {
			return 5 - i
		}
		n -= w
	}
	return 5
}
