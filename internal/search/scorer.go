package search

import (
	"strings"

	"github.com/onlyshah/fashion-search/internal/models"
)

// Field weights for term matches. Name carries the most signal, brand close
// behind; description and subcategory are weak evidence.
const (
	weightName        = 3.0
	weightBrand       = 2.5
	weightCategory    = 2.0
	weightTag         = 2.0
	weightSubcategory = 1.5
	weightDescription = 1.5

	bonusExactName  = 2.0
	bonusNamePrefix = 1.0

	boostPerView     = 0.001
	boostPerLike     = 0.01
	boostPerPurchase = 0.1
	boostPerRating   = 0.5
	boostInStock     = 0.5
	boostOnSale      = 0.3
)

// Score computes the relevance of a product against the query terms: a
// weighted sum over field matches plus a popularity/availability boost. The
// sum is commutative across terms. With no terms the result is the bare
// popularity boost, which makes Score usable as a popularity ranker for
// filter-only browsing.
func Score(p *models.Product, terms []string) float64 {
	var score float64

	name := strings.ToLower(p.Name)
	brand := strings.ToLower(p.Brand)
	category := strings.ToLower(p.Category)
	subcategory := strings.ToLower(p.Subcategory)
	description := strings.ToLower(p.Description)

	for _, term := range terms {
		if strings.Contains(name, term) {
			score += weightName
		}
		if brand != "" && strings.Contains(brand, term) {
			score += weightBrand
		}
		if category != "" && strings.Contains(category, term) {
			score += weightCategory
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				score += weightTag
			}
		}
		if subcategory != "" && strings.Contains(subcategory, term) {
			score += weightSubcategory
		}
		if description != "" && strings.Contains(description, term) {
			score += weightDescription
		}
		if name == term {
			score += bonusExactName
		}
		if strings.HasPrefix(name, term) {
			score += bonusNamePrefix
		}
	}

	score += float64(p.Views)*boostPerView +
		float64(p.Likes)*boostPerLike +
		float64(p.Purchases)*boostPerPurchase +
		p.RatingAverage*boostPerRating
	if p.InStock() {
		score += boostInStock
	}
	if p.OnSale() {
		score += boostOnSale
	}

	return score
}
