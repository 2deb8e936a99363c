package search

import (
	"strings"

	"github.com/onlyshah/fashion-search/internal/models"
)

// Predicate decides whether a product survives a filter set.
type Predicate func(*models.Product) bool

// BuildPredicate compiles a filter set into a pure predicate. Every present
// field adds a conjunctive condition; an empty filter set accepts everything.
func BuildPredicate(f models.Filters) Predicate {
	if f.IsZero() {
		return func(*models.Product) bool { return true }
	}

	brand := strings.ToLower(f.Brand)
	colors := lowerSet(f.Colors)
	sizes := lowerSet(f.Sizes)
	tags := lowerSet(f.Tags)

	return func(p *models.Product) bool {
		if f.Category != "" && p.Category != f.Category {
			return false
		}
		if f.Subcategory != "" && p.Subcategory != f.Subcategory {
			return false
		}
		if brand != "" && !strings.Contains(strings.ToLower(p.Brand), brand) {
			return false
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			return false
		}
		if f.MinRating != nil && p.RatingAverage < *f.MinRating {
			return false
		}
		if f.InStock && !p.InStock() {
			return false
		}
		if f.OnSale && !p.OnSale() {
			return false
		}
		if len(colors) > 0 && !intersects(p.Colors, colors) {
			return false
		}
		if len(sizes) > 0 && !intersects(p.Sizes, sizes) {
			return false
		}
		if len(tags) > 0 && !intersects(p.Tags, tags) {
			return false
		}
		return true
	}
}

func lowerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func intersects(values []string, set map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := set[strings.ToLower(v)]; ok {
			return true
		}
	}
	return false
}
