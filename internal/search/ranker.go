package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onlyshah/fashion-search/internal/models"
)

// Page is one ranked result page plus the totals the pagination envelope needs.
type Page struct {
	Products []models.Product
	Total    int64
	Pages    int
}

type scored struct {
	product models.Product
	score   float64
}

// Rank filters the candidate set, orders the survivors per the requested sort
// mode, and slices out the requested page. Relevance scores are ephemeral
// sort keys; they are not attached to the returned products. A page past the
// end yields an empty page with correct totals.
func Rank(candidates []models.Product, filters models.Filters, terms []string, sortBy, sortOrder string, page, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if page <= 0 {
		page = 1
	}

	pred := BuildPredicate(filters)
	survivors := make([]scored, 0, len(candidates))
	for i := range candidates {
		if !pred(&candidates[i]) {
			continue
		}
		s := scored{product: candidates[i]}
		if len(terms) > 0 {
			s.score = Score(&candidates[i], terms)
		}
		survivors = append(survivors, s)
	}

	sortSurvivors(survivors, terms, sortBy, sortOrder)

	total := int64(len(survivors))
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(survivors) {
		start = len(survivors)
	}
	if end > len(survivors) {
		end = len(survivors)
	}

	products := make([]models.Product, 0, end-start)
	for _, s := range survivors[start:end] {
		products = append(products, s.product)
	}

	return &Page{Products: products, Total: total, Pages: pages}, nil
}

func sortSurvivors(items []scored, terms []string, sortBy, sortOrder string) {
	if sortBy == "" {
		if len(terms) > 0 {
			sortBy = models.SortRelevance
		} else {
			sortBy = models.SortNewest
		}
	}
	asc := sortOrder == models.OrderAsc

	switch sortBy {
	case models.SortRelevance:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].score != items[j].score {
				return items[i].score > items[j].score
			}
			return items[i].product.Views > items[j].product.Views
		})

	case models.SortPrice:
		sort.SliceStable(items, func(i, j int) bool {
			if asc {
				return items[i].product.Price < items[j].product.Price
			}
			return items[i].product.Price > items[j].product.Price
		})

	case models.SortRating:
		sort.SliceStable(items, func(i, j int) bool {
			pi, pj := items[i].product, items[j].product
			if pi.RatingAverage != pj.RatingAverage {
				return pi.RatingAverage > pj.RatingAverage
			}
			return pi.RatingCount > pj.RatingCount
		})

	case models.SortPopularity:
		sort.SliceStable(items, func(i, j int) bool {
			pi, pj := items[i].product, items[j].product
			if pi.Views != pj.Views {
				return pi.Views > pj.Views
			}
			return pi.Likes > pj.Likes
		})

	case models.SortNewest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].product.CreatedAt.After(items[j].product.CreatedAt)
		})

	case models.SortName:
		sort.SliceStable(items, func(i, j int) bool {
			ni := strings.ToLower(items[i].product.Name)
			nj := strings.ToLower(items[j].product.Name)
			if asc || sortOrder == "" {
				return ni < nj
			}
			return ni > nj
		})
	}
}

// ValidSortBy reports whether the sort mode is one the ranker understands.
func ValidSortBy(sortBy string) bool {
	switch sortBy {
	case "", models.SortRelevance, models.SortPrice, models.SortRating,
		models.SortPopularity, models.SortNewest, models.SortName:
		return true
	}
	return false
}

// ValidSortOrder reports whether the order is empty, asc, or desc.
func ValidSortOrder(order string) bool {
	return order == "" || order == models.OrderAsc || order == models.OrderDesc
}
