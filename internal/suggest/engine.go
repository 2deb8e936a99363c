// Package suggest composes search suggestions from the trending tracker, the
// catalog replica, and the user's learned preferences.
package suggest

import (
	"strings"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/catalog"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
	"github.com/onlyshah/fashion-search/internal/trending"
)

// Composition caps per suggestion source. The final list is deduplicated by
// text and truncated to the caller's limit.
const (
	maxCompletions     = 5
	maxProductMatches  = 3
	maxBrandMatches    = 2
	minPrefixLen       = 2
	personalTopQueries = 5
	personalCategories = 3
	productsPerCat     = 2
)

type Engine struct {
	trending *trending.Tracker
	catalog  *catalog.MemorySource
	history  *history.Store
	logger   *zap.Logger
}

func NewEngine(tracker *trending.Tracker, cat *catalog.MemorySource, hist *history.Store, logger *zap.Logger) *Engine {
	return &Engine{
		trending: tracker,
		catalog:  cat,
		history:  hist,
		logger:   logger,
	}
}

// Suggest returns up to limit suggestions for a partial query. Inputs too
// short to complete fall back to trending queries.
func (e *Engine) Suggest(query string, limit int) []models.Suggestion {
	if limit <= 0 {
		return []models.Suggestion{}
	}
	query = strings.TrimSpace(query)

	if len(query) < minPrefixLen {
		observability.SuggestionRequestsTotal.WithLabelValues("trending").Inc()
		return e.trendingSuggestions(limit)
	}
	observability.SuggestionRequestsTotal.WithLabelValues("prefix").Inc()

	var out []models.Suggestion

	for _, rec := range e.trending.CompletionsFor(query, maxCompletions) {
		out = append(out, models.Suggestion{
			Text:       rec.Query,
			Type:       models.SuggestionCompletion,
			Popularity: float64(rec.Total),
		})
	}

	for _, p := range e.catalog.ProductsNamedLike(query, maxProductMatches) {
		out = append(out, models.Suggestion{
			Text:       p.Name,
			Type:       models.SuggestionProduct,
			Popularity: float64(p.Views),
		})
	}

	for _, brand := range e.catalog.BrandsLike(query, maxBrandMatches) {
		out = append(out, models.Suggestion{
			Text: brand,
			Type: models.SuggestionBrand,
		})
	}

	return dedupe(out, limit)
}

// Personalized returns suggestions derived from the user's own history:
// their top queries followed by popular products in their preferred
// categories. Users with no history get trending.
func (e *Engine) Personalized(userID string, limit int) []models.Suggestion {
	if limit <= 0 {
		return []models.Suggestion{}
	}
	if userID == "" {
		return e.trendingSuggestions(limit)
	}

	topQueries := e.history.TopQueries(userID, personalTopQueries)
	if len(topQueries) == 0 {
		observability.SuggestionRequestsTotal.WithLabelValues("personal_fallback").Inc()
		return e.trendingSuggestions(limit)
	}
	observability.SuggestionRequestsTotal.WithLabelValues("personal").Inc()

	var out []models.Suggestion
	for _, pq := range topQueries {
		out = append(out, models.Suggestion{
			Text:       pq.Query,
			Type:       models.SuggestionPersonal,
			Popularity: float64(pq.Count),
		})
	}

	for _, pref := range e.history.TopCategories(userID, personalCategories) {
		for _, p := range e.catalog.TopInCategory(pref.Name, productsPerCat) {
			out = append(out, models.Suggestion{
				Text:       p.Name,
				Type:       models.SuggestionCategory,
				Popularity: float64(p.Views),
			})
		}
	}

	return dedupe(out, limit)
}

func (e *Engine) trendingSuggestions(limit int) []models.Suggestion {
	records := e.trending.TopTrending(limit, models.Window24h)
	out := make([]models.Suggestion, 0, len(records))
	for _, rec := range records {
		out = append(out, models.Suggestion{
			Text:       rec.Query,
			Type:       models.SuggestionTrending,
			Popularity: float64(rec.Total),
		})
	}
	return out
}

// dedupe keeps the first occurrence of each text and caps the list.
func dedupe(in []models.Suggestion, limit int) []models.Suggestion {
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Suggestion, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(s.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
