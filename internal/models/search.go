package models

import "time"

// Sort modes accepted by the ranker.
const (
	SortRelevance  = "relevance"
	SortPrice      = "price"
	SortRating     = "rating"
	SortPopularity = "popularity"
	SortNewest     = "newest"
	SortName       = "name"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

type SearchRequest struct {
	Query     string  `json:"query"`
	Filters   Filters `json:"filters"`
	Page      int     `json:"page"`
	PageSize  int     `json:"page_size"`
	SortBy    string  `json:"sort_by,omitempty"`
	SortOrder string  `json:"sort_order,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// SearchResponse is the wire envelope returned by GET /search. The field
// names are consumed by the storefront and admin UIs and must not change.
type SearchResponse struct {
	Success    bool       `json:"success"`
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
	SearchMeta SearchMeta `json:"searchMeta"`
}

type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}

type SearchMeta struct {
	Query        string       `json:"query"`
	Filters      Filters      `json:"filters"`
	ResultsCount int64        `json:"resultsCount"`
	SearchTime   int64        `json:"searchTime"` // milliseconds
	Timestamp    time.Time    `json:"timestamp"`
	Suggestions  []Suggestion `json:"suggestions"`
}

// Suggestion types.
const (
	SuggestionCompletion = "completion"
	SuggestionProduct    = "product"
	SuggestionBrand      = "brand"
	SuggestionTrending   = "trending"
	SuggestionPersonal   = "personal"
	SuggestionCategory   = "category_suggestion"
)

type Suggestion struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Popularity float64 `json:"popularity"`
}

// AnalyticsOverview is the aggregate view returned by GET /search/analytics.
// Computed by explicit typed aggregation over the user's history.
type AnalyticsOverview struct {
	TotalSearches      int64   `json:"totalSearches"`
	UniqueQueries      int64   `json:"uniqueQueries"`
	AverageResults     float64 `json:"averageResults"`
	ClickThroughRate   float64 `json:"clickThroughRate"`
	ConversionRate     float64 `json:"conversionRate"`
}

// SearchEvent is one search occurrence written to the analytics sink.
type SearchEvent struct {
	Query       string    `json:"query"`
	QueryHash   string    `json:"query_hash"`
	UserID      string    `json:"user_id"`
	ResultCount int64     `json:"result_count"`
	DurationMs  float64   `json:"duration_ms"`
	SortBy      string    `json:"sort_by"`
	Filtered    bool      `json:"filtered"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
	TraceID     string    `json:"trace_id"`
}

// InteractionEvent is a click/purchase/session correlation written to the
// analytics sink alongside the in-memory history update.
type InteractionEvent struct {
	Query     string    `json:"query"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Action    string    `json:"action"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}
