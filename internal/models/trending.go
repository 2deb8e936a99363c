package models

import "time"

// Trending windows accepted by the trending API.
const (
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"
)

// TrendingRecord tracks occurrences of one normalized query. The window
// counters increment monotonically and are never decayed by a clock; this
// mirrors the behavior the storefront was built against. TrendingScore is
// recomputed on every occurrence as 10*Last24h + 2*Last7d + 0.5*Last30d.
type TrendingRecord struct {
	Query         string    `json:"query"`
	Total         int64     `json:"total"`
	Last24h       int64     `json:"last_24h"`
	Last7d        int64     `json:"last_7d"`
	Last30d       int64     `json:"last_30d"`
	TrendingScore float64   `json:"trending_score"`
	LastUpdated   time.Time `json:"last_updated"`
}

// WindowCount returns the counter for the given window, defaulting to 24h.
func (r *TrendingRecord) WindowCount(window string) int64 {
	switch window {
	case Window7d:
		return r.Last7d
	case Window30d:
		return r.Last30d
	default:
		return r.Last24h
	}
}

// TrendingEntry is the wire shape of one row in GET /search/trending.
type TrendingEntry struct {
	Query         string  `json:"query"`
	Searches      int64   `json:"searches"`
	TrendingScore float64 `json:"trendingScore"`
}
