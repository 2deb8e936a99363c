package models

import "time"

// HistoryEntry is one recorded search for one user. Click and purchase
// records are appended later when an interaction correlates back to the
// search within the correlation window.
type HistoryEntry struct {
	Query       string       `json:"query"`
	Filters     Filters      `json:"filters"`
	ResultCount int64        `json:"result_count"`
	Clicks      []ClickEvent `json:"clicks,omitempty"`
	Purchases   []Purchase   `json:"purchases,omitempty"`
	Session     SessionMeta  `json:"session"`
	SearchedAt  time.Time    `json:"searched_at"`
}

type ClickEvent struct {
	ProductID string    `json:"productId"`
	Position  int       `json:"position"`
	ClickedAt time.Time `json:"clickedAt"`
}

type Purchase struct {
	ProductID   string    `json:"productId"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// SessionMeta carries free-form per-search session signals reported by the
// client through POST /search/track.
type SessionMeta struct {
	ViewDurationMs int64 `json:"view_duration_ms,omitempty"`
	Refinements    int   `json:"refinements,omitempty"`
}

// PopularQuery is one entry of a user's top-query list.
type PopularQuery struct {
	Query        string    `json:"query"`
	Count        int64     `json:"count"`
	LastSearched time.Time `json:"last_searched"`
	AvgResults   float64   `json:"avg_results"`
}

// PreferenceScore is a learned per-category or per-brand affinity.
type PreferenceScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Searches int64   `json:"searches"`
}

// PriceRangePreference is the smoothed price band a user searches in. Each
// observed bound is folded in as (old+new)/2; the formula is load-bearing for
// compatibility with stored profiles, do not replace with a true average.
type PriceRangePreference struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int64   `json:"samples"`
}

// UserProfile aggregates one user's search behavior: a newest-first ring
// buffer of recent searches, a capped popular-query list, and learned
// category/brand/price preferences.
type UserProfile struct {
	UserID     string                `json:"user_id"`
	Recent     []HistoryEntry        `json:"recent"`
	Popular    []PopularQuery        `json:"popular"`
	Categories []PreferenceScore     `json:"categories"`
	Brands     []PreferenceScore     `json:"brands"`
	PriceRange *PriceRangePreference `json:"price_range,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}
