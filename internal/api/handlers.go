package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/orchestrator"
	"github.com/onlyshah/fashion-search/internal/search"
	"github.com/onlyshah/fashion-search/internal/suggest"
	"github.com/onlyshah/fashion-search/internal/trending"
)

const maxRequestBodySize = 1 << 20 // 1 MB

const maxQueryLen = 200

// SuggestionCache and TrendingCache front the suggestion and trending
// endpoints. Both are nil-able.
type SuggestionCache interface {
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]models.Suggestion, error)
	SetSuggestions(ctx context.Context, prefix string, limit int, suggestions []models.Suggestion) error
}

type TrendingCache interface {
	GetTrending(ctx context.Context, window string, limit int) ([]models.TrendingEntry, error)
	SetTrending(ctx context.Context, window string, limit int, entries []models.TrendingEntry) error
}

type Handler struct {
	orchestrator *orchestrator.Orchestrator
	suggester    *suggest.Engine
	trendingT    *trending.Tracker
	historySt    *history.Store
	sugCache     SuggestionCache
	trendCache   TrendingCache
	suggestCfg   config.SuggestConfig
	logger       *zap.Logger
}

func NewHandler(
	orch *orchestrator.Orchestrator,
	suggester *suggest.Engine,
	trendingTracker *trending.Tracker,
	historyStore *history.Store,
	sugCache SuggestionCache,
	trendCache TrendingCache,
	suggestCfg config.SuggestConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		orchestrator: orch,
		suggester:    suggester,
		trendingT:    trendingTracker,
		historySt:    historyStore,
		sugCache:     sugCache,
		trendCache:   trendCache,
		suggestCfg:   suggestCfg,
		logger:       logger,
	}
}

// Search handles GET /search. An empty q is a valid browse request; the
// catalog is then ranked by popularity or the requested sort alone.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	req, err := h.parseSearchRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.RequestID = requestID
	req.UserID = UserIDFromContext(ctx)

	resp, err := h.orchestrator.Search(ctx, req)
	if err != nil {
		h.logger.Error("search failed",
			zap.String("request_id", requestID),
			zap.String("query", req.Query),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusOK, models.SearchResponse{
			Success:  false,
			Products: []models.Product{},
			SearchMeta: models.SearchMeta{
				Query:       req.Query,
				Filters:     req.Filters,
				Timestamp:   time.Now().UTC(),
				Suggestions: []models.Suggestion{},
			},
		})
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Suggestions handles GET /search/suggestions. type=personalized serves the
// authenticated user's learned suggestions and bypasses the shared cache.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLen {
		query = query[:maxQueryLen]
	}

	limit := h.suggestCfg.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > h.suggestCfg.MaxLimit {
		limit = h.suggestCfg.MaxLimit
	}

	if r.URL.Query().Get("type") == "personalized" {
		userID := UserIDFromContext(ctx)
		suggestions := h.suggester.Personalized(userID, limit)
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"suggestions": suggestions,
			"query":       query,
		})
		return
	}

	if h.sugCache != nil {
		cached, err := h.sugCache.GetSuggestions(ctx, query, limit)
		if err != nil {
			h.logger.Warn("suggestion cache error", zap.Error(err))
		}
		if cached != nil {
			h.writeJSON(w, http.StatusOK, map[string]any{
				"success":     true,
				"suggestions": cached,
				"query":       query,
			})
			return
		}
	}

	suggestions := h.suggester.Suggest(query, limit)

	if h.sugCache != nil {
		if err := h.sugCache.SetSuggestions(ctx, query, limit, suggestions); err != nil {
			h.logger.Warn("suggestion cache set error", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": suggestions,
		"query":       query,
	})
}

// Trending handles GET /search/trending.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	timeframe := r.URL.Query().Get("timeframe")
	switch timeframe {
	case "":
		timeframe = models.Window24h
	case models.Window24h, models.Window7d, models.Window30d:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_timeframe", "timeframe must be one of 24h, 7d, 30d")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	if h.trendCache != nil {
		cached, err := h.trendCache.GetTrending(ctx, timeframe, limit)
		if err != nil {
			h.logger.Warn("trending cache error", zap.Error(err))
		}
		if cached != nil {
			h.writeTrending(w, cached, timeframe)
			return
		}
	}

	records := h.trendingT.TopTrending(limit, timeframe)
	entries := make([]models.TrendingEntry, 0, len(records))
	for i := range records {
		entries = append(entries, models.TrendingEntry{
			Query:         records[i].Query,
			Searches:      records[i].WindowCount(timeframe),
			TrendingScore: records[i].TrendingScore,
		})
	}

	if h.trendCache != nil {
		if err := h.trendCache.SetTrending(ctx, timeframe, limit, entries); err != nil {
			h.logger.Warn("trending cache set error", zap.Error(err))
		}
	}

	h.writeTrending(w, entries, timeframe)
}

func (h *Handler) writeTrending(w http.ResponseWriter, entries []models.TrendingEntry, timeframe string) {
	if entries == nil {
		entries = []models.TrendingEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"trending":  entries,
		"timeframe": timeframe,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// History handles GET /search/history for the authenticated user.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "user identity required")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	historyType := r.URL.Query().Get("type")
	if historyType == "" {
		historyType = "recent"
	}
	if historyType != "recent" && historyType != "popular" {
		h.writeError(w, http.StatusBadRequest, "invalid_type", "type must be recent or popular")
		return
	}

	profile, ok := h.historySt.Profile(userID)
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"searches":    []models.HistoryEntry{},
			"analytics":   models.AnalyticsOverview{},
			"preferences": map[string]any{},
		})
		return
	}

	var searches any
	if historyType == "popular" {
		popular := profile.Popular
		if len(popular) > limit {
			popular = popular[:limit]
		}
		searches = popular
	} else {
		recent := profile.Recent
		if len(recent) > limit {
			recent = recent[:limit]
		}
		searches = recent
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"searches":  searches,
		"analytics": h.historySt.Analytics(userID),
		"preferences": map[string]any{
			"categories": profile.Categories,
			"brands":     profile.Brands,
			"priceRange": profile.PriceRange,
		},
	})
}

// ClearHistory handles DELETE /search/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "user identity required")
		return
	}

	scope := r.URL.Query().Get("type")
	if scope == "" {
		scope = history.ScopeAll
	}
	if scope != history.ScopeAll && scope != history.ScopeRecent && scope != history.ScopePopular {
		h.writeError(w, http.StatusBadRequest, "invalid_type", "type must be all, recent, or popular")
		return
	}

	h.historySt.ClearHistory(userID, scope)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("search history cleared (%s)", scope),
	})
}

type trackRequest struct {
	SearchQuery string         `json:"searchQuery"`
	ProductID   string         `json:"productId"`
	Action      string         `json:"action"`
	Position    int            `json:"position"`
	Metadata    *trackMetadata `json:"metadata,omitempty"`
}

type trackMetadata struct {
	ViewDurationMs int64 `json:"viewDuration"`
}

// Track handles POST /search/track. Interactions are best-effort by
// contract: a report that matches no recent search still returns success, so
// client retry loops never build up around stale events.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "user identity required")
		return
	}

	var req trackRequest
	limited := io.LimitReader(r.Body, maxRequestBodySize)
	if err := json.NewDecoder(limited).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	switch req.Action {
	case "click", "purchase", "view_duration", "filter_change":
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_action",
			"action must be one of click, purchase, view_duration, filter_change")
		return
	}

	var viewDuration int64
	if req.Metadata != nil {
		viewDuration = req.Metadata.ViewDurationMs
	}

	h.orchestrator.TrackInteraction(r.Context(), userID, req.SearchQuery, req.ProductID, req.Action, req.Position, viewDuration)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "interaction recorded",
	})
}

// Analytics handles GET /search/analytics: the caller's aggregate search
// behavior plus the current trending queries for context.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "user identity required")
		return
	}

	timeframe := r.URL.Query().Get("timeframe")
	switch timeframe {
	case "":
		timeframe = models.Window7d
	case models.Window24h, models.Window7d, models.Window30d:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_timeframe", "timeframe must be one of 24h, 7d, 30d")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records := h.trendingT.TopTrending(limit, timeframe)
	trendingOut := make([]models.TrendingEntry, 0, len(records))
	for i := range records {
		trendingOut = append(trendingOut, models.TrendingEntry{
			Query:         records[i].Query,
			Searches:      records[i].WindowCount(timeframe),
			TrendingScore: records[i].TrendingScore,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analytics": h.historySt.Analytics(userID),
		"trending":  trendingOut,
		"timeframe": timeframe,
	})
}

func (h *Handler) parseSearchRequest(r *http.Request) (*models.SearchRequest, error) {
	q := r.URL.Query()

	req := &models.SearchRequest{
		Query:     strings.TrimSpace(q.Get("q")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if len(req.Query) > maxQueryLen {
		req.Query = req.Query[:maxQueryLen]
	}

	if req.SortBy != "" && !search.ValidSortBy(req.SortBy) {
		return nil, fmt.Errorf("unknown sortBy %q", req.SortBy)
	}
	if req.SortOrder != "" && req.SortOrder != models.OrderAsc && req.SortOrder != models.OrderDesc {
		return nil, fmt.Errorf("sortOrder must be asc or desc")
	}

	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page <= 0 {
			return nil, fmt.Errorf("page must be a positive integer")
		}
		req.Page = page
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("limit must be a positive integer")
		}
		req.PageSize = limit
	}

	filters := models.Filters{
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Brand:       q.Get("brand"),
		InStock:     q.Get("inStock") == "true",
		OnSale:      q.Get("onSale") == "true",
		Colors:      splitCSV(q.Get("colors")),
		Sizes:       splitCSV(q.Get("sizes")),
		Tags:        splitCSV(q.Get("tags")),
	}

	var err error
	if filters.MinPrice, err = parseFloatParam(q.Get("minPrice"), "minPrice"); err != nil {
		return nil, err
	}
	if filters.MaxPrice, err = parseFloatParam(q.Get("maxPrice"), "maxPrice"); err != nil {
		return nil, err
	}
	if filters.MinRating, err = parseFloatParam(q.Get("rating"), "rating"); err != nil {
		return nil, err
	}
	if filters.MinPrice != nil && filters.MaxPrice != nil && *filters.MinPrice > *filters.MaxPrice {
		return nil, fmt.Errorf("minPrice must not exceed maxPrice")
	}

	req.Filters = filters
	return req, nil
}

func parseFloatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", name)
	}
	return &v, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
