// Package orchestrator drives one search request end to end: tokenize, fetch
// candidates, rank, respond, then fan out best-effort tracking. All mutable
// state lives in the injected collaborators; the orchestrator itself is
// stateless per call.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/catalog"
	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
	"github.com/onlyshah/fashion-search/internal/search"
	"github.com/onlyshah/fashion-search/internal/suggest"
	"github.com/onlyshah/fashion-search/internal/trending"
)

// ResponseCache fronts ranked responses. Nil-able: a missing cache only
// costs recomputation.
type ResponseCache interface {
	GetSearchResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	SetSearchResponse(ctx context.Context, req *models.SearchRequest, resp *models.SearchResponse) error
	GetStaleResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// AnalyticsSink receives search and interaction events off the response path.
type AnalyticsSink interface {
	WriteSearchEvent(ctx context.Context, event *models.SearchEvent) error
	WriteInteractionEvent(ctx context.Context, event *models.InteractionEvent) error
}

type Orchestrator struct {
	source    catalog.Source
	cache     ResponseCache
	historySt *history.Store
	trendingT *trending.Tracker
	suggester *suggest.Engine
	slow      *observability.SlowSearchDetector
	sink      AnalyticsSink
	cfg       config.SearchConfig
	metaLimit int
	logger    *zap.Logger
}

func New(
	source catalog.Source,
	respCache ResponseCache,
	historyStore *history.Store,
	trendingTracker *trending.Tracker,
	suggester *suggest.Engine,
	slow *observability.SlowSearchDetector,
	sink AnalyticsSink,
	cfg config.SearchConfig,
	metaLimit int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:    source,
		cache:     respCache,
		historySt: historyStore,
		trendingT: trendingTracker,
		suggester: suggester,
		slow:      slow,
		sink:      sink,
		cfg:       cfg,
		metaLimit: metaLimit,
		logger:    logger,
	}
}

// Search produces the ranked response for one request. Tracking side effects
// run detached after the page is computed, so a request's own search never
// influences its own ranking and tracking failures never fail the response.
func (o *Orchestrator) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "orchestrator.search",
		attribute.String("query", req.Query),
	)
	defer span.End()

	if req.PageSize <= 0 {
		req.PageSize = o.cfg.DefaultPageSize
	}
	if req.PageSize > o.cfg.MaxPageSize {
		req.PageSize = o.cfg.MaxPageSize
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	terms := search.Tokenize(req.Query)
	mode := "browse"
	if len(terms) > 0 {
		mode = "query"
	}

	if o.cache != nil {
		cached, err := o.cache.GetSearchResponse(ctx, req)
		if err != nil {
			o.logger.Warn("cache lookup error", zap.Error(err))
		}
		if cached != nil {
			cached.SearchMeta.SearchTime = time.Since(start).Milliseconds()
			observability.SearchRequestsTotal.WithLabelValues(mode, "cache_hit").Inc()
			o.track(ctx, req, terms, cached.SearchMeta.ResultsCount, start, true)
			return cached, nil
		}
	}

	page, err := o.rankWithFallback(ctx, req, terms)
	if err != nil {
		observability.SearchRequestsTotal.WithLabelValues(mode, "error").Inc()
		observability.SearchRequestDuration.WithLabelValues(mode, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	resp := o.assemble(req, terms, page, start)

	if o.cache != nil {
		if err := o.cache.SetSearchResponse(ctx, req, resp); err != nil {
			o.logger.Warn("cache set error", zap.Error(err))
		}
	}

	observability.SearchRequestsTotal.WithLabelValues(mode, "success").Inc()
	observability.SearchRequestDuration.WithLabelValues(mode, "success").Observe(time.Since(start).Seconds())

	o.slow.Intercept(ctx, req.Query, time.Since(start), page.Total)
	o.track(ctx, req, terms, page.Total, start, false)

	return resp, nil
}

func (o *Orchestrator) rankWithFallback(ctx context.Context, req *models.SearchRequest, terms []string) (*search.Page, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()

	candidates, err := o.source.FetchFiltered(fetchCtx, req.Filters)
	if err == nil {
		return search.Rank(candidates, req.Filters, terms, req.SortBy, req.SortOrder, req.Page, req.PageSize)
	}

	o.logger.Warn("catalog fetch failed, trying stale cache", zap.Error(err))
	observability.FallbackCounter.WithLabelValues("catalog_failed").Inc()

	if o.cache != nil {
		stale, cacheErr := o.cache.GetStaleResponse(ctx, req)
		if cacheErr == nil && stale != nil {
			observability.FallbackCounter.WithLabelValues("stale_cache").Inc()
			return &search.Page{
				Products: stale.Products,
				Total:    stale.Pagination.Total,
				Pages:    stale.Pagination.Pages,
			}, nil
		}
	}

	return nil, fmt.Errorf("fetching search candidates: %w", err)
}

func (o *Orchestrator) assemble(req *models.SearchRequest, terms []string, page *search.Page, start time.Time) *models.SearchResponse {
	products := page.Products
	if products == nil {
		products = []models.Product{}
	}

	var suggestions []models.Suggestion
	if o.suggester != nil {
		suggestions = o.suggester.Suggest(req.Query, o.metaLimit)
	}
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}

	return &models.SearchResponse{
		Success:  true,
		Products: products,
		Pagination: models.Pagination{
			Current: req.Page,
			Pages:   page.Pages,
			Total:   page.Total,
			HasNext: req.Page < page.Pages,
			HasPrev: req.Page > 1 && page.Total > 0,
		},
		SearchMeta: models.SearchMeta{
			Query:        req.Query,
			Filters:      req.Filters,
			ResultsCount: page.Total,
			SearchTime:   time.Since(start).Milliseconds(),
			Timestamp:    time.Now().UTC(),
			Suggestions:  suggestions,
		},
	}
}

// track fans out the best-effort side effects. Each target is isolated: a
// panic or error in one never reaches the others or the caller.
func (o *Orchestrator) track(ctx context.Context, req *models.SearchRequest, terms []string, resultCount int64, start time.Time, cacheHit bool) {
	if len(terms) == 0 {
		return
	}
	traceID := observability.TraceIDFromContext(ctx)

	go o.guarded("trending", func() {
		o.trendingT.RecordOccurrence(req.Query)
	})

	if req.UserID != "" {
		go o.guarded("history", func() {
			o.historySt.RecordSearch(req.UserID, req.Query, req.Filters, resultCount)
		})
	}

	if o.sink != nil {
		event := &models.SearchEvent{
			Query:       req.Query,
			QueryHash:   observability.HashQuery(req.Query),
			UserID:      req.UserID,
			ResultCount: resultCount,
			DurationMs:  float64(time.Since(start).Milliseconds()),
			SortBy:      req.SortBy,
			Filtered:    !req.Filters.IsZero(),
			CacheHit:    cacheHit,
			Timestamp:   time.Now().UTC(),
			TraceID:     traceID,
		}
		go o.guarded("analytics", func() {
			writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := o.sink.WriteSearchEvent(writeCtx, event); err != nil {
				o.logger.Warn("search event write failed", zap.Error(err))
				observability.TrackingFailuresTotal.WithLabelValues("analytics").Inc()
			}
		})
	}
}

func (o *Orchestrator) guarded(target string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("tracking side effect panicked",
				zap.String("target", target),
				zap.Any("panic", rec),
			)
			observability.TrackingFailuresTotal.WithLabelValues(target).Inc()
		}
	}()
	fn()
}

// TrackInteraction correlates a client-reported interaction back to the
// user's history and logs it to the analytics sink. Always best-effort: an
// unmatched interaction is dropped silently.
func (o *Orchestrator) TrackInteraction(ctx context.Context, userID, query, productID, action string, position int, viewDurationMs int64) {
	switch action {
	case "click", "purchase":
		o.historySt.RecordInteraction(userID, query, productID, action, position)
	case "view_duration":
		o.historySt.RecordSession(userID, query, viewDurationMs, false)
	case "filter_change":
		o.historySt.RecordSession(userID, query, 0, true)
	}

	if o.sink == nil {
		return
	}
	event := &models.InteractionEvent{
		Query:     query,
		UserID:    userID,
		ProductID: productID,
		Action:    action,
		Position:  position,
		Timestamp: time.Now().UTC(),
	}
	go o.guarded("analytics", func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.sink.WriteInteractionEvent(writeCtx, event); err != nil {
			o.logger.Warn("interaction event write failed", zap.Error(err))
			observability.TrackingFailuresTotal.WithLabelValues("analytics").Inc()
		}
	})
}
