package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/catalog"
	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
	"github.com/onlyshah/fashion-search/internal/suggest"
	"github.com/onlyshah/fashion-search/internal/trending"
)

type stubSource struct {
	products []models.Product
	err      error
}

func (s *stubSource) Fetch(ctx context.Context) ([]models.Product, error) {
	return s.FetchFiltered(ctx, models.Filters{})
}

func (s *stubSource) FetchFiltered(ctx context.Context, filters models.Filters) ([]models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubCache struct {
	resp     *models.SearchResponse
	stale    *models.SearchResponse
	setCalls int
}

func (c *stubCache) GetSearchResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return c.resp, nil
}

func (c *stubCache) SetSearchResponse(ctx context.Context, req *models.SearchRequest, resp *models.SearchResponse) error {
	c.setCalls++
	return nil
}

func (c *stubCache) GetStaleResponse(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return c.stale, nil
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		QueryTimeout:    time.Second,
		SlowQuery: config.SlowQueryConfig{
			WarningThreshold:  time.Second,
			CriticalThreshold: 2 * time.Second,
		},
	}
}

type fixture struct {
	orch    *Orchestrator
	source  *stubSource
	cache   *stubCache
	tracker *trending.Tracker
	store   *history.Store
}

func newFixture(source *stubSource, respCache *stubCache) *fixture {
	logger := zap.NewNop()
	tracker := trending.NewTracker(logger)
	store := history.NewStore(logger)
	cat := catalog.NewMemorySource(logger)
	suggester := suggest.NewEngine(tracker, cat, store, logger)
	slow := observability.NewSlowSearchDetector(time.Second, 2*time.Second, logger, nil)

	var cache ResponseCache
	if respCache != nil {
		cache = respCache
	}

	return &fixture{
		orch: New(
			source, cache, store, tracker, suggester,
			slow, nil, testSearchConfig(), 5, logger,
		),
		source:  source,
		cache:   respCache,
		tracker: tracker,
		store:   store,
	}
}

func fixtureProducts() []models.Product {
	return []models.Product{
		{ID: "p1", Name: "Red Silk Dress", Category: "Women", Price: 120, Views: 500, Inventory: 3},
		{ID: "p2", Name: "Red Sneakers", Category: "Shoes", Price: 60, Views: 900, Inventory: 5},
		{ID: "p3", Name: "Blue Jeans", Category: "Men", Price: 80, Views: 300, Inventory: 1},
	}
}

// waitFor polls until cond holds or the deadline passes. Tracking side
// effects run on detached goroutines, so assertions on them need to wait.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func TestSearch_Envelope(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	resp, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red", Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Success {
		t.Error("success = false")
	}
	if len(resp.Products) != 2 {
		t.Errorf("products = %d, want 2 (page size)", len(resp.Products))
	}
	if resp.Pagination.Current != 1 || resp.Pagination.Pages != 2 || resp.Pagination.Total != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
	if !resp.Pagination.HasNext || resp.Pagination.HasPrev {
		t.Errorf("hasNext/hasPrev = %v/%v, want true/false", resp.Pagination.HasNext, resp.Pagination.HasPrev)
	}
	if resp.SearchMeta.Query != "red" || resp.SearchMeta.ResultsCount != 3 {
		t.Errorf("searchMeta = %+v", resp.SearchMeta)
	}
	if resp.SearchMeta.Suggestions == nil {
		t.Error("suggestions must be non-nil for the wire format")
	}
}

func TestSearch_PageSizeDefaultsAndClamp(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	req := &models.SearchRequest{Query: "red"}
	if _, err := f.orch.Search(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PageSize != 20 {
		t.Errorf("page size = %d, want default 20", req.PageSize)
	}

	req = &models.SearchRequest{Query: "red", PageSize: 5000}
	if _, err := f.orch.Search(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PageSize != 100 {
		t.Errorf("page size = %d, want clamped to 100", req.PageSize)
	}
}

func TestSearch_TracksTrendingAndHistory(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	_, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "Red Dress", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool {
		rec, ok := f.tracker.Lookup("red dress")
		return ok && rec.Total == 1
	})
	waitFor(t, func() bool {
		p, ok := f.store.Profile("u1")
		return ok && len(p.Recent) == 1 && p.Recent[0].Query == "Red Dress"
	})
}

func TestSearch_EmptyQuerySkipsTracking(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	resp, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "  ", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SearchMeta.ResultsCount != 3 {
		t.Errorf("browse should rank the whole catalog, got %d", resp.SearchMeta.ResultsCount)
	}

	time.Sleep(50 * time.Millisecond)
	if got := f.tracker.Snapshot(); len(got) != 0 {
		t.Errorf("blank query was tracked: %v", got)
	}
	if _, ok := f.store.Profile("u1"); ok {
		t.Error("blank query created history")
	}
}

func TestSearch_AnonymousSkipsHistoryNotTrending(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	if _, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := f.tracker.Lookup("red")
		return ok
	})
	if got := f.store.Snapshot(); len(got) != 0 {
		t.Errorf("anonymous search created history: %v", got)
	}
}

func TestSearch_CacheHit(t *testing.T) {
	cached := &models.SearchResponse{
		Success:  true,
		Products: []models.Product{{ID: "cached"}},
		SearchMeta: models.SearchMeta{
			Query:        "red",
			ResultsCount: 1,
		},
	}
	failing := &stubSource{err: errors.New("must not be called on cache hit")}
	f := newFixture(failing, &stubCache{resp: cached})

	resp, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != "cached" {
		t.Errorf("expected cached response, got %+v", resp.Products)
	}

	// Cache hits still count toward trending.
	waitFor(t, func() bool {
		_, ok := f.tracker.Lookup("red")
		return ok
	})
}

func TestSearch_CachePopulatedOnMiss(t *testing.T) {
	c := &stubCache{}
	f := newFixture(&stubSource{products: fixtureProducts()}, c)

	if _, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.setCalls != 1 {
		t.Errorf("cache set calls = %d, want 1", c.setCalls)
	}
}

func TestSearch_StaleFallbackWhenCatalogFails(t *testing.T) {
	stale := &models.SearchResponse{
		Success:    true,
		Products:   []models.Product{{ID: "stale"}},
		Pagination: models.Pagination{Total: 1, Pages: 1},
	}
	f := newFixture(&stubSource{err: errors.New("catalog down")}, &stubCache{stale: stale})

	resp, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red"})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != "stale" {
		t.Errorf("expected stale products, got %+v", resp.Products)
	}
	if !resp.Success {
		t.Error("stale fallback should still report success")
	}
}

func TestSearch_ErrorWhenCatalogFailsWithoutFallback(t *testing.T) {
	f := newFixture(&stubSource{err: errors.New("catalog down")}, nil)

	if _, err := f.orch.Search(context.Background(), &models.SearchRequest{Query: "red"}); err == nil {
		t.Error("expected error when catalog fails and no stale cache exists")
	}
}

func TestTrackInteraction(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	f.store.RecordSearch("u1", "red dress", models.Filters{}, 5)

	f.orch.TrackInteraction(context.Background(), "u1", "red dress", "p1", "click", 2, 0)
	f.orch.TrackInteraction(context.Background(), "u1", "red dress", "p1", "purchase", 0, 0)
	f.orch.TrackInteraction(context.Background(), "u1", "red dress", "", "view_duration", 0, 1500)
	f.orch.TrackInteraction(context.Background(), "u1", "red dress", "", "filter_change", 0, 0)

	p, _ := f.store.Profile("u1")
	entry := p.Recent[0]
	if len(entry.Clicks) != 1 || entry.Clicks[0].Position != 2 {
		t.Errorf("clicks = %+v", entry.Clicks)
	}
	if len(entry.Purchases) != 1 {
		t.Errorf("purchases = %+v", entry.Purchases)
	}
	if entry.Session.ViewDurationMs != 1500 || entry.Session.Refinements != 1 {
		t.Errorf("session = %+v", entry.Session)
	}
}

func TestTrackInteraction_UnmatchedIsSilentlyDropped(t *testing.T) {
	f := newFixture(&stubSource{products: fixtureProducts()}, nil)

	// Must not panic or create state.
	f.orch.TrackInteraction(context.Background(), "ghost", "never searched", "p1", "click", 0, 0)

	if _, ok := f.store.Profile("ghost"); ok {
		t.Error("unmatched interaction created a profile")
	}
}
