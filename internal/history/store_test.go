package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/models"
)

func newTestStore() *Store {
	return NewStore(zap.NewNop())
}

func floatPtr(f float64) *float64 { return &f }

func TestRecordSearch_NewestFirst(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "first", models.Filters{}, 10)
	s.RecordSearch("u1", "second", models.Filters{}, 20)

	p, ok := s.Profile("u1")
	if !ok {
		t.Fatal("profile not found")
	}
	if len(p.Recent) != 2 {
		t.Fatalf("recent len = %d, want 2", len(p.Recent))
	}
	if p.Recent[0].Query != "second" || p.Recent[1].Query != "first" {
		t.Errorf("order = [%s, %s], want newest first", p.Recent[0].Query, p.Recent[1].Query)
	}
	if p.Recent[0].ResultCount != 20 {
		t.Errorf("result count = %d, want 20", p.Recent[0].ResultCount)
	}
}

func TestRecordSearch_RingBufferCap(t *testing.T) {
	s := newTestStore()

	for i := 0; i < MaxRecent+25; i++ {
		s.RecordSearch("u1", fmt.Sprintf("query-%d", i), models.Filters{}, 1)
	}

	p, _ := s.Profile("u1")
	if len(p.Recent) != MaxRecent {
		t.Fatalf("recent len = %d, want %d", len(p.Recent), MaxRecent)
	}
	// Newest entry is the last recorded; the oldest 25 fell off.
	if p.Recent[0].Query != fmt.Sprintf("query-%d", MaxRecent+24) {
		t.Errorf("newest = %s", p.Recent[0].Query)
	}
	if p.Recent[MaxRecent-1].Query != "query-25" {
		t.Errorf("oldest kept = %s, want query-25", p.Recent[MaxRecent-1].Query)
	}
}

func TestRecordSearch_PopularRunningAverage(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{}, 10)
	s.RecordSearch("u1", "dress", models.Filters{}, 20)
	s.RecordSearch("u1", "dress", models.Filters{}, 40)

	p, _ := s.Profile("u1")
	if len(p.Popular) != 1 {
		t.Fatalf("popular len = %d, want 1", len(p.Popular))
	}
	pq := p.Popular[0]
	if pq.Count != 3 {
		t.Errorf("count = %d, want 3", pq.Count)
	}
	// (10+20)/2 = 15; (15+40)/2 = 27.5. Smoothing, not a true mean.
	if pq.AvgResults != 27.5 {
		t.Errorf("avg results = %v, want 27.5", pq.AvgResults)
	}
}

func TestRecordSearch_PopularSortedAndCapped(t *testing.T) {
	s := newTestStore()

	for i := 0; i < MaxPopular+5; i++ {
		q := fmt.Sprintf("query-%d", i)
		// query-i searched once; one dominant query searched repeatedly.
		s.RecordSearch("u1", q, models.Filters{}, 1)
	}
	for i := 0; i < 10; i++ {
		s.RecordSearch("u1", "dominant", models.Filters{}, 1)
	}

	p, _ := s.Profile("u1")
	if len(p.Popular) > MaxPopular {
		t.Fatalf("popular len = %d, want <= %d", len(p.Popular), MaxPopular)
	}
	if p.Popular[0].Query != "dominant" {
		t.Errorf("top query = %s, want dominant", p.Popular[0].Query)
	}
	for i := 1; i < len(p.Popular); i++ {
		if p.Popular[i-1].Count < p.Popular[i].Count {
			t.Errorf("popular not sorted at %d", i)
		}
	}
}

func TestRecordSearch_BlankQuerySkipsPopular(t *testing.T) {
	s := newTestStore()
	s.RecordSearch("u1", "   ", models.Filters{Category: "Women"}, 5)

	p, _ := s.Profile("u1")
	if len(p.Popular) != 0 {
		t.Errorf("popular len = %d, want 0 for blank query", len(p.Popular))
	}
	// The browse itself is still recorded and preferences still learn.
	if len(p.Recent) != 1 {
		t.Errorf("recent len = %d, want 1", len(p.Recent))
	}
	if len(p.Categories) != 1 || p.Categories[0].Name != "Women" {
		t.Errorf("categories = %v, want Women learned", p.Categories)
	}
}

func TestRecordSearch_PreferenceLearning(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{Category: "Women", Brand: "Maison"}, 5)
	s.RecordSearch("u1", "dress", models.Filters{Category: "Women"}, 5)
	s.RecordSearch("u1", "boots", models.Filters{Category: "Shoes"}, 5)

	p, _ := s.Profile("u1")
	if len(p.Categories) != 2 {
		t.Fatalf("categories len = %d, want 2", len(p.Categories))
	}
	byName := map[string]models.PreferenceScore{}
	for _, c := range p.Categories {
		byName[c.Name] = c
	}
	if byName["Women"].Score != 2 || byName["Women"].Searches != 2 {
		t.Errorf("Women pref = %+v, want score 2", byName["Women"])
	}
	if byName["Shoes"].Score != 1 {
		t.Errorf("Shoes pref = %+v, want score 1", byName["Shoes"])
	}
	if len(p.Brands) != 1 || p.Brands[0].Name != "Maison" {
		t.Errorf("brands = %v", p.Brands)
	}
}

func TestRecordSearch_PriceRangeSmoothing(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{MinPrice: floatPtr(100), MaxPrice: floatPtr(200)}, 5)
	s.RecordSearch("u1", "dress", models.Filters{MinPrice: floatPtr(50), MaxPrice: floatPtr(100)}, 5)

	p, _ := s.Profile("u1")
	if p.PriceRange == nil {
		t.Fatal("price range not learned")
	}
	if p.PriceRange.Min != 75 { // (100+50)/2
		t.Errorf("min = %v, want 75", p.PriceRange.Min)
	}
	if p.PriceRange.Max != 150 { // (200+100)/2
		t.Errorf("max = %v, want 150", p.PriceRange.Max)
	}
	if p.PriceRange.Samples != 2 {
		t.Errorf("samples = %d, want 2", p.PriceRange.Samples)
	}
}

func TestRecordSearch_EmptyUserIgnored(t *testing.T) {
	s := newTestStore()
	s.RecordSearch("", "dress", models.Filters{}, 5)
	if got := s.Snapshot(); len(got) != 0 {
		t.Errorf("expected no profiles, got %d", len(got))
	}
}

func TestRecordInteraction_CorrelatesWithinWindow(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{}, 5)
	s.RecordInteraction("u1", "dress", "p42", "click", 3)
	s.RecordInteraction("u1", "dress", "p42", "purchase", 0)

	p, _ := s.Profile("u1")
	entry := p.Recent[0]
	if len(entry.Clicks) != 1 {
		t.Fatalf("clicks = %d, want 1", len(entry.Clicks))
	}
	if entry.Clicks[0].ProductID != "p42" || entry.Clicks[0].Position != 3 {
		t.Errorf("click = %+v", entry.Clicks[0])
	}
	if len(entry.Purchases) != 1 || entry.Purchases[0].ProductID != "p42" {
		t.Errorf("purchases = %v", entry.Purchases)
	}
}

func TestRecordInteraction_OutsideWindowDropped(t *testing.T) {
	s := newTestStore()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.RecordSearch("u1", "dress", models.Filters{}, 5)

	clock = clock.Add(CorrelationWindow + time.Minute)
	s.RecordInteraction("u1", "dress", "p42", "click", 0)

	p, _ := s.Profile("u1")
	if len(p.Recent[0].Clicks) != 0 {
		t.Error("interaction outside the window was attributed")
	}
}

func TestRecordInteraction_UnknownQueryOrUserDropped(t *testing.T) {
	s := newTestStore()
	s.RecordSearch("u1", "dress", models.Filters{}, 5)

	// Neither of these should panic or create state.
	s.RecordInteraction("u1", "never searched", "p1", "click", 0)
	s.RecordInteraction("ghost", "dress", "p1", "click", 0)

	p, _ := s.Profile("u1")
	if len(p.Recent[0].Clicks) != 0 {
		t.Error("mismatched interaction was attributed")
	}
	if _, ok := s.Profile("ghost"); ok {
		t.Error("interaction created a profile")
	}
}

func TestRecordInteraction_MatchesNewestEntry(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{}, 5)
	s.RecordSearch("u1", "boots", models.Filters{}, 5)
	s.RecordSearch("u1", "dress", models.Filters{}, 8)

	s.RecordInteraction("u1", "dress", "p1", "click", 1)

	p, _ := s.Profile("u1")
	if len(p.Recent[0].Clicks) != 1 {
		t.Error("click should land on the newest matching search")
	}
	if len(p.Recent[2].Clicks) != 0 {
		t.Error("click must not land on the older matching search")
	}
}

func TestRecordSession(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{}, 5)
	s.RecordSession("u1", "dress", 4200, false)
	s.RecordSession("u1", "dress", 0, true)
	s.RecordSession("u1", "dress", 0, true)

	p, _ := s.Profile("u1")
	session := p.Recent[0].Session
	if session.ViewDurationMs != 4200 {
		t.Errorf("view duration = %d, want 4200", session.ViewDurationMs)
	}
	if session.Refinements != 2 {
		t.Errorf("refinements = %d, want 2", session.Refinements)
	}
}

func TestClearHistory_Scopes(t *testing.T) {
	seed := func() *Store {
		s := newTestStore()
		s.RecordSearch("u1", "dress", models.Filters{Category: "Women", MinPrice: floatPtr(50)}, 5)
		return s
	}

	t.Run("recent", func(t *testing.T) {
		s := seed()
		s.ClearHistory("u1", ScopeRecent)
		p, _ := s.Profile("u1")
		if len(p.Recent) != 0 {
			t.Error("recent not cleared")
		}
		if len(p.Popular) == 0 || len(p.Categories) == 0 {
			t.Error("recent scope must not touch popular or preferences")
		}
	})

	t.Run("popular", func(t *testing.T) {
		s := seed()
		s.ClearHistory("u1", ScopePopular)
		p, _ := s.Profile("u1")
		if len(p.Popular) != 0 {
			t.Error("popular not cleared")
		}
		if len(p.Recent) == 0 {
			t.Error("popular scope must not touch recent")
		}
	})

	t.Run("all", func(t *testing.T) {
		s := seed()
		s.ClearHistory("u1", ScopeAll)
		p, _ := s.Profile("u1")
		if len(p.Recent) != 0 || len(p.Popular) != 0 || len(p.Categories) != 0 || p.PriceRange != nil {
			t.Error("full clear left state behind")
		}
	})
}

func TestAnalytics(t *testing.T) {
	s := newTestStore()

	s.RecordSearch("u1", "dress", models.Filters{}, 10)
	s.RecordSearch("u1", "Dress", models.Filters{}, 20) // same query, different casing
	s.RecordSearch("u1", "boots", models.Filters{}, 30)
	s.RecordSearch("u1", "jacket", models.Filters{}, 0)

	s.RecordInteraction("u1", "boots", "p1", "click", 1)
	s.RecordInteraction("u1", "boots", "p1", "purchase", 0)

	got := s.Analytics("u1")
	if got.TotalSearches != 4 {
		t.Errorf("total = %d, want 4", got.TotalSearches)
	}
	if got.UniqueQueries != 3 {
		t.Errorf("unique = %d, want 3 (case-insensitive)", got.UniqueQueries)
	}
	if got.AverageResults != 15 { // (10+20+30+0)/4
		t.Errorf("avg results = %v, want 15", got.AverageResults)
	}
	if got.ClickThroughRate != 0.25 {
		t.Errorf("ctr = %v, want 0.25", got.ClickThroughRate)
	}
	if got.ConversionRate != 0.25 {
		t.Errorf("conversion = %v, want 0.25", got.ConversionRate)
	}
}

func TestAnalytics_UnknownUser(t *testing.T) {
	s := newTestStore()
	got := s.Analytics("nobody")
	if got.TotalSearches != 0 || got.UniqueQueries != 0 {
		t.Errorf("expected zero overview, got %+v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestStore()
	s.RecordSearch("u1", "dress", models.Filters{Category: "Women"}, 5)
	s.RecordSearch("u2", "boots", models.Filters{}, 2)
	s.RecordInteraction("u1", "dress", "p1", "click", 0)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}

	restored := newTestStore()
	restored.Restore(snap)

	p, ok := restored.Profile("u1")
	if !ok {
		t.Fatal("restored profile missing")
	}
	if len(p.Recent) != 1 || len(p.Recent[0].Clicks) != 1 {
		t.Errorf("restored profile incomplete: %+v", p)
	}
	if len(p.Categories) != 1 {
		t.Errorf("restored categories = %v", p.Categories)
	}
}

func TestProfile_ReturnsIsolatedCopy(t *testing.T) {
	s := newTestStore()
	s.RecordSearch("u1", "dress", models.Filters{}, 5)

	p, _ := s.Profile("u1")
	p.Recent[0].Query = "mutated"
	p.Popular[0].Count = 999

	fresh, _ := s.Profile("u1")
	if fresh.Recent[0].Query != "dress" || fresh.Popular[0].Count != 1 {
		t.Error("Profile returned shared state")
	}
}

func TestConcurrentUpdatesSameUser(t *testing.T) {
	s := newTestStore()

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				s.RecordSearch("u1", "dress", models.Filters{Category: "Women"}, 5)
			}
		}()
	}
	wg.Wait()

	p, _ := s.Profile("u1")
	if len(p.Recent) != MaxRecent {
		t.Errorf("recent len = %d, want %d", len(p.Recent), MaxRecent)
	}
	if p.Popular[0].Count != goroutines*perGoroutine {
		t.Errorf("popular count = %d, want %d (lost updates)", p.Popular[0].Count, goroutines*perGoroutine)
	}
	if p.Categories[0].Score != goroutines*perGoroutine {
		t.Errorf("category score = %v, want %v", p.Categories[0].Score, goroutines*perGoroutine)
	}
}
