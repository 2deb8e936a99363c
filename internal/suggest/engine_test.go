package suggest

import (
	"testing"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/catalog"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/trending"
)

func newTestEngine() (*Engine, *trending.Tracker, *catalog.MemorySource, *history.Store) {
	tracker := trending.NewTracker(zap.NewNop())
	cat := catalog.NewMemorySource(zap.NewNop())
	hist := history.NewStore(zap.NewNop())
	return NewEngine(tracker, cat, hist, zap.NewNop()), tracker, cat, hist
}

func seedCatalog(cat *catalog.MemorySource) {
	cat.Load([]models.Product{
		{ID: "p1", Name: "Red Silk Dress", Brand: "Maison Velvet", Category: "Women", Views: 500},
		{ID: "p2", Name: "Red Sneakers", Brand: "Stride", Category: "Shoes", Views: 900},
		{ID: "p3", Name: "Red Scarf", Brand: "Redline", Category: "Accessories", Views: 200},
		{ID: "p4", Name: "Blue Jeans", Brand: "Rivet", Category: "Men", Views: 300},
	})
}

func texts(suggestions []models.Suggestion) []string {
	out := make([]string, len(suggestions))
	for i := range suggestions {
		out[i] = suggestions[i].Text
	}
	return out
}

func TestSuggest_ShortInputFallsBackToTrending(t *testing.T) {
	e, tracker, _, _ := newTestEngine()
	tracker.RecordOccurrence("summer dress")
	tracker.RecordOccurrence("summer dress")
	tracker.RecordOccurrence("boots")

	for _, input := range []string{"", " ", "a"} {
		got := e.Suggest(input, 10)
		if len(got) != 2 {
			t.Fatalf("input %q: got %d suggestions, want 2", input, len(got))
		}
		if got[0].Text != "summer dress" || got[0].Type != models.SuggestionTrending {
			t.Errorf("input %q: first = %+v, want trending summer dress", input, got[0])
		}
	}
}

func TestSuggest_ComposesSources(t *testing.T) {
	e, tracker, cat, _ := newTestEngine()
	seedCatalog(cat)
	tracker.RecordOccurrence("red dress")
	tracker.RecordOccurrence("red dress")
	tracker.RecordOccurrence("red shoes")

	got := e.Suggest("red", 25)

	byType := map[string][]string{}
	for _, s := range got {
		byType[s.Type] = append(byType[s.Type], s.Text)
	}

	if len(byType[models.SuggestionCompletion]) != 2 {
		t.Errorf("completions = %v, want 2", byType[models.SuggestionCompletion])
	}
	if byType[models.SuggestionCompletion][0] != "red dress" {
		t.Errorf("completions not count-ordered: %v", byType[models.SuggestionCompletion])
	}
	if len(byType[models.SuggestionProduct]) != 3 {
		t.Errorf("product matches = %v, want 3 (cap)", byType[models.SuggestionProduct])
	}
	if byType[models.SuggestionProduct][0] != "Red Sneakers" {
		t.Errorf("products not views-ordered: %v", byType[models.SuggestionProduct])
	}
	if len(byType[models.SuggestionBrand]) != 1 || byType[models.SuggestionBrand][0] != "Redline" {
		t.Errorf("brand matches = %v, want [Redline]", byType[models.SuggestionBrand])
	}
}

func TestSuggest_DeduplicatesKeepingFirst(t *testing.T) {
	e, tracker, cat, _ := newTestEngine()
	// Trending completion and product share the text "red dress".
	cat.Load([]models.Product{
		{ID: "p1", Name: "Red Dress", Views: 100},
	})
	tracker.RecordOccurrence("red dress")

	got := e.Suggest("red", 10)
	count := 0
	for _, s := range got {
		if s.Text == "red dress" || s.Text == "Red Dress" {
			count++
			if s.Type != models.SuggestionCompletion {
				t.Errorf("kept suggestion type = %s, want first occurrence (completion)", s.Type)
			}
		}
	}
	if count != 1 {
		t.Errorf("duplicate text appeared %d times, want 1", count)
	}
}

func TestSuggest_RespectsLimit(t *testing.T) {
	e, tracker, cat, _ := newTestEngine()
	seedCatalog(cat)
	for _, q := range []string{"red dress", "red shoes", "red scarf", "red coat", "red hat"} {
		tracker.RecordOccurrence(q)
	}

	got := e.Suggest("red", 3)
	if len(got) != 3 {
		t.Errorf("got %d suggestions, want 3", len(got))
	}

	if got := e.Suggest("red", 0); len(got) != 0 {
		t.Errorf("limit 0 returned %d suggestions", len(got))
	}
}

func TestPersonalized_NoHistoryFallsBackToTrending(t *testing.T) {
	e, tracker, _, _ := newTestEngine()
	tracker.RecordOccurrence("trending query")

	got := e.Personalized("stranger", 10)
	if len(got) != 1 || got[0].Type != models.SuggestionTrending {
		t.Errorf("got %+v, want trending fallback", got)
	}

	got = e.Personalized("", 10)
	if len(got) != 1 || got[0].Type != models.SuggestionTrending {
		t.Errorf("anonymous user: got %+v, want trending fallback", got)
	}
}

func TestPersonalized_UsesHistoryAndCategories(t *testing.T) {
	e, _, cat, hist := newTestEngine()
	seedCatalog(cat)

	hist.RecordSearch("u1", "silk dress", models.Filters{Category: "Women"}, 5)
	hist.RecordSearch("u1", "silk dress", models.Filters{Category: "Women"}, 7)
	hist.RecordSearch("u1", "sneakers", models.Filters{Category: "Shoes"}, 3)

	got := e.Personalized("u1", 25)

	if len(got) == 0 {
		t.Fatal("no suggestions")
	}
	if got[0].Text != "silk dress" || got[0].Type != models.SuggestionPersonal {
		t.Errorf("first = %+v, want personal silk dress", got[0])
	}

	hasCategoryProduct := false
	for _, s := range got {
		if s.Type == models.SuggestionCategory {
			hasCategoryProduct = true
		}
	}
	if !hasCategoryProduct {
		t.Errorf("no category products in %v", texts(got))
	}
}

func TestPersonalized_RespectsLimit(t *testing.T) {
	e, _, cat, hist := newTestEngine()
	seedCatalog(cat)
	for _, q := range []string{"a1", "a2", "a3", "a4", "a5"} {
		hist.RecordSearch("u1", q, models.Filters{Category: "Women"}, 1)
	}

	got := e.Personalized("u1", 2)
	if len(got) != 2 {
		t.Errorf("got %d suggestions, want 2", len(got))
	}
}
