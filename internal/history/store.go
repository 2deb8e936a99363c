// Package history keeps per-user search history and the preference
// aggregates learned from it. Each user's profile is guarded by its own lock,
// so concurrent requests for the same user serialize and concurrent requests
// for different users do not contend.
package history

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/observability"
)

const (
	// MaxRecent caps the per-user ring buffer of recent searches.
	MaxRecent = 100
	// MaxPopular caps the per-user popular-query list.
	MaxPopular = 20
	// CorrelationWindow bounds how old a search can be and still receive a
	// click or purchase attribution.
	CorrelationWindow = time.Hour
	// topPersonalQueries is how many popular queries feed personalization.
	topPersonalQueries = 5
)

// Clear scopes accepted by ClearHistory.
const (
	ScopeAll     = "all"
	ScopeRecent  = "recent"
	ScopePopular = "popular"
)

type userProfile struct {
	mu sync.Mutex
	p  models.UserProfile
}

// Store holds every known user profile. Profiles are created lazily on first
// search and mutated only through Store methods.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*userProfile
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		profiles: make(map[string]*userProfile),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Store) profileFor(userID string, create bool) *userProfile {
	s.mu.RLock()
	up, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok || !create {
		return up
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if up, ok = s.profiles[userID]; ok {
		return up
	}
	up = &userProfile{p: models.UserProfile{UserID: userID}}
	s.profiles[userID] = up
	return up
}

// RecordSearch prepends a history entry, updates the popular-query list, and
// folds the filters into the user's learned preferences.
func (s *Store) RecordSearch(userID, query string, filters models.Filters, resultCount int64) {
	if userID == "" {
		return
	}
	now := s.now().UTC()
	up := s.profileFor(userID, true)

	up.mu.Lock()
	defer up.mu.Unlock()
	p := &up.p

	entry := models.HistoryEntry{
		Query:       query,
		Filters:     filters,
		ResultCount: resultCount,
		SearchedAt:  now,
	}
	p.Recent = append([]models.HistoryEntry{entry}, p.Recent...)
	if len(p.Recent) > MaxRecent {
		p.Recent = p.Recent[:MaxRecent]
	}

	if q := strings.TrimSpace(query); q != "" {
		updatePopular(p, q, resultCount, now)
	}

	if filters.Category != "" {
		bumpPreference(&p.Categories, filters.Category)
	}
	if filters.Brand != "" {
		bumpPreference(&p.Brands, filters.Brand)
	}
	if filters.MinPrice != nil || filters.MaxPrice != nil {
		foldPriceRange(p, filters.MinPrice, filters.MaxPrice)
	}

	p.UpdatedAt = now
	observability.HistoryUpdatesTotal.WithLabelValues("search").Inc()
}

func updatePopular(p *models.UserProfile, query string, resultCount int64, now time.Time) {
	for i := range p.Popular {
		if p.Popular[i].Query == query {
			pq := &p.Popular[i]
			pq.Count++
			pq.LastSearched = now
			pq.AvgResults = (pq.AvgResults + float64(resultCount)) / 2
			sortPopular(p)
			return
		}
	}
	p.Popular = append(p.Popular, models.PopularQuery{
		Query:        query,
		Count:        1,
		LastSearched: now,
		AvgResults:   float64(resultCount),
	})
	sortPopular(p)
	if len(p.Popular) > MaxPopular {
		p.Popular = p.Popular[:MaxPopular]
	}
}

func sortPopular(p *models.UserProfile) {
	sort.SliceStable(p.Popular, func(i, j int) bool {
		return p.Popular[i].Count > p.Popular[j].Count
	})
}

func bumpPreference(prefs *[]models.PreferenceScore, name string) {
	for i := range *prefs {
		if (*prefs)[i].Name == name {
			(*prefs)[i].Score++
			(*prefs)[i].Searches++
			return
		}
	}
	*prefs = append(*prefs, models.PreferenceScore{Name: name, Score: 1, Searches: 1})
}

// foldPriceRange smooths each observed bound as (old+new)/2. The formula is
// what stored profiles were trained with; keep it.
func foldPriceRange(p *models.UserProfile, min, max *float64) {
	if p.PriceRange == nil {
		pr := &models.PriceRangePreference{}
		if min != nil {
			pr.Min = *min
		}
		if max != nil {
			pr.Max = *max
		}
		pr.Samples = 1
		p.PriceRange = pr
		return
	}
	if min != nil {
		p.PriceRange.Min = (p.PriceRange.Min + *min) / 2
	}
	if max != nil {
		p.PriceRange.Max = (p.PriceRange.Max + *max) / 2
	}
	p.PriceRange.Samples++
}

// RecordInteraction attributes a click or purchase back to the most recent
// matching search within the correlation window. No match is not an error;
// correlation is best-effort and the interaction is dropped.
func (s *Store) RecordInteraction(userID, query, productID, action string, position int) {
	up := s.profileFor(userID, false)
	if up == nil {
		return
	}
	now := s.now().UTC()

	up.mu.Lock()
	defer up.mu.Unlock()

	entry := findRecentEntry(&up.p, query, now)
	if entry == nil {
		return
	}

	switch action {
	case "click":
		entry.Clicks = append(entry.Clicks, models.ClickEvent{
			ProductID: productID,
			Position:  position,
			ClickedAt: now,
		})
	case "purchase":
		entry.Purchases = append(entry.Purchases, models.Purchase{
			ProductID:   productID,
			PurchasedAt: now,
		})
	default:
		return
	}
	observability.HistoryUpdatesTotal.WithLabelValues(action).Inc()
}

// RecordSession folds client-reported session signals into the most recent
// matching search entry.
func (s *Store) RecordSession(userID, query string, viewDurationMs int64, refinement bool) {
	up := s.profileFor(userID, false)
	if up == nil {
		return
	}
	now := s.now().UTC()

	up.mu.Lock()
	defer up.mu.Unlock()

	entry := findRecentEntry(&up.p, query, now)
	if entry == nil {
		return
	}
	if viewDurationMs > 0 {
		entry.Session.ViewDurationMs = viewDurationMs
	}
	if refinement {
		entry.Session.Refinements++
	}
	observability.HistoryUpdatesTotal.WithLabelValues("session").Inc()
}

// findRecentEntry returns the newest entry matching query inside the
// correlation window. Recent is newest-first, so the first hit wins.
func findRecentEntry(p *models.UserProfile, query string, now time.Time) *models.HistoryEntry {
	for i := range p.Recent {
		e := &p.Recent[i]
		if e.Query != query {
			continue
		}
		if now.Sub(e.SearchedAt) > CorrelationWindow {
			return nil
		}
		return e
	}
	return nil
}

// ClearHistory resets the requested scope of the user's profile. Preferences
// and counters are reset only by the full clear.
func (s *Store) ClearHistory(userID, scope string) {
	up := s.profileFor(userID, false)
	if up == nil {
		return
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	p := &up.p

	switch scope {
	case ScopeRecent:
		p.Recent = nil
	case ScopePopular:
		p.Popular = nil
	default: // all
		p.Recent = nil
		p.Popular = nil
		p.Categories = nil
		p.Brands = nil
		p.PriceRange = nil
	}
	p.UpdatedAt = s.now().UTC()

	if s.logger != nil {
		s.logger.Info("search history cleared",
			zap.String("user_id", userID),
			zap.String("scope", scope),
		)
	}
}

// Profile returns a deep-enough copy of the user's profile for read-only use.
// The second return is false when the user has never searched.
func (s *Store) Profile(userID string) (models.UserProfile, bool) {
	up := s.profileFor(userID, false)
	if up == nil {
		return models.UserProfile{}, false
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	return cloneProfile(&up.p), true
}

// TopQueries returns the user's popular queries, capped at limit.
func (s *Store) TopQueries(userID string, limit int) []models.PopularQuery {
	p, ok := s.Profile(userID)
	if !ok || limit <= 0 {
		return nil
	}
	if len(p.Popular) > limit {
		p.Popular = p.Popular[:limit]
	}
	return p.Popular
}

// TopCategories returns the user's preferred categories by learned score.
func (s *Store) TopCategories(userID string, limit int) []models.PreferenceScore {
	p, ok := s.Profile(userID)
	if !ok || limit <= 0 {
		return nil
	}
	prefs := p.Categories
	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].Score > prefs[j].Score
	})
	if len(prefs) > limit {
		prefs = prefs[:limit]
	}
	return prefs
}

// Analytics aggregates the user's history into the overview the analytics
// endpoint serves: explicit typed aggregation, no query documents.
func (s *Store) Analytics(userID string) models.AnalyticsOverview {
	p, ok := s.Profile(userID)
	if !ok {
		return models.AnalyticsOverview{}
	}

	var overview models.AnalyticsOverview
	unique := make(map[string]struct{})
	var resultSum int64
	var searchesWithClicks, searchesWithPurchases int64

	for i := range p.Recent {
		e := &p.Recent[i]
		overview.TotalSearches++
		unique[strings.ToLower(e.Query)] = struct{}{}
		resultSum += e.ResultCount
		if len(e.Clicks) > 0 {
			searchesWithClicks++
		}
		if len(e.Purchases) > 0 {
			searchesWithPurchases++
		}
	}

	overview.UniqueQueries = int64(len(unique))
	if overview.TotalSearches > 0 {
		overview.AverageResults = float64(resultSum) / float64(overview.TotalSearches)
		overview.ClickThroughRate = float64(searchesWithClicks) / float64(overview.TotalSearches)
		overview.ConversionRate = float64(searchesWithPurchases) / float64(overview.TotalSearches)
	}
	return overview
}

// Snapshot copies every profile, for persistence.
func (s *Store) Snapshot() []models.UserProfile {
	s.mu.RLock()
	ups := make([]*userProfile, 0, len(s.profiles))
	for _, up := range s.profiles {
		ups = append(ups, up)
	}
	s.mu.RUnlock()

	out := make([]models.UserProfile, 0, len(ups))
	for _, up := range ups {
		up.mu.Lock()
		out = append(out, cloneProfile(&up.p))
		up.mu.Unlock()
	}
	return out
}

// Restore loads persisted profiles. Used once at startup.
func (s *Store) Restore(profiles []models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if p.UserID == "" {
			continue
		}
		s.profiles[p.UserID] = &userProfile{p: p}
	}
	if len(profiles) > 0 && s.logger != nil {
		s.logger.Info("user profiles restored", zap.Int("count", len(profiles)))
	}
}

func cloneProfile(p *models.UserProfile) models.UserProfile {
	out := *p
	out.Recent = make([]models.HistoryEntry, len(p.Recent))
	copy(out.Recent, p.Recent)
	for i := range out.Recent {
		if n := len(p.Recent[i].Clicks); n > 0 {
			out.Recent[i].Clicks = make([]models.ClickEvent, n)
			copy(out.Recent[i].Clicks, p.Recent[i].Clicks)
		}
		if n := len(p.Recent[i].Purchases); n > 0 {
			out.Recent[i].Purchases = make([]models.Purchase, n)
			copy(out.Recent[i].Purchases, p.Recent[i].Purchases)
		}
	}
	out.Popular = make([]models.PopularQuery, len(p.Popular))
	copy(out.Popular, p.Popular)
	out.Categories = make([]models.PreferenceScore, len(p.Categories))
	copy(out.Categories, p.Categories)
	out.Brands = make([]models.PreferenceScore, len(p.Brands))
	copy(out.Brands, p.Brands)
	if p.PriceRange != nil {
		pr := *p.PriceRange
		out.PriceRange = &pr
	}
	return out
}
