package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/models"
	"github.com/onlyshah/fashion-search/internal/search"
)

// MemorySource is an in-memory replica of the searchable catalog, kept
// current by Apply-ing product change events from the sync pipeline.
type MemorySource struct {
	mu       sync.RWMutex
	products map[string]models.Product
	logger   *zap.Logger
}

func NewMemorySource(logger *zap.Logger) *MemorySource {
	return &MemorySource{
		products: make(map[string]models.Product),
		logger:   logger,
	}
}

// Load replaces the replica wholesale, for seeding at startup.
func (m *MemorySource) Load(products []models.Product) {
	next := make(map[string]models.Product, len(products))
	for _, p := range products {
		if p.ID != "" {
			next[p.ID] = p
		}
	}
	m.mu.Lock()
	m.products = next
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.Info("catalog replica loaded", zap.Int("count", len(next)))
	}
}

// Apply folds one change event into the replica.
func (m *MemorySource) Apply(event *models.ProductEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch event.Type {
	case "CREATE", "UPDATE":
		if event.Product != nil && event.Product.ID != "" {
			m.products[event.Product.ID] = *event.Product
		}
	case "DELETE":
		delete(m.products, event.ProductID)
	}
}

func (m *MemorySource) Fetch(ctx context.Context) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

// FetchFiltered applies the predicate while copying, saving the caller a
// second pass over products that can never survive.
func (m *MemorySource) FetchFiltered(ctx context.Context, filters models.Filters) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred := search.BuildPredicate(filters)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Product
	for _, p := range m.products {
		p := p
		if pred(&p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ProductsNamedLike returns up to limit products whose name contains the
// input (case-insensitive), most popular first. Used by the suggestion engine.
func (m *MemorySource) ProductsNamedLike(input string, limit int) []models.Product {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || limit <= 0 {
		return nil
	}
	m.mu.RLock()
	var matched []models.Product
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Name), input) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Views > matched[j].Views
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// BrandsLike returns up to limit distinct brands containing the input.
func (m *MemorySource) BrandsLike(input string, limit int) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || limit <= 0 {
		return nil
	}
	m.mu.RLock()
	seen := make(map[string]string)
	for _, p := range m.products {
		if p.Brand == "" {
			continue
		}
		lower := strings.ToLower(p.Brand)
		if strings.Contains(lower, input) {
			seen[lower] = p.Brand
		}
	}
	m.mu.RUnlock()

	brands := make([]string, 0, len(seen))
	for _, b := range seen {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	if len(brands) > limit {
		brands = brands[:limit]
	}
	return brands
}

// TopInCategory returns up to limit products of one category, most popular
// first. Feeds personalized category suggestions.
func (m *MemorySource) TopInCategory(category string, limit int) []models.Product {
	if category == "" || limit <= 0 {
		return nil
	}
	m.mu.RLock()
	var matched []models.Product
	for _, p := range m.products {
		if p.Category == category {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Views > matched[j].Views
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// Len reports the replica size.
func (m *MemorySource) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}
