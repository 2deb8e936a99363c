// Package catalog provides access to the searchable product set. The search
// core treats the catalog as a read-only collaborator: candidates come from
// an in-memory replica kept current by the change-event pipeline, or from an
// Elasticsearch-backed store when one is configured.
package catalog

import (
	"context"

	"github.com/onlyshah/fashion-search/internal/models"
)

// Source yields search candidates. Fetch returns the full searchable set;
// FetchFiltered may push the filter set down to the backing store, but
// callers re-apply the predicate so a Source is free to over-return.
type Source interface {
	Fetch(ctx context.Context) ([]models.Product, error)
	FetchFiltered(ctx context.Context, filters models.Filters) ([]models.Product, error)
}
