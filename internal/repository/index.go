package repository

import (
	"context"
	"errors"
	"sort"

	"propsearch/internal/model"
)

// ErrUnsupportedClause is returned when a backend cannot express a predicate clause
var ErrUnsupportedClause = errors.New("unsupported predicate clause")

// PropertyIndex is the vector index collaborator. Query must apply the
// predicate before the top-k cut, never after.
type PropertyIndex interface {
	Upsert(ctx context.Context, listings []model.IndexedListing) error
	Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error)
	// Get returns nil, nil when the id is unknown.
	Get(ctx context.Context, id string) (*model.PropertyListing, error)
	Delete(ctx context.Context, ids ...string) error
	Stats(ctx context.Context) (*model.IndexStats, error)
	Close() error
}

// SortCandidates orders hits by similarity, breaking ties on property id so
// every backend returns a reproducible order.
func SortCandidates(candidates []model.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].SemanticScore != candidates[j].SemanticScore {
			return candidates[i].SemanticScore > candidates[j].SemanticScore
		}
		return candidates[i].Listing.ID() < candidates[j].Listing.ID()
	})
}
