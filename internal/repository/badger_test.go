package repository

import (
	"context"
	"testing"

	"propsearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerRepository {
	t.Helper()
	repo, err := NewBadgerRepository("", true)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func indexed(id, city string, price int64, amenities []string, vector ...float32) model.IndexedListing {
	return model.IndexedListing{
		Listing: model.PropertyListing{
			Title: id,
			Metadata: model.PropertyMetadata{
				PropertyID:   id,
				PropertyType: model.PropertyTypeCondo,
				Status:       model.StatusActive,
				Price:        price,
				Bedrooms:     2,
				Bathrooms:    1,
				City:         city,
				State:        "FL",
				Amenities:    amenities,
			},
		},
		Vector: vector,
	}
}

func seedBadger(t *testing.T, repo *BadgerRepository) {
	t.Helper()
	sold := indexed("PROP_004", "Miami", 300000, nil, 1, 0)
	sold.Listing.Metadata.Status = model.StatusSold
	require.NoError(t, repo.Upsert(context.Background(), []model.IndexedListing{
		indexed("PROP_001", "Miami", 450000, []string{"pool", "gym"}, 1, 0),
		indexed("PROP_002", "Miami", 650000, []string{"pool"}, 0.8, 0.6),
		indexed("PROP_003", "Austin", 350000, nil, 0.6, 0.8),
		sold,
	}))
}

func TestBadgerQueryAppliesPredicateBeforeTopK(t *testing.T) {
	repo := newTestBadger(t)
	seedBadger(t, repo)

	tests := []struct {
		name   string
		filter *model.QueryFilter
		topK   int
		want   []string
	}{
		{name: "no filter excludes inactive", topK: 10, want: []string{"PROP_001", "PROP_002", "PROP_003"}},
		{name: "top k cut", topK: 1, want: []string{"PROP_001"}},
		{name: "city is case insensitive", filter: &model.QueryFilter{City: model.Ptr("austin")}, topK: 1, want: []string{"PROP_003"}},
		{name: "price ceiling", filter: &model.QueryFilter{MaxPrice: model.Ptr(int64(500000))}, topK: 10, want: []string{"PROP_001", "PROP_003"}},
		{name: "amenities", filter: &model.QueryFilter{RequiredAmenities: []string{"gym", "pool"}}, topK: 10, want: []string{"PROP_001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Query(context.Background(), model.VectorQuery{
				Vector:    []float32{1, 0},
				Predicate: model.CompilePredicate(tt.filter),
				TopK:      tt.topK,
			})
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, c := range got {
				ids[i] = c.Listing.ID()
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestBadgerQueryMinScore(t *testing.T) {
	repo := newTestBadger(t)
	seedBadger(t, repo)

	got, err := repo.Query(context.Background(), model.VectorQuery{
		Vector:    []float32{1, 0},
		Predicate: model.CompilePredicate(nil),
		TopK:      10,
		MinScore:  0.7,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0].SemanticScore, 1e-6)
	assert.InDelta(t, 0.8, got[1].SemanticScore, 1e-6)
}

func TestBadgerQueryDimensionMismatch(t *testing.T) {
	repo := newTestBadger(t)
	seedBadger(t, repo)

	_, err := repo.Query(context.Background(), model.VectorQuery{
		Vector:    []float32{1, 0, 0},
		Predicate: model.CompilePredicate(nil),
		TopK:      3,
	})
	assert.Error(t, err)
}

func TestBadgerGetDeleteStats(t *testing.T) {
	repo := newTestBadger(t)
	seedBadger(t, repo)
	ctx := context.Background()

	listing, err := repo.Get(ctx, "PROP_002")
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, int64(650000), listing.Metadata.Price)
	assert.Equal(t, model.JSONArray{"pool"}, listing.Metadata.Amenities)

	missing, err := repo.Get(ctx, "PROP_999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalProperties)

	require.NoError(t, repo.Delete(ctx, "PROP_002", "PROP_999"))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalProperties)
}
