package service

import (
	"context"
	"errors"
	"testing"

	"propsearch/internal/model"
	"propsearch/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(t *testing.T, embedder EmbeddingClient) (*Indexer, *repository.BadgerRepository) {
	t.Helper()
	repo, err := repository.NewBadgerRepository("", true)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	indexer, err := NewIndexer(repo, embedder, 2, 3, testDimensions)
	require.NoError(t, err)
	t.Cleanup(indexer.Release)
	return indexer, repo
}

func TestIndexerUpsert(t *testing.T) {
	indexer, _ := newTestIndexer(t, &keywordEmbedder{})
	ctx := context.Background()

	lower := testListing("I1", "Condos", "  Miami ", 450000, 2, []string{"Swimming Pool", "sauna"}, "Bright condo")
	lower.Metadata.State = "fl"
	free := testListing("I4", model.PropertyTypeHouse, "Tampa", 0, 2, nil, "Free house")

	resp := indexer.Upsert(ctx, []model.PropertyListing{
		lower,
		testListing("I2", model.PropertyTypeHouse, "Tampa", 300000, 3, nil, "Family house"),
		testListing("I3", model.PropertyTypeStudio, "Tampa", 150000, 0, nil, "Cozy studio"),
		free,
		testListing("I2", model.PropertyTypeHouse, "Tampa", 310000, 3, nil, "Family house again"),
	})

	assert.Equal(t, 3, resp.Indexed)
	assert.Equal(t, 2, resp.Failed)
	ids := make([]string, len(resp.Errors))
	for i, e := range resp.Errors {
		ids[i] = e.PropertyID
	}
	assert.ElementsMatch(t, []string{"I4", "I2"}, ids)

	got, err := indexer.Get(ctx, "I1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PropertyTypeCondo, got.Metadata.PropertyType)
	assert.Equal(t, "Miami", got.Metadata.City)
	assert.Equal(t, "FL", got.Metadata.State)
	assert.Equal(t, model.StatusActive, got.Metadata.Status)
	assert.Equal(t, model.JSONArray{"pool"}, got.Metadata.Amenities)
	assert.False(t, got.CreatedAt.IsZero())

	first, err := indexer.Get(ctx, "I2")
	require.NoError(t, err)
	assert.Equal(t, int64(300000), first.Metadata.Price, "the duplicate is rejected, not applied")

	stats, err := indexer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "badger", stats.Backend)
	assert.Equal(t, int64(3), stats.TotalProperties)
	assert.Equal(t, testDimensions, stats.Dimensions)
}

func TestIndexerBatchFailures(t *testing.T) {
	tests := []struct {
		name     string
		embedder EmbeddingClient
	}{
		{name: "embedding error", embedder: &keywordEmbedder{err: errors.New("quota exceeded")}},
		{name: "dimension mismatch", embedder: &fixedEmbedder{vector: []float32{1, 0}}},
		{name: "zero vector", embedder: &fixedEmbedder{vector: make([]float32, testDimensions)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indexer, _ := newTestIndexer(t, tt.embedder)
			resp := indexer.Upsert(context.Background(), miamiListings()[:3])

			assert.Zero(t, resp.Indexed)
			assert.Equal(t, 3, resp.Failed)
			require.Len(t, resp.Errors, 3)

			stats, err := indexer.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.TotalProperties)
		})
	}
}

func TestIndexerDelete(t *testing.T) {
	indexer, _ := newTestIndexer(t, &keywordEmbedder{})
	ctx := context.Background()

	resp := indexer.Upsert(ctx, miamiListings())
	require.Equal(t, 5, resp.Indexed)

	assert.Error(t, indexer.Delete(ctx))
	require.NoError(t, indexer.Delete(ctx, "M1", "M2"))

	got, err := indexer.Get(ctx, "M1")
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := indexer.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalProperties)
}
