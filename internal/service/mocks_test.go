package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"propsearch/internal/config"
	"propsearch/internal/model"
	"propsearch/internal/repository"

	"github.com/stretchr/testify/require"
)

// testVocabulary spans the embedding space of keywordEmbedder. The last
// dimension is a constant bias so unrelated texts stay above the similarity floor.
var testVocabulary = []string{"condo", "house", "pool", "modern", "ocean", "beach", "loft", "brick", "family", "cozy", "garden", "quiet"}

const testDimensions = 13

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, testDimensions)
	for i, w := range testVocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	v[testDimensions-1] = 2
	return v
}

// keywordEmbedder embeds texts as bag-of-vocabulary counts
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (e *keywordEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

// fixedEmbedder returns the same vector for every text
type fixedEmbedder struct {
	vector []float32
}

func (e *fixedEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

// stubCompletion returns canned content or an error
type stubCompletion struct {
	content string
	err     error
	calls   int
}

func (c *stubCompletion) Complete(ctx context.Context, system, user string) (string, error) {
	c.calls++
	return c.content, c.err
}

// blockingCompletion never answers before the context ends
type blockingCompletion struct{}

func (blockingCompletion) Complete(ctx context.Context, system, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// countingIndex wraps an index and counts queries
type countingIndex struct {
	repository.PropertyIndex
	mu      sync.Mutex
	queries []model.VectorQuery
}

func (c *countingIndex) Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error) {
	c.mu.Lock()
	c.queries = append(c.queries, q)
	c.mu.Unlock()
	return c.PropertyIndex.Query(ctx, q)
}

// failingIndex fails every query
type failingIndex struct {
	repository.PropertyIndex
	err error
}

func (f *failingIndex) Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error) {
	return nil, f.err
}

func testListing(id string, pt model.PropertyType, city string, price int64, beds float64, amenities []string, description string) model.PropertyListing {
	return model.PropertyListing{
		Title:       "Listing " + id,
		Description: description,
		Metadata: model.PropertyMetadata{
			PropertyID:   id,
			PropertyType: pt,
			Price:        price,
			Bedrooms:     beds,
			Bathrooms:    1,
			SquareFeet:   model.Ptr(int64(1000)),
			City:         city,
			State:        "FL",
			Amenities:    amenities,
			DaysOnMarket: 10,
		},
	}
}

// miamiListings is the fixture for "2 bedroom condo in Miami under $500k with a pool"
func miamiListings() []model.PropertyListing {
	sold := testListing("M5", model.PropertyTypeCondo, "Miami", 350000, 2, []string{"pool"}, "Bright condo with pool")
	sold.Metadata.Status = model.StatusSold
	return []model.PropertyListing{
		testListing("M1", model.PropertyTypeCondo, "Miami", 450000, 2, []string{"pool", "gym"}, "Bright condo with pool"),
		testListing("M2", model.PropertyTypeCondo, "Miami", 480000, 2, nil, "Quiet condo near downtown"),
		testListing("M3", model.PropertyTypeCondo, "Miami", 520000, 3, []string{"pool"}, "Spacious condo with pool and views"),
		testListing("M4", model.PropertyTypeHouse, "Miami", 400000, 2, []string{"pool"}, "Family house with pool"),
		sold,
	}
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultTopK:       5,
		MaxTopK:           50,
		MinSimilarity:     0.15,
		MinResidualTokens: 1,
	}
}

func testRelaxationConfig() config.RelaxationConfig {
	return config.RelaxationConfig{
		MinCandidates:    3,
		TopKRatio:        0.5,
		MarginMode:       config.MarginPercent,
		MarginPercent:    0.10,
		PriceMargin:      50000,
		SquareFeetMargin: 100,
		RoomMargin:       1,
	}
}

// newTestIndex returns an in-memory badger index holding listings
func newTestIndex(t *testing.T, listings []model.PropertyListing) *repository.BadgerRepository {
	t.Helper()
	repo, err := repository.NewBadgerRepository("", true)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	indexer, err := NewIndexer(repo, &keywordEmbedder{}, 2, 2, testDimensions)
	require.NoError(t, err)
	defer indexer.Release()

	resp := indexer.Upsert(context.Background(), listings)
	require.Zero(t, resp.Failed, "fixture listings must be valid: %v", resp.Errors)
	return repo
}

type testStack struct {
	service  *SearchService
	index    *countingIndex
	embedder *keywordEmbedder
}

func newTestStack(t *testing.T, listings []model.PropertyListing, extractor FilterExtractor) *testStack {
	t.Helper()
	index := &countingIndex{PropertyIndex: newTestIndex(t, listings)}
	embedder := &keywordEmbedder{}
	cfg := testSearchConfig()

	encoder, err := NewEncoder(embedder, EncoderConfig{
		Dimensions:        testDimensions,
		MinResidualTokens: cfg.MinResidualTokens,
		CacheSize:         16,
	})
	require.NoError(t, err)

	retriever := NewRetriever(index, NewRelaxer(testRelaxationConfig()), RetrieverConfig{MinSimilarity: cfg.MinSimilarity})
	return &testStack{
		service:  NewSearchService(extractor, encoder, retriever, NewRanker(0.6), cfg),
		index:    index,
		embedder: embedder,
	}
}

func resultIDs(results []model.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Listing.ID()
	}
	return ids
}

func candidateIDs(candidates []model.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Listing.ID()
	}
	return ids
}
