package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"propsearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildESFilters(t *testing.T) {
	filter := &model.QueryFilter{
		State:             model.Ptr("FL"),
		MinPrice:          model.Ptr(int64(200000)),
		RequiredAmenities: []string{"gym", "pool"},
	}
	filters, err := buildESFilters(model.CompilePredicate(filter))
	require.NoError(t, err)

	raw, err := json.Marshal(filters)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"term": {"status": "active"}},
		{"term": {"state_key": "fl"}},
		{"range": {"price": {"gte": 200000}}},
		{"term": {"amenities": "gym"}},
		{"term": {"amenities": "pool"}}
	]`, string(raw))
}

func TestBuildKNNQueryNumCandidates(t *testing.T) {
	tests := []struct {
		topK int
		want int
	}{
		{topK: 5, want: 100},
		{topK: 50, want: 500},
		{topK: 5000, want: 10000},
	}
	for _, tt := range tests {
		body, err := buildKNNQuery(model.VectorQuery{Vector: []float32{1}, TopK: tt.topK})
		require.NoError(t, err)
		knn := body["knn"].(map[string]interface{})
		assert.Equal(t, tt.want, knn["num_candidates"])
		assert.Equal(t, tt.topK, knn["k"])
	}
}

func newTestESServer(t *testing.T, handler http.HandlerFunc) *ElasticsearchRepository {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	repo, err := NewElasticsearchRepository([]string{srv.URL}, "", "", "listings")
	require.NoError(t, err)
	return repo
}

func TestElasticsearchQueryConvertsScores(t *testing.T) {
	var got map[string]interface{}
	repo := newTestESServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		io.WriteString(w, `{"hits": {"hits": [
			{"_id": "PROP_002", "_score": 0.9, "_source": {"property_id": "PROP_002", "city": "Miami", "status": "active"}},
			{"_id": "PROP_001", "_score": 0.9, "_source": {"property_id": "PROP_001", "city": "Miami", "status": "active"}},
			{"_id": "PROP_003", "_score": 0.5, "_source": {"property_id": "PROP_003", "city": "Miami", "status": "active"}}
		]}}`)
	})

	candidates, err := repo.Query(context.Background(), model.VectorQuery{
		Vector:    []float32{1, 0},
		Predicate: model.CompilePredicate(nil),
		TopK:      3,
		MinScore:  0.15,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "PROP_001", candidates[0].Listing.ID())
	assert.Equal(t, "PROP_002", candidates[1].Listing.ID())
	assert.InDelta(t, 0.8, candidates[0].SemanticScore, 1e-9)
	assert.Contains(t, got, "knn")
}

func TestElasticsearchGetMissing(t *testing.T) {
	repo := newTestESServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"found": false}`)
	})
	listing, err := repo.Get(context.Background(), "PROP_404")
	require.NoError(t, err)
	assert.Nil(t, listing)
}

func TestElasticsearchBulkItemErrors(t *testing.T) {
	repo := newTestESServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors": true, "items": [
			{"delete": {"_id": "PROP_001", "status": 404, "error": {"reason": "not found"}}},
			{"delete": {"_id": "PROP_002", "status": 500, "error": {"reason": "shard failure"}}}
		]}`)
	})
	err := repo.Delete(context.Background(), "PROP_001", "PROP_002")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROP_002")
	assert.NotContains(t, err.Error(), "PROP_001")
}
