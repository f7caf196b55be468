package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"propsearch/internal/model"
	"propsearch/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// keyword fields holding the lower-cased comparison form of categorical values
var esFields = map[model.Field]string{
	model.FieldPrice:        "price",
	model.FieldBedrooms:     "bedrooms",
	model.FieldBathrooms:    "bathrooms",
	model.FieldSquareFeet:   "square_feet",
	model.FieldCity:         "city_key",
	model.FieldState:        "state_key",
	model.FieldNeighborhood: "neighborhood_key",
	model.FieldPropertyType: "property_type",
	model.FieldStatus:       "status",
	model.FieldAmenities:    "amenities",
}

// ElasticsearchRepository is a dense_vector kNN PropertyIndex
type ElasticsearchRepository struct {
	client *elasticsearch.Client
	index  string
}

// esDocument is the stored form of a listing
type esDocument struct {
	PropertyID      string    `json:"property_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	PropertyType    string    `json:"property_type"`
	Status          string    `json:"status"`
	Price           int64     `json:"price"`
	Bedrooms        float64   `json:"bedrooms"`
	Bathrooms       float64   `json:"bathrooms"`
	SquareFeet      *int64    `json:"square_feet,omitempty"`
	City            string    `json:"city"`
	CityKey         string    `json:"city_key"`
	State           string    `json:"state"`
	StateKey        string    `json:"state_key"`
	Neighborhood    string    `json:"neighborhood"`
	NeighborhoodKey string    `json:"neighborhood_key"`
	Amenities       []string  `json:"amenities"`
	YearBuilt       *int      `json:"year_built,omitempty"`
	DaysOnMarket    int       `json:"days_on_market"`
	ListingAgent    string    `json:"listing_agent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
}

func newESDocument(item model.IndexedListing) esDocument {
	l := item.Listing
	m := l.Metadata
	return esDocument{
		PropertyID:      m.PropertyID,
		Title:           l.Title,
		Description:     l.Description,
		PropertyType:    string(m.PropertyType),
		Status:          string(m.Status),
		Price:           m.Price,
		Bedrooms:        m.Bedrooms,
		Bathrooms:       m.Bathrooms,
		SquareFeet:      m.SquareFeet,
		City:            m.City,
		CityKey:         model.NormalizeKey(m.City),
		State:           m.State,
		StateKey:        model.NormalizeKey(m.State),
		Neighborhood:    m.Neighborhood,
		NeighborhoodKey: model.NormalizeKey(m.Neighborhood),
		Amenities:       []string(m.Amenities),
		YearBuilt:       m.YearBuilt,
		DaysOnMarket:    m.DaysOnMarket,
		ListingAgent:    m.ListingAgent,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
		Embedding:       item.Vector,
	}
}

func (d *esDocument) toListing() model.PropertyListing {
	return model.PropertyListing{
		Title:       d.Title,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Metadata: model.PropertyMetadata{
			PropertyID:   d.PropertyID,
			PropertyType: model.PropertyType(d.PropertyType),
			Status:       model.ListingStatus(d.Status),
			Price:        d.Price,
			Bedrooms:     d.Bedrooms,
			Bathrooms:    d.Bathrooms,
			SquareFeet:   d.SquareFeet,
			City:         d.City,
			State:        d.State,
			Neighborhood: d.Neighborhood,
			Amenities:    model.JSONArray(d.Amenities),
			YearBuilt:    d.YearBuilt,
			DaysOnMarket: d.DaysOnMarket,
			ListingAgent: d.ListingAgent,
		},
	}
}

// NewElasticsearchRepository creates a client for the given cluster
func NewElasticsearchRepository(addresses []string, username, password, index string) (*ElasticsearchRepository, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchRepository{client: client, index: index}, nil
}

// Close is a no-op; the client holds no long-lived resources beyond its transport
func (r *ElasticsearchRepository) Close() error {
	return nil
}

// EnsureIndex creates the index with a cosine dense_vector mapping when missing
func (r *ElasticsearchRepository) EnsureIndex(ctx context.Context, dimensions int) error {
	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status checking index %s: %d", r.index, res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"property_id":      {"type": "keyword"},
				"title":            {"type": "text"},
				"description":      {"type": "text"},
				"property_type":    {"type": "keyword"},
				"status":           {"type": "keyword"},
				"price":            {"type": "long"},
				"bedrooms":         {"type": "double"},
				"bathrooms":        {"type": "double"},
				"square_feet":      {"type": "long"},
				"city":             {"type": "keyword", "index": false},
				"city_key":         {"type": "keyword"},
				"state":            {"type": "keyword", "index": false},
				"state_key":        {"type": "keyword"},
				"neighborhood":     {"type": "keyword", "index": false},
				"neighborhood_key": {"type": "keyword"},
				"amenities":        {"type": "keyword"},
				"year_built":       {"type": "integer"},
				"days_on_market":   {"type": "integer"},
				"listing_agent":    {"type": "keyword", "index": false},
				"created_at":       {"type": "date"},
				"updated_at":       {"type": "date"},
				"embedding": {"type": "dense_vector", "dims": %d, "index": true, "similarity": "cosine"}
			}
		}
	}`, dimensions)

	res, err = r.client.Indices.Create(
		r.index,
		r.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		r.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", r.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", r.index, res.String())
	}
	log.Infof("Created elasticsearch index '%s'", r.index)
	return nil
}

// Upsert indexes listings through one bulk request
func (r *ElasticsearchRepository) Upsert(ctx context.Context, listings []model.IndexedListing) error {
	if len(listings) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, item := range listings {
		action := map[string]map[string]string{"index": {"_index": r.index, "_id": item.Listing.ID()}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(newESDocument(item)); err != nil {
			return err
		}
	}

	return r.bulk(ctx, &body)
}

// Delete removes listings by property id
func (r *ElasticsearchRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, id := range ids {
		if err := enc.Encode(map[string]map[string]string{"delete": {"_index": r.index, "_id": id}}); err != nil {
			return err
		}
	}
	return r.bulk(ctx, &body)
}

func (r *ElasticsearchRepository) bulk(ctx context.Context, body io.Reader) error {
	req := esapi.BulkRequest{
		Index:   r.index,
		Body:    body,
		Refresh: "true",
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk request failed: %s", res.String())
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !out.Errors {
		return nil
	}
	var errs []error
	for _, item := range out.Items {
		for action, result := range item {
			// deleting an absent document is not a failure
			if result.Error == nil || (action == "delete" && result.Status == http.StatusNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("%s %s: %s", action, result.ID, result.Error.Reason))
		}
	}
	return errors.Join(errs...)
}

// Query runs a filtered kNN search. The filter is applied inside the kNN
// clause so excluded documents do not consume any of the k slots.
func (r *ElasticsearchRepository) Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error) {
	body, err := buildKNNQuery(q)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("knn search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("knn search failed: %s", res.String())
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(out.Hits.Hits))
	for _, hit := range out.Hits.Hits {
		// cosine _score is (1 + cos) / 2
		similarity := 2*hit.Score - 1
		if similarity < q.MinScore {
			continue
		}
		candidates = append(candidates, model.Candidate{
			Listing:       hit.Source.toListing(),
			SemanticScore: similarity,
		})
	}
	SortCandidates(candidates)
	return candidates, nil
}

func buildKNNQuery(q model.VectorQuery) (map[string]interface{}, error) {
	filters, err := buildESFilters(q.Predicate)
	if err != nil {
		return nil, err
	}
	numCandidates := q.TopK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	if numCandidates > 10000 {
		numCandidates = 10000
	}
	return map[string]interface{}{
		"size": q.TopK,
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   q.Vector,
			"k":              q.TopK,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{"filter": filters},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	}, nil
}

func buildESFilters(p model.Predicate) ([]map[string]interface{}, error) {
	filters := make([]map[string]interface{}, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		field, ok := esFields[c.Field]
		if !ok {
			return nil, fmt.Errorf("%w: field %q", ErrUnsupportedClause, c.Field)
		}
		switch c.Op {
		case model.OpEq:
			filters = append(filters, map[string]interface{}{"term": map[string]interface{}{field: c.Text}})
		case model.OpGte:
			filters = append(filters, map[string]interface{}{"range": map[string]interface{}{field: map[string]float64{"gte": c.Number}}})
		case model.OpLte:
			filters = append(filters, map[string]interface{}{"range": map[string]interface{}{field: map[string]float64{"lte": c.Number}}})
		case model.OpContainsAll:
			for _, v := range c.Values {
				filters = append(filters, map[string]interface{}{"term": map[string]interface{}{field: v}})
			}
		default:
			return nil, fmt.Errorf("%w: op %q", ErrUnsupportedClause, c.Op)
		}
	}
	return filters, nil
}

// Get returns one listing by property id
func (r *ElasticsearchRepository) Get(ctx context.Context, id string) (*model.PropertyListing, error) {
	res, err := r.client.Get(r.index, id, r.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get request failed: %s", res.String())
	}
	var out struct {
		Source esDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode get response: %w", err)
	}
	listing := out.Source.toListing()
	return &listing, nil
}

// Stats counts indexed listings
func (r *ElasticsearchRepository) Stats(ctx context.Context) (*model.IndexStats, error) {
	req := esapi.CountRequest{Index: []string{r.index}}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("count request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("count request failed: %s", res.String())
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode count response: %w", err)
	}
	return &model.IndexStats{Backend: "elasticsearch", TotalProperties: out.Count}, nil
}
