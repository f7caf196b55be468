package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"propsearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const miamiQuery = "2 bedroom condo in Miami under $500k with a pool"

func TestSearchMiami(t *testing.T) {
	extractors := map[string]FilterExtractor{
		"rules": NewRuleExtractor(),
		"llm": NewLLMExtractor(&stubCompletion{
			content: `{"min_bedrooms": 2, "property_type": "condo", "city": "Miami", "max_price": 500000, "required_amenities": ["pool"], "residual_text": ""}`,
		}, time.Second),
	}
	for name, extractor := range extractors {
		t.Run(name, func(t *testing.T) {
			stack := newTestStack(t, miamiListings(), extractor)

			resp, err := stack.service.Search(context.Background(), miamiQuery, 5, nil)
			require.NoError(t, err)

			assert.False(t, resp.Degraded)
			assert.NotEmpty(t, resp.SearchID)
			assert.Equal(t, miamiQuery, resp.SemanticText, "empty residual falls back to the full query")
			assert.Equal(t, miamiFilter(), resp.AppliedFilter)

			assert.Equal(t, []string{"M1", "M3", "M2"}, resultIDs(resp.Results))
			for _, r := range resp.Results {
				assert.Equal(t, model.PropertyTypeCondo, r.Listing.Metadata.PropertyType)
				assert.Equal(t, "Miami", r.Listing.Metadata.City)
				assert.GreaterOrEqual(t, r.SemanticScore, 0.15)
				for _, e := range r.Rationale {
					assert.NotEqual(t, model.StatusViolated, e.Status, "%s %s", r.Listing.ID(), e.Criterion)
				}
			}

			require.Len(t, resp.Relaxations, 2)
			assert.Equal(t, string(StepRelaxAmenities), resp.Relaxations[0].Step)
			assert.Equal(t, string(StepRelaxNumeric), resp.Relaxations[1].Step)
			assert.Nil(t, resp.EffectiveFilter.RequiredAmenities)
			assert.Equal(t, int64(550000), *resp.EffectiveFilter.MaxPrice)
			assert.False(t, resp.Exhausted)

			top := resp.Results[0]
			assert.InDelta(t, 1.0, top.MetadataMatchScore, 1e-9)
			assert.InDelta(t, 1.0, top.FinalScore, 1e-6)
		})
	}
}

func TestSearchMiamiResidualText(t *testing.T) {
	extractor := NewLLMExtractor(&stubCompletion{
		content: `{"min_bedrooms": 2, "property_type": "condo", "city": "Miami", "max_price": 500000, "required_amenities": ["pool"], "residual_text": "modern"}`,
	}, time.Second)
	stack := newTestStack(t, miamiListings(), extractor)

	resp, err := stack.service.Search(context.Background(), "modern 2 bedroom condo in Miami under $500k with a pool", 5, nil)
	require.NoError(t, err)

	assert.Equal(t, "modern", resp.SemanticText)
	assert.Equal(t, []string{"modern"}, stack.embedder.texts, "only the residual is embedded")
	assert.Equal(t, miamiFilter(), resp.AppliedFilter)
	assert.ElementsMatch(t, []string{"M1", "M2", "M3"}, resultIDs(resp.Results))
}

func TestSearchOverrideBoundSurvivesExtractedConflict(t *testing.T) {
	extractor := NewLLMExtractor(&stubCompletion{
		content: `{"city": "Miami", "property_type": "condo", "max_price": 500000, "residual_text": ""}`,
	}, time.Second)
	stack := newTestStack(t, miamiListings(), extractor)

	resp, err := stack.service.Search(context.Background(), "condo in Miami under 500k", 5, &model.QueryFilter{
		MinPrice: model.Ptr(int64(510000)),
	})
	require.NoError(t, err)

	require.NotNil(t, resp.AppliedFilter.MinPrice)
	assert.Equal(t, int64(510000), *resp.AppliedFilter.MinPrice)
	assert.Nil(t, resp.AppliedFilter.MaxPrice, "the extracted ceiling yields to the explicit floor")
	assert.Contains(t, resp.Notes, "discarded max_price 500000 below requested min_price 510000")
	assert.Contains(t, resultIDs(resp.Results), "M3")
}

func TestSearchDeterministic(t *testing.T) {
	stack := newTestStack(t, miamiListings(), NewRuleExtractor())

	first, err := stack.service.Search(context.Background(), miamiQuery, 5, nil)
	require.NoError(t, err)
	second, err := stack.service.Search(context.Background(), miamiQuery, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Relaxations, second.Relaxations)
	assert.NotEqual(t, first.SearchID, second.SearchID)
	assert.Equal(t, 1, stack.embedder.calls, "the query embedding is cached")
}

func TestSearchExtractionTimeout(t *testing.T) {
	stack := newTestStack(t, miamiListings(), NewLLMExtractor(blockingCompletion{}, 20*time.Millisecond))

	resp, err := stack.service.Search(context.Background(), miamiQuery, 5, nil)
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.DegradedReason, "deadline exceeded")
	assert.True(t, resp.AppliedFilter.IsEmpty())
	assert.Equal(t, miamiQuery, resp.SemanticText)
	assert.Contains(t, resp.Notes, NoteNoFilters)
	assert.Contains(t, resp.Notes, NoteExtractionDegraded)
	assert.Empty(t, resp.Relaxations)

	// pure semantic search still excludes inactive listings
	assert.ElementsMatch(t, []string{"M1", "M2", "M3", "M4"}, resultIDs(resp.Results))
	for _, r := range resp.Results {
		require.Len(t, r.Rationale, 1)
		assert.Equal(t, model.StatusNotApplicable, r.Rationale[0].Status)
		assert.Zero(t, r.MetadataMatchScore)
	}
}

func TestSearchOverrides(t *testing.T) {
	t.Run("override wins per field", func(t *testing.T) {
		stack := newTestStack(t, miamiListings(), NewRuleExtractor())
		resp, err := stack.service.Search(context.Background(), miamiQuery, 5, &model.QueryFilter{
			MaxPrice:          model.Ptr(int64(600000)),
			RequiredAmenities: []string{},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(600000), *resp.AppliedFilter.MaxPrice)
		assert.Equal(t, int64(500000), *resp.ExtractedFilter.MaxPrice)
		assert.Empty(t, resp.AppliedFilter.RequiredAmenities)
		assert.Equal(t, 2.0, *resp.AppliedFilter.MinBedrooms)
		assert.ElementsMatch(t, []string{"M1", "M2", "M3"}, resultIDs(resp.Results))
		assert.Empty(t, resp.Relaxations)
	})

	t.Run("unsatisfiable override rejected", func(t *testing.T) {
		stack := newTestStack(t, miamiListings(), NewRuleExtractor())
		resp, err := stack.service.Search(context.Background(), miamiQuery, 5, &model.QueryFilter{
			MinPrice: model.Ptr(int64(600000)),
			MaxPrice: model.Ptr(int64(500000)),
		})
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, model.ErrInvalidFilter)
		assert.Empty(t, stack.index.queries, "nothing is retrieved for a rejected filter")
	})

	t.Run("unknown amenity override rejected", func(t *testing.T) {
		stack := newTestStack(t, miamiListings(), NewRuleExtractor())
		_, err := stack.service.Search(context.Background(), miamiQuery, 5, &model.QueryFilter{
			RequiredAmenities: []string{"helipad"},
		})
		assert.ErrorIs(t, err, model.ErrInvalidFilter)
	})
}

func TestSearchAmenityRelaxationPenalty(t *testing.T) {
	listings := []model.PropertyListing{
		testListing("F1", model.PropertyTypeCondo, "Miami", 300000, 2, []string{"pool"}, "Bright condo"),
		testListing("F2", model.PropertyTypeCondo, "Miami", 310000, 2, nil, "Bright condo"),
		testListing("F3", model.PropertyTypeCondo, "Miami", 320000, 2, []string{"gym"}, "Bright condo"),
	}
	stack := newTestStack(t, listings, NewRuleExtractor())

	resp, err := stack.service.Search(context.Background(), "condo in Miami with a fireplace", 5, nil)
	require.NoError(t, err)

	require.Len(t, resp.Relaxations, 1)
	assert.Equal(t, string(StepRelaxAmenities), resp.Relaxations[0].Step)
	require.Len(t, resp.Results, 3)

	// identical texts and metadata scores: cheaper first
	assert.Equal(t, []string{"F1", "F2", "F3"}, resultIDs(resp.Results))
	for _, r := range resp.Results {
		var amenity *model.RationaleEntry
		for i := range r.Rationale {
			if r.Rationale[i].Criterion == model.CriterionRequiredAmenities {
				amenity = &r.Rationale[i]
			}
		}
		require.NotNil(t, amenity)
		assert.Equal(t, model.StatusViolatedTolerated, amenity.Status)
		assert.True(t, amenity.Relaxed)
		assert.InDelta(t, 0.4/3, amenity.Penalty, 1e-9)
		assert.InDelta(t, 2.0/3, r.MetadataMatchScore, 1e-9)
	}
}

func TestSearchExhausted(t *testing.T) {
	stack := newTestStack(t, miamiListings(), NewRuleExtractor())

	resp, err := stack.service.Search(context.Background(), "studio in Miami", 5, nil)
	require.NoError(t, err)
	assert.True(t, resp.Exhausted)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Contains(t, resp.Notes, NoteNoCandidatesFound)
}

func TestSearchTopK(t *testing.T) {
	stack := newTestStack(t, miamiListings(), NewRuleExtractor())

	resp, err := stack.service.Search(context.Background(), "something bright", 2, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	resp, err = stack.service.Search(context.Background(), "something bright", 0, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 4, "default top k is 5; only four listings are active")
}

func TestSearchErrors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		stack := newTestStack(t, miamiListings(), NewRuleExtractor())
		_, err := stack.service.Search(context.Background(), "   ", 5, nil)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		boom := errors.New("index offline")
		encoder, err := NewEncoder(&keywordEmbedder{}, EncoderConfig{Dimensions: testDimensions})
		require.NoError(t, err)
		retriever := NewRetriever(&failingIndex{err: boom}, NewRelaxer(testRelaxationConfig()), RetrieverConfig{})
		svc := NewSearchService(NewRuleExtractor(), encoder, retriever, NewRanker(0.6), testSearchConfig())

		resp, err := svc.Search(context.Background(), miamiQuery, 5, nil)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("encoding failure", func(t *testing.T) {
		encoder, err := NewEncoder(&keywordEmbedder{err: errors.New("embedding quota")}, EncoderConfig{Dimensions: testDimensions})
		require.NoError(t, err)
		retriever := NewRetriever(&failingIndex{}, NewRelaxer(testRelaxationConfig()), RetrieverConfig{})
		svc := NewSearchService(NewRuleExtractor(), encoder, retriever, NewRanker(0.6), testSearchConfig())

		_, err = svc.Search(context.Background(), miamiQuery, 5, nil)
		assert.ErrorIs(t, err, ErrRetrievalFailed)
	})
}

// streamingStub is a completion client that streams its content in two chunks
type streamingStub struct {
	stubCompletion
}

func (s *streamingStub) CompleteStream(ctx context.Context, system, user string, onChunk StreamCallback) (string, error) {
	half := len(s.content) / 2
	if err := onChunk(&StreamChunk{ThinkingContent: "looking at the query"}); err != nil {
		return "", err
	}
	for _, part := range []string{s.content[:half], s.content[half:]} {
		if err := onChunk(&StreamChunk{Content: part}); err != nil {
			return "", err
		}
	}
	return s.content, nil
}

func TestSearchStream(t *testing.T) {
	client := &streamingStub{stubCompletion{
		content: `{"property_type": "condo", "city": "Miami", "max_price": 500000, "min_bedrooms": 2, "required_amenities": ["pool"]}`,
	}}
	stack := newTestStack(t, miamiListings(), NewLLMExtractor(client, time.Second))

	var events []string
	resp, err := stack.service.SearchStream(context.Background(), miamiQuery, 5, nil, func(event string, data any) error {
		events = append(events, event)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, []string{
		"parsing", "thinking", "content", "content", "extracted", "encoded", "relaxed", "relaxed", "ranked",
	}, events)
	assert.Zero(t, client.calls, "streaming extraction does not call Complete")

	t.Run("callback error aborts", func(t *testing.T) {
		stop := errors.New("client went away")
		_, err := stack.service.SearchStream(context.Background(), miamiQuery, 5, nil, func(event string, data any) error {
			if event == "encoded" {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
	})

	t.Run("plain search does not stream", func(t *testing.T) {
		_, err := stack.service.Search(context.Background(), miamiQuery, 5, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, client.calls)
	})
}
