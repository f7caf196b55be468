package service

import (
	"testing"

	"propsearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(l model.PropertyListing, score float64) model.Candidate {
	return model.Candidate{Listing: l, SemanticScore: score}
}

func TestRankerScores(t *testing.T) {
	listings := miamiListings()
	candidates := []model.Candidate{
		candidate(listings[0], 0.9), // M1 satisfies everything
		candidate(listings[1], 0.9), // M2 has no pool
		candidate(listings[2], 0.9), // M3 over budget
	}
	relaxations := []model.Relaxation{
		{Step: string(StepRelaxAmenities), Clauses: []string{model.CriterionRequiredAmenities}},
		{Step: string(StepRelaxNumeric), Clauses: []string{model.CriterionMaxPrice, model.CriterionMinBedrooms}},
	}

	results := NewRanker(0.6).Rank(candidates, miamiFilter(), relaxations)
	require.Len(t, results, 3)

	m1 := results[0]
	assert.Equal(t, "M1", m1.Listing.ID())
	assert.InDelta(t, 1.0, m1.MetadataMatchScore, 1e-9)
	assert.InDelta(t, 0.6*0.9+0.4, m1.FinalScore, 1e-9)
	require.Len(t, m1.Rationale, 5)
	for _, e := range m1.Rationale {
		assert.Equal(t, model.StatusSatisfied, e.Status, e.Criterion)
		assert.Zero(t, e.Penalty)
	}

	byID := map[string]model.SearchResult{}
	for _, r := range results {
		byID[r.Listing.ID()] = r
	}

	m2 := byID["M2"]
	assert.InDelta(t, 0.8, m2.MetadataMatchScore, 1e-9)
	amenities := m2.Rationale[4]
	assert.Equal(t, model.CriterionRequiredAmenities, amenities.Criterion)
	assert.Equal(t, model.StatusViolatedTolerated, amenities.Status)
	assert.True(t, amenities.Relaxed)
	assert.InDelta(t, 0.4/5, amenities.Penalty, 1e-9)
	assert.Equal(t, "missing pool", amenities.Detail)

	m3 := byID["M3"]
	maxPrice := m3.Rationale[2]
	assert.Equal(t, model.CriterionMaxPrice, maxPrice.Criterion)
	assert.Equal(t, model.StatusViolatedTolerated, maxPrice.Status)
	bedrooms := m3.Rationale[3]
	assert.Equal(t, model.StatusSatisfied, bedrooms.Status)
	assert.True(t, bedrooms.Relaxed, "relaxed clauses are flagged even when satisfied")
}

func TestRankerViolatedWithoutRelaxation(t *testing.T) {
	l := testListing("X1", model.PropertyTypeHouse, "Tampa", 100000, 1, nil, "house")
	results := NewRanker(0.5).Rank([]model.Candidate{candidate(l, 0.4)}, miamiFilter(), nil)
	require.Len(t, results, 1)
	for _, e := range results[0].Rationale {
		if e.Criterion == model.CriterionMaxPrice {
			assert.Equal(t, model.StatusSatisfied, e.Status)
			continue
		}
		assert.Equal(t, model.StatusViolated, e.Status, e.Criterion)
		assert.False(t, e.Relaxed)
	}
}

func TestRankerPartialAmenities(t *testing.T) {
	l := testListing("A1", model.PropertyTypeCondo, "Miami", 100000, 1, []string{"pool"}, "condo")
	f := &model.QueryFilter{RequiredAmenities: []string{"pool", "gym"}}
	results := NewRanker(0.6).Rank([]model.Candidate{candidate(l, 1)}, f, nil)
	require.Len(t, results, 1)

	entry := results[0].Rationale[0]
	assert.InDelta(t, 0.5, entry.Score, 1e-9)
	assert.InDelta(t, 0.4*0.5, entry.Penalty, 1e-9)
	assert.Equal(t, "has pool; missing gym", entry.Detail)
	assert.InDelta(t, 0.5, results[0].MetadataMatchScore, 1e-9)
}

func TestRankerNoFilters(t *testing.T) {
	l := testListing("N1", model.PropertyTypeCondo, "Miami", 100000, 1, nil, "condo")
	results := NewRanker(0.6).Rank([]model.Candidate{candidate(l, 0.5)}, &model.QueryFilter{}, nil)
	require.Len(t, results, 1)

	assert.Equal(t, []model.RationaleEntry{{
		Status: model.StatusNotApplicable,
		Detail: model.NoFiltersApplied,
	}}, results[0].Rationale)
	assert.Zero(t, results[0].MetadataMatchScore)
	assert.InDelta(t, 0.3, results[0].FinalScore, 1e-9)
}

func TestRankerTieBreak(t *testing.T) {
	mk := func(id string, dom int, price int64) model.Candidate {
		l := testListing(id, model.PropertyTypeCondo, "Miami", price, 2, nil, "condo")
		l.Metadata.DaysOnMarket = dom
		return candidate(l, 0.7)
	}
	candidates := []model.Candidate{
		mk("T4", 5, 300000),
		mk("T3", 5, 200000),
		mk("T2", 1, 900000),
		mk("T5", 5, 200000),
		mk("T1", 9, 100000),
	}

	results := NewRanker(0.6).Rank(candidates, nil, nil)
	assert.Equal(t, []string{"T2", "T3", "T5", "T4", "T1"}, resultIDs(results))
}

func TestRankerEmpty(t *testing.T) {
	results := NewRanker(0.6).Rank(nil, miamiFilter(), nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
