package service

import (
	"fmt"
	"sort"
	"strings"

	"propsearch/internal/model"
)

// Ranker fuses semantic and metadata scores and explains every result
type Ranker struct {
	semanticWeight float64
}

// NewRanker creates a ranker. semanticWeight is alpha in
// final = alpha*semantic + (1-alpha)*metadata.
func NewRanker(semanticWeight float64) *Ranker {
	return &Ranker{semanticWeight: semanticWeight}
}

// Rank scores candidates against the original, pre-relaxation filter and
// orders them by final score, then days on market, price and property id.
func (r *Ranker) Rank(candidates []model.Candidate, original *model.QueryFilter, relaxations []model.Relaxation) []model.SearchResult {
	relaxed := make(map[string]bool)
	for _, rx := range relaxations {
		for _, clause := range rx.Clauses {
			relaxed[clause] = true
		}
	}
	criteria := original.Criteria()

	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		result := model.SearchResult{
			Listing:       c.Listing,
			SemanticScore: c.SemanticScore,
		}

		if len(criteria) == 0 {
			result.Rationale = []model.RationaleEntry{{
				Status: model.StatusNotApplicable,
				Detail: model.NoFiltersApplied,
			}}
		} else {
			n := float64(len(criteria))
			var sum float64
			for _, name := range criteria {
				score, detail := scoreCriterion(name, original, &c.Listing.Metadata)
				sum += score

				entry := model.RationaleEntry{
					Criterion: name,
					Relaxed:   relaxed[name],
					Score:     score,
					Penalty:   (1 - r.semanticWeight) * (1 - score) / n,
					Detail:    detail,
				}
				switch {
				case score == 1:
					entry.Status = model.StatusSatisfied
				case entry.Relaxed:
					entry.Status = model.StatusViolatedTolerated
				default:
					// the index should never return this; keep it visible
					entry.Status = model.StatusViolated
				}
				result.Rationale = append(result.Rationale, entry)
			}
			result.MetadataMatchScore = sum / n
		}

		result.FinalScore = r.semanticWeight*result.SemanticScore + (1-r.semanticWeight)*result.MetadataMatchScore
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		am, bm := &a.Listing.Metadata, &b.Listing.Metadata
		if am.DaysOnMarket != bm.DaysOnMarket {
			return am.DaysOnMarket < bm.DaysOnMarket
		}
		if am.Price != bm.Price {
			return am.Price < bm.Price
		}
		return am.PropertyID < bm.PropertyID
	})
	return results
}

// scoreCriterion returns the 0..1 score of one criterion and a short detail.
func scoreCriterion(name string, f *model.QueryFilter, m *model.PropertyMetadata) (float64, string) {
	boolScore := func(ok bool, detail string) (float64, string) {
		if ok {
			return 1, detail
		}
		return 0, detail
	}

	switch name {
	case model.CriterionPropertyType:
		return boolScore(model.NormalizeKey(string(m.PropertyType)) == model.NormalizeKey(string(*f.PropertyType)),
			fmt.Sprintf("wanted %s, listing is %s", *f.PropertyType, m.PropertyType))
	case model.CriterionCity:
		return boolScore(model.NormalizeKey(m.City) == model.NormalizeKey(*f.City),
			fmt.Sprintf("wanted %s, listing in %s", *f.City, m.City))
	case model.CriterionState:
		return boolScore(model.NormalizeKey(m.State) == model.NormalizeKey(*f.State),
			fmt.Sprintf("wanted %s, listing in %s", *f.State, m.State))
	case model.CriterionNeighborhood:
		return boolScore(model.NormalizeKey(m.Neighborhood) == model.NormalizeKey(*f.Neighborhood),
			fmt.Sprintf("wanted %s, listing in %s", *f.Neighborhood, orUnknown(m.Neighborhood)))
	case model.CriterionMinPrice:
		return boolScore(m.Price >= *f.MinPrice, fmt.Sprintf("price %d vs minimum %d", m.Price, *f.MinPrice))
	case model.CriterionMaxPrice:
		return boolScore(m.Price <= *f.MaxPrice, fmt.Sprintf("price %d vs maximum %d", m.Price, *f.MaxPrice))
	case model.CriterionMinBedrooms:
		return boolScore(m.Bedrooms >= *f.MinBedrooms,
			fmt.Sprintf("%s bedrooms vs minimum %s", formatRooms(m.Bedrooms), formatRooms(*f.MinBedrooms)))
	case model.CriterionMinBathrooms:
		return boolScore(m.Bathrooms >= *f.MinBathrooms,
			fmt.Sprintf("%s bathrooms vs minimum %s", formatRooms(m.Bathrooms), formatRooms(*f.MinBathrooms)))
	case model.CriterionMinSquareFeet:
		if m.SquareFeet == nil {
			return 0, fmt.Sprintf("square footage unknown vs minimum %d", *f.MinSquareFeet)
		}
		return boolScore(*m.SquareFeet >= *f.MinSquareFeet,
			fmt.Sprintf("%d sqft vs minimum %d", *m.SquareFeet, *f.MinSquareFeet))
	case model.CriterionRequiredAmenities:
		var have, missing []string
		for _, a := range f.RequiredAmenities {
			if m.HasAmenity(model.NormalizeKey(a)) {
				have = append(have, a)
			} else {
				missing = append(missing, a)
			}
		}
		var parts []string
		if len(have) > 0 {
			parts = append(parts, "has "+strings.Join(have, ", "))
		}
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ", "))
		}
		return float64(len(have)) / float64(len(f.RequiredAmenities)), strings.Join(parts, "; ")
	}
	return 0, "unknown criterion"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
