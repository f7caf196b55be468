package model

import (
	"fmt"
	"strings"
)

// CriterionStatus classifies how a candidate fared against one requested criterion
type CriterionStatus string

const (
	StatusSatisfied         CriterionStatus = "satisfied"
	StatusViolatedTolerated CriterionStatus = "violated_tolerated" // missed, but its clause was relaxed
	StatusViolated          CriterionStatus = "violated"
	StatusNotApplicable     CriterionStatus = "not_applicable"
)

// NoFiltersApplied is the rationale text for searches without structured criteria
const NoFiltersApplied = "no structured filters applied"

// RationaleEntry explains one criterion for one result
type RationaleEntry struct {
	Criterion string          `json:"criterion"`
	Status    CriterionStatus `json:"status"`
	Relaxed   bool            `json:"relaxed"`
	Score     float64         `json:"score"`
	Penalty   float64         `json:"penalty"`
	Detail    string          `json:"detail"`
}

func (e RationaleEntry) String() string {
	if e.Status == StatusNotApplicable {
		return e.Detail
	}
	s := fmt.Sprintf("%s: %s (%s)", e.Criterion, e.Status, e.Detail)
	if e.Relaxed {
		s += " [relaxed]"
	}
	if e.Penalty > 0 {
		s += fmt.Sprintf(" penalty %.3f", e.Penalty)
	}
	return s
}

// Candidate is a raw retrieval hit
type Candidate struct {
	Listing       PropertyListing `json:"listing"`
	SemanticScore float64         `json:"semantic_score"`
}

// SearchResult is one scored, explained candidate. It is never persisted.
type SearchResult struct {
	Listing            PropertyListing  `json:"listing"`
	SemanticScore      float64          `json:"semantic_score"`
	MetadataMatchScore float64          `json:"metadata_match_score"`
	FinalScore         float64          `json:"final_score"`
	Rationale          []RationaleEntry `json:"rationale"`
}

// RationaleText renders the rationale as display lines.
func (r *SearchResult) RationaleText() []string {
	lines := make([]string, len(r.Rationale))
	for i, e := range r.Rationale {
		lines[i] = e.String()
	}
	return lines
}

// Relaxation records one applied relaxation step
type Relaxation struct {
	Step           string   `json:"step"`
	Clauses        []string `json:"clauses"`
	Detail         string   `json:"detail"`
	CandidateCount int      `json:"candidate_count"`
}

func (r Relaxation) String() string {
	return fmt.Sprintf("%s: %s (%s) -> %d candidates", r.Step, strings.Join(r.Clauses, ", "), r.Detail, r.CandidateCount)
}

// VectorQuery is one pre-filtered nearest-neighbour request to an index
type VectorQuery struct {
	Vector    []float32
	Predicate Predicate
	TopK      int
	MinScore  float64
}

// IndexStats summarises an index
type IndexStats struct {
	Backend         string `json:"backend"`
	TotalProperties int64  `json:"total_properties"`
	Dimensions      int    `json:"dimensions,omitempty"`
}
