package model

// SearchRequest represents a search query request
type SearchRequest struct {
	Query   string       `json:"query" binding:"required"`
	TopK    int          `json:"top_k,omitempty"`
	Filters *QueryFilter `json:"filters,omitempty"`
}

// SearchResponse represents a search result response
type SearchResponse struct {
	SearchID        string         `json:"search_id"`
	Query           string         `json:"query"`
	SemanticText    string         `json:"semantic_text"`
	ExtractedFilter *QueryFilter   `json:"extracted_filter"`
	AppliedFilter   *QueryFilter   `json:"applied_filter"`
	EffectiveFilter *QueryFilter   `json:"effective_filter"`
	Relaxations     []Relaxation   `json:"relaxations"`
	Results         []SearchResult `json:"results"`
	Notes           []string       `json:"notes"`
	Degraded        bool           `json:"degraded"`
	DegradedReason  string         `json:"degraded_reason,omitempty"`
	Exhausted       bool           `json:"exhausted"`
	Took            int64          `json:"took_ms"`
}

// IngestRequest carries listings to upsert
type IngestRequest struct {
	Listings []PropertyListing `json:"listings" binding:"required"`
}

// IngestError reports one rejected listing
type IngestError struct {
	PropertyID string `json:"property_id"`
	Error      string `json:"error"`
}

// IngestResponse summarises an upsert
type IngestResponse struct {
	Indexed int           `json:"indexed"`
	Failed  int           `json:"failed"`
	Errors  []IngestError `json:"errors,omitempty"`
}
