package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"propsearch/internal/metrics"
	"propsearch/internal/model"
	"propsearch/internal/utils"
	"propsearch/pkg/log"

	"go.uber.org/zap"
)

// Extraction is the structured part of a query plus the text left for
// semantic matching. Degraded is set when extraction fell back to an empty
// filter; it always wraps ErrExtractionDegraded.
type Extraction struct {
	Filter   *model.QueryFilter
	Residual string
	Degraded error
	Repairs  []string
}

// FilterExtractor turns a raw query into an Extraction. It never fails hard.
type FilterExtractor interface {
	Extract(ctx context.Context, query string) *Extraction
}

// StreamingExtractor can report completion chunks while extracting
type StreamingExtractor interface {
	FilterExtractor
	ExtractStream(ctx context.Context, query string, onChunk StreamCallback) *Extraction
}

// StreamingCompletionClient is implemented by providers that can stream a completion
type StreamingCompletionClient interface {
	CompleteStream(ctx context.Context, system, user string, onChunk StreamCallback) (string, error)
}

// degraded builds the pure-semantic fallback for query.
func degraded(query string, cause error) *Extraction {
	metrics.ExtractionDegraded.Inc()
	return &Extraction{
		Filter:   &model.QueryFilter{},
		Residual: query,
		Degraded: fmt.Errorf("%w: %w", ErrExtractionDegraded, cause),
	}
}

const extractionPrompt = `You are a real estate search assistant for US residential listings. Parse the user's natural language query into structured filters.

Extract the following information if present:
- min_price: minimum price in USD (number)
- max_price: maximum price in USD (number)
- min_bedrooms: minimum number of bedrooms (number)
- min_bathrooms: minimum number of bathrooms (number)
- min_square_feet: minimum living area in square feet (number)
- property_type: must be one of: "house", "apartment", "condo", "townhouse", "studio" (string)
- city: city name as written by the user (string)
- state: two-letter US state code (string)
- neighborhood: neighborhood name (string)
- required_amenities: array of amenities the listing must have
- residual_text: the descriptive part of the query that is not captured by the fields above (string)

Known amenities: %s

Important rules:
- Respond ONLY with valid JSON
- If a field is not mentioned, omit it. Never guess values that were not stated
- For prices: "1.5M" = 1500000, "500k" = 500000
- "under", "below", "at most" set max_price; "over", "above", "at least" set min_price
- "2 bedroom" means min_bedrooms 2
- residual_text keeps style and vibe words such as "modern", "ocean views", "quiet"

Examples:
Query: "2 bedroom condo in Miami under $500k with a pool"
Response: {"min_bedrooms": 2, "property_type": "condo", "city": "Miami", "max_price": 500000, "required_amenities": ["pool"], "residual_text": ""}

Query: "Pet friendly apartment in Denver with balcony"
Response: {"property_type": "apartment", "city": "Denver", "required_amenities": ["pet_friendly", "balcony"], "residual_text": ""}

Query: "Beachfront house in California over 2 million"
Response: {"property_type": "house", "state": "CA", "min_price": 2000000, "residual_text": "beachfront"}

Query: "something modern"
Response: {"residual_text": "something modern"}`

// rawExtraction is the completion payload. Numbers may arrive as amount strings.
type rawExtraction struct {
	MinPrice          utils.FlexNumber `json:"min_price"`
	MaxPrice          utils.FlexNumber `json:"max_price"`
	MinBedrooms       utils.FlexNumber `json:"min_bedrooms"`
	MinBathrooms      utils.FlexNumber `json:"min_bathrooms"`
	MinSquareFeet     utils.FlexNumber `json:"min_square_feet"`
	PropertyType      *string          `json:"property_type"`
	City              *string          `json:"city"`
	State             *string          `json:"state"`
	Neighborhood      *string          `json:"neighborhood"`
	RequiredAmenities []string         `json:"required_amenities"`
	ResidualText      *string          `json:"residual_text"`
}

// LLMExtractor extracts filters with a chat completion in JSON mode
type LLMExtractor struct {
	client  CompletionClient
	timeout time.Duration
	prompt  string
	logger  *zap.SugaredLogger
}

// NewLLMExtractor creates an extractor over client. A nil client yields
// degraded extractions.
func NewLLMExtractor(client CompletionClient, timeout time.Duration) *LLMExtractor {
	return &LLMExtractor{
		client:  client,
		timeout: timeout,
		prompt:  fmt.Sprintf(extractionPrompt, strings.Join(utils.CanonicalAmenities(), ", ")),
		logger:  log.Named("extractor"),
	}
}

// Extract implements FilterExtractor
func (e *LLMExtractor) Extract(ctx context.Context, query string) *Extraction {
	return e.ExtractStream(ctx, query, nil)
}

// ExtractStream extracts like Extract, streaming completion chunks to onChunk
// when the client supports it.
func (e *LLMExtractor) ExtractStream(ctx context.Context, query string, onChunk StreamCallback) *Extraction {
	if e.client == nil {
		return degraded(query, fmt.Errorf("%w: completion client not configured", ErrServiceUnavailable))
	}
	if enabled, ok := e.client.(interface{ IsEnabled() bool }); ok && !enabled.IsEnabled() {
		return degraded(query, fmt.Errorf("%w: completion client disabled", ErrServiceUnavailable))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		content string
		err     error
	)
	if streamer, ok := e.client.(StreamingCompletionClient); ok && onChunk != nil {
		content, err = streamer.CompleteStream(ctx, e.prompt, query, onChunk)
	} else {
		content, err = e.client.Complete(ctx, e.prompt, query)
	}
	if err != nil {
		if !errors.Is(err, ErrServiceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
		e.logger.Warnw("Completion failed, falling back to semantic search", "error", err)
		return degraded(query, err)
	}

	var raw rawExtraction
	if err := utils.ParseAIJSON(content, &raw); err != nil {
		e.logger.Warnw("Unparseable completion, falling back to semantic search", "error", err)
		return degraded(query, err)
	}

	extraction := e.toExtraction(&raw)
	if extraction.Filter.IsEmpty() && raw.ResidualText == nil {
		return degraded(query, errors.New("completion carried no recognizable fields"))
	}

	e.logger.Debugf("Extracted %s, residual %q", extraction.Filter, extraction.Residual)
	return extraction
}

func (e *LLMExtractor) toExtraction(raw *rawExtraction) *Extraction {
	var notes []string
	integer := func(name string, n utils.FlexNumber) *int64 {
		v, ok := roundedInt(n)
		if !ok {
			notes = append(notes, fmt.Sprintf("discarded out of range %s %g", name, n.Value))
		}
		return v
	}

	f := &model.QueryFilter{
		MinPrice:      integer(model.CriterionMinPrice, raw.MinPrice),
		MaxPrice:      integer(model.CriterionMaxPrice, raw.MaxPrice),
		MinBedrooms:   floatOrNil(raw.MinBedrooms),
		MinBathrooms:  floatOrNil(raw.MinBathrooms),
		MinSquareFeet: integer(model.CriterionMinSquareFeet, raw.MinSquareFeet),
		City:          raw.City,
		State:         raw.State,
		Neighborhood:  raw.Neighborhood,
	}
	if f.State != nil {
		upper := strings.ToUpper(strings.TrimSpace(*f.State))
		f.State = &upper
	}

	if raw.PropertyType != nil && strings.TrimSpace(*raw.PropertyType) != "" {
		if pt, ok := model.ParsePropertyType(*raw.PropertyType); ok {
			f.PropertyType = &pt
		} else {
			notes = append(notes, fmt.Sprintf("dropped unknown property_type %q", *raw.PropertyType))
		}
	}

	residual := ""
	if raw.ResidualText != nil {
		residual = strings.TrimSpace(*raw.ResidualText)
	}

	tags, unknown := utils.NormalizeAmenities(raw.RequiredAmenities)
	if len(tags) > 0 {
		f.RequiredAmenities = tags
	}
	if len(unknown) > 0 {
		// still useful as descriptive text
		residual = strings.TrimSpace(residual + " " + strings.Join(unknown, " "))
		notes = append(notes, fmt.Sprintf("moved unknown amenities %v to semantic text", unknown))
	}

	notes = append(notes, f.Repair()...)
	return &Extraction{Filter: f, Residual: residual, Repairs: notes}
}

// roundedInt reports false only for a present value that does not fit in an int64
func roundedInt(n utils.FlexNumber) (*int64, bool) {
	if !n.Valid {
		return nil, true
	}
	v, ok := utils.RoundInt64(n.Value)
	if !ok {
		return nil, false
	}
	return &v, true
}

func floatOrNil(n utils.FlexNumber) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
