package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"propsearch/internal/config"
	"propsearch/internal/metrics"
	"propsearch/internal/model"
	"propsearch/pkg/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response notes
const (
	NoteNoFilters          = model.NoFiltersApplied
	NoteNoCandidatesFound  = "no candidates found; relaxation exhausted"
	NoteExtractionDegraded = "structured extraction unavailable; searched on the full query"
)

// SearchService runs the hybrid pipeline: extract, encode, retrieve, rank
type SearchService struct {
	extractor FilterExtractor
	encoder   *Encoder
	retriever *Retriever
	ranker    *Ranker
	cfg       config.SearchConfig
	logger    *zap.SugaredLogger
}

// NewSearchService creates a new search service
func NewSearchService(
	extractor FilterExtractor,
	encoder *Encoder,
	retriever *Retriever,
	ranker *Ranker,
	cfg config.SearchConfig,
) *SearchService {
	return &SearchService{
		extractor: extractor,
		encoder:   encoder,
		retriever: retriever,
		ranker:    ranker,
		cfg:       cfg,
		logger:    log.Named("search"),
	}
}

// SearchEventCallback is called for streaming search events
type SearchEventCallback func(event string, data any) error

// Search resolves query into ranked, explained results. Overrides win over
// extracted values per field and are rejected with model.ErrInvalidFilter
// when unsatisfiable.
func (s *SearchService) Search(ctx context.Context, query string, topK int, overrides *model.QueryFilter) (*model.SearchResponse, error) {
	return s.run(ctx, query, topK, overrides, nil)
}

// SearchStream runs Search while reporting each stage to callback
func (s *SearchService) SearchStream(ctx context.Context, query string, topK int, overrides *model.QueryFilter, callback SearchEventCallback) (*model.SearchResponse, error) {
	return s.run(ctx, query, topK, overrides, callback)
}

func (s *SearchService) run(ctx context.Context, query string, topK int, overrides *model.QueryFilter, emit SearchEventCallback) (*model.SearchResponse, error) {
	startTime := time.Now()
	streaming := emit != nil
	if emit == nil {
		emit = func(string, any) error { return nil }
	}

	query = strings.TrimSpace(query)
	if query == "" {
		metrics.SearchRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, ErrEmptyQuery
	}
	topK = s.clampTopK(topK)

	if err := overrides.Validate(); err != nil {
		metrics.SearchRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	if err := emit("parsing", map[string]any{"status": "Parsing your query..."}); err != nil {
		return nil, err
	}

	stageStart := time.Now()
	extraction := s.extract(ctx, query, streaming, emit)
	metrics.SearchLatency.WithLabelValues("extract").Observe(time.Since(stageStart).Seconds())

	applied, repairs := extraction.Filter.MergeRepair(overrides)
	notes := append([]string{}, extraction.Repairs...)
	notes = append(notes, repairs...)

	if err := emit("extracted", map[string]any{
		"filter":   applied,
		"residual": extraction.Residual,
		"degraded": extraction.Degraded != nil,
	}); err != nil {
		return nil, err
	}

	semanticText := s.encoder.SemanticText(extraction.Residual, query)
	stageStart = time.Now()
	vector, err := s.encoder.Encode(ctx, semanticText)
	metrics.SearchLatency.WithLabelValues("encode").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return nil, s.fail(query, err)
	}
	if err := emit("encoded", map[string]any{"semantic_text": semanticText, "dimensions": len(vector)}); err != nil {
		return nil, err
	}

	retrieval, err := s.retriever.RetrieveStream(ctx, vector, applied, topK, func(rx model.Relaxation) error {
		return emit("relaxed", rx)
	})
	if err != nil {
		return nil, s.fail(query, err)
	}

	stageStart = time.Now()
	results := s.ranker.Rank(retrieval.Candidates, applied, retrieval.Relaxations)
	metrics.SearchLatency.WithLabelValues("rank").Observe(time.Since(stageStart).Seconds())
	if err := emit("ranked", map[string]any{"count": len(results)}); err != nil {
		return nil, err
	}

	if applied.IsEmpty() {
		notes = append(notes, NoteNoFilters)
	}
	for _, rx := range retrieval.Relaxations {
		notes = append(notes, rx.String())
	}
	if len(results) == 0 {
		notes = append(notes, NoteNoCandidatesFound)
	}

	resp := &model.SearchResponse{
		SearchID:        uuid.New().String(),
		Query:           query,
		SemanticText:    semanticText,
		ExtractedFilter: extraction.Filter,
		AppliedFilter:   applied,
		EffectiveFilter: retrieval.Effective,
		Relaxations:     retrieval.Relaxations,
		Results:         results,
		Degraded:        extraction.Degraded != nil,
		Exhausted:       retrieval.Exhausted,
	}
	if resp.Degraded {
		resp.DegradedReason = extraction.Degraded.Error()
		notes = append(notes, NoteExtractionDegraded)
	}
	if resp.Relaxations == nil {
		resp.Relaxations = []model.Relaxation{}
	}
	if resp.Results == nil {
		resp.Results = []model.SearchResult{}
	}
	resp.Notes = notes
	resp.Took = time.Since(startTime).Milliseconds()

	outcome := metrics.OutcomeOK
	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.SearchRequests.WithLabelValues(outcome).Inc()
	metrics.SearchLatency.WithLabelValues("total").Observe(time.Since(startTime).Seconds())

	s.logger.Infow("Search completed",
		"search_id", resp.SearchID,
		"filter", applied.String(),
		"relaxations", len(resp.Relaxations),
		"results", len(results),
		"degraded", resp.Degraded,
		"took_ms", resp.Took,
	)
	return resp, nil
}

func (s *SearchService) extract(ctx context.Context, query string, streaming bool, emit SearchEventCallback) *Extraction {
	streamer, ok := s.extractor.(StreamingExtractor)
	if !ok || !streaming {
		return s.extractor.Extract(ctx, query)
	}
	return streamer.ExtractStream(ctx, query, func(chunk *StreamChunk) error {
		if chunk.ThinkingContent != "" {
			if err := emit("thinking", map[string]any{"content": chunk.ThinkingContent}); err != nil {
				return err
			}
		}
		if chunk.Content != "" {
			return emit("content", map[string]any{"content": chunk.Content})
		}
		return nil
	})
}

func (s *SearchService) clampTopK(topK int) int {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK <= 0 {
		topK = 5
	}
	if s.cfg.MaxTopK > 0 && topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}
	return topK
}

func (s *SearchService) fail(query string, err error) error {
	if errors.Is(err, ErrRetrievalFailed) {
		metrics.SearchRequests.WithLabelValues(metrics.OutcomeRetrievalFail).Inc()
		s.logger.Warnw("Search failed", "query", query, "error", err)
		return err
	}
	return fmt.Errorf("search failed: %w", err)
}
