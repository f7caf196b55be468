package service

import (
	"context"
	"time"

	"propsearch/internal/metrics"
	"propsearch/internal/model"
	"propsearch/internal/repository"
	"propsearch/pkg/log"

	"go.uber.org/zap"
)

// Retrieval is the outcome of one hybrid retrieval
type Retrieval struct {
	Candidates  []model.Candidate
	Effective   *model.QueryFilter
	Relaxations []model.Relaxation
	// State is the step the machine stopped in
	State     RelaxStep
	Exhausted bool
}

// RetrieverConfig holds retrieval settings
type RetrieverConfig struct {
	MinSimilarity float64
	Timeout       time.Duration
}

// Retriever runs pre-filtered vector queries, relaxing the filter while the
// result set is too sparse.
type Retriever struct {
	index   repository.PropertyIndex
	relaxer *Relaxer
	cfg     RetrieverConfig
	logger  *zap.SugaredLogger
}

// NewRetriever creates a retriever over index
func NewRetriever(index repository.PropertyIndex, relaxer *Relaxer, cfg RetrieverConfig) *Retriever {
	return &Retriever{
		index:   index,
		relaxer: relaxer,
		cfg:     cfg,
		logger:  log.Named("retriever"),
	}
}

// Retrieve returns at most topK candidates for vector under filter
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, filter *model.QueryFilter, topK int) (*Retrieval, error) {
	return r.RetrieveStream(ctx, vector, filter, topK, nil)
}

// RetrieveStream is Retrieve reporting every applied relaxation to onRelax.
// Re-queries are strictly sequential.
func (r *Retriever) RetrieveStream(ctx context.Context, vector []float32, filter *model.QueryFilter, topK int, onRelax func(model.Relaxation) error) (*Retrieval, error) {
	current := filter.Clone()
	candidates, err := r.query(ctx, vector, current, topK)
	if err != nil {
		return nil, err
	}

	out := &Retrieval{State: StepStrict}
	threshold := r.relaxer.Threshold(topK)

	for _, step := range RelaxationOrder {
		if len(candidates) >= threshold {
			break
		}
		next, relaxation := r.relaxer.Apply(step, current)
		if relaxation == nil {
			continue
		}

		candidates, err = r.query(ctx, vector, next, topK)
		if err != nil {
			return nil, err
		}
		current = next
		relaxation.CandidateCount = len(candidates)
		out.Relaxations = append(out.Relaxations, *relaxation)
		out.State = step
		metrics.RelaxationSteps.WithLabelValues(string(step)).Inc()
		r.logger.Debugf("Applied %s", relaxation)

		if onRelax != nil {
			if err := onRelax(*relaxation); err != nil {
				return nil, err
			}
		}
	}

	if len(candidates) < threshold {
		out.State = StepExhausted
		out.Exhausted = true
	}
	out.Candidates = candidates
	out.Effective = current
	return out, nil
}

// query issues one pre-filtered top-k request and enforces the similarity
// floor and the ordering regardless of what the backend returned.
func (r *Retriever) query(ctx context.Context, vector []float32, filter *model.QueryFilter, topK int) ([]model.Candidate, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	hits, err := r.index.Query(ctx, model.VectorQuery{
		Vector:    vector,
		Predicate: model.CompilePredicate(filter),
		TopK:      topK,
		MinScore:  r.cfg.MinSimilarity,
	})
	metrics.SearchLatency.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &RetrievalError{Stage: "retrieve", Err: err}
	}

	candidates := make([]model.Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.SemanticScore < r.cfg.MinSimilarity {
			continue
		}
		if hit.SemanticScore > 1 {
			hit.SemanticScore = 1
		}
		candidates = append(candidates, hit)
	}
	repository.SortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}
