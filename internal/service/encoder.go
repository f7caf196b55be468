package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"propsearch/internal/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EncoderConfig holds query encoding settings
type EncoderConfig struct {
	Dimensions        int
	Timeout           time.Duration
	MinResidualTokens int
	CacheSize         int
}

// Encoder maps query text to a unit vector in the listing embedding space
type Encoder struct {
	client EmbeddingClient
	cfg    EncoderConfig
	cache  *lru.Cache[string, []float32]
}

// NewEncoder creates an encoder. CacheSize <= 0 disables the cache.
func NewEncoder(client EmbeddingClient, cfg EncoderConfig) (*Encoder, error) {
	e := &Encoder{client: client, cfg: cfg}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// SemanticText picks the text to embed: the residual, unless it is too thin
// to carry meaning, in which case the whole original query.
func (e *Encoder) SemanticText(residual, original string) string {
	residual = strings.TrimSpace(residual)
	if len(meaningfulTokens(residual)) < e.cfg.MinResidualTokens || residual == "" {
		return strings.TrimSpace(original)
	}
	return residual
}

// Encode embeds text and normalises it to unit length. Every failure is a
// RetrievalError at the encode stage.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return nil, &RetrievalError{Stage: "encode", Err: errors.New("nothing to encode")}
	}
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			metrics.EmbeddingCache.WithLabelValues("hit").Inc()
			return v, nil
		}
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
	}
	if e.client == nil {
		return nil, &RetrievalError{Stage: "encode", Err: fmt.Errorf("%w: embedding client not configured", ErrServiceUnavailable)}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	vectors, err := e.client.CreateEmbeddings(ctx, []string{key})
	if err != nil {
		return nil, &RetrievalError{Stage: "encode", Err: err}
	}
	if len(vectors) != 1 {
		return nil, &RetrievalError{Stage: "encode", Err: fmt.Errorf("expected 1 embedding, got %d", len(vectors))}
	}
	if e.cfg.Dimensions > 0 && len(vectors[0]) != e.cfg.Dimensions {
		return nil, &RetrievalError{Stage: "encode", Err: fmt.Errorf("dimension mismatch: expected %d, got %d", e.cfg.Dimensions, len(vectors[0]))}
	}

	v, err := Normalize(vectors[0])
	if err != nil {
		return nil, &RetrievalError{Stage: "encode", Err: err}
	}
	if e.cache != nil {
		e.cache.Add(key, v)
	}
	return v, nil
}

// Normalize returns v scaled to unit length. Zero and non-finite vectors
// cannot be normalised.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, errors.New("embedding has no direction")
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
