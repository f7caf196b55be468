package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"propsearch/internal/metrics"
	"propsearch/internal/model"
	"propsearch/internal/repository"
	"propsearch/pkg/log"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Indexer validates listings, embeds their searchable content and upserts
// them. Batches are embedded concurrently on a worker pool.
type Indexer struct {
	index      repository.PropertyIndex
	embedder   EmbeddingClient
	pool       *ants.Pool
	batchSize  int
	dimensions int
	now        func() time.Time
	logger     *zap.SugaredLogger
}

// NewIndexer creates an indexer with workers concurrent batches. Call
// Release when done.
func NewIndexer(index repository.PropertyIndex, embedder EmbeddingClient, batchSize, workers, dimensions int) (*Indexer, error) {
	if batchSize < 1 {
		batchSize = 100
	}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}
	return &Indexer{
		index:      index,
		embedder:   embedder,
		pool:       pool,
		batchSize:  batchSize,
		dimensions: dimensions,
		now:        time.Now,
		logger:     log.Named("indexer"),
	}, nil
}

// Release stops the worker pool
func (i *Indexer) Release() {
	i.pool.Release()
}

// Upsert indexes listings. Invalid listings and failed batches are reported
// per property id; the rest are indexed.
func (i *Indexer) Upsert(ctx context.Context, listings []model.PropertyListing) *model.IngestResponse {
	resp := &model.IngestResponse{}
	var mu sync.Mutex
	fail := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		resp.Failed++
		resp.Errors = append(resp.Errors, model.IngestError{PropertyID: id, Error: err.Error()})
		metrics.ListingsIndexed.WithLabelValues("failed").Inc()
	}

	now := i.now().UTC()
	valid := make([]model.PropertyListing, 0, len(listings))
	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		l.Normalize(now)
		if err := l.Validate(); err != nil {
			fail(l.ID(), err)
			continue
		}
		if seen[l.ID()] {
			fail(l.ID(), fmt.Errorf("%w: duplicate property_id in request", model.ErrInvalidListing))
			continue
		}
		seen[l.ID()] = true
		valid = append(valid, l)
	}

	var wg sync.WaitGroup
	for start := 0; start < len(valid); start += i.batchSize {
		end := start + i.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()
			if err := i.indexBatch(ctx, batch); err != nil {
				i.logger.Warnw("Batch failed", "size", len(batch), "error", err)
				for _, l := range batch {
					fail(l.ID(), err)
				}
				return
			}
			mu.Lock()
			resp.Indexed += len(batch)
			mu.Unlock()
			metrics.ListingsIndexed.WithLabelValues("indexed").Add(float64(len(batch)))
		})
		if err != nil {
			wg.Done()
			for _, l := range batch {
				fail(l.ID(), err)
			}
		}
	}
	wg.Wait()

	i.logger.Infof("Indexed %d listings, %d failed", resp.Indexed, resp.Failed)
	return resp
}

func (i *Indexer) indexBatch(ctx context.Context, batch []model.PropertyListing) error {
	texts := make([]string, len(batch))
	for j := range batch {
		texts[j] = batch[j].SearchableContent()
	}

	vectors, err := i.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding failed: got %d vectors for %d listings", len(vectors), len(batch))
	}

	items := make([]model.IndexedListing, len(batch))
	for j := range batch {
		if i.dimensions > 0 && len(vectors[j]) != i.dimensions {
			return fmt.Errorf("dimension mismatch for %s: expected %d, got %d", batch[j].ID(), i.dimensions, len(vectors[j]))
		}
		v, err := Normalize(vectors[j])
		if err != nil {
			return fmt.Errorf("%s: %w", batch[j].ID(), err)
		}
		items[j] = model.IndexedListing{Listing: batch[j], Vector: v}
	}

	if err := i.index.Upsert(ctx, items); err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}
	return nil
}

// Get returns one listing, nil when unknown
func (i *Indexer) Get(ctx context.Context, id string) (*model.PropertyListing, error) {
	return i.index.Get(ctx, id)
}

// Delete removes listings by property id
func (i *Indexer) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return errors.New("no property ids given")
	}
	return i.index.Delete(ctx, ids...)
}

// Stats reports index size
func (i *Indexer) Stats(ctx context.Context) (*model.IndexStats, error) {
	stats, err := i.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Dimensions = i.dimensions
	return stats, nil
}
