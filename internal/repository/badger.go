package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"propsearch/internal/model"
	"propsearch/pkg/log"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/vmihailenco/msgpack"
	"go.uber.org/zap"
)

const listingPrefix = "listing:"

// BadgerRepository is an embedded PropertyIndex. Queries scan every active
// listing, apply the predicate and rank the survivors by dot product, which
// equals cosine similarity for the unit vectors the indexer stores.
type BadgerRepository struct {
	db *badger.DB
}

// storedListing is the msgpack value kept under listing:<id>
type storedListing struct {
	Listing model.PropertyListing `msgpack:"listing"`
	Vector  []float32             `msgpack:"vector"`
}

// badgerLogger routes badger's internal logging to zap
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...interface{})   { l.sugar.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...interface{}) { l.sugar.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...interface{})    { l.sugar.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...interface{})   { l.sugar.Debugf(msg, items...) }

// NewBadgerRepository opens (or creates) a badger database at path.
func NewBadgerRepository(path string, inMemory bool) (*BadgerRepository, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLogger{sugar: log.Named("badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerRepository{db: db}, nil
}

// Close closes the database
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

func (r *BadgerRepository) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := r.db.NewTransaction(isWrite)
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	if isWrite {
		return tx.Commit()
	}
	return nil
}

func listingKey(id string) []byte {
	return []byte(listingPrefix + id)
}

// Upsert stores listings and vectors, replacing existing entries
func (r *BadgerRepository) Upsert(ctx context.Context, listings []model.IndexedListing) error {
	return r.withTx(func(tx *badger.Txn) error {
		for _, item := range listings {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := msgpack.Marshal(&storedListing{Listing: item.Listing, Vector: item.Vector})
			if err != nil {
				return fmt.Errorf("property_id %s: %w", item.Listing.ID(), err)
			}
			if err := tx.Set(listingKey(item.Listing.ID()), raw); err != nil {
				return fmt.Errorf("property_id %s: %w", item.Listing.ID(), err)
			}
		}
		return nil
	}, true)
}

// Query applies the predicate to every listing, then keeps the TopK most
// similar ones at or above MinScore.
func (r *BadgerRepository) Query(ctx context.Context, q model.VectorQuery) ([]model.Candidate, error) {
	var candidates []model.Candidate

	err := r.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(listingPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored storedListing
			if err := iter.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", iter.Item().Key(), err)
			}
			if !q.Predicate.Matches(&stored.Listing.Metadata) {
				continue
			}
			if len(stored.Vector) != len(q.Vector) {
				return fmt.Errorf("dimension mismatch for %s: stored %d, query %d",
					stored.Listing.ID(), len(stored.Vector), len(q.Vector))
			}
			score := dotProduct(q.Vector, stored.Vector)
			if score < q.MinScore {
				continue
			}
			candidates = append(candidates, model.Candidate{Listing: stored.Listing, SemanticScore: score})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	SortCandidates(candidates)
	if q.TopK > 0 && len(candidates) > q.TopK {
		candidates = candidates[:q.TopK]
	}
	return candidates, nil
}

// Get returns one listing by id.
func (r *BadgerRepository) Get(ctx context.Context, id string) (*model.PropertyListing, error) {
	var stored storedListing
	err := r.withTx(func(tx *badger.Txn) error {
		item, err := tx.Get(listingKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &stored)
		})
	}, false)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stored.Listing, nil
}

// Delete removes listings by property id
func (r *BadgerRepository) Delete(ctx context.Context, ids ...string) error {
	return r.withTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(listingKey(id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
}

// Stats counts stored listings
func (r *BadgerRepository) Stats(ctx context.Context) (*model.IndexStats, error) {
	stats := &model.IndexStats{Backend: "badger"}
	err := r.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(listingPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stats.TotalProperties++
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
