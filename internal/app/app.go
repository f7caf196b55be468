package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"propsearch/internal/config"
	"propsearch/internal/model"
	"propsearch/internal/repository"
	"propsearch/internal/service"
	"propsearch/pkg/log"
)

// App holds the wired search pipeline shared by the server and the CLI
type App struct {
	Config  *config.Config
	Index   repository.PropertyIndex
	Search  *service.SearchService
	Indexer *service.Indexer
}

// New connects the configured index and AI provider and builds the pipeline
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	index, err := newIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ai, err := newAIClient(cfg)
	if err != nil {
		index.Close()
		return nil, err
	}

	app, err := newApp(cfg, index, ai)
	if err != nil {
		index.Close()
		return nil, err
	}
	return app, nil
}

// newApp builds the pipeline over an index and an AI client. A nil client
// leaves extraction degraded and encoding unavailable.
func newApp(cfg *config.Config, index repository.PropertyIndex, ai service.AIClient) (*App, error) {
	var extractor service.FilterExtractor
	switch cfg.Search.Extractor {
	case config.ExtractorRules:
		extractor = service.NewRuleExtractor()
	default:
		var completion service.CompletionClient
		if ai != nil {
			completion = ai
		}
		extractor = service.NewLLMExtractor(completion, cfg.Search.ExtractionTimeout)
	}

	var embedder service.EmbeddingClient
	if ai != nil {
		embedder = ai
	}

	encoder, err := service.NewEncoder(embedder, service.EncoderConfig{
		Dimensions:        cfg.OpenAI.EmbeddingDimensions,
		Timeout:           cfg.Search.EncodingTimeout,
		MinResidualTokens: cfg.Search.MinResidualTokens,
		CacheSize:         cfg.Search.EmbeddingCacheSize,
	})
	if err != nil {
		return nil, err
	}

	retriever := service.NewRetriever(index, service.NewRelaxer(cfg.Relaxation), service.RetrieverConfig{
		MinSimilarity: cfg.Search.MinSimilarity,
		Timeout:       cfg.Search.RetrievalTimeout,
	})
	ranker := service.NewRanker(cfg.Ranking.SemanticWeight)

	indexer, err := service.NewIndexer(index, embedder, cfg.Ingest.BatchSize, cfg.Ingest.Workers, cfg.OpenAI.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	log.Infow("Services initialized",
		"backend", cfg.Index.Backend,
		"extractor", cfg.Search.Extractor,
		"ai_provider", cfg.OpenAI.Provider,
		"ai_enabled", ai != nil,
	)

	return &App{
		Config:  cfg,
		Index:   index,
		Search:  service.NewSearchService(extractor, encoder, retriever, ranker, cfg.Search),
		Indexer: indexer,
	}, nil
}

// Close releases the worker pool and the index connection
func (a *App) Close() error {
	a.Indexer.Release()
	return a.Index.Close()
}

func newIndex(ctx context.Context, cfg *config.Config) (repository.PropertyIndex, error) {
	dims := cfg.OpenAI.EmbeddingDimensions

	switch cfg.Index.Backend {
	case config.BackendElasticsearch:
		repo, err := repository.NewElasticsearchRepository(
			cfg.Elasticsearch.Addresses,
			cfg.Elasticsearch.Username,
			cfg.Elasticsearch.Password,
			cfg.Elasticsearch.Index,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
		}
		if cfg.Index.EnsureSchema {
			if err := repo.EnsureIndex(ctx, dims); err != nil {
				repo.Close()
				return nil, err
			}
		}
		log.Infof("Connected to Elasticsearch index %s", cfg.Elasticsearch.Index)
		return repo, nil

	case config.BackendBadger:
		repo, err := repository.NewBadgerRepository(cfg.Badger.Path, cfg.Badger.InMemory)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger index: %w", err)
		}
		log.Infof("Opened embedded index (in memory: %v)", cfg.Badger.InMemory)
		return repo, nil

	default:
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.Table,
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Index.EnsureSchema {
			if err := repo.EnsureSchema(ctx, dims); err != nil {
				repo.Close()
				return nil, err
			}
		}
		log.Infof("Connected to PostgreSQL table %s", cfg.PostgreSQL.Table)
		return repo, nil
	}
}

// newAIClient returns nil when no API key is configured
func newAIClient(cfg *config.Config) (service.AIClient, error) {
	if !cfg.OpenAI.Enabled {
		log.Warnf("OpenAI is disabled; set OPENAI_API_KEY to enable extraction and embeddings")
		return nil, nil
	}

	switch cfg.OpenAI.Provider {
	case config.ProviderLangchain:
		client, err := service.NewLangchainClient(&cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("failed to create langchain client: %w", err)
		}
		log.Infof("Langchain client initialized (chat %s, embeddings %s)", cfg.OpenAI.ChatModel, cfg.OpenAI.EmbeddingModel)
		return client, nil
	default:
		log.Infof("OpenAI client initialized (base %s, chat %s, embeddings %s)",
			cfg.OpenAI.APIBase, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbeddingModel)
		return service.NewOpenAIClient(&cfg.OpenAI), nil
	}
}

// LoadListings reads a JSON array of listings, or an object with a
// "listings" array, from path.
func LoadListings(path string) ([]model.PropertyListing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	var listings []model.PropertyListing
	if err := json.Unmarshal(data, &listings); err == nil {
		return listings, nil
	}

	var req model.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse listings in %s: %w", path, err)
	}
	if req.Listings == nil {
		return nil, errors.New("no listings found in " + path)
	}
	return req.Listings, nil
}
