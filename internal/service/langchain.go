package service

import (
	"context"
	"fmt"

	"propsearch/internal/config"
	"propsearch/pkg/log"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// LangchainClient serves completions and embeddings through langchaingo's
// OpenAI-compatible model, for providers the hand-rolled client does not
// speak to cleanly.
type LangchainClient struct {
	llm         llms.Model
	embedder    embeddings.Embedder
	temperature float64
	maxTokens   int
	enabled     bool
	logger      *zap.SugaredLogger
}

// NewLangchainClient builds the chat model and its embedder from config
func NewLangchainClient(cfg *config.OpenAIConfig) (*LangchainClient, error) {
	token := cfg.APIKey
	if token == "" {
		// local OpenAI-compatible services accept any token
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.APIBase),
		openai.WithToken(token),
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain embedder: %w", err)
	}

	return &LangchainClient{
		llm:         client,
		embedder:    embedder,
		temperature: cfg.ChatTemperature,
		maxTokens:   cfg.ChatMaxTokens,
		enabled:     cfg.Enabled,
		logger:      log.Named("langchain"),
	}, nil
}

// IsEnabled returns whether an API key was configured
func (c *LangchainClient) IsEnabled() bool {
	return c.enabled
}

// Complete asks the model for a JSON-mode answer to one system+user exchange
func (c *LangchainClient) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature), llms.WithJSONMode()}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	response, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(response.Choices) == 0 {
		c.logger.Debugf("no choices returned from model")
		return "", nil
	}
	return response.Choices[0].Content, nil
}

// CreateEmbeddings embeds texts in input order
func (c *LangchainClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrServiceUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}
