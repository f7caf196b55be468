package service

import (
	"context"
)

// CompletionClient returns the raw text of a single chat completion
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EmbeddingClient turns texts into vectors, one per text, in input order
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// AIClient is a provider that serves both completions and embeddings
type AIClient interface {
	CompletionClient
	EmbeddingClient

	// IsEnabled returns whether the client is configured and ready
	IsEnabled() bool
}

// StreamChunk is one provider-neutral piece of a streamed completion
type StreamChunk struct {
	Content string

	// Reasoning content (provider-specific, e.g. DeepSeek on NVIDIA)
	ThinkingContent string

	Role string
	Done bool
}

// Ensure both providers implement AIClient
var (
	_ AIClient = (*OpenAIClient)(nil)
	_ AIClient = (*LangchainClient)(nil)
)
