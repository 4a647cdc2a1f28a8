package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "anthropic", "openai").
	Name() string
}

// EmbeddingProvider turns text into vectors for similarity search.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector width this provider produces.
	Dimensions() int
	// Name returns the provider's identifier (e.g., "openai", "ollama").
	Name() string
}

// TokenCounter estimates token usage for budget decisions. Estimates, not
// exact provider counts: good enough to keep a transcript under a limit.
type TokenCounter interface {
	CountText(s string) int
	CountMessages(msgs []Message) int
}
