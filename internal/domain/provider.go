package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "ollama").
	Name() string
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed after the final delta; errors after the stream
	// has opened are delivered in-band by the stream generator.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}

// ProviderResolver maps a model identifier to a provider handle. A fresh
// handle is constructed per call so no request shares mutable client state.
type ProviderResolver interface {
	// Resolve returns the provider for a model id and the provider-local
	// model name. Failure to resolve is a request-time error.
	Resolve(modelID string) (StreamingLLMProvider, string, error)
}
