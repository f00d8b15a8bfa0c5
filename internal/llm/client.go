// Package llm abstracts the external completion providers behind a
// single Client interface. Failures here are always recoverable:
// callers degrade to canned responses, never surface provider errors.
package llm

import (
	"context"
	"fmt"
)

// ChatMessage is one turn of conversation history for the provider.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest carries the system prompt and history window.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is the provider's reply plus accounting data.
type CompletionResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for completion providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	// Implementations must respect ctx cancellation and deadlines.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of completion provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// NewClient creates a completion client for the configured provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", provider)
	}
}
