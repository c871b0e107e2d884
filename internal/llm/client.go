package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is the language-model oracle used by the agent and assembler.
// Implementations are stateless per call; retry policy belongs to callers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string

	// Generation knobs, applied per provider. Zero values mean provider
	// defaults.
	MaxTokens   int
	Temperature float64
}

// NewClient builds a client for the configured provider. The default
// provider is gemini, matching the primary deployment.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	switch provider {
	case "gemini":
		return NewGeminiClient(ctx, opts)
	case "openai":
		return NewOpenAIClient(opts), nil
	case "ollama":
		return NewOllamaClient(opts), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}
