package llm

import (
	"context"
	"fmt"

	"github.com/vivekhaldar/mcpboot/internal/config"
)

// Client is the whole contract the generation pipeline has with an LLM:
// two strings in, text out. Transport failures surface as errors.
type Client interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// New builds the client for the configured provider.
func New(cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
