package client

import (
	"context"
	"fmt"

	"github.com/bz888/champs/internal/config"
)

// NewProvider builds the upstream client selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case config.ProviderGroq:
		provider, err = NewOpenAIClient(config.ProviderGroq, baseURLOr(cfg.BaseURL, GroqBaseURL), cfg.APIKey(), nil)
	case config.ProviderOpenAI:
		provider, err = NewOpenAIClient(config.ProviderOpenAI, baseURLOr(cfg.BaseURL, OpenAIBaseURL), cfg.APIKey(), nil)
	case config.ProviderOllama:
		provider, err = NewOllamaClient(baseURLOr(cfg.BaseURL, cfg.OllamaHost), nil)
	case config.ProviderGemini:
		provider, err = NewGeminiClient(ctx, cfg.APIKey())
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func baseURLOr(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
