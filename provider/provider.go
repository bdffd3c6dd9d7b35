package provider

import (
	"context"

	"github.com/shopscout/shopscout/config"
	openrouter_provider "github.com/shopscout/shopscout/provider/openrouter"
)

// Message represents a message in a conversation.
type Message = openrouter_provider.Message

// Provider is the interface that all LLM implementations must satisfy.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates an LLM client from configuration. OpenRouter speaks the
// OpenAI chat-completions dialect, so any base_url implementing it works.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openrouter_provider.NewClient(openrouter_provider.Options{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		Timeout:        cfg.Timeout,
		Referer:        cfg.Referer,
		AppTitle:       cfg.AppTitle,
	}), nil
}
