package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/redline/internal/config"
	"go.uber.org/zap"
)

// NewClient builds the oracle and embedding clients for the configured
// provider. The embedder is nil for providers without an embeddings API.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (LLMClient, EmbedderClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.BaseURL)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return c, c, nil

	case "claude", "anthropic":
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return c, nil, nil

	case "ollama":
		// Ollama speaks the OpenAI API under /v1.
		baseURL := OllamaBaseURL(cfg.BaseURL)
		logger.Info("using ollama through openai-compatible api", zap.String("base_url", baseURL))

		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama" // ignored by ollama, required by the client
		}
		embedModel := cfg.EmbeddingModel
		if embedModel == "" {
			embedModel = "nomic-embed-text"
		}
		c := NewOpenAIClient(apiKey, cfg.Model, embedModel, baseURL)
		return c, c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

func OllamaBaseURL(baseURL string) string {
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/v1"
}
