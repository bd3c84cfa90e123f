package llm

import (
	"context"
	"testing"

	"github.com/agenthands/redline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	gen, emb, err := NewClient(ctx, config.LLMConfig{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)
	assert.NotNil(t, emb)

	gen, emb, err = NewClient(ctx, config.LLMConfig{Provider: "claude", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClient{}, gen)
	assert.Nil(t, emb)

	gen, _, err = NewClient(ctx, config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", gen.(*OpenAIClient).embedModel)

	_, _, err = NewClient(ctx, config.LLMConfig{Provider: "bard"}, nil)
	assert.Error(t, err)
}

func TestOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1", OllamaBaseURL("http://localhost:11434"))
	assert.Equal(t, "http://localhost:11434/v1", OllamaBaseURL("http://localhost:11434/"))
	assert.Equal(t, "http://host/v1", OllamaBaseURL("http://host/v1"))
}

func TestModelVersion(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o", ModelVersion("openai", "gpt-4o"))
	assert.Equal(t, "rules", ModelVersion("rules", ""))
}
