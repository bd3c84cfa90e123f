package llm

import (
	"context"
)

// LLMClient generates a completion for a single prompt. The comparator treats
// whatever it returns as untrusted text.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelVersion identifies the provider and model that produced an answer. It
// is recorded in provenance and audit records.
func ModelVersion(provider, model string) string {
	if model == "" {
		return provider
	}
	return provider + "/" + model
}
