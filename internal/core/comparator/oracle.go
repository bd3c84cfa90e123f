package comparator

import (
	"context"
	"fmt"

	"github.com/agenthands/redline/internal/core/common"
	"github.com/agenthands/redline/internal/llm"
)

// OracleRequest carries a rendered prompt and the pair it was rendered from.
type OracleRequest struct {
	ResultID string
	Prompt   string
	OldText  string
	NewText  string
	Metadata string
	Hints    string
	// Attempt is 1 for the first call and grows with every retry.
	Attempt int
}

// RawResponse is oracle output before validation. Body is nil when the text
// could not be parsed as a JSON object.
type RawResponse struct {
	Body       map[string]any
	Raw        string
	ParseError string
}

// Oracle produces an untrusted semantic diff for a clause pair.
type Oracle interface {
	Compare(ctx context.Context, req OracleRequest) (RawResponse, error)
	ModelVersion() string
}

// LLMOracle asks a language model for the diff and decodes its answer.
type LLMOracle struct {
	LLM     llm.LLMClient
	Version string
}

func NewLLMOracle(client llm.LLMClient, modelVersion string) *LLMOracle {
	return &LLMOracle{LLM: client, Version: modelVersion}
}

func (o *LLMOracle) ModelVersion() string {
	return o.Version
}

func (o *LLMOracle) Compare(ctx context.Context, req OracleRequest) (RawResponse, error) {
	response, err := o.LLM.Generate(ctx, req.Prompt)
	if err != nil {
		return RawResponse{}, fmt.Errorf("failed to generate comparison: %w", err)
	}

	body, err := common.ParseJSON[map[string]any](response)
	if err != nil {
		return RawResponse{Raw: response, ParseError: err.Error()}, nil
	}
	return RawResponse{Body: body, Raw: response}, nil
}
