package comparator

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/redline/internal/core/model"
)

type step struct {
	body  map[string]any
	raw   string
	err   error
	block bool
}

// MockOracle replays scripted steps; the last step repeats.
type MockOracle struct {
	mu      sync.Mutex
	Steps   []step
	Version string
	Calls   int
	Prompts []string
}

func (m *MockOracle) ModelVersion() string {
	if m.Version == "" {
		return "mock/v1"
	}
	return m.Version
}

func (m *MockOracle) Compare(ctx context.Context, req OracleRequest) (RawResponse, error) {
	m.mu.Lock()
	i := min(m.Calls, len(m.Steps)-1)
	m.Calls++
	m.Prompts = append(m.Prompts, req.Prompt)
	s := m.Steps[i]
	m.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return RawResponse{}, ctx.Err()
	}
	if s.err != nil {
		return RawResponse{}, s.err
	}
	raw := s.raw
	if raw == "" {
		raw = "{...}"
	}
	return RawResponse{Body: s.body, Raw: raw}, nil
}

func (m *MockOracle) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

type MockLLMClient struct {
	Response string
	Err      error
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []State
	outcomes    []model.ValidationOutcome
	finalized   int
}

func (r *recordingObserver) Transition(_ string, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *recordingObserver) Attempt(outcome model.ValidationOutcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingObserver) Finalized(*model.ComparisonResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized++
}

func (r *recordingObserver) count(s State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.transitions {
		if t == s {
			n++
		}
	}
	return n
}
