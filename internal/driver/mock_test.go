package driver

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
)

type executed struct {
	Query  string
	Params map[string]any
}

type MockDriver struct {
	mu         sync.Mutex
	Executed   []executed
	MockResult neo4j.EagerResult
	Err        error
	Closed     bool
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, executed{Query: query, Params: params})
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}

func (m *MockDriver) queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Executed))
	for i, e := range m.Executed {
		out[i] = e.Query
	}
	return out
}

func oneRecord() neo4j.EagerResult {
	return neo4j.EagerResult{
		Keys:    []string{"id"},
		Records: []*db.Record{{Keys: []string{"id"}, Values: []any{"r1"}}},
	}
}
