package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/redline/internal/core/model"
)

type mockEmbedder struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.fail[text] {
		return nil, errors.New("rate limited")
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedAll(t *testing.T) {
	client := &mockEmbedder{fail: map[string]bool{"broken": true}}
	e := NewEmbedder(client, NewCache(), 2, nil)

	clauses := []model.Clause{
		{ID: "1", Text: "alpha", DocVersion: "v1"},
		{ID: "2", Text: "broken", DocVersion: "v1"},
		{ID: "3", Text: "given", DocVersion: "v1"},
	}
	failed, err := e.EmbedAll(context.Background(), clauses, map[string][]float32{"3": {9, 9}})
	require.NoError(t, err)

	require.Len(t, failed, 1)
	var pErr *model.ProviderError
	require.True(t, errors.As(failed[0], &pErr))
	assert.Equal(t, "2", pErr.ClauseID)
	assert.ErrorIs(t, failed[0], model.ErrProvider)

	v, ok := e.Cache().Get(clauses[0])
	require.True(t, ok)
	assert.Equal(t, []float32{5, 1}, v)
	v, _ = e.Cache().Get(clauses[2])
	assert.Equal(t, []float32{9, 9}, v)
	assert.Equal(t, int32(2), client.calls.Load())

	// Cached clauses are not embedded again.
	_, err = e.EmbedAll(context.Background(), clauses[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestEmbedAll_VersionsDoNotCollide(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{}, NewCache(), 4, nil)
	old := model.Clause{ID: "1", Text: "a", DocVersion: "v1"}
	cur := model.Clause{ID: "1", Text: "abc", DocVersion: "v2"}

	_, err := e.EmbedAll(context.Background(), []model.Clause{old, cur}, nil)
	require.NoError(t, err)

	a, _ := e.Cache().Get(old)
	b, _ := e.Cache().Get(cur)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, e.Cache().Len())
}

func TestEmbedAll_NoProvider(t *testing.T) {
	e := NewEmbedder(nil, NewCache(), 1, nil)
	failed, err := e.EmbedAll(context.Background(), []model.Clause{{ID: "x", Text: "t"}}, nil)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestEmbedAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEmbedder(&mockEmbedder{}, NewCache(), 1, nil)
	_, err := e.EmbedAll(ctx, []model.Clause{{ID: "x", Text: "t"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
