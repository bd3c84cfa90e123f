package candidate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/embedding"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/similarity"
)

type mockIndex struct {
	neighbors []Neighbor
	err       error
}

func (m *mockIndex) Query(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.neighbors) > k {
		return m.neighbors[:k], nil
	}
	return m.neighbors, nil
}

func clause(version, id, text string, path ...string) model.Clause {
	return model.Clause{ID: id, Text: text, SectionPath: path, DocVersion: version}
}

type vec struct {
	c model.Clause
	v []float32
}

func fixture(t *testing.T, pairs ...vec) *embedding.Cache {
	t.Helper()
	cache := embedding.NewCache()
	for _, p := range pairs {
		cache.Put(p.c, p.v)
	}
	return cache
}

func TestGenerate_BoostSameID(t *testing.T) {
	oldC := clause("v1", "1.1", "The company may collect user data for analytics.", "Data")
	other := clause("v1", "9.9", "The company may collect user data for analytics purposes.", "Misc")
	newC := clause("v2", "1.1", "The company must collect user data for analytics and compliance.", "Data")

	cache := fixture(t,
		vec{oldC, []float32{1, 0.2, 0}},
		vec{other, []float32{1, 0.2, 0}},
		vec{newC, []float32{1, 0.25, 0}},
	)
	idx, err := NewMemoryIndex(context.Background(), []model.Clause{oldC, other}, cache)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	cfg := config.Default()
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), idx, cfg.Alignment, nil)

	matches, rejected, err := g.Generate(context.Background(), []model.Clause{oldC, other}, []model.Clause{newC}, cache)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.NotEmpty(t, matches)

	top := matches[0]
	assert.Equal(t, "1.1", top.OldClauseID)
	assert.True(t, top.Boosted)
	assert.LessOrEqual(t, top.CombinedScore, 1.0)
	for _, m := range matches[1:] {
		assert.False(t, m.Boosted)
		assert.GreaterOrEqual(t, top.CombinedScore, m.CombinedScore)
	}
}

func TestGenerate_BoostCapsAtOne(t *testing.T) {
	oldC := clause("v1", "a", "Identical text.")
	newC := clause("v2", "a", "Identical text.")
	cache := fixture(t, vec{oldC, []float32{1, 0}}, vec{newC, []float32{1, 0}})

	cfg := config.Default()
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), &mockIndex{neighbors: []Neighbor{{ClauseID: "a", Similarity: 1}}}, cfg.Alignment, nil)

	got, err := g.Candidates(context.Background(), newC, []model.Clause{oldC}, cache)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].CombinedScore)
	assert.True(t, got[0].Boosted)
}

func TestGenerate_ThresholdAndOrdering(t *testing.T) {
	a := clause("v1", "a", "Payment is due within thirty days.")
	b := clause("v1", "b", "Payment is due within thirty days.")
	far := clause("v1", "c", "Governing law is Delaware.")
	newC := clause("v2", "n", "Payment is due within thirty days.")

	cache := fixture(t,
		vec{a, []float32{1, 0}}, vec{b, []float32{1, 0}},
		vec{far, []float32{0, 1}}, vec{newC, []float32{1, 0}},
	)
	idx := &mockIndex{neighbors: []Neighbor{{ClauseID: "b"}, {ClauseID: "a"}, {ClauseID: "c"}}}

	cfg := config.Default()
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), idx, cfg.Alignment, nil)

	got, err := g.Candidates(context.Background(), newC, []model.Clause{a, b, far}, cache)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Equal scores fall back to ascending old id.
	assert.Equal(t, "a", got[0].OldClauseID)
	assert.Equal(t, "b", got[1].OldClauseID)
}

func TestGenerate_TruncatesToK(t *testing.T) {
	var olds []model.Clause
	var pairs []vec
	var neighbors []Neighbor
	for _, id := range []string{"a", "b", "c", "d"} {
		c := clause("v1", id, "Same clause text.")
		olds = append(olds, c)
		pairs = append(pairs, vec{c, []float32{1, 0}})
		neighbors = append(neighbors, Neighbor{ClauseID: id})
	}
	newC := clause("v2", "z", "Same clause text.")
	pairs = append(pairs, vec{newC, []float32{1, 0}})

	cfg := config.Default()
	cfg.Alignment.TopK = 2
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), &mockIndex{neighbors: neighbors}, cfg.Alignment, nil)

	got, err := g.Candidates(context.Background(), newC, olds, fixture(t, pairs...))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGenerate_NoCandidateAboveThreshold(t *testing.T) {
	oldC := clause("v1", "1.1", "Governing law is Delaware.")
	newC := clause("v2", "3.1", "Users may export their data at any time.")
	cache := fixture(t, vec{oldC, []float32{0, 1}}, vec{newC, []float32{1, 0}})

	cfg := config.Default()
	idx, err := NewMemoryIndex(context.Background(), []model.Clause{oldC}, cache)
	require.NoError(t, err)
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), idx, cfg.Alignment, nil)

	matches, rejected, err := g.Generate(context.Background(), []model.Clause{oldC}, []model.Clause{newC}, cache)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, rejected)
}

func TestGenerate_IndexFailureRejectsClause(t *testing.T) {
	oldC := clause("v1", "a", "x")
	n1 := clause("v2", "n1", "x")
	cache := fixture(t, vec{oldC, []float32{1}}, vec{n1, []float32{1}})

	cfg := config.Default()
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), &mockIndex{err: errors.New("index down")}, cfg.Alignment, nil)

	matches, rejected, err := g.Generate(context.Background(), []model.Clause{oldC}, []model.Clause{n1}, cache)
	require.NoError(t, err)
	assert.Empty(t, matches)
	require.Len(t, rejected, 1)
	assert.Equal(t, "n1", rejected[0].ClauseID)
	assert.Contains(t, rejected[0].Reason, "index down")
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Default()
	g := NewGenerator(similarity.NewScorer(cfg.Scoring), &mockIndex{}, cfg.Alignment, nil)
	_, _, err := g.Generate(ctx, nil, []model.Clause{clause("v2", "n", "t")}, embedding.NewCache())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoostable(t *testing.T) {
	assert.True(t, Boostable(clause("v1", "1", "", "A"), clause("v2", "1", "", "B")))
	assert.True(t, Boostable(clause("v1", "1", "", "A", "b"), clause("v2", "2", "", "A", "b")))
	assert.False(t, Boostable(clause("v1", "1", ""), clause("v2", "2", "")))
}
