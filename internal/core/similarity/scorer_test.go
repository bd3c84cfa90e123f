package similarity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/model"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine_InvalidVectors(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	assert.True(t, errors.Is(err, model.ErrInput))

	_, err = Cosine(nil, []float32{1})
	assert.True(t, errors.Is(err, model.ErrInput))

	_, err = Cosine([]float32{0, 0}, []float32{1, 1})
	var inErr *model.InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, "zero embedding vector", inErr.Reason)
}

func TestCheckVector(t *testing.T) {
	assert.NoError(t, CheckVector([]float32{0, 1}, 2))
	assert.NoError(t, CheckVector([]float32{0, 1}, 0))
	assert.Error(t, CheckVector([]float32{0, 1}, 3))
	assert.Error(t, CheckVector([]float32{0, 0}, 2))
	assert.Error(t, CheckVector(nil, 0))
}

func TestLexical(t *testing.T) {
	assert.Equal(t, 1.0, Lexical("The Tenant  must pay.", "the tenant must PAY.", 0.5))
	assert.Equal(t, 1.0, Lexical("", "", 0.5))

	near := Lexical("The tenant must pay rent monthly.", "The tenant must pay rent weekly.", 0.5)
	far := Lexical("The tenant must pay rent monthly.", "Governing law is the State of Delaware.", 0.5)
	assert.Greater(t, near, 0.7)
	assert.Less(t, far, 0.4)
	assert.Greater(t, near, far)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 2.0/5.0, Jaccard("a b c", "b c d e"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("alpha", "beta"))
	assert.Equal(t, 1.0, Jaccard("Alpha, beta", "beta alpha"))
}

func TestEditSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, EditSimilarity("abc", "abc"))
	assert.InDelta(t, 2.0/3.0, EditSimilarity("abc", "abd"), 1e-9)
	// Runes, not bytes.
	assert.InDelta(t, 2.0/3.0, EditSimilarity("für", "fü"), 1e-9)
	assert.InDelta(t, 2.0/3.0, EditSimilarity("für", "fur"), 1e-9)
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer(config.Default().Scoring)

	got, err := s.Score([]float32{1, 0}, []float32{1, 0}, "Same text.", "same   TEXT.")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.Embedding, 1e-9)
	assert.InDelta(t, 1.0, got.Lexical, 1e-9)
	assert.InDelta(t, 1.0, got.Combined, 1e-9)

	got, err = s.Score([]float32{1, 0}, []float32{0, 1}, "alpha", "alpha")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, got.Combined, 1e-9)

	_, err = s.Score([]float32{1}, []float32{1, 0}, "a", "b")
	assert.ErrorIs(t, err, model.ErrInput)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "the tenant shall pay", Normalize("  The\tTenant\n shall   PAY "))
}
