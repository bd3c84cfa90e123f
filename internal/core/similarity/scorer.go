// Package similarity scores how alike two clauses are from their embeddings
// and their text.
package similarity

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/model"
)

type Scores struct {
	Embedding float64 `json:"embedding"`
	Lexical   float64 `json:"lexical"`
	Combined  float64 `json:"combined"`
}

type Scorer struct {
	cfg config.ScoringConfig
}

func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score combines cosine similarity of the vectors with lexical similarity of
// the texts. Every returned score is in [0,1].
func (s *Scorer) Score(oldVec, newVec []float32, oldText, newText string) (Scores, error) {
	emb, err := Cosine(oldVec, newVec)
	if err != nil {
		return Scores{}, err
	}
	lex := Lexical(oldText, newText, s.cfg.JaccardWeight)
	return Scores{
		Embedding: emb,
		Lexical:   lex,
		Combined:  clamp(s.cfg.EmbeddingWeight*emb + s.cfg.LexicalWeight*lex),
	}, nil
}

// Cosine returns the cosine similarity of a and b clamped to [0,1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, &model.InputError{Reason: "empty embedding vector"}
	}
	if len(a) != len(b) {
		return 0, &model.InputError{Reason: "embedding dimensions differ"}
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, &model.InputError{Reason: "zero embedding vector"}
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// CheckVector reports whether v can take part in a cosine comparison with
// vectors of the given dimension. dim <= 0 skips the dimension check.
func CheckVector(v []float32, dim int) error {
	if len(v) == 0 {
		return &model.InputError{Reason: "empty embedding vector"}
	}
	if dim > 0 && len(v) != dim {
		return &model.InputError{Reason: "embedding dimensions differ"}
	}
	for _, x := range v {
		if x != 0 {
			return nil
		}
	}
	return &model.InputError{Reason: "zero embedding vector"}
}

// Lexical blends token-set Jaccard with normalized edit distance. jaccardWeight
// is the share of the Jaccard term.
func Lexical(a, b string, jaccardWeight float64) float64 {
	na, nb := Normalize(a), Normalize(b)
	return clamp(jaccardWeight*Jaccard(na, nb) + (1-jaccardWeight)*EditSimilarity(na, nb))
}

func Jaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// EditSimilarity is 1 - levenshtein(a,b)/max(len(a),len(b)) counted in runes.
func EditSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Normalize lowercases text and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
