// Package candidate proposes, for every clause of the new version, the old
// clauses it most likely corresponds to.
package candidate

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/embedding"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/similarity"
)

type Generator struct {
	scorer *similarity.Scorer
	index  Index
	cfg    config.AlignmentConfig
	logger *zap.Logger
}

func NewGenerator(scorer *similarity.Scorer, index Index, cfg config.AlignmentConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{scorer: scorer, index: index, cfg: cfg, logger: logger}
}

// Generate returns the surviving candidate edges for all new clauses, plus the
// new clauses that had to be excluded because their lookup failed. Only a
// cancelled ctx produces an error.
func (g *Generator) Generate(ctx context.Context, oldClauses, newClauses []model.Clause, cache *embedding.Cache) ([]model.CandidateMatch, []model.RejectedClause, error) {
	olds := newOldSet(oldClauses)

	var (
		out      []model.CandidateMatch
		rejected []model.RejectedClause
	)
	for _, nc := range newClauses {
		if err := ctx.Err(); err != nil {
			return out, rejected, err
		}
		matches, err := g.candidates(ctx, nc, olds, cache)
		if err != nil {
			if ctx.Err() != nil {
				return out, rejected, ctx.Err()
			}
			g.logger.Warn("candidate lookup failed", zap.String("clause_id", nc.ID), zap.Error(err))
			rejected = append(rejected, model.RejectedClause{ClauseID: nc.ID, DocVersion: nc.DocVersion, Reason: err.Error()})
			continue
		}
		out = append(out, matches...)
	}
	return out, rejected, nil
}

// Candidates scores one new clause against its nearest old clauses. Old
// clauses sharing the clause id or section path are always considered so the
// boost can apply even when the index ranks them low.
func (g *Generator) Candidates(ctx context.Context, nc model.Clause, oldClauses []model.Clause, cache *embedding.Cache) ([]model.CandidateMatch, error) {
	return g.candidates(ctx, nc, newOldSet(oldClauses), cache)
}

type oldSet struct {
	byID      map[string]model.Clause
	byHeading map[string][]model.Clause
}

func newOldSet(clauses []model.Clause) oldSet {
	s := oldSet{
		byID:      make(map[string]model.Clause, len(clauses)),
		byHeading: make(map[string][]model.Clause),
	}
	for _, c := range clauses {
		s.byID[c.ID] = c
		if h := c.Heading(); h != "" {
			s.byHeading[h] = append(s.byHeading[h], c)
		}
	}
	return s
}

func (g *Generator) candidates(ctx context.Context, nc model.Clause, olds oldSet, cache *embedding.Cache) ([]model.CandidateMatch, error) {
	vec, ok := cache.Get(nc)
	if !ok {
		return nil, &model.InputError{ClauseID: nc.ID, Reason: "no embedding"}
	}

	neighbors, err := g.index.Query(ctx, vec, g.cfg.TopK)
	if err != nil {
		return nil, &model.ProviderError{ClauseID: nc.ID, Err: err}
	}

	seen := make(map[string]bool)
	var pool []model.Clause
	add := func(c model.Clause) {
		if !seen[c.ID] {
			seen[c.ID] = true
			pool = append(pool, c)
		}
	}
	for _, n := range neighbors {
		if c, ok := olds.byID[n.ClauseID]; ok {
			add(c)
		}
	}
	if c, ok := olds.byID[nc.ID]; ok {
		add(c)
	}
	for _, c := range olds.byHeading[nc.Heading()] {
		add(c)
	}

	var out []model.CandidateMatch
	for _, oc := range pool {
		ovec, ok := cache.Get(oc)
		if !ok {
			continue
		}
		s, err := g.scorer.Score(ovec, vec, oc.Text, nc.Text)
		if err != nil {
			var inErr *model.InputError
			if errors.As(err, &inErr) {
				inErr.ClauseID = nc.ID
			}
			return nil, err
		}

		m := model.CandidateMatch{
			OldClauseID:    oc.ID,
			NewClauseID:    nc.ID,
			EmbeddingScore: s.Embedding,
			LexicalScore:   s.Lexical,
			CombinedScore:  s.Combined,
		}
		if Boostable(oc, nc) {
			m.CombinedScore = min(1, m.CombinedScore+g.cfg.BoostBonus)
			m.Boosted = true
		}
		if m.CombinedScore < g.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b model.CandidateMatch) int {
		if c := cmp.Compare(b.CombinedScore, a.CombinedScore); c != 0 {
			return c
		}
		return cmp.Compare(a.OldClauseID, b.OldClauseID)
	})
	if len(out) > g.cfg.TopK {
		out = out[:g.cfg.TopK]
	}
	return out, nil
}

// Boostable reports whether two clauses share an id or an exact section path.
func Boostable(oc, nc model.Clause) bool {
	if oc.ID == nc.ID {
		return true
	}
	h := nc.Heading()
	return h != "" && oc.Heading() == h
}
