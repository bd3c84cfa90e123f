package candidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippgille/chromem-go"

	"github.com/agenthands/redline/internal/core/embedding"
	"github.com/agenthands/redline/internal/core/model"
)

// Neighbor is a clause returned by a nearest-neighbour lookup.
type Neighbor struct {
	ClauseID   string
	Similarity float64
}

// Index finds the old clauses closest to a query vector.
type Index interface {
	Query(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// MemoryIndex is an in-process cosine index over one document version.
type MemoryIndex struct {
	coll *chromem.Collection
}

var errNoEmbedding = errors.New("index only accepts precomputed embeddings")

// NewMemoryIndex indexes every clause that has a vector in cache. Clauses
// without one are skipped.
func NewMemoryIndex(ctx context.Context, clauses []model.Clause, cache *embedding.Cache) (*MemoryIndex, error) {
	db := chromem.NewDB()
	coll, err := db.CreateCollection("clauses", nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbedding
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index collection: %w", err)
	}

	for _, c := range clauses {
		vec, ok := cache.Get(c)
		if !ok {
			continue
		}
		doc := chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vec,
			Metadata:  map[string]string{"section": c.Heading()},
		}
		if err := coll.AddDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to index clause %s: %w", c.ID, err)
		}
	}
	return &MemoryIndex{coll: coll}, nil
}

func (m *MemoryIndex) Len() int {
	return m.coll.Count()
}

func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	n := min(k, m.coll.Count())
	if n <= 0 {
		return nil, nil
	}
	res, err := m.coll.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	out := make([]Neighbor, 0, len(res))
	for _, r := range res {
		out = append(out, Neighbor{ClauseID: r.ID, Similarity: float64(r.Similarity)})
	}
	return out, nil
}
