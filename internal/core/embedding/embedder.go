package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/llm"
)

// Embedder fills a Cache from caller-supplied vectors or the embedding
// provider, with bounded concurrency.
type Embedder struct {
	client  llm.EmbedderClient
	cache   *Cache
	workers int
	logger  *zap.Logger
}

func NewEmbedder(client llm.EmbedderClient, cache *Cache, workers int, logger *zap.Logger) *Embedder {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{client: client, cache: cache, workers: workers, logger: logger}
}

func (e *Embedder) Cache() *Cache {
	return e.cache
}

// EmbedAll makes sure every clause has a cached vector. Supplied vectors are
// used as given. Clauses that cannot be embedded are returned as
// *model.ProviderError values; they never stop the others. The returned error
// is only set when ctx ends.
func (e *Embedder) EmbedAll(ctx context.Context, clauses []model.Clause, supplied map[string][]float32) ([]error, error) {
	var (
		mu     sync.Mutex
		failed []error
	)
	fail := func(err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, c := range clauses {
		if _, ok := e.cache.Get(c); ok {
			continue
		}
		if v, ok := supplied[c.ID]; ok {
			e.cache.Put(c, v)
			continue
		}
		if e.client == nil {
			fail(&model.ProviderError{ClauseID: c.ID, Err: fmt.Errorf("no embedding provider configured")})
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			vec, err := e.client.Embed(gctx, c.Text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("embedding failed", zap.String("clause_id", c.ID), zap.String("version", c.DocVersion), zap.Error(err))
				fail(&model.ProviderError{ClauseID: c.ID, Err: err})
				return nil
			}
			e.cache.Put(c, vec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failed, fmt.Errorf("embedding interrupted: %w", err)
	}
	return failed, nil
}
