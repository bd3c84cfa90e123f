// Package embedding produces and caches clause vectors for a single run.
package embedding

import (
	"slices"
	"sync"

	"github.com/agenthands/redline/internal/core/model"
)

// Cache holds clause vectors keyed by document version and clause id. It is
// read far more often than written.
type Cache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func NewCache() *Cache {
	return &Cache{vecs: make(map[string][]float32)}
}

func Key(c model.Clause) string {
	return c.DocVersion + "\x00" + c.ID
}

func (c *Cache) Get(clause model.Clause) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vecs[Key(clause)]
	return v, ok
}

func (c *Cache) Put(clause model.Clause, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vecs[Key(clause)] = slices.Clone(vec)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}
