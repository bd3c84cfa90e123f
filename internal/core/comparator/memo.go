package comparator

import (
	"strings"
	"sync"

	"github.com/agenthands/redline/internal/core/model"
)

// Memo remembers oracle answers, before rule merging and gating, so a repeated
// comparison of the same pair with the same model needs no new oracle call.
type Memo struct {
	mu      sync.RWMutex
	results map[string]*model.ComparisonResult
}

func NewMemo() *Memo {
	return &Memo{results: make(map[string]*model.ComparisonResult)}
}

func (m *Memo) Get(key string) (*model.ComparisonResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (m *Memo) Put(key string, r *model.ComparisonResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[key]; !ok {
		m.results[key] = r.Clone()
	}
}

func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

func memoKey(p pair, modelVersion string) string {
	var b strings.Builder
	b.WriteString(string(p.alignment.ChangeType))
	b.WriteString("\x00")
	b.WriteString(modelVersion)
	for _, c := range p.olds {
		b.WriteString("\x00o:" + c.ID + "\x00" + c.Text)
	}
	for _, c := range p.news {
		b.WriteString("\x00n:" + c.ID + "\x00" + c.Text)
	}
	return hash(b.String())
}
