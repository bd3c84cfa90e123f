package model

import "strings"

type Clause struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	SectionPath []string `json:"section_path"`
	DocVersion  string   `json:"doc_version"`
}

// ParentPath is the section path without the clause's own heading.
func (c Clause) ParentPath() string {
	if len(c.SectionPath) <= 1 {
		return ""
	}
	return strings.Join(c.SectionPath[:len(c.SectionPath)-1], "/")
}

func (c Clause) Heading() string {
	return strings.Join(c.SectionPath, "/")
}

type Document struct {
	Version string   `json:"version"`
	Clauses []Clause `json:"clauses"`
	// Embeddings supplied by the caller, keyed by clause id. Missing entries
	// are produced by the configured embedding provider.
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`
}

type CandidateMatch struct {
	OldClauseID    string  `json:"old_clause_id,omitempty"`
	NewClauseID    string  `json:"new_clause_id"`
	EmbeddingScore float64 `json:"embedding_score"`
	LexicalScore   float64 `json:"lexical_score"`
	CombinedScore  float64 `json:"combined_score"`
	Boosted        bool    `json:"boosted"`
}

// RejectedClause records a clause excluded from alignment and why.
type RejectedClause struct {
	ClauseID   string `json:"clause_id"`
	DocVersion string `json:"doc_version"`
	Reason     string `json:"reason"`
}
