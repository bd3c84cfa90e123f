package comparator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/model"
)

// pair is an alignment with its clauses looked up.
type pair struct {
	alignment model.ResolvedAlignment
	olds      []model.Clause
	news      []model.Clause
}

func (p pair) clauseIDs() []string {
	ids := make([]string, 0, len(p.olds)+len(p.news))
	for _, c := range p.olds {
		ids = append(ids, c.ID)
	}
	for _, c := range p.news {
		ids = append(ids, c.ID)
	}
	return ids
}

// text joins the clause texts of one side for the rule checker.
func joinText(clauses []model.Clause) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// renderSide lists clauses as "[id] text" lines for the prompt.
func renderSide(clauses []model.Clause) string {
	if len(clauses) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, c := range clauses {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s", c.ID, c.Text)
	}
	return b.String()
}

func metadata(p pair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "alignment: %s (score %.3f)\n", p.alignment.ChangeType, p.alignment.Score)
	for _, c := range p.olds {
		fmt.Fprintf(&b, "old %s: section %s\n", c.ID, sectionOf(c))
	}
	for _, c := range p.news {
		fmt.Fprintf(&b, "new %s: section %s\n", c.ID, sectionOf(c))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sectionOf(c model.Clause) string {
	if h := c.Heading(); h != "" {
		return h
	}
	return "(root)"
}

// renderPrompt fills the compare template. After a rejected attempt the strict
// suffix is appended with the rejection reason.
func renderPrompt(prompts config.ComparisonPrompts, meta, oldText, newText, hints, rejection string) string {
	prompt := fmt.Sprintf(prompts.Compare, meta, oldText, newText, hints)
	if rejection != "" {
		prompt += fmt.Sprintf(prompts.Strict, rejection)
	}
	return prompt
}

func hash(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
