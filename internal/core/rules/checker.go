// Package rules runs the deterministic pre-check on a clause pair: critical
// keywords, modal verbs and numeric values.
package rules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/model"
)

type KeywordDelta struct {
	Keyword  string          `json:"keyword"`
	Added    bool            `json:"added"`
	Severity model.RiskLevel `json:"severity"`
}

// Signals is everything the rule tier found for one pair.
type Signals struct {
	Keywords    []KeywordDelta           `json:"keywords,omitempty"`
	Obligations []model.ObligationChange `json:"obligations,omitempty"`
	Permissions []model.ObligationChange `json:"permissions,omitempty"`
	Numerics    []model.NumericChange    `json:"numerics,omitempty"`
	Risk        model.RiskLevel          `json:"risk"`
	// ObligationReversal is set when a permissive modal became mandatory.
	ObligationReversal bool `json:"obligation_reversal"`
}

func (s Signals) Empty() bool {
	return len(s.Keywords) == 0 && len(s.Obligations) == 0 && len(s.Permissions) == 0 && len(s.Numerics) == 0
}

type keyword struct {
	word     string
	severity model.RiskLevel
	re       *regexp.Regexp
}

type Checker struct {
	keywords []keyword
}

func NewChecker(cfg config.RulesConfig) *Checker {
	words := make([]string, 0, len(cfg.Keywords))
	for w := range cfg.Keywords {
		words = append(words, w)
	}
	slices.Sort(words)

	c := &Checker{}
	for _, w := range words {
		c.keywords = append(c.keywords, keyword{
			word:     w,
			severity: model.RiskLevel(cfg.Keywords[w]),
			re:       regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
		})
	}
	return c
}

// Check compares the old and new text of a pair. Either side may be empty for
// added or removed clauses.
func (c *Checker) Check(oldText, newText string) Signals {
	var s Signals

	for _, k := range c.keywords {
		inOld, inNew := k.re.MatchString(oldText), k.re.MatchString(newText)
		if inOld != inNew {
			s.Keywords = append(s.Keywords, KeywordDelta{Keyword: k.word, Added: inNew, Severity: k.severity})
		}
	}

	c.checkModals(oldText, newText, &s)
	s.Numerics = CompareQuantities(oldText, newText)

	s.Risk = model.RiskLow
	for _, k := range s.Keywords {
		s.Risk = model.MaxRisk(s.Risk, k.Severity)
	}
	for _, o := range s.Obligations {
		s.Risk = model.MaxRisk(s.Risk, o.Severity)
	}
	for _, p := range s.Permissions {
		s.Risk = model.MaxRisk(s.Risk, p.Severity)
	}
	for _, n := range s.Numerics {
		s.Risk = model.MaxRisk(s.Risk, n.Significance)
	}
	return s
}

func (c *Checker) checkModals(oldText, newText string, s *Signals) {
	om, nm := DetectModal(oldText), DetectModal(newText)
	if om.Class == nm.Class {
		return
	}

	entity := nm.Subject
	if entity == "" {
		entity = om.Subject
	}
	change := model.ObligationChange{
		Entity:        entity,
		OldObligation: om.Obligation(),
		NewObligation: nm.Obligation(),
	}

	switch {
	case om.Class == ModalPermissive && nm.Class == ModalMandatory:
		change.Severity = model.RiskHigh
		s.ObligationReversal = true
		s.Obligations = append(s.Obligations, change)
	case om.Class == ModalPermissive && nm.Class == ModalProhibitive,
		om.Class == ModalProhibitive && nm.Class == ModalPermissive:
		change.Severity = model.RiskHigh
		s.Permissions = append(s.Permissions, change)
	case om.Class == ModalMandatory && nm.Class == ModalProhibitive,
		om.Class == ModalProhibitive && nm.Class == ModalMandatory:
		change.Severity = model.RiskHigh
		s.Obligations = append(s.Obligations, change)
	case om.Class == ModalNone || nm.Class == ModalNone:
		// Only one side has a modal: an obligation or permission appeared or vanished.
		cls := om.Class
		if cls == ModalNone {
			cls = nm.Class
		}
		change.Severity = model.RiskMedium
		if cls == ModalPermissive {
			s.Permissions = append(s.Permissions, change)
		} else {
			s.Obligations = append(s.Obligations, change)
		}
	default:
		// mandatory -> permissive relaxes an obligation.
		change.Severity = model.RiskMedium
		s.Obligations = append(s.Obligations, change)
	}
}

// Hints renders the signals as short lines for the oracle prompt.
func (s Signals) Hints() string {
	if s.Empty() {
		return "none"
	}
	var b strings.Builder
	for _, k := range s.Keywords {
		verb := "removed"
		if k.Added {
			verb = "added"
		}
		fmt.Fprintf(&b, "- keyword %q %s (%s)\n", k.Keyword, verb, k.Severity)
	}
	for _, o := range s.Obligations {
		fmt.Fprintf(&b, "- obligation: %s %q -> %q (%s)\n", o.Entity, o.OldObligation, o.NewObligation, o.Severity)
	}
	for _, p := range s.Permissions {
		fmt.Fprintf(&b, "- permission: %s %q -> %q (%s)\n", p.Entity, p.OldObligation, p.NewObligation, p.Severity)
	}
	for _, n := range s.Numerics {
		fmt.Fprintf(&b, "- %s: %q -> %q (%s)\n", n.Field, n.OldValue, n.NewValue, n.Significance)
	}
	if s.ObligationReversal {
		b.WriteString("- permissive wording became mandatory\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
