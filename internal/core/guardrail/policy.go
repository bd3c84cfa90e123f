package guardrail

import "regexp"

// Rule rejects free text matching Pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultPolicy forbids legal advice and personal data in oracle text.
func DefaultPolicy() []Rule {
	return []Rule{
		{Name: "legal_advice", Pattern: regexp.MustCompile(`(?i)\b(you should( not)? sign|we (recommend|advise)|i (recommend|advise)|(consult|hire) (a|an|your) (lawyer|attorney|solicitor)|this (is|constitutes) legal advice|(is|are) (legally )?(enforceable|unenforceable) in your)\b`)},
		{Name: "email", Pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
		{Name: "ssn", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Name: "phone", Pattern: regexp.MustCompile(`(\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
		{Name: "card_number", Pattern: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`)},
	}
}
