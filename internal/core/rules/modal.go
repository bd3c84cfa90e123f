package rules

import (
	"regexp"
	"strings"
)

type ModalClass string

const (
	ModalNone        ModalClass = ""
	ModalPermissive  ModalClass = "permissive"
	ModalMandatory   ModalClass = "mandatory"
	ModalProhibitive ModalClass = "prohibitive"
)

// Prohibitive phrases are listed first so "must not" never reads as "must".
var modalPatterns = []struct {
	class ModalClass
	re    *regexp.Regexp
}{
	{ModalProhibitive, regexp.MustCompile(`(?i)\b(must not|shall not|may not|cannot|can not|is prohibited from|are prohibited from|is not permitted to|are not permitted to|prohibited)\b`)},
	{ModalMandatory, regexp.MustCompile(`(?i)\b(must|shall|is required to|are required to|is obligated to|are obligated to|required)\b`)},
	{ModalPermissive, regexp.MustCompile(`(?i)\b(may|can|could|might|is permitted to|are permitted to|is allowed to|are allowed to|optional|optionally)\b`)},
}

// Modal is the first modal phrase found in a clause.
type Modal struct {
	Class  ModalClass
	Phrase string
	// Subject is the text before the phrase, Action the word after it.
	Subject string
	Action  string
}

// DetectModal returns the earliest modal phrase in text. When phrases of
// different classes start at the same offset the stronger class wins.
func DetectModal(text string) Modal {
	best := Modal{}
	bestAt := -1
	for _, p := range modalPatterns {
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestAt >= 0 && loc[0] >= bestAt {
			continue
		}
		bestAt = loc[0]
		best = Modal{
			Class:   p.class,
			Phrase:  strings.ToLower(text[loc[0]:loc[1]]),
			Subject: strings.TrimSpace(text[:loc[0]]),
			Action:  firstWord(text[loc[1]:]),
		}
	}
	return best
}

// Obligation renders the modal with its action, e.g. "must collect".
func (m Modal) Obligation() string {
	if m.Action == "" {
		return m.Phrase
	}
	return m.Phrase + " " + m.Action
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,;:()\"'")
}
