package comparator

import (
	"time"

	"github.com/agenthands/redline/internal/core/model"
)

type State string

const (
	StatePending     State = "PENDING"
	StateRuleChecked State = "RULE_CHECKED"
	StateModelCalled State = "MODEL_CALLED"
	StateValidated   State = "VALIDATED"
	StateRetry       State = "RETRY"
	StateFallback    State = "FALLBACK"
	StateFinalized   State = "FINALIZED"
	StateRejected    State = "REJECTED"
)

// Observer is told about every state transition and oracle attempt.
type Observer interface {
	Transition(resultID string, from, to State)
	Attempt(outcome model.ValidationOutcome, elapsed time.Duration)
	Finalized(res *model.ComparisonResult)
}

type nopObserver struct{}

func (nopObserver) Transition(string, State, State) {}
func (nopObserver) Attempt(model.ValidationOutcome, time.Duration) {}
func (nopObserver) Finalized(*model.ComparisonResult) {}

// machine tracks the current state of one comparison.
type machine struct {
	id    string
	state State
	obs   Observer
}

func (m *machine) to(next State) {
	m.obs.Transition(m.id, m.state, next)
	m.state = next
}
