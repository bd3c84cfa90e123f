// Package review holds finalized results and applies human review decisions.
package review

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/core/audit"
	"github.com/agenthands/redline/internal/core/model"
)

type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision accepts approve/approved and reject/rejected in any case.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return Approve, nil
	case "reject", "rejected":
		return Reject, nil
	}
	return "", &model.InputError{Reason: fmt.Sprintf("unknown review decision %q", s)}
}

// Sink persists a reviewed result.
type Sink interface {
	SaveReview(ctx context.Context, res *model.ComparisonResult) error
}

type entry struct {
	runID  string
	result *model.ComparisonResult
}

type Registry struct {
	mu      sync.RWMutex
	results map[string]entry
	audit   *audit.Log
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry returns a registry writing transitions to log. sink may be nil.
func NewRegistry(log *audit.Log, sink Sink, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		results: make(map[string]entry),
		audit:   log,
		sink:    sink,
		logger:  logger.Named("review"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register makes finalized results available for lookup and review. A result
// already under human decision is not overwritten.
func (r *Registry) Register(runID string, results ...*model.ComparisonResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		if cur, ok := r.results[res.ID]; ok && decided(cur.result.ReviewState) {
			continue
		}
		r.results[res.ID] = entry{runID: runID, result: res.Clone()}
	}
}

func (r *Registry) Get(id string) (*model.ComparisonResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.results[id]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, model.ErrNotFound)
	}
	return e.result.Clone(), nil
}

// Pending lists results waiting for a human, ordered by id.
func (r *Registry) Pending() []*model.ComparisonResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.ComparisonResult
	for _, e := range r.results {
		if e.result.ReviewState == model.ReviewRequired {
			out = append(out, e.result.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *model.ComparisonResult) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ApplyReview records a human decision. Only results in human_review_required
// accept one; anything else fails with model.ErrInvalidTransition.
func (r *Registry) ApplyReview(ctx context.Context, resultID string, decision Decision, reviewer string) (*model.ComparisonResult, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, &model.InputError{Reason: "reviewer is required"}
	}
	var to model.ReviewState
	switch decision {
	case Approve:
		to = model.ReviewHumanApproved
	case Reject:
		to = model.ReviewHumanRejected
	default:
		return nil, &model.InputError{Reason: fmt.Sprintf("unknown review decision %q", decision)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.results[resultID]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", resultID, model.ErrNotFound)
	}
	from := e.result.ReviewState
	if from != model.ReviewRequired {
		return nil, fmt.Errorf("%w: result %s is %s", model.ErrInvalidTransition, resultID, from)
	}

	next := e.result.Clone()
	at := r.now()
	next.ReviewState = to
	next.ReviewedBy = reviewer
	next.ReviewedAt = &at

	if r.sink != nil {
		if err := r.sink.SaveReview(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to persist review of %s: %w", resultID, err)
		}
	}

	r.results[resultID] = entry{runID: e.runID, result: next}
	if r.audit != nil {
		r.audit.Append(model.AuditRecord{
			Timestamp:         at,
			RunID:             e.runID,
			ResultID:          resultID,
			InputClauseIDs:    slices.Concat(next.Alignment.OldClauseIDs, next.Alignment.NewClauseIDs),
			ModelVersion:      next.Provenance.ModelVersion,
			ValidationOutcome: model.OutcomeReviewTransition,
			HumanOverride:     &model.HumanOverride{Reviewer: reviewer, From: from, To: to},
		})
	}
	r.logger.Info("review applied",
		zap.String("result_id", resultID),
		zap.String("reviewer", reviewer),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return next.Clone(), nil
}

func decided(s model.ReviewState) bool {
	return s == model.ReviewHumanApproved || s == model.ReviewHumanRejected
}
