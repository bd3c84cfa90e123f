package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/redline/internal/core/audit"
	"github.com/agenthands/redline/internal/core/model"
)

type mockSink struct {
	saved []*model.ComparisonResult
	err   error
}

func (m *mockSink) SaveReview(ctx context.Context, res *model.ComparisonResult) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, res)
	return nil
}

func result(id string, state model.ReviewState) *model.ComparisonResult {
	return &model.ComparisonResult{
		ID:          id,
		Alignment:   model.ResolvedAlignment{ChangeType: model.ChangeModified, OldClauseIDs: []string{"1"}, NewClauseIDs: []string{"1"}},
		ChangeType:  model.ChangeModified,
		ReviewState: state,
		Provenance:  model.Provenance{Source: model.SourceModel, ModelVersion: "m"},
	}
}

func TestApplyReview(t *testing.T) {
	log := audit.NewLog(nil, nil)
	sink := &mockSink{}
	r := NewRegistry(log, sink, nil)
	r.Register("run-1", result("a", model.ReviewRequired), result("b", model.ReviewAutoVerified))

	require.Len(t, r.Pending(), 1)

	got, err := r.ApplyReview(context.Background(), "a", Approve, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewHumanApproved, got.ReviewState)
	assert.Equal(t, "alice", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.Len(t, sink.saved, 1)
	assert.Empty(t, r.Pending())

	recs := log.ForResult("a")
	require.Len(t, recs, 1)
	assert.Equal(t, model.OutcomeReviewTransition, recs[0].ValidationOutcome)
	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, &model.HumanOverride{Reviewer: "alice", From: model.ReviewRequired, To: model.ReviewHumanApproved}, recs[0].HumanOverride)

	stored, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewHumanApproved, stored.ReviewState)
}

func TestApplyReview_InvalidTransitions(t *testing.T) {
	log := audit.NewLog(nil, nil)
	r := NewRegistry(log, nil, nil)
	r.Register("run-1", result("auto", model.ReviewAutoVerified), result("open", model.ReviewRequired))

	_, err := r.ApplyReview(context.Background(), "auto", Approve, "bob")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = r.ApplyReview(context.Background(), "open", Reject, "bob")
	require.NoError(t, err)
	_, err = r.ApplyReview(context.Background(), "open", Approve, "bob")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = r.ApplyReview(context.Background(), "missing", Approve, "bob")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = r.ApplyReview(context.Background(), "open", Approve, " ")
	assert.ErrorIs(t, err, model.ErrInput)

	assert.Len(t, log.Records(), 1)
}

func TestApplyReview_SinkFailureKeepsState(t *testing.T) {
	r := NewRegistry(audit.NewLog(nil, nil), &mockSink{err: errors.New("db down")}, nil)
	r.Register("run-1", result("a", model.ReviewRequired))

	_, err := r.ApplyReview(context.Background(), "a", Approve, "alice")
	assert.ErrorContains(t, err, "db down")

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRequired, got.ReviewState)
}

func TestRegister_KeepsHumanDecision(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	r.Register("run-1", result("a", model.ReviewRequired))
	_, err := r.ApplyReview(context.Background(), "a", Approve, "alice")
	require.NoError(t, err)

	r.Register("run-2", result("a", model.ReviewRequired))
	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewHumanApproved, got.ReviewState)
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Approved")
	require.NoError(t, err)
	assert.Equal(t, Approve, d)

	d, err = ParseDecision("reject")
	require.NoError(t, err)
	assert.Equal(t, Reject, d)

	_, err = ParseDecision("maybe")
	assert.ErrorIs(t, err, model.ErrInput)
}
