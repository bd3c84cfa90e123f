package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/redline/internal/core/model"
)

func report() *model.Report {
	return &model.Report{
		RunID:      "run-1",
		OldVersion: "v1",
		NewVersion: "v2",
		Results: []*model.ComparisonResult{{
			ID: "r1",
			Alignment: model.ResolvedAlignment{
				ChangeType:   model.ChangeMerged,
				OldClauseIDs: []string{"1", "2"},
				NewClauseIDs: []string{"1"},
				Score:        0.9,
			},
			ChangeType:        model.ChangeMerged,
			ObligationChanges: []model.ObligationChange{},
			PermissionChanges: []model.ObligationChange{},
			NumericChanges:    []model.NumericChange{{Field: "period", OldValue: "30 days", NewValue: "60 days", Significance: model.RiskHigh}},
			RiskLevel:         model.RiskHigh,
			Provenance:        model.Provenance{Source: model.SourceModel, ModelVersion: "openai/gpt-4o"},
			ReviewState:       model.ReviewRequired,
		}},
	}
}

func TestSaveDocument(t *testing.T) {
	d := &MockDriver{}
	s := NewGraphStore(d, nil)

	err := s.SaveDocument(context.Background(), model.Document{
		Version: "v1",
		Clauses: []model.Clause{{ID: "1", Text: "Rent is due monthly.", SectionPath: []string{"Payment"}}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{SaveDocumentQuery, SaveClausesQuery}, d.queries())

	clauses := d.Executed[1].Params["clauses"].([]any)
	require.Len(t, clauses, 1)
	c := clauses[0].(map[string]any)
	assert.Equal(t, "v1\x001", c["key"])
	assert.Equal(t, []any{"Payment"}, c["section_path"])
}

func TestSaveDocument_NoClauses(t *testing.T) {
	d := &MockDriver{}
	require.NoError(t, NewGraphStore(d, nil).SaveDocument(context.Background(), model.Document{Version: "v1"}))
	assert.Equal(t, []string{SaveDocumentQuery}, d.queries())
}

func TestSaveReport(t *testing.T) {
	d := &MockDriver{}
	s := NewGraphStore(d, nil)

	require.NoError(t, s.SaveReport(context.Background(), report()))
	require.Equal(t, []string{SaveRunQuery, SaveResultQuery}, d.queries())

	params := d.Executed[1].Params
	assert.Equal(t, "run-1", params["run_id"])
	assert.Equal(t, "merged", params["change_type"])
	assert.Equal(t, []any{"v1\x001", "v1\x002", "v2\x001"}, params["clause_keys"])
	assert.Contains(t, params["changes"], `"field":"period"`)
}

func TestSaveReport_DriverError(t *testing.T) {
	d := &MockDriver{Err: errors.New("connection refused")}
	err := NewGraphStore(d, nil).SaveReport(context.Background(), report())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save run run-1")
}

func TestSaveReview(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := report().Results[0]
	res.ReviewState = model.ReviewHumanApproved
	res.ReviewedBy = "alice"
	res.ReviewedAt = &now

	d := &MockDriver{MockResult: oneRecord()}
	require.NoError(t, NewGraphStore(d, nil).SaveReview(context.Background(), res))
	params := d.Executed[0].Params
	assert.Equal(t, "human_approved", params["review_state"])
	assert.Equal(t, now, params["reviewed_at"])

	missing := &MockDriver{}
	err := NewGraphStore(missing, nil).SaveReview(context.Background(), res)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWriteAudit(t *testing.T) {
	d := &MockDriver{}
	rec := model.AuditRecord{
		RunID:             "run-1",
		ResultID:          "r1",
		Attempt:           2,
		InputClauseIDs:    []string{"1", "2"},
		ValidationOutcome: model.OutcomeReviewTransition,
		HumanOverride:     &model.HumanOverride{Reviewer: "bob", From: model.ReviewRequired, To: model.ReviewHumanRejected},
	}
	require.NoError(t, NewGraphStore(d, nil).WriteAudit(context.Background(), rec))

	params := d.Executed[0].Params
	assert.Equal(t, SaveAuditQuery, d.Executed[0].Query)
	assert.Equal(t, "bob", params["reviewer"])
	assert.Equal(t, "review_transition", params["validation_outcome"])
	assert.Equal(t, 2, params["attempt"])
}
