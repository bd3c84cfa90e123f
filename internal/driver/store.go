package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/core/embedding"
	"github.com/agenthands/redline/internal/core/model"
)

// GraphStore persists documents, reports, audit records and review decisions.
// It satisfies audit.Writer and review.Sink.
type GraphStore struct {
	driver GraphDriver
	logger *zap.Logger
}

func NewGraphStore(d GraphDriver, logger *zap.Logger) *GraphStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphStore{driver: d, logger: logger.Named("store")}
}

func (s *GraphStore) BuildIndices(ctx context.Context) error {
	return s.driver.BuildIndices(ctx)
}

func (s *GraphStore) SaveDocument(ctx context.Context, doc model.Document) error {
	_, err := s.driver.ExecuteQuery(ctx, SaveDocumentQuery, map[string]any{
		"version":    doc.Version,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.Version, err)
	}
	if len(doc.Clauses) == 0 {
		return nil
	}

	clauses := make([]any, 0, len(doc.Clauses))
	for _, c := range doc.Clauses {
		c.DocVersion = doc.Version
		clauses = append(clauses, map[string]any{
			"key":          embedding.Key(c),
			"id":           c.ID,
			"text":         c.Text,
			"section_path": stringsToAny(c.SectionPath),
		})
	}
	_, err = s.driver.ExecuteQuery(ctx, SaveClausesQuery, map[string]any{
		"version": doc.Version,
		"clauses": clauses,
	})
	if err != nil {
		return fmt.Errorf("failed to save clauses of %s: %w", doc.Version, err)
	}
	return nil
}

// SaveReport stores the run and every result, linking each result to the
// clauses it compares.
func (s *GraphStore) SaveReport(ctx context.Context, r *model.Report) error {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	rejected, err := json.Marshal(r.Rejected)
	if err != nil {
		return fmt.Errorf("failed to encode rejected clauses: %w", err)
	}
	_, err = s.driver.ExecuteQuery(ctx, SaveRunQuery, map[string]any{
		"id":             r.RunID,
		"old_version":    r.OldVersion,
		"new_version":    r.NewVersion,
		"config_version": r.ConfigVersion,
		"started_at":     r.StartedAt,
		"completed_at":   r.CompletedAt,
		"cancelled":      r.Cancelled,
		"summary":        string(summary),
		"rejected":       string(rejected),
		"warnings":       stringsToAny(r.Warnings),
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}

	for _, res := range r.Results {
		params, err := resultParams(r, res)
		if err != nil {
			return err
		}
		if _, err := s.driver.ExecuteQuery(ctx, SaveResultQuery, params); err != nil {
			return fmt.Errorf("failed to save result %s: %w", res.ID, err)
		}
	}
	s.logger.Debug("report saved", zap.String("run_id", r.RunID), zap.Int("results", len(r.Results)))
	return nil
}

func (s *GraphStore) SaveReview(ctx context.Context, res *model.ComparisonResult) error {
	var reviewedAt any
	if res.ReviewedAt != nil {
		reviewedAt = *res.ReviewedAt
	}
	result, err := s.driver.ExecuteQuery(ctx, SaveReviewQuery, map[string]any{
		"id":           res.ID,
		"review_state": string(res.ReviewState),
		"reviewed_by":  res.ReviewedBy,
		"reviewed_at":  reviewedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save review of %s: %w", res.ID, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("failed to save review of %s: %w", res.ID, model.ErrNotFound)
	}
	return nil
}

func (s *GraphStore) WriteAudit(ctx context.Context, rec model.AuditRecord) error {
	reviewer := ""
	if rec.HumanOverride != nil {
		reviewer = rec.HumanOverride.Reviewer
	}
	_, err := s.driver.ExecuteQuery(ctx, SaveAuditQuery, map[string]any{
		"run_id":             rec.RunID,
		"result_id":          rec.ResultID,
		"attempt":            rec.Attempt,
		"timestamp":          rec.Timestamp,
		"input_clause_ids":   stringsToAny(rec.InputClauseIDs),
		"prompt_hash":        rec.PromptHash,
		"model_version":      rec.ModelVersion,
		"raw_response_hash":  rec.RawResponseHash,
		"validation_outcome": string(rec.ValidationOutcome),
		"detail":             rec.Detail,
		"reviewer":           reviewer,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type changes struct {
	Obligations []model.ObligationChange `json:"obligation_changes"`
	Permissions []model.ObligationChange `json:"permission_changes"`
	Numerics    []model.NumericChange    `json:"numeric_changes"`
}

func resultParams(r *model.Report, res *model.ComparisonResult) (map[string]any, error) {
	body, err := json.Marshal(changes{
		Obligations: res.ObligationChanges,
		Permissions: res.PermissionChanges,
		Numerics:    res.NumericChanges,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode changes of %s: %w", res.ID, err)
	}

	keys := []any{}
	for _, id := range res.Alignment.OldClauseIDs {
		keys = append(keys, embedding.Key(model.Clause{ID: id, DocVersion: r.OldVersion}))
	}
	for _, id := range res.Alignment.NewClauseIDs {
		keys = append(keys, embedding.Key(model.Clause{ID: id, DocVersion: r.NewVersion}))
	}

	return map[string]any{
		"run_id":         r.RunID,
		"id":             res.ID,
		"change_type":    string(res.ChangeType),
		"alignment_type": string(res.Alignment.ChangeType),
		"score":          res.Alignment.Score,
		"risk_level":     string(res.RiskLevel),
		"confidence":     res.Confidence,
		"source":         string(res.Provenance.Source),
		"model_version":  res.Provenance.ModelVersion,
		"retries_used":   res.Provenance.RetriesUsed,
		"review_state":   string(res.ReviewState),
		"human_summary":  res.HumanSummary,
		"changes":        string(body),
		"finalized_at":   res.FinalizedAt,
		"clause_keys":    keys,
	}, nil
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
