package model

import "time"

type ValidationOutcome string

const (
	OutcomeOK               ValidationOutcome = "ok"
	OutcomeSchemaViolation  ValidationOutcome = "schema_violation"
	OutcomeContentViolation ValidationOutcome = "content_violation"
	OutcomeInconsistent     ValidationOutcome = "inconsistent"
	OutcomeTimeout          ValidationOutcome = "timeout"
	OutcomeOracleError      ValidationOutcome = "oracle_error"
	OutcomeFallback         ValidationOutcome = "fallback"
	OutcomeRejected         ValidationOutcome = "rejected"
	OutcomeReviewTransition ValidationOutcome = "review_transition"
)

type HumanOverride struct {
	Reviewer string      `json:"reviewer"`
	From     ReviewState `json:"from"`
	To       ReviewState `json:"to"`
}

type AuditRecord struct {
	Timestamp         time.Time         `json:"timestamp"`
	RunID             string            `json:"run_id"`
	ResultID          string            `json:"result_id"`
	Attempt           int               `json:"attempt"`
	InputClauseIDs    []string          `json:"input_clause_ids"`
	PromptHash        string            `json:"prompt_hash,omitempty"`
	ModelVersion      string            `json:"model_version,omitempty"`
	RawResponseHash   string            `json:"raw_response_hash,omitempty"`
	ValidationOutcome ValidationOutcome `json:"validation_outcome"`
	Detail            string            `json:"detail,omitempty"`
	HumanOverride     *HumanOverride    `json:"human_override,omitempty"`
}
