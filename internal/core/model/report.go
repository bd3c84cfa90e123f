package model

import "time"

type Summary struct {
	TotalAdded     int `json:"total_added"`
	TotalRemoved   int `json:"total_removed"`
	TotalModified  int `json:"total_modified"`
	TotalRelocated int `json:"total_relocated"`
	TotalMerged    int `json:"total_merged"`
	TotalSplit     int `json:"total_split"`
	TotalUnchanged int `json:"total_unchanged"`
	HighRisk       int `json:"high_risk"`
	NeedsReview    int `json:"needs_review"`
}

type Report struct {
	RunID         string              `json:"run_id"`
	ConfigVersion int                 `json:"config_version"`
	OldVersion    string              `json:"old_version"`
	NewVersion    string              `json:"new_version"`
	Alignments    []ResolvedAlignment `json:"alignments"`
	Results       []*ComparisonResult `json:"results"`
	Summary       Summary             `json:"summary"`
	Rejected      []RejectedClause    `json:"rejected,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
	Cancelled     bool                `json:"cancelled"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   time.Time           `json:"completed_at"`
}
