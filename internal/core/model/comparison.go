package model

import "time"

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return RiskLow
	}
	return a
}

type Source string

const (
	SourceRule     Source = "rule"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

type ReviewState string

const (
	ReviewAutoVerified  ReviewState = "auto_verified"
	ReviewLowConfidence ReviewState = "low_confidence"
	ReviewRequired      ReviewState = "human_review_required"
	ReviewHumanApproved ReviewState = "human_approved"
	ReviewHumanRejected ReviewState = "human_rejected"
)

type ObligationChange struct {
	Entity        string    `json:"entity"`
	OldObligation string    `json:"old_obligation"`
	NewObligation string    `json:"new_obligation"`
	Severity      RiskLevel `json:"severity"`
}

type NumericChange struct {
	Field        string    `json:"field"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	Significance RiskLevel `json:"significance"`
}

type Provenance struct {
	Source       Source `json:"source"`
	ModelVersion string `json:"model_version,omitempty"`
	RetriesUsed  int    `json:"retries_used"`
}

type ComparisonResult struct {
	ID                string             `json:"id"`
	Alignment         ResolvedAlignment  `json:"alignment"`
	ChangeType        ChangeType         `json:"change_type"`
	ObligationChanges []ObligationChange `json:"obligation_changes"`
	PermissionChanges []ObligationChange `json:"permission_changes"`
	NumericChanges    []NumericChange    `json:"numeric_changes"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	HumanSummary      string             `json:"human_summary"`
	Confidence        float64            `json:"confidence"`
	Provenance        Provenance         `json:"provenance"`
	ReviewState       ReviewState        `json:"review_state"`
	ReviewedBy        string             `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time         `json:"reviewed_at,omitempty"`
	FinalizedAt       time.Time          `json:"finalized_at"`
}

// Clone returns a deep copy so callers cannot mutate a finalized result.
func (r *ComparisonResult) Clone() *ComparisonResult {
	c := *r
	c.Alignment.OldClauseIDs = append([]string(nil), r.Alignment.OldClauseIDs...)
	c.Alignment.NewClauseIDs = append([]string(nil), r.Alignment.NewClauseIDs...)
	c.ObligationChanges = append([]ObligationChange(nil), r.ObligationChanges...)
	c.PermissionChanges = append([]ObligationChange(nil), r.PermissionChanges...)
	c.NumericChanges = append([]NumericChange(nil), r.NumericChanges...)
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}
