package comparator

import (
	"fmt"
	"slices"

	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/rules"
)

// fallbackResult builds a result from rule signals alone.
func fallbackResult(p pair, s rules.Signals, confidence float64) *model.ComparisonResult {
	return &model.ComparisonResult{
		Alignment:         p.alignment,
		ChangeType:        p.alignment.ChangeType,
		ObligationChanges: nonNil(s.Obligations),
		PermissionChanges: nonNil(s.Permissions),
		NumericChanges:    nonNilNumeric(s.Numerics),
		RiskLevel:         s.Risk,
		HumanSummary: fmt.Sprintf("Rule-based comparison: %d obligation change(s), %d numeric change(s) detected.",
			len(s.Obligations)+len(s.Permissions), len(s.Numerics)),
		Confidence: confidence,
		Provenance: model.Provenance{Source: model.SourceFallback},
	}
}

// UnchangedResult is the result for an alignment whose text did not change.
// The oracle is not consulted.
func UnchangedResult(req Request) *model.ComparisonResult {
	return &model.ComparisonResult{
		ID:                ResultID(req),
		Alignment:         req.Alignment,
		ChangeType:        model.ChangeUnchanged,
		ObligationChanges: []model.ObligationChange{},
		PermissionChanges: []model.ObligationChange{},
		NumericChanges:    []model.NumericChange{},
		RiskLevel:         model.RiskLow,
		HumanSummary:      "No change.",
		Confidence:        1,
		Provenance:        model.Provenance{Source: model.SourceRule},
		ReviewState:       model.ReviewAutoVerified,
	}
}

// mergeSignals folds rule findings into an oracle result: changes are
// unioned and the higher risk wins.
func mergeSignals(res *model.ComparisonResult, s rules.Signals) {
	res.ObligationChanges = unionObligations(res.ObligationChanges, s.Obligations)
	res.PermissionChanges = unionObligations(res.PermissionChanges, s.Permissions)
	res.NumericChanges = unionNumerics(res.NumericChanges, s.Numerics)
	res.RiskLevel = model.MaxRisk(res.RiskLevel, s.Risk)
}

func unionObligations(a, b []model.ObligationChange) []model.ObligationChange {
	out := nonNil(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// unionNumerics drops rule findings the oracle already reported for the same
// values.
func unionNumerics(a, b []model.NumericChange) []model.NumericChange {
	out := nonNilNumeric(a)
	for _, c := range b {
		dup := slices.ContainsFunc(out, func(x model.NumericChange) bool {
			return x.OldValue == c.OldValue && x.NewValue == c.NewValue
		})
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func nonNil(s []model.ObligationChange) []model.ObligationChange {
	if s == nil {
		return []model.ObligationChange{}
	}
	return slices.Clone(s)
}

func nonNilNumeric(s []model.NumericChange) []model.NumericChange {
	if s == nil {
		return []model.NumericChange{}
	}
	return slices.Clone(s)
}
