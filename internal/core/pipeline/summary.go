package pipeline

import "github.com/agenthands/redline/internal/core/model"

// Summarize counts alignments per change type and results needing attention.
func Summarize(aligns []model.ResolvedAlignment, results []*model.ComparisonResult) model.Summary {
	var s model.Summary
	for _, a := range aligns {
		switch a.ChangeType {
		case model.ChangeAdded:
			s.TotalAdded++
		case model.ChangeRemoved:
			s.TotalRemoved++
		case model.ChangeModified:
			s.TotalModified++
		case model.ChangeRelocated:
			s.TotalRelocated++
		case model.ChangeMerged:
			s.TotalMerged++
		case model.ChangeSplit:
			s.TotalSplit++
		case model.ChangeUnchanged:
			s.TotalUnchanged++
		}
	}
	for _, r := range results {
		if r.RiskLevel == model.RiskHigh {
			s.HighRisk++
		}
		if r.ReviewState == model.ReviewRequired {
			s.NeedsReview++
		}
	}
	return s
}
