package model

import "fmt"

type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeRelocated ChangeType = "relocated"
	ChangeMerged    ChangeType = "merged"
	ChangeSplit     ChangeType = "split"
	ChangeUnchanged ChangeType = "unchanged"
)

var ChangeTypes = []ChangeType{
	ChangeAdded, ChangeRemoved, ChangeModified, ChangeRelocated,
	ChangeMerged, ChangeSplit, ChangeUnchanged,
}

func (c ChangeType) Valid() bool {
	for _, t := range ChangeTypes {
		if c == t {
			return true
		}
	}
	return false
}

type ResolvedAlignment struct {
	ChangeType   ChangeType `json:"change_type"`
	OldClauseIDs []string   `json:"old_clause_ids"`
	NewClauseIDs []string   `json:"new_clause_ids"`
	Score        float64    `json:"score"`
}

// SortKey orders alignments by first new clause id, then first old clause id.
func (a ResolvedAlignment) SortKey() (string, string) {
	var n, o string
	if len(a.NewClauseIDs) > 0 {
		n = a.NewClauseIDs[0]
	}
	if len(a.OldClauseIDs) > 0 {
		o = a.OldClauseIDs[0]
	}
	return n, o
}

// Check enforces the cardinality implied by the change type.
func (a ResolvedAlignment) Check() error {
	nOld, nNew := len(a.OldClauseIDs), len(a.NewClauseIDs)
	ok := true
	switch a.ChangeType {
	case ChangeAdded:
		ok = nOld == 0 && nNew == 1
	case ChangeRemoved:
		ok = nOld == 1 && nNew == 0
	case ChangeMerged:
		ok = nOld > 1 && nNew == 1
	case ChangeSplit:
		ok = nOld == 1 && nNew > 1
	case ChangeModified, ChangeRelocated, ChangeUnchanged:
		ok = nOld == 1 && nNew == 1
	default:
		return fmt.Errorf("unknown change type %q", a.ChangeType)
	}
	if !ok {
		return fmt.Errorf("%s alignment has %d old and %d new clauses", a.ChangeType, nOld, nNew)
	}
	return nil
}
