package alignment

import (
	"fmt"

	"github.com/agenthands/redline/internal/core/model"
)

// CheckPartition verifies that every clause id appears in exactly one
// alignment and that each alignment's cardinality fits its change type.
func CheckPartition(oldClauses, newClauses []model.Clause, aligns []model.ResolvedAlignment) error {
	seenOld := make(map[string]int)
	seenNew := make(map[string]int)
	for _, a := range aligns {
		if err := a.Check(); err != nil {
			return err
		}
		for _, id := range a.OldClauseIDs {
			seenOld[id]++
		}
		for _, id := range a.NewClauseIDs {
			seenNew[id]++
		}
	}
	if err := covers("old", oldClauses, seenOld); err != nil {
		return err
	}
	return covers("new", newClauses, seenNew)
}

func covers(side string, clauses []model.Clause, seen map[string]int) error {
	ids := make(map[string]bool, len(clauses))
	for _, c := range clauses {
		ids[c.ID] = true
		if seen[c.ID] != 1 {
			return fmt.Errorf("%s clause %s appears in %d alignments", side, c.ID, seen[c.ID])
		}
	}
	for id := range seen {
		if !ids[id] {
			return fmt.Errorf("%s clause %s is not part of the input", side, id)
		}
	}
	return nil
}
