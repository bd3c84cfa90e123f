// Package alignment turns candidate edges into a partition of both clause sets
// into added, removed, modified, relocated, merged, split and unchanged groups.
package alignment

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/similarity"
)

type Resolver struct {
	cfg config.AlignmentConfig
}

func NewResolver(cfg config.AlignmentConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

type edge struct {
	oldID, newID string
	score        float64
}

// Resolve assigns every clause of both versions to exactly one alignment. The
// result depends only on its inputs, never on their order.
func (r *Resolver) Resolve(oldClauses, newClauses []model.Clause, matches []model.CandidateMatch) ([]model.ResolvedAlignment, error) {
	if len(oldClauses) == 0 && len(newClauses) == 0 {
		return nil, fmt.Errorf("%w: no clauses on either side", model.ErrAlignment)
	}

	olds := index(oldClauses)
	news := index(newClauses)
	edges := collectEdges(matches, olds, news)

	// Greedy 1:1 assignment, strongest edge first.
	matchedOld := make(map[string]string)
	matchedNew := make(map[string]string)
	weight := make(map[[2]string]float64, len(edges))
	for _, e := range edges {
		weight[[2]string{e.oldID, e.newID}] = e.score
		if _, ok := matchedOld[e.oldID]; ok {
			continue
		}
		if _, ok := matchedNew[e.newID]; ok {
			continue
		}
		matchedOld[e.oldID] = e.newID
		matchedNew[e.newID] = e.oldID
	}

	claimed := make(map[string]bool) // "o:"+id or "n:"+id
	var out []model.ResolvedAlignment

	// Merges: a matched new clause absorbing old clauses left unmatched. Each
	// unmatched old clause only joins the group of its strongest anchor.
	mergeAnchor := anchors(edges, func(e edge) (string, string, bool) {
		_, matched := matchedOld[e.oldID]
		_, anchored := matchedNew[e.newID]
		return e.oldID, e.newID, !matched && anchored
	})
	for _, n := range sortedKeys(news) {
		o, ok := matchedNew[n]
		if !ok {
			continue
		}
		var extra []edge
		for _, e := range edges {
			if e.newID == n && mergeAnchor[e.oldID] == n {
				extra = append(extra, e)
			}
		}
		group, mean, ok := r.promote(weight[[2]string{o, n}], extra)
		if !ok {
			continue
		}
		ids := []string{o}
		for _, e := range group {
			ids = append(ids, e.oldID)
		}
		slices.Sort(ids)
		for _, id := range ids {
			claimed["o:"+id] = true
		}
		claimed["n:"+n] = true
		out = append(out, model.ResolvedAlignment{
			ChangeType:   model.ChangeMerged,
			OldClauseIDs: ids,
			NewClauseIDs: []string{n},
			Score:        mean,
		})
	}

	// Splits: a matched old clause spreading into new clauses left unmatched.
	// Old clauses already merged cannot anchor a split.
	splitAnchor := anchors(edges, func(e edge) (string, string, bool) {
		_, matched := matchedNew[e.newID]
		_, anchored := matchedOld[e.oldID]
		return e.newID, e.oldID, !matched && anchored && !claimed["o:"+e.oldID]
	})
	for _, o := range sortedKeys(olds) {
		n, ok := matchedOld[o]
		if !ok || claimed["o:"+o] {
			continue
		}
		var extra []edge
		for _, e := range edges {
			if e.oldID == o && splitAnchor[e.newID] == o {
				extra = append(extra, e)
			}
		}
		group, mean, ok := r.promote(weight[[2]string{o, n}], extra)
		if !ok {
			continue
		}
		ids := []string{n}
		for _, e := range group {
			ids = append(ids, e.newID)
		}
		slices.Sort(ids)
		for _, id := range ids {
			claimed["n:"+id] = true
		}
		claimed["o:"+o] = true
		out = append(out, model.ResolvedAlignment{
			ChangeType:   model.ChangeSplit,
			OldClauseIDs: []string{o},
			NewClauseIDs: ids,
			Score:        mean,
		})
	}

	// Remaining 1:1 pairs.
	for _, o := range sortedKeys(olds) {
		n, ok := matchedOld[o]
		if !ok || claimed["o:"+o] || claimed["n:"+n] {
			continue
		}
		claimed["o:"+o], claimed["n:"+n] = true, true
		score := weight[[2]string{o, n}]
		out = append(out, model.ResolvedAlignment{
			ChangeType:   r.classify(olds[o], news[n], score),
			OldClauseIDs: []string{o},
			NewClauseIDs: []string{n},
			Score:        score,
		})
	}

	for _, o := range sortedKeys(olds) {
		if !claimed["o:"+o] {
			out = append(out, model.ResolvedAlignment{ChangeType: model.ChangeRemoved, OldClauseIDs: []string{o}, NewClauseIDs: []string{}})
		}
	}
	for _, n := range sortedKeys(news) {
		if !claimed["n:"+n] {
			out = append(out, model.ResolvedAlignment{ChangeType: model.ChangeAdded, OldClauseIDs: []string{}, NewClauseIDs: []string{n}})
		}
	}

	Sort(out)
	return out, nil
}

// anchors maps each clause left out of the 1:1 pass to the matched clause on
// the other side it shares its strongest edge with. pick returns the extra
// clause id, the anchor id and whether the edge qualifies. edges must be
// ordered strongest first.
func anchors(edges []edge, pick func(edge) (string, string, bool)) map[string]string {
	out := make(map[string]string)
	for _, e := range edges {
		extra, anchor, ok := pick(e)
		if !ok {
			continue
		}
		if _, seen := out[extra]; !seen {
			out[extra] = anchor
		}
	}
	return out
}

// promote decides whether the anchor edge plus extra edges form a group. The
// weakest extras are dropped until the mean edge score reaches the group
// threshold; fewer than one surviving extra means no group.
func (r *Resolver) promote(anchor float64, extra []edge) ([]edge, float64, bool) {
	slices.SortFunc(extra, compareEdges)
	for len(extra) > 0 {
		sum := anchor
		for _, e := range extra {
			sum += e.score
		}
		mean := sum / float64(len(extra)+1)
		if mean >= r.cfg.GroupThreshold {
			return extra, mean, true
		}
		extra = extra[:len(extra)-1]
	}
	return nil, 0, false
}

func (r *Resolver) classify(oc, nc model.Clause, score float64) model.ChangeType {
	if oc.ParentPath() != nc.ParentPath() {
		return model.ChangeRelocated
	}
	if score >= r.cfg.IdenticalCutoff && similarity.Normalize(oc.Text) == similarity.Normalize(nc.Text) {
		return model.ChangeUnchanged
	}
	return model.ChangeModified
}

// Sort orders alignments by first new clause id, then first old clause id.
func Sort(aligns []model.ResolvedAlignment) {
	slices.SortFunc(aligns, func(a, b model.ResolvedAlignment) int {
		an, ao := a.SortKey()
		bn, bo := b.SortKey()
		if c := cmp.Compare(an, bn); c != 0 {
			return c
		}
		return cmp.Compare(ao, bo)
	})
}

func collectEdges(matches []model.CandidateMatch, olds, news map[string]model.Clause) []edge {
	best := make(map[[2]string]float64)
	for _, m := range matches {
		if m.OldClauseID == "" {
			continue
		}
		if _, ok := olds[m.OldClauseID]; !ok {
			continue
		}
		if _, ok := news[m.NewClauseID]; !ok {
			continue
		}
		k := [2]string{m.OldClauseID, m.NewClauseID}
		if s, ok := best[k]; !ok || m.CombinedScore > s {
			best[k] = m.CombinedScore
		}
	}
	edges := make([]edge, 0, len(best))
	for k, s := range best {
		edges = append(edges, edge{oldID: k[0], newID: k[1], score: s})
	}
	slices.SortFunc(edges, compareEdges)
	return edges
}

// compareEdges orders by score desc, then new id asc, then old id asc.
func compareEdges(a, b edge) int {
	if c := cmp.Compare(b.score, a.score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.newID, b.newID); c != 0 {
		return c
	}
	return cmp.Compare(a.oldID, b.oldID)
}

func index(clauses []model.Clause) map[string]model.Clause {
	m := make(map[string]model.Clause, len(clauses))
	for _, c := range clauses {
		m[c.ID] = c
	}
	return m
}

func sortedKeys(m map[string]model.Clause) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
