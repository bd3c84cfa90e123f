package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agenthands/redline/internal/core/model"
)

// Quantity is a number found in clause text together with its kind.
type Quantity struct {
	Kind  string
	Text  string
	Value float64
}

var (
	periodRe  = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(business days?|days?|weeks?|months?|years?)\b`)
	moneyRe   = regexp.MustCompile(`(?i)([$€£])\s?(\d[\d,]*(?:\.\d+)?)|\b(\d[\d,]*(?:\.\d+)?)\s?(USD|EUR|GBP)\b`)
	percentRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s?(%|percent\b)`)
)

var periodDays = map[string]float64{
	"business day": 1, "day": 1, "week": 7, "month": 30, "year": 365,
}

// ExtractQuantities finds periods, money amounts and percentages in text in
// order of appearance within each kind. Periods are normalized to days.
func ExtractQuantities(text string) []Quantity {
	var out []Quantity
	for _, m := range periodRe.FindAllStringSubmatch(text, -1) {
		unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, Quantity{Kind: "period", Text: m[0], Value: v * periodDays[unit]})
	}
	for _, m := range moneyRe.FindAllStringSubmatch(text, -1) {
		num := m[2]
		if num == "" {
			num = m[3]
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, Quantity{Kind: "amount", Text: strings.TrimSpace(m[0]), Value: v})
	}
	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, Quantity{Kind: "percentage", Text: m[0], Value: v})
	}
	return out
}

// CompareQuantities pairs quantities of the same kind by position and reports
// every pair whose value differs, plus unpaired leftovers.
func CompareQuantities(oldText, newText string) []model.NumericChange {
	olds := byKind(ExtractQuantities(oldText))
	news := byKind(ExtractQuantities(newText))

	var out []model.NumericChange
	for _, kind := range []string{"period", "amount", "percentage"} {
		o, n := olds[kind], news[kind]
		for i := 0; i < max(len(o), len(n)); i++ {
			field := kind
			if max(len(o), len(n)) > 1 {
				field = fmt.Sprintf("%s #%d", kind, i+1)
			}
			switch {
			case i >= len(o):
				out = append(out, model.NumericChange{Field: field, NewValue: n[i].Text, Significance: model.RiskMedium})
			case i >= len(n):
				out = append(out, model.NumericChange{Field: field, OldValue: o[i].Text, Significance: model.RiskMedium})
			case o[i].Value != n[i].Value:
				out = append(out, model.NumericChange{
					Field:        field,
					OldValue:     o[i].Text,
					NewValue:     n[i].Text,
					Significance: Significance(o[i].Value, n[i].Value),
				})
			}
		}
	}
	return out
}

// Significance grades a relative change: at least 50% is high, at least 10%
// is medium.
func Significance(oldV, newV float64) model.RiskLevel {
	if oldV == 0 {
		if newV == 0 {
			return model.RiskLow
		}
		return model.RiskHigh
	}
	rel := math.Abs(newV-oldV) / math.Abs(oldV)
	switch {
	case rel >= 0.5:
		return model.RiskHigh
	case rel >= 0.1:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func byKind(qs []Quantity) map[string][]Quantity {
	m := make(map[string][]Quantity)
	for _, q := range qs {
		m[q.Kind] = append(m[q.Kind], q)
	}
	return m
}
