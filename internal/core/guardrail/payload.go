package guardrail

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/agenthands/redline/internal/core/model"
)

// Payload is the typed shape an oracle answer must decode into. Lists must be
// present even when empty, so they stay nil when the key is missing.
type Payload struct {
	ChangeType        string           `json:"change_type" validate:"required,oneof=added removed modified relocated merged split unchanged"`
	ObligationChanges []ObligationItem `json:"obligation_changes" validate:"required,dive"`
	PermissionChanges []ObligationItem `json:"permission_changes" validate:"required,dive"`
	NumericChanges    []NumericItem    `json:"numeric_changes" validate:"required,dive"`
	RiskLevel         string           `json:"risk_level" validate:"required,oneof=low medium high"`
	HumanSummary      string           `json:"human_summary" validate:"required"`
	Confidence        *float64         `json:"confidence" validate:"required,gte=0,lte=1"`
}

type ObligationItem struct {
	Entity        string `json:"entity"`
	OldObligation string `json:"old_obligation"`
	NewObligation string `json:"new_obligation"`
	Severity      string `json:"severity" validate:"required,oneof=low medium high"`
}

type NumericItem struct {
	Field        string     `json:"field" validate:"required"`
	OldValue     flexString `json:"old_value"`
	NewValue     flexString `json:"new_value"`
	Significance string     `json:"significance" validate:"required,oneof=low medium high"`
}

// flexString accepts a JSON string or number. Models quote numeric values
// inconsistently.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (p *Payload) Type() model.ChangeType {
	return model.ChangeType(p.ChangeType)
}

func (p *Payload) Risk() model.RiskLevel {
	return model.RiskLevel(p.RiskLevel)
}

func (p *Payload) Obligations() []model.ObligationChange {
	return toObligations(p.ObligationChanges)
}

func (p *Payload) Permissions() []model.ObligationChange {
	return toObligations(p.PermissionChanges)
}

func (p *Payload) Numerics() []model.NumericChange {
	out := make([]model.NumericChange, 0, len(p.NumericChanges))
	for _, n := range p.NumericChanges {
		out = append(out, model.NumericChange{
			Field:        n.Field,
			OldValue:     string(n.OldValue),
			NewValue:     string(n.NewValue),
			Significance: model.RiskLevel(n.Significance),
		})
	}
	return out
}

func toObligations(items []ObligationItem) []model.ObligationChange {
	out := make([]model.ObligationChange, 0, len(items))
	for _, o := range items {
		out = append(out, model.ObligationChange{
			Entity:        o.Entity,
			OldObligation: o.OldObligation,
			NewObligation: o.NewObligation,
			Severity:      model.RiskLevel(o.Severity),
		})
	}
	return out
}

// texts lists every free-text value with the field it came from.
func (p *Payload) texts() [][2]string {
	out := [][2]string{{"human_summary", p.HumanSummary}}
	add := func(prefix string, items []ObligationItem) {
		for i, o := range items {
			at := prefix + "[" + strconv.Itoa(i) + "]"
			out = append(out,
				[2]string{at + ".entity", o.Entity},
				[2]string{at + ".old_obligation", o.OldObligation},
				[2]string{at + ".new_obligation", o.NewObligation},
			)
		}
	}
	add("obligation_changes", p.ObligationChanges)
	add("permission_changes", p.PermissionChanges)
	for i, n := range p.NumericChanges {
		out = append(out, [2]string{"numeric_changes[" + strconv.Itoa(i) + "].field", n.Field})
	}
	return out
}
