// Package guardrail checks untrusted oracle output before it can become part
// of a comparison result.
package guardrail

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agenthands/redline/internal/core/model"
)

type Kind string

const (
	KindOK               Kind = "ok"
	KindSchemaViolation  Kind = "schema_violation"
	KindContentViolation Kind = "content_violation"
)

type Outcome struct {
	Kind   Kind     `json:"kind"`
	Fields []string `json:"fields,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

func (o Outcome) OK() bool {
	return o.Kind == KindOK
}

// Err maps a failed outcome onto the matching sentinel error.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindOK:
		return nil
	case KindContentViolation:
		return fmt.Errorf("%w: %s", model.ErrContentViolation, o.Reason)
	default:
		return fmt.Errorf("%w: %s", model.ErrSchemaViolation, o.Reason)
	}
}

type Validator struct {
	validate *validator.Validate
	policy   []Rule
}

// New returns a Validator enforcing policy, or DefaultPolicy when none is given.
func New(policy ...Rule) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if len(policy) == 0 {
		policy = DefaultPolicy()
	}
	return &Validator{validate: v, policy: policy}
}

// Validate checks raw against the result schema and the content policy. raw is
// never modified.
func (g *Validator) Validate(raw map[string]any) Outcome {
	_, out := g.Decode(raw)
	return out
}

// Decode is Validate that also returns the typed payload when the outcome is ok.
func (g *Validator) Decode(raw map[string]any) (*Payload, Outcome) {
	if raw == nil {
		return nil, Outcome{Kind: KindSchemaViolation, Reason: "empty response"}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, Outcome{Kind: KindSchemaViolation, Reason: fmt.Sprintf("response is not serializable: %v", err)}
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, Outcome{
				Kind:   KindSchemaViolation,
				Fields: []string{typeErr.Field},
				Reason: fmt.Sprintf("field %s has type %s, want %s", typeErr.Field, typeErr.Value, typeErr.Type),
			}
		}
		return nil, Outcome{Kind: KindSchemaViolation, Reason: fmt.Sprintf("malformed response: %v", err)}
	}

	if err := g.validate.Struct(&p); err != nil {
		return nil, schemaOutcome(err)
	}

	if out := g.checkContent(&p); !out.OK() {
		return nil, out
	}
	return &p, Outcome{Kind: KindOK}
}

// schemaOutcome reports missing fields first, then bad enum values, then
// out-of-range numbers.
func schemaOutcome(err error) Outcome {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Outcome{Kind: KindSchemaViolation, Reason: err.Error()}
	}

	var missing, enums, ranges []string
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			missing = append(missing, field)
		case "oneof":
			enums = append(enums, field)
		default:
			ranges = append(ranges, field)
		}
	}

	switch {
	case len(missing) > 0:
		return Outcome{Kind: KindSchemaViolation, Fields: missing, Reason: "missing required fields: " + strings.Join(missing, ", ")}
	case len(enums) > 0:
		return Outcome{Kind: KindSchemaViolation, Fields: enums, Reason: "invalid enum values: " + strings.Join(enums, ", ")}
	default:
		return Outcome{Kind: KindSchemaViolation, Fields: ranges, Reason: "values out of range: " + strings.Join(ranges, ", ")}
	}
}

func (g *Validator) checkContent(p *Payload) Outcome {
	var fields, rules []string
	for _, t := range p.texts() {
		for _, r := range g.policy {
			if r.Pattern.MatchString(t[1]) {
				if !slices.Contains(fields, t[0]) {
					fields = append(fields, t[0])
				}
				if !slices.Contains(rules, r.Name) {
					rules = append(rules, r.Name)
				}
			}
		}
	}
	if len(fields) == 0 {
		return Outcome{Kind: KindOK}
	}
	return Outcome{
		Kind:   KindContentViolation,
		Fields: fields,
		Reason: "content policy violated: " + strings.Join(rules, ", "),
	}
}
