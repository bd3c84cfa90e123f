// Package comparator drives one aligned clause pair from rule pre-check
// through guarded oracle calls to a finalized, gated result.
package comparator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/audit"
	"github.com/agenthands/redline/internal/core/guardrail"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/rules"
)

var resultNamespace = uuid.MustParse("8d4c2a6e-3f1b-5e7a-9c0d-4b2e6f8a1c37")

// ResultID derives a stable id from the document versions and the ids and
// texts of the clauses on both sides. The same content compared again keeps
// its id; changed text under a reused id gets a new one.
func ResultID(req Request) string {
	var b strings.Builder
	b.WriteString("old:" + req.OldVersion)
	for _, id := range req.Alignment.OldClauseIDs {
		b.WriteString("\x00" + id + "\x00" + req.Old[id].Text)
	}
	b.WriteString("|new:" + req.NewVersion)
	for _, id := range req.Alignment.NewClauseIDs {
		b.WriteString("\x00" + id + "\x00" + req.New[id].Text)
	}
	return uuid.NewSHA1(resultNamespace, []byte(b.String())).String()
}

// Request is one alignment to compare. Old and New map clause ids to clauses
// of the respective document version and are only read.
type Request struct {
	RunID      string
	OldVersion string
	NewVersion string
	Alignment  model.ResolvedAlignment
	Old        map[string]model.Clause
	New        map[string]model.Clause
}

type Orchestrator struct {
	cfg     config.ComparatorConfig
	prompts config.ComparisonPrompts
	oracle  Oracle
	checker *rules.Checker
	guard   *guardrail.Validator
	audit   *audit.Log
	memo    *Memo
	limiter *rate.Limiter
	obs     Observer
	logger  *zap.Logger
	flight  singleflight.Group
}

type Option func(*Orchestrator)

// WithMemo shares finalized results across orchestrators, typically across runs.
func WithMemo(m *Memo) Option {
	return func(o *Orchestrator) { o.memo = m }
}

// WithLimiter throttles oracle calls, retries included.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an orchestrator bound to one configuration snapshot. oracle may
// be nil, in which case every pair goes straight to the rule-only fallback.
func New(cfg *config.Config, oracle Oracle, log *audit.Log, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.Comparator,
		prompts: cfg.Prompts,
		oracle:  oracle,
		checker: rules.NewChecker(cfg.Rules),
		guard:   guardrail.New(),
		audit:   log,
		obs:     nopObserver{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.memo == nil {
		o.memo = NewMemo()
	}
	if o.audit == nil {
		o.audit = audit.NewLog(nil, o.logger)
	}
	o.logger = o.logger.Named("comparator")
	return o
}

func (o *Orchestrator) ModelVersion() string {
	if o.oracle == nil {
		return ""
	}
	return o.oracle.ModelVersion()
}

// Compare returns the finalized result for req. It only fails when the pair
// cannot be compared at all; oracle trouble ends in the rule-only fallback.
// Oracle answers are memoized per pair and model before gating, so a repeated
// comparison makes no oracle call and writes no audit records, but is still
// gated against this orchestrator's configuration. Fallbacks are never
// memoized.
func (o *Orchestrator) Compare(ctx context.Context, req Request) (*model.ComparisonResult, error) {
	id := ResultID(req)
	m := &machine{id: id, state: StatePending, obs: o.obs}

	p, err := resolvePair(req)
	if err != nil {
		m.to(StateRejected)
		o.audit.Append(model.AuditRecord{
			RunID:             req.RunID,
			ResultID:          id,
			InputClauseIDs:    slices.Concat(req.Alignment.OldClauseIDs, req.Alignment.NewClauseIDs),
			ModelVersion:      o.ModelVersion(),
			ValidationOutcome: model.OutcomeRejected,
			Detail:            err.Error(),
		})
		return nil, err
	}

	signals := o.checker.Check(joinText(p.olds), joinText(p.news))
	m.to(StateRuleChecked)

	key := memoKey(p, o.ModelVersion())
	if r, ok := o.memo.Get(key); ok {
		return o.finalize(id, p.alignment, r, signals, m), nil
	}

	v, _, _ := o.flight.Do(key, func() (any, error) {
		if r, ok := o.memo.Get(key); ok {
			return r, nil
		}
		res := o.run(ctx, req.RunID, id, p, signals, m)
		if res.Provenance.Source == model.SourceModel {
			o.memo.Put(key, res)
		}
		return res, nil
	})
	return o.finalize(id, p.alignment, v.(*model.ComparisonResult).Clone(), signals, m), nil
}

// run consults the oracle and returns its ungated answer, or the rule-only
// fallback once attempts are exhausted or ctx ends.
func (o *Orchestrator) run(ctx context.Context, runID, id string, p pair, signals rules.Signals, m *machine) *model.ComparisonResult {
	meta, oldText, newText, hints := metadata(p), renderSide(p.olds), renderSide(p.news), signals.Hints()
	maxAttempts := o.cfg.MaxRetries + 1
	attempts := 0
	reason := "no oracle configured"

	for o.oracle != nil && attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			reason = "cancelled: " + err.Error()
			break
		}
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				reason = "cancelled: " + err.Error()
				break
			}
		}
		if attempts > 0 {
			m.to(StateRetry)
		}
		attempts++

		rejection := ""
		if attempts > 1 {
			rejection = reason
		}
		prompt := renderPrompt(o.prompts, meta, oldText, newText, hints, rejection)
		req := OracleRequest{
			ResultID: id,
			Prompt:   prompt,
			OldText:  oldText,
			NewText:  newText,
			Metadata: meta,
			Hints:    hints,
			Attempt:  attempts,
		}

		payload, outcome, detail, rawHash := o.attempt(ctx, p, req, m)
		o.audit.Append(model.AuditRecord{
			RunID:             runID,
			ResultID:          id,
			Attempt:           attempts,
			InputClauseIDs:    p.clauseIDs(),
			PromptHash:        hash(prompt),
			ModelVersion:      o.oracle.ModelVersion(),
			RawResponseHash:   rawHash,
			ValidationOutcome: outcome,
			Detail:            detail,
		})

		if outcome == model.OutcomeOK {
			res := &model.ComparisonResult{
				Alignment:         p.alignment,
				ChangeType:        finalType(p.alignment, payload.Type()),
				ObligationChanges: payload.Obligations(),
				PermissionChanges: payload.Permissions(),
				NumericChanges:    payload.Numerics(),
				RiskLevel:         payload.Risk(),
				HumanSummary:      payload.HumanSummary,
				Confidence:        *payload.Confidence,
				Provenance: model.Provenance{
					Source:       model.SourceModel,
					ModelVersion: o.oracle.ModelVersion(),
					RetriesUsed:  attempts - 1,
				},
			}
			return res
		}

		o.logger.Debug("oracle attempt rejected",
			zap.String("result_id", id),
			zap.Int("attempt", attempts),
			zap.String("outcome", string(outcome)),
			zap.String("detail", detail),
		)
		reason = detail
	}

	m.to(StateFallback)
	res := fallbackResult(p, signals, o.cfg.FallbackConfidence)
	res.Provenance.ModelVersion = o.ModelVersion()
	res.Provenance.RetriesUsed = max(attempts-1, 0)
	o.audit.Append(model.AuditRecord{
		RunID:             runID,
		ResultID:          id,
		Attempt:           attempts + 1,
		InputClauseIDs:    p.clauseIDs(),
		ModelVersion:      o.ModelVersion(),
		ValidationOutcome: model.OutcomeFallback,
		Detail:            reason,
	})
	o.logger.Warn("comparison fell back to rules",
		zap.String("result_id", id),
		zap.Int("attempts", attempts),
		zap.String("reason", reason),
	)
	return res
}

// attempt makes one oracle call and classifies its answer. The call runs with
// its own timeout and is not interrupted by cancellation of ctx.
func (o *Orchestrator) attempt(ctx context.Context, p pair, req OracleRequest, m *machine) (*guardrail.Payload, model.ValidationOutcome, string, string) {
	m.to(StateModelCalled)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.OracleTimeoutDuration())
	defer cancel()

	start := time.Now()
	raw, err := o.oracle.Compare(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			o.obs.Attempt(model.OutcomeTimeout, elapsed)
			return nil, model.OutcomeTimeout, fmt.Errorf("%w after %s", model.ErrOracleTimeout, o.cfg.OracleTimeout).Error(), ""
		}
		o.obs.Attempt(model.OutcomeOracleError, elapsed)
		return nil, model.OutcomeOracleError, err.Error(), ""
	}

	m.to(StateValidated)
	rawHash := hash(raw.Raw)
	if raw.Body == nil {
		o.obs.Attempt(model.OutcomeSchemaViolation, elapsed)
		return nil, model.OutcomeSchemaViolation, "response is not a JSON object: " + raw.ParseError, rawHash
	}

	payload, out := o.guard.Decode(raw.Body)
	if !out.OK() {
		outcome := model.OutcomeSchemaViolation
		if out.Kind == guardrail.KindContentViolation {
			outcome = model.OutcomeContentViolation
		}
		o.obs.Attempt(outcome, elapsed)
		return nil, outcome, out.Reason, rawHash
	}

	if reason := inconsistency(p.alignment, payload.Type()); reason != "" {
		o.obs.Attempt(model.OutcomeInconsistent, elapsed)
		return nil, model.OutcomeInconsistent, reason, rawHash
	}

	o.obs.Attempt(model.OutcomeOK, elapsed)
	return payload, model.OutcomeOK, "", rawHash
}

// finalize binds res to the alignment it answers, folds rule findings into
// oracle answers and gates it. res must be a private copy.
func (o *Orchestrator) finalize(id string, a model.ResolvedAlignment, res *model.ComparisonResult, s rules.Signals, m *machine) *model.ComparisonResult {
	res.ID = id
	res.Alignment = a
	res.Alignment.OldClauseIDs = slices.Clone(a.OldClauseIDs)
	res.Alignment.NewClauseIDs = slices.Clone(a.NewClauseIDs)
	if res.Provenance.Source == model.SourceModel {
		mergeSignals(res, s)
	}
	res.ReviewState = o.gate(res, s)
	res.FinalizedAt = time.Now().UTC()
	m.to(StateFinalized)
	o.obs.Finalized(res)
	return res
}

// gate sends a result to human review when it is uncertain, risky, of a
// critical change type or reverses an obligation.
func (o *Orchestrator) gate(res *model.ComparisonResult, s rules.Signals) model.ReviewState {
	switch {
	case res.Confidence < o.cfg.ConfidenceThreshold,
		res.RiskLevel == model.RiskHigh,
		slices.Contains(o.cfg.CriticalChangeTypes, string(res.ChangeType)),
		s.ObligationReversal:
		return model.ReviewRequired
	}
	return model.ReviewAutoVerified
}

// inconsistency explains why an oracle change type contradicts the
// alignment's structure, or returns "".
func inconsistency(a model.ResolvedAlignment, got model.ChangeType) string {
	switch {
	case got == model.ChangeAdded && len(a.OldClauseIDs) > 0:
		return "oracle reported added but the alignment has old clauses"
	case got == model.ChangeRemoved && len(a.NewClauseIDs) > 0:
		return "oracle reported removed but the alignment has new clauses"
	case got == model.ChangeMerged && a.ChangeType != model.ChangeMerged:
		return fmt.Sprintf("oracle reported merged for a %s alignment", a.ChangeType)
	case got == model.ChangeSplit && a.ChangeType != model.ChangeSplit:
		return fmt.Sprintf("oracle reported split for a %s alignment", a.ChangeType)
	}
	return ""
}

// finalType keeps structural change types from the alignment and takes the
// oracle's reading for 1:1 pairs.
func finalType(a model.ResolvedAlignment, got model.ChangeType) model.ChangeType {
	switch a.ChangeType {
	case model.ChangeAdded, model.ChangeRemoved, model.ChangeMerged, model.ChangeSplit:
		return a.ChangeType
	}
	return got
}

func resolvePair(req Request) (pair, error) {
	if err := req.Alignment.Check(); err != nil {
		return pair{}, &model.InputError{Reason: err.Error()}
	}
	p := pair{alignment: req.Alignment}
	for _, id := range req.Alignment.OldClauseIDs {
		c, err := lookup(req.Old, id)
		if err != nil {
			return pair{}, err
		}
		p.olds = append(p.olds, c)
	}
	for _, id := range req.Alignment.NewClauseIDs {
		c, err := lookup(req.New, id)
		if err != nil {
			return pair{}, err
		}
		p.news = append(p.news, c)
	}
	return p, nil
}

func lookup(clauses map[string]model.Clause, id string) (model.Clause, error) {
	c, ok := clauses[id]
	if !ok {
		return model.Clause{}, &model.InputError{ClauseID: id, Reason: "unknown clause id"}
	}
	if strings.TrimSpace(c.Text) == "" {
		return model.Clause{}, &model.InputError{ClauseID: id, Reason: "empty clause text"}
	}
	return c, nil
}
