// Package pipeline runs a full comparison of two document versions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/alignment"
	"github.com/agenthands/redline/internal/core/audit"
	"github.com/agenthands/redline/internal/core/candidate"
	"github.com/agenthands/redline/internal/core/comparator"
	"github.com/agenthands/redline/internal/core/embedding"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/similarity"
	"github.com/agenthands/redline/internal/llm"
)

// IndexFactory builds the nearest-neighbour index over old clauses.
type IndexFactory func(ctx context.Context, clauses []model.Clause, cache *embedding.Cache) (candidate.Index, error)

func memoryIndex(ctx context.Context, clauses []model.Clause, cache *embedding.Cache) (candidate.Index, error) {
	return candidate.NewMemoryIndex(ctx, clauses, cache)
}

// Coordinator runs comparisons against one configuration snapshot.
type Coordinator struct {
	snap     *config.Snapshot
	embedder llm.EmbedderClient
	oracle   comparator.Oracle
	audit    *audit.Log
	memo     *comparator.Memo
	limiter  *rate.Limiter
	observer comparator.Observer
	index    IndexFactory
	logger   *zap.Logger
}

type Option func(*Coordinator)

func WithMemo(m *comparator.Memo) Option {
	return func(c *Coordinator) { c.memo = m }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Coordinator) { c.limiter = l }
}

func WithObserver(o comparator.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithIndex(f IndexFactory) Option {
	return func(c *Coordinator) { c.index = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func New(snap *config.Snapshot, embedder llm.EmbedderClient, oracle comparator.Oracle, log *audit.Log, opts ...Option) *Coordinator {
	c := &Coordinator{
		snap:     snap,
		embedder: embedder,
		oracle:   oracle,
		audit:    log,
		index:    memoryIndex,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.audit == nil {
		c.audit = audit.NewLog(nil, c.logger)
	}
	if c.memo == nil {
		c.memo = comparator.NewMemo()
	}
	if c.limiter == nil && snap.Config.Concurrency.OracleRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(snap.Config.Concurrency.OracleRateLimit), 1)
	}
	c.logger = c.logger.Named("pipeline")
	return c
}

// Run compares oldDoc with newDoc. Malformed clauses and clauses whose
// embedding fails are excluded and listed in the report. When ctx ends, no
// further pairs are dispatched; the report holds every result finalized so far
// and is returned together with the context error.
func (c *Coordinator) Run(ctx context.Context, oldDoc, newDoc model.Document) (*model.Report, error) {
	cfg := &c.snap.Config
	report := &model.Report{
		RunID:         uuid.NewString(),
		ConfigVersion: c.snap.Version,
		OldVersion:    versionOr(oldDoc.Version, "old"),
		NewVersion:    versionOr(newDoc.Version, "new"),
		StartedAt:     time.Now().UTC(),
	}
	if report.OldVersion == report.NewVersion {
		return nil, &model.InputError{Reason: fmt.Sprintf("old and new version are both %q", report.OldVersion)}
	}
	logger := c.logger.With(zap.String("run_id", report.RunID))
	logger.Info("comparison started",
		zap.String("old_version", report.OldVersion),
		zap.String("new_version", report.NewVersion),
		zap.Int("config_version", report.ConfigVersion),
	)

	olds, rejected := accept(oldDoc.Clauses, report.OldVersion)
	report.Rejected = append(report.Rejected, rejected...)
	news, rejected := accept(newDoc.Clauses, report.NewVersion)
	report.Rejected = append(report.Rejected, rejected...)

	cache := embedding.NewCache()
	embedder := embedding.NewEmbedder(c.embedder, cache, cfg.Concurrency.EmbedWorkers, logger)
	var err error
	if olds, err = c.embed(ctx, embedder, olds, oldDoc.Embeddings, report); err != nil {
		return c.cancelled(report, err)
	}
	if news, err = c.embed(ctx, embedder, news, newDoc.Embeddings, report); err != nil {
		return c.cancelled(report, err)
	}
	olds, news = checkDimensions(olds, news, cache, report)

	index, err := c.index(ctx, olds, cache)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	gen := candidate.NewGenerator(similarity.NewScorer(cfg.Scoring), index, cfg.Alignment, logger)
	matches, rejected, err := gen.Generate(ctx, olds, news, cache)
	if err != nil {
		return c.cancelled(report, err)
	}
	report.Rejected = append(report.Rejected, rejected...)
	news = without(news, rejected)

	aligns, err := alignment.NewResolver(cfg.Alignment).Resolve(olds, news, matches)
	if err != nil {
		return nil, err
	}
	report.Alignments = aligns

	opts := []comparator.Option{
		comparator.WithMemo(c.memo),
		comparator.WithLimiter(c.limiter),
		comparator.WithLogger(logger),
	}
	if c.observer != nil {
		opts = append(opts, comparator.WithObserver(c.observer))
	}
	orch := comparator.New(cfg, c.oracle, c.audit, opts...)
	results, warnings := c.compareAll(ctx, report, olds, news, orch)
	report.Results = results
	report.Warnings = append(report.Warnings, warnings...)
	report.Summary = Summarize(aligns, results)
	if w := c.audit.Warning(); w != "" {
		report.Warnings = append(report.Warnings, w)
	}
	sortRejected(report.Rejected)
	report.CompletedAt = time.Now().UTC()

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		logger.Warn("comparison cancelled", zap.Int("finalized", len(results)), zap.Int("alignments", len(aligns)))
		return report, err
	}
	logger.Info("comparison finished",
		zap.Int("alignments", len(aligns)),
		zap.Int("needs_review", report.Summary.NeedsReview),
		zap.Duration("elapsed", report.CompletedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// compareAll fans the alignments out over a bounded pool. Results keep the
// alignment order whatever the completion order.
func (c *Coordinator) compareAll(ctx context.Context, report *model.Report, olds, news []model.Clause, orch *comparator.Orchestrator) ([]*model.ComparisonResult, []string) {
	aligns := report.Alignments
	oldByID, newByID := byID(olds), byID(news)
	slots := make([]*model.ComparisonResult, len(aligns))

	var (
		mu       sync.Mutex
		warnings []string
	)
	var g errgroup.Group
	g.SetLimit(max(c.snap.Config.Concurrency.Workers, 1))

	for i, a := range aligns {
		req := comparator.Request{
			RunID:      report.RunID,
			OldVersion: report.OldVersion,
			NewVersion: report.NewVersion,
			Alignment:  a,
			Old:        oldByID,
			New:        newByID,
		}
		if a.ChangeType == model.ChangeUnchanged {
			slots[i] = comparator.UnchangedResult(req)
			slots[i].FinalizedAt = time.Now().UTC()
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// g.Go blocks while the pool is full; ctx may have ended while it waited.
			if ctx.Err() != nil {
				return nil
			}
			res, err := orch.Compare(ctx, req)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, fmt.Sprintf("alignment %s rejected: %v", comparator.ResultID(req), err))
				mu.Unlock()
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*model.ComparisonResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, r)
		}
	}
	sort.Strings(warnings)
	return out, warnings
}

func (c *Coordinator) embed(ctx context.Context, e *embedding.Embedder, clauses []model.Clause, supplied map[string][]float32, report *model.Report) ([]model.Clause, error) {
	failed, err := e.EmbedAll(ctx, clauses, supplied)
	if err != nil {
		return nil, err
	}
	var bad []model.RejectedClause
	for _, f := range failed {
		var pErr *model.ProviderError
		if errors.As(f, &pErr) {
			bad = append(bad, model.RejectedClause{ClauseID: pErr.ClauseID, DocVersion: versionOf(clauses), Reason: f.Error()})
		}
	}
	report.Rejected = append(report.Rejected, bad...)
	return without(clauses, bad), nil
}

func (c *Coordinator) cancelled(report *model.Report, err error) (*model.Report, error) {
	report.Cancelled = true
	report.CompletedAt = time.Now().UTC()
	sortRejected(report.Rejected)
	return report, err
}

// accept drops clauses without an id or text and repeated ids. Survivors are
// stamped with the document version.
func accept(clauses []model.Clause, version string) ([]model.Clause, []model.RejectedClause) {
	seen := make(map[string]bool, len(clauses))
	var (
		out      []model.Clause
		rejected []model.RejectedClause
	)
	for _, c := range clauses {
		reason := ""
		switch {
		case strings.TrimSpace(c.ID) == "":
			reason = "missing clause id"
		case strings.TrimSpace(c.Text) == "":
			reason = "empty clause text"
		case seen[c.ID]:
			reason = "duplicate clause id"
		}
		if reason != "" {
			rejected = append(rejected, model.RejectedClause{ClauseID: c.ID, DocVersion: version, Reason: (&model.InputError{ClauseID: c.ID, Reason: reason}).Error()})
			continue
		}
		seen[c.ID] = true
		c.DocVersion = version
		out = append(out, c)
	}
	return out, rejected
}

// checkDimensions keeps clauses whose vectors match the dimension of the first
// usable vector, old clauses first.
func checkDimensions(olds, news []model.Clause, cache *embedding.Cache, report *model.Report) ([]model.Clause, []model.Clause) {
	dim := 0
	for _, c := range append(append([]model.Clause(nil), olds...), news...) {
		if v, ok := cache.Get(c); ok && similarity.CheckVector(v, 0) == nil {
			dim = len(v)
			break
		}
	}
	filter := func(clauses []model.Clause) []model.Clause {
		var bad []model.RejectedClause
		for _, c := range clauses {
			v, _ := cache.Get(c)
			if err := similarity.CheckVector(v, dim); err != nil {
				var inErr *model.InputError
				if errors.As(err, &inErr) {
					inErr.ClauseID = c.ID
				}
				bad = append(bad, model.RejectedClause{ClauseID: c.ID, DocVersion: c.DocVersion, Reason: err.Error()})
			}
		}
		report.Rejected = append(report.Rejected, bad...)
		return without(clauses, bad)
	}
	return filter(olds), filter(news)
}

func without(clauses []model.Clause, rejected []model.RejectedClause) []model.Clause {
	if len(rejected) == 0 {
		return clauses
	}
	drop := make(map[string]bool, len(rejected))
	for _, r := range rejected {
		drop[r.ClauseID] = true
	}
	out := make([]model.Clause, 0, len(clauses))
	for _, c := range clauses {
		if !drop[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func byID(clauses []model.Clause) map[string]model.Clause {
	m := make(map[string]model.Clause, len(clauses))
	for _, c := range clauses {
		m[c.ID] = c
	}
	return m
}

func versionOf(clauses []model.Clause) string {
	if len(clauses) == 0 {
		return ""
	}
	return clauses[0].DocVersion
}

func versionOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sortRejected(r []model.RejectedClause) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].DocVersion != r[j].DocVersion {
			return r[i].DocVersion < r[j].DocVersion
		}
		return r[i].ClauseID < r[j].ClauseID
	})
}
