// Package core wires the comparison pipeline, its providers and persistence
// into a single Engine.
package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core/audit"
	"github.com/agenthands/redline/internal/core/comparator"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/core/pipeline"
	"github.com/agenthands/redline/internal/core/review"
	"github.com/agenthands/redline/internal/driver"
	"github.com/agenthands/redline/internal/llm"
	"github.com/agenthands/redline/internal/metrics"
)

// ClientFactory builds the oracle and embedding clients for an LLM section.
type ClientFactory func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.LLMClient, llm.EmbedderClient, error)

type providers struct {
	cfg      config.LLMConfig
	oracle   comparator.Oracle
	embedder llm.EmbedderClient
	closer   interface{ Close() error }
}

type Engine struct {
	config  *config.Store
	factory ClientFactory
	driver  driver.GraphDriver
	graph   *driver.GraphStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	Audit   *audit.Log
	Reviews *review.Registry
	memo    *comparator.Memo

	mu        sync.Mutex
	providers *providers
	retired   []interface{ Close() error }
	limiter   *rate.Limiter
	rateLimit float64
	reports   map[string]*model.Report
}

type Option func(*Engine)

func WithClientFactory(f ClientFactory) Option {
	return func(e *Engine) { e.factory = f }
}

// WithGraph persists documents, reports, audit records and reviews through d.
func WithGraph(d driver.GraphDriver) Option {
	return func(e *Engine) { e.driver = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(store *config.Store, opts ...Option) *Engine {
	e := &Engine{
		config:  store,
		factory: llm.NewClient,
		logger:  zap.NewNop(),
		memo:    comparator.NewMemo(),
		reports: make(map[string]*model.Report),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver != nil {
		e.graph = driver.NewGraphStore(e.driver, e.logger)
	}

	var (
		writer audit.Writer
		sink   review.Sink
	)
	if e.graph != nil {
		writer, sink = e.graph, e.graph
	}
	e.Audit = audit.NewLog(writer, e.logger)
	e.Reviews = review.NewRegistry(e.Audit, sink, e.logger)

	if e.metrics != nil {
		e.metrics.ConfigVersion.Set(float64(store.Current().Version))
	}
	store.OnChange(func(s *config.Snapshot) {
		e.logger.Info("config snapshot published", zap.Int("version", s.Version))
		if e.metrics != nil {
			e.metrics.ConfigVersion.Set(float64(s.Version))
		}
	})
	return e
}

func (e *Engine) BuildIndices(ctx context.Context) error {
	if e.graph == nil {
		return nil
	}
	return e.graph.BuildIndices(ctx)
}

// Compare runs one comparison against the current configuration snapshot.
// A cancelled run still returns and stores its partial report.
func (e *Engine) Compare(ctx context.Context, oldDoc, newDoc model.Document) (*model.Report, error) {
	snap := e.config.Current()
	p, err := e.providersFor(ctx, snap.Config.LLM)
	if err != nil {
		return nil, err
	}

	if e.graph != nil {
		for _, doc := range []model.Document{oldDoc, newDoc} {
			if err := e.graph.SaveDocument(ctx, doc); err != nil {
				e.logger.Warn("failed to persist document", zap.String("version", doc.Version), zap.Error(err))
			}
		}
	}

	opts := []pipeline.Option{
		pipeline.WithMemo(e.memo),
		pipeline.WithLimiter(e.limiterFor(snap.Config.Concurrency.OracleRateLimit)),
		pipeline.WithLogger(e.logger),
	}
	if e.metrics != nil {
		opts = append(opts, pipeline.WithObserver(e.metrics))
	}
	report, err := pipeline.New(snap, p.embedder, p.oracle, e.Audit, opts...).Run(ctx, oldDoc, newDoc)
	if e.metrics != nil {
		e.metrics.ObserveRun(report, err)
		e.metrics.SetAuditDegraded(e.Audit.Degraded())
	}
	if report == nil {
		return nil, err
	}

	e.Reviews.Register(report.RunID, report.Results...)
	e.mu.Lock()
	e.reports[report.RunID] = report
	e.mu.Unlock()

	if e.graph != nil {
		// The caller's context may already be done for a cancelled run.
		if perr := e.graph.SaveReport(context.WithoutCancel(ctx), report); perr != nil {
			e.logger.Warn("failed to persist report", zap.String("run_id", report.RunID), zap.Error(perr))
			report.Warnings = append(report.Warnings, "report was not persisted: "+perr.Error())
		}
	}
	return e.view(report), err
}

// Report returns a stored report with the current review state of each result.
func (e *Engine) Report(runID string) (*model.Report, error) {
	e.mu.Lock()
	report, ok := e.reports[runID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	return e.view(report), nil
}

func (e *Engine) AuditTrail(runID string) ([]model.AuditRecord, error) {
	if _, err := e.Report(runID); err != nil {
		return nil, err
	}
	return e.Audit.ForRun(runID), nil
}

func (e *Engine) ApplyReview(ctx context.Context, resultID, decision, reviewer string) (*model.ComparisonResult, error) {
	d, err := review.ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	res, err := e.Reviews.ApplyReview(ctx, resultID, d, reviewer)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.Reviews.WithLabelValues(string(d)).Inc()
	}
	return res, nil
}

func (e *Engine) Config() *config.Snapshot {
	return e.config.Current()
}

func (e *Engine) ConfigChanges() []config.Change {
	return e.config.Changes()
}

// Close drains the audit queue and releases providers and the graph driver.
func (e *Engine) Close(ctx context.Context) error {
	e.Audit.Close()
	e.mu.Lock()
	closers := e.retired
	if e.providers != nil && e.providers.closer != nil {
		closers = append(closers, e.providers.closer)
	}
	e.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
	if e.graph != nil {
		return e.graph.Close(ctx)
	}
	return nil
}

// view copies report, replacing each result with its registry version.
func (e *Engine) view(report *model.Report) *model.Report {
	out := *report
	out.Results = make([]*model.ComparisonResult, len(report.Results))
	for i, r := range report.Results {
		if cur, err := e.Reviews.Get(r.ID); err == nil {
			out.Results[i] = cur
			continue
		}
		out.Results[i] = r.Clone()
	}
	out.Summary = pipeline.Summarize(out.Alignments, out.Results)
	return &out
}

// providersFor returns clients for cfg, rebuilding them when the LLM section
// changed since the last run.
func (e *Engine) providersFor(ctx context.Context, cfg config.LLMConfig) (*providers, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.providers != nil && e.providers.cfg == cfg {
		return e.providers, nil
	}

	client, embedder, err := e.factory(ctx, cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	p := &providers{cfg: cfg, embedder: embedder}
	if client != nil {
		p.oracle = comparator.NewLLMOracle(client, llm.ModelVersion(cfg.Provider, cfg.Model))
	}
	if c, ok := client.(interface{ Close() error }); ok {
		p.closer = c
	}
	// Runs in flight may still hold the previous clients.
	if e.providers != nil && e.providers.closer != nil {
		e.retired = append(e.retired, e.providers.closer)
	}
	e.providers = p
	e.logger.Info("llm providers ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return p, nil
}

func (e *Engine) limiterFor(limit float64) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 {
		e.limiter, e.rateLimit = nil, 0
		return nil
	}
	if e.limiter == nil || e.rateLimit != limit {
		e.limiter, e.rateLimit = rate.NewLimiter(rate.Limit(limit), 1), limit
	}
	return e.limiter
}
