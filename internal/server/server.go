package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/core"
	"github.com/agenthands/redline/internal/core/model"
	"github.com/agenthands/redline/internal/metrics"
)

type Server struct {
	Engine  *core.Engine
	Metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewServer(engine *core.Engine, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Engine: engine, Metrics: m, logger: logger.Named("http")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.POST("/comparisons", s.Compare)
	r.GET("/comparisons/:id", s.GetComparison)
	r.GET("/comparisons/:id/audit", s.GetAudit)
	r.GET("/reviews/pending", s.PendingReviews)
	r.POST("/results/:id/review", s.Review)
	r.GET("/config", s.GetConfig)
	r.GET("/healthz", s.Health)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	return r
}

type ClauseRequest struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SectionPath []string  `json:"section_path"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

type DocumentRequest struct {
	Version string          `json:"version"`
	Clauses []ClauseRequest `json:"clauses"`
}

type CompareRequest struct {
	Old DocumentRequest `json:"old"`
	New DocumentRequest `json:"new"`
}

func (d DocumentRequest) document() model.Document {
	doc := model.Document{Version: d.Version}
	for _, c := range d.Clauses {
		doc.Clauses = append(doc.Clauses, model.Clause{ID: c.ID, Text: c.Text, SectionPath: c.SectionPath})
		if len(c.Embedding) > 0 {
			if doc.Embeddings == nil {
				doc.Embeddings = make(map[string][]float32)
			}
			doc.Embeddings[c.ID] = c.Embedding
		}
	}
	return doc
}

func (s *Server) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	report, err := s.Engine.Compare(c.Request.Context(), req.Old.document(), req.New.document())
	if err != nil && report == nil {
		s.fail(c, "comparison failed", err)
		return
	}
	if err != nil {
		s.logger.Warn("comparison returned a partial report", zap.String("run_id", report.RunID), zap.Error(err))
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GetComparison(c *gin.Context) {
	report, err := s.Engine.Report(c.Param("id"))
	if err != nil {
		s.fail(c, "failed to load comparison", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GetAudit(c *gin.Context) {
	records, err := s.Engine.AuditTrail(c.Param("id"))
	if err != nil {
		s.fail(c, "failed to load audit trail", err)
		return
	}
	resp := gin.H{"records": records}
	if w := s.Engine.Audit.Warning(); w != "" {
		resp["warning"] = w
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) PendingReviews(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": s.Engine.Reviews.Pending()})
}

type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"`
	Reviewer string `json:"reviewer" binding:"required"`
}

func (s *Server) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := s.Engine.ApplyReview(c.Request.Context(), c.Param("id"), req.Decision, req.Reviewer)
	if err != nil {
		s.fail(c, "failed to apply review", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) GetConfig(c *gin.Context) {
	snap := s.Engine.Config()
	values, err := snap.Config.Values()
	if err != nil {
		s.fail(c, "failed to render config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"values":    values,
		"changes":   s.Engine.ConfigChanges(),
	})
}

func (s *Server) Health(c *gin.Context) {
	status := "ok"
	if s.Engine.Audit.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "config_version": s.Engine.Config().Version})
}

func (s *Server) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrAlignment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
