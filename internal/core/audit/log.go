// Package audit keeps the append-only record of every oracle attempt and
// review transition.
package audit

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/core/model"
)

// Writer persists audit records durably.
type Writer interface {
	WriteAudit(ctx context.Context, rec model.AuditRecord) error
}

const (
	queueSize    = 1024
	writeRetries = 3
)

// Log holds records in memory and, when a Writer is set, forwards them to it
// from a single background goroutine so durable order matches append order.
// Persistent write failures switch the log to degraded mode; appends never
// fail.
type Log struct {
	mu      sync.Mutex
	records []model.AuditRecord
	closed  bool

	writer   Writer
	queue    chan model.AuditRecord
	done     chan struct{}
	degraded atomic.Bool
	lastErr  atomic.Value // string
	backoff  time.Duration
	logger   *zap.Logger
}

func NewLog(writer Writer, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log{writer: writer, logger: logger.Named("audit"), backoff: 50 * time.Millisecond}
	if writer != nil {
		l.queue = make(chan model.AuditRecord, queueSize)
		l.done = make(chan struct{})
		go l.run()
	}
	return l
}

// Append records rec. A zero Timestamp is set to now.
func (l *Log) Append(rec model.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.InputClauseIDs = slices.Clone(rec.InputClauseIDs)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)

	if l.queue == nil || l.closed {
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.markDegraded(fmt.Errorf("%w: durable queue full", model.ErrAuditWrite))
	}
}

func (l *Log) Records() []model.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

func (l *Log) ForRun(runID string) []model.AuditRecord {
	return l.filter(func(r model.AuditRecord) bool { return r.RunID == runID })
}

func (l *Log) ForResult(resultID string) []model.AuditRecord {
	return l.filter(func(r model.AuditRecord) bool { return r.ResultID == resultID })
}

func (l *Log) filter(keep func(model.AuditRecord) bool) []model.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.AuditRecord
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Degraded reports whether durable persistence has failed.
func (l *Log) Degraded() bool {
	return l.degraded.Load()
}

// Warning describes the degraded state, or is empty.
func (l *Log) Warning() string {
	if !l.degraded.Load() {
		return ""
	}
	msg, _ := l.lastErr.Load().(string)
	return "audit log degraded: " + msg
}

// Close stops accepting durable writes and waits for the queue to drain.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.mu.Unlock()

	if l.done != nil {
		<-l.done
	}
}

func (l *Log) run() {
	defer close(l.done)
	for rec := range l.queue {
		var err error
		for attempt := 1; attempt <= writeRetries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = l.writer.WriteAudit(ctx, rec)
			cancel()
			if err == nil {
				break
			}
			time.Sleep(time.Duration(attempt) * l.backoff)
		}
		if err != nil {
			l.markDegraded(fmt.Errorf("%w: %w", model.ErrAuditWrite, err))
		}
	}
}

func (l *Log) markDegraded(err error) {
	l.lastErr.Store(err.Error())
	if !l.degraded.Swap(true) {
		l.logger.Error("audit persistence degraded", zap.Error(err))
	}
}
