package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/animehub-api/internal/models"
	"github.com/noah-isme/animehub-api/pkg/jobs"
)

const auditJobType = "audit.write"

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type auditDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type auditMetrics interface {
	RecordAuditDropped()
}

// AuditRecorder is the slice of AuditService the auth flow depends on.
type AuditRecorder interface {
	Record(userID, action string, meta models.ClientMeta, details map[string]string)
}

// AuditService hands audit entries to a background queue so recording never
// blocks or fails an auth request.
type AuditService struct {
	queue   auditDispatcher
	metrics auditMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService constructs the recorder side of the audit pipeline.
func NewAuditService(queue auditDispatcher, metrics auditMetrics, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{queue: queue, metrics: metrics, logger: logger, now: time.Now}
}

// Record enqueues an audit entry. Failures are logged and dropped.
func (s *AuditService) Record(userID, action string, meta models.ClientMeta, details map[string]string) {
	if s == nil || s.queue == nil {
		return
	}
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err == nil {
			entry.Details = raw
		}
	}

	if err := s.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) && s.metrics != nil {
			s.metrics.RecordAuditDropped()
		}
		s.logger.Warn("failed to enqueue audit log", zap.String("action", action), zap.Error(err))
	}
}

// AuditWorker persists queued audit entries.
type AuditWorker struct {
	store  auditStore
	logger *zap.Logger
}

// NewAuditWorker constructs a queue handler for audit jobs.
func NewAuditWorker(store auditStore, logger *zap.Logger) *AuditWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditWorker{store: store, logger: logger}
}

// Handle processes a queue job.
func (w *AuditWorker) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok || entry == nil {
		w.logger.Sugar().Warnw("discarding malformed audit job", "job_id", job.ID, "type", job.Type)
		return nil
	}
	if err := w.store.Create(ctx, entry); err != nil {
		return fmt.Errorf("persist audit log: %w", err)
	}
	return nil
}
