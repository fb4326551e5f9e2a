package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/animehub-api/internal/models"
	"github.com/noah-isme/animehub-api/pkg/jobs"
)

type captureDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (d *captureDispatcher) TryEnqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type dropCounter struct{ dropped int }

func (c *dropCounter) RecordAuditDropped() { c.dropped++ }

type memoryAuditStore struct {
	entries []*models.AuditLog
	err     error
}

func (s *memoryAuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestAuditServiceRecordEnqueues(t *testing.T) {
	queue := &captureDispatcher{}
	svc := NewAuditService(queue, nil, nil)

	svc.Record("user-1", models.AuditActionLogin, models.ClientMeta{IP: "10.0.0.1", UserAgent: "curl"}, map[string]string{"status": "success"})

	require.Len(t, queue.jobs, 1)
	entry, ok := queue.jobs[0].Payload.(*models.AuditLog)
	require.True(t, ok)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "user-1", *entry.UserID)
	assert.Equal(t, models.AuditActionLogin, entry.Action)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)

	var details map[string]string
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "success", details["status"])
}

func TestAuditServiceCountsDrops(t *testing.T) {
	queue := &captureDispatcher{err: jobs.ErrQueueFull}
	counter := &dropCounter{}
	svc := NewAuditService(queue, counter, nil)

	svc.Record("user-1", models.AuditActionLogout, models.ClientMeta{}, nil)
	assert.Equal(t, 1, counter.dropped)
}

func TestAuditWorkerHandle(t *testing.T) {
	store := &memoryAuditStore{}
	worker := NewAuditWorker(store, nil)

	entry := &models.AuditLog{ID: "audit-1", Action: models.AuditActionRegister}
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "audit-1", Payload: entry}))
	require.Len(t, store.entries, 1)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "bad", Payload: "oops"}))
	assert.Len(t, store.entries, 1)

	store.err = errors.New("db down")
	assert.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "audit-2", Payload: entry}))
}
