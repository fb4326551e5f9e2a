package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/animehub-api/internal/models"
)

// AuditRepository stores audit trail entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a single audit record.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	const query = `INSERT INTO audit_logs (id, user_id, action, ip_address, user_agent, details, created_at) VALUES (:id, :user_id, :action, :ip_address, :user_agent, :details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
