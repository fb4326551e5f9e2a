package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/animehub-api/internal/models"
)

const sessionColumns = `id, token, user_id, expires_at, rotation_count, ip_address, user_agent, created_at`

const insertSessionQuery = `INSERT INTO refresh_sessions (id, token, user_id, expires_at, rotation_count, ip_address, user_agent, created_at) VALUES (:id, :token, :user_id, :expires_at, :rotation_count, :ip_address, :user_agent, :created_at)`

// SessionRepository persists refresh sessions.
type SessionRepository struct {
	db      *sqlx.DB
	metrics QueryObserver
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB, metrics QueryObserver) *SessionRepository {
	return &SessionRepository{db: db, metrics: observerOrNop(metrics)}
}

// Create stores a refresh session.
func (r *SessionRepository) Create(ctx context.Context, session *models.RefreshSession) error {
	defer timed(r.metrics, "refresh_sessions.create")()
	if _, err := r.db.NamedExecContext(ctx, insertSessionQuery, session); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create refresh session: %w", ErrDuplicate)
		}
		return fmt.Errorf("create refresh session: %w", err)
	}
	return nil
}

// FindByToken returns the session holding the exact token string.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.RefreshSession, error) {
	defer timed(r.metrics, "refresh_sessions.find_by_token")()
	const query = `SELECT ` + sessionColumns + ` FROM refresh_sessions WHERE token = $1 LIMIT 1`
	var session models.RefreshSession
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh session: %w", err)
	}
	return &session, nil
}

// DeleteByToken removes a single session. Missing rows are not an error.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	defer timed(r.metrics, "refresh_sessions.delete_by_token")()
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session owned by userID and reports how many went.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	defer timed(r.metrics, "refresh_sessions.delete_by_user")()
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return affected, nil
}

// ReplaceForUser drops all sessions of the session owner and stores session,
// in one transaction, so a user never holds more than one live login. The
// owner's user row is locked first so concurrent logins serialise.
func (r *SessionRepository) ReplaceForUser(ctx context.Context, session *models.RefreshSession) error {
	defer timed(r.metrics, "refresh_sessions.replace_for_user")()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sessions: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, session.UserID); err != nil {
		return fmt.Errorf("lock session owner: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, session.UserID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create refresh session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace sessions: %w", err)
	}
	return nil
}

// Rotate consumes current and stores next atomically. The delete is
// conditioned on the token and rotation count the caller observed, so of two
// concurrent rotations of the same token exactly one commits; the loser gets
// ErrSessionConsumed and nothing is written.
func (r *SessionRepository) Rotate(ctx context.Context, current, next *models.RefreshSession) error {
	defer timed(r.metrics, "refresh_sessions.rotate")()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const consume = `DELETE FROM refresh_sessions WHERE token = $1 AND rotation_count = $2 RETURNING id`
	var consumedID string
	if err := tx.QueryRowxContext(ctx, consume, current.Token, current.RotationCount).Scan(&consumedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionConsumed
		}
		return fmt.Errorf("consume refresh session: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertSessionQuery, next); err != nil {
		return fmt.Errorf("create rotated session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose absolute expiry passed before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer timed(r.metrics, "refresh_sessions.delete_expired")()
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return affected, nil
}
