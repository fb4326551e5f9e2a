package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/animehub-api/internal/models"
)

const userColumns = `id, username, email, nickname, password_hash, created_at, updated_at`

// UserRepository provides database access for accounts.
type UserRepository struct {
	db      *sqlx.DB
	metrics QueryObserver
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB, metrics QueryObserver) *UserRepository {
	return &UserRepository{db: db, metrics: observerOrNop(metrics)}
}

// FindByUsername returns a user by username. sql.ErrNoRows is returned as is.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	defer timed(r.metrics, "users.find_by_username")()
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer timed(r.metrics, "users.find_by_id")()
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new user. A taken username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	defer timed(r.metrics, "users.create")()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	const query = `INSERT INTO users (id, username, email, nickname, password_hash, created_at, updated_at) VALUES (:id, :username, :email, :nickname, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	defer timed(r.metrics, "users.update_password")()
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
