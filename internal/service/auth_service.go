package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/animehub-api/internal/models"
	"github.com/noah-isme/animehub-api/internal/repository"
	appErrors "github.com/noah-isme/animehub-api/pkg/errors"
)

// Auth event labels recorded on auth_events_total.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventRotate         = "rotate"
	EventLogout         = "logout"
	EventLogoutAll      = "logout_all"
	EventChangePassword = "change_password"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type authUserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type authSessionStore interface {
	FindByToken(ctx context.Context, token string) (*models.RefreshSession, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ReplaceForUser(ctx context.Context, session *models.RefreshSession) error
	Rotate(ctx context.Context, current, next *models.RefreshSession) error
}

type tokenMinter interface {
	Issue(userID string, now time.Time) (models.TokenPair, error)
	VerifyRefresh(token string, now time.Time) (*models.TokenClaims, error)
	RefreshTTL() time.Duration
}

type authMetrics interface {
	RecordAuthEvent(event string, err error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	MaxRotations int
	BcryptCost   int
}

// AuthService provides authentication use cases.
type AuthService struct {
	users     authUserStore
	sessions  authSessionStore
	tokens    tokenMinter
	audit     AuditRecorder
	metrics   authMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserStore, sessions authSessionStore, tokens tokenMinter, audit AuditRecorder, metrics authMetrics, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	if config.MaxRotations <= 0 {
		config.MaxRotations = 5
	}
	if config.BcryptCost < bcrypt.MinCost {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Register creates an account and opens its first refresh session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (resp *models.AuthResponse, err error) {
	defer func() { s.recordEvent(EventRegister, err) }()

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateIdentifier, "username already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, s.storeError(err, "failed to check username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Nickname:     req.Nickname,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	if user.Nickname == "" {
		user.Nickname = req.Username
	}
	if req.Email != "" {
		email := req.Email
		user.Email = &email
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateIdentifier, "username or email already exists")
		}
		return nil, s.storeError(err, "failed to create user")
	}

	pair, err := s.openSession(ctx, user.ID, now, req.ClientMeta)
	if err != nil {
		return nil, err
	}

	s.recordAudit(user.ID, models.AuditActionRegister, req.ClientMeta, nil)
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	return &models.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Message:      "registration successful",
	}, nil
}

// Login authenticates a user and replaces all of their sessions with a new one.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (resp *models.AuthResponse, err error) {
	defer func() { s.recordEvent(EventLogin, err) }()

	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, s.storeError(err, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}

	pair, err := s.openSession(ctx, user.ID, s.now().UTC(), req.ClientMeta)
	if err != nil {
		return nil, err
	}

	s.recordAudit(user.ID, models.AuditActionLogin, req.ClientMeta, nil)

	return &models.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Message:      "login successful",
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The successor session keeps
// the absolute expiry of its predecessor and carries rotation_count+1.
func (s *AuthService) Rotate(ctx context.Context, req models.RotateRequest) (pair *models.TokenPair, err error) {
	defer func() { s.recordEvent(EventRotate, err) }()

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token is required")
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token not recognised")
		}
		return nil, s.storeError(err, "failed to load refresh session")
	}

	now := s.now().UTC()
	if session.Expired(now) {
		if err := s.sessions.DeleteByToken(ctx, token); err != nil {
			s.logger.Warn("failed to delete expired refresh session", zap.String("session_id", session.ID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "refresh token expired, please log in again")
	}

	if session.RotationCount >= s.config.MaxRotations {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "refresh token rotation limit reached, please log in again")
	}

	claims, err := s.tokens.VerifyRefresh(token, now)
	if err != nil {
		s.logger.Warn("refresh token failed verification", zap.String("session_id", session.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid refresh token")
	}
	if claims.UserID != session.UserID {
		s.logger.Warn("refresh token owner mismatch", zap.String("session_id", session.ID))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid refresh token")
	}

	issued, err := s.tokens.Issue(claims.UserID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue tokens")
	}

	next := session.Successor(uuid.NewString(), issued.RefreshToken, now, req.ClientMeta)
	if err := s.sessions.Rotate(ctx, session, next); err != nil {
		if errors.Is(err, repository.ErrSessionConsumed) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token already used")
		}
		return nil, s.storeError(err, "failed to rotate refresh session")
	}

	s.recordAudit(session.UserID, models.AuditActionTokenRotate, req.ClientMeta, map[string]string{
		"rotation_count": strconv.Itoa(next.RotationCount),
	})

	return &issued, nil
}

// Logout ends the refresh session identified by req.Token when it belongs to userID.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) (err error) {
	defer func() { s.recordEvent(EventLogout, err) }()

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	session, err := s.sessions.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token not recognised")
		}
		return s.storeError(err, "failed to load refresh session")
	}

	if session.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if err := s.sessions.DeleteByToken(ctx, req.Token); err != nil {
		return s.storeError(err, "failed to delete refresh session")
	}

	s.recordAudit(userID, models.AuditActionLogout, req.ClientMeta, nil)
	return nil
}

// LogoutAll deletes every refresh session owned by userID. Access tokens
// already handed out stay valid until they expire.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, meta models.ClientMeta) (err error) {
	defer func() { s.recordEvent(EventLogoutAll, err) }()

	removed, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return s.storeError(err, "failed to delete refresh sessions")
	}

	s.recordAudit(userID, models.AuditActionLogoutAll, meta, map[string]string{
		"sessions": strconv.FormatInt(removed, 10),
	})
	return nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, s.storeError(err, "failed to load user")
	}
	profile := user.Profile()
	return &profile, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every refresh session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) (err error) {
	defer func() { s.recordEvent(EventChangePassword, err) }()

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return s.storeError(err, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return s.storeError(err, "failed to update password")
	}

	if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return s.storeError(err, "failed to revoke refresh sessions")
	}

	s.recordAudit(userID, models.AuditActionPasswordChange, req.ClientMeta, nil)
	return nil
}

// openSession issues a pair and makes its refresh token the user's only session.
func (s *AuthService) openSession(ctx context.Context, userID string, now time.Time, meta models.ClientMeta) (models.TokenPair, error) {
	pair, err := s.tokens.Issue(userID, now)
	if err != nil {
		return models.TokenPair{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue tokens")
	}

	session := &models.RefreshSession{
		ID:            uuid.NewString(),
		Token:         pair.RefreshToken,
		UserID:        userID,
		ExpiresAt:     now.Add(s.tokens.RefreshTTL()),
		RotationCount: 0,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		CreatedAt:     now,
	}
	if err := s.sessions.ReplaceForUser(ctx, session); err != nil {
		return models.TokenPair{}, s.storeError(err, "failed to persist refresh session")
	}
	return pair, nil
}

func (s *AuthService) storeError(err error, message string) error {
	s.logger.Error(message, zap.Error(err))
	return appErrors.Store(err, message)
}

func (s *AuthService) recordEvent(event string, err error) {
	if s.metrics != nil {
		s.metrics.RecordAuthEvent(event, err)
	}
}

func (s *AuthService) recordAudit(userID, action string, meta models.ClientMeta, details map[string]string) {
	if s.audit != nil {
		s.audit.Record(userID, action, meta, details)
	}
}
