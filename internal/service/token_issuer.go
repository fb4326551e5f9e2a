package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/animehub-api/internal/models"
)

// ErrEmptySecret is returned when the issuer is built without an access secret.
var ErrEmptySecret = errors.New("signing secret is empty")

// SigningConfig carries the secrets and lifetimes used to mint tokens.
type SigningConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

// NewTokenIssuer validates cfg and returns an issuer. An empty refresh secret
// falls back to the access secret.
func NewTokenIssuer(cfg SigningConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" {
		return nil, ErrEmptySecret
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
	}, nil
}

// RefreshTTL is the absolute lifetime of a login session.
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Issue mints an access and refresh token for userID at now.
func (i *TokenIssuer) Issue(userID string, now time.Time) (models.TokenPair, error) {
	access, err := i.sign(i.accessKey, userID, "", now, i.accessTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(i.refreshKey, userID, uuid.NewString(), now, i.refreshTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (i *TokenIssuer) VerifyAccess(token string, now time.Time) (*models.TokenClaims, error) {
	return i.verify(i.accessKey, token, now)
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (i *TokenIssuer) VerifyRefresh(token string, now time.Time) (*models.TokenClaims, error) {
	return i.verify(i.refreshKey, token, now)
}

func (i *TokenIssuer) sign(key []byte, userID, id string, now time.Time, ttl time.Duration) (string, error) {
	issuedAt := now.UTC()
	claims := &models.TokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    i.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (i *TokenIssuer) verify(key []byte, tokenString string, now time.Time) (*models.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}
