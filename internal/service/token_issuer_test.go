package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/animehub-api/internal/models"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(SigningConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "animehub-test",
	})
	require.NoError(t, err)
	return issuer
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	pair, err := issuer.Issue("user-1", now)
	require.NoError(t, err)

	access, err := issuer.VerifyAccess(pair.AccessToken, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID)
	assert.True(t, now.Add(time.Hour).Equal(access.ExpiresAt.Time))
	assert.Empty(t, access.ID)

	refresh, err := issuer.VerifyRefresh(pair.RefreshToken, now.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.UserID)
	assert.NotEmpty(t, refresh.ID)
}

func TestTokenIssuerExpiry(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pair, err := issuer.Issue("user-1", now)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken, now.Add(61*time.Minute))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuerKeysAreSeparate(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Now()
	pair, err := issuer.Issue("user-1", now)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken, now)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	_, err = issuer.VerifyRefresh(pair.AccessToken, now)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenIssuerRefreshTokensAreUnique(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Now()
	first, err := issuer.Issue("user-1", now)
	require.NoError(t, err)
	second, err := issuer.Issue("user-1", now)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestTokenIssuerRejectsOtherAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Now()
	claims := &models.TokenClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "animehub-test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(token, now)
	assert.Error(t, err)
}

func TestTokenIssuerRefreshSecretFallback(t *testing.T) {
	issuer, err := NewTokenIssuer(SigningConfig{AccessSecret: "shared"})
	require.NoError(t, err)
	now := time.Now()
	pair, err := issuer.Issue("user-1", now)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken, now)
	assert.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, issuer.RefreshTTL())

	_, err = NewTokenIssuer(SigningConfig{})
	assert.ErrorIs(t, err, ErrEmptySecret)
}
