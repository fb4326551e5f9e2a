package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/animehub-api/internal/middleware"
	"github.com/noah-isme/animehub-api/internal/models"
	appErrors "github.com/noah-isme/animehub-api/pkg/errors"
)

type authServiceMock struct {
	authResp    *models.AuthResponse
	pair        *models.TokenPair
	profile     *models.UserProfile
	err         error
	lastRotate  models.RotateRequest
	lastLogin   models.LoginRequest
	lastLogout  models.LogoutRequest
	lastUserID  string
	logoutAllOK bool
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	return m.authResp, m.err
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	m.lastLogin = req
	return m.authResp, m.err
}

func (m *authServiceMock) Rotate(ctx context.Context, req models.RotateRequest) (*models.TokenPair, error) {
	m.lastRotate = req
	return m.pair, m.err
}

func (m *authServiceMock) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	m.lastUserID = userID
	m.lastLogout = req
	return m.err
}

func (m *authServiceMock) LogoutAll(ctx context.Context, userID string, meta models.ClientMeta) error {
	m.lastUserID = userID
	m.logoutAllOK = m.err == nil
	return m.err
}

func (m *authServiceMock) Me(ctx context.Context, userID string) (*models.UserProfile, error) {
	m.lastUserID = userID
	return m.profile, m.err
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	m.lastUserID = userID
	return m.err
}

func newJSONContext(method, path, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "animehub-web")
	c.Request = req
	return c, w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthHandlerRegisterCreated(t *testing.T) {
	svc := &authServiceMock{authResp: &models.AuthResponse{AccessToken: "a", RefreshToken: "r", Message: "registration successful"}}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/register", `{"username":"alice","password":"Secr3t!"}`)
	h.Register(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"accessToken":"a","refreshToken":"r","message":"registration successful"}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAuthHandlerRegisterDuplicate(t *testing.T) {
	svc := &authServiceMock{err: appErrors.Clone(appErrors.ErrDuplicateIdentifier, "username already exists")}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/register", `{"username":"alice","password":"Secr3t!"}`)
	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "DUPLICATE_IDENTIFIER")
}

func TestAuthHandlerLoginPassesClientMeta(t *testing.T) {
	svc := &authServiceMock{authResp: &models.AuthResponse{AccessToken: "a", RefreshToken: "r"}}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/login", `{"username":"alice","password":"Secr3t!"}`)
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"accessToken":"a","refreshToken":"r","message":""}`, w.Body.String())
	assert.Equal(t, "alice", svc.lastLogin.Username)
	assert.Equal(t, "animehub-web", svc.lastLogin.UserAgent)
}

func TestAuthHandlerLoginInvalidBody(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/auth/login", `{"username":`)
	h.Login(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestAuthHandlerTokenStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "rotated", status: http.StatusOK},
		{name: "unknown", err: appErrors.ErrUnauthenticated, status: http.StatusUnauthorized},
		{name: "expired", err: appErrors.Clone(appErrors.ErrForbidden, "expired"), status: http.StatusForbidden},
		{name: "store down", err: appErrors.Store(errors.New("conn refused"), "failed"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &authServiceMock{pair: &models.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, err: tc.err}
			h := NewAuthHandler(svc)

			c, w := newJSONContext(http.MethodPost, "/auth/token", `{"token":"r1"}`)
			h.Token(c)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "r1", svc.lastRotate.Token)
		})
	}
}

func TestAuthHandlerTokenReturnsBarePair(t *testing.T) {
	svc := &authServiceMock{pair: &models.TokenPair{AccessToken: "a", RefreshToken: "r"}}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/token", `{"token":"r0"}`)
	h.Token(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.JSONEq(t, `"a"`, string(body["accessToken"]))
	assert.JSONEq(t, `"r"`, string(body["refreshToken"]))
	assert.NotContains(t, body, "data")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAuthHandlerTokenErrorKeepsEnvelope(t *testing.T) {
	svc := &authServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "refresh token expired")}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/token", `{"token":"r0"}`)
	h.Token(c)

	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.JSONEq(t, `{"code":"FORBIDDEN","message":"refresh token expired","status":403}`, string(body["error"]))
	assert.NotContains(t, body, "accessToken")
}

func TestAuthHandlerTokenEmptyBodyReachesService(t *testing.T) {
	svc := &authServiceMock{err: appErrors.ErrUnauthenticated}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/token", "")
	h.Token(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.lastRotate.Token)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})

	c, w := newJSONContext(http.MethodPost, "/auth/logout", `{"token":"r1"}`)
	h.Logout(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/logout", `{"token":"r1"}`)
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "user-1"})
	h.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "user-1", svc.lastUserID)
	assert.Equal(t, "r1", svc.lastLogout.Token)
}

func TestAuthHandlerLogoutAll(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, _ := newJSONContext(http.MethodPost, "/auth/logout-all", "")
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "user-1"})
	h.LogoutAll(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.True(t, svc.logoutAllOK)
}

func TestAuthHandlerMe(t *testing.T) {
	svc := &authServiceMock{profile: &models.UserProfile{ID: "user-1", Username: "alice", Nickname: "alice"}}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodGet, "/auth/me", "")
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "user-1"})
	h.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)
}

func TestAuthHandlerChangePasswordWrongOld(t *testing.T) {
	svc := &authServiceMock{err: appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")}
	h := NewAuthHandler(svc)

	c, w := newJSONContext(http.MethodPost, "/auth/change-password", `{"oldPassword":"x","newPassword":"N3wSecret"}`)
	c.Set(middleware.ContextUserKey, &models.TokenClaims{UserID: "user-1"})
	h.ChangePassword(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
