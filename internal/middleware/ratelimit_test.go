package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/animehub-api/pkg/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis: connection refused")
}

type rejectCounter struct{ routes []string }

func (r *rejectCounter) RecordRateLimited(route string) { r.routes = append(r.routes, route) }

func newLimitedRouter(limiter ratelimit.Limiter, recorder RateLimitRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", RateLimit("login", limiter, recorder, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func postLogin(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitRejectsAfterLimit(t *testing.T) {
	counter := &rejectCounter{}
	r := newLimitedRouter(ratelimit.NewMemory(2, time.Minute), counter)

	assert.Equal(t, http.StatusOK, postLogin(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, postLogin(r, "10.0.0.1").Code)

	w := postLogin(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
	assert.Equal(t, []string{"login"}, counter.routes)

	assert.Equal(t, http.StatusOK, postLogin(r, "10.0.0.2").Code, "other clients are unaffected")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := newLimitedRouter(failingLimiter{}, nil)
	assert.Equal(t, http.StatusOK, postLogin(r, "10.0.0.1").Code)
}

func TestRetrySeconds(t *testing.T) {
	assert.Equal(t, 1, retrySeconds(0))
	assert.Equal(t, 2, retrySeconds(1500*time.Millisecond))
	assert.Equal(t, 60, retrySeconds(time.Minute))
}
