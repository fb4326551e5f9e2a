package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/animehub-api/pkg/errors"
	"github.com/noah-isme/animehub-api/pkg/ratelimit"
	"github.com/noah-isme/animehub-api/pkg/response"
)

// RateLimitRecorder counts rejected requests; *service.MetricsService satisfies it.
type RateLimitRecorder interface {
	RecordRateLimited(route string)
}

// RateLimit throttles a route per client IP. Limiter failures let the request
// through and are logged.
func RateLimit(name string, limiter ratelimit.Limiter, recorder RateLimitRecorder, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), name+":"+c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("route", name), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			if recorder != nil {
				recorder.RecordRateLimited(name)
			}
			c.Header("Retry-After", strconv.Itoa(retrySeconds(retryAfter)))
			response.Abort(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many attempts, try again later"))
			return
		}
		c.Next()
	}
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
