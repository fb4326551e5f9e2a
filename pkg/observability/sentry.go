// Package observability wires error reporting into the HTTP stack.
package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/animehub-api/pkg/errors"
	"github.com/noah-isme/animehub-api/pkg/response"
)

// InitSentry configures the global Sentry client. An empty DSN disables
// reporting; the middleware still recovers panics.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry drains buffered events before shutdown.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// Recovery turns panics into 500 envelopes and reports panics and 5xx errors.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)

		defer func() {
			if rec := recover(); rec != nil {
				hub.RecoverWithContext(c.Request.Context(), rec)
				logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
				response.Abort(c, appErrors.ErrInternal)
			}
		}()

		c.Next()

		if c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		for _, ginErr := range c.Errors {
			hub.CaptureException(ginErr.Err)
		}
	}
}
