package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/animehub-api/internal/models"
	appErrors "github.com/noah-isme/animehub-api/pkg/errors"
	"github.com/noah-isme/animehub-api/pkg/logger"
	"github.com/noah-isme/animehub-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// AccessVerifier validates access tokens; *service.TokenIssuer satisfies it.
type AccessVerifier interface {
	VerifyAccess(token string, now time.Time) (*models.TokenClaims, error)
}

// JWT protects routes by requiring a valid access token. A missing header or
// bearer token yields 401; a bad signature or expired token yields 403.
func JWT(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthenticated, "missing bearer token"))
			return
		}

		claims, err := verifier.VerifyAccess(token, time.Now())
		if err != nil {
			response.Abort(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired access token"))
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when present but does not block.
func OptionalJWT(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := verifier.VerifyAccess(token, time.Now())
		if err != nil {
			c.Next()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *models.TokenClaims) {
	c.Set(ContextUserKey, claims)
	c.Set(logger.UserIDKey, claims.UserID)
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
