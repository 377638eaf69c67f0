package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ines/audigest/internal/logger"
)

const ownerIDKey = "owner_id"

// Auth returns a middleware that validates HS256 bearer tokens and binds
// the token subject to the request as the owner ID. Every route behind it
// can trust OwnerID to be non-empty.
// Parameters:
//   - secret: HMAC signing secret shared with the token issuer.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "authorization header is not a bearer token")
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(ownerIDKey, subject)

		// Owner propagates to every downstream log line.
		ctx := logger.WithField(c.Request.Context(), logger.FieldOwnerID, subject)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	logger.CtxWarn(c.Request.Context(), "rejected request: %s", reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// OwnerID returns the authenticated owner bound by Auth. Empty only on
// routes that skipped the middleware.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}
