// Package middleware holds the gin middleware used by the API: bearer
// authentication, request ids, access logging, metrics and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the gin context key holding the authenticated user id.
const userIDKey = "user_id"

// TokenVerifier validates a bearer token and returns its user id.
type TokenVerifier interface {
	Verify(token string) (uint, error)
}

// AuthMiddleware rejects requests without a valid bearer token with 401 and
// stores the verified user id for downstream handlers.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, no token"})
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authorized, token failed"})
			return
		}

		SetUserID(c, userID)
		c.Next()
	}
}

func SetUserID(c *gin.Context, id uint) {
	c.Set(userIDKey, id)
}

// UserID returns the authenticated user id, or false when the request did
// not pass through AuthMiddleware.
func UserID(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := raw.(uint)
	return id, ok && id != 0
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
