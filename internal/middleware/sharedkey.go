package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SharedKey enforces the optional shared-key header named in the spec's
// Non-goals ("no per-user accounts or authorization beyond an optional
// shared key header"). When key is empty the middleware is a no-op, so a
// deployment with no configured key runs unauthenticated.
func SharedKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		supplied := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
