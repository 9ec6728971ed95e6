// Package auth guards the API with a single static key. An empty configured
// key disables the check, which is how local development runs.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const keyHeader = "X-API-Key"

// RequireKey rejects requests whose X-API-Key header does not match key.
func RequireKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}

		got := []byte(c.GetHeader(keyHeader))
		if len(got) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "API key rejected"})
			return
		}

		c.Next()
	}
}
