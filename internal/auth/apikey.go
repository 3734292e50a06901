package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	keyHeader = "X-API-Key"
	// Browsers cannot set headers on a WebSocket upgrade.
	keyQuery = "api_key"
)

// APIKeyMiddleware admits requests carrying apiKey in X-API-Key or, failing
// that, the api_key query parameter. An empty apiKey admits everything.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(apiKey)
	return func(c *gin.Context) {
		got := presentedKey(c)
		switch {
		case got == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
		default:
			c.Next()
		}
	}
}

func presentedKey(c *gin.Context) string {
	if k := c.GetHeader(keyHeader); k != "" {
		return k
	}
	return c.Query(keyQuery)
}
