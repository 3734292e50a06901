package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	callerHeader = "X-User-ID"
	callerQuery  = "user_id"
	callerKey    = "caller"
)

// CallerMiddleware requires the X-User-ID header, or the user_id query
// parameter for WebSocket upgrades, naming the acting user and stores it for
// handlers. Account management lives in front of this service.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader(callerHeader))
		if caller == "" {
			caller = strings.TrimSpace(c.Query(callerQuery))
		}
		if caller == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing " + callerHeader + " header",
			})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// Caller returns the user set by CallerMiddleware.
func Caller(c *gin.Context) string {
	return c.GetString(callerKey)
}
