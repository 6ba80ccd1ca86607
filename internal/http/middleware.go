package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const tokenContextKey = "bearerToken"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bearerToken extracts the raw token from the Authorization header and stores
// it in the request context. Verification happens in the service, which gets
// the token passed explicitly on every call; there is no ambient
// "current user" state.
func bearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "unauthorized",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  false,
				"message": "unauthorized",
			})
			return
		}

		c.Set(tokenContextKey, strings.TrimSpace(parts[1]))
		c.Next()
	}
}

func tokenFromContext(c *gin.Context) string {
	return c.GetString(tokenContextKey)
}
