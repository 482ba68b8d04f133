package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdminToken rejects requests that do not present token, either as
// "Authorization: Bearer <token>" or in the X-Admin-Token header.
func RequireAdminToken(token string) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin API is disabled"})
			c.Abort()
			return
		}

		presented := presentedToken(c)
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Admin token required"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid admin token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func presentedToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader("X-Admin-Token"))
}
