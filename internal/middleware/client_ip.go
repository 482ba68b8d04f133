package middleware

import (
	"net"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetSecureClientIP returns the client's address for rate limiting and logs.
// On App Engine it trusts X-Appengine-User-Ip, which Google's front end sets;
// everywhere else it uses the TCP peer and ignores forwarding headers.
func GetSecureClientIP(c *gin.Context) string {
	if os.Getenv("GAE_ENV") == "standard" {
		if ip := c.GetHeader("X-Appengine-User-Ip"); ip != "" {
			return ip
		}
	}

	remoteAddr := c.Request.RemoteAddr

	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}

	return ip
}

// SanitizeIPForLogging masks the host part of an address.
func SanitizeIPForLogging(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".") + ".xxx"
	}

	// Full IPv6 addresses keep their first three groups
	if strings.Contains(ip, ":") && len(ip) > 20 {
		colonCount := 0
		for i, ch := range ip {
			if ch == ':' {
				colonCount++
				if colonCount == 3 {
					return ip[:i+1] + "..."
				}
			}
		}
	}

	return ip
}
