package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing
func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		var allowedOrigin string
		if config.AllowAllOrigins {
			allowedOrigin = "*"
			// When using *, credentials must be false
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")
		} else {
			if !IsOriginAllowed(origin, config) && len(config.AllowedOrigins) > 0 {
				c.Next()
				return
			}
			allowedOrigin = origin
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IsOriginAllowed checks if an origin is allowed based on the configuration
func IsOriginAllowed(origin string, config CORSConfig) bool {
	if config.AllowAllOrigins {
		return true
	}

	for _, allowedOrigin := range config.AllowedOrigins {
		if allowedOrigin == "*" || strings.EqualFold(origin, allowedOrigin) {
			return true
		}
	}

	return false
}
