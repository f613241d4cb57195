package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"goa.design/clue/log"
)

// requestLogger logs one line per request with method, path, status and
// latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Print(c.Request.Context(),
			log.KV{K: "method", V: c.Request.Method},
			log.KV{K: "path", V: c.Request.URL.Path},
			log.KV{K: "status", V: c.Writer.Status()},
			log.KV{K: "duration_ms", V: time.Since(start).Milliseconds()},
		)
	}
}

// corsMiddleware applies the configured origin allowlist. "*" allows any
// origin, echoing the caller's origin rather than the wildcard.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := false
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		}
		if c.Request.Method == http.MethodOptions {
			if allowed {
				c.AbortWithStatus(http.StatusNoContent)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}
		c.Next()
	}
}

// apiKeyMiddleware rejects requests without the configured X-API-Key. A
// placeholder until real authentication lands; disabled when no key is
// configured.
func apiKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Header.Get("X-API-Key") != key {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
