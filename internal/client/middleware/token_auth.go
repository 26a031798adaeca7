package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenAuthConfig carries the single shared token guarding the control
// plane. An empty token disables the check: a daemon bound to localhost for
// one user runs open by default.
type TokenAuthConfig struct {
	Token string
}

// TokenAuth authenticates requests against the configured token. The token
// rides in the Authorization header, or in a ?token query parameter for
// clients that cannot set headers (the SSE log stream).
func TokenAuth(config TokenAuthConfig) gin.HandlerFunc {
	if config.Token == "" {
		slog.Info("control plane auth disabled")
		return func(c *gin.Context) {
			c.Next()
		}
	}
	slog.Info("control plane auth enabled")

	want := []byte(config.Token)
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			slog.Debug("rejected control plane token", "ip", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}
