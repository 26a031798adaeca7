package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS opens the control plane to browser-based tooling. CAD add-in panes
// and the vault monitor load from file:// and embedded-webview origins, so
// origins are not pinned. Auth is the bearer token, never cookies, so
// credentials stay off.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		MaxAge: 12 * time.Hour,
	})
}
