package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

// Logger logs control plane requests through the daemon's slog handler.
// Successful polls stay at debug so the log file is not dominated by the
// desktop shell's status loop.
func Logger() gin.HandlerFunc {
	httpLogger := slog.Default().WithGroup("http")

	return slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	})
}
