package middleware

import (
	"context"

	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling runs the rest of the chain under route and method pprof labels.
// Health check paths are skipped.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		labels := telemetry.HTTPRequestLabels(c.FullPath(), c.Request.Method)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
