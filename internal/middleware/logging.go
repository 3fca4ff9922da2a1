package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogging emits one structured zerolog line per request in place of
// gin.Logger(): method, path, status, latency, principal id, and the job id
// on /jobs/:id routes.
func RequestLogging(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("principal_id", PrincipalFrom(c))
		if strings.HasPrefix(c.FullPath(), "/jobs/:id") {
			ev = ev.Str("job_id", c.Param("id"))
		}
		ev.Msg("request")
	}
}
